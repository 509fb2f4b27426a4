// Package requests is a thin fire-and-forget HTTP layer for the auth steps.
// Every call produces exactly one Reply; retry policy belongs to the caller.
package requests

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrorKind classifies how a request failed at the transport level.
type ErrorKind int

const (
	// NoError means the request completed; the HTTP status may still be bad.
	NoError ErrorKind = iota
	// TimeoutError means no byte activity within the timeout window.
	TimeoutError
	// TLSError means certificate validation failed.
	TLSError
	// TransportError covers every other network-level failure.
	TransportError
	// CanceledError means the caller's context was canceled.
	CanceledError
)

func (k ErrorKind) String() string {
	switch k {
	case NoError:
		return "none"
	case TimeoutError:
		return "timeout"
	case TLSError:
		return "tls"
	case TransportError:
		return "transport"
	case CanceledError:
		return "canceled"
	}
	return "unknown"
}

// Reply is the single completion event of a request.
type Reply struct {
	Kind       ErrorKind
	Err        error
	StatusCode int
	Body       []byte
	Header     http.Header
}

// Succeeded reports a transport-clean 2xx reply.
func (r Reply) Succeeded() bool {
	return r.Kind == NoError && r.StatusCode >= 200 && r.StatusCode < 300
}

// DefaultTimeout matches the per-call timeout the launcher uses elsewhere.
const DefaultTimeout = 30 * time.Second

// Client issues one-shot requests. The zero value is not usable; use New.
type Client struct {
	hc  *http.Client
	log *zap.Logger
}

// New builds a Client on top of the given http.Client. Passing nil uses a
// plain client with no global timeout; timeouts are applied per request.
func New(hc *http.Client, log *zap.Logger) *Client {
	if hc == nil {
		hc = &http.Client{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{hc: hc, log: log}
}

// Send performs one request and returns its single completion event. The
// timeout is an inactivity timeout: any received byte rearms it. Zero means
// DefaultTimeout.
func (c *Client) Send(ctx context.Context, method, url string, headers http.Header, body []byte, timeout time.Duration) Reply {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return Reply{Kind: TransportError, Err: err}
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	// Inactivity timer: canceling the context aborts both the round trip
	// and any in-progress body read.
	var timedOut atomic.Bool
	timer := time.AfterFunc(timeout, func() {
		timedOut.Store(true)
		cancel()
	})
	defer timer.Stop()

	resp, err := c.hc.Do(req)
	if err != nil {
		kind := classify(ctx, err, &timedOut)
		c.log.Debug("request failed", zap.String("url", url), zap.Stringer("kind", kind), zap.Error(err))
		return Reply{Kind: kind, Err: err}
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	chunk := make([]byte, 32*1024)
	for {
		n, readErr := resp.Body.Read(chunk)
		if n > 0 {
			timer.Reset(timeout)
			buf.Write(chunk[:n])
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			kind := classify(ctx, readErr, &timedOut)
			c.log.Debug("request body read failed", zap.String("url", url), zap.Stringer("kind", kind), zap.Error(readErr))
			return Reply{Kind: kind, Err: readErr, StatusCode: resp.StatusCode, Header: resp.Header}
		}
	}

	return Reply{
		Kind:       NoError,
		StatusCode: resp.StatusCode,
		Body:       buf.Bytes(),
		Header:     resp.Header,
	}
}

// Get is a convenience wrapper around Send.
func (c *Client) Get(ctx context.Context, url string, headers http.Header, timeout time.Duration) Reply {
	return c.Send(ctx, http.MethodGet, url, headers, nil, timeout)
}

// Post is a convenience wrapper around Send.
func (c *Client) Post(ctx context.Context, url string, headers http.Header, body []byte, timeout time.Duration) Reply {
	return c.Send(ctx, http.MethodPost, url, headers, body, timeout)
}

func classify(ctx context.Context, err error, timedOut *atomic.Bool) ErrorKind {
	if timedOut.Load() {
		return TimeoutError
	}
	if ctx.Err() != nil {
		return CanceledError
	}

	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return TLSError
	}
	var unkAuth x509.UnknownAuthorityError
	var hostErr x509.HostnameError
	if errors.As(err, &unkAuth) || errors.As(err, &hostErr) {
		return TLSError
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return TimeoutError
	}
	return TransportError
}
