// Package oauth implements a provider-agnostic OAuth2 device-code engine
// (RFC 8628) plus the refresh-token grant, on top of the requests wrapper.
package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/quasar/craftauth/internal/requests"
)

// Activity is the engine's state. Idle moves to LoggingIn or Refreshing,
// which end in exactly one of the terminal states.
type Activity int

const (
	Idle Activity = iota
	LoggingIn
	Refreshing
	Succeeded
	FailedSoft
	FailedHard
	FailedGone
)

// Options identify a provider's device-code endpoints.
type Options struct {
	ClientID      string
	Scope         string
	DeviceCodeURL string
	TokenURL      string
}

// Verification is surfaced to the caller so the user code can be displayed
// and a browser opened.
type Verification struct {
	URI       string
	UserCode  string
	ExpiresIn time.Duration
}

// TokenUpdate carries the outcome of a successful grant. Extra holds every
// claim of the token response verbatim, stringified.
type TokenUpdate struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
	Extra        map[string]string
}

// Result is the single terminal event of a Login or Refresh.
type Result struct {
	State   Activity
	Message string
	Token   TokenUpdate
}

const defaultInterval = 5 * time.Second

// Client drives the device-code and refresh grants for one provider.
type Client struct {
	opts Options
	rq   *requests.Client
	log  *zap.Logger

	// sleep is swapped out by tests to observe the poll schedule.
	sleep func(ctx context.Context, d time.Duration) error
	// timeout overrides the per-request inactivity timeout; zero keeps the
	// requests default.
	timeout time.Duration
}

func NewClient(opts Options, rq *requests.Client, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{opts: opts, rq: rq, log: log, sleep: sleepCtx}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type deviceAuthorization struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURI string `json:"verification_uri"`
	// Some providers spell it this way instead.
	VerificationURL  string `json:"verification_url"`
	ExpiresIn        int    `json:"expires_in"`
	Interval         int    `json:"interval"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (d deviceAuthorization) verificationURI() string {
	if d.VerificationURI != "" {
		return d.VerificationURI
	}
	return d.VerificationURL
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int    `json:"expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func formHeaders() http.Header {
	return http.Header{
		"Content-Type": {"application/x-www-form-urlencoded"},
		"Accept":       {"application/json"},
	}
}

// Login runs the full device-code grant: device authorization, verification
// surfacing, and the polling loop. It returns exactly one terminal Result.
// Canceling ctx aborts the in-flight request and any pending poll.
func (c *Client) Login(ctx context.Context, surface func(Verification)) Result {
	da, res := c.requestDeviceAuthorization(ctx)
	if res != nil {
		return *res
	}

	if surface != nil {
		surface(Verification{
			URI:       da.verificationURI(),
			UserCode:  da.UserCode,
			ExpiresIn: time.Duration(da.ExpiresIn) * time.Second,
		})
	}
	return c.poll(ctx, da)
}

func (c *Client) requestDeviceAuthorization(ctx context.Context) (deviceAuthorization, *Result) {
	form := url.Values{
		"client_id": {c.opts.ClientID},
		"scope":     {c.opts.Scope},
	}
	reply := c.rq.Post(ctx, c.opts.DeviceCodeURL, formHeaders(), []byte(form.Encode()), c.timeout)
	if reply.Kind != requests.NoError {
		return deviceAuthorization{}, &Result{State: FailedHard, Message: "failed to retrieve device authorization"}
	}

	var da deviceAuthorization
	if err := json.Unmarshal(reply.Body, &da); err != nil {
		return deviceAuthorization{}, &Result{State: FailedHard, Message: "device authorization response is not valid JSON"}
	}
	if da.Error != "" || da.ErrorDescription != "" {
		msg := da.ErrorDescription
		if msg == "" {
			msg = da.Error
		}
		c.log.Warn("device authorization failed", zap.String("error", da.Error))
		return deviceAuthorization{}, &Result{State: FailedHard, Message: fmt.Sprintf("device authorization failed: %s", msg)}
	}
	if da.DeviceCode == "" || da.UserCode == "" || da.verificationURI() == "" || da.ExpiresIn == 0 {
		return deviceAuthorization{}, &Result{State: FailedHard, Message: "device authorization failed: required fields missing"}
	}
	return da, nil
}

func (c *Client) poll(ctx context.Context, da deviceAuthorization) Result {
	interval := defaultInterval
	if da.Interval > 0 {
		interval = time.Duration(da.Interval) * time.Second
	}
	deadline := time.Now().Add(time.Duration(da.ExpiresIn) * time.Second)

	form := url.Values{
		"client_id":   {c.opts.ClientID},
		"grant_type":  {"urn:ietf:params:oauth:grant-type:device_code"},
		"device_code": {da.DeviceCode},
	}
	payload := []byte(form.Encode())

	for {
		if time.Until(deadline) < interval {
			return Result{State: FailedHard, Message: "device code expired before authorization completed"}
		}
		if err := c.sleep(ctx, interval); err != nil {
			return Result{State: FailedHard, Message: "aborted"}
		}

		reply := c.rq.Post(ctx, c.opts.TokenURL, formHeaders(), payload, c.timeout)
		switch reply.Kind {
		case requests.TimeoutError:
			// rfc8628 section 3.5: reduce polling frequency on a
			// connection timeout; doubling is the recommended backoff.
			interval *= 2
			continue
		case requests.CanceledError:
			return Result{State: FailedHard, Message: "aborted"}
		case requests.NoError:
		default:
			// transient transport trouble, try again at the same pace
			continue
		}

		var tr tokenResponse
		if err := json.Unmarshal(reply.Body, &tr); err != nil {
			continue
		}
		switch tr.Error {
		case "authorization_pending":
			continue
		case "slow_down":
			// rfc8628 section 3.5: interval MUST grow by 5 seconds for
			// this and all subsequent requests.
			interval += 5 * time.Second
			continue
		case "":
		default:
			msg := tr.ErrorDescription
			if msg == "" {
				msg = tr.Error
			}
			c.log.Warn("device access failed", zap.String("error", tr.Error))
			return Result{State: FailedHard, Message: fmt.Sprintf("device access failed: %s", msg)}
		}
		if tr.AccessToken == "" {
			continue
		}
		return Result{
			State:   Succeeded,
			Message: "got device token",
			Token:   makeUpdate(tr, reply.Body),
		}
	}
}

// Refresh runs the refresh-token grant. When the provider omits a new refresh
// token the caller should keep using the old one.
func (c *Client) Refresh(ctx context.Context, refreshToken string) Result {
	form := url.Values{
		"client_id":     {c.opts.ClientID},
		"scope":         {c.opts.Scope},
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}
	reply := c.rq.Post(ctx, c.opts.TokenURL, formHeaders(), []byte(form.Encode()), c.timeout)

	switch reply.Kind {
	case requests.NoError:
	case requests.CanceledError:
		return Result{State: FailedHard, Message: "aborted"}
	default:
		return Result{State: FailedSoft, Message: "token refresh failed: network error"}
	}

	if reply.StatusCode == http.StatusGone {
		return Result{State: FailedGone, Message: "account no longer exists upstream"}
	}

	var tr tokenResponse
	if err := json.Unmarshal(reply.Body, &tr); err != nil {
		return Result{State: FailedHard, Message: "token refresh response is not valid JSON"}
	}
	if tr.Error != "" || !reply.Succeeded() {
		msg := tr.ErrorDescription
		if msg == "" {
			msg = tr.Error
		}
		if msg == "" {
			msg = fmt.Sprintf("HTTP %d", reply.StatusCode)
		}
		return Result{State: FailedHard, Message: fmt.Sprintf("token refresh rejected: %s", msg)}
	}
	if tr.AccessToken == "" {
		return Result{State: FailedHard, Message: "token refresh response is missing access_token"}
	}
	return Result{
		State:   Succeeded,
		Message: "refreshed device token",
		Token:   makeUpdate(tr, reply.Body),
	}
}

func makeUpdate(tr tokenResponse, raw []byte) TokenUpdate {
	return TokenUpdate{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresIn:    time.Duration(tr.ExpiresIn) * time.Second,
		Extra:        extraClaims(raw),
	}
}

// extraClaims keeps every string-representable claim of the raw token
// response; provider-specific claims ride along in Token.Extra.
func extraClaims(raw []byte) map[string]string {
	var all map[string]any
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil
	}
	out := make(map[string]string, len(all))
	for k, v := range all {
		switch t := v.(type) {
		case string:
			out[k] = t
		case float64:
			out[k] = fmt.Sprintf("%v", t)
		case bool:
			out[k] = fmt.Sprintf("%v", t)
		}
	}
	return out
}
