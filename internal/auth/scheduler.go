package auth

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Refreshes are spaced out so a large account list never hammers the
// identity providers; the whole list is rescanned periodically.
const (
	defaultRefreshSpacing = 20 * time.Second
	defaultRescanInterval = time.Hour
)

// Scheduler keeps stored accounts fresh in the background. It runs at most
// one refresh flow at a time, walking a queue that explicit requests can jump
// to the front of. The default account always gets scanned first.
type Scheduler struct {
	list *AccountList
	env  Env
	log  *zap.Logger

	// injectable for tests
	spacing time.Duration
	rescan  time.Duration
	now     func() time.Time

	// AfterRefresh, when set, runs on the scheduler goroutine after every
	// completed refresh. The list wires its autosave here.
	AfterRefresh func(account *MinecraftAccount, state TaskState)

	mu     sync.Mutex
	queue  []string
	wake   chan struct{}
	urgent chan struct{}
}

// NewScheduler creates a scheduler over the given list. Call Run to start it.
func NewScheduler(list *AccountList, env Env) *Scheduler {
	return &Scheduler{
		list:    list,
		env:     env,
		log:     env.logger(),
		spacing: defaultRefreshSpacing,
		rescan:  defaultRescanInterval,
		now:     time.Now,
		wake:    make(chan struct{}, 1),
		urgent:  make(chan struct{}, 1),
	}
}

// RequestRefresh puts the account at the front of the queue and wakes the
// worker immediately, skipping any spacing delay in progress.
func (s *Scheduler) RequestRefresh(internalID string) {
	s.mu.Lock()
	s.removeLocked(internalID)
	s.queue = append([]string{internalID}, s.queue...)
	s.mu.Unlock()
	signal(s.urgent)
	signal(s.wake)
}

// QueueRefresh appends the account to the queue unless it is already there.
func (s *Scheduler) QueueRefresh(internalID string) {
	s.mu.Lock()
	queued := false
	for _, id := range s.queue {
		if id == internalID {
			queued = true
			break
		}
	}
	if !queued {
		s.queue = append(s.queue, internalID)
	}
	s.mu.Unlock()
	signal(s.wake)
}

func (s *Scheduler) removeLocked(internalID string) {
	for i, id := range s.queue {
		if id == internalID {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return
		}
	}
}

func (s *Scheduler) pop() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return "", false
	}
	id := s.queue[0]
	s.queue = s.queue[1:]
	return id, true
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Run is the worker loop. It blocks until ctx is canceled and is meant to be
// started as a goroutine.
func (s *Scheduler) Run(ctx context.Context) {
	s.scan()
	rescan := time.NewTimer(s.rescan)
	defer rescan.Stop()

	for {
		if id, ok := s.pop(); ok {
			s.refreshOne(ctx, id)
			if ctx.Err() != nil {
				return
			}
			// Space out consecutive refreshes; an explicit request cuts
			// the wait short.
			spacing := time.NewTimer(s.spacing)
			select {
			case <-ctx.Done():
				spacing.Stop()
				return
			case <-s.urgent:
				spacing.Stop()
			case <-spacing.C:
			}
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		case <-rescan.C:
			s.scan()
			rescan.Reset(s.rescan)
		}
	}
}

// scan queues every account that is due for a refresh, default account
// first.
func (s *Scheduler) scan() {
	now := s.now()
	def := s.list.DefaultAccount()
	queued := 0
	if def != nil && def.ShouldRefresh(now) {
		s.QueueRefresh(def.InternalID())
		queued++
	}
	for _, a := range s.list.Accounts() {
		if a != def && a.ShouldRefresh(now) {
			s.QueueRefresh(a.InternalID())
			queued++
		}
	}
	if queued > 0 {
		s.log.Debug("refresh scan queued accounts", zap.Int("count", queued))
	}
}

func (s *Scheduler) refreshOne(ctx context.Context, internalID string) {
	var account *MinecraftAccount
	for _, a := range s.list.Accounts() {
		if a.InternalID() == internalID {
			account = a
			break
		}
	}
	if account == nil {
		return
	}
	// The account may have been taken into use or refreshed by hand while
	// it waited in the queue.
	if !account.ShouldRefresh(s.now()) {
		return
	}

	flow, err := account.Refresh(s.env, nil)
	if err != nil {
		s.log.Debug("skipping refresh, account is busy", zap.String("account", account.DisplayString()))
		return
	}
	state := flow.Run(ctx)
	switch state {
	case StateSucceeded:
		s.log.Info("refreshed account", zap.String("account", account.DisplayString()))
	case StateFailedGone:
		s.log.Warn("account no longer exists upstream", zap.String("account", account.DisplayString()))
	default:
		_, msg := account.State()
		s.log.Warn("account refresh did not succeed",
			zap.String("account", account.DisplayString()),
			zap.Stringer("state", state),
			zap.String("error", msg))
	}
	if s.AfterRefresh != nil {
		s.AfterRefresh(account, state)
	}
}
