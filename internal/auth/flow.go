package auth

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/quasar/craftauth/internal/oauth"
)

// Observer receives progress events for UI display. Implementations must be
// safe to call from the flow's goroutine.
type Observer interface {
	// AuthStateChanged fires on every step transition and once with the
	// terminal flow state.
	AuthStateChanged(state TaskState, message string)
	// AuthorizeWithBrowser surfaces the device-code verification details.
	AuthorizeWithBrowser(v oauth.Verification)
}

// Flow runs an ordered list of steps against one account. Exactly one flow
// may be bound to an account at a time; MinecraftAccount enforces that.
type Flow struct {
	data     *AccountData
	steps    []Step
	observer Observer
	log      *zap.Logger

	mu      sync.Mutex
	state   TaskState
	message string
	cancel  context.CancelFunc
	aborted bool
}

func newFlow(env Env, data *AccountData, observer Observer, steps []Step) *Flow {
	return &Flow{
		data:     data,
		steps:    steps,
		observer: observer,
		log:      env.logger(),
		state:    StateCreated,
	}
}

// NewLoginFlow builds the interactive MSA device-code login chain.
func NewLoginFlow(env Env, data *AccountData, observer Observer) *Flow {
	f := newFlow(env, data, observer, nil)
	surface := func(v oauth.Verification) {
		if observer != nil {
			observer.AuthorizeWithBrowser(v)
		}
	}
	f.steps = []Step{
		&MSADeviceCodeStep{Env: env, Surface: surface},
		&XboxUserStep{Env: env},
		xstsPair(env),
		&LauncherLoginStep{Env: env},
		&XboxProfileStep{Env: env},
		&EntitlementsStep{Env: env},
		&MinecraftProfileStep{Env: env},
		&GetSkinStep{Env: env},
	}
	return f
}

// NewRefreshFlow builds the silent MSA refresh chain.
func NewRefreshFlow(env Env, data *AccountData, observer Observer) *Flow {
	return newFlow(env, data, observer, []Step{
		&MSASilentStep{Env: env},
		&XboxUserStep{Env: env},
		xstsPair(env),
		&LauncherLoginStep{Env: env},
		&XboxProfileStep{Env: env},
		&EntitlementsStep{Env: env},
		&MinecraftProfileStep{Env: env},
		&GetSkinStep{Env: env},
	})
}

// NewOfflineFlow builds the local-profile chain for an offline username.
func NewOfflineFlow(env Env, data *AccountData, observer Observer, username string) *Flow {
	return newFlow(env, data, observer, []Step{
		&OfflineStep{Username: username},
	})
}

// xstsPair issues the two XSTS authorizations concurrently; both must
// succeed before the flow proceeds.
func xstsPair(env Env) Step {
	return &concurrentPair{
		a: &XboxAuthorizationStep{
			Env:          env,
			RelyingParty: "http://xboxlive.com",
			Kind:         "Xbox",
			Assign:       func(d *AccountData) *Token { return &d.XboxAPIToken },
		},
		b: &XboxAuthorizationStep{
			Env:          env,
			RelyingParty: "rp://api.minecraftservices.com/",
			Kind:         "Mojang",
			Assign:       func(d *AccountData) *Token { return &d.MojangServicesToken },
		},
	}
}

// concurrentPair runs two steps at once and joins on both. A terminal
// outcome from either cancels the sibling and becomes the pair's outcome.
type concurrentPair struct {
	a, b Step
}

func (p *concurrentPair) Describe() string {
	return p.a.Describe() + " " + p.b.Describe()
}

func (p *concurrentPair) Perform(ctx context.Context, d *AccountData) StepResult {
	var (
		mu    sync.Mutex
		worst StepResult
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, step := range []Step{p.a, p.b} {
		step := step
		g.Go(func() error {
			res := step.Perform(gctx, d)
			if res.State == StateWorking {
				return nil
			}
			mu.Lock()
			if !worst.State.Terminal() || severity(res.State) > severity(worst.State) {
				worst = res
			}
			mu.Unlock()
			return context.Canceled
		})
	}
	if err := g.Wait(); err != nil {
		mu.Lock()
		defer mu.Unlock()
		if worst.State.Terminal() {
			return worst
		}
		return failedHard("aborted")
	}
	return working("got both authorizations")
}

// severity orders terminal states so the pair reports the stronger failure.
func severity(s TaskState) int {
	switch s {
	case StateFailedGone:
		return 5
	case StateFailedHard:
		return 4
	case StateDisabled:
		return 3
	case StateFailedSoft:
		return 2
	case StateOffline:
		return 1
	default:
		return 0
	}
}

// State returns the flow's current state and message.
func (f *Flow) State() (TaskState, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state, f.message
}

// Abort stops the flow. It is idempotent and safe to call at any point;
// aborting a flow that has not started leaves the account data untouched.
func (f *Flow) Abort() {
	f.mu.Lock()
	f.aborted = true
	cancel := f.cancel
	f.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (f *Flow) setState(state TaskState, message string) {
	f.mu.Lock()
	f.state = state
	f.message = message
	f.mu.Unlock()
	if f.observer != nil {
		f.observer.AuthStateChanged(state, message)
	}
}

// Run drives the steps in order and returns the flow's terminal state. A
// step's Working outcome advances the queue; any terminal outcome stops it
// and becomes the flow's own result.
func (f *Flow) Run(ctx context.Context) TaskState {
	f.mu.Lock()
	if f.aborted {
		f.state = StateFailedHard
		f.message = "aborted"
		f.mu.Unlock()
		return StateFailedHard
	}
	ctx, f.cancel = context.WithCancel(ctx)
	f.mu.Unlock()
	defer f.cancel()

	f.data.State = Working
	f.setState(StateWorking, "initializing")

	for _, step := range f.steps {
		f.log.Debug("running auth step", zap.String("step", step.Describe()))
		f.setState(StateWorking, step.Describe())

		res := step.Perform(ctx, f.data)
		if ctx.Err() != nil && f.isAborted() {
			f.finish(StateFailedHard, "aborted")
			return StateFailedHard
		}
		if res.State.Terminal() {
			f.finish(res.State, res.Message)
			return res.State
		}
		f.log.Debug("auth step finished", zap.String("step", step.Describe()), zap.String("message", res.Message))
	}

	f.finish(StateSucceeded, "finished all authentication steps")
	return StateSucceeded
}

func (f *Flow) isAborted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.aborted
}

// finish applies the terminal state to the account data: success commits
// validity, hard failures wipe credentials, soft ones leave prior state.
func (f *Flow) finish(state TaskState, message string) {
	d := f.data
	d.LastError = ""
	switch state {
	case StateSucceeded:
		d.Validity = d.Profile.Validity
		d.State = Online
	case StateOffline:
		d.State = AccountOffline
		d.LastError = message
	case StateDisabled:
		d.State = Disabled
		d.LastError = message
	case StateFailedSoft:
		d.State = Errored
		d.LastError = message
	case StateFailedHard:
		d.Invalidate()
		d.State = Expired
		d.LastError = message
	case StateFailedGone:
		d.Invalidate()
		d.State = Gone
		d.LastError = message
	}
	f.log.Info("auth flow finished",
		zap.Stringer("state", state),
		zap.String("message", message),
		zap.String("profile", d.ProfileName()))
	f.setState(state, message)
}
