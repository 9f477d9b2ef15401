// Package supervisor keeps a station-mode radio associated for the life of the process.
//
// The supervisor is a single long-running task. It reacts to the driver's association state
// rather than tracking its own copy, and retries every failure forever at a fixed cadence:
//
//	Idle           -> WaitDisconnect when the driver reports Connected, else EnsureStarted
//	WaitDisconnect -> block on the disconnect event, sleep the settle delay, Idle
//	EnsureStarted  -> configure and start the driver if it is not started, Connect
//	Connect        -> WaitDisconnect on success; sleep the settle delay and Idle on failure
//
// A start or configure failure is handled like a connect failure. Cancelling the context passed
// to Run is the only way out of the loop.
package supervisor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/ajanata/wifistation/internal/clock"
	"github.com/ajanata/wifistation/internal/credentials"
	"github.com/ajanata/wifistation/internal/radio"
)

// DefaultSettleDelay is the wait after a failure or disconnect before the radio is touched again.
const DefaultSettleDelay = 5000 * time.Millisecond

// State is the supervisor's control state, not the radio's association state.
type State uint8

const (
	StateIdle State = iota
	StateWaitDisconnect
	StateEnsureStarted
	StateConnect
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateWaitDisconnect:
		return "WAIT_DISCONNECT"
	case StateEnsureStarted:
		return "ENSURE_STARTED"
	case StateConnect:
		return "CONNECT"
	default:
		return "UNKNOWN"
	}
}

type Option func(*Supervisor)

func WithClock(c clock.Clock) Option {
	return func(s *Supervisor) { s.clock = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Supervisor) {
		if l != nil {
			s.log = l
		}
	}
}

// WithSettleDelay overrides DefaultSettleDelay.
func WithSettleDelay(d time.Duration) Option {
	return func(s *Supervisor) { s.settle = backoff.NewConstantBackOff(d) }
}

type Supervisor struct {
	drv    radio.Driver
	creds  credentials.Credentials
	clock  clock.Clock
	settle backoff.BackOff
	log    *zap.Logger

	mu            sync.RWMutex
	state         State
	onStateChange []func(from, to State)
	onFailure     []func(op string, err error)
}

// New creates a supervisor that owns drv exclusively until Run returns.
func New(drv radio.Driver, creds credentials.Credentials, opts ...Option) *Supervisor {
	s := &Supervisor{
		drv:    drv,
		creds:  creds,
		clock:  clock.Real{},
		settle: backoff.NewConstantBackOff(DefaultSettleDelay),
		log:    zap.NewNop(),
		state:  StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Named("supervisor")
	return s
}

// State returns the current control state.
func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// OnStateChange adds a callback invoked on every transition, from the Run goroutine. Callbacks
// run in registration order.
func (s *Supervisor) OnStateChange(fn func(from, to State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onStateChange = append(s.onStateChange, fn)
}

// OnFailure adds a callback invoked for every absorbed driver failure.
func (s *Supervisor) OnFailure(fn func(op string, err error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFailure = append(s.onFailure, fn)
}

// Run drives the state machine until ctx is done and returns ctx.Err().
func (s *Supervisor) Run(ctx context.Context) error {
	s.log.Info("connection task started", zap.Stringer("credentials", s.creds))
	s.checkCapabilities()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var (
			next State
			err  error
		)
		switch cur := s.State(); cur {
		case StateIdle:
			next = s.idle()
		case StateWaitDisconnect:
			next, err = s.waitDisconnect(ctx)
		case StateEnsureStarted:
			next, err = s.ensureStarted(ctx)
		case StateConnect:
			next, err = s.connect(ctx)
		default:
			panic("supervisor: unknown state " + cur.String())
		}
		if err != nil {
			return err
		}
		s.setState(next)
	}
}

func (s *Supervisor) checkCapabilities() {
	caps, err := s.drv.Capabilities()
	if err != nil {
		s.log.Warn("capability query failed", zap.Error(err))
		return
	}
	s.log.Info("radio capabilities", zap.Stringer("caps", caps))
	if !caps.Has(radio.CapStation) {
		s.log.Error("radio does not report station mode support")
	}
}

func (s *Supervisor) idle() State {
	if s.drv.State() == radio.StateConnected {
		return StateWaitDisconnect
	}
	return StateEnsureStarted
}

func (s *Supervisor) waitDisconnect(ctx context.Context) (State, error) {
	if err := s.drv.WaitForEvent(ctx, radio.EventStationDisconnected); err != nil {
		return StateIdle, err
	}
	s.log.Info("station disconnected")
	return StateIdle, s.clock.Sleep(ctx, s.settle.NextBackOff())
}

func (s *Supervisor) ensureStarted(ctx context.Context) (State, error) {
	started, err := s.drv.IsStarted()
	if err != nil {
		return s.fail(ctx, "is-started", err)
	}
	if started {
		return StateConnect, nil
	}

	if err := s.drv.SetConfiguration(s.creds); err != nil {
		return s.fail(ctx, "configure", err)
	}
	s.log.Info("starting radio")
	if err := s.drv.Start(ctx); err != nil {
		return s.fail(ctx, "start", err)
	}
	s.log.Info("radio started")
	return StateConnect, nil
}

func (s *Supervisor) connect(ctx context.Context) (State, error) {
	// Start may associate on its own.
	if s.drv.State() == radio.StateConnected {
		return StateWaitDisconnect, nil
	}

	s.log.Info("connecting")
	if err := s.drv.Connect(ctx); err != nil {
		return s.fail(ctx, "connect", err)
	}
	s.log.Info("connected")
	return StateWaitDisconnect, nil
}

// fail reports err, sleeps the settle delay and sends the loop back to Idle. The returned error is
// non-nil only when ctx ended during the sleep.
func (s *Supervisor) fail(ctx context.Context, op string, err error) (State, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return StateIdle, ctxErr
	}

	var de *radio.DriverError
	if !errors.As(err, &de) {
		err = &radio.DriverError{Op: op, Err: err}
	}
	delay := s.settle.NextBackOff()
	s.log.Warn("radio operation failed, retrying",
		zap.String("op", op),
		zap.Error(err),
		zap.Duration("retry_in", delay))

	s.mu.RLock()
	onFailure := s.onFailure
	s.mu.RUnlock()
	for _, fn := range onFailure {
		fn(op, err)
	}

	return StateIdle, s.clock.Sleep(ctx, delay)
}

func (s *Supervisor) setState(next State) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	onStateChange := s.onStateChange
	s.mu.Unlock()

	if prev == next {
		return
	}
	s.log.Debug("state change", zap.Stringer("from", prev), zap.Stringer("to", next))
	for _, fn := range onStateChange {
		fn(prev, next)
	}
}
