// Package sim provides an in-memory radio and network stack that behave like the real driver
// pair, for the host simulator and for tests.
package sim

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ajanata/wifistation/internal/clock"
	"github.com/ajanata/wifistation/internal/credentials"
	"github.com/ajanata/wifistation/internal/radio"
)

var (
	ErrNotStarted     = errors.New("sim: radio not started")
	ErrNotConfigured  = errors.New("sim: radio not configured")
	ErrNoAccessPoint  = errors.New("sim: access point not found")
	errBadCredentials = errors.New("sim: invalid credentials")
)

// Calls counts driver operations.
type Calls struct {
	SetConfiguration int
	Start            int
	Connect          int
	// ConnectWhileConnected counts Connect calls made while the radio was associated.
	ConnectWhileConnected int
}

// Radio is a scriptable radio.Driver. Connect succeeds unless a failure has been queued with
// FailConnects or set with FailAllConnects.
type Radio struct {
	clock clock.Clock

	mu          sync.Mutex
	caps        radio.Capabilities
	state       radio.State
	started     bool
	creds       credentials.Credentials
	startErrs   []error
	connectErrs []error
	connectErr  error
	connectedAt time.Time
	calls       Calls
	onChange    []func(radio.State)

	up   chan struct{}
	down chan struct{}
}

var _ radio.Driver = (*Radio)(nil)

func NewRadio(c clock.Clock) *Radio {
	return &Radio{
		clock: c,
		caps:  radio.CapStation | radio.CapAccessPoint,
		up:    make(chan struct{}, 1),
		down:  make(chan struct{}, 1),
	}
}

// FailStarts queues errors returned by the next Start calls, one per call.
func (r *Radio) FailStarts(errs ...error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.startErrs = append(r.startErrs, errs...)
}

// FailConnects queues errors returned by the next Connect calls, one per call.
func (r *Radio) FailConnects(errs ...error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectErrs = append(r.connectErrs, errs...)
}

// FailAllConnects makes every Connect without a queued error fail with err. A nil err clears it.
func (r *Radio) FailAllConnects(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectErr = err
}

// SetCapabilities replaces the reported capability set.
func (r *Radio) SetCapabilities(c radio.Capabilities) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.caps = c
}

// DropLink simulates the access point going away.
func (r *Radio) DropLink() {
	r.mu.Lock()
	if r.state != radio.StateConnected {
		r.mu.Unlock()
		return
	}
	r.setStateLocked(radio.StateDisconnected)
	r.mu.Unlock()
	signal(r.down)
}

// OnStateChange registers fn to be called after every association change. fn runs with the
// radio locked and must not call back into it.
func (r *Radio) OnStateChange(fn func(radio.State)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = append(r.onChange, fn)
}

func (r *Radio) Calls() Calls {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// ConnectedAt returns when the current association was made.
func (r *Radio) ConnectedAt() (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connectedAt, r.state == radio.StateConnected
}

func (r *Radio) Capabilities() (radio.Capabilities, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.caps, nil
}

func (r *Radio) IsStarted() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started, nil
}

func (r *Radio) SetConfiguration(creds credentials.Credentials) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls.SetConfiguration++
	if !creds.Valid() {
		return errBadCredentials
	}
	r.creds = creds
	return nil
}

func (r *Radio) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls.Start++
	if !r.creds.Valid() {
		return ErrNotConfigured
	}
	if len(r.startErrs) > 0 {
		err := r.startErrs[0]
		r.startErrs = r.startErrs[1:]
		return err
	}
	r.started = true
	return nil
}

func (r *Radio) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	r.calls.Connect++
	switch {
	case r.state == radio.StateConnected:
		r.calls.ConnectWhileConnected++
		r.mu.Unlock()
		return radio.ErrAlreadyConnected
	case !r.started:
		r.mu.Unlock()
		return ErrNotStarted
	}

	r.setStateLocked(radio.StateConnecting)
	err := r.connectErr
	if len(r.connectErrs) > 0 {
		err = r.connectErrs[0]
		r.connectErrs = r.connectErrs[1:]
	}
	if err != nil {
		r.setStateLocked(radio.StateDisconnected)
		r.mu.Unlock()
		return err
	}

	drain(r.down)
	r.connectedAt = r.clock.Now()
	r.setStateLocked(radio.StateConnected)
	r.mu.Unlock()
	signal(r.up)
	return nil
}

func (r *Radio) WaitForEvent(ctx context.Context, ev radio.Event) error {
	ch := r.down
	if ev == radio.EventStationConnected {
		ch = r.up
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
		return nil
	}
}

func (r *Radio) State() radio.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Radio) setStateLocked(s radio.State) {
	if r.state == s {
		return
	}
	r.state = s
	for _, fn := range r.onChange {
		fn(s)
	}
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func drain(ch chan struct{}) {
	select {
	case <-ch:
	default:
	}
}
