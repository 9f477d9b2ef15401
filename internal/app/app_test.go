package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ajanata/wifistation/internal/clock"
	"github.com/ajanata/wifistation/internal/config"
	"github.com/ajanata/wifistation/internal/credentials"
	"github.com/ajanata/wifistation/internal/fetch"
	"github.com/ajanata/wifistation/internal/netstack"
	"github.com/ajanata/wifistation/internal/sim"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"))
}

type led struct {
	on, off atomic.Int32
}

func (l *led) High() { l.on.Add(1) }
func (l *led) Low()  { l.off.Add(1) }

func fastConfig(target string) config.Config {
	cfg := config.Default()
	cfg.SettleDelay = 10 * time.Millisecond
	cfg.PollInterval = 5 * time.Millisecond
	cfg.BlinkInterval = 5 * time.Millisecond
	cfg.RequestTimeout = 5 * time.Second
	cfg.Target = target
	return cfg
}

type harness struct {
	app   *App
	radio *sim.Radio
	stack *sim.Stack
	led   *led

	mu       sync.Mutex
	outcomes []fetch.Outcome
	body     string
	ready    []netstack.AddressInfo
}

func newHarness(t *testing.T, target string, cancel context.CancelFunc) *harness {
	t.Helper()
	c := clock.Real{}
	r := sim.NewRadio(c)
	s := sim.NewStack(r, c)
	s.LinkDelay = 15 * time.Millisecond
	s.AddressDelay = 30 * time.Millisecond

	creds, err := credentials.New("lab", "correct horse")
	require.NoError(t, err)
	client, err := fetch.NewHTTPClient(nil, fetch.Options{})
	require.NoError(t, err)

	h := &harness{radio: r, stack: s, led: &led{}}
	h.app = New(fastConfig(target), Deps{
		Radio:  r,
		Stack:  s,
		Client: client,
		Creds:  creds,
		LED:    h.led,
		Clock:  c,
	})
	h.app.OnReady = func(addr netstack.AddressInfo, _ time.Duration) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.ready = append(h.ready, addr)
	}
	h.app.OnOutcome = func(o fetch.Outcome) {
		h.mu.Lock()
		h.outcomes = append(h.outcomes, o)
		h.body = string(o.Body)
		h.mu.Unlock()
		cancel()
	}
	return h
}

func TestRunFetchesOnceAfterRecovering(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("station online"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	h := newHarness(t, srv.URL, cancel)
	h.radio.FailConnects(sim.ErrNoAccessPoint, sim.ErrNoAccessPoint)

	err := h.app.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	h.mu.Lock()
	defer h.mu.Unlock()
	require.Len(t, h.outcomes, 1)
	assert.Equal(t, fetch.KindSuccess, h.outcomes[0].Kind)
	assert.Equal(t, "station online", h.body)
	require.Len(t, h.ready, 1)
	assert.Equal(t, h.stack.Lease, h.ready[0])

	assert.Equal(t, 3, h.radio.Calls().Connect)
	assert.Zero(t, h.radio.Calls().ConnectWhileConnected)
	assert.Positive(t, h.led.on.Load())
	assert.False(t, h.stack.Running())
}

func TestRunReportsBuildError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	h := newHarness(t, "gopher://nowhere", cancel)

	require.ErrorIs(t, h.app.Run(ctx), context.Canceled)

	h.mu.Lock()
	defer h.mu.Unlock()
	require.Len(t, h.outcomes, 1)
	assert.Equal(t, fetch.KindBuildError, h.outcomes[0].Kind)
	assert.ErrorIs(t, h.outcomes[0].Err, fetch.ErrUnsupportedScheme)
}

func TestRunWithoutNetworkWaitsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	h := newHarness(t, "http://127.0.0.1:1/", cancel)
	h.radio.FailAllConnects(sim.ErrNoAccessPoint)

	require.ErrorIs(t, h.app.Run(ctx), context.DeadlineExceeded)

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Empty(t, h.outcomes)
	assert.Empty(t, h.ready)
	assert.GreaterOrEqual(t, h.radio.Calls().Connect, 2)
}

func TestBlinkLeavesLEDOff(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	l := &led{}
	ctx, cancel := context.WithCancel(context.Background())
	fc.OnSleep = func(time.Duration) {
		if len(fc.Sleeps()) == 5 {
			cancel()
		}
	}

	require.ErrorIs(t, blink(ctx, fc, l, 600*time.Millisecond), context.Canceled)
	assert.Equal(t, int32(3), l.on.Load())
	assert.Equal(t, int32(3), l.off.Load(), "deferred Low after the last High")
	for _, d := range fc.Sleeps() {
		assert.Equal(t, 600*time.Millisecond, d)
	}
}

type brokenStack struct{}

func (brokenStack) IsLinkUp() bool { return false }

func (brokenStack) AddressConfig() (netstack.AddressInfo, bool) {
	return netstack.AddressInfo{}, false
}

func (brokenStack) Run(context.Context) error { panic("lease table corrupt") }

func TestRunReturnsTaskPanic(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c := clock.Real{}
	creds, err := credentials.New("lab", "correct horse")
	require.NoError(t, err)
	client, err := fetch.NewHTTPClient(nil, fetch.Options{})
	require.NoError(t, err)
	var outcomes atomic.Int32
	a := New(fastConfig("http://127.0.0.1:1/"), Deps{
		Radio:  sim.NewRadio(c),
		Stack:  brokenStack{},
		Client: client,
		Creds:  creds,
		Clock:  c,
	})
	a.OnOutcome = func(fetch.Outcome) { outcomes.Add(1) }

	err = a.Run(ctx)
	require.ErrorIs(t, err, ErrTaskPanicked)
	assert.Contains(t, err.Error(), "stack: lease table corrupt")
	assert.Zero(t, outcomes.Load())
}
