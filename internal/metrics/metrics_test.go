package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajanata/wifistation/internal/clock"
	"github.com/ajanata/wifistation/internal/credentials"
	"github.com/ajanata/wifistation/internal/fetch"
	"github.com/ajanata/wifistation/internal/sim"
	"github.com/ajanata/wifistation/internal/supervisor"
)

func TestSupervisorCounters(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	fc := clock.NewFake(time.Unix(0, 0))
	r := sim.NewRadio(fc)
	r.FailAllConnects(sim.ErrNoAccessPoint)
	creds, err := credentials.New("lab", "correct horse")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fc.OnSleep = func(time.Duration) {
		if len(fc.Sleeps()) == 2 {
			cancel()
		}
	}

	s := supervisor.New(r, creds, supervisor.WithClock(fc))
	var failures, transitions int
	s.OnFailure(func(string, error) { failures++ })
	s.OnStateChange(func(_, _ supervisor.State) { transitions++ })
	m.Attach(s)
	require.ErrorIs(t, s.Run(ctx), context.Canceled)

	// earlier subscribers keep firing alongside the counters
	assert.Equal(t, 2, failures)
	assert.Positive(t, transitions)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.connectFailures.WithLabelValues("connect")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.transitions.WithLabelValues("IDLE", "ENSURE_STARTED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("CONNECT", "IDLE")))
}

func TestOutcomeAndReady(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.Outcome(fetch.Outcome{Kind: fetch.KindSuccess})
	m.Outcome(fetch.Outcome{Kind: fetch.KindBuildError})
	m.Outcome(fetch.Outcome{Kind: fetch.KindSuccess})
	m.Ready(1500 * time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.outcomes.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outcomes.WithLabelValues("build_error")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.readySeconds))
}

func TestDoubleRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	assert.Error(t, err)
}
