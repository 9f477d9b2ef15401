package netstack

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ajanata/wifistation/internal/clock"
)

// DefaultPollInterval is the cadence at which link and address status are re-checked.
const DefaultPollInterval = 500 * time.Millisecond

type WaiterOption func(*Waiter)

func WithPollInterval(d time.Duration) WaiterOption {
	return func(w *Waiter) { w.interval = d }
}

func WithClock(c clock.Clock) WaiterOption {
	return func(w *Waiter) { w.clock = c }
}

func WithLogger(l *zap.Logger) WaiterOption {
	return func(w *Waiter) {
		if l != nil {
			w.log = l
		}
	}
}

// Waiter blocks until a Stack has both link and address. It keeps no state between calls.
type Waiter struct {
	stack    Stack
	clock    clock.Clock
	interval time.Duration
	log      *zap.Logger
}

func NewWaiter(s Stack, opts ...WaiterOption) *Waiter {
	w := &Waiter{
		stack:    s,
		clock:    clock.Real{},
		interval: DefaultPollInterval,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.log = w.log.Named("netstack")
	return w
}

// Wait polls for link up, then for an assigned address. It returns only while both hold; if the
// link drops while waiting for the address, it starts over. There is no timeout: the only way to
// stop waiting on an unreachable network is to cancel ctx.
func (w *Waiter) Wait(ctx context.Context) (AddressInfo, error) {
	for {
		if err := w.poll(ctx, "link", w.stack.IsLinkUp); err != nil {
			return AddressInfo{}, err
		}
		w.log.Info("link is up")

		var info AddressInfo
		err := w.poll(ctx, "address", func() bool {
			var ok bool
			info, ok = w.stack.AddressConfig()
			return ok
		})
		if err != nil {
			return AddressInfo{}, err
		}

		if w.stack.IsLinkUp() {
			w.log.Info("got address", zap.Stringer("addr", info))
			return info, nil
		}
		w.log.Warn("link dropped while waiting for address")
	}
}

func (w *Waiter) poll(ctx context.Context, what string, ready func() bool) error {
	for !ready() {
		w.log.Debug("waiting", zap.String("for", what), zap.Duration("poll", w.interval))
		if err := w.clock.Sleep(ctx, w.interval); err != nil {
			return err
		}
	}
	return nil
}
