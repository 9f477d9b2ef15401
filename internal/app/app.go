// Package app wires the connectivity tasks together and runs the one request the firmware makes.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ajanata/wifistation/internal/clock"
	"github.com/ajanata/wifistation/internal/config"
	"github.com/ajanata/wifistation/internal/credentials"
	"github.com/ajanata/wifistation/internal/fetch"
	"github.com/ajanata/wifistation/internal/netstack"
	"github.com/ajanata/wifistation/internal/radio"
	"github.com/ajanata/wifistation/internal/supervisor"
)

// ErrTaskPanicked wraps a panic recovered from one of the long-running tasks.
var ErrTaskPanicked = errors.New("task panicked")

// Pin is a digital output. machine.Pin satisfies it.
type Pin interface {
	High()
	Low()
}

// Deps are the long-lived collaborators, constructed once by main and shared by every task.
type Deps struct {
	Radio  radio.Driver
	Stack  netstack.Stack
	Client fetch.Client
	Creds  credentials.Credentials
	// LED is optional; without it there is no heartbeat.
	LED    Pin
	Clock  clock.Clock
	Logger *zap.Logger
}

type App struct {
	cfg  config.Config
	deps Deps
	log  *zap.Logger

	sup    *supervisor.Supervisor
	waiter *netstack.Waiter
	exec   *fetch.Executor

	// OnReady is called once link and address are both up, with the time it took.
	OnReady func(addr netstack.AddressInfo, after time.Duration)
	// OnOutcome is called with the result of the single request.
	OnOutcome func(fetch.Outcome)
}

func New(cfg config.Config, deps Deps) *App {
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	log := deps.Logger

	return &App{
		cfg:  cfg,
		deps: deps,
		log:  log.Named("app"),
		sup: supervisor.New(deps.Radio, deps.Creds,
			supervisor.WithClock(deps.Clock),
			supervisor.WithLogger(log),
			supervisor.WithSettleDelay(cfg.SettleDelay)),
		waiter: netstack.NewWaiter(deps.Stack,
			netstack.WithClock(deps.Clock),
			netstack.WithLogger(log),
			netstack.WithPollInterval(cfg.PollInterval)),
		exec: fetch.NewExecutor(deps.Client,
			fetch.WithLogger(log),
			fetch.WithTimeout(cfg.RequestTimeout)),
	}
}

// Supervisor exposes the connection task so hosts can observe it.
func (a *App) Supervisor() *supervisor.Supervisor {
	return a.sup
}

// Run starts the stack servicing task, the supervisor and the heartbeat, then waits for the
// network and makes one request. It returns only when ctx is done or a task fails; on a device
// that means never.
func (a *App) Run(ctx context.Context) error {
	start := a.deps.Clock.Now()
	g, gctx := errgroup.WithContext(ctx)

	goTask(g, "stack", func() error { return a.deps.Stack.Run(gctx) })
	goTask(g, "supervisor", func() error { return a.sup.Run(gctx) })
	if a.deps.LED != nil {
		goTask(g, "blink", func() error { return blink(gctx, a.deps.Clock, a.deps.LED, a.cfg.BlinkInterval) })
	}
	a.log.Info("tasks started", zap.Int("heap_size", a.cfg.HeapSize))

	if err := a.request(gctx, start); err != nil {
		a.log.Debug("request abandoned", zap.Error(err))
	}
	return g.Wait()
}

func (a *App) request(ctx context.Context, start time.Time) error {
	addr, err := a.waiter.Wait(ctx)
	if err != nil {
		return err
	}
	took := a.deps.Clock.Now().Sub(start)
	a.log.Info("network ready", zap.Stringer("addr", addr), zap.Duration("after", took))
	if a.OnReady != nil {
		a.OnReady(addr, took)
	}

	out := a.exec.Execute(ctx, a.cfg.Method, a.cfg.Target)
	if a.OnOutcome != nil {
		a.OnOutcome(out)
	}
	return nil
}

// goTask runs fn in g. A panic fails the group like any other task error, so it reaches the
// caller of Run instead of killing the process from a goroutine nobody can recover.
func goTask(g *errgroup.Group, name string, fn func() error) {
	g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: %s: %v", ErrTaskPanicked, name, r)
			}
		}()
		return fn()
	})
}
