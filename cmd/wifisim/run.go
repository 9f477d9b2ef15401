package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ajanata/wifistation/internal/app"
	"github.com/ajanata/wifistation/internal/clock"
	"github.com/ajanata/wifistation/internal/credentials"
	"github.com/ajanata/wifistation/internal/fetch"
	"github.com/ajanata/wifistation/internal/logging"
	"github.com/ajanata/wifistation/internal/metrics"
	"github.com/ajanata/wifistation/internal/netstack"
	"github.com/ajanata/wifistation/internal/sim"
)

type runOptions struct {
	target       string
	logLevel     string
	ssid         string
	passphrase   string
	failConnects int
	dropAfter    time.Duration
	linkDelay    time.Duration
	addressDelay time.Duration
	metricsAddr  string
	once         bool
}

func newRunCmd() *cobra.Command {
	var o runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Join the simulated network and make the configured request",
		Long: `Runs the connection supervisor, readiness waiter and request executor against a
simulated radio. The radio can be told to reject the first connects or to lose the
link after a while, to watch the supervisor recover.

With --once (the default) the command exits after the request and fails when the
request did not complete.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSim(cmd, o)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.target, "target", "", "request target, overriding the config")
	f.StringVar(&o.logLevel, "log-level", "", "log level, overriding the config")
	f.StringVar(&o.ssid, "ssid", "wifisim", "network name")
	f.StringVar(&o.passphrase, "passphrase", "wifisim-passphrase", "network passphrase")
	f.IntVar(&o.failConnects, "fail-connects", 0, "reject this many connect attempts first")
	f.DurationVar(&o.dropAfter, "drop-after", 0, "lose the link once, this long after the network is ready")
	f.DurationVar(&o.linkDelay, "link-delay", 50*time.Millisecond, "time from association to link up")
	f.DurationVar(&o.addressDelay, "address-delay", 200*time.Millisecond, "time from association to DHCP lease")
	f.StringVar(&o.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	f.BoolVar(&o.once, "once", true, "exit after the request")
	return cmd
}

func runSim(cmd *cobra.Command, o runOptions) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if o.target != "" {
		cfg.Target = o.target
	}
	if o.logLevel != "" {
		if cfg.LogLevel, err = zapcore.ParseLevel(o.logLevel); err != nil {
			return err
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	creds, err := credentials.New(o.ssid, o.passphrase)
	if err != nil {
		return err
	}

	log := logging.New(cfg.LogLevel, zapcore.AddSync(cmd.ErrOrStderr()))
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	clk := clock.Real{}
	r := sim.NewRadio(clk)
	for i := 0; i < o.failConnects; i++ {
		r.FailConnects(sim.ErrNoAccessPoint)
	}
	stack := sim.NewStack(r, clk)
	stack.LinkDelay = o.linkDelay
	stack.AddressDelay = o.addressDelay

	client, err := fetch.NewHTTPClient(nil, fetch.Options{DialTimeout: 10 * time.Second})
	if err != nil {
		return err
	}

	a := app.New(cfg, app.Deps{
		Radio:  r,
		Stack:  stack,
		Client: client,
		Creds:  creds,
		Clock:  clk,
		Logger: log,
	})

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	if err != nil {
		return err
	}
	m.Attach(a.Supervisor())
	if o.metricsAddr != "" {
		srv, err := serveMetrics(o.metricsAddr, reg, log)
		if err != nil {
			return err
		}
		defer func() { _ = srv.Close() }()
	}

	a.OnReady = func(addr netstack.AddressInfo, after time.Duration) {
		m.Ready(after)
		if o.dropAfter > 0 {
			time.AfterFunc(o.dropAfter, func() {
				log.Info("dropping link")
				r.DropLink()
			})
		}
	}
	var outcome *fetch.Outcome
	a.OnOutcome = func(out fetch.Outcome) {
		m.Outcome(out)
		outcome = &out
		if o.once {
			cancel()
		}
	}

	err = a.Run(ctx)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if err != nil {
		return err
	}
	if outcome == nil {
		return errors.New("interrupted before the request was made")
	}
	return report(cmd, *outcome)
}

func report(cmd *cobra.Command, out fetch.Outcome) error {
	w := cmd.OutOrStdout()
	if !out.OK() {
		return fmt.Errorf("request %s: %s: %w", out.ID, out.Kind, out.Err)
	}
	resp := out.Response
	fmt.Fprintf(w, "%s %d %s, %d bytes", resp.Proto, resp.Status, http.StatusText(resp.Status), resp.N)
	if resp.Truncated {
		fmt.Fprint(w, " (truncated)")
	}
	fmt.Fprintln(w)
	_, err := w.Write(out.Body)
	return err
}

func serveMetrics(addr string, reg *prometheus.Registry, log *zap.Logger) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listen: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("metrics server", zap.Error(err))
		}
	}()
	log.Info("serving metrics", zap.Stringer("addr", ln.Addr()))
	return srv, nil
}
