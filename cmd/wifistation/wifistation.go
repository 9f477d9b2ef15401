//go:build tinygo

package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"machine"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"tinygo.org/x/drivers/netlink/probe"

	"github.com/ajanata/wifistation/internal/app"
	"github.com/ajanata/wifistation/internal/config"
	"github.com/ajanata/wifistation/internal/credentials"
	"github.com/ajanata/wifistation/internal/fetch"
	"github.com/ajanata/wifistation/internal/logging"
	"github.com/ajanata/wifistation/internal/netlinkdev"
)

//go:embed config.yaml
var configYAML []byte

// board is what a per-board main hands to run.
type board struct {
	led machine.Pin
	// display is optional; log lines are mirrored to it in compact form.
	display logging.Printer
}

func blink() {
	led := machine.LED
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})
	led.High()
	time.Sleep(100 * time.Millisecond)
	led.Low()
	time.Sleep(100 * time.Millisecond)
}

// earlyPanic never returns: there is nothing to restart us.
func earlyPanic(err error) {
	for i := 0; ; i++ {
		blink()
		if i%5 == 0 {
			println(err.Error())
		}
	}
}

func run(b board) {
	defer func() {
		if r := recover(); r != nil {
			earlyPanic(fmt.Errorf("panic: %v", r))
		}
	}()

	cfg, err := config.Load(configYAML)
	if err != nil {
		earlyPanic(err)
	}
	creds, err := credentials.New(strings.TrimSpace(wifiSSID), strings.TrimSpace(wifiPassword))
	if err != nil {
		earlyPanic(err)
	}

	log := logging.New(cfg.LogLevel)
	if b.display != nil {
		screen := logging.Compact(cfg.LogLevel, logging.ConsoleSink{P: b.display})
		log = zap.New(zapcore.NewTee(log.Core(), screen.Core()))
	}
	log.Info("booting", zap.Stringer("wifi", creds), zap.String("target", cfg.Target))

	link, dev := probe.Probe()
	radio := netlinkdev.New(link, dev, 0, log)
	client, err := fetch.NewHTTPClient(radio, fetch.Options{DialTimeout: 10 * time.Second})
	if err != nil {
		earlyPanic(err)
	}

	b.led.Configure(machine.PinConfig{Mode: machine.PinOutput})
	a := app.New(cfg, app.Deps{
		Radio:  radio,
		Stack:  radio,
		Client: client,
		Creds:  creds,
		LED:    b.led,
		Logger: log,
	})
	a.OnOutcome = func(o fetch.Outcome) {
		if o.OK() {
			println(string(o.Body))
		}
	}

	err = a.Run(context.Background())
	if err == nil {
		err = errors.New("tasks exited")
	}
	earlyPanic(err)
}
