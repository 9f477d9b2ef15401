// Package netlinkdev drives a TinyGo netlink/netdev Wi-Fi device (wifinina, rtl8720dn, espat and
// friends) as a radio.Driver and netstack.Stack.
//
// These devices run their own TCP/IP stack on a coprocessor. NetConnect configures, powers up and
// associates in one blocking call bounded by the connect timeout, and DHCP runs on the device.
// Start therefore only marks the radio as started; the real work happens in Connect.
package netlinkdev

import (
	"context"
	"net/netip"
	"sync"
	"time"

	"go.uber.org/zap"
	"tinygo.org/x/drivers/netlink"

	"github.com/ajanata/wifistation/internal/credentials"
	"github.com/ajanata/wifistation/internal/netstack"
	"github.com/ajanata/wifistation/internal/radio"
)

// Linker is the part of netlink.Netlinker used here.
type Linker interface {
	NetConnect(params *netlink.ConnectParams) error
	NetDisconnect()
	NetNotify(cb func(netlink.Event))
}

// Netdev is the part of netdev.Netdever used here.
type Netdev interface {
	Addr() (netip.Addr, error)
	GetHostByName(name string) (netip.Addr, error)
}

// DefaultConnectTimeout matches the drivers' own default.
const DefaultConnectTimeout = 10 * time.Second

type Device struct {
	link    Linker
	dev     Netdev
	timeout time.Duration
	log     *zap.Logger

	mu         sync.Mutex
	params     *netlink.ConnectParams
	started    bool
	state      radio.State
	linkUp     bool
	disconnect chan struct{}
	connect    chan struct{}
}

var (
	_ radio.Driver   = (*Device)(nil)
	_ netstack.Stack = (*Device)(nil)
)

// New wraps the device returned by probe.Probe. connectTimeout bounds each association attempt;
// zero selects DefaultConnectTimeout.
func New(link Linker, dev Netdev, connectTimeout time.Duration, log *zap.Logger) *Device {
	if connectTimeout == 0 {
		connectTimeout = DefaultConnectTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	d := &Device{
		link:       link,
		dev:        dev,
		timeout:    connectTimeout,
		log:        log.Named("netlink"),
		disconnect: make(chan struct{}, 1),
		connect:    make(chan struct{}, 1),
	}
	link.NetNotify(d.notify)
	return d
}

func (d *Device) notify(ev netlink.Event) {
	d.mu.Lock()
	switch ev {
	case netlink.EventNetUp:
		d.linkUp = true
		d.state = radio.StateConnected
		d.mu.Unlock()
		d.log.Debug("net up")
		signal(d.connect)
	case netlink.EventNetDown:
		d.linkUp = false
		d.state = radio.StateDisconnected
		d.mu.Unlock()
		d.log.Debug("net down")
		signal(d.disconnect)
	default:
		d.mu.Unlock()
	}
}

func (d *Device) Capabilities() (radio.Capabilities, error) {
	return radio.CapStation, nil
}

func (d *Device) IsStarted() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.started, nil
}

func (d *Device) SetConfiguration(creds credentials.Credentials) error {
	if !creds.Valid() {
		return credentials.ErrInvalid
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.params = &netlink.ConnectParams{
		ConnectMode:    netlink.ConnectModeSTA,
		Ssid:           creds.SSID(),
		Passphrase:     creds.Passphrase(),
		AuthType:       netlink.AuthTypeWPA2,
		ConnectTimeout: d.timeout,
	}
	return nil
}

func (d *Device) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.params == nil {
		return &radio.DriverError{Op: "start", Err: errNotConfigured}
	}
	d.started = true
	return nil
}

// Connect blocks for up to the connect timeout; ctx is only checked before the attempt.
func (d *Device) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	if d.state == radio.StateConnected {
		d.mu.Unlock()
		return radio.ErrAlreadyConnected
	}
	params := d.params
	if params == nil || !d.started {
		d.mu.Unlock()
		return &radio.DriverError{Op: "connect", Err: errNotStarted}
	}
	d.state = radio.StateConnecting
	d.mu.Unlock()
	drain(d.disconnect)

	if err := d.link.NetConnect(params); err != nil {
		d.mu.Lock()
		d.state = radio.StateDisconnected
		d.linkUp = false
		d.mu.Unlock()
		return &radio.DriverError{Op: "connect", Err: err}
	}

	d.mu.Lock()
	d.state = radio.StateConnected
	d.linkUp = true
	d.mu.Unlock()
	signal(d.connect)
	return nil
}

func (d *Device) WaitForEvent(ctx context.Context, ev radio.Event) error {
	ch := d.disconnect
	if ev == radio.EventStationConnected {
		ch = d.connect
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
		return nil
	}
}

func (d *Device) State() radio.State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Device) IsLinkUp() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.linkUp
}

// AddressConfig reports the device's leased address. The coprocessor does not expose the
// netmask or gateway, so the prefix is a host route and Gateway is unset.
func (d *Device) AddressConfig() (netstack.AddressInfo, bool) {
	if !d.IsLinkUp() {
		return netstack.AddressInfo{}, false
	}
	a, err := d.dev.Addr()
	if err != nil || !a.IsValid() || a.IsUnspecified() {
		return netstack.AddressInfo{}, false
	}
	return netstack.AddressInfo{Address: netip.PrefixFrom(a, a.BitLen())}, true
}

// Run parks until ctx is done and then disassociates. Packets are serviced on the coprocessor,
// so there is nothing to pump here.
func (d *Device) Run(ctx context.Context) error {
	<-ctx.Done()
	d.link.NetDisconnect()
	d.mu.Lock()
	d.state = radio.StateDisconnected
	d.linkUp = false
	d.mu.Unlock()
	return ctx.Err()
}

// LookupHost resolves through the device's own DNS client.
func (d *Device) LookupHost(ctx context.Context, host string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a, err := d.dev.GetHostByName(host)
	if err != nil {
		return nil, err
	}
	return []string{a.String()}, nil
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
