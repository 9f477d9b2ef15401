// Package netstack describes the IP stack bound to the radio and waits for it to become usable.
package netstack

import (
	"context"
	"net/netip"
)

// AddressInfo is a leased IPv4 configuration.
type AddressInfo struct {
	Address netip.Prefix
	Gateway netip.Addr
	DNS     []netip.Addr
}

func (a AddressInfo) String() string {
	s := a.Address.String()
	if a.Gateway.IsValid() {
		s += " via " + a.Gateway.String()
	}
	return s
}

// Stack status accessors are safe to call from any goroutine while Run is servicing packets.
//
// Run must be started once at boot and kept running: connect operations and request I/O both
// stall while it is not scheduled.
type Stack interface {
	IsLinkUp() bool
	AddressConfig() (AddressInfo, bool)
	Run(ctx context.Context) error
}
