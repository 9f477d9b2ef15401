package sim

import (
	"context"
	"net/netip"
	"sync/atomic"
	"time"

	"github.com/ajanata/wifistation/internal/clock"
	"github.com/ajanata/wifistation/internal/netstack"
)

// Stack follows a Radio: the link comes up LinkDelay after association and the DHCP lease
// arrives AddressDelay after association. Nothing comes up while Run is not servicing.
type Stack struct {
	radio *Radio
	clock clock.Clock

	LinkDelay    time.Duration
	AddressDelay time.Duration
	Lease        netstack.AddressInfo

	running atomic.Bool
}

var _ netstack.Stack = (*Stack)(nil)

func NewStack(r *Radio, c clock.Clock) *Stack {
	return &Stack{
		radio: r,
		clock: c,
		Lease: netstack.AddressInfo{
			Address: netip.MustParsePrefix("192.168.4.23/24"),
			Gateway: netip.MustParseAddr("192.168.4.1"),
			DNS:     []netip.Addr{netip.MustParseAddr("192.168.4.1")},
		},
	}
}

func (s *Stack) IsLinkUp() bool {
	return s.upFor(s.LinkDelay)
}

func (s *Stack) AddressConfig() (netstack.AddressInfo, bool) {
	if !s.IsLinkUp() || !s.upFor(s.AddressDelay) {
		return netstack.AddressInfo{}, false
	}
	return s.Lease, true
}

// Running reports whether Run is servicing.
func (s *Stack) Running() bool {
	return s.running.Load()
}

func (s *Stack) Run(ctx context.Context) error {
	s.running.Store(true)
	defer s.running.Store(false)
	<-ctx.Done()
	return ctx.Err()
}

func (s *Stack) upFor(d time.Duration) bool {
	if !s.running.Load() {
		return false
	}
	at, ok := s.radio.ConnectedAt()
	return ok && !s.clock.Now().Before(at.Add(d))
}
