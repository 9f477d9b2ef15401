// Package radio describes the Wi-Fi radio driver the connectivity supervisor drives.
package radio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ajanata/wifistation/internal/credentials"
)

// State is the driver-reported association state. It is owned by the driver; callers only observe it.
type State uint8

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	default:
		return "UNKNOWN"
	}
}

// Event is a notification kind that can be waited on.
type Event uint8

const (
	EventStationConnected Event = iota
	EventStationDisconnected
)

func (e Event) String() string {
	switch e {
	case EventStationConnected:
		return "STA_CONNECTED"
	case EventStationDisconnected:
		return "STA_DISCONNECTED"
	default:
		return "UNKNOWN"
	}
}

// Capabilities is a set of radio operating modes.
type Capabilities uint8

const (
	CapStation Capabilities = 1 << iota
	CapAccessPoint
)

// Has reports whether all of want are present.
func (c Capabilities) Has(want Capabilities) bool {
	return c&want == want
}

func (c Capabilities) String() string {
	var modes []string
	if c.Has(CapStation) {
		modes = append(modes, "station")
	}
	if c.Has(CapAccessPoint) {
		modes = append(modes, "access-point")
	}
	return "{" + strings.Join(modes, ",") + "}"
}

// ErrAlreadyConnected is returned by Connect when the driver is already associated.
var ErrAlreadyConnected = errors.New("radio: already connected")

// DriverError is a start/connect/configure failure. The supervisor absorbs these and retries.
type DriverError struct {
	Op  string
	Err error
}

func (e *DriverError) Error() string {
	return fmt.Sprintf("radio %s: %v", e.Op, e.Err)
}

func (e *DriverError) Unwrap() error { return e.Err }

// Driver is the station-mode radio. Start and Connect may block until the radio acknowledges;
// WaitForEvent blocks with no timeout until the event fires or ctx is done.
type Driver interface {
	Capabilities() (Capabilities, error)
	IsStarted() (bool, error)
	SetConfiguration(creds credentials.Credentials) error
	Start(ctx context.Context) error
	Connect(ctx context.Context) error
	WaitForEvent(ctx context.Context, ev Event) error
	State() State
}
