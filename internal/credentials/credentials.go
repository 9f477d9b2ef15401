// Package credentials holds the station-mode network name and passphrase the firmware joins with.
package credentials

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// Limits of the radio driver's fixed-size string fields, in bytes.
const (
	MaxSSIDLen       = 32
	MaxPassphraseLen = 64
)

// ErrInvalid is wrapped by every validation failure. It is a configuration error: the firmware
// cannot recover from it at runtime.
var ErrInvalid = errors.New("invalid credentials")

// Credentials are immutable once constructed; the zero value is not valid.
type Credentials struct {
	ssid       string
	passphrase string
}

// New validates ssid and passphrase. Values that would not fit the driver's fields are rejected
// rather than truncated.
func New(ssid, passphrase string) (Credentials, error) {
	if err := check("ssid", ssid, MaxSSIDLen); err != nil {
		return Credentials{}, err
	}
	if err := check("passphrase", passphrase, MaxPassphraseLen); err != nil {
		return Credentials{}, err
	}
	return Credentials{ssid: ssid, passphrase: passphrase}, nil
}

func check(field, v string, max int) error {
	switch {
	case v == "":
		return fmt.Errorf("%w: %s is empty", ErrInvalid, field)
	case len(v) > max:
		return fmt.Errorf("%w: %s is %d bytes, limit is %d", ErrInvalid, field, len(v), max)
	case !utf8.ValidString(v):
		return fmt.Errorf("%w: %s is not valid UTF-8", ErrInvalid, field)
	}
	return nil
}

func (c Credentials) SSID() string       { return c.ssid }
func (c Credentials) Passphrase() string { return c.passphrase }

// Valid reports whether c came from a successful New.
func (c Credentials) Valid() bool {
	return c.ssid != "" && c.passphrase != ""
}

// String never includes the passphrase.
func (c Credentials) String() string {
	return fmt.Sprintf("ssid=%q passphrase=<%d bytes>", c.ssid, len(c.passphrase))
}
