//go:build pyportal || nano_rp2040 || metro_m4_airlift || arduino_mkrwifi1010

package main

import (
	"machine"
	"time"
)

// Boards with a NINA coprocessor and no display: logs go to the serial console only.
func main() {
	// wait a bit for serial
	time.Sleep(2 * time.Second)
	blink()
	run(board{led: machine.LED})
}
