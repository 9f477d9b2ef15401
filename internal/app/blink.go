package app

import (
	"context"
	"time"

	"github.com/ajanata/wifistation/internal/clock"
)

// blink toggles led every interval and leaves it off when ctx ends.
func blink(ctx context.Context, c clock.Clock, led Pin, interval time.Duration) error {
	defer led.Low()
	for {
		led.High()
		if err := c.Sleep(ctx, interval); err != nil {
			return err
		}
		led.Low()
		if err := c.Sleep(ctx, interval); err != nil {
			return err
		}
	}
}
