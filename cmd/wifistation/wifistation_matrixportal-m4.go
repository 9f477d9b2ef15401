//go:build matrixportal_m4

package main

import (
	"image/color"
	"machine"
	"time"

	"github.com/ajanata/textbuf"
	"tinygo.org/x/drivers/ssd1306"
	"tinygo.org/x/drivers/ws2812"
)

func main() {
	time.Sleep(time.Second)
	blink()
	err := machine.I2C0.Configure(machine.I2CConfig{
		SCL:       machine.I2C0_SCL_PIN,
		SDA:       machine.I2C0_SDA_PIN,
		Frequency: 3.6 * machine.MHz,
	})
	if err != nil {
		earlyPanic(err)
	}
	blink()

	// turn off the NeoPixel
	machine.NEOPIXEL.Configure(machine.PinConfig{Mode: machine.PinOutput})
	np := ws2812.New(machine.NEOPIXEL)
	_ = np.WriteColors([]color.RGBA{{}})

	dev := ssd1306.NewI2C(machine.I2C0)
	dev.Configure(ssd1306.Config{Width: 128, Height: 64, Address: 0x3D, VccState: ssd1306.SWITCHCAPVCC})
	dev.ClearBuffer()
	dev.ClearDisplay()
	blink()

	buf, err := textbuf.New(&dev, textbuf.FontSize6x8)
	if err != nil {
		earlyPanic(err)
	}
	buf.AutoFlush = true
	_ = buf.Println("wifistation")

	run(board{led: machine.LED, display: buf})
}
