package main

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
)

// ledFrequency is the PWM carrier frequency the RGBW status LED runs
// at; high enough that the periph.io soft-PWM fallback on pins without
// dedicated hardware PWM still looks solid rather than flickering.
const ledFrequency = 2 * physic.KiloHertz

// gpioLEDDriver backs led.Driver with four PWM-capable GPIO pins,
// mirroring openSensePin's gpioreg.ByName lookup in cmd/core/hardware.go.
type gpioLEDDriver struct {
	red, green, blue, white gpio.PinIO
}

func openLEDDriver(redPin, greenPin, bluePin, whitePin string) (*gpioLEDDriver, error) {
	pins := make([]gpio.PinIO, 4)
	for i, name := range []string{redPin, greenPin, bluePin, whitePin} {
		pin := gpioreg.ByName(name)
		if pin == nil {
			return nil, fmt.Errorf("uxc: no such GPIO pin %q", name)
		}
		pins[i] = pin
	}
	return &gpioLEDDriver{red: pins[0], green: pins[1], blue: pins[2], white: pins[3]}, nil
}

// SetDuty drives each channel's duty cycle, clamping the [0,1] float
// values led.Animation produces into gpio.Duty's fixed-point range.
func (d *gpioLEDDriver) SetDuty(r, g, b, w float64) {
	setChannel(d.red, r)
	setChannel(d.green, g)
	setChannel(d.blue, b)
	setChannel(d.white, w)
}

func setChannel(pin gpio.PinIO, level float64) {
	if level < 0 {
		level = 0
	}
	if level > 1 {
		level = 1
	}
	duty := gpio.Duty(level * float64(gpio.DutyMax))
	if err := pin.PWM(duty, ledFrequency); err != nil {
		// Pins without dedicated PWM hardware fall back to an on/off
		// approximation rather than failing the animation outright.
		pin.Out(level >= 0.5)
	}
}
