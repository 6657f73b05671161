package sysinfo

import "time"

// CapTouchCalGPIO drives the calibration-pulse pin
// (power_config.cap_touch_cal.gpio): held high for holdMs to let
// the cap-touch sense line retrain its baseline.
type CapTouchCalGPIO interface {
	Set() error
	Clear() error
}

// CapTouchCalibrator handles handle_cap_touch_calibrate /
// cap_touch_cal_callback: on request, configures the GPIO (once, the
// first time it's used — the original defers this because driving
// the pin at boot was observed to glitch-trigger calibration) and
// drives it high for holdMs milliseconds, then clears it automatically.
type CapTouchCalibrator struct {
	gpio        CapTouchCalGPIO
	holdMs      uint32
	configure   func()
	configured  bool
	timer       *time.Timer
}

// NewCapTouchCalibrator constructs a calibrator. holdMs of 0 means the
// platform has no cap-touch calibration GPIO configured
// (power_config.cap_touch_cal.hold_ms == 0), matching the
// UNSUPPORTED early return. configure performs the deferred GPIO
// direction setup; it may be nil on platforms where the pin is always
// ready.
func NewCapTouchCalibrator(gpio CapTouchCalGPIO, holdMs uint32, configure func()) *CapTouchCalibrator {
	return &CapTouchCalibrator{gpio: gpio, holdMs: holdMs, configure: configure}
}

// Calibrate handles handle_cap_touch_calibrate.
func (c *CapTouchCalibrator) Calibrate() CapTouchCalStatus {
	if c.holdMs == 0 {
		return CapTouchCalUnsupported
	}
	if !c.configured {
		if c.configure != nil {
			c.configure()
		}
		c.configured = true
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	if err := c.gpio.Set(); err != nil {
		return CapTouchCalError
	}
	c.timer = time.AfterFunc(time.Duration(c.holdMs)*time.Millisecond, func() {
		c.gpio.Clear()
	})
	return CapTouchCalSuccess
}
