// Package power implements the device's sleep/power-off timer, PMIC
// charger state machine, and fuel-gauge polling. Grounded on
// original_source/firmware/lib/sleep/sleep.{c,h} (the power timer and
// its inhibit mechanism) and
// original_source/firmware/hal/power/{inc,src}/power.c (the charger
// mode enum and battery telemetry accessors), modeled in Go with
// time.Timer standing in for the RTOS timer and periph.io/x/conn/v3's
// gpio/i2c stack (the teacher's own dependency, used elsewhere in its
// camera/driver code) for the real EXTI-edge and I2C-bus hardware.
package power

import (
	"sync"
	"time"
)

// DefaultPowerTimeoutMS is the base lock-screen power-off timeout
// (POWER_TIMEOUT_MS).
const DefaultPowerTimeoutMS = 60_000

// SleepTimer mirrors sleep.c: a single countdown timer started when
// the device locks and stopped when it unlocks, extendable via
// Inhibit for the duration of (e.g.) a PIN retry delay.
type SleepTimer struct {
	mu        sync.Mutex
	base      time.Duration
	inhibit   time.Duration
	running   bool
	timer     *time.Timer
	onExpire  func()
}

// NewSleepTimer constructs a SleepTimer with the base timeout and the
// callback invoked on expiry (power-off), matching sleep_init.
// Construction does not start the timer — call Start once the device
// locks.
func NewSleepTimer(onExpire func()) *SleepTimer {
	return &SleepTimer{base: DefaultPowerTimeoutMS * time.Millisecond, onExpire: onExpire}
}

// Start begins the countdown, matching sleep_start_power_timer.
func (s *SleepTimer) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
	s.resetLocked()
}

// Stop halts the countdown and clears any inhibit, matching
// sleep_stop_power_timer.
func (s *SleepTimer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.inhibit = 0
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Refresh restarts the countdown from now if running; a no-op
// otherwise, matching sleep_refresh_power_timer.
func (s *SleepTimer) Refresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.resetLocked()
}

// Inhibit extends the configured timeout by additionalMs, overwriting
// any previous inhibit and restarting the countdown if running,
// matching sleep_inhibit.
func (s *SleepTimer) Inhibit(additionalMs uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inhibit = time.Duration(additionalMs) * time.Millisecond
	if s.running {
		s.resetLocked()
	}
}

// ClearInhibit restores the base timeout, matching
// sleep_clear_inhibit.
func (s *SleepTimer) ClearInhibit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inhibit = 0
	if s.running {
		s.resetLocked()
	}
}

// ConfiguredTimeout returns the current total timeout (base +
// inhibit), matching sleep_get_configured_timeout.
func (s *SleepTimer) ConfiguredTimeout() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.base + s.inhibit
}

func (s *SleepTimer) resetLocked() {
	if s.timer != nil {
		s.timer.Stop()
	}
	timeout := s.base + s.inhibit
	s.timer = time.AfterFunc(timeout, func() {
		if s.onExpire != nil {
			s.onExpire()
		}
	})
}
