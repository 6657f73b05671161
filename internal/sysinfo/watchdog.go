package sysinfo

import "time"

// WatchdogRefreshInterval is WDOG_REFRESH_MS: how often the watchdog
// is fed while the sysinfo task's main loop is alive.
const WatchdogRefreshInterval = time.Second

// Watchdog is the hardware-timer feed interface (mcu_wdog_feed).
type Watchdog interface {
	Feed()
}

// WatchdogFeeder periodically feeds a Watchdog, matching the
// self-restarting wdog_timer/wdog_feed_callback pair: as long as this
// goroutine runs, the watchdog never expires, so any deadlock
// elsewhere in the sysinfo task's message loop eventually resets the
// device instead of hanging forever.
type WatchdogFeeder struct {
	wdog     Watchdog
	interval time.Duration
	stop     chan struct{}
}

// NewWatchdogFeeder constructs a feeder for wdog at the given
// interval.
func NewWatchdogFeeder(wdog Watchdog, interval time.Duration) *WatchdogFeeder {
	return &WatchdogFeeder{wdog: wdog, interval: interval}
}

// Start begins feeding in a background goroutine.
func (f *WatchdogFeeder) Start() {
	f.stop = make(chan struct{})
	stop := f.stop
	go func() {
		ticker := time.NewTicker(f.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				f.wdog.Feed()
			}
		}
	}()
}

// Stop halts feeding. In the original firmware the watchdog timer
// never stops once the device boots; this exists so tests (and a
// simulator shutdown path) can tear the goroutine down cleanly.
func (f *WatchdogFeeder) Stop() {
	if f.stop != nil {
		close(f.stop)
		f.stop = nil
	}
}
