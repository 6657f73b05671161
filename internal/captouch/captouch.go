// Package captouch turns the capacitive-touch sense pad's rising/falling
// edges into finger-down/finger-up events, and promotes a sufficiently
// long authenticated press into a break-glass request. Grounded on
// original_source/firmware/app/tasks/captouch/src/captouch_task.c, with
// periph.io/x/conn/v3/gpio's PinIn.In/WaitForEdge/Read idiom (the
// teacher's own dependency, used the same way by input/input.go) standing
// in for the EXTI rising/falling interrupt pair.
package captouch

import (
	"time"

	"periph.io/x/conn/v3/gpio"

	"github.com/signetco/corefw/internal/uievent"
)

// LongPressThreshold is the minimum continuous-press duration that
// qualifies as a break-glass request (LONG_PRESS_THRESHOLD_MS).
const LongPressThreshold = 10 * time.Second

// SensePin is the slice of gpio.PinIn a Watcher needs: configure for
// both-edge interrupts, block for the next edge, and read the
// resulting level. A *gpio.PinIn value satisfies this structurally,
// the same way t4t.AltCLAHandler matches wca.Handler without an
// import.
type SensePin interface {
	In(pull gpio.Pull, edge gpio.Edge) error
	WaitForEdge(timeout time.Duration) bool
	Read() gpio.Level
}

// PowerTimer is the subset of power.SleepTimer that a finger-down edge
// refreshes, matching sleep_refresh_power_timer.
type PowerTimer interface {
	Refresh()
}

// AuthState is the subset of auth.State a long press consults before
// arming a break-glass request, matching is_authenticated.
type AuthState interface {
	IsAuthenticated() bool
}

// Watcher polls a single cap-touch sense pin for both-edge transitions
// and derives finger-down/up and break-glass events from them.
type Watcher struct {
	pin   SensePin
	bus   *uievent.Bus
	power PowerTimer
	auth  AuthState

	stop chan struct{}
}

// NewWatcher constructs a Watcher over pin, publishing to bus.
func NewWatcher(pin SensePin, bus *uievent.Bus, power PowerTimer, auth AuthState) *Watcher {
	return &Watcher{pin: pin, bus: bus, power: power, auth: auth}
}

// Start configures the pin for both-edge interrupts and begins
// watching in a background goroutine, matching captouch_thread's
// exti_enable/exti_wait loop.
func (w *Watcher) Start() error {
	if err := w.pin.In(gpio.PullNoChange, gpio.BothEdges); err != nil {
		return err
	}
	w.stop = make(chan struct{})
	go w.run(w.stop)
	return nil
}

// Stop ends the watch goroutine.
func (w *Watcher) Stop() {
	if w.stop != nil {
		close(w.stop)
		w.stop = nil
	}
}

func (w *Watcher) run(stop chan struct{}) {
	var startTime time.Time
	for {
		select {
		case <-stop:
			return
		default:
		}
		if !w.pin.WaitForEdge(100 * time.Millisecond) {
			continue
		}
		w.onEdge(&startTime, time.Now())
	}
}

// onEdge implements one pass of captouch_thread's finger-down/finger-up
// branch, taking "now" as a parameter so tests can drive it without a
// real clock or real GPIO edges.
func (w *Watcher) onEdge(startTime *time.Time, now time.Time) {
	if startTime.IsZero() {
		*startTime = now
		w.bus.Publish(uievent.Event{ID: uievent.FingerDown})
		if w.power != nil {
			w.power.Refresh()
		}
		return
	}
	duration := now.Sub(*startTime)
	*startTime = time.Time{}
	w.bus.Publish(uievent.Event{ID: uievent.FingerUp})
	if duration >= LongPressThreshold {
		if w.auth != nil && w.auth.IsAuthenticated() {
			w.bus.Publish(uievent.Event{ID: uievent.BreakGlassReady})
		}
	}
}
