package main

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"

	"github.com/signetco/corefw/internal/display"
)

// buttonHoldThreshold is how long a button must stay down before it is
// reported as PressHold instead of a plain PressDown/PressUp pair,
// mirroring captouch.LongPressThreshold's role for the capacitive pad
// but tuned to a button's much shorter natural press length.
const buttonHoldThreshold = 700 * time.Millisecond

// buttonPollInterval governs how promptly a press is noticed; fast
// enough that the UI feels responsive, slow enough not to busy-loop.
const buttonPollInterval = 10 * time.Millisecond

var buttonNames = []struct {
	key string
	btn display.Button
}{
	{"up", display.ButtonUp},
	{"down", display.ButtonDown},
	{"left", display.ButtonLeft},
	{"right", display.ButtonRight},
	{"ok", display.ButtonOK},
	{"back", display.ButtonBack},
}

type buttonWatcher struct {
	pins [6]gpio.PinIO

	down      [6]bool
	downSince [6]time.Time
	holdSent  [6]bool
}

func openButtons(pins map[string]string) (*buttonWatcher, error) {
	w := &buttonWatcher{}
	for i, b := range buttonNames {
		name, ok := pins[b.key]
		if !ok {
			return nil, fmt.Errorf("uxc: buttons: no pin configured for %q", b.key)
		}
		pin := gpioreg.ByName(name)
		if pin == nil {
			return nil, fmt.Errorf("uxc: no such GPIO pin %q", name)
		}
		if err := pin.In(gpio.PullUp, gpio.NoEdge); err != nil {
			return nil, fmt.Errorf("uxc: buttons: %s: %w", b.key, err)
		}
		w.pins[i] = pin
	}
	return w, nil
}

// poll reads every button pin once and feeds any resulting
// down/hold/up transitions into the controller. Buttons are active
// low, matching gpio.PullUp's idle-high convention.
func (w *buttonWatcher) poll(controller *display.Controller) {
	now := timeNow()
	for i, b := range buttonNames {
		pressed := w.pins[i].Read() == gpio.Low
		switch {
		case pressed && !w.down[i]:
			w.down[i] = true
			w.downSince[i] = now
			w.holdSent[i] = false
			controller.HandleButtonPress(display.ButtonEvent{Button: b.btn, Type: display.PressDown})
		case pressed && w.down[i] && !w.holdSent[i] && now.Sub(w.downSince[i]) >= buttonHoldThreshold:
			w.holdSent[i] = true
			controller.HandleButtonPress(display.ButtonEvent{Button: b.btn, Type: display.PressHold})
		case !pressed && w.down[i]:
			w.down[i] = false
			controller.HandleButtonPress(display.ButtonEvent{Button: b.btn, Type: display.PressUp})
		}
	}
}

func (w *buttonWatcher) run(controller *display.Controller, stop <-chan struct{}) {
	ticker := time.NewTicker(buttonPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.poll(controller)
		case <-stop:
			return
		}
	}
}

// timeNow is a package variable so button-hold timing is the one
// place in this binary that could be faked by a test driving synthetic
// GPIO edges without a real clock.
var timeNow = time.Now
