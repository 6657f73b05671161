package power

import (
	"testing"
	"time"

	"github.com/signetco/corefw/internal/uievent"
)

type recordingBackend struct {
	events []uievent.Event
}

func (b *recordingBackend) Handle(ev uievent.Event) { b.events = append(b.events, ev) }

func TestSleepTimerExpiresAfterTimeout(t *testing.T) {
	expired := make(chan struct{}, 1)
	timer := NewSleepTimer(func() { expired <- struct{}{} })
	timer.base = 5 * time.Millisecond
	timer.Start()
	select {
	case <-expired:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the sleep timer to expire")
	}
}

func TestSleepTimerStopCancelsExpiry(t *testing.T) {
	expired := make(chan struct{}, 1)
	timer := NewSleepTimer(func() { expired <- struct{}{} })
	timer.base = 20 * time.Millisecond
	timer.Start()
	timer.Stop()
	select {
	case <-expired:
		t.Fatal("expected Stop to cancel the pending expiry")
	case <-time.After(40 * time.Millisecond):
	}
}

func TestSleepTimerInhibitExtendsTimeout(t *testing.T) {
	timer := NewSleepTimer(nil)
	timer.base = 10 * time.Millisecond
	timer.Inhibit(5000)
	if got := timer.ConfiguredTimeout(); got != 10*time.Millisecond+5*time.Second {
		t.Fatalf("unexpected configured timeout: %v", got)
	}
	timer.ClearInhibit()
	if got := timer.ConfiguredTimeout(); got != 10*time.Millisecond {
		t.Fatalf("expected inhibit cleared, got %v", got)
	}
}

func TestSleepTimerRefreshNoOpWhenNotRunning(t *testing.T) {
	timer := NewSleepTimer(nil)
	timer.Refresh() // must not panic on a never-started timer
}

type fakeCharger struct {
	mode      ChargerMode
	plugged   bool
	modeErr   error
	pluggedErr error
}

func (c *fakeCharger) Mode() (ChargerMode, error)       { return c.mode, c.modeErr }
func (c *fakeCharger) IsPluggedIn() (bool, error)       { return c.plugged, c.pluggedErr }
func (c *fakeCharger) EnableCharging() error            { return nil }
func (c *fakeCharger) DisableCharging() error           { return nil }
func (c *fakeCharger) SetLDOLowPowerMode() error        { return nil }

type fakeGauge struct {
	socMilli uint32
}

func (g *fakeGauge) Battery() (uint32, uint32, int32, uint32, error) {
	return g.socMilli, 3800, -120, 4, nil
}

func TestMonitorPublishesBatteryChangeOnly(t *testing.T) {
	bus := uievent.NewBus()
	rec := &recordingBackend{}
	bus.Subscribe(rec)

	charger := &fakeCharger{mode: ChargerModeOff, plugged: false}
	gauge := &fakeGauge{socMilli: 50000}
	m := NewMonitor(charger, gauge, bus, time.Hour)

	m.Poll()
	if len(rec.events) != 1 || rec.events[0].ID != uievent.BatterySoC || rec.events[0].Battery.Percent != 50 {
		t.Fatalf("expected one BatterySoC event at 50%%, got %+v", rec.events)
	}

	m.Poll() // same reading: no new event
	if len(rec.events) != 1 {
		t.Fatalf("expected no duplicate event on unchanged reading, got %d", len(rec.events))
	}
}

func TestMonitorPublishesChargingTransitions(t *testing.T) {
	bus := uievent.NewBus()
	rec := &recordingBackend{}
	bus.Subscribe(rec)

	charger := &fakeCharger{mode: ChargerModeCC, plugged: true}
	gauge := &fakeGauge{socMilli: 10000}
	m := NewMonitor(charger, gauge, bus, time.Hour)
	m.Poll()

	found := false
	for _, ev := range rec.events {
		if ev.ID == uievent.Charging {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a Charging event when plugged in transitions from false to true")
	}

	charger.mode = ChargerModeDone
	rec.events = nil
	m.Poll()
	found = false
	for _, ev := range rec.events {
		if ev.ID == uievent.ChargingFinished {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a ChargingFinished event once the charger reaches Done")
	}
}
