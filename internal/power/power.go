package power

import (
	"sync"
	"time"

	"github.com/signetco/corefw/internal/uievent"
)

// ChargerMode mirrors power_charger_mode_t's charge-stage taxonomy.
type ChargerMode int

const (
	ChargerModeInvalid ChargerMode = iota
	ChargerModeOff
	ChargerModePrequal
	ChargerModeCC
	ChargerModeJEITACC
	ChargerModeCV
	ChargerModeJEITACV
	ChargerModeTopOff
	ChargerModeJEITATopOff
	ChargerModeDone
	ChargerModeJEITADone
	ChargerModePrequalTimeout
	ChargerModeFastChargeTimeout
	ChargerModeTempFault
)

// finished reports whether mode represents a completed charge cycle
// (power_get_charger_mode reaching DONE/JEITA_DONE), the trigger for
// ChargingFinished.
func (m ChargerMode) finished() bool {
	return m == ChargerModeDone || m == ChargerModeJEITADone
}

// Charger is the PMIC driver interface (power_enable_charging/
// power_disable_charging/power_is_charging/power_is_plugged_in/
// power_get_charger_mode/power_set_ldo_low_power_mode), backed on real
// hardware by an i2c.Dev talking to a MAX77734 via
// periph.io/x/conn/v3/i2c.
type Charger interface {
	Mode() (ChargerMode, error)
	IsPluggedIn() (bool, error)
	EnableCharging() error
	DisableCharging() error
	SetLDOLowPowerMode() error
}

// FuelGauge is power_get_battery's accessor interface.
type FuelGauge interface {
	// Battery returns state-of-charge in milli-percent, cell voltage in
	// mV, average current in mA (signed: negative while discharging),
	// and charge-cycle count.
	Battery() (socMilliPercent uint32, vcellMV uint32, avgCurrentMA int32, cycles uint32, err error)
}

// Monitor polls a Charger and FuelGauge on an interval and publishes
// uievent.Battery*/Charging* transitions, collapsing repeated identical
// readings so the bus only sees state changes.
type Monitor struct {
	charger Charger
	gauge   FuelGauge
	bus     *uievent.Bus
	period  time.Duration

	mu          sync.Mutex
	lastPercent int
	lastCharging bool
	lastFinished bool
	stop        chan struct{}
}

// NewMonitor constructs a Monitor publishing to bus, polling every
// period.
func NewMonitor(charger Charger, gauge FuelGauge, bus *uievent.Bus, period time.Duration) *Monitor {
	return &Monitor{charger: charger, gauge: gauge, bus: bus, period: period, lastPercent: -1}
}

// Start begins polling in a background goroutine.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.stop != nil {
		m.mu.Unlock()
		return
	}
	m.stop = make(chan struct{})
	stop := m.stop
	m.mu.Unlock()

	go func() {
		ticker := time.NewTicker(m.period)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				m.poll()
			}
		}
	}()
}

// Stop halts polling.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stop == nil {
		return
	}
	close(m.stop)
	m.stop = nil
}

// Poll runs one polling pass synchronously; exported for tests and for
// a caller that wants to force an immediate reading (e.g. right after
// a USB-plug EXTI edge) instead of waiting for the next tick.
func (m *Monitor) Poll() { m.poll() }

func (m *Monitor) poll() {
	socMilli, _, _, _, err := m.gauge.Battery()
	if err != nil {
		return
	}
	percent := int(socMilli / 1000)

	pluggedIn, err := m.charger.IsPluggedIn()
	if err != nil {
		return
	}
	mode, err := m.charger.Mode()
	if err != nil {
		return
	}
	finished := pluggedIn && mode.finished()

	m.mu.Lock()
	lastPercent := m.lastPercent
	lastCharging := m.lastCharging
	lastFinished := m.lastFinished
	m.lastPercent = percent
	m.lastCharging = pluggedIn
	m.lastFinished = finished
	m.mu.Unlock()

	if percent != lastPercent {
		m.bus.Publish(uievent.Event{ID: uievent.BatterySoC, Battery: uievent.BatteryPayload{Percent: percent}})
	}
	if pluggedIn && !lastCharging {
		m.bus.Publish(uievent.Event{ID: uievent.Charging})
	}
	if !pluggedIn && lastCharging {
		m.bus.Publish(uievent.Event{ID: uievent.ChargingUnplugged})
	}
	if finished && !lastFinished {
		m.bus.Publish(uievent.Event{ID: uievent.ChargingFinished})
	}
}
