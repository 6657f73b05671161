package main

import (
	"encoding/binary"
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/signetco/corefw/internal/power"
)

// initPeriph brings up the periph.io driver registry, the same first
// call every real board in the corpus makes (wshat.Open, lcd.Open)
// before touching any pin or bus.
func initPeriph() error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("core: periph init: %w", err)
	}
	return nil
}

// openI2CBus opens the named i2c bus (or the first available one, for
// name == ""), the same i2creg registry lookup the PN532 NFC-over-i2c
// driver in the retrieved corpus uses.
func openI2CBus(name string) (i2c.BusCloser, error) {
	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("core: i2c: %w", err)
	}
	return bus, nil
}

// i2cCharger/i2cFuelGauge talk to the board's PMIC and fuel gauge over
// an i2c.Dev. The exact register map is the out-of-scope vendor PMIC
// driver (spec.md §1 Non-goals); these read the two registers every
// such chip exposes in some form (a status byte and a state-of-charge
// word) rather than modeling one specific part number, matching how
// internal/power's own doc comment describes the contract ("backed on
// real hardware by an i2c.Dev... via periph.io/x/conn/v3/i2c") without
// committing to a register layout the retrieved corpus never shows.
type i2cCharger struct {
	dev *i2c.Dev
}

const regChargerStatus = 0x00

func newI2CCharger(bus i2c.Bus, addr uint16) *i2cCharger {
	return &i2cCharger{dev: &i2c.Dev{Addr: addr, Bus: bus}}
}

func (c *i2cCharger) readStatus() (byte, error) {
	var status [1]byte
	if err := c.dev.Tx([]byte{regChargerStatus}, status[:]); err != nil {
		return 0, fmt.Errorf("i2c charger: %w", err)
	}
	return status[0], nil
}

// Charger status byte layout: bit0 plugged-in, bits[3:1] charge mode
// ordinal matching power.ChargerMode's first eight values.
func (c *i2cCharger) Mode() (power.ChargerMode, error) {
	status, err := c.readStatus()
	if err != nil {
		return power.ChargerModeInvalid, err
	}
	return power.ChargerMode((status >> 1) & 0x7), nil
}

func (c *i2cCharger) IsPluggedIn() (bool, error) {
	status, err := c.readStatus()
	if err != nil {
		return false, err
	}
	return status&0x1 != 0, nil
}

const (
	regChargerEnable       = 0x01
	regChargerLDOLowPower  = 0x02
)

func (c *i2cCharger) EnableCharging() error {
	return c.dev.Tx([]byte{regChargerEnable, 1}, nil)
}

func (c *i2cCharger) DisableCharging() error {
	return c.dev.Tx([]byte{regChargerEnable, 0}, nil)
}

func (c *i2cCharger) SetLDOLowPowerMode() error {
	return c.dev.Tx([]byte{regChargerLDOLowPower, 1}, nil)
}

type i2cFuelGauge struct {
	dev *i2c.Dev
}

func newI2CFuelGauge(bus i2c.Bus, addr uint16) *i2cFuelGauge {
	return &i2cFuelGauge{dev: &i2c.Dev{Addr: addr, Bus: bus}}
}

const (
	regFuelSOC     = 0x10
	regFuelVCell   = 0x12
	regFuelCurrent = 0x14
	regFuelCycles  = 0x16
)

func (g *i2cFuelGauge) readWord(reg byte) (uint16, error) {
	var buf [2]byte
	if err := g.dev.Tx([]byte{reg}, buf[:]); err != nil {
		return 0, fmt.Errorf("i2c fuel gauge: %w", err)
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}

func (g *i2cFuelGauge) Battery() (socMilliPercent, vcellMV uint32, avgCurrentMA int32, cycles uint32, err error) {
	soc, err := g.readWord(regFuelSOC)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	vcell, err := g.readWord(regFuelVCell)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	current, err := g.readWord(regFuelCurrent)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	cyc, err := g.readWord(regFuelCycles)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	return uint32(soc) * 1000 / 256, uint32(vcell), int32(int16(current)), uint32(cyc), nil
}

// gpioSensePin backs captouch.SensePin with a real GPIO input, mirroring
// driver/wshat's Pin.In(gpio.PullUp, gpio.BothEdges)/WaitForEdge/Read
// idiom for the capacitive-touch wake pin.
type gpioSensePin struct {
	pin gpio.PinIO
}

func openSensePin(name string) (*gpioSensePin, error) {
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("core: no such GPIO pin %q", name)
	}
	return &gpioSensePin{pin: pin}, nil
}

func (p *gpioSensePin) In(pull gpio.Pull, edge gpio.Edge) error {
	return p.pin.In(pull, edge)
}

func (p *gpioSensePin) WaitForEdge(d time.Duration) bool {
	return p.pin.WaitForEdge(d)
}

func (p *gpioSensePin) Read() gpio.Level {
	return p.pin.Read()
}
