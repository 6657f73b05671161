package main

import (
	"fmt"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"

	"github.com/signetco/corefw/internal/nfc"
)

// spiField backs internal/nfc.Field with a generic SPI-attached NFC
// front-end, the same spireg.Open/Connect idiom driver/lcd.go uses for
// its display. The vendor NFC analog front-end (framing, modulation,
// field-on calibration) is out of scope; spiField only establishes the
// byte-oriented transport a real front-end driver would sit behind.
type spiField struct {
	port spi.PortCloser
	conn spi.Conn
}

func openSPIField(busName string) (*spiField, error) {
	p, err := spireg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("core: nfc: spi: %w", err)
	}
	c, err := p.Connect(10*physic.MegaHertz, spi.Mode0, 8)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("core: nfc: spi: %w", err)
	}
	return &spiField{port: p, conn: c}, nil
}

func (f *spiField) Read(b []byte) (int, error) {
	if err := f.conn.Tx(nil, b); err != nil {
		return 0, fmt.Errorf("core: nfc: read: %w", err)
	}
	return len(b), nil
}

func (f *spiField) Write(b []byte) (int, error) {
	if err := f.conn.Tx(b, nil); err != nil {
		return 0, fmt.Errorf("core: nfc: write: %w", err)
	}
	return len(b), nil
}

// Sleep puts the front end in its lowest-power listening state; no
// register-level vendor command exists at this layer, so this is a
// no-op placeholder the real front-end driver would replace.
func (f *spiField) Sleep() error { return nil }

func (f *spiField) Deactivate() { f.port.Close() }

var _ nfc.Field = (*spiField)(nil)
