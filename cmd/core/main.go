// Command core runs the signing MCU's full task set against real
// peripherals: an i2c PMIC/fuel gauge, a GPIO capacitive-touch pin, an
// SPI-attached NFC front end, and a UART link to the display MCU. See
// cmd/simcore for the same task set run against in-memory stand-ins.
package main

import (
	"flag"
	"log"

	"github.com/signetco/corefw/internal/logctx"
)

var logger = logctx.New("core")

func main() {
	log.SetFlags(0)

	cfg := DefaultConfig()
	flag.StringVar(&cfg.StateDir, "state-dir", cfg.StateDir, "directory for persisted unlock/template/provisioning state")
	flag.StringVar(&cfg.I2CBus, "i2c-bus", cfg.I2CBus, "i2c bus name for the PMIC/fuel gauge (empty: first available)")
	flag.StringVar(&cfg.CapTouchPin, "captouch-pin", cfg.CapTouchPin, "GPIO pin name for the capacitive-touch wake pad")
	flag.StringVar(&cfg.NFCSPIBus, "nfc-spi-bus", cfg.NFCSPIBus, "SPI bus name for the NFC front end (empty: first available)")
	flag.StringVar(&cfg.UCSerial, "uc-serial", cfg.UCSerial, "serial device for the inter-MCU link to the display coprocessor")
	flag.IntVar(&cfg.UCBaud, "uc-baud", cfg.UCBaud, "baud rate for the inter-MCU serial link")
	flag.Parse()

	if err := initPeriph(); err != nil {
		log.Fatalf("core: %v", err)
	}

	d, err := NewDevice(cfg)
	if err != nil {
		log.Fatalf("core: %v", err)
	}

	d.Monitor.Start()
	d.CapTouch.Start()
	go ucReadLoop(d.port, d.UC)
	go runNFCLoop(d)

	logger.Printf("running, state dir %s", cfg.StateDir)
	select {}
}

// runNFCLoop drives one NFC session's ISO-DEP state machine
// continuously, the same read-until-deselect loop a real reader tap
// drives repeatedly over the device's lifetime. A read error (field
// dropped, reader moved away) resets the session rather than exiting
// the loop, since the next tap reactivates the same field.
func runNFCLoop(d *Device) {
	buf := make([]byte, 4096)
	for {
		if _, err := d.NFC.Read(buf); err != nil {
			logger.Printf("nfc: %v", err)
			d.NFC.Reset()
		}
	}
}
