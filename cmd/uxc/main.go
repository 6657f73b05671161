package main

import (
	"flag"
	"log"
	"time"

	"github.com/signetco/corefw/internal/logctx"
)

var logger = logctx.New("uxc")

func main() {
	log.SetFlags(0)

	cfg := DefaultConfig()
	flag.StringVar(&cfg.StateDir, "state-dir", cfg.StateDir, "directory for persisted firmware-slot state")
	flag.StringVar(&cfg.UCSerial, "uc-serial", cfg.UCSerial, "serial device for the inter-MCU link to the core MCU")
	flag.IntVar(&cfg.UCBaud, "uc-baud", cfg.UCBaud, "baud rate for the inter-MCU serial link")
	flag.StringVar(&cfg.LCDSPIBus, "lcd-spi-bus", cfg.LCDSPIBus, "SPI bus name for the LCD panel (empty: first available)")
	flag.DurationVar(&cfg.TickInterval, "tick-interval", cfg.TickInterval, "flow controller tick period")
	flag.Parse()

	if err := initPeriph(); err != nil {
		log.Fatalf("uxc: %v", err)
	}

	d, err := NewDevice(cfg)
	if err != nil {
		log.Fatalf("uxc: %v", err)
	}
	defer d.Screen.Close()
	defer d.LED.Close()

	stop := make(chan struct{})
	go ucReadLoop(d.port, d.UC)
	go d.Buttons.run(d.Controller, stop)
	go runTickLoop(d, cfg.TickInterval, stop)

	d.Controller.ShowInitialScreen()

	logger.Printf("running, state dir %s", cfg.StateDir)
	select {}
}

// runTickLoop drives the flow controller's time-based transitions
// (screen timeouts, animation progress) at a fixed period, the
// equivalent of the firmware's own periodic UI-task tick.
func runTickLoop(d *Device, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.Controller.Tick()
		case <-stop:
			return
		}
	}
}
