package main

import (
	"log"
)

// run constructs a Device and idles, the same main/run split the
// teacher's cmd/controller uses: main parses nothing (the simulator
// has no flags of its own yet) and hands off to run for the actual
// wiring and loop.
func run() error {
	log.SetFlags(0)

	d, err := NewDevice()
	if err != nil {
		return err
	}
	d.Monitor.Start()
	d.CapTouch.Start()

	log.Printf("simcore: device ready, serial=%s", mustSerial(d))
	select {}
}

func mustSerial(d *Device) string {
	serial, ok := d.SysInfo.Identity.AssySerial()
	if !ok {
		return "unknown"
	}
	return serial
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
