// Command uxc runs the display MCU's task set: the flow-engine UI
// controller driving a SPI LCD, button input, RGBW status LED
// animation, and the display-side end of the firmware update and
// inter-MCU protocols. See cmd/core for the signing MCU's task set
// and cmd/simcore for both roles run in-process against simulated
// peripherals.
package main

import "time"

// Config names the physical peripherals one real display-MCU board
// build wires against.
type Config struct {
	StateDir     string
	UCSerial     string
	UCBaud       int
	LCDSPIBus    string
	ButtonPins   map[string]string
	LEDRedPin    string
	LEDGreenPin  string
	LEDBluePin   string
	LEDWhitePin  string
	FwupSlotSize uint32
	TickInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		StateDir:  "/var/lib/corefw-uxc",
		UCSerial:  "/dev/ttyAMA1",
		UCBaud:    2000000,
		LCDSPIBus: "",
		ButtonPins: map[string]string{
			"up":    "GPIO5",
			"down":  "GPIO6",
			"left":  "GPIO26",
			"right": "GPIO19",
			"ok":    "GPIO13",
			"back":  "GPIO16",
		},
		LEDRedPin:    "GPIO17",
		LEDGreenPin:  "GPIO27",
		LEDBluePin:   "GPIO22",
		LEDWhitePin:  "GPIO23",
		FwupSlotSize: 2 * 1024 * 1024,
		TickInterval: 50 * time.Millisecond,
	}
}
