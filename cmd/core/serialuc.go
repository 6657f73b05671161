package main

import (
	"bytes"
	"fmt"
	"log"

	"github.com/tarm/serial"

	"github.com/signetco/corefw/internal/uc"
)

// openUCPort opens the physical link to the display MCU: a plain UART,
// the same io.ReadWriter shape github.com/tarm/serial exposes over a
// Linux tty and the teacher's controller build talks to its stepper
// drivers through (driver/tmc2209.NewUART).
func openUCPort(name string, baud int) (*serial.Port, error) {
	port, err := serial.OpenPort(&serial.Config{Name: name, Baud: baud})
	if err != nil {
		return nil, fmt.Errorf("core: uc: %w", err)
	}
	return port, nil
}

// ucReader is the subset of *serial.Port ucReadLoop needs, letting a
// test drive it over an in-memory pipe instead of a real tty.
type ucReader interface {
	Read(p []byte) (int, error)
}

// ucReadLoop splits the raw byte stream coming off port on COBS 0x00
// delimiters and hands each delimited frame to transport.HandleFrame,
// the split Transport.Send/HandleFrame leave to the transport's owner
// (Send appends the delimiter via cobs.EncodeFrame; nothing upstream of
// HandleFrame does the corresponding split).
func ucReadLoop(port ucReader, transport *uc.Transport) {
	var buf bytes.Buffer
	chunk := make([]byte, 256)
	for {
		n, err := port.Read(chunk)
		if err != nil {
			log.Printf("core: uc: read: %v", err)
			return
		}
		for _, b := range chunk[:n] {
			buf.WriteByte(b)
			if b != 0x00 {
				continue
			}
			frame := append([]byte(nil), buf.Bytes()...)
			buf.Reset()
			if err := transport.HandleFrame(frame); err != nil {
				log.Printf("core: uc: frame: %v", err)
			}
		}
	}
}
