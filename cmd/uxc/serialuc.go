package main

import (
	"bytes"
	"fmt"
	"log"

	"github.com/tarm/serial"

	"github.com/signetco/corefw/internal/uc"
)

// openUCPort opens the physical link to the core MCU, the other end
// of cmd/core's own serialuc.go link.
func openUCPort(name string, baud int) (*serial.Port, error) {
	port, err := serial.OpenPort(&serial.Config{Name: name, Baud: baud})
	if err != nil {
		return nil, fmt.Errorf("uxc: uc: %w", err)
	}
	return port, nil
}

// ucReader is the subset of *serial.Port ucReadLoop needs, letting a
// test drive it over an in-memory pipe instead of a real tty (mirrors
// cmd/core/serialuc.go's identical interface).
type ucReader interface {
	Read(p []byte) (int, error)
}

// ucReadLoop mirrors cmd/core's loop of the same name: split the raw
// byte stream on COBS 0x00 delimiters and feed whole frames to
// transport.HandleFrame.
func ucReadLoop(port ucReader, transport *uc.Transport) {
	var buf bytes.Buffer
	chunk := make([]byte, 256)
	for {
		n, err := port.Read(chunk)
		if err != nil {
			log.Printf("uxc: uc: read: %v", err)
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
				log.Printf("uxc: uc: frame: %v", err)
			}
		}
	}
}
