// Command simcore runs every core-MCU task against in-memory/simulated
// peripherals: no flash, no secure element, no real fingerprint
// sensor, no physical NFC field. It exists for integration testing of
// the full command surface without hardware, grounded on the
// teacher's cmd/controller entrypoint style and seedhammer's
// driver/mjolnir simulated backends.
package main

import "sync"

// memFile is an in-memory kv.File, standing in for platform.OSFile in
// the headless harness (platform's own doc comment anticipates this
// living here rather than in package platform).
type memFile struct {
	mu   sync.Mutex
	data []byte
}

func newMemFile() *memFile { return &memFile{} }

func (f *memFile) ReadAll() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.data...), nil
}

func (f *memFile) WriteAll(b []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data = append([]byte(nil), b...)
	return nil
}

func (f *memFile) Remove() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data = nil
	return nil
}

// memSlot is an in-memory fwup.SlotWriter standing in for an external
// flash firmware slot.
type memSlot struct {
	mu   sync.Mutex
	data []byte
	size uint32
}

func newMemSlot(size uint32) *memSlot {
	return &memSlot{data: make([]byte, size), size: size}
}

func (s *memSlot) WriteAt(offset uint32, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copy(s.data[offset:], data)
	return nil
}

func (s *memSlot) SlotSize() uint32 { return s.size }

func (s *memSlot) ApplyDelta() error { return nil }
