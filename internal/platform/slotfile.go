package platform

import (
	"fmt"
	"os"
)

// SlotFile is a real, file-backed fwup.SlotWriter: a fixed-size file
// pre-allocated to size, written through WriteAt. It stands in for the
// external flash firmware slot a real board targets; the flash driver
// and wear-leveling scheme are out of scope, matching OSFile's own
// stand-in for littlefs.
type SlotFile struct {
	f    *os.File
	size uint32
}

// NewSlotFile opens (creating if necessary) a fixed-size slot file at
// path, truncated/extended to size.
func NewSlotFile(path string, size uint32) (*SlotFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("platform: slot: %w", err)
	}
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		return nil, fmt.Errorf("platform: slot: %w", err)
	}
	return &SlotFile{f: f, size: size}, nil
}

func (s *SlotFile) WriteAt(offset uint32, data []byte) error {
	_, err := s.f.WriteAt(data, int64(offset))
	return err
}

func (s *SlotFile) SlotSize() uint32 { return s.size }

// ApplyDelta is a no-op: delta-patch application belongs to the
// bootloader's signed-image verifier, out of scope per this package's
// own flash-driver boundary.
func (s *SlotFile) ApplyDelta() error { return nil }

func (s *SlotFile) Close() error { return s.f.Close() }
