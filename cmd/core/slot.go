package main

import "github.com/signetco/corefw/internal/platform"

// fileSlot is cmd/core's target firmware slot: a plain alias over the
// shared file-backed slot writer also used by cmd/uxc.
type fileSlot = platform.SlotFile

func openFileSlot(path string, size uint32) (*fileSlot, error) {
	return platform.NewSlotFile(path, size)
}
