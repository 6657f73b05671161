package main

import (
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/signetco/corefw/internal/platform"
	"github.com/signetco/corefw/internal/sysinfo"
)

// provisioningRecord is the CBOR-encoded content of the provisioning
// file: the serial numbers and build metadata a real board gets from a
// one-time-programmable region or a bootloader-written metadata page
// (sysinfo.DeviceIdentity/MetadataSource's own doc comments), stood in
// for here by a single file the way platform.OSFile already stands in
// for littlefs elsewhere in this tree.
type provisioningRecord struct {
	AssySerial string
	MLBSerial  string
	AppA       sysinfo.Metadata
	HaveAppA   bool
}

// fileProvisioning backs both sysinfo.DeviceIdentity and
// sysinfo.MetadataSource from one provisioning file.
type fileProvisioning struct {
	mu     sync.Mutex
	file   *platform.OSFile
	record provisioningRecord
}

func openFileProvisioning(file *platform.OSFile, fallback sysinfo.Metadata) (*fileProvisioning, error) {
	p := &fileProvisioning{file: file}
	data, err := file.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		p.record = provisioningRecord{AppA: fallback, HaveAppA: true}
		if err := p.save(); err != nil {
			return nil, err
		}
		return p, nil
	}
	if err := cbor.Unmarshal(data, &p.record); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *fileProvisioning) save() error {
	data, err := cbor.Marshal(p.record)
	if err != nil {
		return err
	}
	return p.file.WriteAll(data)
}

func (p *fileProvisioning) AssySerial() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.record.AssySerial, p.record.AssySerial != ""
}

func (p *fileProvisioning) MLBSerial() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.record.MLBSerial, p.record.MLBSerial != ""
}

func (p *fileProvisioning) Get(slot sysinfo.Slot) (sysinfo.Metadata, sysinfo.MetadataStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if slot != sysinfo.SlotAppA || !p.record.HaveAppA {
		return sysinfo.Metadata{}, sysinfo.MetadataMissing
	}
	return p.record.AppA, sysinfo.MetadataValid
}

func (p *fileProvisioning) ActiveSlot() (sysinfo.Metadata, sysinfo.ActiveFirmwareSlot, sysinfo.MetadataStatus) {
	meta, status := p.Get(sysinfo.SlotAppA)
	return meta, sysinfo.ActiveSlotA, status
}

// coreTelemetry/coreFlags/coreBio report fixed no-history values: the
// coredump store, event bitlog, and sensor OTP/tamper state they back
// live in the out-of-scope bootloader and fingerprint-sensor vendor
// regions (spec.md §1 Non-goals).
type coreTelemetry struct{}

func (coreTelemetry) CoredumpCount() uint32                   { return 0 }
func (coreTelemetry) CoredumpFragment(uint32) ([]byte, bool)  { return nil, false }
func (coreTelemetry) DrainEvents(buf []byte) (uint32, uint32) { return 0, 0 }

type coreFlags struct {
	mu    sync.Mutex
	flags []bool
}

func (f *coreFlags) GetAll() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.flags...)
}

func (f *coreFlags) SetMultiple(m map[int]bool) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, v := range m {
		for i >= len(f.flags) {
			f.flags = append(f.flags, false)
		}
		f.flags[i] = v
	}
	return true
}

type coreBio struct {
	mu    sync.Mutex
	stats sysinfo.BioMatchStats
}

func (b *coreBio) MatchStats() sysinfo.BioMatchStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

func (b *coreBio) ClearMatchStats() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stats = sysinfo.BioMatchStats{}
}

func (b *coreBio) SensorSecured() (bool, bool)   { return true, true }
func (b *coreBio) SensorOTPLocked() (bool, bool) { return true, true }

