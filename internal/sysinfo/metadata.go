// Package sysinfo implements the device-wide query surface: firmware
// metadata per flash slot, device identity (serial numbers), the
// watchdog feed, and the cap-touch calibration pulse — plus assembling the coredump/events/
// feature-flag/secure-element/battery/fingerprint-stats responses that
// back the host's "tell me about yourself" queries. Grounded on
// original_source/firmware/app/tasks/sysinfo/src/core/sysinfo_task.c
// (the query dispatch) and
// original_source/firmware/hal/sysinfo/inc/sysinfo.h (serial number
// and software-type/hardware-revision storage). Coprocessor
// sleep-prepare coordination is not handled by this package.
package sysinfo

// Slot identifies one of the three flash regions metadata can be read
// from (metadata_target_t).
type Slot int

const (
	SlotBootloader Slot = iota
	SlotAppA
	SlotAppB
)

// ActiveFirmwareSlot identifies which of SlotAppA/SlotAppB is
// currently running (fwpb_firmware_slot, minus its UNKNOWN/BOOTLOADER
// variants which metadata_get_active_slot never returns).
type ActiveFirmwareSlot int

const (
	ActiveSlotA ActiveFirmwareSlot = iota
	ActiveSlotB
)

// MetadataStatus mirrors metadata_result_t.
type MetadataStatus int

const (
	MetadataValid MetadataStatus = iota
	MetadataInvalid
	MetadataMissing
	MetadataRootError
)

// Version is a firmware semantic version (metadata_t.version).
type Version struct {
	Major, Minor, Patch uint8
}

// Metadata is one flash slot's signed build metadata (metadata_t).
type Metadata struct {
	GitID            string
	GitBranch        string
	Version          Version
	Build            string
	Timestamp        uint64
	SHA1Hash         [20]byte
	HardwareRevision string
}

// MetadataSource reads the per-slot metadata embedded in each signed
// firmware image, matching metadata_get/metadata_get_active_slot. A
// slot with no valid metadata reports a MetadataStatus other than
// MetadataValid rather than an error:
// a missing bootloader-slot signature, for instance, is a normal,
// expected condition on some boards, not a fault.
type MetadataSource interface {
	Get(slot Slot) (Metadata, MetadataStatus)
	ActiveSlot() (Metadata, ActiveFirmwareSlot, MetadataStatus)
}

// DeviceIdentity is the serial-number accessor interface
// (sysinfo_assy_serial_read/sysinfo_mlb_serial_read), backed on real
// hardware by a one-time-programmable region or provisioning flash
// page.
type DeviceIdentity interface {
	AssySerial() (string, bool)
	MLBSerial() (string, bool)
}
