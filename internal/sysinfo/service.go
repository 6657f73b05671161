package sysinfo

// SecureElement is the on-die crypto-coprocessor query surface used by
// the secinfo/cert/pubkeys/pubkey handlers (se_get_secinfo/
// se_read_cert/se_read_pubkeys/se_read_pubkey).
type SecureElement interface {
	SecInfo() (SEInfo, error)
	Cert(kind CertKind) ([]byte, error)
	Pubkeys() (Pubkeys, error)
	Pubkey(kind PubkeyKind) ([]byte, error)
	SecureBootConfig() SecureBootConfig
}

// CertKind selects which certificate se_read_cert returns.
type CertKind int

// PubkeyKind selects which immutable device key se_read_pubkey
// returns.
type PubkeyKind int

const (
	PubkeyBoot PubkeyKind = iota
	PubkeyAuth
	PubkeyAttestation
	PubkeySEAttestation
)

// Pubkeys bundles the device's four immutable public keys
// (se_pubkeys_t).
type Pubkeys struct {
	Boot, Auth, Attestation, SEAttestation []byte
}

// SEInfo mirrors se_info_t's OTP/status fields surfaced to the host.
type SEInfo struct {
	Version             uint32
	OTPVersion          uint32
	Serial              []byte
	SecureBootEnabled   bool
	AntiRollbackEnabled bool
	TamperLevels        []byte
	TamperFlags         uint32
	BootStatus          uint32
	SEFirmwareVersion   uint32
	HostFirmwareVersion uint32
	DeviceEraseEnabled  bool
	SecureDebugEnabled  bool
	TamperStatus        uint32
}

// SecureBootConfig mirrors secure_boot_config_t, surfaced in the
// device-info response.
type SecureBootConfig struct {
	Enabled bool
	Locked  bool
}

// TelemetryStorage is the crash/event log accessor (telemetry_storage,
// bitlog_drain).
type TelemetryStorage interface {
	CoredumpCount() uint32
	// CoredumpFragment returns the fragment at offset and whether the
	// read succeeded, matching telemetry_coredump_read_fragment.
	CoredumpFragment(offset uint32) ([]byte, bool)
	// DrainEvents copies as much of the pending bitlog as fits into
	// buf, returning the bytes written and the size still remaining
	// after the drain.
	DrainEvents(buf []byte) (written uint32, remaining uint32)
}

// EventStorageVersion is the wire version stamped on events-get
// responses (EVENT_STORAGE_VERSION).
const EventStorageVersion = 1

// FeatureFlags is the runtime feature-flag store
// (feature_flags_get_all/feature_flags_set_multiple).
type FeatureFlags interface {
	GetAll() []bool
	SetMultiple(flags map[int]bool) bool
}

// TemplateMaxCount bounds the fingerprint-match-stats table
// (TEMPLATE_MAX_COUNT).
const TemplateMaxCount = 3

// BioMatchStats mirrors bio_match_stats_t, the identify-attempt
// counters surfaced (and cleared) by the device-info query.
type BioMatchStats struct {
	FailCount   uint32
	PassCounts  [TemplateMaxCount]uint32
	// EnrolledVersion[i], when non-nil, is the firmware version that
	// last enrolled template slot i (bio_template_enrolled_by_version_get).
	EnrolledVersion [TemplateMaxCount]*Version
}

// BioStats owns the fingerprint-matcher counters and sensor status
// queries (bio_match_stats_get/bio_match_stats_clear/
// bio_sensor_is_secured/bio_sensor_is_otp_locked).
type BioStats interface {
	MatchStats() BioMatchStats
	ClearMatchStats()
	SensorSecured() (bool, bool)  // (enabled, ok)
	SensorOTPLocked() (bool, bool) // (locked, ok)
}

// Battery is the fuel-gauge accessor used by the fuel/device-info
// handlers (power_validate_fuel_gauge/power_get_battery); a narrower
// view than power.FuelGauge so this package does not need to import
// internal/power. cmd/core satisfies it with batteryFromGauge, an
// adapter over the same fuel gauge it hands to power.Monitor.
type Battery interface {
	Valid() bool
	Battery() (socMilliPercent uint32, vcellMV uint32, avgCurrentMA int32, cycles uint32, err error)
}

// Authenticator clears the authenticated flag, matching
// deauthenticate() as called from handle_wipe_state/
// handle_lock_device (the animated variant, unlike fwup's
// post-update DeauthenticateWithoutAnimation).
type Authenticator interface {
	Deauthenticate()
}

// WalletStateEraser removes key-manager wallet state, matching the
// IPC_KEY_MANAGER_REMOVE_WALLET_STATE round trip in handle_wipe_state.
type WalletStateEraser interface {
	RemoveWalletState() error
}

// Status enums, one per query, mirroring the fwpb_*_rsp_status
// variants.
type (
	MetaStatus             int
	DeviceIDStatus          int
	WipeStateStatus         int
	FuelStatus              int
	CoredumpStatus          int
	EventsStatus            int
	FeatureFlagsGetStatus   int
	FeatureFlagsSetStatus   int
	SecInfoStatus           int
	CertStatus              int
	PubkeysStatus           int
	PubkeyStatus            int
	FingerprintSettingsStatus int
	CapTouchCalStatus       int
	DeviceInfoStatus        int
)

const (
	MetaSuccess MetaStatus = iota
	MetaError
)

const (
	DeviceIDSuccess DeviceIDStatus = iota
)

const (
	WipeStateSuccess WipeStateStatus = iota
	WipeStateError
)

const (
	FuelSuccess FuelStatus = iota
)

const (
	CoredumpSuccess CoredumpStatus = iota
	CoredumpError
)

const (
	EventsSuccess EventsStatus = iota
)

const (
	FeatureFlagsGetSuccess FeatureFlagsGetStatus = iota
)

const (
	FeatureFlagsSetSuccess FeatureFlagsSetStatus = iota
	FeatureFlagsSetError
)

const (
	SecInfoSuccess SecInfoStatus = iota
	SecInfoOTPReadFail
	SecInfoContextError
)

const (
	CertSuccess CertStatus = iota
	CertReadFail
	CertContextError
)

const (
	PubkeysSuccess PubkeysStatus = iota
	PubkeysReadFail
)

const (
	PubkeySuccess PubkeyStatus = iota
	PubkeyReadFail
)

const (
	FingerprintSettingsSuccess FingerprintSettingsStatus = iota
	FingerprintSettingsReadFail
)

const (
	CapTouchCalSuccess CapTouchCalStatus = iota
	CapTouchCalError
	CapTouchCalUnsupported
)

const (
	DeviceInfoSuccess DeviceInfoStatus = iota
	DeviceInfoSerialError
	DeviceInfoMetadataError
	DeviceInfoBatteryError
)

// Service bundles the collaborators a Go port of sysinfo_task's
// handlers needs and exposes one method per handle_* function in the
// original. It holds no transport/IPC concerns of its own — cmd/core
// wires its methods to wireproto command dispatch.
type Service struct {
	Metadata   MetadataSource
	Identity   DeviceIdentity
	SE         SecureElement
	Telemetry  TelemetryStorage
	Flags      FeatureFlags
	Bio        BioStats
	Battery    Battery
	Auth       Authenticator
	WalletState WalletStateEraser

	softwareType     string
	hardwareRevision string
}

// NewService constructs a Service. softwareType/hardwareRevision back
// sysinfo_get()'s cached strings, loaded once at boot in the original
// via sysinfo_load().
func NewService(softwareType, hardwareRevision string) *Service {
	return &Service{softwareType: softwareType, hardwareRevision: hardwareRevision}
}

// MetaResponse mirrors fwpb_meta_rsp: one Metadata per slot, each with
// its own validity flag, plus the active slot.
type MetaResponse struct {
	Bootloader, SlotA, SlotB Metadata
	BootloaderValid          bool
	SlotAValid               bool
	SlotBValid               bool
	ActiveSlot               ActiveFirmwareSlot
	Status                   MetaStatus
}

// Meta handles handle_meta_cmd for the local (CORE) role; a
// non-CORE-targeted query is the caller's responsibility to forward
// over the inter-MCU channel before ever reaching here, matching
// sysinfo_task_request_coproc_metadata's early return.
func (s *Service) Meta() MetaResponse {
	var rsp MetaResponse
	rsp.Bootloader, _ = s.metadataOrZero(SlotBootloader)
	rsp.BootloaderValid = s.valid(SlotBootloader)
	rsp.SlotA, _ = s.metadataOrZero(SlotAppA)
	rsp.SlotAValid = s.valid(SlotAppA)
	rsp.SlotB, _ = s.metadataOrZero(SlotAppB)
	rsp.SlotBValid = s.valid(SlotAppB)
	_, rsp.ActiveSlot, _ = s.Metadata.ActiveSlot()

	if rsp.BootloaderValid || rsp.SlotAValid || rsp.SlotBValid {
		rsp.Status = MetaSuccess
	} else {
		rsp.Status = MetaError
	}
	return rsp
}

func (s *Service) valid(slot Slot) bool {
	_, status := s.Metadata.Get(slot)
	return status == MetadataValid
}

func (s *Service) metadataOrZero(slot Slot) (Metadata, MetadataStatus) {
	m, status := s.Metadata.Get(slot)
	if status != MetadataValid {
		return Metadata{}, status
	}
	return m, status
}

// DeviceIDResponse mirrors fwpb_device_id_rsp.
type DeviceIDResponse struct {
	AssySerial      string
	AssySerialValid bool
	MLBSerial       string
	MLBSerialValid  bool
	Status          DeviceIDStatus
}

// DeviceID handles handle_device_id_cmd.
func (s *Service) DeviceID() DeviceIDResponse {
	var rsp DeviceIDResponse
	rsp.AssySerial, rsp.AssySerialValid = s.Identity.AssySerial()
	rsp.MLBSerial, rsp.MLBSerialValid = s.Identity.MLBSerial()
	rsp.Status = DeviceIDSuccess
	return rsp
}

// WipeState handles handle_wipe_state: erases key-manager wallet
// state, deauthenticates, and signals the idle rest animation should
// resume (the caller publishes that event; this method just performs
// the erase+deauth and reports the outcome).
func (s *Service) WipeState() WipeStateStatus {
	if err := s.WalletState.RemoveWalletState(); err != nil {
		return WipeStateError
	}
	s.Auth.Deauthenticate()
	return WipeStateSuccess
}

// FuelResponse mirrors fwpb_fuel_rsp, the deprecated battery-only
// query superseded by DeviceInfo.
type FuelResponse struct {
	Valid bool
	SoC   uint32
	Vcell uint32
}

// Fuel handles handle_fuel_cmd.
func (s *Service) Fuel() FuelResponse {
	var rsp FuelResponse
	rsp.Valid = s.Battery.Valid()
	if rsp.Valid {
		rsp.SoC, rsp.Vcell, _, _, _ = s.Battery.Battery()
	}
	return rsp
}

// CoredumpQueryType selects handle_coredump_get's two modes.
type CoredumpQueryType int

const (
	CoredumpQueryCount CoredumpQueryType = iota
	CoredumpQueryFragment
)

// CoredumpResponse mirrors fwpb_coredump_get_rsp.
type CoredumpResponse struct {
	Count    uint32
	Fragment []byte
	HasFragment bool
	Status   CoredumpStatus
}

// CoredumpGet handles handle_coredump_get.
func (s *Service) CoredumpGet(query CoredumpQueryType, offset uint32) CoredumpResponse {
	switch query {
	case CoredumpQueryCount:
		return CoredumpResponse{Count: s.Telemetry.CoredumpCount(), Status: CoredumpSuccess}
	case CoredumpQueryFragment:
		frag, ok := s.Telemetry.CoredumpFragment(offset)
		if !ok {
			return CoredumpResponse{Status: CoredumpError}
		}
		return CoredumpResponse{Fragment: frag, HasFragment: true, Status: CoredumpSuccess}
	default:
		return CoredumpResponse{Status: CoredumpError}
	}
}

// EventsResponse mirrors fwpb_events_get_rsp.
type EventsResponse struct {
	Data      []byte
	Remaining uint32
	Version   uint32
	Status    EventsStatus
}

// EventsGet handles handle_events_get, draining the bitlog into buf.
func (s *Service) EventsGet(buf []byte) EventsResponse {
	written, remaining := s.Telemetry.DrainEvents(buf)
	return EventsResponse{
		Data:      buf[:written],
		Remaining: remaining,
		Version:   EventStorageVersion,
		Status:    EventsSuccess,
	}
}

// FeatureFlagsGet handles handle_feature_flags_get.
func (s *Service) FeatureFlagsGet() ([]bool, FeatureFlagsGetStatus) {
	return s.Flags.GetAll(), FeatureFlagsGetSuccess
}

// FeatureFlagsSet handles handle_feature_flags_set.
func (s *Service) FeatureFlagsSet(flags map[int]bool) FeatureFlagsSetStatus {
	if s.Flags.SetMultiple(flags) {
		return FeatureFlagsSetSuccess
	}
	return FeatureFlagsSetError
}

// SecInfoGet handles handle_secinfo_get.
func (s *Service) SecInfoGet() (SEInfo, SecInfoStatus) {
	info, err := s.SE.SecInfo()
	if err != nil {
		return SEInfo{}, SecInfoOTPReadFail
	}
	return info, SecInfoSuccess
}

// CertGet handles handle_cert_get.
func (s *Service) CertGet(kind CertKind) ([]byte, CertStatus) {
	cert, err := s.SE.Cert(kind)
	if err != nil {
		return nil, CertReadFail
	}
	return cert, CertSuccess
}

// PubkeysGet handles handle_pubkeys_get.
func (s *Service) PubkeysGet() (Pubkeys, PubkeysStatus) {
	keys, err := s.SE.Pubkeys()
	if err != nil {
		return Pubkeys{}, PubkeysReadFail
	}
	return keys, PubkeysSuccess
}

// PubkeyGet handles handle_pubkey_get.
func (s *Service) PubkeyGet(kind PubkeyKind) ([]byte, PubkeyStatus) {
	key, err := s.SE.Pubkey(kind)
	if err != nil {
		return nil, PubkeyReadFail
	}
	return key, PubkeySuccess
}

// FingerprintSettingsGet handles handle_fingerprint_settings_get.
func (s *Service) FingerprintSettingsGet() (securityEnabled, otpLocked bool, status FingerprintSettingsStatus) {
	enabled, ok1 := s.Bio.SensorSecured()
	locked, ok2 := s.Bio.SensorOTPLocked()
	if !ok1 || !ok2 {
		return false, false, FingerprintSettingsReadFail
	}
	return enabled, locked, FingerprintSettingsSuccess
}

// DeviceInfoResponse mirrors fwpb_device_info_rsp.
type DeviceInfoResponse struct {
	Serial           string
	Version          Version
	SoftwareType     string
	HardwareRevision string
	BatteryChargeSoC uint32
	VcellMV          uint32
	AvgCurrentMA     int32
	BatteryCycles    uint32
	SecureBoot       SecureBootConfig
	MatchStats       BioMatchStats
	ActiveSlot       ActiveFirmwareSlot
	Status           DeviceInfoStatus
}

// DeviceInfo handles handle_device_info: the consolidated query that
// supersedes Fuel/TelemetryID, assembling identity, metadata, battery,
// secure-boot config, and fingerprint stats into one response, then
// clearing the match-stats counters to avoid double-reporting on the
// next poll.
func (s *Service) DeviceInfo() DeviceInfoResponse {
	var rsp DeviceInfoResponse

	serial, ok := s.Identity.AssySerial()
	if !ok {
		rsp.Status = DeviceInfoSerialError
		return rsp
	}
	rsp.Serial = serial

	meta, activeSlot, status := s.Metadata.ActiveSlot()
	if status != MetadataValid {
		rsp.Status = DeviceInfoMetadataError
		return rsp
	}
	rsp.Version = meta.Version
	rsp.ActiveSlot = activeSlot
	rsp.SoftwareType = s.softwareType
	rsp.HardwareRevision = s.hardwareRevision

	if !s.Battery.Valid() {
		rsp.Status = DeviceInfoBatteryError
	}
	rsp.BatteryChargeSoC, rsp.VcellMV, rsp.AvgCurrentMA, rsp.BatteryCycles, _ = s.Battery.Battery()

	rsp.SecureBoot = s.SE.SecureBootConfig()

	rsp.MatchStats = s.Bio.MatchStats()
	s.Bio.ClearMatchStats()

	if rsp.Status != DeviceInfoBatteryError {
		rsp.Status = DeviceInfoSuccess
	}
	return rsp
}

// LockDevice handles handle_lock_device: deauthenticate without
// touching any other state.
func (s *Service) LockDevice() {
	s.Auth.Deauthenticate()
}
