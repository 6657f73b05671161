package sysinfo

import (
	"errors"
	"testing"
	"time"
)

type fakeMetadataSource struct {
	slots  map[Slot]Metadata
	status map[Slot]MetadataStatus
	active ActiveFirmwareSlot
}

func newFakeMetadataSource() *fakeMetadataSource {
	return &fakeMetadataSource{slots: map[Slot]Metadata{}, status: map[Slot]MetadataStatus{}}
}

func (f *fakeMetadataSource) Get(slot Slot) (Metadata, MetadataStatus) {
	if st, ok := f.status[slot]; ok {
		return f.slots[slot], st
	}
	return Metadata{}, MetadataMissing
}

func (f *fakeMetadataSource) ActiveSlot() (Metadata, ActiveFirmwareSlot, MetadataStatus) {
	slot := SlotAppA
	if f.active == ActiveSlotB {
		slot = SlotAppB
	}
	m, st := f.Get(slot)
	return m, f.active, st
}

type fakeIdentity struct {
	assy, mlb       string
	assyOK, mlbOK bool
}

func (f *fakeIdentity) AssySerial() (string, bool) { return f.assy, f.assyOK }
func (f *fakeIdentity) MLBSerial() (string, bool)  { return f.mlb, f.mlbOK }

type fakeSE struct {
	secInfoErr error
	certErr    error
	pubkeysErr error
	pubkeyErr  error
}

func (f *fakeSE) SecInfo() (SEInfo, error)         { return SEInfo{Version: 1}, f.secInfoErr }
func (f *fakeSE) Cert(kind CertKind) ([]byte, error) { return []byte{1, 2, 3}, f.certErr }
func (f *fakeSE) Pubkeys() (Pubkeys, error)        { return Pubkeys{Boot: []byte{1}}, f.pubkeysErr }
func (f *fakeSE) Pubkey(kind PubkeyKind) ([]byte, error) { return []byte{9}, f.pubkeyErr }
func (f *fakeSE) SecureBootConfig() SecureBootConfig { return SecureBootConfig{Enabled: true} }

type fakeTelemetry struct {
	count     uint32
	fragments map[uint32][]byte
}

func (f *fakeTelemetry) CoredumpCount() uint32 { return f.count }
func (f *fakeTelemetry) CoredumpFragment(offset uint32) ([]byte, bool) {
	frag, ok := f.fragments[offset]
	return frag, ok
}
func (f *fakeTelemetry) DrainEvents(buf []byte) (uint32, uint32) {
	n := copy(buf, []byte{1, 2, 3})
	return uint32(n), 0
}

type fakeFlags struct {
	flags []bool
	setOK bool
}

func (f *fakeFlags) GetAll() []bool             { return f.flags }
func (f *fakeFlags) SetMultiple(m map[int]bool) bool { return f.setOK }

type fakeBio struct {
	stats         BioMatchStats
	cleared       bool
	secured       bool
	securedOK     bool
	otpLocked     bool
	otpLockedOK bool
}

func (f *fakeBio) MatchStats() BioMatchStats      { return f.stats }
func (f *fakeBio) ClearMatchStats()                { f.cleared = true }
func (f *fakeBio) SensorSecured() (bool, bool)     { return f.secured, f.securedOK }
func (f *fakeBio) SensorOTPLocked() (bool, bool)   { return f.otpLocked, f.otpLockedOK }

type fakeBattery struct {
	valid bool
	soc   uint32
}

func (f *fakeBattery) Valid() bool { return f.valid }
func (f *fakeBattery) Battery() (uint32, uint32, int32, uint32, error) {
	return f.soc, 3700, -80, 2, nil
}

type fakeAuth struct {
	deauthenticated bool
}

func (f *fakeAuth) Deauthenticate() { f.deauthenticated = true }

type fakeWalletState struct {
	err error
}

func (f *fakeWalletState) RemoveWalletState() error { return f.err }

func newTestService() (*Service, *fakeMetadataSource, *fakeAuth, *fakeWalletState, *fakeBattery, *fakeBio) {
	meta := newFakeMetadataSource()
	meta.status[SlotAppA] = MetadataValid
	meta.slots[SlotAppA] = Metadata{Version: Version{1, 2, 3}, HardwareRevision: "w1a-evt"}
	meta.active = ActiveSlotA

	auth := &fakeAuth{}
	wallet := &fakeWalletState{}
	battery := &fakeBattery{valid: true, soc: 75000}
	bio := &fakeBio{securedOK: true, otpLockedOK: true}

	s := NewService("app", "w1a-evt")
	s.Metadata = meta
	s.Identity = &fakeIdentity{assy: "ASSY0000000001", assyOK: true, mlb: "MLB00000000001", mlbOK: true}
	s.SE = &fakeSE{}
	s.Telemetry = &fakeTelemetry{count: 2, fragments: map[uint32][]byte{0: {0xAA}}}
	s.Flags = &fakeFlags{flags: []bool{true, false}, setOK: true}
	s.Bio = bio
	s.Battery = battery
	s.Auth = auth
	s.WalletState = wallet
	return s, meta, auth, wallet, battery, bio
}

func TestMetaReportsPerSlotValidity(t *testing.T) {
	s, _, _, _, _, _ := newTestService()
	rsp := s.Meta()
	if !rsp.SlotAValid || rsp.SlotBValid || rsp.BootloaderValid {
		t.Fatalf("expected only slot A valid, got %+v", rsp)
	}
	if rsp.Status != MetaSuccess {
		t.Fatal("expected MetaSuccess when at least one slot is valid")
	}
}

func TestMetaErrorWhenAllSlotsInvalid(t *testing.T) {
	s, meta, _, _, _, _ := newTestService()
	delete(meta.status, SlotAppA)
	rsp := s.Meta()
	if rsp.Status != MetaError {
		t.Fatal("expected MetaError when no slot is valid")
	}
}

func TestWipeStateDeauthenticatesOnSuccess(t *testing.T) {
	s, _, auth, _, _, _ := newTestService()
	status := s.WipeState()
	if status != WipeStateSuccess {
		t.Fatal("expected WipeStateSuccess")
	}
	if !auth.deauthenticated {
		t.Fatal("expected wipe to deauthenticate")
	}
}

func TestWipeStateErrorSkipsDeauthenticate(t *testing.T) {
	s, _, auth, wallet, _, _ := newTestService()
	wallet.err = errors.New("erase failed")
	status := s.WipeState()
	if status != WipeStateError {
		t.Fatal("expected WipeStateError")
	}
	if auth.deauthenticated {
		t.Fatal("expected a failed erase not to deauthenticate")
	}
}

func TestCoredumpGetCountAndFragment(t *testing.T) {
	s, _, _, _, _, _ := newTestService()
	count := s.CoredumpGet(CoredumpQueryCount, 0)
	if count.Count != 2 || count.Status != CoredumpSuccess {
		t.Fatalf("unexpected count response: %+v", count)
	}
	frag := s.CoredumpGet(CoredumpQueryFragment, 0)
	if !frag.HasFragment || frag.Status != CoredumpSuccess {
		t.Fatalf("unexpected fragment response: %+v", frag)
	}
	missing := s.CoredumpGet(CoredumpQueryFragment, 99)
	if missing.Status != CoredumpError {
		t.Fatal("expected CoredumpError for a missing fragment offset")
	}
}

func TestDeviceInfoAssemblesAndClearsBioStats(t *testing.T) {
	s, _, _, _, _, bio := newTestService()
	rsp := s.DeviceInfo()
	if rsp.Status != DeviceInfoSuccess {
		t.Fatalf("expected DeviceInfoSuccess, got %+v", rsp)
	}
	if rsp.Serial != "ASSY0000000001" || rsp.BatteryChargeSoC != 75000 {
		t.Fatalf("unexpected device info: %+v", rsp)
	}
	if !bio.cleared {
		t.Fatal("expected device info query to clear match stats")
	}
}

func TestDeviceInfoSerialErrorShortCircuits(t *testing.T) {
	s, _, _, _, _, _ := newTestService()
	s.Identity = &fakeIdentity{assyOK: false}
	rsp := s.DeviceInfo()
	if rsp.Status != DeviceInfoSerialError {
		t.Fatalf("expected DeviceInfoSerialError, got %v", rsp.Status)
	}
}

func TestDeviceInfoBatteryErrorStillReturnsOtherFields(t *testing.T) {
	s, _, _, _, battery, _ := newTestService()
	battery.valid = false
	rsp := s.DeviceInfo()
	if rsp.Status != DeviceInfoBatteryError {
		t.Fatalf("expected DeviceInfoBatteryError, got %v", rsp.Status)
	}
	if rsp.Serial == "" {
		t.Fatal("expected serial still populated despite battery error")
	}
}

func TestLockDeviceDeauthenticates(t *testing.T) {
	s, _, auth, _, _, _ := newTestService()
	s.LockDevice()
	if !auth.deauthenticated {
		t.Fatal("expected LockDevice to deauthenticate")
	}
}

type recordingWatchdog struct {
	fed int
}

func (w *recordingWatchdog) Feed() { w.fed++ }

func TestWatchdogFeederFeedsPeriodically(t *testing.T) {
	wdog := &recordingWatchdog{}
	f := NewWatchdogFeeder(wdog, 5*time.Millisecond)
	f.Start()
	defer f.Stop()
	time.Sleep(30 * time.Millisecond)
	f.Stop()
	if wdog.fed == 0 {
		t.Fatal("expected at least one watchdog feed")
	}
}

type fakeCalGPIO struct {
	set, cleared int
}

func (g *fakeCalGPIO) Set() error   { g.set++; return nil }
func (g *fakeCalGPIO) Clear() error { g.cleared++; return nil }

func TestCapTouchCalibrateUnsupportedWhenNoHoldConfigured(t *testing.T) {
	c := NewCapTouchCalibrator(&fakeCalGPIO{}, 0, nil)
	if status := c.Calibrate(); status != CapTouchCalUnsupported {
		t.Fatalf("expected CapTouchCalUnsupported, got %v", status)
	}
}

func TestCapTouchCalibrateConfiguresOnceAndPulses(t *testing.T) {
	gpio := &fakeCalGPIO{}
	configured := 0
	c := NewCapTouchCalibrator(gpio, 5, func() { configured++ })

	if status := c.Calibrate(); status != CapTouchCalSuccess {
		t.Fatalf("expected CapTouchCalSuccess, got %v", status)
	}
	if gpio.set != 1 {
		t.Fatal("expected the GPIO to be driven high")
	}
	if configured != 1 {
		t.Fatal("expected configure called exactly once")
	}

	c.Calibrate()
	if configured != 1 {
		t.Fatal("expected configure not called again on a second calibration")
	}

	time.Sleep(20 * time.Millisecond)
	if gpio.cleared == 0 {
		t.Fatal("expected the GPIO to clear automatically after the hold duration")
	}
}
