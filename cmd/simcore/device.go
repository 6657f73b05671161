package main

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"periph.io/x/conn/v3/gpio"

	"github.com/signetco/corefw/internal/auth"
	"github.com/signetco/corefw/internal/auth/biomock"
	"github.com/signetco/corefw/internal/captouch"
	"github.com/signetco/corefw/internal/fault"
	"github.com/signetco/corefw/internal/fwup"
	"github.com/signetco/corefw/internal/keymanager"
	"github.com/signetco/corefw/internal/kv"
	"github.com/signetco/corefw/internal/nfc/wca"
	"github.com/signetco/corefw/internal/power"
	"github.com/signetco/corefw/internal/sysinfo"
	"github.com/signetco/corefw/internal/uievent"
	"github.com/signetco/corefw/internal/unlock"
	"github.com/signetco/corefw/internal/wireproto"
)

// sleepAdapter bridges power.SleepTimer's Start/Stop/Refresh/Inhibit
// names onto the two distinct narrow interfaces package unlock and
// package auth each declare for it (unlock.Sleep wants
// Inhibit(time.Duration)/ClearInhibit; auth.Sleep wants
// Start/Stop/RefreshPowerTimer). One adapter value satisfies both,
// since Go interface satisfaction is structural per call site.
type sleepAdapter struct {
	timer *power.SleepTimer
}

func (a sleepAdapter) Inhibit(extra time.Duration) { a.timer.Inhibit(uint32(extra / time.Millisecond)) }
func (a sleepAdapter) ClearInhibit()               { a.timer.ClearInhibit() }
func (a sleepAdapter) StartPowerTimer()            { a.timer.Start() }
func (a sleepAdapter) StopPowerTimer()             { a.timer.Stop() }
func (a sleepAdapter) RefreshPowerTimer()          { a.timer.Refresh() }

// noopSensePin never reports a real edge; the simulator has no
// physical captouch pad to drive, but the Watcher goroutine still runs
// so its plumbing (power timer refresh, break-glass arming) stays
// reachable from a unit test driving onEdge directly.
type noopSensePin struct{}

func (noopSensePin) In(gpio.Pull, gpio.Edge) error  { return nil }
func (noopSensePin) WaitForEdge(d time.Duration) bool { time.Sleep(d); return false }
func (noopSensePin) Read() gpio.Level               { return gpio.Low }

// fakeCharger/fakeGauge simulate a PMIC and fuel gauge holding a fixed
// reading; a real cmd/core build wires periph.io/x/conn/v3/i2c here
// instead.
type fakeCharger struct{ mode power.ChargerMode }

func (c *fakeCharger) Mode() (power.ChargerMode, error)  { return c.mode, nil }
func (c *fakeCharger) IsPluggedIn() (bool, error)        { return false, nil }
func (c *fakeCharger) EnableCharging() error             { return nil }
func (c *fakeCharger) DisableCharging() error            { return nil }
func (c *fakeCharger) SetLDOLowPowerMode() error         { return nil }

type fakeGauge struct{ socMilli uint32 }

func (g *fakeGauge) Battery() (uint32, uint32, int32, uint32, error) {
	return g.socMilli, 3700, -50, 3, nil
}

// memTemplateStore is an in-memory auth.TemplateStore.
type memTemplateStore struct {
	mu         sync.Mutex
	templates  []auth.Template
	lastUpdate uint32
	haveUpdate bool
	enrolledFW string
}

func newMemTemplateStore() *memTemplateStore { return &memTemplateStore{} }

func (s *memTemplateStore) Templates() []auth.Template {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]auth.Template(nil), s.templates...)
}

func (s *memTemplateStore) SaveTemplate(idx int, t auth.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for idx >= len(s.templates) {
		s.templates = append(s.templates, auth.Template{})
	}
	s.templates[idx] = t
	return nil
}

func (s *memTemplateStore) LastUpdateTimestamp() (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUpdate, s.haveUpdate
}

func (s *memTemplateStore) SetLastUpdateTimestamp(ts uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUpdate, s.haveUpdate = ts, true
	return nil
}

func (s *memTemplateStore) RecordEnrollFirmwareVersion(version string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enrolledFW = version
	return nil
}

// memMetadataSource reports one always-valid slot, standing in for the
// bootloader-written metadata page.
type memMetadataSource struct {
	meta sysinfo.Metadata
}

func (m *memMetadataSource) Get(slot sysinfo.Slot) (sysinfo.Metadata, sysinfo.MetadataStatus) {
	if slot != sysinfo.SlotAppA {
		return sysinfo.Metadata{}, sysinfo.MetadataMissing
	}
	return m.meta, sysinfo.MetadataValid
}

func (m *memMetadataSource) ActiveSlot() (sysinfo.Metadata, sysinfo.ActiveFirmwareSlot, sysinfo.MetadataStatus) {
	return m.meta, sysinfo.ActiveSlotA, sysinfo.MetadataValid
}

type memIdentity struct{ assy, mlb string }

func (i *memIdentity) AssySerial() (string, bool) { return i.assy, true }
func (i *memIdentity) MLBSerial() (string, bool)  { return i.mlb, true }

type memTelemetry struct{}

func (memTelemetry) CoredumpCount() uint32                         { return 0 }
func (memTelemetry) CoredumpFragment(uint32) ([]byte, bool)        { return nil, false }
func (memTelemetry) DrainEvents(buf []byte) (uint32, uint32)       { return 0, 0 }

type memFlags struct {
	mu    sync.Mutex
	flags []bool
}

func (f *memFlags) GetAll() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.flags...)
}

func (f *memFlags) SetMultiple(m map[int]bool) bool {
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

type memBio struct {
	mu      sync.Mutex
	stats   sysinfo.BioMatchStats
	cleared int
}

func (b *memBio) MatchStats() sysinfo.BioMatchStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}
func (b *memBio) ClearMatchStats() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cleared++
	b.stats = sysinfo.BioMatchStats{}
}
func (b *memBio) SensorSecured() (bool, bool)   { return true, true }
func (b *memBio) SensorOTPLocked() (bool, bool) { return true, true }

// batteryFromGauge adapts fakeGauge to sysinfo.Battery.
type batteryFromGauge struct{ gauge *fakeGauge }

func (b batteryFromGauge) Valid() bool { return true }
func (b batteryFromGauge) Battery() (uint32, uint32, int32, uint32, error) {
	return b.gauge.Battery()
}

// authAdapter exposes auth.State as sysinfo.Authenticator and
// fwup.Deauthenticator without either package importing the other.
type authAdapter struct{ state *auth.State }

func (a authAdapter) Deauthenticate()                   { a.state.SetAuthenticated(false) }
func (a authAdapter) DeauthenticateWithoutAnimation()    { a.state.SetAuthenticated(false) }

type noopWalletState struct{}

func (noopWalletState) RemoveWalletState() error { return nil }

type noopResetter struct{ reason string }

func (r *noopResetter) ResetWithReason(reason string) { r.reason = reason }

// Device bundles one simulated core MCU's full task set: every
// subsystem a real cmd/core build would wire against hardware, here
// wired against in-memory/simulated peripherals instead.
type Device struct {
	KV       *kv.Store
	Events   *uievent.Bus
	Power    *power.SleepTimer
	Monitor  *power.Monitor
	CapTouch *captouch.Watcher
	Unlock   *unlock.Engine
	Auth     *auth.State
	Matcher  *auth.Matcher
	Bio      *biomock.Sensor
	Elem     *simElement
	KeyMgr   *keymanager.Manager
	Worker   *keymanager.Worker
	FWUP     *fwup.Task
	Slot     *memSlot
	SysInfo  *sysinfo.Service
	Proto    *wireproto.Dispatcher
	WCA      *wca.Handler

	resetter             *noopResetter
	pendingSecureChannel keymanager.PendingSecureChannel
}

const (
	fingerprintSamplesNeeded = 3
	simFirmwareVersion       = "0.0.0-sim"
	authExpiry               = 60 * time.Second
	authRateLimit             = 500 * time.Millisecond
	fwupSlotSize             = 256 * 1024
)

// NewDevice wires every core task against simulated peripherals,
// mirroring the construction order of a real cmd/core main: storage,
// then power, then the authentication stack, then key manager, then
// fwup, then sysinfo, then the host-facing protocol dispatcher.
func NewDevice() (*Device, error) {
	events := uievent.NewBus()

	store, err := kv.Open(newMemFile())
	if err != nil {
		return nil, err
	}

	timer := power.NewSleepTimer(func() {})
	sleep := sleepAdapter{timer: timer}
	charger := &fakeCharger{mode: power.ChargerModeCC}
	gauge := &fakeGauge{socMilli: 80_000}
	monitor := power.NewMonitor(charger, gauge, events, 30*time.Second)

	resetter := &noopResetter{}

	var genericAuth *auth.State
	unlockEngine := unlock.New(store, sleep, authSetter{&genericAuth}, func() {
		// ResponseWipeState callback; the simulator has no wallet
		// state of its own to erase.
	})
	unlockEngine.Init()

	authState := auth.New(authExpiry, authRateLimit, events, sleep, unlockEngine)
	genericAuth = authState

	bio := biomock.New(fingerprintSamplesNeeded)
	templates := newMemTemplateStore()
	trap := &fault.Recorder{}
	matcher := auth.NewMatcher(authState, bio, templates, func() bool { return true }, trap.Handle, fingerprintSamplesNeeded, simFirmwareVersion)

	touchPower := timer
	capWatcher := captouch.NewWatcher(noopSensePin{}, events, touchPower, authState)

	elem := newSimElement()
	seed := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, seed); err != nil {
		return nil, err
	}
	wrapped, err := elem.Seal(seed)
	if err != nil {
		return nil, err
	}
	master := func() (*hdkeychain.ExtendedKey, error) {
		raw, err := elem.Unseal(wrapped)
		if err != nil {
			return nil, err
		}
		return hdkeychain.NewMaster(raw, &chaincfg.MainNetParams)
	}
	var wrapKey [32]byte
	if _, err := io.ReadFull(rand.Reader, wrapKey[:]); err != nil {
		return nil, err
	}
	keyMgr := keymanager.New(elem, elem.AttestKey(), authState, master, wrapKey)
	worker := keymanager.NewWorker(keyMgr)

	slot := newMemSlot(fwupSlotSize)
	fwupTask := fwup.New(slot, authAdapter{authState}, resetter, nil, func(time.Duration) {})

	sysinfoSvc := sysinfo.NewService("app", "sim-evt")
	sysinfoSvc.Metadata = &memMetadataSource{meta: sysinfo.Metadata{Version: sysinfo.Version{0, 0, 0}, HardwareRevision: "sim-evt"}}
	sysinfoSvc.Identity = &memIdentity{assy: "SIM0000000000001", mlb: "SIMMLB0000000001"}
	sysinfoSvc.SE = elem
	sysinfoSvc.Telemetry = memTelemetry{}
	sysinfoSvc.Flags = &memFlags{}
	sysinfoSvc.Bio = &memBio{}
	sysinfoSvc.Battery = batteryFromGauge{gauge: gauge}
	sysinfoSvc.Auth = authAdapter{authState}
	sysinfoSvc.WalletState = noopWalletState{}

	proto := wireproto.NewDispatcher()

	d := &Device{
		KV:       store,
		Events:   events,
		Power:    timer,
		Monitor:  monitor,
		CapTouch: capWatcher,
		Unlock:   unlockEngine,
		Auth:     authState,
		Matcher:  matcher,
		Bio:      bio,
		Elem:     elem,
		KeyMgr:   keyMgr,
		Worker:   worker,
		FWUP:     fwupTask,
		Slot:     slot,
		SysInfo:  sysinfoSvc,
		Proto:    proto,
		resetter: resetter,
	}
	d.registerHandlers()
	d.WCA = wca.NewHandler(wcaRouter{d})
	return d, nil
}

// authSetter adapts a pointer-to-*auth.State so unlock.New can be
// constructed before auth.New exists (the two packages construct each
// other's narrow dependency), resolving the cycle at the first real
// SetAuthenticated call rather than at construction time.
type authSetter struct {
	state **auth.State
}

func (a authSetter) SetAuthenticated(v bool) {
	if *a.state != nil {
		(*a.state).SetAuthenticated(v)
	}
}
