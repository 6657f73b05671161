package main

import (
	"crypto/rand"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"periph.io/x/conn/v3/i2c"

	"github.com/signetco/corefw/internal/auth"
	"github.com/signetco/corefw/internal/auth/biomock"
	"github.com/signetco/corefw/internal/boardcfg"
	"github.com/signetco/corefw/internal/captouch"
	"github.com/signetco/corefw/internal/fault"
	"github.com/signetco/corefw/internal/fwup"
	"github.com/signetco/corefw/internal/hostproto"
	"github.com/signetco/corefw/internal/keymanager"
	"github.com/signetco/corefw/internal/kv"
	"github.com/signetco/corefw/internal/nfc"
	"github.com/signetco/corefw/internal/nfc/wca"
	"github.com/signetco/corefw/internal/platform"
	"github.com/signetco/corefw/internal/power"
	"github.com/signetco/corefw/internal/sysinfo"
	"github.com/signetco/corefw/internal/uc"
	"github.com/signetco/corefw/internal/uievent"
	"github.com/signetco/corefw/internal/unlock"
	"github.com/signetco/corefw/internal/wireproto"
)

// Config names the physical peripherals one real core-MCU board build
// wires against. Every field has a sensible default so a bring-up
// board with only some peripherals attached can still run with the
// rest quietly absent (a missing I2C/SPI/serial device returns an
// error only when the corresponding subsystem is actually opened).
type Config struct {
	StateDir   string
	I2CBus     string
	ChargerAddr, FuelGaugeAddr uint16
	CapTouchPin string
	NFCSPIBus   string
	UCSerial    string
	UCBaud      int
	FwupSlotSize uint32
}

// DefaultConfig returns the constants a production board build uses,
// overridable by cmd/core's flags.
func DefaultConfig() Config {
	return Config{
		StateDir:     "/var/lib/corefw",
		I2CBus:       "",
		ChargerAddr:  0x35,
		FuelGaugeAddr: 0x36,
		CapTouchPin:  "GPIO21",
		NFCSPIBus:    "",
		UCSerial:     "/dev/ttyAMA1",
		UCBaud:       2000000,
		FwupSlotSize: 2 * 1024 * 1024,
	}
}

// sleepAdapter, authSetter, authAdapter: see cmd/simcore/device.go for
// the full rationale (narrow-interface bridging and the unlock/auth
// construction cycle); both builds wire the same internal packages
// against the same three adapters.
type sleepAdapter struct {
	timer *power.SleepTimer
}

func (a sleepAdapter) Inhibit(extra time.Duration) { a.timer.Inhibit(uint32(extra / time.Millisecond)) }
func (a sleepAdapter) ClearInhibit()               { a.timer.ClearInhibit() }
func (a sleepAdapter) StartPowerTimer()            { a.timer.Start() }
func (a sleepAdapter) StopPowerTimer()              { a.timer.Stop() }
func (a sleepAdapter) RefreshPowerTimer()           { a.timer.Refresh() }

type authSetter struct {
	state **auth.State
}

func (a authSetter) SetAuthenticated(v bool) {
	if *a.state != nil {
		(*a.state).SetAuthenticated(v)
	}
}

type authAdapter struct{ state *auth.State }

func (a authAdapter) Deauthenticate()                { a.state.SetAuthenticated(false) }
func (a authAdapter) DeauthenticateWithoutAnimation() { a.state.SetAuthenticated(false) }

// coreResetter performs the "MCU reset" a Linux-hosted build has
// available: log the reason and exit, relying on a process supervisor
// (systemd Restart=always, or the equivalent init) to bring the
// process back up clean, mirroring a watchdog-triggered MCU reset.
type coreResetter struct{}

func (coreResetter) ResetWithReason(reason string) {
	log.Printf("core: reset: %s", reason)
	osExit(1)
}

type noopWalletState struct{}

func (noopWalletState) RemoveWalletState() error { return nil }

// wcaRouter adapts a Device's wireproto.Dispatcher to wca.Router; see
// cmd/simcore/handlers.go's identical type for the tag-derivation
// rationale.
type wcaRouter struct {
	d *Device
}

func (r wcaRouter) RouteProto(tag uint32, body []byte) error {
	rsp, err := r.d.Proto.Dispatch(body)
	if err != nil {
		return err
	}
	r.d.WCA.HandleProtoResponse(rsp)
	return nil
}

// Device bundles one real core-MCU board's full task set, wired
// against actual peripherals instead of cmd/simcore's in-memory
// stand-ins: an i2c-attached PMIC/fuel-gauge, a GPIO cap-touch pin, a
// file-backed key-value store and firmware slot standing in for
// littlefs/external flash (the flash driver itself is out of scope),
// a software secure element standing in for discrete secure-element
// silicon (also out of scope), and a serial link to the display MCU.
type Device struct {
	Config Config

	KV       *kv.Store
	Events   *uievent.Bus
	Power    *power.SleepTimer
	Monitor  *power.Monitor
	CapTouch *captouch.Watcher
	Unlock   *unlock.Engine
	Auth     *auth.State
	Matcher  *auth.Matcher
	Bio      *biomock.Sensor
	Elem     *coreElement
	KeyMgr   *keymanager.Manager
	Worker   *keymanager.Worker
	FWUP     *fwup.Task
	Slot     *fileSlot
	SysInfo  *sysinfo.Service
	Proto    *wireproto.Dispatcher
	WCA      *wca.Handler
	UC       *uc.Transport
	NFC      *nfc.Session

	i2cBus i2c.BusCloser
	port   ucPort

	pendingSecureChannel keymanager.PendingSecureChannel
}

// ucPort is the subset of *serial.Port the Device keeps a handle to,
// so tests can substitute an in-memory pipe without pulling in a real
// tty.
type ucPort interface {
	Write(p []byte) (int, error)
	Read(p []byte) (int, error)
	Close() error
}

const fingerprintSamplesNeeded = 3

// osExit is a package variable so a future supervisor test can
// override process termination; production always calls os.Exit.
var osExit = os.Exit

// NewDevice wires every core task against real peripherals, mirroring
// cmd/simcore's construction order: storage, then power, then the
// authentication stack, then key manager, then fwup, then sysinfo,
// then the host-facing protocol dispatcher and its two transports
// (NFC for the host, uc for the display MCU).
func NewDevice(cfg Config) (*Device, error) {
	events := uievent.NewBus()
	boardConf := boardcfg.Default(boardcfg.VariantDisplay)

	kvFile := platform.NewOSFile(cfg.StateDir, "unlock.kv")
	store, err := kv.Open(kvFile)
	if err != nil {
		return nil, fmt.Errorf("core: kv: %w", err)
	}

	bus, err := openI2CBus(cfg.I2CBus)
	if err != nil {
		return nil, err
	}
	charger := newI2CCharger(bus, cfg.ChargerAddr)
	gauge := newI2CFuelGauge(bus, cfg.FuelGaugeAddr)

	timer := power.NewSleepTimer(func() {})
	sleep := sleepAdapter{timer: timer}
	monitor := power.NewMonitor(charger, gauge, events, boardConf.SleepTimeout/2)

	resetter := coreResetter{}

	var genericAuth *auth.State
	unlockEngine := unlock.New(store, sleep, authSetter{&genericAuth}, func() {
		// ResponseWipeState: the key manager's RemoveWalletState call
		// (wired below via sysinfo.WalletState) is the real wipe path;
		// there is no separate wallet state to erase here.
	})
	unlockEngine.Init()

	authState := auth.New(boardConf.AuthExpiry, boardConf.AuthRateLimit, events, sleep, unlockEngine)
	genericAuth = authState

	bio := biomock.New(fingerprintSamplesNeeded)
	templateFile := platform.NewOSFile(cfg.StateDir, "templates.cbor")
	templates, err := openFileTemplateStore(templateFile)
	if err != nil {
		return nil, err
	}
	trap := &fault.Recorder{}
	matcher := auth.NewMatcher(authState, bio, templates, func() bool { return true }, trap.Handle, fingerprintSamplesNeeded, coreFirmwareVersion)

	sensePin, err := openSensePin(cfg.CapTouchPin)
	if err != nil {
		return nil, err
	}
	capWatcher := captouch.NewWatcher(sensePin, events, timer, authState)

	elem, err := newCoreElement()
	if err != nil {
		return nil, err
	}
	seedFile := platform.NewOSFile(cfg.StateDir, "seed.sealed")
	wrapped, err := loadOrCreateSeed(elem, seedFile)
	if err != nil {
		return nil, err
	}
	master := func() (*hdkeychain.ExtendedKey, error) {
		raw, err := elem.Unseal(wrapped)
		if err != nil {
			return nil, err
		}
		defer zero(raw)
		return hdkeychain.NewMaster(raw, &chaincfg.MainNetParams)
	}
	var wrapKey [32]byte
	if _, err := io.ReadFull(rand.Reader, wrapKey[:]); err != nil {
		return nil, err
	}
	keyMgr := keymanager.New(elem, elem.AttestKey(), authState, master, wrapKey)
	worker := keymanager.NewWorker(keyMgr)

	slot, err := openFileSlot(filepath.Join(cfg.StateDir, "appb.slot"), cfg.FwupSlotSize)
	if err != nil {
		return nil, err
	}

	port, err := openUCPort(cfg.UCSerial, cfg.UCBaud)
	if err != nil {
		return nil, err
	}
	transport := uc.New(port.Write)
	coproc := newCoprocForwarder(transport)

	fwupTask := fwup.New(slot, authAdapter{authState}, resetter, coproc, nil)

	provFile := platform.NewOSFile(cfg.StateDir, "provisioning.cbor")
	provisioning, err := openFileProvisioning(provFile, sysinfo.Metadata{
		Version:          sysinfo.Version{0, 1, 0},
		HardwareRevision: "core-v1",
	})
	if err != nil {
		return nil, err
	}

	sysinfoSvc := sysinfo.NewService("app", "core-v1")
	sysinfoSvc.Metadata = provisioning
	sysinfoSvc.Identity = provisioning
	sysinfoSvc.SE = elem
	sysinfoSvc.Telemetry = coreTelemetry{}
	sysinfoSvc.Flags = &coreFlags{}
	sysinfoSvc.Bio = &coreBio{}
	sysinfoSvc.Battery = batteryFromGauge{gauge: gauge}
	sysinfoSvc.Auth = authAdapter{authState}
	sysinfoSvc.WalletState = noopWalletState{}

	proto := wireproto.NewDispatcher()

	d := &Device{
		Config:   cfg,
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
		UC:       transport,
		i2cBus:   bus,
		port:     port,
	}
	hostproto.Register(proto, hostproto.Deps{
		Unlock:  unlockEngine,
		Auth:    authState,
		KeyMgr:  keyMgr,
		FWUP:    fwupTask,
		SysInfo: sysinfoSvc,
		Role:    fwup.RoleCore,
		Pending: &d.pendingSecureChannel,
	})
	d.WCA = wca.NewHandler(wcaRouter{d})
	wireUIBridge(transport, proto)

	field, err := openSPIField(cfg.NFCSPIBus)
	if err != nil {
		return nil, err
	}
	d.NFC = nfc.NewSession(field, d.WCA)

	return d, nil
}

// batteryFromGauge adapts an i2cFuelGauge to sysinfo.Battery.
type batteryFromGauge struct{ gauge *i2cFuelGauge }

func (b batteryFromGauge) Valid() bool { return true }
func (b batteryFromGauge) Battery() (uint32, uint32, int32, uint32, error) {
	return b.gauge.Battery()
}

const coreFirmwareVersion = "0.1.0-core"

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
