package main

import (
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/signetco/corefw/internal/display"
	"github.com/signetco/corefw/internal/fwup"
	"github.com/signetco/corefw/internal/hostproto"
	"github.com/signetco/corefw/internal/led"
	"github.com/signetco/corefw/internal/platform"
	"github.com/signetco/corefw/internal/uc"
	"github.com/signetco/corefw/internal/uievent"
)

// uxcDeauth and uxcResetter stand in for core's real auth.State/reset
// adapters: the display MCU has no local authentication state of its
// own (core owns it, reachable only through corebridge), and "reset"
// here means restart this process, relying on the same supervisor
// cmd/core's coreResetter documents.
type uxcDeauth struct{}

func (uxcDeauth) DeauthenticateWithoutAnimation() {}

type uxcResetter struct{}

func (uxcResetter) ResetWithReason(reason string) {
	log.Printf("uxc: reset: %s", reason)
	osExit(1)
}

// osExit is a package variable so a future supervisor test can
// override process termination; production always calls os.Exit.
var osExit = os.Exit

// controllerBackend adapts display.Controller to uievent.Backend,
// since Controller exposes HandleEvent rather than the Handle method
// name Backend expects.
type controllerBackend struct {
	controller *display.Controller
}

func (b controllerBackend) Handle(ev uievent.Event) {
	b.controller.HandleEvent(ev)
}

// Device bundles one real display-MCU board's full task set: the LCD
// screen sink, the RGBW status LED player, the button watcher, the uc
// link to the core MCU (carrying both fwup forwarding and the UI-hook
// bridge), and the flow-engine Controller tying them together.
type Device struct {
	Config Config

	Events *uievent.Bus
	UC     *uc.Transport
	Bridge *coreBridge
	FWUP   *fwup.Task
	Slot   *platform.SlotFile
	LED    *led.Player

	Screen     *lcdSink
	Buttons    *buttonWatcher
	Controller *display.Controller

	port ucPort
}

type ucPort interface {
	Write(p []byte) (int, error)
	Read(p []byte) (int, error)
	Close() error
}

func NewDevice(cfg Config) (*Device, error) {
	events := uievent.NewBus()

	port, err := openUCPort(cfg.UCSerial, cfg.UCBaud)
	if err != nil {
		return nil, err
	}
	transport := uc.New(port.Write)
	bridge := newCoreBridge(transport)

	slot, err := platform.NewSlotFile(filepath.Join(cfg.StateDir, "uxc.slot"), cfg.FwupSlotSize)
	if err != nil {
		return nil, err
	}
	fwupTask := fwup.New(slot, uxcDeauth{}, uxcResetter{}, nil, nil)
	wireFwupBridge(transport, fwupTask)

	ledDriver, err := openLEDDriver(cfg.LEDRedPin, cfg.LEDGreenPin, cfg.LEDBluePin, cfg.LEDWhitePin)
	if err != nil {
		return nil, err
	}
	ledPlayer := led.NewPlayer(ledDriver, 20*time.Millisecond)
	ledBackend := led.NewBackend(ledPlayer)
	events.Subscribe(ledBackend)

	screen, err := newLCDSink()
	if err != nil {
		return nil, err
	}

	buttons, err := openButtons(cfg.ButtonPins)
	if err != nil {
		return nil, err
	}

	d := &Device{
		Config:  cfg,
		Events:  events,
		UC:      transport,
		Bridge:  bridge,
		FWUP:    fwupTask,
		Slot:    slot,
		LED:     ledPlayer,
		Screen:  screen,
		Buttons: buttons,
		port:    port,
	}

	hooks := display.Hooks{
		StartEnrollment:   bridge.startEnrollment,
		QueryFingerprints: d.queryFingerprints,
		DeleteFingerprint: bridge.deleteFingerprint,
		PowerOff:          bridge.powerOff,
	}
	controller := display.NewController(screen, hooks)
	controller.Register(display.FlowOnboarding, &display.OnboardingFlow{})
	controller.Register(display.FlowMenu, &display.MenuFlow{})
	controller.Register(display.FlowTransaction, &display.TransactionFlow{})
	controller.Register(display.FlowFingerprintMgmt, &display.FingerprintMgmtFlow{})
	controller.Register(display.FlowFingerprintsMenu, &display.FingerprintsMenuFlow{})
	controller.Register(display.FlowFingerprintRemove, &display.FingerprintRemoveFlow{})
	controller.Register(display.FlowFirmwareUpdate, &display.FirmwareUpdateFlow{})
	controller.Register(display.FlowBrightness, &display.BrightnessFlow{})
	controller.Register(display.FlowInfo, &display.InfoFlow{})
	controller.Register(display.FlowMfg, &display.MfgFlow{})
	d.Controller = controller
	events.Subscribe(controllerBackend{controller: controller})

	return d, nil
}

// queryFingerprints backs display.Hooks.QueryFingerprints: ask core for
// the current enrollment pass/fail tally and fold it into the
// Controller's own context directly, since Hooks has no return path of
// its own.
func (d *Device) queryFingerprints() {
	status, err := d.Bridge.queryFingerprints()
	if err != nil {
		log.Printf("uxc: query fingerprints: %v", err)
		return
	}
	ctx := d.Controller.Context()
	ctx.FingerprintMenu.ShowAuthenticated = status.Status == hostproto.WireEnrollmentComplete
}
