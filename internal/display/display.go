// Package display implements the display-controller flow engine: a
// single active flow from a closed set, a single FlowContext (no
// dynamic stack), and a tagged FlowAction return driving transitions.
// Grounded on
// original_source/firmware/lib/display_controller/src/display_controller.c
// (enter_flow/flow_approve/flow_cancel/flow_exit, the flow_handlers
// table, display_controller_handle_ui_event's global-vs-flow routing)
// and on seedhammer/gui.Context's Platform-interface-driven event loop
// for the Go idiom: a controller struct holding one live state machine
// that writes outward through an interface (gui.Platform here,
// ScreenSink there) instead of calling into global UI state directly.
package display

import "github.com/signetco/corefw/internal/uievent"

// FlowID identifies one of the closed set of flows a Controller can
// have active.
type FlowID int

const (
	FlowNone FlowID = iota - 1
	FlowOnboarding
	FlowMenu
	FlowTransaction
	FlowFingerprintMgmt
	FlowFingerprintsMenu
	FlowFingerprintRemove
	FlowRecovery
	FlowFirmwareUpdate
	FlowWipe
	FlowPrivilegedActions
	FlowBrightness
	FlowInfo
	FlowMfg
	flowCount
)

// Action is a flow's tagged response to a button press.
type Action int

const (
	ActionNone Action = iota
	ActionRefresh
	ActionApprove
	ActionCancel
	ActionExit
	ActionStartEnrollment
	ActionQueryFingerprints
	ActionDeleteFingerprint
	ActionPowerOff
)

// Button identifies a physical input; Type distinguishes press/hold/
// release the way button_event_payload_t does.
type Button int

const (
	ButtonUp Button = iota
	ButtonDown
	ButtonLeft
	ButtonRight
	ButtonOK
	ButtonBack
)

type ButtonPressType int

const (
	PressDown ButtonPressType = iota
	PressUp
	PressHold
)

type ButtonEvent struct {
	Button Button
	Type   ButtonPressType
}

// Transition names the visual transition a ShowScreen command requests
// between the previous and next screen.
type Transition int

const (
	TransitionNone Transition = iota
	TransitionFade
	TransitionSlideLeft
	TransitionSlideRight
)

// DeviceInfo mirrors the subset of device_info_t the controller caches
// to set brightness and populate the info screen.
type DeviceInfo struct {
	FirmwareVersion string
	HardwareVersion string
	SerialNumber    string
	BrightnessPct   int
}

// FingerprintMenuNav is the FLOW_FINGERPRINTS_MENU nav union member.
type FingerprintMenuNav struct {
	DetailIndex         int
	AuthenticatedIndex  int
	ShowAuthenticated   bool
}

// FingerprintNav is the FLOW_FINGERPRINT_MGMT nav union member.
type FingerprintNav struct {
	SlotIndex int
}

// FingerprintRemoveNav is the FLOW_FINGERPRINT_REMOVE nav union member.
type FingerprintRemoveNav struct {
	FingerprintIndex int
}

// ScreenParams is a closed union of per-screen parameter structs; only
// the field matching ShowScreenCmd.Params is meaningful. Pixel layout
// of each screen is entirely the display MCU's concern (LVGL); this
// struct only carries the data that selects and parametrizes it.
type ScreenParams struct {
	Kind              ScreenKind
	Locked            LockedScreenParams
	MenuFingerprints  MenuFingerprintsParams
	BrightnessPercent int
}

type ScreenKind int

const (
	ScreenOnboarding ScreenKind = iota
	ScreenLocked
	ScreenMenu
	ScreenTransaction
	ScreenMenuFingerprints
	ScreenFirmwareUpdate
	ScreenBrightness
	ScreenInfo
	ScreenMfg
)

type LockedScreenParams struct {
	BatteryPercent int
	IsCharging     bool
}

type MenuFingerprintsParams struct {
	ShowAuthenticated  bool
	AuthenticatedIndex int
}

// ShowScreenCmd is the command sent over the secure channel to the
// display MCU: a parameter union plus a transition and its duration.
type ShowScreenCmd struct {
	Params           ScreenParams
	Transition       Transition
	TransitionMs     uint32
}

// ScreenSink receives ShowScreen commands. The display MCU's UI task
// is the real implementation (LVGL state, pixel layout); a recording
// fake stands in for tests.
type ScreenSink interface {
	ShowScreen(cmd ShowScreenCmd) error
}

// FlowContext is the controller's single piece of state — no dynamic
// flow stack, matching spec.md's FlowContext record.
type FlowContext struct {
	CurrentFlow  FlowID
	PreviousFlow FlowID
	IsLocked     bool

	Fingerprint       FingerprintNav
	FingerprintMenu   FingerprintMenuNav
	FingerprintRemove FingerprintRemoveNav

	ShowScreen ScreenParams

	BatteryPercent int
	IsCharging     bool

	DeviceInfo    DeviceInfo
	HasDeviceInfo bool

	FingerprintEnrolled [3]bool
	FingerprintLabels   [3]string

	InitialScreenShown bool
	PendingFlowExit    bool
}

// Flow is implemented by every member of the closed flow set.
type Flow interface {
	OnEnter(ctx *FlowContext, data any)
	OnExit(ctx *FlowContext)
	OnButtonPress(ctx *FlowContext, ev ButtonEvent) Action
	OnTick(ctx *FlowContext)
	// OnEvent handles a UI event specific to this flow. Flows that
	// don't need one (most of them) inherit BaseFlow's no-op; Controller
	// only checks that a flow is registered before dispatching.
	OnEvent(ctx *FlowContext, ev uievent.Event)
}

// Hooks lets a Controller act on side effects a flow's returned Action
// implies, without the display package depending on internal/auth or
// internal/sysinfo directly.
type Hooks struct {
	StartEnrollment    func(slotIndex int)
	QueryFingerprints  func()
	DeleteFingerprint  func(index int)
	PowerOff           func()
}

// Controller owns the single active FlowContext and dispatches button
// presses, ticks, and UI events to the current flow plus the global
// handlers that run regardless of which flow (or none) is active.
type Controller struct {
	ctx   FlowContext
	flows [flowCount]Flow
	sink  ScreenSink
	hooks Hooks
}

// NewController constructs a Controller writing ShowScreen commands to
// sink. Flows are registered after construction via Register.
func NewController(sink ScreenSink, hooks Hooks) *Controller {
	return &Controller{
		ctx:  FlowContext{CurrentFlow: FlowNone, PreviousFlow: flowCount},
		sink: sink,
		hooks: hooks,
	}
}

// Register installs flow as the handler for id. A nil flow (Recovery,
// Wipe, PrivilegedActions — unimplemented in the firmware too) leaves
// that flow inert: EnterFlow on it still exits the current flow and
// records it as current, but no OnEnter runs and it handles no
// buttons, ticks or events.
func (c *Controller) Register(id FlowID, flow Flow) {
	c.flows[id] = flow
}

func (c *Controller) inFlow() bool {
	return c.ctx.CurrentFlow >= 0 && c.ctx.CurrentFlow < flowCount
}

func (c *Controller) acceptingInput() bool {
	return !c.ctx.IsLocked && c.inFlow()
}

// Context returns the live FlowContext for inspection (tests, sysinfo
// queries that surface lock state).
func (c *Controller) Context() *FlowContext { return &c.ctx }

// EnterFlow transitions to f, calling the previous flow's OnExit (if
// any) before the new flow's OnEnter, matching enter_flow's recording
// of previous_flow.
func (c *Controller) EnterFlow(f FlowID, data any) {
	if c.inFlow() {
		if h := c.flows[c.ctx.CurrentFlow]; h != nil {
			h.OnExit(&c.ctx)
		}
	}
	c.ctx.PreviousFlow = c.ctx.CurrentFlow
	c.ctx.CurrentFlow = f
	if h := c.flows[f]; h != nil {
		h.OnEnter(&c.ctx, data)
	}
}

// exitFlow leaves the current flow with no new flow entered, mirroring
// flow_exit's fall-through to no active flow (e.g. back to lock
// screen).
func (c *Controller) exitFlow() {
	if c.inFlow() {
		if h := c.flows[c.ctx.CurrentFlow]; h != nil {
			h.OnExit(&c.ctx)
		}
	}
	c.ctx.PreviousFlow = c.ctx.CurrentFlow
	c.ctx.CurrentFlow = FlowNone
}

// HandleButtonPress routes a physical button press first to any global
// handler, then — if accepting input — to the active flow, processing
// whatever Action it returns.
func (c *Controller) HandleButtonPress(ev ButtonEvent) {
	if c.handleGlobalButton(ev) {
		return
	}
	if !c.acceptingInput() {
		return
	}
	h := c.flows[c.ctx.CurrentFlow]
	if h == nil {
		return
	}
	switch h.OnButtonPress(&c.ctx, ev) {
	case ActionApprove:
		c.refreshScreen()
	case ActionCancel, ActionExit:
		c.exitFlow()
	case ActionRefresh:
		c.refreshScreen()
	case ActionStartEnrollment:
		if c.hooks.StartEnrollment != nil {
			c.hooks.StartEnrollment(c.ctx.Fingerprint.SlotIndex)
		}
	case ActionQueryFingerprints:
		if c.hooks.QueryFingerprints != nil {
			c.hooks.QueryFingerprints()
		}
	case ActionDeleteFingerprint:
		var idx int
		switch c.ctx.CurrentFlow {
		case FlowFingerprintsMenu:
			idx = c.ctx.FingerprintMenu.DetailIndex
		case FlowFingerprintRemove:
			idx = c.ctx.FingerprintRemove.FingerprintIndex
		}
		if c.hooks.DeleteFingerprint != nil {
			c.hooks.DeleteFingerprint(idx)
		}
		if c.hooks.QueryFingerprints != nil {
			c.hooks.QueryFingerprints()
		}
	case ActionPowerOff:
		if c.hooks.PowerOff != nil {
			c.hooks.PowerOff()
		}
		c.exitFlow()
	}
}

// handleGlobalButton is reserved for cross-flow shortcuts (none are
// currently defined; the firmware's handle_global_buttons exists for
// this purpose but this device has no such shortcuts yet).
func (c *Controller) handleGlobalButton(ButtonEvent) bool { return false }

// Tick drives the active flow's OnTick and honours a pending exit the
// tick handler requested.
func (c *Controller) Tick() {
	if !c.inFlow() {
		return
	}
	if h := c.flows[c.ctx.CurrentFlow]; h != nil {
		h.OnTick(&c.ctx)
	}
	if c.ctx.PendingFlowExit {
		c.ctx.PendingFlowExit = false
		c.exitFlow()
	}
}

func (c *Controller) refreshScreen() {
	if c.sink == nil {
		return
	}
	c.sink.ShowScreen(ShowScreenCmd{Params: c.ctx.ShowScreen, Transition: TransitionNone})
}

// Lock locks the device and shows the lock screen, matching
// lock_device.
func (c *Controller) Lock() {
	c.ctx.IsLocked = true
	c.ctx.ShowScreen = ScreenParams{
		Kind: ScreenLocked,
		Locked: LockedScreenParams{
			BatteryPercent: c.ctx.BatteryPercent,
			IsCharging:     c.ctx.IsCharging,
		},
	}
	c.refreshScreen()
}

// Unlock unlocks the device, matching unlock_device. It does not by
// itself change the active flow: the firmware's UI_EVENT_AUTH_SUCCESS
// handler only unlocks and leaves navigation to the caller.
func (c *Controller) Unlock() {
	c.ctx.IsLocked = false
	c.refreshScreen()
}

// HandleEvent implements the global UI-event switch: battery/charging
// state is updated and the appropriate screen refreshed regardless of
// lock state, auth success unlocks, and fwup-start pushes the firmware
// update flow — before any flow-specific OnEvent dispatch. Device-info
// updates do not pass through here; they arrive via SetDeviceInfo.
func (c *Controller) HandleEvent(ev uievent.Event) {
	switch ev.ID {
	case uievent.BatterySoC:
		c.ctx.BatteryPercent = ev.Battery.Percent
		c.refreshIfLockedOrFlow(ev)
		return
	case uievent.Charging:
		c.ctx.IsCharging = true
		c.refreshIfLockedOrFlow(ev)
		return
	case uievent.ChargingFinished, uievent.ChargingUnplugged:
		if ev.ID == uievent.ChargingUnplugged {
			c.ctx.IsCharging = false
		}
		c.refreshIfLockedOrFlow(ev)
		return
	case uievent.AuthSuccess:
		if c.ctx.IsLocked {
			c.Unlock()
		}
		c.dispatchFlowEvent(ev)
		return
	case uievent.Locked:
		c.Lock()
		return
	case uievent.FwupStarted:
		c.EnterFlow(FlowFirmwareUpdate, nil)
		return
	case uievent.FwupSucceeded, uievent.FwupFailed:
		if c.ctx.CurrentFlow == FlowFirmwareUpdate {
			c.dispatchFlowEvent(ev)
		}
		return
	case uievent.EnrollmentProgress, uievent.EnrollmentSuccess, uievent.EnrollmentFailed:
		if c.ctx.CurrentFlow == FlowFingerprintMgmt {
			c.dispatchFlowEvent(ev)
			if ev.ID == uievent.EnrollmentSuccess && c.hooks.QueryFingerprints != nil {
				c.hooks.QueryFingerprints()
			}
		}
		return
	}
	c.dispatchFlowEvent(ev)
}

func (c *Controller) refreshIfLockedOrFlow(ev uievent.Event) {
	if c.ctx.IsLocked {
		c.Lock()
		return
	}
	c.dispatchFlowEvent(ev)
}

func (c *Controller) dispatchFlowEvent(ev uievent.Event) {
	if !c.inFlow() {
		return
	}
	h := c.flows[c.ctx.CurrentFlow]
	if h == nil {
		return
	}
	h.OnEvent(&c.ctx, ev)
}

// SetDeviceInfo caches device metadata (UI_EVENT_SET_DEVICE_INFO). It
// does not change the display brightness; BrightnessFlow reads the
// cached BrightnessPct when it is entered.
func (c *Controller) SetDeviceInfo(info DeviceInfo) {
	c.ctx.DeviceInfo = info
	c.ctx.HasDeviceInfo = true
}

// ShowInitialScreen marks the initial screen shown and pushes the
// FlowContext's current show-screen params, matching
// display_controller_show_initial_screen (fired once the display MCU
// signals UI_EVENT_DISPLAY_READY).
func (c *Controller) ShowInitialScreen() {
	c.ctx.InitialScreenShown = true
	c.refreshScreen()
}
