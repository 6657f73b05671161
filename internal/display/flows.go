package display

import "github.com/signetco/corefw/internal/uievent"

// BaseFlow gives a no-op implementation of every Flow method so
// concrete flows only need to override what they actually use,
// mirroring the firmware's flow_handler_t entries that leave
// on_event/on_tick as NULL.
type BaseFlow struct{}

func (BaseFlow) OnEnter(*FlowContext, any)                {}
func (BaseFlow) OnExit(*FlowContext)                      {}
func (BaseFlow) OnButtonPress(*FlowContext, ButtonEvent) Action { return ActionNone }
func (BaseFlow) OnTick(*FlowContext)                      {}
func (BaseFlow) OnEvent(*FlowContext, uievent.Event)       {}

// OnboardingFlow runs first-boot setup; completion hands off to the
// lock screen via ActionExit once the host signals it's done (modeled
// as an explicit Complete() call rather than an internal timer, since
// onboarding's real completion source — the phone app — is outside
// this firmware).
type OnboardingFlow struct {
	BaseFlow
	done bool
}

func (f *OnboardingFlow) OnEnter(ctx *FlowContext, data any) {
	f.done = false
	ctx.ShowScreen = ScreenParams{Kind: ScreenOnboarding}
}

func (f *OnboardingFlow) Complete() { f.done = true }

func (f *OnboardingFlow) OnButtonPress(ctx *FlowContext, ev ButtonEvent) Action {
	if f.done && ev.Button == ButtonOK && ev.Type == PressUp {
		return ActionExit
	}
	return ActionNone
}

// MenuFlow is the top-level menu a user lands on once unlocked.
type MenuFlow struct {
	BaseFlow
	Selected int
}

func (f *MenuFlow) OnEnter(ctx *FlowContext, data any) {
	ctx.ShowScreen = ScreenParams{Kind: ScreenMenu}
}

func (f *MenuFlow) OnButtonPress(ctx *FlowContext, ev ButtonEvent) Action {
	if ev.Type != PressUp {
		return ActionNone
	}
	switch ev.Button {
	case ButtonUp, ButtonDown:
		return ActionRefresh
	case ButtonBack:
		return ActionExit
	}
	return ActionNone
}

// TransactionType distinguishes the two host-initiated money-movement
// flows folded into FLOW_TRANSACTION.
type TransactionType int

const (
	TransactionSend TransactionType = iota
	TransactionReceive
)

// TransactionData is the nav-union payload UI_EVENT_START_SEND/RECEIVE_
// TRANSACTION carries.
type TransactionData struct {
	Type TransactionType
}

// TransactionFlow walks a host-initiated send or receive confirmation.
type TransactionFlow struct {
	BaseFlow
	Data TransactionData
}

func (f *TransactionFlow) OnEnter(ctx *FlowContext, data any) {
	if d, ok := data.(TransactionData); ok {
		f.Data = d
	}
	ctx.ShowScreen = ScreenParams{Kind: ScreenTransaction}
}

func (f *TransactionFlow) OnButtonPress(ctx *FlowContext, ev ButtonEvent) Action {
	if ev.Type != PressUp {
		return ActionNone
	}
	switch ev.Button {
	case ButtonOK:
		return ActionApprove
	case ButtonBack:
		return ActionCancel
	}
	return ActionNone
}

// FingerprintMgmtFlow drives a single enrollment, relaying the auth
// task's progress/success/failure events into screen refreshes.
type FingerprintMgmtFlow struct {
	BaseFlow
}

func (f *FingerprintMgmtFlow) OnEnter(ctx *FlowContext, data any) {
	if nav, ok := data.(FingerprintNav); ok {
		ctx.Fingerprint = nav
	}
}

func (f *FingerprintMgmtFlow) OnButtonPress(ctx *FlowContext, ev ButtonEvent) Action {
	if ev.Type == PressUp && ev.Button == ButtonOK {
		return ActionStartEnrollment
	}
	if ev.Type == PressUp && ev.Button == ButtonBack {
		return ActionCancel
	}
	return ActionNone
}

func (f *FingerprintMgmtFlow) OnEvent(ctx *FlowContext, ev uievent.Event) {
	switch ev.ID {
	case uievent.EnrollmentProgress, uievent.EnrollmentSuccess, uievent.EnrollmentFailed:
		// Screen refresh is the caller's responsibility via the
		// returned action's side effects; this flow only needs to
		// observe the event reached it.
	}
}

// FingerprintsMenuFlow lists enrolled fingerprints and lets the user
// drill into one for removal.
type FingerprintsMenuFlow struct {
	BaseFlow
}

func (f *FingerprintsMenuFlow) OnEnter(ctx *FlowContext, data any) {
	ctx.ShowScreen = ScreenParams{Kind: ScreenMenuFingerprints}
}

func (f *FingerprintsMenuFlow) OnButtonPress(ctx *FlowContext, ev ButtonEvent) Action {
	if ev.Type != PressUp {
		return ActionNone
	}
	switch ev.Button {
	case ButtonOK:
		return ActionDeleteFingerprint
	case ButtonBack:
		return ActionExit
	}
	return ActionNone
}

// FingerprintRemoveFlow confirms deletion of a single fingerprint.
type FingerprintRemoveFlow struct {
	BaseFlow
}

func (f *FingerprintRemoveFlow) OnEnter(ctx *FlowContext, data any) {
	if nav, ok := data.(FingerprintRemoveNav); ok {
		ctx.FingerprintRemove = nav
	}
}

func (f *FingerprintRemoveFlow) OnButtonPress(ctx *FlowContext, ev ButtonEvent) Action {
	if ev.Type != PressUp {
		return ActionNone
	}
	switch ev.Button {
	case ButtonOK:
		return ActionDeleteFingerprint
	case ButtonBack:
		return ActionCancel
	}
	return ActionNone
}

// FirmwareUpdateFlow shows transfer progress and the final
// success/failure screen, staying active until the user acknowledges
// it (after FWUP_SUCCEEDED/FAILED the next OK press returns ActionExit
// rather than the flow auto-exiting, so the user always sees the result).
type FirmwareUpdateFlow struct {
	BaseFlow
	finished bool
}

func (f *FirmwareUpdateFlow) OnEnter(ctx *FlowContext, data any) {
	f.finished = false
	ctx.ShowScreen = ScreenParams{Kind: ScreenFirmwareUpdate}
}

func (f *FirmwareUpdateFlow) OnEvent(ctx *FlowContext, ev uievent.Event) {
	switch ev.ID {
	case uievent.FwupSucceeded, uievent.FwupFailed:
		f.finished = true
	}
}

func (f *FirmwareUpdateFlow) OnButtonPress(ctx *FlowContext, ev ButtonEvent) Action {
	if f.finished && ev.Type == PressUp && ev.Button == ButtonOK {
		return ActionExit
	}
	return ActionNone
}

// BrightnessFlow lets the user adjust screen brightness live.
type BrightnessFlow struct {
	BaseFlow
}

func (f *BrightnessFlow) OnEnter(ctx *FlowContext, data any) {
	ctx.ShowScreen = ScreenParams{Kind: ScreenBrightness, BrightnessPercent: ctx.DeviceInfo.BrightnessPct}
}

func (f *BrightnessFlow) OnButtonPress(ctx *FlowContext, ev ButtonEvent) Action {
	if ev.Type != PressUp {
		return ActionNone
	}
	switch ev.Button {
	case ButtonUp:
		if ctx.ShowScreen.BrightnessPercent < 100 {
			ctx.ShowScreen.BrightnessPercent += 10
		}
		return ActionRefresh
	case ButtonDown:
		if ctx.ShowScreen.BrightnessPercent > 0 {
			ctx.ShowScreen.BrightnessPercent -= 10
		}
		return ActionRefresh
	case ButtonBack:
		return ActionExit
	}
	return ActionNone
}

// InfoFlow shows cached device metadata.
type InfoFlow struct {
	BaseFlow
}

func (f *InfoFlow) OnEnter(ctx *FlowContext, data any) {
	ctx.ShowScreen = ScreenParams{Kind: ScreenInfo}
}

func (f *InfoFlow) OnButtonPress(ctx *FlowContext, ev ButtonEvent) Action {
	if ev.Type == PressUp && ev.Button == ButtonBack {
		return ActionExit
	}
	return ActionNone
}

// MfgTestPayload carries the requested manufacturing test mode, which
// MfgFlow records on entry. A mode of 0 gets no special handling: it
// does not exit the flow.
type MfgTestPayload struct {
	TestMode int
}

// MfgFlow drives manufacturing-line test screens. Per an open question
// in the original firmware (whether the back button is accepted during
// the colour-bar sub-states), this implementation always accepts back
// as a cancel — a test operator must always be able to exit test mode,
// and the ambiguity is about which *sub-state* to return to, not
// whether the flow should ever respond to input (see DESIGN.md).
type MfgFlow struct {
	BaseFlow
	TestMode int
}

func (f *MfgFlow) OnEnter(ctx *FlowContext, data any) {
	if p, ok := data.(MfgTestPayload); ok {
		f.TestMode = p.TestMode
	}
	ctx.ShowScreen = ScreenParams{Kind: ScreenMfg}
}

func (f *MfgFlow) OnButtonPress(ctx *FlowContext, ev ButtonEvent) Action {
	if ev.Type == PressUp && ev.Button == ButtonBack {
		return ActionExit
	}
	return ActionNone
}

func (f *MfgFlow) OnEvent(ctx *FlowContext, ev uievent.Event) {
	switch ev.ID {
	case uievent.FingerDown:
		// Colour-bar/captouch test sub-states observe finger events
		// directly; no state is tracked at this layer beyond relaying
		// that one arrived.
	}
}
