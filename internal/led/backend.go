package led

import "github.com/signetco/corefw/internal/uievent"

// eventAnimation maps a UI event to the animation it triggers. Events
// with no visual feedback (e.g. BreakGlassReady) are left unmapped and
// ignored.
var eventAnimation = map[uievent.ID]Name{
	uievent.AuthSuccess:        NameUnlocked,
	uievent.Locked:             NameLocked,
	uievent.EnrollmentProgress: NameEnrollment,
	uievent.EnrollmentSuccess:  NameEnrollmentComplete,
	uievent.EnrollmentFailed:   NameEnrollmentFailed,
	uievent.ChargingFinished:   NameChargingFinished,
	uievent.Charging:           NameCharging,
	uievent.FwupStarted:        NameFwupProgress,
	uievent.FwupSucceeded:      NameFwupComplete,
	uievent.FwupFailed:         NameFwupFailed,
	uievent.TransactionApproved: NameFingerprintGood,
	uievent.TransactionDenied:   NameFingerprintBad,
}

// Backend adapts a Player to uievent.Backend, the non-display variant's
// UI event sink.
type Backend struct {
	player *Player
}

// NewBackend constructs a Backend playing animations on player.
func NewBackend(player *Player) *Backend {
	return &Backend{player: player}
}

// Handle implements uievent.Backend, playing the animation mapped to
// ev.ID if one exists.
func (b *Backend) Handle(ev uievent.Event) {
	name, ok := eventAnimation[ev.ID]
	if !ok {
		return
	}
	a, ok := Table[name]
	if !ok {
		return
	}
	b.player.Play(a)
}
