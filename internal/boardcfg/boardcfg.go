// Package boardcfg holds the small set of compile-time, per-build
// knobs that the original firmware keeps in config/platform/*: whether
// this build has a display coprocessor, flash slot geometry, and the
// handful of protocol timing constants shared across tasks.
package boardcfg

import "time"

// Variant selects which optional subsystems a build includes.
type Variant int

const (
	// VariantCoreOnly has no display coprocessor (LED-only UI).
	VariantCoreOnly Variant = iota
	// VariantDisplay has a display MCU (uxc) wired over UART.
	VariantDisplay
)

// Config is the full set of board-specific constants.
type Config struct {
	Variant Variant

	// Auth.
	AuthExpiry     time.Duration
	AuthRateLimit  time.Duration
	EnrollAttempts int

	// Unlock.
	UnlockAttemptLimit uint32

	// NFC.
	CommandBufferSize int
	ResponseTimeout   time.Duration

	// UC (inter-MCU).
	UCRetransmitTimeout time.Duration
	UCRetransmitMax     int
	UCAckTimeout        time.Duration
	UCMaxFrameSize      int

	// Fwup.
	FwupFinishResetDelay time.Duration

	// Power.
	SleepTimeout time.Duration
}

// Default returns the constants used by production firmware, matching
// the values named in the specification (60s sleep timeout, 60s auth
// expiry, 2s auth rate limit, 7s NFC response timeout, ~2s fwup
// finish reset delay).
func Default(variant Variant) Config {
	return Config{
		Variant:              variant,
		AuthExpiry:           60 * time.Second,
		AuthRateLimit:        2 * time.Second,
		EnrollAttempts:       5,
		UnlockAttemptLimit:   9,
		CommandBufferSize:    2048,
		ResponseTimeout:      7 * time.Second,
		UCRetransmitTimeout:  200 * time.Millisecond,
		UCRetransmitMax:      5,
		UCAckTimeout:         50 * time.Millisecond,
		UCMaxFrameSize:       2048,
		FwupFinishResetDelay: 2 * time.Second,
		SleepTimeout:         60 * time.Second,
	}
}
