// Package secure implements fault-injection-hardened primitives: a
// secure boolean with two widely separated bit patterns, and control-flow
// helpers that run a security-critical branch twice around a randomized
// delay, trapping on disagreement.
package secure

import (
	"crypto/rand"
	"crypto/subtle"
	"math/big"
	"sync/atomic"
	"time"
)

// Bool is an integer whose only valid values are two widely-separated
// bit patterns. It resists single-bit fault injection flipping a normal
// boolean from false to true.
type Bool uint32

const (
	// True is the secure-true bit pattern.
	True Bool = 0xA5A5A5A5
	// False is the secure-false bit pattern.
	False Bool = 0x5A5A5A5A
)

// Equal reports whether b holds the pattern want, reading the
// value twice and comparing both reads to guard against a glitch that
// corrupts a single read.
func (b *Bool) Equal(want Bool) bool {
	v1 := *b
	randomDelay()
	v2 := *b
	return v1 == want && v2 == want
}

// Set stores v.
func (b *Bool) Set(v Bool) {
	*b = v
}

// randomDelay sleeps a short, randomized duration to desynchronize
// repeated evaluation of a security branch from an attacker's glitch
// pulse.
func randomDelay() {
	n, err := rand.Int(rand.Reader, big.NewInt(64))
	if err != nil {
		// Fall back to a fixed delay; still better than none.
		time.Sleep(8 * time.Microsecond)
		return
	}
	time.Sleep(time.Duration(n.Int64()+1) * time.Microsecond)
}

// GlitchDelay exposes randomDelay to callers outside this package that
// need to desynchronize a single security-relevant branch point (not a
// doubled compare) from a glitch pulse, such as the NFC router's CLA
// dispatch.
func GlitchDelay() {
	randomDelay()
}

// Trap is invoked when a glitch-hardened compare disagrees between its
// two evaluations. In firmware this resets the MCU with a FAULT reset
// reason; callers supply the trap function so tests can observe it
// instead of terminating the process.
type Trap func(reason string)

// glitchCount is the system-wide glitch counter, the Go analog of
// secure_glitch_get_count(): it is bumped every time a doubled compare
// disagrees, and a caller that needs to know whether a glitch occurred
// anywhere during a window (not just in its own compare) snapshots it
// with GlitchCount at the start of the window and compares again at
// the end.
var glitchCount uint32

// GlitchCount returns the current value of the system-wide glitch
// counter. Callers protecting a multi-step operation (e.g. the
// fingerprint matcher loop) snapshot this before the step and require
// it to be unchanged afterward, on top of their own result.
func GlitchCount() uint32 {
	return atomic.LoadUint32(&glitchCount)
}

// bumpGlitchCount records a detected glitch, incrementing the
// system-wide counter before invoking trap.
func bumpGlitchCount() {
	atomic.AddUint32(&glitchCount, 1)
}

// DoFailIn evaluates cond twice with a randomized delay between the
// reads. If both evaluations agree and are true, then runs the body.
// If the two evaluations disagree, it bumps the glitch counter, calls
// trap, and does not run the body — modeling SECURE_DO_FAILIN: the
// default (fault) outcome is to skip the protected action.
func DoFailIn(cond func() bool, trap Trap, reason string, body func()) {
	v1 := cond()
	randomDelay()
	v2 := cond()
	if v1 != v2 {
		bumpGlitchCount()
		trap(reason)
		return
	}
	if v1 {
		body()
	}
}

// DoFailOut evaluates cond twice with a randomized delay between the
// reads. If both evaluations agree, it calls onResult with the agreed
// value. If they disagree, it bumps the glitch counter and calls trap
// — modeling SECURE_DO_FAILOUT: the path taken on fault is the
// caller's to decide via onResult(false).
func DoFailOut(cond func() bool, trap Trap, reason string, onResult func(ok bool)) {
	v1 := cond()
	randomDelay()
	v2 := cond()
	if v1 != v2 {
		bumpGlitchCount()
		trap(reason)
		onResult(false)
		return
	}
	onResult(v1)
}

// ConstantTimeEqual compares two byte slices in constant time. Used for
// unlock-secret and MAC comparisons where timing must not leak which
// byte first differed.
func ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}
