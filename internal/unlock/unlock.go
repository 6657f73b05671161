// Package unlock implements the shared-secret fallback-unlock retry
// engine: a monotonically non-decreasing delay schedule indexed by
// failure count, with fail-safe persistence across resets. Ported
// record-for-record from the firmware's unlock.c (delay table,
// increment-before-compare, boot-time delay reconstitution).
package unlock

import (
	"errors"
	"sync"
	"time"

	"github.com/signetco/corefw/internal/kv"
	"github.com/signetco/corefw/internal/secure"
)

// LimitResponse is the action taken once the attempt limit is
// exceeded.
type LimitResponse uint8

const (
	ResponseDelay LimitResponse = iota
	ResponseWipeState
)

// AttemptLimit is the failure count above which LimitResponse applies.
const AttemptLimit = 9

// SecretSize is the length in bytes of the provisioned unlock secret.
const SecretSize = 32

var (
	ErrNoSecretProvisioned = errors.New("unlock: no secret provisioned")
	ErrStorageErr          = errors.New("unlock: storage error")
	ErrNotInitialized      = errors.New("unlock: not initialized")
)

// Result is the outcome of CheckSecret.
type Result int

const (
	OK Result = iota
	WrongSecret
	WaitingOnDelay
	LimitResponseTaken
)

// delayTable maps a 1-indexed failed-attempt count to its delay.
// Index 0 is unused; index >= AttemptLimit all map to the same delay.
var delayTable = [AttemptLimit + 1]time.Duration{
	0,
	0, 0, 0, // attempts 1-3
	10 * time.Second, 10 * time.Second, // 4, 5
	60 * time.Second,      // 6
	5 * time.Minute,       // 7
	10 * time.Minute,      // 8
	30 * time.Minute,      // 9 and beyond
}

// Sleep is the narrow contract into the power subsystem: inhibiting
// sleep keeps the device powered through a delay period so the
// lockout can't be bypassed by cutting power.
type Sleep interface {
	Inhibit(extra time.Duration)
	ClearInhibit()
}

// Authenticator is the narrow contract into the auth subsystem, set
// on a successful secret check.
type Authenticator interface {
	SetAuthenticated(bool)
}

// WipeFunc performs a destructive wallet-state wipe when the limit
// response is ResponseWipeState. Kept as an injected function — in the
// firmware this sends IPC_KEY_MANAGER_REMOVE_WALLET_STATE.
type WipeFunc func()

const (
	keyRetryCounter = "retryctr"
	keyDelayDone    = "delaydon"
	keyLimitResp    = "limitrsp"
	keySecret       = "secret"
)

// Engine is the unlock retry engine. The zero value is not usable;
// construct with New.
type Engine struct {
	store *kv.Store
	sleep Sleep
	auth  Authenticator
	wipe  WipeFunc

	mu            sync.Mutex
	initialized   bool
	limitResponse LimitResponse
	timer         *time.Timer
	timerDeadline time.Time
	timerActive   bool
}

// New constructs an Engine backed by store, wired to sleep and auth.
func New(store *kv.Store, sleep Sleep, auth Authenticator, wipe WipeFunc) *Engine {
	return &Engine{store: store, sleep: sleep, auth: auth, wipe: wipe, limitResponse: ResponseDelay}
}

// Init loads persisted state and reconstitutes any pending delay. Must
// be called once at boot before CheckSecret.
func (e *Engine) Init() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.initialized = true

	var lr [1]byte
	if n, err := e.store.Get(keyLimitResp, lr[:]); err == nil && n == 1 {
		e.limitResponse = LimitResponse(lr[0])
	}

	// A store that has never held a counter starts at zero; any other
	// read failure still falls back to AttemptLimit in readCounterLocked.
	var probe [4]byte
	if _, err := e.store.Get(keyRetryCounter, probe[:]); err == kv.ErrNotFound {
		e.writeCounterLocked(0)
	}

	count := e.readCounterLocked()
	e.beginDelayLocked(count)
}

func (e *Engine) readCounterLocked() uint32 {
	var buf [4]byte
	n, err := e.store.Get(keyRetryCounter, buf[:])
	if err != nil || n != 4 {
		return AttemptLimit
	}
	return decode32(buf[:])
}

func (e *Engine) writeCounterLocked(v uint32) error {
	var buf [4]byte
	encode32(buf[:], v)
	if err := e.store.Set(keyRetryCounter, buf[:]); err != nil {
		return ErrStorageErr
	}
	return nil
}

func (e *Engine) delayCompleteLocked() bool {
	var b [1]byte
	n, err := e.store.Get(keyDelayDone, b[:])
	return err == nil && n == 1 && b[0] == 1
}

func (e *Engine) setDelayCompleteLocked(v bool) {
	b := byte(0)
	if v {
		b = 1
	}
	e.store.Set(keyDelayDone, []byte{b})
}

func delayForCount(count uint32) time.Duration {
	if count == 0 {
		return 0
	}
	if count >= AttemptLimit {
		return delayTable[AttemptLimit]
	}
	return delayTable[count]
}

// beginDelayLocked starts (or skips) the delay timer for the given
// attempt count. If the delay period was already waited out before a
// reset, it is skipped; otherwise the full delay is re-served from
// zero, since a volatile RTOS timer cannot be assumed to have
// preserved partial progress across a reset.
func (e *Engine) beginDelayLocked(count uint32) {
	if e.delayCompleteLocked() {
		return
	}
	d := delayForCount(count)
	if d == 0 {
		return
	}
	e.setDelayCompleteLocked(false)
	if e.sleep != nil {
		e.sleep.Inhibit(d)
	}
	e.startTimerLocked(d)
}

func (e *Engine) startTimerLocked(d time.Duration) {
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timerDeadline = time.Now().Add(d)
	e.timerActive = true
	e.timer = time.AfterFunc(d, func() {
		e.mu.Lock()
		e.timerActive = false
		e.setDelayCompleteLocked(true)
		e.mu.Unlock()
	})
}

func (e *Engine) stopTimerLocked() {
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timerActive = false
}

func (e *Engine) remainingDelayLocked() time.Duration {
	if !e.timerActive {
		return 0
	}
	r := time.Until(e.timerDeadline)
	if r < 0 {
		return 0
	}
	return r
}

// CheckSecret compares secret against the provisioned unlock secret,
// enforcing the delay schedule. The retry counter is incremented
// before the comparison so a power cut mid-compare cannot gain a free
// try (P4).
func (e *Engine) CheckSecret(secret []byte) (Result, time.Duration, uint32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var stored [SecretSize]byte
	n, err := e.store.Get(keySecret, stored[:])
	if err != nil || n != SecretSize {
		return 0, 0, 0, ErrNoSecretProvisioned
	}

	count := e.readCounterLocked()

	if remaining := e.remainingDelayLocked(); remaining > 0 {
		return WaitingOnDelay, remaining, count, nil
	}

	if count < ^uint32(0) {
		count++
	}
	if err := e.writeCounterLocked(count); err != nil {
		return 0, 0, 0, ErrStorageErr
	}

	match := secure.ConstantTimeEqual(secret, stored[:])
	if match {
		e.writeCounterLocked(0)
		if e.sleep != nil {
			e.sleep.ClearInhibit()
		}
		e.stopTimerLocked()
		e.setDelayCompleteLocked(false)
		if e.auth != nil {
			e.auth.SetAuthenticated(true)
		}
		return OK, 0, 0, nil
	}

	// A delay that lapsed earlier in this boot must not suppress the
	// delay this failure earns.
	e.setDelayCompleteLocked(false)
	e.beginDelayLocked(count)
	remaining := e.remainingDelayLocked()

	if count > AttemptLimit {
		e.performLimitResponseLocked()
		return LimitResponseTaken, remaining, count, nil
	}

	return WrongSecret, remaining, count, nil
}

func (e *Engine) performLimitResponseLocked() {
	switch e.limitResponse {
	case ResponseDelay:
		// No action; the delay timer already started runs its
		// course normally.
	case ResponseWipeState:
		if e.wipe != nil {
			e.wipe()
		}
	}
}

// ProvisionSecret stores secret as the unlock secret. The firmware
// treats this as one-shot (must not overwrite if already set); callers
// needing that guarantee should check HasSecret first.
func (e *Engine) ProvisionSecret(secret []byte) error {
	if len(secret) != SecretSize {
		return errors.New("unlock: secret must be 32 bytes")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.store.Set(keySecret, secret); err != nil {
		return ErrStorageErr
	}
	return nil
}

// HasSecret reports whether an unlock secret has been provisioned.
func (e *Engine) HasSecret() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	var buf [SecretSize]byte
	_, err := e.store.Get(keySecret, buf[:])
	return err == nil
}

// SetLimitResponse persists the configured limit response, reading it
// back to confirm the write landed.
func (e *Engine) SetLimitResponse(r LimitResponse) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.store.Set(keyLimitResp, []byte{byte(r)}); err != nil {
		return ErrStorageErr
	}
	var back [1]byte
	n, err := e.store.Get(keyLimitResp, back[:])
	if err != nil || n != 1 || LimitResponse(back[0]) != r {
		return ErrStorageErr
	}
	e.limitResponse = r
	return nil
}

// ResetRetryCounter zeroes the retry counter if it isn't already zero.
// Called by the auth task on a successful fingerprint match.
func (e *Engine) ResetRetryCounter() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return ErrNotInitialized
	}
	if e.readCounterLocked() == 0 {
		return nil
	}
	return e.writeCounterLocked(0)
}

func encode32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func decode32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
