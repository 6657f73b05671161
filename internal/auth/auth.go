// Package auth implements the fingerprint-authentication policy state
// machine: enrollment, matching, the authenticated flag and its
// expiry timer, and the unlock-limit-response configuration. Ported
// from the firmware's auth_task.c.
package auth

import (
	"sync"
	"time"

	"github.com/signetco/corefw/internal/secure"
	"github.com/signetco/corefw/internal/uievent"
)

// EnrollmentStatus reports the state of an in-progress or completed
// enrollment.
type EnrollmentStatus int

const (
	EnrollmentNotInProgress EnrollmentStatus = iota
	EnrollmentIncomplete
	EnrollmentComplete
)

// EnrollStats counts enrollment capture outcomes.
type EnrollStats struct {
	Pass int
	Fail int
}

// Sleep is the narrow contract into the power subsystem.
type Sleep interface {
	RefreshPowerTimer()
	StopPowerTimer()
	StartPowerTimer()
}

// UnlockResetter resets the unlock retry counter on a fingerprint
// match, avoiding an import cycle with package unlock.
type UnlockResetter interface {
	ResetRetryCounter() error
}

// State is the auth task's owned state, protected by mu. Every field
// mirrors spec.md's AuthState.
type State struct {
	mu sync.Mutex

	authenticated        secure.Bool
	enrollmentInProgress bool
	enrollStatus         EnrollmentStatus
	enrollStats          EnrollStats
	hostTimestamp        uint32
	enrollCancel         bool

	expiryTimer *time.Timer
	expiry      time.Duration
	rateLimit   time.Duration

	events *uievent.Bus
	sleep  Sleep
	unlock UnlockResetter
}

// New constructs auth state with the given expiry/rate-limit
// durations, wired to the UI event bus, power subsystem, and unlock
// engine.
func New(expiry, rateLimit time.Duration, events *uievent.Bus, sleep Sleep, unlock UnlockResetter) *State {
	s := &State{
		expiry:    expiry,
		rateLimit: rateLimit,
		events:    events,
		sleep:     sleep,
		unlock:    unlock,
	}
	s.authenticated.Set(secure.False)
	return s
}

// IsAuthenticated is the only gate for key-manager authenticated
// commands. It reads the secure bool twice and compares bitwise,
// guarding against a single-bit glitch.
func (s *State) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated.Equal(secure.True)
}

// SetAuthenticated transitions the authenticated flag, arming or
// disarming the expiry timer inside the same critical section as the
// flag write (P1/P5 invariants).
func (s *State) SetAuthenticated(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setAuthenticatedLocked(v)
}

func (s *State) setAuthenticatedLocked(v bool) {
	wasAuthed := s.authenticated.Equal(secure.True)
	if v {
		s.authenticated.Set(secure.True)
		s.armExpiryLocked()
		if s.sleep != nil {
			s.sleep.StopPowerTimer()
		}
		if s.events != nil {
			s.events.Publish(uievent.Event{ID: uievent.AuthSuccess})
		}
		return
	}
	s.authenticated.Set(secure.False)
	s.disarmExpiryLocked()
	if s.sleep != nil {
		s.sleep.StartPowerTimer()
	}
	if wasAuthed && s.events != nil {
		s.events.Publish(uievent.Event{ID: uievent.Locked})
	}
}

func (s *State) armExpiryLocked() {
	if s.expiryTimer != nil {
		s.expiryTimer.Stop()
	}
	s.expiryTimer = time.AfterFunc(s.expiry, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.setAuthenticatedLocked(false)
	})
}

func (s *State) disarmExpiryLocked() {
	if s.expiryTimer != nil {
		s.expiryTimer.Stop()
		s.expiryTimer = nil
	}
}

// RefreshAuth extends the expiry timer iff the device is currently
// authenticated.
func (s *State) RefreshAuth() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.authenticated.Equal(secure.True) {
		s.armExpiryLocked()
	}
}

// StartFingerprintEnrollment marks enrollment in progress; the actual
// capture/enroll loop runs asynchronously on the matcher goroutine.
func (s *State) StartFingerprintEnrollment() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enrollmentInProgress = true
	s.enrollStatus = EnrollmentIncomplete
	s.enrollCancel = false
	s.enrollStats = EnrollStats{}
}

// CancelEnrollment sets the cooperative cancel flag the matcher
// goroutine checks between capture iterations.
func (s *State) CancelEnrollment() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enrollCancel = true
}

// EnrollmentStatus returns the current enrollment status and stats.
func (s *State) EnrollmentStatus() (EnrollmentStatus, EnrollStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enrollStatus, s.enrollStats
}

// SetHostTimestamp records the host-supplied timestamp used by the
// template-update rate limit in the key manager.
func (s *State) SetHostTimestamp(ts uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hostTimestamp = ts
}

// HostTimestamp returns the last host-supplied timestamp, and whether
// one has ever been supplied.
func (s *State) HostTimestamp() (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hostTimestamp, s.hostTimestamp != 0
}
