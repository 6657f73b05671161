// Package biomock is a deterministic fingerprint-sensor stand-in for
// tests and the simcore integration harness, grounded on seedhammer's
// own software-only hardware stand-ins (driver/mjolnir/sim.go).
package biomock

import (
	"context"
	"errors"
	"sync"

	"github.com/signetco/corefw/internal/auth"
)

// Sensor is a scriptable biometrics implementation: tests push finger
// events onto a channel and may fix Identify's result, and Sensor
// drives auth.Matcher through them.
type Sensor struct {
	mu sync.Mutex

	fingerDown chan struct{}

	// Every Enroll call reports ok=true; enrollment reports done once
	// SamplesNeeded calls have been made.
	SamplesNeeded int
	enrollCount   int

	// IdentifyMatch, when set, is returned by every Identify call;
	// when nil, Identify matches template 0 if any template is
	// enrolled and returns an error otherwise.
	IdentifyMatch *auth.MatchResult
}

// New constructs a Sensor requiring samplesNeeded enrollment captures.
func New(samplesNeeded int) *Sensor {
	return &Sensor{
		fingerDown:    make(chan struct{}, 8),
		SamplesNeeded: samplesNeeded,
	}
}

// PressFinger signals a finger-down event to WaitFingerDown.
func (s *Sensor) PressFinger() {
	select {
	case s.fingerDown <- struct{}{}:
	default:
	}
}

func (s *Sensor) Init() error { return nil }

func (s *Sensor) WaitFingerDown(ctx context.Context) error {
	select {
	case <-s.fingerDown:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sensor) Capture() ([]byte, error) {
	return []byte{0x01}, nil
}

func (s *Sensor) Extract(image []byte) ([]byte, error) {
	return append([]byte{0x02}, image...), nil
}

func (s *Sensor) Enroll(sample []byte) (ok bool, done bool, template []byte, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enrollCount++
	done = s.enrollCount >= s.SamplesNeeded
	template = append([]byte{0x03}, sample...)
	return true, done, template, nil
}

func (s *Sensor) Identify(candidate []byte, enrolled []auth.Template) (auth.MatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.IdentifyMatch != nil {
		return *s.IdentifyMatch, nil
	}
	if len(enrolled) == 0 {
		return auth.MatchResult{}, errors.New("biomock: no enrolled templates")
	}
	return auth.MatchResult{Matched: true, TemplateIdx: 0}, nil
}
