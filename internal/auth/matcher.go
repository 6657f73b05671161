package auth

import (
	"context"
	"time"

	"github.com/signetco/corefw/internal/fault"
	"github.com/signetco/corefw/internal/secure"
	"github.com/signetco/corefw/internal/uievent"
)

// Template is an opaque enrolled fingerprint template plus its label.
type Template struct {
	Label string
	Data  []byte
}

// MatchResult is returned by Biometrics.Identify.
type MatchResult struct {
	Matched      bool
	TemplateIdx  int
	ShouldUpdate bool // the matcher library suggests refreshing the template
}

// Biometrics is the narrow contract into the out-of-scope fingerprint
// sensor vendor library.
type Biometrics interface {
	// Init initializes the sensor. Retried on failure by the caller.
	Init() error
	// WaitFingerDown blocks until a finger is detected or ctx is
	// cancelled.
	WaitFingerDown(ctx context.Context) error
	// Capture captures an image from the sensor.
	Capture() ([]byte, error)
	// Extract produces a template from a captured image.
	Extract(image []byte) ([]byte, error)
	// Enroll folds one captured sample into an in-progress enrollment.
	// ok reports whether the sample was usable.
	Enroll(sample []byte) (ok bool, done bool, template []byte, err error)
	// Identify matches a template against all enrolled templates.
	Identify(candidate []byte, enrolled []Template) (MatchResult, error)
}

// TemplateStore persists enrolled templates, labels, and the
// last-template-update timestamp, standing in for fixed-named flash
// files in spec.md §6.
type TemplateStore interface {
	Templates() []Template
	SaveTemplate(idx int, t Template) error
	LastUpdateTimestamp() (uint32, bool)
	SetLastUpdateTimestamp(uint32) error
	RecordEnrollFirmwareVersion(version string) error
}

// TemplateUpdateFeatureFlag reports whether rate-limited template
// refresh is enabled.
type TemplateUpdateFeatureFlag func() bool

const templateUpdateMinInterval = 3 * 24 * time.Hour

// Matcher drives the fingerprint matcher thread: capture/enroll during
// enrollment, identify-against-enrolled otherwise.
type Matcher struct {
	state     *State
	bio       Biometrics
	store     TemplateStore
	flagOn    TemplateUpdateFeatureFlag
	trap      fault.Handler
	rateLimit time.Duration
	samples   int
	fwVersion string
}

// NewMatcher constructs a Matcher. samples is the number of enrollment
// captures required per spec.md §4.2 step 3.
func NewMatcher(state *State, bio Biometrics, store TemplateStore, flagOn TemplateUpdateFeatureFlag, trap fault.Handler, samples int, fwVersion string) *Matcher {
	return &Matcher{
		state:     state,
		bio:       bio,
		store:     store,
		flagOn:    flagOn,
		trap:      trap,
		rateLimit: state.rateLimit,
		samples:   samples,
		fwVersion: fwVersion,
	}
}

// Run executes the matcher loop until ctx is cancelled. Intended to be
// launched as a goroutine at priority High (spec.md §5).
func (m *Matcher) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := m.bio.Init(); err != nil {
			select {
			case <-time.After(5 * time.Second):
				continue
			case <-ctx.Done():
				return
			}
		}
		break
	}

	for {
		if ctx.Err() != nil {
			return
		}
		if err := m.bio.WaitFingerDown(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}

		m.state.mu.Lock()
		enrolling := m.state.enrollmentInProgress
		alreadyAuthed := m.state.authenticated.Equal(secure.True)
		m.state.mu.Unlock()

		if enrolling {
			m.runEnrollment(ctx)
			continue
		}

		if alreadyAuthed {
			continue
		}

		if len(m.store.Templates()) == 0 {
			continue
		}

		if !m.runIdentify() {
			select {
			case <-time.After(m.rateLimit):
			case <-ctx.Done():
				return
			}
		}
	}
}

func (m *Matcher) runEnrollment(ctx context.Context) {
	var lastTemplate []byte
	for i := 0; i < m.samples; i++ {
		m.state.mu.Lock()
		cancelled := m.state.enrollCancel
		m.state.mu.Unlock()
		if cancelled || ctx.Err() != nil {
			m.finishEnrollment(false, nil)
			return
		}

		img, err := m.bio.Capture()
		if err != nil {
			m.state.mu.Lock()
			m.state.enrollStats.Fail++
			m.state.mu.Unlock()
			continue
		}
		sample, err := m.bio.Extract(img)
		if err != nil {
			m.state.mu.Lock()
			m.state.enrollStats.Fail++
			m.state.mu.Unlock()
			continue
		}
		ok, done, tmpl, err := m.bio.Enroll(sample)
		m.state.mu.Lock()
		if ok && err == nil {
			m.state.enrollStats.Pass++
		} else {
			m.state.enrollStats.Fail++
		}
		m.state.mu.Unlock()
		if tmpl != nil {
			lastTemplate = tmpl
		}
		if done {
			m.finishEnrollment(true, lastTemplate)
			return
		}
	}
	m.finishEnrollment(false, lastTemplate)
}

func (m *Matcher) finishEnrollment(success bool, template []byte) {
	m.state.mu.Lock()
	m.state.enrollmentInProgress = false
	if success {
		m.state.enrollStatus = EnrollmentComplete
	} else {
		m.state.enrollStatus = EnrollmentIncomplete
	}
	ev := m.state.events
	m.state.mu.Unlock()

	if success && template != nil {
		templates := m.store.Templates()
		idx := len(templates)
		label := "Finger " + string(rune('1'+idx))
		m.store.SaveTemplate(idx, Template{Label: label, Data: template})
		m.store.RecordEnrollFirmwareVersion(m.fwVersion)
		m.state.SetAuthenticated(true)
		if ev != nil {
			ev.Publish(uievent.Event{ID: uievent.EnrollmentSuccess})
		}
	} else if ev != nil {
		ev.Publish(uievent.Event{ID: uievent.EnrollmentFailed})
	}
}

// runIdentify runs one capture/identify cycle against all enrolled
// templates. The glitch counter is snapshotted before the match and
// compared again inside the hardened branch below, so a glitch
// detected anywhere during capture/extract/identify — not just in the
// final compare — fails the attempt (spec.md §4.2 step 5).
func (m *Matcher) runIdentify() bool {
	glitchAtStart := secure.GlitchCount()

	img, err := m.bio.Capture()
	if err != nil {
		return false
	}
	candidate, err := m.bio.Extract(img)
	if err != nil {
		return false
	}
	templates := m.store.Templates()

	// The sensor match runs exactly once: it is the expensive,
	// stateful half of this step. Only the cheap boolean outcome
	// below — already-computed match plus the glitch-counter
	// comparison — goes through the doubled, delay-separated
	// evaluation that secure.DoFailOut performs.
	result, identifyErr := m.bio.Identify(candidate, templates)
	rawMatch := identifyErr == nil && result.Matched

	matched := false
	secure.DoFailOut(func() bool {
		return rawMatch && secure.GlitchCount() == glitchAtStart
	}, func(reason string) {
		fault.Trap(m.trap, fault.ResetFault, reason)
	}, "fingerprint-identify", func(ok bool) {
		matched = ok
	})

	if !matched {
		return false
	}

	m.state.SetAuthenticated(true)
	// unlock reset happens via the wired UnlockResetter, not directly
	// here, to avoid an import cycle; auth.State exposes it through
	// the unlock field set at construction.
	if m.state.unlock != nil {
		m.state.unlock.ResetRetryCounter()
	}

	m.maybeRefreshTemplate(result, templates[result.TemplateIdx])
	return true
}

func (m *Matcher) maybeRefreshTemplate(result MatchResult, tmpl Template) {
	if !result.ShouldUpdate {
		return
	}
	if m.flagOn != nil && !m.flagOn() {
		return
	}
	hostTS, hasHostTS := m.state.HostTimestamp()
	if hasHostTS {
		lastTS, hasLastTS := m.store.LastUpdateTimestamp()
		if hasLastTS {
			elapsed := time.Duration(hostTS-lastTS) * time.Second
			if hostTS <= lastTS || elapsed < templateUpdateMinInterval {
				return
			}
		}
	}
	m.store.SaveTemplate(result.TemplateIdx, tmpl)
	if hasHostTS {
		m.store.SetLastUpdateTimestamp(hostTS)
	}
}
