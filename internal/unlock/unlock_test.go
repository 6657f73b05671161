package unlock

import (
	"testing"
	"time"

	"github.com/signetco/corefw/internal/kv"
)

type memFile struct{ data []byte }

func (f *memFile) ReadAll() ([]byte, error) { return append([]byte(nil), f.data...), nil }
func (f *memFile) WriteAll(b []byte) error  { f.data = append([]byte(nil), b...); return nil }
func (f *memFile) Remove() error            { f.data = nil; return nil }

type fakeSleep struct {
	inhibited time.Duration
	cleared   bool
}

func (s *fakeSleep) Inhibit(d time.Duration) { s.inhibited = d }
func (s *fakeSleep) ClearInhibit()           { s.cleared = true }

type fakeAuth struct{ authed bool }

func (a *fakeAuth) SetAuthenticated(v bool) { a.authed = v }

func newTestEngine(t *testing.T) (*Engine, *fakeAuth, *fakeSleep) {
	t.Helper()
	store, err := kv.Open(&memFile{})
	if err != nil {
		t.Fatal(err)
	}
	auth := &fakeAuth{}
	sleep := &fakeSleep{}
	e := New(store, sleep, auth, nil)
	e.Init()
	return e, auth, sleep
}

func secretOf(b byte) []byte {
	s := make([]byte, SecretSize)
	for i := range s {
		s[i] = b
	}
	return s
}

func TestNoSecretProvisioned(t *testing.T) {
	e, _, _ := newTestEngine(t)
	_, _, _, err := e.CheckSecret(secretOf(0))
	if err != ErrNoSecretProvisioned {
		t.Fatalf("expected ErrNoSecretProvisioned, got %v", err)
	}
}

// Scenario 1: provision + unlock happy path.
func TestHappyPathUnlock(t *testing.T) {
	e, auth, sleep := newTestEngine(t)
	secret := make([]byte, SecretSize)
	for i := range secret {
		secret[i] = byte(i + 1)
	}
	if err := e.ProvisionSecret(secret); err != nil {
		t.Fatal(err)
	}
	result, remaining, counter, err := e.CheckSecret(secret)
	if err != nil {
		t.Fatal(err)
	}
	if result != OK {
		t.Fatalf("expected OK, got %v", result)
	}
	if remaining != 0 || counter != 0 {
		t.Fatalf("expected zeroed remaining/counter, got %v %v", remaining, counter)
	}
	if !auth.authed {
		t.Fatal("expected device to be authenticated")
	}
	if !sleep.cleared {
		t.Fatal("expected sleep inhibit to be cleared on success")
	}
}

// Scenario 2: third bad attempt, then delay observed at the boundary.
func TestThirdBadThenDelay(t *testing.T) {
	e, auth, _ := newTestEngine(t)
	secret := secretOf(0x11)
	wrong := secretOf(0xFF)
	e.ProvisionSecret(secret)

	var result Result
	var counter uint32
	for i := 0; i < 3; i++ {
		var err error
		result, _, counter, err = e.CheckSecret(wrong)
		if err != nil {
			t.Fatal(err)
		}
	}
	if result != WrongSecret || counter != 3 {
		t.Fatalf("after 3 attempts expected WrongSecret/3, got %v/%d", result, counter)
	}

	result, remaining, counter, err := e.CheckSecret(wrong)
	if err != nil {
		t.Fatal(err)
	}
	if result != WrongSecret || counter != 4 {
		t.Fatalf("4th attempt expected WrongSecret/4, got %v/%d", result, counter)
	}
	if remaining < 9*time.Second || remaining > 10*time.Second {
		t.Fatalf("expected ~10s delay, got %v", remaining)
	}

	result, _, counter, err = e.CheckSecret(secret)
	if err != nil {
		t.Fatal(err)
	}
	if result != WaitingOnDelay || counter != 4 {
		t.Fatalf("expected WaitingOnDelay/4 while delayed, got %v/%d", result, counter)
	}
	if auth.authed {
		t.Fatal("device must not authenticate while waiting on delay")
	}
}

func TestDelayTableMonotonic(t *testing.T) {
	for k := uint32(3); k < AttemptLimit; k++ {
		if delayForCount(k+1) < delayForCount(k) {
			t.Fatalf("delay table not monotonic at %d->%d", k, k+1)
		}
	}
	for k := uint32(1); k <= 3; k++ {
		if delayForCount(k) != 0 {
			t.Fatalf("expected zero delay for attempt %d", k)
		}
	}
}

func TestLimitResponseWipe(t *testing.T) {
	store, _ := kv.Open(&memFile{})
	wiped := false
	e := New(store, &fakeSleep{}, &fakeAuth{}, func() { wiped = true })
	e.Init()
	e.SetLimitResponse(ResponseWipeState)
	e.ProvisionSecret(secretOf(0x22))
	wrong := secretOf(0xAA)
	var result Result
	for i := 0; i < int(AttemptLimit)+1; i++ {
		var err error
		result, _, _, err = e.CheckSecret(wrong)
		if err != nil {
			t.Fatal(err)
		}
		// Let the delay this attempt started lapse so the next
		// attempt reaches the comparison.
		e.mu.Lock()
		e.stopTimerLocked()
		e.mu.Unlock()
	}
	if result != LimitResponseTaken {
		t.Fatalf("expected LimitResponseTaken, got %v", result)
	}
	if !wiped {
		t.Fatal("expected wipe to be invoked")
	}
}

func TestResetRetryCounterRequiresInit(t *testing.T) {
	store, _ := kv.Open(&memFile{})
	e := New(store, &fakeSleep{}, &fakeAuth{}, nil)
	if err := e.ResetRetryCounter(); err != ErrNotInitialized {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}
