package auth

import (
	"context"
	"testing"
	"time"

	"github.com/signetco/corefw/internal/auth/biomock"
	"github.com/signetco/corefw/internal/uievent"
)

type fakeSleep struct{ started, stopped, refreshed int }

func (s *fakeSleep) RefreshPowerTimer() { s.refreshed++ }
func (s *fakeSleep) StopPowerTimer()    { s.stopped++ }
func (s *fakeSleep) StartPowerTimer()   { s.started++ }

type fakeUnlock struct{ resets int }

func (u *fakeUnlock) ResetRetryCounter() error { u.resets++; return nil }

type memFile struct{ data []byte }

func (f *memFile) ReadAll() ([]byte, error) { return append([]byte(nil), f.data...), nil }
func (f *memFile) WriteAll(b []byte) error  { f.data = append([]byte(nil), b...); return nil }

type memKV struct{ m map[string][]byte }

func newMemKV() *memKV { return &memKV{m: map[string][]byte{}} }
func (k *memKV) Set(key string, v []byte) error {
	k.m[key] = append([]byte(nil), v...)
	return nil
}
func (k *memKV) Get(key string, buf []byte) (int, error) {
	v, ok := k.m[key]
	if !ok {
		return 0, errNotFound
	}
	n := copy(buf, v)
	if n < len(v) {
		return n, nil
	}
	return n, nil
}

var errNotFound = &notFoundErr{}

type notFoundErr struct{}

func (*notFoundErr) Error() string { return "not found" }

func newTestState() (*State, *fakeSleep, *fakeUnlock) {
	sleep := &fakeSleep{}
	unlock := &fakeUnlock{}
	s := New(60*time.Millisecond, 5*time.Millisecond, uievent.NewBus(), sleep, unlock)
	return s, sleep, unlock
}

func TestSetAuthenticatedArmsExpiryTimer(t *testing.T) {
	s, _, _ := newTestState()
	s.SetAuthenticated(true)
	if !s.IsAuthenticated() {
		t.Fatal("expected authenticated")
	}
	time.Sleep(100 * time.Millisecond)
	if s.IsAuthenticated() {
		t.Fatal("expected auth to expire")
	}
}

func TestSetAuthenticatedFalseEmitsLockedOnce(t *testing.T) {
	var received []uievent.ID
	bus := uievent.NewBus()
	bus.Subscribe(recFn(func(ev uievent.Event) { received = append(received, ev.ID) }))
	s := New(time.Second, time.Millisecond, bus, &fakeSleep{}, &fakeUnlock{})
	s.SetAuthenticated(true)
	s.SetAuthenticated(false)
	s.SetAuthenticated(false) // already locked: no second Locked event
	count := 0
	for _, id := range received {
		if id == uievent.Locked {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one Locked event, got %d", count)
	}
}

type recFn func(uievent.Event)

func (f recFn) Handle(ev uievent.Event) { f(ev) }

// Scenario 3: fingerprint enroll and match.
func TestEnrollThenMatch(t *testing.T) {
	s, _, unlockR := newTestState()
	sensor := biomock.New(3)
	files := [MaxTemplates]TemplateFile{&memFile{}, &memFile{}, &memFile{}}
	store := NewFileTemplateStore(files, newMemKV())
	m := NewMatcher(s, sensor, store, func() bool { return true }, nil, 3, "1.0.0")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	s.StartFingerprintEnrollment()
	for i := 0; i < 3; i++ {
		sensor.PressFinger()
		time.Sleep(20 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)

	status, stats := s.EnrollmentStatus()
	if status != EnrollmentComplete {
		t.Fatalf("expected EnrollmentComplete, got %v", status)
	}
	if stats.Pass < 3 || stats.Fail != 0 {
		t.Fatalf("expected pass>=3 fail=0, got %+v", stats)
	}
	if !s.IsAuthenticated() {
		t.Fatal("expected auto-authenticate after enrollment completes")
	}

	// Deauthenticate and test matching via finger-down.
	s.SetAuthenticated(false)
	sensor.PressFinger()
	time.Sleep(30 * time.Millisecond)
	if !s.IsAuthenticated() {
		t.Fatal("expected authentication after matching finger-down")
	}
	if unlockR.resets == 0 {
		t.Fatal("expected unlock retry counter reset on match")
	}
}
