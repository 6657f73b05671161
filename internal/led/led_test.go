package led

import (
	"testing"
	"time"
)

func TestRunSolidOnlyUpdatesOnAdvance(t *testing.T) {
	k := Keyframe{Type: Solid, Colour: Colour{Red: 100}, Duration_ms: 500}
	if _, updated := Run(k, 10, false); updated {
		t.Fatal("expected no update when not advancing")
	}
	c, updated := Run(k, 0, true)
	if !updated || c.Red != 100 {
		t.Fatalf("expected red=100 on advance, got %+v updated=%v", c, updated)
	}
}

func TestRunEaseInFloorsBelowMinEaseColour(t *testing.T) {
	k := Keyframe{Type: EaseIn, Colour: Colour{Red: 1000}, Duration_ms: 1000}
	c, _ := Run(k, 1, true) // progress ~0.001, squared is tiny
	if c.Red != minEaseColour {
		t.Fatalf("expected floor at %v, got %v", minEaseColour, c.Red)
	}
}

func TestRunLerpInterpolatesLinearly(t *testing.T) {
	k := Keyframe{Type: Lerp, Colour: Colour{Red: 0}, Colour2: Colour{Red: 100}, Duration_ms: 100}
	c, _ := Run(k, 50, true)
	if c.Red != 50 {
		t.Fatalf("expected midpoint 50, got %v", c.Red)
	}
}

func TestAdvanceMovesToNextKeyframeAfterDuration(t *testing.T) {
	a := &Animation{Keyframes: []Keyframe{
		{Type: Solid, Duration_ms: 100},
		{Type: Off, Duration_ms: 100},
	}}
	idx := 0
	if Advance(a, &idx, 50) {
		t.Fatal("should not advance before duration elapses")
	}
	if !Advance(a, &idx, 100) {
		t.Fatal("should advance once duration elapses")
	}
	if idx != 1 {
		t.Fatalf("expected idx=1, got %d", idx)
	}
}

func TestEndedReportsPastLastKeyframe(t *testing.T) {
	a := &Animation{Keyframes: []Keyframe{{Type: Off, Duration_ms: 1}}}
	if Ended(a, 0) {
		t.Fatal("should not be ended at the first keyframe")
	}
	if !Ended(a, 1) {
		t.Fatal("should be ended past the last keyframe")
	}
}

type recordingDriver struct {
	last Colour
	n    int
}

func (d *recordingDriver) SetDuty(r, g, b, w float64) {
	d.last = Colour{Red: r, Green: g, Blue: b, White: w}
	d.n++
}

func TestPlayerFallsBackToRestAfterOneShot(t *testing.T) {
	d := &recordingDriver{}
	p := NewPlayer(d, time.Hour) // tick large enough the background ticker never fires during the test
	defer p.Close()
	p.SetRest(Table[NameRest])
	p.Play(Table[NameFingerprintGood])

	// Step synchronously instead of racing the ticker goroutine.
	for i := 0; i < 400; i++ {
		p.step(1)
	}
	p.mu.Lock()
	current := p.current
	p.mu.Unlock()
	if current != Table[NameRest] {
		t.Fatal("expected the player to fall back to the rest animation")
	}
}
