package led

import (
	"sync"
	"time"
)

// Player advances one Animation against a Driver on a fixed tick,
// mirroring the firmware's animation_keyframe_advance/run poll loop
// but driven by a Go ticker instead of a cooperative task slice.
type Player struct {
	driver Driver
	tick   time.Duration

	mu      sync.Mutex
	current *Animation
	rest    *Animation
	idx     int
	elapsed uint32
	stop    chan struct{}
}

// NewPlayer constructs a Player rendering to driver, polling at tick
// (10ms in the firmware's LED task slice).
func NewPlayer(driver Driver, tick time.Duration) *Player {
	p := &Player{driver: driver, tick: tick}
	go p.run()
	return p
}

// SetRest installs the animation played once a one-shot animation
// ends, matching ANI_REST's role as the idle fallback.
func (p *Player) SetRest(a *Animation) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rest = a
}

// Play starts a (loops forever if a.Loop; otherwise falls back to the
// installed rest animation on completion.
func (p *Player) Play(a *Animation) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = a
	p.idx = 0
	p.elapsed = 0
}

// Close stops the Player's tick goroutine.
func (p *Player) Close() {
	p.mu.Lock()
	if p.stop == nil {
		p.mu.Unlock()
		return
	}
	ch := p.stop
	p.mu.Unlock()
	close(ch)
}

func (p *Player) run() {
	p.mu.Lock()
	if p.stop != nil {
		p.mu.Unlock()
		return
	}
	p.stop = make(chan struct{})
	stop := p.stop
	p.mu.Unlock()

	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.step(uint32(p.tick.Milliseconds()))
		}
	}
}

func (p *Player) step(deltaMS uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil || len(p.current.Keyframes) == 0 {
		return
	}
	if Ended(p.current, p.idx) {
		if p.current.Loop {
			p.idx = 0
			p.elapsed = 0
		} else if p.rest != nil {
			p.current = p.rest
			p.idx = 0
			p.elapsed = 0
		} else {
			return
		}
	}
	p.elapsed += deltaMS
	advanced := Advance(p.current, &p.idx, p.elapsed)
	if advanced {
		p.elapsed = 0
	}
	if Ended(p.current, p.idx) {
		return
	}
	colour, updated := Run(p.current.Keyframes[p.idx], p.elapsed, advanced)
	if updated {
		p.driver.SetDuty(colour.Red, colour.Green, colour.Blue, colour.White)
	}
}
