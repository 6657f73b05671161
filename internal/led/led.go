// Package led implements the LED animation engine: fixed-duration
// keyframe sequences advanced by elapsed time and rendered to RGBW
// duty cycles. Ported from
// original_source/firmware/lib/animation/animation.c's keyframe-run
// algorithm, restructured around a Go ticker-driven Player instead of
// the firmware's polled animation_keyframe_advance/run pair.
package led

import "math"

// KeyframeType selects how a keyframe's colour(s) are rendered over
// its duration.
type KeyframeType int

const (
	Off KeyframeType = iota
	Solid
	EaseIn
	EaseOut
	PulseIn
	PulseOut
	Lerp
)

// minEaseColour below this value the eased brightness change isn't
// perceivable as a ramp, so colours are floored here instead.
const minEaseColour = 90

// Colour is a duty-cycle quadruple; components are conventionally in
// [0, MaxDuty].
type Colour struct {
	Red, Green, Blue, White float64
}

// MaxDuty mirrors animation.h's MAX_DUTY (USHRT_MAX): the ceiling duty
// cycle value a Driver's PWM channel accepts.
const MaxDuty = 65535

// Keyframe is one segment of an Animation. Colour2 is only meaningful
// for Lerp, which blends from Colour to Colour2 over Duration.
type Keyframe struct {
	Type    KeyframeType
	Colour  Colour
	Colour2 Colour
	// Duration is how long this keyframe runs before advancing.
	Duration_ms uint32
}

// Animation is a named, ordered sequence of keyframes, either looping
// or run once before falling back to a rest animation.
type Animation struct {
	Keyframes []Keyframe
	Loop      bool
}

func ease(colour float64, progress float64) float64 {
	return math.Max(colour*progress*progress, minEaseColour)
}

func pulseOut(colour float64, progress float64) float64 {
	return math.Max(colour*(1-math.Cos(progress*math.Pi/2)), minEaseColour)
}

func lerp(from, to, progress float64) float64 {
	return from*(1-progress) + to*progress
}

// Run renders one keyframe at elapsedMS into it, returning the colour
// it produces. advanced mirrors the firmware's "just transitioned into
// this keyframe" flag: Off and Solid only emit on that transition, the
// eased/pulsed/lerp types re-render every tick.
func Run(k Keyframe, elapsedMS uint32, advanced bool) (Colour, bool) {
	switch k.Type {
	case Off:
		if !advanced {
			return Colour{}, false
		}
		return Colour{}, true
	case Solid:
		if !advanced {
			return Colour{}, false
		}
		return k.Colour, true
	case EaseIn, EaseOut:
		progress := float64(elapsedMS) / float64(k.Duration_ms)
		if k.Type == EaseOut {
			progress = 1 - progress
		}
		return Colour{
			Red:   ease(k.Colour.Red, progress),
			Green: ease(k.Colour.Green, progress),
			Blue:  ease(k.Colour.Blue, progress),
			White: ease(k.Colour.White, progress),
		}, true
	case PulseIn, PulseOut:
		progress := float64(elapsedMS) / float64(k.Duration_ms)
		if k.Type == PulseOut {
			progress = 1 - progress
			return Colour{
				Red:   pulseOut(k.Colour.Red, progress),
				Green: pulseOut(k.Colour.Green, progress),
				Blue:  pulseOut(k.Colour.Blue, progress),
				White: pulseOut(k.Colour.White, progress),
			}, true
		}
		return Colour{
			Red:   ease(k.Colour.Red, progress),
			Green: ease(k.Colour.Green, progress),
			Blue:  ease(k.Colour.Blue, progress),
			White: ease(k.Colour.White, progress),
		}, true
	case Lerp:
		progress := float64(elapsedMS) / float64(k.Duration_ms)
		return Colour{
			Red:   lerp(k.Colour.Red, k.Colour2.Red, progress),
			Green: lerp(k.Colour.Green, k.Colour2.Green, progress),
			Blue:  lerp(k.Colour.Blue, k.Colour2.Blue, progress),
			White: lerp(k.Colour.White, k.Colour2.White, progress),
		}, true
	default:
		return Colour{}, false
	}
}

// Driver is the PWM sink an Animation renders to. Backed on real
// hardware by periph.io/x/conn/v3's gpio/pwm stack, by a recording fake
// in tests.
type Driver interface {
	SetDuty(r, g, b, w float64)
}

// Ended reports whether idx has advanced past the last keyframe.
func Ended(a *Animation, idx int) bool {
	return idx >= len(a.Keyframes)
}

// Advance moves *idx to the next keyframe once elapsedMS has consumed
// the current one's duration, reporting whether it did.
func Advance(a *Animation, idx *int, elapsedMS uint32) bool {
	if elapsedMS >= a.Keyframes[*idx].Duration_ms {
		*idx++
		return true
	}
	return false
}
