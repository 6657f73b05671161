package led

// Name identifies one of the firmware's fixed animation table entries
// (animation_name_t). Only the real (non-demo, non-mfgtest) subset
// this firmware's UI event bus actually dispatches to is modeled.
type Name int

const (
	NameRest Name = iota
	NameEnrollment
	NameEnrollmentComplete
	NameEnrollmentFailed
	NameFingerprintGood
	NameFingerprintBad
	NameFwupProgress
	NameFwupComplete
	NameFwupFailed
	NameUnlocked
	NameLocked
	NameCharging
	NameChargingFinished
)

var (
	green = Colour{Green: MaxDuty}
	red   = Colour{Red: MaxDuty}
	blue  = Colour{Blue: MaxDuty}
	white = Colour{White: MaxDuty}
	off   = Colour{}
)

// Table maps each Name to its Animation, grounded on the keyframe
// shapes animation.c's demo/real table entries use (ease-in/pulse
// pairs for feedback flashes, a slow loop for background states).
var Table = map[Name]*Animation{
	NameRest: {
		Loop: true,
		Keyframes: []Keyframe{
			{Type: PulseIn, Colour: white, Duration_ms: 2000},
			{Type: PulseOut, Colour: white, Duration_ms: 2000},
		},
	},
	NameEnrollment: {
		Loop: true,
		Keyframes: []Keyframe{
			{Type: EaseIn, Colour: blue, Duration_ms: 400},
			{Type: EaseOut, Colour: blue, Duration_ms: 400},
		},
	},
	NameEnrollmentComplete: {
		Keyframes: []Keyframe{
			{Type: Solid, Colour: green, Duration_ms: 600},
			{Type: Off, Colour: off, Duration_ms: 1},
		},
	},
	NameEnrollmentFailed: {
		Keyframes: []Keyframe{
			{Type: Solid, Colour: red, Duration_ms: 600},
			{Type: Off, Colour: off, Duration_ms: 1},
		},
	},
	NameFingerprintGood: {
		Keyframes: []Keyframe{
			{Type: EaseIn, Colour: green, Duration_ms: 150},
			{Type: EaseOut, Colour: green, Duration_ms: 150},
		},
	},
	NameFingerprintBad: {
		Keyframes: []Keyframe{
			{Type: EaseIn, Colour: red, Duration_ms: 150},
			{Type: EaseOut, Colour: red, Duration_ms: 150},
		},
	},
	NameFwupProgress: {
		Loop: true,
		Keyframes: []Keyframe{
			{Type: Lerp, Colour: off, Colour2: blue, Duration_ms: 1000},
			{Type: Lerp, Colour: blue, Colour2: off, Duration_ms: 1000},
		},
	},
	NameFwupComplete: {
		Keyframes: []Keyframe{
			{Type: Solid, Colour: green, Duration_ms: 1000},
			{Type: Off, Colour: off, Duration_ms: 1},
		},
	},
	NameFwupFailed: {
		Keyframes: []Keyframe{
			{Type: Solid, Colour: red, Duration_ms: 1000},
			{Type: Off, Colour: off, Duration_ms: 1},
		},
	},
	NameUnlocked: {
		Keyframes: []Keyframe{
			{Type: EaseIn, Colour: green, Duration_ms: 300},
			{Type: EaseOut, Colour: green, Duration_ms: 300},
		},
	},
	NameLocked: {
		Keyframes: []Keyframe{
			{Type: Solid, Colour: off, Duration_ms: 1},
		},
	},
	NameCharging: {
		Loop: true,
		Keyframes: []Keyframe{
			{Type: PulseIn, Colour: white, Duration_ms: 1500},
			{Type: PulseOut, Colour: white, Duration_ms: 1500},
		},
	},
	NameChargingFinished: {
		Keyframes: []Keyframe{
			{Type: Solid, Colour: green, Duration_ms: 2000},
			{Type: Off, Colour: off, Duration_ms: 1},
		},
	},
}
