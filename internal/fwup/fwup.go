// Package fwup implements the firmware update task: slot-writer state
// machine, normal and delta-oneshot transfer modes, and the
// post-finish deauth+reset. Ported from fwup_task.c.
package fwup

import (
	"errors"
	"fmt"
	"time"
)

// FinishResetDelay is FWUP_FINISH_RESET_MS: the pause between
// replying to the host and resetting with reason FWUP, giving the
// host a chance to receive the proto response first.
const FinishResetDelay = 2 * time.Second

// Mode selects how fwup_finish applies the written image.
type Mode int

const (
	ModeNormal Mode = iota
	ModeDeltaOneshot
)

// Role distinguishes which MCU a command targets; a core-side task
// forwards anything not CORE to the display MCU over the inter-MCU
// channel.
type Role int

const (
	RoleCore Role = iota
	RoleUXC
)

// State is the fwup task's state machine.
type State int

const (
	StateIdle State = iota
	StateStarted
	StateTransferring
	StateFinalizing
	StateApplied
	StateFailed
)

// StartStatus/TransferStatus/FinishStatus mirror the proto response
// status enums.
type StartStatus int

const (
	StartSuccess StartStatus = iota
	StartError
)

type TransferStatus int

const (
	TransferSuccess TransferStatus = iota
	TransferError
)

type FinishStatus int

const (
	FinishSuccess FinishStatus = iota
	FinishWillApplyPatch
	FinishError
)

var (
	ErrNotStarted       = errors.New("fwup: transfer before start")
	ErrAlreadyStarted   = errors.New("fwup: start while already in progress")
	ErrSequenceGap      = errors.New("fwup: non-monotonic transfer sequence")
	ErrOutOfRange       = errors.New("fwup: transfer chunk out of slot range")
	ErrWrongMCURole     = errors.New("fwup: command targets a different mcu_role")
	ErrNotTransferring  = errors.New("fwup: finish before any transfer")
)

// SlotWriter is the narrow contract into the target flash slot.
// WriteAt validates range itself is not required: the caller (Task)
// already bounds offset+len against SlotSize before calling.
type SlotWriter interface {
	WriteAt(offset uint32, data []byte) error
	SlotSize() uint32
	// ApplyDelta applies a previously written delta patch in place.
	// Only called in ModeDeltaOneshot.
	ApplyDelta() error
}

// Deauthenticator clears the authenticated flag without playing the
// deauth animation, matching deauthenticate_without_animation.
type Deauthenticator interface {
	DeauthenticateWithoutAnimation()
}

// Resetter performs the final MCU reset with the given reason.
type Resetter interface {
	ResetWithReason(reason string)
}

// CoprocForwarder sends fwup commands meant for the display MCU over
// the inter-MCU channel and marks the coproc-pending flag.
type CoprocForwarder interface {
	ForwardStart(mode Mode, patchSize uint32) (maxChunkSize uint32, err error)
	ForwardTransfer(sequenceID uint32, offset uint32, data []byte) error
	ForwardFinish(mode Mode, appPropertiesOffset, signatureOffset uint32, blUpgrade bool) (FinishStatus, error)
}

// MaxChunkSize is the largest fwup_transfer chunk accepted per call.
const MaxChunkSize = 2048

// Task owns the firmware update state machine for one MCU's target
// slot.
type Task struct {
	writer    SlotWriter
	deauth    Deauthenticator
	reset     Resetter
	coproc    CoprocForwarder
	resetWait func(time.Duration)

	state        State
	mode         Mode
	lastSeq      int64 // -1 until the first chunk arrives
	pending      bool
	coprocPending bool
}

// New constructs a Task. resetWait defaults to time.Sleep when nil;
// tests override it to avoid a real 2s sleep.
func New(writer SlotWriter, deauth Deauthenticator, reset Resetter, coproc CoprocForwarder, resetWait func(time.Duration)) *Task {
	if resetWait == nil {
		resetWait = time.Sleep
	}
	return &Task{writer: writer, deauth: deauth, reset: reset, coproc: coproc, resetWait: resetWait, lastSeq: -1}
}

// Start handles fwup_start: validates target role, initializes the
// writer for Normal or Delta mode, marks pending, and returns the max
// chunk size the host should use for fwup_transfer.
func (t *Task) Start(role Role, mode Mode, patchSize uint32) (StartStatus, uint32, error) {
	if role == RoleUXC {
		if t.coproc == nil {
			return StartError, 0, ErrWrongMCURole
		}
		maxChunk, err := t.coproc.ForwardStart(mode, patchSize)
		if err != nil {
			return StartError, 0, err
		}
		t.coprocPending = true
		return StartSuccess, maxChunk, nil
	}

	if t.state != StateIdle {
		return StartError, 0, ErrAlreadyStarted
	}
	t.mode = mode
	t.lastSeq = -1
	t.pending = true
	t.state = StateStarted
	return StartSuccess, MaxChunkSize, nil
}

// Transfer handles fwup_transfer: checks monotonic sequence, validates
// range, writes to the target slot.
func (t *Task) Transfer(role Role, sequenceID uint32, offset uint32, data []byte) (TransferStatus, error) {
	if role == RoleUXC {
		if t.coproc == nil {
			return TransferError, ErrWrongMCURole
		}
		if err := t.coproc.ForwardTransfer(sequenceID, offset, data); err != nil {
			t.coprocPending = false
			return TransferError, err
		}
		return TransferSuccess, nil
	}

	if t.state != StateStarted && t.state != StateTransferring {
		return TransferError, ErrNotStarted
	}
	seq := int64(sequenceID)
	if seq <= t.lastSeq {
		return TransferError, ErrSequenceGap
	}
	if uint64(offset)+uint64(len(data)) > uint64(t.writer.SlotSize()) {
		return TransferError, ErrOutOfRange
	}
	if err := t.writer.WriteAt(offset, data); err != nil {
		return TransferError, fmt.Errorf("fwup: write failed: %w", err)
	}
	t.lastSeq = seq
	t.state = StateTransferring
	return TransferSuccess, nil
}

// Finish handles fwup_finish. In ModeDeltaOneshot the caller must
// deliver FinishWillApplyPatch to the host before the (slow) patch
// application actually runs — reportEarlyReply is invoked with that
// status before ApplyDelta is called, letting the caller flush the
// reply over the wire while the NFC field is still up.
func (t *Task) Finish(role Role, mode Mode, appPropertiesOffset, signatureOffset uint32, blUpgrade bool, reportEarlyReply func(FinishStatus)) (FinishStatus, error) {
	if role == RoleUXC {
		if t.coproc == nil {
			return FinishError, ErrWrongMCURole
		}
		status, err := t.coproc.ForwardFinish(mode, appPropertiesOffset, signatureOffset, blUpgrade)
		t.coprocPending = false
		success := status == FinishSuccess || status == FinishWillApplyPatch
		t.afterFinish(success)
		return status, err
	}

	if t.state != StateStarted && t.state != StateTransferring {
		return FinishError, ErrNotTransferring
	}
	t.state = StateFinalizing

	if mode == ModeDeltaOneshot {
		if reportEarlyReply != nil {
			reportEarlyReply(FinishWillApplyPatch)
		}
		err := t.writer.ApplyDelta()
		success := err == nil
		t.afterFinish(success)
		if !success {
			return FinishWillApplyPatch, err
		}
		return FinishWillApplyPatch, nil
	}

	t.afterFinish(true)
	return FinishSuccess, nil
}

// afterFinish runs the shared post-finish sequence: result UI event
// is the caller's responsibility (via the returned status); on
// failure deauthenticate without animation; always reset after
// FinishResetDelay with reason FWUP.
func (t *Task) afterFinish(success bool) {
	if success {
		t.state = StateApplied
	} else {
		t.state = StateFailed
		if t.deauth != nil {
			t.deauth.DeauthenticateWithoutAnimation()
		}
	}
	t.resetWait(FinishResetDelay)
	if t.reset != nil {
		t.reset.ResetWithReason("FWUP")
	}
}

// State returns the task's current state, for tests and diagnostics.
func (t *Task) State() State { return t.state }

// CoprocPending reports whether a command was forwarded to the
// display MCU and its response has not yet arrived.
func (t *Task) CoprocPending() bool { return t.coprocPending }
