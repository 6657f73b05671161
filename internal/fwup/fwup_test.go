package fwup

import (
	"errors"
	"testing"
	"time"
)

type memSlot struct {
	size    uint32
	data    []byte
	applied bool
	applyErr error
}

func newMemSlot(size uint32) *memSlot { return &memSlot{size: size, data: make([]byte, size)} }

func (s *memSlot) WriteAt(offset uint32, data []byte) error {
	copy(s.data[offset:], data)
	return nil
}
func (s *memSlot) SlotSize() uint32 { return s.size }
func (s *memSlot) ApplyDelta() error {
	s.applied = true
	return s.applyErr
}

type fakeDeauth struct{ called int }

func (f *fakeDeauth) DeauthenticateWithoutAnimation() { f.called++ }

type fakeResetter struct{ reason string }

func (f *fakeResetter) ResetWithReason(reason string) { f.reason = reason }

func noSleep(time.Duration) {}

func TestNormalModeFullFlow(t *testing.T) {
	slot := newMemSlot(4096)
	deauth := &fakeDeauth{}
	reset := &fakeResetter{}
	task := New(slot, deauth, reset, nil, noSleep)

	status, maxChunk, err := task.Start(RoleCore, ModeNormal, 100)
	if err != nil || status != StartSuccess {
		t.Fatalf("Start: status=%v err=%v", status, err)
	}
	if maxChunk != MaxChunkSize {
		t.Fatalf("expected max chunk %d, got %d", MaxChunkSize, maxChunk)
	}

	if _, err := task.Transfer(RoleCore, 1, 0, []byte("hello")); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if _, err := task.Transfer(RoleCore, 2, 5, []byte("world")); err != nil {
		t.Fatalf("Transfer: %v", err)
	}

	fstatus, err := task.Finish(RoleCore, ModeNormal, 0, 0, false, nil)
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if fstatus != FinishSuccess {
		t.Fatalf("expected FinishSuccess, got %v", fstatus)
	}
	if task.State() != StateApplied {
		t.Fatalf("expected StateApplied, got %v", task.State())
	}
	if deauth.called != 0 {
		t.Fatal("expected no deauth on success")
	}
	if reset.reason != "FWUP" {
		t.Fatalf("expected reset reason FWUP, got %q", reset.reason)
	}
	if string(slot.data[:10]) != "helloworld" {
		t.Fatalf("unexpected slot contents: %q", slot.data[:10])
	}
}

func TestTransferSequenceGapRejected(t *testing.T) {
	slot := newMemSlot(4096)
	task := New(slot, nil, nil, nil, noSleep)
	task.Start(RoleCore, ModeNormal, 100)

	if _, err := task.Transfer(RoleCore, 5, 0, []byte("a")); err != nil {
		t.Fatal(err)
	}
	if _, err := task.Transfer(RoleCore, 5, 1, []byte("b")); err != ErrSequenceGap {
		t.Fatalf("expected ErrSequenceGap for repeated sequence, got %v", err)
	}
	if _, err := task.Transfer(RoleCore, 3, 1, []byte("b")); err != ErrSequenceGap {
		t.Fatalf("expected ErrSequenceGap for decreasing sequence, got %v", err)
	}
}

func TestTransferOutOfRangeRejected(t *testing.T) {
	slot := newMemSlot(16)
	task := New(slot, nil, nil, nil, noSleep)
	task.Start(RoleCore, ModeNormal, 16)
	if _, err := task.Transfer(RoleCore, 1, 10, []byte("0123456789")); err != ErrOutOfRange {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
}

func TestDeltaOneshotRepliesBeforeApplying(t *testing.T) {
	slot := newMemSlot(4096)
	deauth := &fakeDeauth{}
	reset := &fakeResetter{}
	task := New(slot, deauth, reset, nil, noSleep)
	task.Start(RoleCore, ModeDeltaOneshot, 100)
	task.Transfer(RoleCore, 1, 0, []byte("patch"))

	var earlyReply FinishStatus
	var appliedBeforeReply bool
	status, err := task.Finish(RoleCore, ModeDeltaOneshot, 0, 0, false, func(s FinishStatus) {
		earlyReply = s
		appliedBeforeReply = slot.applied
	})
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if status != FinishWillApplyPatch {
		t.Fatalf("expected FinishWillApplyPatch, got %v", status)
	}
	if earlyReply != FinishWillApplyPatch {
		t.Fatalf("expected early reply WillApplyPatch, got %v", earlyReply)
	}
	if appliedBeforeReply {
		t.Fatal("expected patch to apply only after the early reply callback ran")
	}
	if !slot.applied {
		t.Fatal("expected ApplyDelta to have run")
	}
	if task.State() != StateApplied {
		t.Fatalf("expected StateApplied, got %v", task.State())
	}
}

func TestFinishFailureDeauthenticatesAndResets(t *testing.T) {
	slot := newMemSlot(4096)
	slot.applyErr = errors.New("bad patch")
	deauth := &fakeDeauth{}
	reset := &fakeResetter{}
	task := New(slot, deauth, reset, nil, noSleep)
	task.Start(RoleCore, ModeDeltaOneshot, 100)
	task.Transfer(RoleCore, 1, 0, []byte("patch"))

	status, err := task.Finish(RoleCore, ModeDeltaOneshot, 0, 0, false, nil)
	if err == nil {
		t.Fatal("expected an error from a failing ApplyDelta")
	}
	if status != FinishWillApplyPatch {
		t.Fatalf("expected FinishWillApplyPatch (early reply always sent), got %v", status)
	}
	if task.State() != StateFailed {
		t.Fatalf("expected StateFailed, got %v", task.State())
	}
	if deauth.called != 1 {
		t.Fatalf("expected exactly one deauth call, got %d", deauth.called)
	}
	if reset.reason != "FWUP" {
		t.Fatalf("expected reset reason FWUP even on failure, got %q", reset.reason)
	}
}

type fakeCoproc struct {
	startChunk    uint32
	startErr      error
	transferErr   error
	finishStatus  FinishStatus
	finishErr     error
}

func (f *fakeCoproc) ForwardStart(mode Mode, patchSize uint32) (uint32, error) {
	return f.startChunk, f.startErr
}
func (f *fakeCoproc) ForwardTransfer(sequenceID uint32, offset uint32, data []byte) error {
	return f.transferErr
}
func (f *fakeCoproc) ForwardFinish(mode Mode, appPropertiesOffset, signatureOffset uint32, blUpgrade bool) (FinishStatus, error) {
	return f.finishStatus, f.finishErr
}

func TestUXCRoleForwardsToCoproc(t *testing.T) {
	slot := newMemSlot(4096)
	coproc := &fakeCoproc{startChunk: 512, finishStatus: FinishSuccess}
	task := New(slot, nil, nil, coproc, noSleep)

	status, chunk, err := task.Start(RoleUXC, ModeNormal, 100)
	if err != nil || status != StartSuccess || chunk != 512 {
		t.Fatalf("Start: status=%v chunk=%d err=%v", status, chunk, err)
	}
	if !task.CoprocPending() {
		t.Fatal("expected coproc pending after forwarded start")
	}

	if _, err := task.Transfer(RoleUXC, 1, 0, []byte("x")); err != nil {
		t.Fatalf("Transfer: %v", err)
	}

	fstatus, err := task.Finish(RoleUXC, ModeNormal, 0, 0, false, nil)
	if err != nil || fstatus != FinishSuccess {
		t.Fatalf("Finish: status=%v err=%v", fstatus, err)
	}
	if task.CoprocPending() {
		t.Fatal("expected coproc pending cleared after finish")
	}
}

func TestUXCRoleWithoutForwarderRejected(t *testing.T) {
	slot := newMemSlot(4096)
	task := New(slot, nil, nil, nil, noSleep)
	if _, _, err := task.Start(RoleUXC, ModeNormal, 100); err != ErrWrongMCURole {
		t.Fatalf("expected ErrWrongMCURole, got %v", err)
	}
}
