package main

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/signetco/corefw/internal/hostproto"
	"github.com/signetco/corefw/internal/uc"
	"github.com/signetco/corefw/internal/wireproto"
)

// coreBridgeTimeout bounds how long a display.Hooks call waits for the
// core MCU to answer over uc before giving up; mirrors
// coprocForwardTimeout on the other end of the same link.
const coreBridgeTimeout = 2 * time.Second

// uiBridgeTags are the host command tags cmd/core's uibridge.go also
// answers over uc for the display MCU's own UI flows, reusing the
// exact payload shapes hostproto.Register already binds for the NFC
// host interface.
var uiBridgeTags = []wireproto.Tag{
	wireproto.TagStartFingerprintEnrollment,
	wireproto.TagGetFingerprintEnrollmentStatus,
	wireproto.TagQueryAuthentication,
	wireproto.TagLockDevice,
}

// coreBridge issues the UI-hook requests display.Controller needs
// answered by the core MCU (fingerprint enrollment, authentication
// state, device lock) over the uc transport. It mirrors
// cmd/core/coproc.go's coprocForwarder: one waiter channel per
// in-flight tag, matched up by deliver when the reply frame arrives.
type coreBridge struct {
	transport *uc.Transport

	mu      sync.Mutex
	waiters map[wireproto.Tag]chan []byte
}

func newCoreBridge(transport *uc.Transport) *coreBridge {
	b := &coreBridge{
		transport: transport,
		waiters:   make(map[wireproto.Tag]chan []byte),
	}
	for _, tag := range uiBridgeTags {
		tag := tag
		transport.Route(uint32(tag), func(payload []byte) {
			b.deliver(tag, payload)
		})
	}
	return b
}

func (b *coreBridge) deliver(tag wireproto.Tag, payload []byte) {
	b.mu.Lock()
	ch, ok := b.waiters[tag]
	if ok {
		delete(b.waiters, tag)
	}
	b.mu.Unlock()
	if ok {
		ch <- payload
	}
}

func (b *coreBridge) call(tag wireproto.Tag, payload []byte) ([]byte, error) {
	ch := make(chan []byte, 1)
	b.mu.Lock()
	b.waiters[tag] = ch
	b.mu.Unlock()

	if err := b.transport.Send(uint32(tag), payload, true); err != nil {
		b.mu.Lock()
		delete(b.waiters, tag)
		b.mu.Unlock()
		return nil, fmt.Errorf("uxc: core bridge: %s: %w", tag, err)
	}

	select {
	case rsp := <-ch:
		return rsp, nil
	case <-time.After(coreBridgeTimeout):
		b.mu.Lock()
		delete(b.waiters, tag)
		b.mu.Unlock()
		return nil, fmt.Errorf("uxc: core bridge: %s: timed out", tag)
	}
}

// startEnrollment backs display.Hooks.StartEnrollment. The host
// command takes no request payload (core always enrolls against
// whichever slot its own auth.State has selected), so slotIndex only
// needs to reach the Controller's own local flow context, not the
// wire.
func (b *coreBridge) startEnrollment(slotIndex int) {
	if _, err := b.call(wireproto.TagStartFingerprintEnrollment, nil); err != nil {
		log.Printf("uxc: start enrollment: %v", err)
	}
}

// queryFingerprints backs display.Hooks.QueryFingerprints, reporting
// pass/fail progress of whatever enrollment core currently has
// in-flight. There is no per-slot fingerprint listing in the host
// command alphabet today, so a fully populated fingerprint menu isn't
// obtainable over this link yet.
func (b *coreBridge) queryFingerprints() (hostproto.EnrollmentStatusRsp, error) {
	rsp, err := b.call(wireproto.TagGetFingerprintEnrollmentStatus, nil)
	if err != nil {
		return hostproto.EnrollmentStatusRsp{}, err
	}
	var out hostproto.EnrollmentStatusRsp
	if err := cbor.Unmarshal(rsp, &out); err != nil {
		return hostproto.EnrollmentStatusRsp{}, err
	}
	return out, nil
}

// deleteFingerprint backs display.Hooks.DeleteFingerprint. No host
// command exists yet to remove a single enrolled template (only full
// device wipe clears auth state), so this logs and does nothing rather
// than sending a request core has no handler for.
func (b *coreBridge) deleteFingerprint(index int) {
	log.Printf("uxc: delete fingerprint %d: not supported by this firmware build", index)
}

// powerOff backs display.Hooks.PowerOff, locking the device the same
// way a capacitive-touch long-press does on the core MCU.
func (b *coreBridge) powerOff() {
	if _, err := b.call(wireproto.TagLockDevice, nil); err != nil {
		log.Printf("uxc: power off: %v", err)
	}
}

// queryAuthentication is used by device.go to refresh the Controller's
// lock state after reconnecting to core, independent of the
// event-driven auth.State push a full build would also wire through
// uievent.
func (b *coreBridge) queryAuthentication() (bool, error) {
	rsp, err := b.call(wireproto.TagQueryAuthentication, nil)
	if err != nil {
		return false, err
	}
	var out hostproto.QueryAuthRsp
	if err := cbor.Unmarshal(rsp, &out); err != nil {
		return false, err
	}
	return out.Authenticated, nil
}
