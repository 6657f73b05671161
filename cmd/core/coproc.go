package main

import (
	"fmt"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/signetco/corefw/internal/fwup"
	"github.com/signetco/corefw/internal/hostproto"
	"github.com/signetco/corefw/internal/uc"
	"github.com/signetco/corefw/internal/wireproto"
)

// coprocForwardTimeout bounds how long a ForwardXxx call waits for the
// display MCU to answer over the uc link before giving up.
const coprocForwardTimeout = 2 * time.Second

// coprocForwarder implements fwup.CoprocForwarder by relaying fwup
// commands to the display MCU over the inter-MCU uc.Transport, reusing
// the same CBOR request/response shapes internal/hostproto registers
// for the host-facing wire protocol: the coprocessor's fwup surface is
// the same command set, just addressed across uc instead of wireproto.
type coprocForwarder struct {
	transport *uc.Transport

	mu      sync.Mutex
	waiters map[wireproto.Tag]chan []byte
}

func newCoprocForwarder(transport *uc.Transport) *coprocForwarder {
	f := &coprocForwarder{transport: transport, waiters: map[wireproto.Tag]chan []byte{}}
	transport.Route(uint32(wireproto.TagFwupStart), f.deliver(wireproto.TagFwupStart))
	transport.Route(uint32(wireproto.TagFwupTransfer), f.deliver(wireproto.TagFwupTransfer))
	transport.Route(uint32(wireproto.TagFwupFinish), f.deliver(wireproto.TagFwupFinish))
	return f
}

func (f *coprocForwarder) deliver(tag wireproto.Tag) uc.Handler {
	return func(payload []byte) {
		f.mu.Lock()
		ch := f.waiters[tag]
		delete(f.waiters, tag)
		f.mu.Unlock()
		if ch != nil {
			ch <- payload
		}
	}
}

func (f *coprocForwarder) call(tag wireproto.Tag, req interface{}) ([]byte, error) {
	payload, err := cbor.Marshal(req)
	if err != nil {
		return nil, err
	}
	ch := make(chan []byte, 1)
	f.mu.Lock()
	f.waiters[tag] = ch
	f.mu.Unlock()
	if err := f.transport.Send(uint32(tag), payload, true); err != nil {
		f.mu.Lock()
		delete(f.waiters, tag)
		f.mu.Unlock()
		return nil, fmt.Errorf("core: coproc: %s: %w", tag, err)
	}
	select {
	case rsp := <-ch:
		return rsp, nil
	case <-time.After(coprocForwardTimeout):
		f.mu.Lock()
		delete(f.waiters, tag)
		f.mu.Unlock()
		return nil, fmt.Errorf("core: coproc: %s: timed out", tag)
	}
}

func (f *coprocForwarder) ForwardStart(mode fwup.Mode, patchSize uint32) (uint32, error) {
	rspPayload, err := f.call(wireproto.TagFwupStart, hostproto.FwupStartReq{Mode: int(mode), Size: patchSize})
	if err != nil {
		return 0, err
	}
	var rsp hostproto.FwupStartRsp
	if err := cbor.Unmarshal(rspPayload, &rsp); err != nil {
		return 0, err
	}
	if rsp.Status != 0 {
		return 0, fmt.Errorf("core: coproc: fwup start: status %d", rsp.Status)
	}
	return rsp.MaxChunkSize, nil
}

func (f *coprocForwarder) ForwardTransfer(sequenceID, offset uint32, data []byte) error {
	rspPayload, err := f.call(wireproto.TagFwupTransfer, hostproto.FwupTransferReq{SequenceID: sequenceID, Offset: offset, Data: data})
	if err != nil {
		return err
	}
	var rsp hostproto.FwupTransferRsp
	if err := cbor.Unmarshal(rspPayload, &rsp); err != nil {
		return err
	}
	if rsp.Status != 0 {
		return fmt.Errorf("core: coproc: fwup transfer: status %d", rsp.Status)
	}
	return nil
}

// ForwardFinish forwards only the mode: appPropertiesOffset,
// signatureOffset and blUpgrade describe the CORE-role image layout
// and have no meaning for the UXC-role finish, matching
// hostproto.Register's own handler, which drops the same three
// parameters before calling fwup.Task.Finish.
func (f *coprocForwarder) ForwardFinish(mode fwup.Mode, appPropertiesOffset, signatureOffset uint32, blUpgrade bool) (fwup.FinishStatus, error) {
	rspPayload, err := f.call(wireproto.TagFwupFinish, hostproto.FwupFinishReq{Mode: int(mode)})
	if err != nil {
		return 0, err
	}
	var rsp hostproto.FwupFinishRsp
	if err := cbor.Unmarshal(rspPayload, &rsp); err != nil {
		return 0, err
	}
	return fwup.FinishStatus(rsp.Status), nil
}
