package main

import (
	"log"

	"github.com/fxamacker/cbor/v2"

	"github.com/signetco/corefw/internal/fwup"
	"github.com/signetco/corefw/internal/hostproto"
	"github.com/signetco/corefw/internal/uc"
	"github.com/signetco/corefw/internal/wireproto"
)

// wireFwupBridge routes the three fwup tags the core MCU forwards over
// uc (via its coprocForwarder) to a local fwup.Task, the display MCU's
// own target-slot state machine. Locally the task is never told about
// MCU roles — it always executes directly, since the Core/UXC role
// distinction only matters to the task deciding whether to forward
// (fwup.Task.Start/Transfer/Finish treat any non-UXC role as local).
func wireFwupBridge(transport *uc.Transport, task *fwup.Task) {
	transport.Route(uint32(wireproto.TagFwupStart), func(payload []byte) {
		var req hostproto.FwupStartReq
		if err := cbor.Unmarshal(payload, &req); err != nil {
			log.Printf("uxc: fwup: start: %v", err)
			return
		}
		status, maxChunk, err := task.Start(fwup.RoleCore, fwup.Mode(req.Mode), req.Size)
		if err != nil {
			log.Printf("uxc: fwup: start: %v", err)
		}
		respond(transport, wireproto.TagFwupStart, hostproto.FwupStartRsp{Status: int(status), MaxChunkSize: maxChunk})
	})

	transport.Route(uint32(wireproto.TagFwupTransfer), func(payload []byte) {
		var req hostproto.FwupTransferReq
		if err := cbor.Unmarshal(payload, &req); err != nil {
			log.Printf("uxc: fwup: transfer: %v", err)
			return
		}
		status, err := task.Transfer(fwup.RoleCore, req.SequenceID, req.Offset, req.Data)
		if err != nil {
			log.Printf("uxc: fwup: transfer: %v", err)
		}
		respond(transport, wireproto.TagFwupTransfer, hostproto.FwupTransferRsp{Status: int(status)})
	})

	transport.Route(uint32(wireproto.TagFwupFinish), func(payload []byte) {
		var req hostproto.FwupFinishReq
		if err := cbor.Unmarshal(payload, &req); err != nil {
			log.Printf("uxc: fwup: finish: %v", err)
			return
		}
		status, err := task.Finish(fwup.RoleCore, fwup.Mode(req.Mode), 0, 0, false, nil)
		if err != nil {
			log.Printf("uxc: fwup: finish: %v", err)
		}
		respond(transport, wireproto.TagFwupFinish, hostproto.FwupFinishRsp{Status: int(status)})
	})
}

func respond(transport *uc.Transport, tag wireproto.Tag, rsp interface{}) {
	payload, err := cbor.Marshal(rsp)
	if err != nil {
		log.Printf("uxc: %s: marshal response: %v", tag, err)
		return
	}
	if err := transport.Send(uint32(tag), payload, true); err != nil {
		log.Printf("uxc: %s: send response: %v", tag, err)
	}
}
