package main

import (
	"github.com/signetco/corefw/internal/fwup"
	"github.com/signetco/corefw/internal/hostproto"
)

// Wire payload/response aliases so simcore_test.go can construct and
// decode requests without importing internal/hostproto by name in
// every call site.
type (
	provisionSecretReq        = hostproto.ProvisionSecretReq
	checkSecretReq            = hostproto.CheckSecretReq
	checkSecretRsp            = hostproto.CheckSecretRsp
	queryAuthRsp              = hostproto.QueryAuthRsp
	enrollmentStatusRsp       = hostproto.EnrollmentStatusRsp
	derivePathReq             = hostproto.DerivePathReq
	deriveDescriptorRsp       = hostproto.DeriveDescriptorRsp
	deriveAndSignReq          = hostproto.DeriveAndSignReq
	signatureRsp              = hostproto.SignatureRsp
	sealCSEKReq               = hostproto.SealCSEKReq
	sealedCSEKWire            = hostproto.SealedCSEKWire
	unsealCSEKReq             = hostproto.UnsealCSEKReq
	unsealCSEKRsp             = hostproto.UnsealCSEKRsp
	attestationReq            = hostproto.AttestationReq
	secureChannelEstablishReq = hostproto.SecureChannelEstablishReq
	secureChannelEstablishRsp = hostproto.SecureChannelEstablishRsp
	fwupStartReq              = hostproto.FwupStartReq
	fwupStartRsp              = hostproto.FwupStartRsp
	fwupTransferReq           = hostproto.FwupTransferReq
	fwupTransferRsp           = hostproto.FwupTransferRsp
	fwupFinishReq             = hostproto.FwupFinishReq
	fwupFinishRsp             = hostproto.FwupFinishRsp

	EnrollmentStatusWire = hostproto.EnrollmentStatusWire
)

const (
	WireEnrollmentComplete = hostproto.WireEnrollmentComplete

	UnlockOK             = hostproto.UnlockOK
	UnlockWrongSecret    = hostproto.UnlockWrongSecret
	UnlockWaitingOnDelay = hostproto.UnlockWaitingOnDelay
)

// registerHandlers wires the shared host command surface against this
// Device's simulated tasks; the simulator plays RoleCore, the same
// role a real cmd/core build's core MCU plays.
func (d *Device) registerHandlers() {
	hostproto.Register(d.Proto, hostproto.Deps{
		Unlock:  d.Unlock,
		Auth:    d.Auth,
		KeyMgr:  d.KeyMgr,
		FWUP:    d.FWUP,
		SysInfo: d.SysInfo,
		Role:    fwup.RoleCore,
		Pending: &d.pendingSecureChannel,
	})
}

// wcaRouter adapts a Device's wireproto.Dispatcher to wca.Router,
// ignoring wca's own protobuf-varint-derived tag (wireproto frames a
// 2-byte tag + 4-byte length header, not a protobuf field tag, so that
// derived value is meaningless) and instead decoding the authoritative
// Tag straight out of the reassembled body.
type wcaRouter struct {
	d *Device
}

func (r wcaRouter) RouteProto(tag uint32, body []byte) error {
	rsp, err := r.d.Proto.Dispatch(body)
	if err != nil {
		return err
	}
	r.d.WCA.HandleProtoResponse(rsp)
	return nil
}
