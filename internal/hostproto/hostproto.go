// Package hostproto registers the host-facing command alphabet (the
// CBOR payload shapes and wireproto.HandlerFunc bodies for the proto
// commands spec.md §6 defines) against a wireproto.Dispatcher. It is
// shared between cmd/simcore and cmd/core so both binaries expose the
// identical wire surface over different peripherals, the same way
// sysinfo_task.c's switch is one routing table regardless of which
// board it runs on.
package hostproto

import (
	"github.com/signetco/corefw/bip32"
	"github.com/signetco/corefw/internal/auth"
	"github.com/signetco/corefw/internal/fwup"
	"github.com/signetco/corefw/internal/keymanager"
	"github.com/signetco/corefw/internal/sysinfo"
	"github.com/signetco/corefw/internal/unlock"
	"github.com/signetco/corefw/internal/wireproto"
)

type ProvisionSecretReq struct {
	Secret []byte `cbor:"secret"`
}

type CheckSecretReq struct {
	Secret []byte `cbor:"secret"`
}

type CheckSecretRsp struct {
	Result           int    `cbor:"result"`
	RemainingDelayMS uint32 `cbor:"remaining_delay_ms"`
	Counter          uint32 `cbor:"counter"`
}

type QueryAuthRsp struct {
	Authenticated bool `cbor:"authenticated"`
}

// EnrollmentStatusWire mirrors auth.EnrollmentStatus across the wire
// boundary, independent of the in-process enum's exact values.
type EnrollmentStatusWire int

const (
	WireEnrollmentNotInProgress EnrollmentStatusWire = iota
	WireEnrollmentIncomplete
	WireEnrollmentComplete
)

func wireEnrollmentStatus(s auth.EnrollmentStatus) EnrollmentStatusWire {
	switch s {
	case auth.EnrollmentComplete:
		return WireEnrollmentComplete
	case auth.EnrollmentIncomplete:
		return WireEnrollmentIncomplete
	default:
		return WireEnrollmentNotInProgress
	}
}

type EnrollmentStatusRsp struct {
	Status EnrollmentStatusWire `cbor:"status"`
	Pass   int                  `cbor:"pass"`
	Fail   int                  `cbor:"fail"`
}

type DerivePathReq struct {
	Path []uint32 `cbor:"path"`
}

type DeriveDescriptorRsp struct {
	XPub        string   `cbor:"xpub"`
	Path        []uint32 `cbor:"path"`
	Fingerprint uint32   `cbor:"fingerprint"`
}

type DeriveAndSignReq struct {
	Path []uint32 `cbor:"path"`
	Hash [32]byte `cbor:"hash"`
}

type SignatureRsp struct {
	Signature []byte `cbor:"signature"`
}

type SealCSEKReq struct {
	CSEK [32]byte `cbor:"csek"`
}

type SealedCSEKWire struct {
	Ciphertext []byte `cbor:"ciphertext"`
	Nonce      []byte `cbor:"nonce"`
	Tag        []byte `cbor:"tag"`
}

type UnsealCSEKReq struct {
	Sealed SealedCSEKWire `cbor:"sealed"`
}

type UnsealCSEKRsp struct {
	CSEK []byte `cbor:"csek"`
}

type AttestationReq struct {
	Nonce []byte `cbor:"nonce"`
}

type SecureChannelEstablishReq struct {
	PKHost [32]byte `cbor:"pk_host"`
}

type SecureChannelEstablishRsp struct {
	PKDevice           [32]byte `cbor:"pk_device"`
	ExchangeSignature  [64]byte `cbor:"exchange_sig"`
	KeyConfirmationTag [16]byte `cbor:"key_confirmation_tag"`
}

type FwupStartReq struct {
	Mode int    `cbor:"mode"`
	Size uint32 `cbor:"size"`
}

type FwupStartRsp struct {
	Status       int    `cbor:"status"`
	MaxChunkSize uint32 `cbor:"max_chunk_size"`
}

type FwupTransferReq struct {
	SequenceID uint32 `cbor:"sequence_id"`
	Offset     uint32 `cbor:"offset"`
	Data       []byte `cbor:"data"`
}

type FwupTransferRsp struct {
	Status int `cbor:"status"`
}

type FwupFinishReq struct {
	Mode int `cbor:"mode"`
}

type FwupFinishRsp struct {
	Status int `cbor:"status"`
}

// Deps bundles the concrete tasks the registered handlers call into.
// All fields are required; a real build and the simulator both
// construct one of these once their subsystems are wired.
type Deps struct {
	Unlock  *unlock.Engine
	Auth    *auth.State
	KeyMgr  *keymanager.Manager
	FWUP    *fwup.Task
	SysInfo *sysinfo.Service
	Role    fwup.Role

	// Pending receives the confirmation half of a secure_channel_establish
	// handshake, so a later command (not modeled here; left to the
	// transport that confirms it, e.g. uc's own handshake use) can
	// complete it. Pending must be non-nil.
	Pending *keymanager.PendingSecureChannel
}

// Register binds one wireproto.HandlerFunc per command in Deps'
// surface onto proto, mirroring sysinfo_thread's big switch generalized
// into one registration per case.
func Register(proto *wireproto.Dispatcher, d Deps) {
	proto.Register(wireproto.TagProvisionUnlockSecret, func(payload []byte) ([]byte, error) {
		var req ProvisionSecretReq
		if err := wireproto.DecodePayload(payload, &req); err != nil {
			return nil, err
		}
		if err := d.Unlock.ProvisionSecret(req.Secret); err != nil {
			return nil, err
		}
		return nil, nil
	})

	proto.Register(wireproto.TagSendUnlockSecret, func(payload []byte) ([]byte, error) {
		var req CheckSecretReq
		if err := wireproto.DecodePayload(payload, &req); err != nil {
			return nil, err
		}
		result, remaining, counter, err := d.Unlock.CheckSecret(req.Secret)
		if err != nil {
			return nil, err
		}
		return cborEncode(CheckSecretRsp{
			Result:           int(result),
			RemainingDelayMS: uint32(remaining.Milliseconds()),
			Counter:          counter,
		})
	})

	proto.Register(wireproto.TagQueryAuthentication, func(payload []byte) ([]byte, error) {
		return cborEncode(QueryAuthRsp{Authenticated: d.Auth.IsAuthenticated()})
	})

	proto.Register(wireproto.TagStartFingerprintEnrollment, func(payload []byte) ([]byte, error) {
		d.Auth.StartFingerprintEnrollment()
		return nil, nil
	})

	proto.Register(wireproto.TagGetFingerprintEnrollmentStatus, func(payload []byte) ([]byte, error) {
		status, stats := d.Auth.EnrollmentStatus()
		return cborEncode(EnrollmentStatusRsp{
			Status: wireEnrollmentStatus(status),
			Pass:   stats.Pass,
			Fail:   stats.Fail,
		})
	})

	proto.Register(wireproto.TagDeriveKeyDescriptor, func(payload []byte) ([]byte, error) {
		var req DerivePathReq
		if err := wireproto.DecodePayload(payload, &req); err != nil {
			return nil, err
		}
		desc, err := d.KeyMgr.DeriveKeyDescriptor(bip32.Path(req.Path))
		if err != nil {
			return nil, err
		}
		return cborEncode(DeriveDescriptorRsp{
			XPub:        desc.BareXPub,
			Path:        []uint32(desc.OriginPath),
			Fingerprint: desc.OriginFingerprint,
		})
	})

	proto.Register(wireproto.TagDeriveKeyDescriptorAndSign, func(payload []byte) ([]byte, error) {
		var req DeriveAndSignReq
		if err := wireproto.DecodePayload(payload, &req); err != nil {
			return nil, err
		}
		sig, err := d.KeyMgr.DeriveKeyDescriptorAndSign(bip32.Path(req.Path), req.Hash)
		if err != nil {
			return nil, err
		}
		return cborEncode(SignatureRsp{Signature: sig})
	})

	proto.Register(wireproto.TagSealCSEK, func(payload []byte) ([]byte, error) {
		var req SealCSEKReq
		if err := wireproto.DecodePayload(payload, &req); err != nil {
			return nil, err
		}
		sealed, err := d.KeyMgr.SealCSEK(req.CSEK[:])
		if err != nil {
			return nil, err
		}
		return cborEncode(SealedCSEKWire{Ciphertext: sealed.Ciphertext, Nonce: sealed.Nonce, Tag: sealed.Tag})
	})

	proto.Register(wireproto.TagUnsealCSEK, func(payload []byte) ([]byte, error) {
		var req UnsealCSEKReq
		if err := wireproto.DecodePayload(payload, &req); err != nil {
			return nil, err
		}
		plain, err := d.KeyMgr.UnsealCSEK(keymanager.SealedCSEK{
			Ciphertext: req.Sealed.Ciphertext,
			Nonce:      req.Sealed.Nonce,
			Tag:        req.Sealed.Tag,
		})
		if err != nil {
			return nil, err
		}
		return cborEncode(UnsealCSEKRsp{CSEK: plain})
	})

	proto.Register(wireproto.TagHardwareAttestation, func(payload []byte) ([]byte, error) {
		var req AttestationReq
		if err := wireproto.DecodePayload(payload, &req); err != nil {
			return nil, err
		}
		sig, err := d.KeyMgr.HardwareAttestation(req.Nonce)
		if err != nil {
			return nil, err
		}
		return cborEncode(SignatureRsp{Signature: sig})
	})

	proto.Register(wireproto.TagSecureChannelEstablish, func(payload []byte) ([]byte, error) {
		var req SecureChannelEstablishReq
		if err := wireproto.DecodePayload(payload, &req); err != nil {
			return nil, err
		}
		reply, pending, err := d.KeyMgr.SecureChannelEstablish(req.PKHost)
		if err != nil {
			return nil, err
		}
		*d.Pending = pending
		return cborEncode(SecureChannelEstablishRsp{
			PKDevice:           reply.DevicePublic,
			ExchangeSignature:  reply.ExchangeSignature,
			KeyConfirmationTag: reply.KeyConfirmationTag,
		})
	})

	proto.Register(wireproto.TagFwupStart, func(payload []byte) ([]byte, error) {
		var req FwupStartReq
		if err := wireproto.DecodePayload(payload, &req); err != nil {
			return nil, err
		}
		status, maxChunk, err := d.FWUP.Start(d.Role, fwup.Mode(req.Mode), req.Size)
		if err != nil {
			return nil, err
		}
		return cborEncode(FwupStartRsp{Status: int(status), MaxChunkSize: maxChunk})
	})

	proto.Register(wireproto.TagFwupTransfer, func(payload []byte) ([]byte, error) {
		var req FwupTransferReq
		if err := wireproto.DecodePayload(payload, &req); err != nil {
			return nil, err
		}
		status, err := d.FWUP.Transfer(d.Role, req.SequenceID, req.Offset, req.Data)
		if err != nil {
			return nil, err
		}
		return cborEncode(FwupTransferRsp{Status: int(status)})
	})

	proto.Register(wireproto.TagFwupFinish, func(payload []byte) ([]byte, error) {
		var req FwupFinishReq
		if err := wireproto.DecodePayload(payload, &req); err != nil {
			return nil, err
		}
		status, err := d.FWUP.Finish(d.Role, fwup.Mode(req.Mode), 0, 0, false, nil)
		if err != nil {
			return nil, err
		}
		return cborEncode(FwupFinishRsp{Status: int(status)})
	})

	proto.Register(wireproto.TagLockDevice, func(payload []byte) ([]byte, error) {
		d.SysInfo.LockDevice()
		return nil, nil
	})
}

func cborEncode(v interface{}) ([]byte, error) {
	frame, err := wireproto.Encode(wireproto.TagEmpty, v)
	if err != nil {
		return nil, err
	}
	_, payload, err := wireproto.Decode(frame)
	return payload, err
}

// unlock.Result values re-exported for callers that want readable
// comparisons without importing internal/unlock themselves.
const (
	UnlockOK             = int(unlock.OK)
	UnlockWrongSecret    = int(unlock.WrongSecret)
	UnlockWaitingOnDelay = int(unlock.WaitingOnDelay)
)
