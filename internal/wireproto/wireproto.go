// Package wireproto implements the host-facing command envelope: a
// tag identifying one oneof variant of the proto command alphabet
// (spec.md §6), plus a CBOR-encoded payload specific to that tag.
// There is no .proto schema or protoc-generated code anywhere in the
// retrieved corpus (see DESIGN.md's Open Question decision), so this
// package is a small hand-rolled substitute: a fixed tag+length header
// framing a github.com/fxamacker/cbor/v2-encoded payload, preserving
// the oneof/tag shape of the original wire format without a schema
// compiler step.
package wireproto

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Tag identifies one top-level command or response variant, matching
// the oneof tags the NFC router recognises (spec.md §6).
type Tag uint16

const (
	TagStartFingerprintEnrollment Tag = iota + 1
	TagGetFingerprintEnrollmentStatus
	TagQueryAuthentication
	TagSendUnlockSecret
	TagProvisionUnlockSecret
	TagConfigureUnlockLimitResponse
	TagDeriveKeyDescriptor
	TagDeriveKeyDescriptorAndSign
	TagSealCSEK
	TagUnsealCSEK
	TagHardwareAttestation
	TagSecureChannelEstablish
	TagDerivePublicKey
	TagDerivePublicKeyAndSign
	TagFwupStart
	TagFwupTransfer
	TagFwupFinish
	TagMeta
	TagDeviceID
	TagWipeState
	TagFuel
	TagCoredumpGet
	TagEventsGet
	TagFeatureFlagsGet
	TagFeatureFlagsSet
	TagTelemetryIDGet
	TagSecinfoGet
	TagCertGet
	TagPubkeysGet
	TagPubkeyGet
	TagFingerprintSettingsGet
	TagCapTouchCal
	TagEmpty
	TagDeviceInfo
	TagLockDevice
)

// tagNames backs Tag.String for log messages; not exhaustive wire
// behavior, just readability.
var tagNames = map[Tag]string{
	TagStartFingerprintEnrollment:      "start_fingerprint_enrollment",
	TagGetFingerprintEnrollmentStatus:  "get_fingerprint_enrollment_status",
	TagQueryAuthentication:             "query_authentication",
	TagSendUnlockSecret:                "send_unlock_secret",
	TagProvisionUnlockSecret:           "provision_unlock_secret",
	TagConfigureUnlockLimitResponse:    "configure_unlock_limit_response",
	TagDeriveKeyDescriptor:             "derive_key_descriptor",
	TagDeriveKeyDescriptorAndSign:      "derive_key_descriptor_and_sign",
	TagSealCSEK:                        "seal_csek",
	TagUnsealCSEK:                      "unseal_csek",
	TagHardwareAttestation:             "hardware_attestation",
	TagSecureChannelEstablish:          "secure_channel_establish",
	TagDerivePublicKey:                 "derive_public_key",
	TagDerivePublicKeyAndSign:          "derive_public_key_and_sign",
	TagFwupStart:                       "fwup_start",
	TagFwupTransfer:                    "fwup_transfer",
	TagFwupFinish:                      "fwup_finish",
	TagMeta:                            "meta",
	TagDeviceID:                        "device_id",
	TagWipeState:                       "wipe_state",
	TagFuel:                            "fuel",
	TagCoredumpGet:                     "coredump_get",
	TagEventsGet:                       "events_get",
	TagFeatureFlagsGet:                 "feature_flags_get",
	TagFeatureFlagsSet:                 "feature_flags_set",
	TagTelemetryIDGet:                  "telemetry_id_get",
	TagSecinfoGet:                      "secinfo_get",
	TagCertGet:                         "cert_get",
	TagPubkeysGet:                      "pubkeys_get",
	TagPubkeyGet:                       "pubkey_get",
	TagFingerprintSettingsGet:          "fingerprint_settings_get",
	TagCapTouchCal:                     "cap_touch_cal",
	TagEmpty:                           "empty",
	TagDeviceInfo:                      "device_info",
	TagLockDevice:                      "lock_device",
}

func (t Tag) String() string {
	if name, ok := tagNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Tag(%d)", uint16(t))
}

// headerSize is the fixed-width prefix: a 2-byte tag and a 4-byte
// payload length, both big-endian.
const headerSize = 2 + 4

var (
	// ErrShortFrame is returned when a frame is too small to contain
	// a header, or its declared length exceeds the bytes available.
	ErrShortFrame = errors.New("wireproto: frame too short")
	// ErrUnknownTag is returned by a Dispatcher when no handler is
	// registered for a frame's tag.
	ErrUnknownTag = errors.New("wireproto: no handler registered for tag")
)

// Encode marshals payload as CBOR and frames it behind tag and a
// length prefix. payload may be nil (TagEmpty and similar
// no-payload commands).
func Encode(tag Tag, payload interface{}) ([]byte, error) {
	var body []byte
	if payload != nil {
		var err error
		body, err = cbor.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("wireproto: encode %v: %w", tag, err)
		}
	}
	frame := make([]byte, headerSize+len(body))
	binary.BigEndian.PutUint16(frame[0:2], uint16(tag))
	binary.BigEndian.PutUint32(frame[2:6], uint32(len(body)))
	copy(frame[headerSize:], body)
	return frame, nil
}

// Decode splits frame into its tag and raw CBOR payload bytes,
// without unmarshaling the payload — callers use DecodePayload once
// they know which concrete type the tag implies.
func Decode(frame []byte) (Tag, []byte, error) {
	if len(frame) < headerSize {
		return 0, nil, ErrShortFrame
	}
	tag := Tag(binary.BigEndian.Uint16(frame[0:2]))
	length := binary.BigEndian.Uint32(frame[2:6])
	if uint32(len(frame)-headerSize) < length {
		return 0, nil, ErrShortFrame
	}
	return tag, frame[headerSize : headerSize+int(length)], nil
}

// DecodePayload unmarshals a payload previously split out by Decode
// into out, which must be a pointer.
func DecodePayload(payload []byte, out interface{}) error {
	if len(payload) == 0 {
		return nil
	}
	return cbor.Unmarshal(payload, out)
}
