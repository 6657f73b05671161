package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/signetco/corefw/internal/crypto/securechannel"
	"github.com/signetco/corefw/internal/unlock"
	"github.com/signetco/corefw/internal/wireproto"
)

// Command APDU constants for driving the WCA layer directly, mirroring
// wca.go's unexported CLA/INS bytes (package main has no access to
// them, so the test reconstructs the wire values it needs).
const (
	wcaCLA            = 0x87
	wcaInsProto       = 0x75
	wcaInsProtoCont   = 0x77
	wcaInsGetResponse = 0x78
)

func buildProtoAPDU(ins byte, desired int, data []byte) []byte {
	cmd := make([]byte, 5+len(data))
	cmd[0] = wcaCLA
	cmd[1] = ins
	cmd[2] = byte(desired >> 8)
	cmd[3] = byte(desired)
	cmd[4] = byte(len(data))
	copy(cmd[5:], data)
	return cmd
}

func newTestDeviceT(t *testing.T) *Device {
	t.Helper()
	d, err := NewDevice()
	if err != nil {
		t.Fatalf("NewDevice: %v", err)
	}
	return d
}

func dispatch(t *testing.T, d *Device, tag wireproto.Tag, req interface{}) (wireproto.Tag, []byte) {
	t.Helper()
	frame, err := wireproto.Encode(tag, req)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	rspFrame, err := d.Proto.Dispatch(frame)
	if err != nil {
		t.Fatalf("dispatch %v: %v", tag, err)
	}
	rspTag, payload, err := wireproto.Decode(rspFrame)
	if err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return rspTag, payload
}

// Scenario 1: provision + unlock happy path.
func TestScenarioProvisionAndUnlockHappyPath(t *testing.T) {
	d := newTestDeviceT(t)
	secret := bytes.Repeat([]byte{0}, 31)
	secret = append(secret, 0x1F)

	_, _ = dispatch(t, d, wireproto.TagProvisionUnlockSecret, provisionSecretReq{Secret: secret})

	_, payload := dispatch(t, d, wireproto.TagSendUnlockSecret, checkSecretReq{Secret: secret})
	var rsp checkSecretRsp
	if err := wireproto.DecodePayload(payload, &rsp); err != nil {
		t.Fatal(err)
	}
	if rsp.Result != UnlockOK {
		t.Fatalf("expected OK, got %v", rsp.Result)
	}
	if rsp.Counter != 0 {
		t.Fatalf("expected retry counter reset to zero, got %d", rsp.Counter)
	}
	if !d.Auth.IsAuthenticated() {
		t.Fatal("expected authenticated after a correct secret")
	}
}

// Scenario 2: third bad attempt plus delay, then the fourth rejected,
// then a correct retry still waits out the delay.
func TestScenarioThirdBadAttemptThenDelay(t *testing.T) {
	d := newTestDeviceT(t)
	correct := bytes.Repeat([]byte{0}, 32)
	wrong := bytes.Repeat([]byte{0xFF}, 32)

	if err := d.Unlock.ProvisionSecret(correct); err != nil {
		t.Fatal(err)
	}

	var last unlock.Result
	var counter uint32
	for i := 0; i < 3; i++ {
		var err error
		last, _, counter, err = d.Unlock.CheckSecret(wrong)
		if err != nil {
			t.Fatal(err)
		}
	}
	if last != unlock.WrongSecret || counter != 3 {
		t.Fatalf("expected WrongSecret with counter=3 after three bad attempts, got %v/%d", last, counter)
	}

	result, remaining, counter, err := d.Unlock.CheckSecret(wrong)
	if err != nil {
		t.Fatal(err)
	}
	if result != unlock.WrongSecret || counter != 4 {
		t.Fatalf("expected fourth attempt WrongSecret with counter=4, got %v/%d", result, counter)
	}
	if remaining <= 0 || remaining > 10*time.Second {
		t.Fatalf("expected a ~10s delay, got %v", remaining)
	}

	result, _, counter, err = d.Unlock.CheckSecret(correct)
	if err != nil {
		t.Fatal(err)
	}
	if result != unlock.WaitingOnDelay || counter != 4 {
		t.Fatalf("expected WaitingOnDelay with counter=4 on an immediate correct retry, got %v/%d", result, counter)
	}
	if d.Auth.IsAuthenticated() {
		t.Fatal("expected authentication to remain false while the delay is outstanding")
	}
}

// Scenario 3: fingerprint enroll then the next finger-down
// authenticates.
func TestScenarioEnrollThenIdentifyAuthenticates(t *testing.T) {
	d := newTestDeviceT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Matcher.Run(ctx)

	_, _ = dispatch(t, d, wireproto.TagStartFingerprintEnrollment, nil)

	for i := 0; i < fingerprintSamplesNeeded; i++ {
		d.Bio.PressFinger()
		time.Sleep(20 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)

	_, payload := dispatch(t, d, wireproto.TagGetFingerprintEnrollmentStatus, nil)
	var status enrollmentStatusRsp
	if err := wireproto.DecodePayload(payload, &status); err != nil {
		t.Fatal(err)
	}
	if status.Status != WireEnrollmentComplete {
		t.Fatalf("expected enrollment complete, got %v (pass=%d fail=%d)", status.Status, status.Pass, status.Fail)
	}
	if status.Pass < fingerprintSamplesNeeded {
		t.Fatalf("expected pass count >= %d, got %d", fingerprintSamplesNeeded, status.Pass)
	}

	d.Auth.SetAuthenticated(false)
	d.Bio.PressFinger()
	time.Sleep(50 * time.Millisecond)

	if !d.Auth.IsAuthenticated() {
		t.Fatal("expected the next finger-down to authenticate once enrolled")
	}
}

// Scenario 4: chunked proto over NFC, reassembled and routed through
// the wca.Handler into the key manager.
func TestScenarioChunkedProtoOverNFC(t *testing.T) {
	d := newTestDeviceT(t)

	req := derivePathReq{Path: []uint32{84 | 0x80000000, 0 | 0x80000000, 0 | 0x80000000}}
	frame, err := wireproto.Encode(wireproto.TagDeriveKeyDescriptor, req)
	if err != nil {
		t.Fatal(err)
	}
	const desired = 300
	padded := make([]byte, desired)
	copy(padded, frame)

	firstAPDU := buildProtoAPDU(wcaInsProto, desired, padded[:200])
	body, sw := d.WCA.Handle(firstAPDU)
	if sw != 0x9000 || len(body) != 0 {
		t.Fatalf("expected empty 9000 after the first chunk, got body=%v sw=%04x", body, sw)
	}

	contAPDU := buildProtoAPDU(wcaInsProtoCont, 0, padded[200:300])
	body, sw = d.WCA.Handle(contAPDU)
	if sw&0xFF00 != 0x9000 && sw&0xFF00 != 0x6100 {
		t.Fatalf("unexpected status word after final chunk: %04x", sw)
	}

	var out []byte
	out = append(out, body...)
	for sw&0xFF00 == 0x6100 {
		getRspAPDU := buildProtoAPDU(wcaInsGetResponse, 0, nil)
		body, sw = d.WCA.Handle(getRspAPDU)
		out = append(out, body...)
	}
	if sw != 0x9000 {
		t.Fatalf("expected the exchange to end 9000, got %04x", sw)
	}

	_, payload, err := wireproto.Decode(out)
	if err != nil {
		t.Fatalf("decode reassembled response: %v", err)
	}

	var rsp deriveDescriptorRsp
	if err := wireproto.DecodePayload(payload, &rsp); err != nil {
		t.Fatal(err)
	}
	if rsp.XPub == "" {
		t.Fatal("expected a non-empty xpub in the derive_key_descriptor response")
	}
}

// Scenario 5: firmware update normal mode end to end.
func TestScenarioFirmwareUpdateNormalMode(t *testing.T) {
	d := newTestDeviceT(t)
	const imageSize = 5000

	_, payload := dispatch(t, d, wireproto.TagFwupStart, fwupStartReq{Mode: 0, Size: imageSize})
	var startRsp fwupStartRsp
	if err := wireproto.DecodePayload(payload, &startRsp); err != nil {
		t.Fatal(err)
	}
	if startRsp.Status != 0 {
		t.Fatalf("expected fwup_start success, got %v", startRsp.Status)
	}

	chunkSize := startRsp.MaxChunkSize
	var seq uint32
	for offset := uint32(0); offset < imageSize; offset += chunkSize {
		n := chunkSize
		if offset+n > imageSize {
			n = imageSize - offset
		}
		_, payload := dispatch(t, d, wireproto.TagFwupTransfer, fwupTransferReq{
			SequenceID: seq,
			Offset:     offset,
			Data:       make([]byte, n),
		})
		var transferRsp fwupTransferRsp
		if err := wireproto.DecodePayload(payload, &transferRsp); err != nil {
			t.Fatal(err)
		}
		if transferRsp.Status != 0 {
			t.Fatalf("transfer at offset %d failed: %v", offset, transferRsp.Status)
		}
		seq++
	}

	_, payload = dispatch(t, d, wireproto.TagFwupFinish, fwupFinishReq{Mode: 0})
	var finishRsp fwupFinishRsp
	if err := wireproto.DecodePayload(payload, &finishRsp); err != nil {
		t.Fatal(err)
	}
	if finishRsp.Status != 0 {
		t.Fatalf("expected fwup_finish success, got %v", finishRsp.Status)
	}
}

// Scenario 6: secure channel establish, then seal/unseal round trip.
func TestScenarioSecureChannelEstablishAndSealUnseal(t *testing.T) {
	d := newTestDeviceT(t)

	hostKP, err := securechannel.GenerateEphemeral()
	if err != nil {
		t.Fatal(err)
	}

	_, payload := dispatch(t, d, wireproto.TagSecureChannelEstablish, secureChannelEstablishReq{PKHost: hostKP.Public})
	var establishRsp secureChannelEstablishRsp
	if err := wireproto.DecodePayload(payload, &establishRsp); err != nil {
		t.Fatal(err)
	}

	reply := securechannel.HandshakeReply{
		DevicePublic:       establishRsp.PKDevice,
		ExchangeSignature:  establishRsp.ExchangeSignature,
		KeyConfirmationTag: establishRsp.KeyConfirmationTag,
	}
	_, _, err = securechannel.EstablishAsInitiator(hostKP, reply, d.Elem.AttestationPublicKey())
	if err != nil {
		t.Fatalf("host-side handshake verification failed: %v", err)
	}

	var csek [32]byte
	for i := range csek {
		csek[i] = 0xAA
	}
	_, payload = dispatch(t, d, wireproto.TagSealCSEK, sealCSEKReq{CSEK: csek})
	var sealed sealedCSEKWire
	if err := wireproto.DecodePayload(payload, &sealed); err != nil {
		t.Fatal(err)
	}

	_, payload = dispatch(t, d, wireproto.TagUnsealCSEK, unsealCSEKReq{Sealed: sealed})
	var unsealed unsealCSEKRsp
	if err := wireproto.DecodePayload(payload, &unsealed); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(unsealed.CSEK, csek[:]) {
		t.Fatal("expected the unsealed CSEK to equal the original plaintext")
	}
}
