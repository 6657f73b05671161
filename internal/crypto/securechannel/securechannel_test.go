package securechannel

import (
	"bytes"
	"crypto/ed25519"
	"testing"
)

func TestHandshakeAndSessionRoundTrip(t *testing.T) {
	attestPub, attestPriv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}

	initiator, err := GenerateEphemeral()
	if err != nil {
		t.Fatal(err)
	}

	reply, pending, err := Respond(initiator.Public, attestPriv)
	if err != nil {
		t.Fatal(err)
	}

	initiatorSession, confirmTag, err := EstablishAsInitiator(initiator, reply, attestPub)
	if err != nil {
		t.Fatalf("EstablishAsInitiator: %v", err)
	}

	responderSession, err := pending.ConfirmAsResponder(confirmTag)
	if err != nil {
		t.Fatalf("ConfirmAsResponder: %v", err)
	}

	plaintext := []byte("derive_key_descriptor response payload")
	ct, counter, err := initiatorSession.Seal(plaintext, nil)
	if err != nil {
		t.Fatal(err)
	}
	if counter != 0 {
		t.Fatalf("expected first counter 0, got %d", counter)
	}
	pt, err := responderSession.Open(ct, counter, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(pt, plaintext) {
		t.Fatalf("plaintext mismatch: got %q", pt)
	}

	// Second frame must use a fresh counter; an attempted replay of
	// counter 0 must be rejected (P6).
	ct2, counter2, _ := initiatorSession.Seal([]byte("second"), nil)
	if counter2 != 1 {
		t.Fatalf("expected second counter 1, got %d", counter2)
	}
	if _, err := responderSession.Open(ct2, 0, nil); err == nil {
		t.Fatal("expected replay of counter 0 to be rejected")
	}
	if _, err := responderSession.Open(ct2, counter2, nil); err != nil {
		t.Fatalf("Open of fresh counter failed: %v", err)
	}
}

func TestBadConfirmationTagRejected(t *testing.T) {
	_, attestPriv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	initiator, err := GenerateEphemeral()
	if err != nil {
		t.Fatal(err)
	}
	reply, pending, err := Respond(initiator.Public, attestPriv)
	if err != nil {
		t.Fatal(err)
	}
	var wrongTag [16]byte
	copy(wrongTag[:], reply.KeyConfirmationTag[:])
	wrongTag[0] ^= 0xff
	if _, err := pending.ConfirmAsResponder(wrongTag); err != ErrBadConfirmationTag {
		t.Fatalf("expected ErrBadConfirmationTag, got %v", err)
	}
}

func TestBadSignatureRejected(t *testing.T) {
	otherPub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	_, attestPriv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	initiator, err := GenerateEphemeral()
	if err != nil {
		t.Fatal(err)
	}
	reply, _, err := Respond(initiator.Public, attestPriv)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := EstablishAsInitiator(initiator, reply, otherPub); err != ErrBadSignature {
		t.Fatalf("expected ErrBadSignature, got %v", err)
	}
}
