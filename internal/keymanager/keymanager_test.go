package keymanager

import (
	"bytes"
	"crypto/ed25519"
	"testing"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"

	"github.com/signetco/corefw/bip32"
	"github.com/signetco/corefw/internal/crypto/secureelem"
	"github.com/signetco/corefw/internal/crypto/securechannel"
)

type fakeElement struct {
	attestPub  ed25519.PublicKey
	attestPriv ed25519.PrivateKey
}

func newFakeElement() *fakeElement {
	pub, priv, _ := ed25519.GenerateKey(nil)
	return &fakeElement{attestPub: pub, attestPriv: priv}
}

func (f *fakeElement) Seal(seed []byte) (secureelem.WrappedSeed, error) {
	return secureelem.WrappedSeed{}, nil
}
func (f *fakeElement) Unseal(w secureelem.WrappedSeed) ([]byte, error) { return nil, nil }
func (f *fakeElement) AttestationPublicKey() ed25519.PublicKey        { return f.attestPub }
func (f *fakeElement) Attest(message []byte) ([]byte, error) {
	return ed25519.Sign(f.attestPriv, message), nil
}

type fixedAuth struct{ ok bool }

func (f fixedAuth) IsAuthenticated() bool { return f.ok }

func testMaster(t *testing.T) func() (*hdkeychain.ExtendedKey, error) {
	t.Helper()
	seed := bytes.Repeat([]byte{0x42}, 32)
	mk, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		t.Fatal(err)
	}
	return func() (*hdkeychain.ExtendedKey, error) { return mk, nil }
}

func TestDeriveKeyDescriptor(t *testing.T) {
	elem := newFakeElement()
	var wrapKey [32]byte
	mgr := New(elem, elem.attestPriv, fixedAuth{ok: true}, testMaster(t), wrapKey)

	path, err := bip32.ParsePath("m/84h/0h/0h")
	if err != nil {
		t.Fatal(err)
	}
	desc, err := mgr.DeriveKeyDescriptor(path)
	if err != nil {
		t.Fatalf("DeriveKeyDescriptor: %v", err)
	}
	if desc.BareXPub == "" {
		t.Fatal("expected non-empty xpub")
	}
	if len(desc.OriginPath) != 3 {
		t.Fatalf("expected 3-element origin path, got %v", desc.OriginPath)
	}
}

func TestDeriveKeyDescriptorAndSignRequiresAuth(t *testing.T) {
	elem := newFakeElement()
	var wrapKey [32]byte
	mgr := New(elem, elem.attestPriv, fixedAuth{ok: false}, testMaster(t), wrapKey)

	path, _ := bip32.ParsePath("m/84h/0h/0h/0/0")
	var hash [32]byte
	if _, err := mgr.DeriveKeyDescriptorAndSign(path, hash); err != ErrNotAuthenticated {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
}

func TestDeriveKeyDescriptorAndSign(t *testing.T) {
	elem := newFakeElement()
	var wrapKey [32]byte
	mgr := New(elem, elem.attestPriv, fixedAuth{ok: true}, testMaster(t), wrapKey)

	path, _ := bip32.ParsePath("m/84h/0h/0h/0/0")
	var hash [32]byte
	copy(hash[:], bytes.Repeat([]byte{0x07}, 32))
	sig, err := mgr.DeriveKeyDescriptorAndSign(path, hash)
	if err != nil {
		t.Fatalf("DeriveKeyDescriptorAndSign: %v", err)
	}
	if len(sig) != 64 {
		t.Fatalf("expected 64-byte signature, got %d", len(sig))
	}
}

func TestPathTooLongRejected(t *testing.T) {
	elem := newFakeElement()
	var wrapKey [32]byte
	mgr := New(elem, elem.attestPriv, fixedAuth{ok: true}, testMaster(t), wrapKey)

	long := make([]uint32, BIP32MaxDerivationDepth+1)
	if _, err := mgr.DeriveKeyDescriptor(long); err != ErrPathTooLong {
		t.Fatalf("expected ErrPathTooLong, got %v", err)
	}
}

// Scenario 6: secure channel establish + seal/unseal round-trip.
func TestSecureChannelAndCSEKRoundTrip(t *testing.T) {
	elem := newFakeElement()
	var wrapKey [32]byte
	copy(wrapKey[:], bytes.Repeat([]byte{0x11}, 32))
	mgr := New(elem, elem.attestPriv, fixedAuth{ok: true}, testMaster(t), wrapKey)

	hostKP, err := securechannel.GenerateEphemeral()
	if err != nil {
		t.Fatal(err)
	}
	reply, pending, err := mgr.SecureChannelEstablish(hostKP.Public)
	if err != nil {
		t.Fatalf("SecureChannelEstablish: %v", err)
	}

	hostSession, confirmTag, err := securechannel.EstablishAsInitiator(hostKP, reply, elem.AttestationPublicKey())
	if err != nil {
		t.Fatalf("EstablishAsInitiator: %v", err)
	}
	deviceSession, err := pending.ConfirmAsResponder(confirmTag)
	if err != nil {
		t.Fatalf("ConfirmAsResponder: %v", err)
	}
	_ = hostSession
	_ = deviceSession

	csek := bytes.Repeat([]byte{0xAA}, CSEKLength)
	sealed, err := mgr.SealCSEK(csek)
	if err != nil {
		t.Fatalf("SealCSEK: %v", err)
	}
	if len(sealed.Nonce) == 0 || len(sealed.Tag) == 0 {
		t.Fatal("expected non-empty nonce and tag")
	}

	unsealed, err := mgr.UnsealCSEK(sealed)
	if err != nil {
		t.Fatalf("UnsealCSEK: %v", err)
	}
	if !bytes.Equal(unsealed, csek) {
		t.Fatalf("unsealed CSEK mismatch: got %x want %x", unsealed, csek)
	}

	sealedAgain, err := mgr.SealCSEK(csek)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(sealed.Nonce, sealedAgain.Nonce) {
		t.Fatal("expected distinct nonce across two seals")
	}
	if bytes.Equal(sealed.Tag, sealedAgain.Tag) {
		t.Fatal("expected distinct auth tag across two seals")
	}
}

func TestHardwareAttestation(t *testing.T) {
	elem := newFakeElement()
	var wrapKey [32]byte
	mgr := New(elem, elem.attestPriv, fixedAuth{ok: true}, testMaster(t), wrapKey)

	nonce := []byte("challenge-nonce")
	sig, err := mgr.HardwareAttestation(nonce)
	if err != nil {
		t.Fatal(err)
	}
	if !ed25519.Verify(elem.AttestationPublicKey(), nonce, sig) {
		t.Fatal("attestation signature does not verify")
	}
}

func TestDerivePublicKeyBothCurves(t *testing.T) {
	elem := newFakeElement()
	var wrapKey [32]byte
	copy(wrapKey[:], bytes.Repeat([]byte{0x22}, 32))
	mgr := New(elem, elem.attestPriv, fixedAuth{ok: true}, testMaster(t), wrapKey)

	var hash [32]byte
	copy(hash[:], bytes.Repeat([]byte{0x09}, 32))

	edPub, edSig, err := mgr.DerivePublicKeyAndSign(CurveEd25519, []byte("label-a"), hash)
	if err != nil {
		t.Fatalf("ed25519 derive+sign: %v", err)
	}
	if !ed25519.Verify(ed25519.PublicKey(edPub), hash[:], edSig) {
		t.Fatal("ed25519 signature does not verify")
	}

	p256Pub, p256Sig, err := mgr.DerivePublicKeyAndSign(CurveP256, []byte("label-b"), hash)
	if err != nil {
		t.Fatalf("p256 derive+sign: %v", err)
	}
	if len(p256Pub) == 0 || len(p256Sig) != 64 {
		t.Fatalf("unexpected p256 output shapes: pub=%d sig=%d", len(p256Pub), len(p256Sig))
	}

	pubAgain, err := mgr.DerivePublicKey(CurveEd25519, []byte("label-a"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(pubAgain, edPub) {
		t.Fatal("expected deterministic derivation for the same label")
	}
}

func TestWorkerDeriveAndSign(t *testing.T) {
	elem := newFakeElement()
	var wrapKey [32]byte
	mgr := New(elem, elem.attestPriv, fixedAuth{ok: true}, testMaster(t), wrapKey)
	w := NewWorker(mgr)

	path, _ := bip32.ParsePath("m/84h/0h/0h/0/0")
	var hash [32]byte
	copy(hash[:], bytes.Repeat([]byte{0x03}, 32))

	if !w.Submit(path, hash) {
		t.Fatal("expected Submit to accept job while Waiting")
	}
	if w.Submit(path, hash) {
		t.Fatal("expected second Submit to be rejected while in flight")
	}

	deadline := make(chan struct{})
	go func() {
		for w.Status() == StatusInProgress {
		}
		close(deadline)
	}()
	<-deadline

	if w.Status() != StatusSuccess {
		t.Fatalf("expected StatusSuccess, got %v", w.Status())
	}
	sig, ok := w.GetAndClearSignature(path, hash)
	if !ok {
		t.Fatal("expected signature claim to succeed")
	}
	if len(sig) != 64 {
		t.Fatalf("expected 64-byte signature, got %d", len(sig))
	}
	if w.Status() != StatusWaiting {
		t.Fatal("expected worker to reset to Waiting after claim")
	}
}
