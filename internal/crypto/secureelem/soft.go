package secureelem

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"io"
	"sync"
)

// Software is an in-process stand-in for the discrete secure element:
// AES-GCM seed wrap/unwrap under a process-local storage key, ed25519
// attestation signing. Real secure-element internals (key-wrapping
// hardware, OTP, tamper mesh) are out of scope per this package's own
// doc comment; Software is the whole answer to that boundary for any
// build that hasn't been handed real secure-element silicon, whether
// that's a headless simulator or a first hardware bring-up.
type Software struct {
	mu         sync.Mutex
	storageKey [32]byte
	attestKey  ed25519.PrivateKey
	attestPub  ed25519.PublicKey
}

// NewSoftware generates a fresh process-local storage key and
// attestation keypair.
func NewSoftware() (*Software, error) {
	e := &Software{}
	if _, err := io.ReadFull(rand.Reader, e.storageKey[:]); err != nil {
		return nil, err
	}
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	e.attestKey, e.attestPub = priv, pub
	return e, nil
}

func (e *Software) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(e.storageKey[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (e *Software) Seal(seed []byte) (WrappedSeed, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	aead, err := e.aead()
	if err != nil {
		return WrappedSeed{}, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return WrappedSeed{}, err
	}
	sealed := aead.Seal(nil, nonce, seed, nil)
	ct := sealed[:len(sealed)-aead.Overhead()]
	tag := sealed[len(sealed)-aead.Overhead():]
	return WrappedSeed{Ciphertext: ct, Nonce: nonce, Tag: tag}, nil
}

func (e *Software) Unseal(w WrappedSeed) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	aead, err := e.aead()
	if err != nil {
		return nil, err
	}
	sealed := append(append([]byte(nil), w.Ciphertext...), w.Tag...)
	return aead.Open(nil, w.Nonce, sealed, nil)
}

func (e *Software) AttestationPublicKey() ed25519.PublicKey { return e.attestPub }

// AttestKey exposes the attestation private key so a key manager can
// reuse it directly for the secure-channel handshake transcript
// signature. Real secure-element silicon would never export this; a
// software element sits entirely on the near side of that boundary.
func (e *Software) AttestKey() ed25519.PrivateKey { return e.attestKey }

func (e *Software) Attest(message []byte) ([]byte, error) {
	return ed25519.Sign(e.attestKey, message), nil
}
