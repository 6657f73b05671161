// Package secureelem declares the narrow contract into the discrete
// secure element that actually holds the seed and the device
// attestation key. Generating, wrapping, and unwrapping key material
// in hardware is out of scope (spec.md Non-goals); this package only
// fixes the shape the key manager calls through, so a simulator build
// can stand in for real hardware.
package secureelem

import "crypto/ed25519"

// WrappedSeed is a seed encrypted under the secure element's storage
// key (the "CSEK" of spec.md §4.4's seal_csek/unseal_csek commands).
type WrappedSeed struct {
	Ciphertext []byte
	Nonce      []byte
	Tag        []byte
}

// Element is the secure element boundary: seed sealing/unsealing and
// device attestation. Implementations never expose raw seed bytes
// outside of Unseal's returned slice, which callers must zero after
// use.
type Element interface {
	// Seal wraps a raw seed under the element's storage key.
	Seal(seed []byte) (WrappedSeed, error)
	// Unseal recovers a raw seed from a previously sealed blob.
	Unseal(w WrappedSeed) (seed []byte, err error)
	// AttestationPublicKey returns the device's long-lived ed25519
	// attestation public key, used to verify hardware_attestation
	// responses and secure-channel handshake signatures.
	AttestationPublicKey() ed25519.PublicKey
	// Attest signs message with the device attestation private key.
	// The private key itself never leaves the element.
	Attest(message []byte) (signature []byte, err error)
}
