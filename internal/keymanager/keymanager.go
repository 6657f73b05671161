// Package keymanager implements the key manager task: BIP32 derive
// and derive-and-sign, CSEK seal/unseal, hardware attestation, secure
// channel establishment, and HKDF-based subkey derive/sign for P-256
// and Ed25519. Ported from key_manager_task.c.
package keymanager

import (
	"crypto/aes"
	"crypto/cipher"
	stded25519 "crypto/ed25519"
	goecdsa "crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"
	"math/big"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"golang.org/x/crypto/hkdf"

	"github.com/signetco/corefw/bip32"
	"github.com/signetco/corefw/internal/crypto/securechannel"
	"github.com/signetco/corefw/internal/crypto/secureelem"
)

// BIP32MaxDerivationDepth bounds incoming derivation paths (spec.md
// §4.4); a path longer than this is rejected before any derivation
// work begins.
const BIP32MaxDerivationDepth = 8

// CSEKLength is the size in bytes of a client storage-encryption key.
const CSEKLength = 32

var (
	ErrNoDerivationPath = errors.New("keymanager: no derivation path provided")
	ErrPathTooLong      = errors.New("keymanager: derivation path exceeds max depth")
	ErrDerivationFailed = errors.New("keymanager: bip32 derivation failed")
	ErrBadHashLength    = errors.New("keymanager: hash must be 32 bytes")
	ErrBadCSEKLength    = errors.New("keymanager: csek must be 32 bytes")
	ErrSealFailed       = errors.New("keymanager: csek seal failed")
	ErrUnsealFailed     = errors.New("keymanager: csek unseal failed")
	ErrUnknownCurve     = errors.New("keymanager: unsupported curve")
	ErrNotAuthenticated = errors.New("keymanager: fingerprint authentication required")
	ErrSigningFailed    = errors.New("keymanager: signing failed")
)

// Curve selects the subkey algorithm for derive_public_key.
type Curve int

const (
	CurveP256 Curve = iota
	CurveEd25519
)

// Authenticator gates the commands spec.md marks Authenticated.
type Authenticator interface {
	IsAuthenticated() bool
}

// Descriptor is the derive_key_descriptor response.
type Descriptor struct {
	BareXPub          string
	OriginPath        bip32.Path
	OriginFingerprint uint32
}

// SealedCSEK is the seal_csek response payload.
type SealedCSEK struct {
	Ciphertext []byte
	Nonce      []byte
	Tag        []byte
}

// Manager implements every synchronous key manager command. The
// master key and wrapping key live behind the secure element contract
// so no raw seed bytes are held here longer than one call.
type Manager struct {
	elem      secureelem.Element
	attestKey stded25519.PrivateKey // used only for the secure-channel signed transcript
	auth      Authenticator
	master    func() (*hdkeychain.ExtendedKey, error)
	wrapKey   [32]byte // CSEK wrapping key; in production this lives in the secure element
}

// New constructs a Manager. master lazily unseals and returns the
// BIP32 master extended private key (e.g. via elem.Unseal of the
// stored seed blob); it is invoked fresh for every derivation so the
// decrypted key never outlives a single call's stack frame longer
// than necessary. attestKey signs the secure-channel handshake
// transcript; it is distinct from elem.Attest's opaque signer because
// the handshake needs to reuse the same key across two message legs.
func New(elem secureelem.Element, attestKey stded25519.PrivateKey, auth Authenticator, master func() (*hdkeychain.ExtendedKey, error), wrapKey [32]byte) *Manager {
	return &Manager{elem: elem, attestKey: attestKey, auth: auth, master: master, wrapKey: wrapKey}
}

func (m *Manager) deriveMaster(path bip32.Path) (*hdkeychain.ExtendedKey, error) {
	if len(path) > BIP32MaxDerivationDepth {
		return nil, ErrPathTooLong
	}
	master, err := m.master()
	if err != nil {
		return nil, err
	}
	key := master
	for _, idx := range path {
		key, err = key.Derive(idx)
		if err != nil {
			return nil, ErrDerivationFailed
		}
	}
	return key, nil
}

// DeriveKeyDescriptor is the derive_key_descriptor command: BIP32
// derivation to a public xpub. It never returns private material.
func (m *Manager) DeriveKeyDescriptor(path bip32.Path) (Descriptor, error) {
	if len(path) > BIP32MaxDerivationDepth {
		return Descriptor{}, ErrPathTooLong
	}
	master, err := m.master()
	if err != nil {
		return Descriptor{}, err
	}
	desc, err := bip32.DeriveKeyDescriptor(master, path)
	if err != nil {
		return Descriptor{}, ErrDerivationFailed
	}
	return Descriptor{
		BareXPub:          desc.XPub,
		OriginPath:        desc.Path,
		OriginFingerprint: desc.MasterFingerprint,
	}, nil
}

// DeriveKeyDescriptorAndSign runs BIP32 derivation synchronously and
// signs hash (a 32-byte digest) with the derived key, returning a
// 64-byte compact ECDSA signature. Authenticated command: requires a
// current fingerprint match.
func (m *Manager) DeriveKeyDescriptorAndSign(path bip32.Path, hash [32]byte) ([]byte, error) {
	if m.auth != nil && !m.auth.IsAuthenticated() {
		return nil, ErrNotAuthenticated
	}
	key, err := m.deriveMaster(path)
	if err != nil {
		return nil, err
	}
	priv, err := key.ECPrivKey()
	if err != nil {
		return nil, ErrDerivationFailed
	}
	sig, err := ecdsaSignCompact(priv.ToECDSA(), hash[:])
	if err != nil {
		return nil, ErrSigningFailed
	}
	return sig, nil
}

func ecdsaSignCompact(priv *goecdsa.PrivateKey, hash []byte) ([]byte, error) {
	r, s, err := goecdsa.Sign(rand.Reader, priv, hash)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 64)
	rB, sB := r.Bytes(), s.Bytes()
	copy(out[32-len(rB):32], rB)
	copy(out[64-len(sB):64], sB)
	return out, nil
}

// SealCSEK wraps a 32-byte client storage-encryption key under the
// device wrapping key with AES-GCM.
func (m *Manager) SealCSEK(csek []byte) (SealedCSEK, error) {
	if len(csek) != CSEKLength {
		return SealedCSEK{}, ErrBadCSEKLength
	}
	aead, err := m.wrapAEAD()
	if err != nil {
		return SealedCSEK{}, ErrSealFailed
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return SealedCSEK{}, ErrSealFailed
	}
	sealed := aead.Seal(nil, nonce, csek, nil)
	ct := sealed[:len(sealed)-aead.Overhead()]
	tag := sealed[len(sealed)-aead.Overhead():]
	return SealedCSEK{Ciphertext: ct, Nonce: nonce, Tag: tag}, nil
}

// UnsealCSEK reverses SealCSEK.
func (m *Manager) UnsealCSEK(s SealedCSEK) ([]byte, error) {
	aead, err := m.wrapAEAD()
	if err != nil {
		return nil, ErrUnsealFailed
	}
	sealed := append(append([]byte(nil), s.Ciphertext...), s.Tag...)
	plain, err := aead.Open(nil, s.Nonce, sealed, nil)
	if err != nil {
		return nil, ErrUnsealFailed
	}
	return plain, nil
}

func (m *Manager) wrapAEAD() (cipher.AEAD, error) {
	block, err := aes.NewCipher(m.wrapKey[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// HardwareAttestation signs nonce with the factory-provisioned
// attestation key. Unauthenticated: a host can always verify it is
// talking to genuine hardware, even before fingerprint enrollment.
func (m *Manager) HardwareAttestation(nonce []byte) ([]byte, error) {
	return m.elem.Attest(nonce)
}

// PendingSecureChannel is the confirmation half of a secure channel
// handshake in progress; ConfirmAsResponder completes it once the
// host's confirmation tag arrives over the same transport.
type PendingSecureChannel struct {
	confirm func(tag [16]byte) (*securechannel.Session, error)
}

// ConfirmAsResponder checks the host's confirmation tag and derives
// the confirmed session.
func (p PendingSecureChannel) ConfirmAsResponder(tag [16]byte) (*securechannel.Session, error) {
	return p.confirm(tag)
}

// SecureChannelEstablish runs the responder side of the X25519
// handshake and returns the reply fields plus the pending half of the
// session, completed by the caller once the host's confirmation tag
// arrives.
func (m *Manager) SecureChannelEstablish(pkHost [32]byte) (securechannel.HandshakeReply, PendingSecureChannel, error) {
	reply, pending, err := securechannel.Respond(pkHost, m.attestKey)
	if err != nil {
		return securechannel.HandshakeReply{}, PendingSecureChannel{}, err
	}
	return reply, PendingSecureChannel{confirm: pending.ConfirmAsResponder}, nil
}

// DerivePublicKey runs HKDF-based subkey derivation for curve, keyed
// by label, returning the public key bytes.
func (m *Manager) DerivePublicKey(curve Curve, label []byte) ([]byte, error) {
	_, pub, err := m.deriveHKDFKeyPair(curve, label)
	if err != nil {
		return nil, err
	}
	return pub, nil
}

// DerivePublicKeyAndSign derives as DerivePublicKey then signs hash32.
func (m *Manager) DerivePublicKeyAndSign(curve Curve, label []byte, hash [32]byte) (pubkey, signature []byte, err error) {
	priv, pub, err := m.deriveHKDFKeyPair(curve, label)
	if err != nil {
		return nil, nil, err
	}
	switch curve {
	case CurveEd25519:
		sig := stded25519.Sign(stded25519.PrivateKey(priv), hash[:])
		return pub, sig, nil
	case CurveP256:
		ecPriv := &goecdsa.PrivateKey{
			PublicKey: goecdsa.PublicKey{Curve: elliptic.P256()},
			D:         new(big.Int).SetBytes(priv),
		}
		ecPriv.PublicKey.X, ecPriv.PublicKey.Y = elliptic.P256().ScalarBaseMult(priv)
		sig, serr := ecdsaSignCompact(ecPriv, hash[:])
		if serr != nil {
			return nil, nil, ErrSigningFailed
		}
		return pub, sig, nil
	default:
		return nil, nil, ErrUnknownCurve
	}
}

func (m *Manager) deriveHKDFKeyPair(curve Curve, label []byte) (priv, pub []byte, err error) {
	r := hkdf.New(sha256.New, m.wrapKey[:], nil, label)
	switch curve {
	case CurveEd25519:
		seed := make([]byte, stded25519.SeedSize)
		if _, err = io.ReadFull(r, seed); err != nil {
			return nil, nil, ErrDerivationFailed
		}
		key := stded25519.NewKeyFromSeed(seed)
		return key, key.Public().(stded25519.PublicKey), nil
	case CurveP256:
		scalar := make([]byte, 32)
		if _, err = io.ReadFull(r, scalar); err != nil {
			return nil, nil, ErrDerivationFailed
		}
		curveP := elliptic.P256()
		x, y := curveP.ScalarBaseMult(scalar)
		pub = elliptic.Marshal(curveP, x, y)
		return scalar, pub, nil
	default:
		return nil, nil, ErrUnknownCurve
	}
}
