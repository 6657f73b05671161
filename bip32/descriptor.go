package bip32

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// KeyDescriptor is the derive_key_descriptor response shape: the
// derivation path taken from the master, the master's fingerprint (so
// a host can recognize which seed produced this xpub without ever
// seeing the seed), and the derived xpub itself.
type KeyDescriptor struct {
	Path            Path
	MasterFingerprint uint32
	XPub            string
}

// DeriveKeyDescriptor derives xpub at path below master and returns
// the descriptor a host needs to reconstruct the account: path,
// master fingerprint, and base58-encoded extended public key.
func DeriveKeyDescriptor(master *hdkeychain.ExtendedKey, path Path) (KeyDescriptor, error) {
	masterPub, err := master.Neuter()
	if err != nil {
		return KeyDescriptor{}, fmt.Errorf("bip32: neuter master: %w", err)
	}
	masterECPub, err := masterPub.ECPubKey()
	if err != nil {
		return KeyDescriptor{}, fmt.Errorf("bip32: master pubkey: %w", err)
	}
	xpub, err := Derive(master, path)
	if err != nil {
		return KeyDescriptor{}, fmt.Errorf("bip32: derive: %w", err)
	}
	return KeyDescriptor{
		Path:              path,
		MasterFingerprint: Fingerprint(masterECPub),
		XPub:              xpub.String(),
	}, nil
}

// DerivedPublicKey returns the raw secp256k1 public key at path below
// master, for derive_public_key / derive_public_key_and_sign commands
// that operate on compressed keys rather than extended ones.
func DerivedPublicKey(master *hdkeychain.ExtendedKey, path Path) (*secp256k1.PublicKey, error) {
	key := master
	var err error
	for _, p := range path {
		key, err = key.Derive(p)
		if err != nil {
			return nil, fmt.Errorf("bip32: derive: %w", err)
		}
	}
	return key.ECPubKey()
}

// DerivedPrivateKey returns the raw secp256k1 private key at path
// below master, for the derive_key_descriptor_and_sign and
// derive_public_key_and_sign commands.
func DerivedPrivateKey(master *hdkeychain.ExtendedKey, path Path) (*secp256k1.PrivateKey, error) {
	key := master
	var err error
	for _, p := range path {
		key, err = key.Derive(p)
		if err != nil {
			return nil, fmt.Errorf("bip32: derive: %w", err)
		}
	}
	return key.ECPrivKey()
}
