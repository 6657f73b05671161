package main

import (
	"crypto/rand"
	"io"

	"github.com/fxamacker/cbor/v2"

	"github.com/signetco/corefw/internal/crypto/secureelem"
	"github.com/signetco/corefw/internal/platform"
)

// loadOrCreateSeed returns the device's sealed master seed, generating
// and persisting a fresh one on first boot. The seed itself never
// leaves elem.Seal/Unseal; the file only ever holds ciphertext under
// elem's process-local storage key.
func loadOrCreateSeed(elem *coreElement, file *platform.OSFile) (secureelem.WrappedSeed, error) {
	data, err := file.ReadAll()
	if err != nil {
		return secureelem.WrappedSeed{}, err
	}
	if len(data) != 0 {
		var wrapped secureelem.WrappedSeed
		if err := cbor.Unmarshal(data, &wrapped); err != nil {
			return secureelem.WrappedSeed{}, err
		}
		return wrapped, nil
	}

	seed := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, seed); err != nil {
		return secureelem.WrappedSeed{}, err
	}
	defer zero(seed)
	wrapped, err := elem.Seal(seed)
	if err != nil {
		return secureelem.WrappedSeed{}, err
	}
	encoded, err := cbor.Marshal(wrapped)
	if err != nil {
		return secureelem.WrappedSeed{}, err
	}
	if err := file.WriteAll(encoded); err != nil {
		return secureelem.WrappedSeed{}, err
	}
	return wrapped, nil
}
