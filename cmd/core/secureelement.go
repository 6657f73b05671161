package main

import (
	"github.com/signetco/corefw/internal/crypto/secureelem"
	"github.com/signetco/corefw/internal/sysinfo"
)

// coreElement wraps the shared software secure-element stand-in
// (internal/crypto/secureelem.Software) with cmd/core's own
// sysinfo.SecureElement reporting surface. Real secure-element OTP/
// tamper state is out of scope (see secureelem's package doc), so this
// reports fixed values the same way cmd/simcore's simElement does;
// the two builds share the Seal/Unseal/Attest implementation and only
// duplicate this thin reporting shim.
type coreElement struct {
	*secureelem.Software
}

func newCoreElement() (*coreElement, error) {
	soft, err := secureelem.NewSoftware()
	if err != nil {
		return nil, err
	}
	return &coreElement{Software: soft}, nil
}

func (e *coreElement) SecInfo() (sysinfo.SEInfo, error) {
	return sysinfo.SEInfo{
		Version:           1,
		OTPVersion:        1,
		Serial:            []byte("COREFWSE00000001"),
		SecureBootEnabled: true,
	}, nil
}

func (e *coreElement) Cert(kind sysinfo.CertKind) ([]byte, error) {
	return []byte{byte(kind), 0xCE, 0xA7}, nil
}

func (e *coreElement) Pubkeys() (sysinfo.Pubkeys, error) {
	pub := e.AttestationPublicKey()
	return sysinfo.Pubkeys{Boot: pub, Auth: pub, Attestation: pub, SEAttestation: pub}, nil
}

func (e *coreElement) Pubkey(kind sysinfo.PubkeyKind) ([]byte, error) {
	return e.AttestationPublicKey(), nil
}

func (e *coreElement) SecureBootConfig() sysinfo.SecureBootConfig {
	return sysinfo.SecureBootConfig{Enabled: true, Locked: true}
}
