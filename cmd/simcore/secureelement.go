package main

import (
	"github.com/signetco/corefw/internal/crypto/secureelem"
	"github.com/signetco/corefw/internal/sysinfo"
)

// simElement wraps the shared software secure-element stand-in with
// the fixed sysinfo.SecureElement reporting surface the simulator
// exposes: no real OTP/tamper state exists to query.
type simElement struct {
	*secureelem.Software
}

func newSimElement() *simElement {
	soft, err := secureelem.NewSoftware()
	if err != nil {
		panic(err)
	}
	return &simElement{Software: soft}
}

func (e *simElement) SecInfo() (sysinfo.SEInfo, error) {
	return sysinfo.SEInfo{
		Version:           1,
		OTPVersion:        1,
		Serial:            []byte("SIMSE0000000001"),
		SecureBootEnabled: true,
	}, nil
}

func (e *simElement) Cert(kind sysinfo.CertKind) ([]byte, error) {
	return []byte{byte(kind), 0xCE, 0xA7}, nil
}

func (e *simElement) Pubkeys() (sysinfo.Pubkeys, error) {
	pub := e.AttestationPublicKey()
	return sysinfo.Pubkeys{Boot: pub, Auth: pub, Attestation: pub, SEAttestation: pub}, nil
}

func (e *simElement) Pubkey(kind sysinfo.PubkeyKind) ([]byte, error) {
	return e.AttestationPublicKey(), nil
}

func (e *simElement) SecureBootConfig() sysinfo.SecureBootConfig {
	return sysinfo.SecureBootConfig{Enabled: true, Locked: true}
}
