// Package securechannel implements the X25519+HKDF authenticated
// handshake shared by both boundary protocols that need one: the
// NFC-facing secure_channel_establish command (key manager, host is
// initiator) and the inter-MCU UC channel (core is initiator). Ported
// from spec.md §4.7/§6's handshake description: an ephemeral
// initiator pubkey, a responder reply carrying its ephemeral pubkey
// plus a signature over the transcript by its attestation key plus a
// key-confirmation tag, and an initiator confirmation tag. Traffic
// after confirmation is AES-GCM with a 96-bit nonce (64-bit counter +
// 32-bit direction salt); counters strictly increase and are never
// reused.
package securechannel

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// ProtocolVersion is included in the signed transcript so a version
// downgrade changes the signature.
const ProtocolVersion uint16 = 1

var (
	ErrBadSignature       = errors.New("securechannel: transcript signature invalid")
	ErrBadConfirmationTag = errors.New("securechannel: key confirmation tag mismatch")
	ErrNonceExhausted     = errors.New("securechannel: nonce counter exhausted")
	ErrReplayedCounter    = errors.New("securechannel: received counter already seen")
)

// EphemeralKeyPair is a single-use X25519 key pair.
type EphemeralKeyPair struct {
	Private [32]byte
	Public  [32]byte
}

// GenerateEphemeral creates a fresh X25519 key pair.
func GenerateEphemeral() (EphemeralKeyPair, error) {
	var kp EphemeralKeyPair
	if _, err := io.ReadFull(rand.Reader, kp.Private[:]); err != nil {
		return kp, err
	}
	pub, err := curve25519.X25519(kp.Private[:], curve25519.Basepoint)
	if err != nil {
		return kp, err
	}
	copy(kp.Public[:], pub)
	return kp, nil
}

func transcript(pkHost, pkDevice [32]byte, version uint16) []byte {
	out := make([]byte, 0, 32+32+2)
	out = append(out, pkHost[:]...)
	out = append(out, pkDevice[:]...)
	out = binary.BigEndian.AppendUint16(out, version)
	return out
}

// Direction distinguishes the two AEAD key/nonce-salt streams derived
// from one shared secret.
type Direction uint32

const (
	DirInitiatorToResponder Direction = 1
	DirResponderToInitiator Direction = 2
)

// Session is a confirmed secure-channel session: two AEAD ciphers (one
// per direction) and a strictly-increasing send counter per side.
type Session struct {
	sendAEAD  cipher.AEAD
	recvAEAD  cipher.AEAD
	sendSalt  uint32
	recvSalt  uint32
	sendCtr   uint64
	lastRecv  uint64
	haveRecvd bool
}

func deriveKeys(shared []byte, salt []byte) (initToResp, respToInit []byte, err error) {
	r := hkdf.New(sha256.New, shared, salt, []byte("uxc-secure-channel-traffic"))
	initToResp = make([]byte, 32)
	respToInit = make([]byte, 32)
	if _, err = io.ReadFull(r, initToResp); err != nil {
		return
	}
	if _, err = io.ReadFull(r, respToInit); err != nil {
		return
	}
	return
}

func deriveConfirmationTags(shared []byte, salt []byte) (initiatorTag, responderTag [16]byte, err error) {
	r := hkdf.New(sha256.New, shared, salt, []byte("uxc-secure-channel-confirm"))
	var buf [32]byte
	if _, err = io.ReadFull(r, buf[:]); err != nil {
		return
	}
	copy(initiatorTag[:], buf[:16])
	copy(responderTag[:], buf[16:])
	return
}

// HandshakeReply is what a Responder sends back to the Initiator.
type HandshakeReply struct {
	DevicePublic         [32]byte
	ExchangeSignature    [64]byte
	KeyConfirmationTag   [16]byte
}

// Respond runs the responder side of the handshake: given the
// initiator's ephemeral pubkey, generate our own ephemeral pair, sign
// the transcript with attestKey, and return the reply plus the
// confirmed Session (pending the initiator's own confirmation tag,
// checked by ConfirmAsResponder).
func Respond(pkHost [32]byte, attestKey ed25519.PrivateKey) (reply HandshakeReply, pending *pendingResponder, err error) {
	kp, err := GenerateEphemeral()
	if err != nil {
		return reply, nil, err
	}
	shared, err := curve25519.X25519(kp.Private[:], pkHost[:])
	if err != nil {
		return reply, nil, err
	}
	tr := transcript(pkHost, kp.Public, ProtocolVersion)
	sig := ed25519.Sign(attestKey, tr)

	initTag, respTag, err := deriveConfirmationTags(shared, tr)
	if err != nil {
		return reply, nil, err
	}

	reply.DevicePublic = kp.Public
	copy(reply.ExchangeSignature[:], sig)
	reply.KeyConfirmationTag = respTag

	pending = &pendingResponder{
		shared:       shared,
		transcript:   tr,
		expectedTag:  initTag,
	}
	return reply, pending, nil
}

type pendingResponder struct {
	shared      []byte
	transcript  []byte
	expectedTag [16]byte
}

// ConfirmAsResponder checks the initiator's confirmation tag and, on
// success, derives the confirmed Session. A second Establish call
// (Respond followed by a fresh ConfirmAsResponder) wipes any prior
// session for this peer — handshakes are not idempotent.
func (p *pendingResponder) ConfirmAsResponder(initiatorTag [16]byte) (*Session, error) {
	if initiatorTag != p.expectedTag {
		return nil, ErrBadConfirmationTag
	}
	initToResp, respToInit, err := deriveKeys(p.shared, p.transcript)
	if err != nil {
		return nil, err
	}
	return newSession(respToInit, initToResp, DirResponderToInitiator, DirInitiatorToResponder)
}

// EstablishAsInitiator runs the initiator side given the reply from
// Respond: verifies the transcript signature under attestPub, derives
// the session, and returns both the Session and the tag to send back
// to the responder to complete confirmation.
func EstablishAsInitiator(pkHost EphemeralKeyPair, reply HandshakeReply, attestPub ed25519.PublicKey) (*Session, [16]byte, error) {
	var zero [16]byte
	tr := transcript(pkHost.Public, reply.DevicePublic, ProtocolVersion)
	if !ed25519.Verify(attestPub, tr, reply.ExchangeSignature[:]) {
		return nil, zero, ErrBadSignature
	}
	shared, err := curve25519.X25519(pkHost.Private[:], reply.DevicePublic[:])
	if err != nil {
		return nil, zero, err
	}
	initTag, respTag, err := deriveConfirmationTags(shared, tr)
	if err != nil {
		return nil, zero, err
	}
	if reply.KeyConfirmationTag != respTag {
		return nil, zero, ErrBadConfirmationTag
	}
	initToResp, respToInit, err := deriveKeys(shared, tr)
	if err != nil {
		return nil, zero, err
	}
	session, err := newSession(initToResp, respToInit, DirInitiatorToResponder, DirResponderToInitiator)
	if err != nil {
		return nil, zero, err
	}
	return session, initTag, nil
}

func newSession(sendKey, recvKey []byte, sendDir, recvDir Direction) (*Session, error) {
	sendBlock, err := aes.NewCipher(sendKey)
	if err != nil {
		return nil, err
	}
	sendAEAD, err := cipher.NewGCM(sendBlock)
	if err != nil {
		return nil, err
	}
	recvBlock, err := aes.NewCipher(recvKey)
	if err != nil {
		return nil, err
	}
	recvAEAD, err := cipher.NewGCM(recvBlock)
	if err != nil {
		return nil, err
	}
	return &Session{
		sendAEAD: sendAEAD,
		recvAEAD: recvAEAD,
		sendSalt: uint32(sendDir),
		recvSalt: uint32(recvDir),
	}, nil
}

func nonceFor(counter uint64, salt uint32) []byte {
	n := make([]byte, 12)
	binary.BigEndian.PutUint64(n[0:8], counter)
	binary.BigEndian.PutUint32(n[8:12], salt)
	return n
}

// Seal encrypts plaintext under the next send counter, returning the
// ciphertext (with appended auth tag) and the counter used. The
// counter strictly increases across the session's lifetime and is
// never reused (P6).
func (s *Session) Seal(plaintext, additionalData []byte) (ciphertext []byte, counter uint64, err error) {
	if s.sendCtr == ^uint64(0) {
		return nil, 0, ErrNonceExhausted
	}
	counter = s.sendCtr
	s.sendCtr++
	nonce := nonceFor(counter, s.sendSalt)
	ciphertext = s.sendAEAD.Seal(nil, nonce, plaintext, additionalData)
	return ciphertext, counter, nil
}

// Open decrypts ciphertext sent under counter. A counter at or below
// the last accepted value is rejected (P6): no two accepted frames may
// carry the same counter, and replays of old counters are refused.
func (s *Session) Open(ciphertext []byte, counter uint64, additionalData []byte) ([]byte, error) {
	if s.haveRecvd && counter <= s.lastRecv {
		return nil, ErrReplayedCounter
	}
	nonce := nonceFor(counter, s.recvSalt)
	plaintext, err := s.recvAEAD.Open(nil, nonce, ciphertext, additionalData)
	if err != nil {
		return nil, err
	}
	s.lastRecv = counter
	s.haveRecvd = true
	return plaintext, nil
}
