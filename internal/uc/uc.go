// Package uc implements the inter-MCU transport: COBS-framed,
// retransmitted, ACKed messages over the core/uxc UART, optionally
// authenticated-encrypted once a securechannel session is
// established. Ported from uc.h's public surface (uc_init, uc_send,
// uc_send_immediate, uc_handle_data, uc_idle, uc_route) onto Go
// channels and timers in place of the RTOS notification/queue
// primitives the original uses.
package uc

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"sync"
	"time"

	"github.com/signetco/corefw/internal/crypto/securechannel"
	"github.com/signetco/corefw/internal/uc/cobs"
)

// Frame type byte. The low nibble is the type; bits 4 and 5 carry
// modifiers rather than being part of an enlarged type space: DATA is always 0x01 with
// optional flags OR'd in, ACK is always the bare 0x02.
const (
	typeData byte = 0x01
	typeAck  byte = 0x02

	// flagImmediate marks a DATA frame as uc_send_immediate: the
	// receiver must reply with a pure ACK right away instead of
	// waiting for a piggyback opportunity.
	flagImmediate byte = 0x10
	// flagPiggyback marks a DATA frame as carrying one extra byte
	// right after the header: the sequence number of a previously
	// received DATA frame this message acknowledges in passing,
	// saving a separate pure-ACK round trip.
	flagPiggyback byte = 0x20

	typeMask = 0x0F
)

const headerSize = 4

// Default timing, named after their C counterparts. A production
// board would tune these against the UART baud rate; these values
// are conservative defaults for the 2 Mbaud link described for the
// core/uxc pair.
const (
	RetransmitTimeout  = 50 * time.Millisecond
	RetransmitMaxCount = 5
	AckTimeout         = 20 * time.Millisecond
)

var (
	// ErrMaxRetransmits is returned by Send when a DATA frame goes
	// unacknowledged after RetransmitMaxCount retransmits.
	ErrMaxRetransmits = errors.New("uc: exceeded maximum retransmit count")
	ErrFrameTooShort   = errors.New("uc: frame shorter than the header")
	ErrLengthMismatch  = errors.New("uc: declared length does not match body size")
	ErrCRCMismatch     = errors.New("uc: crc32 mismatch on unauthenticated frame")
	ErrSendInProgress  = errors.New("uc: a send is already outstanding")
	ErrZeroWrite       = errors.New("uc: send callback wrote zero bytes")
)

// SendFunc writes raw bytes to the UART, returning the number
// written. Zero bytes written with a nil error aborts the send, per
// uc_send_callback_t's contract.
type SendFunc func(data []byte) (int, error)

// Handler processes one decoded, authenticated payload routed to a
// given tag. It must not retain payload past the call, matching the
// "must free the proto" contract of a uc_route callback.
type Handler func(payload []byte)

// Transport is one end of the core/uxc link.
type Transport struct {
	send SendFunc

	mu      sync.Mutex
	session *securechannel.Session
	sendCounter uint64
	recvCounter uint64

	nextSendSeq uint8
	haveRecvd   bool
	lastRecvSeq uint8

	pendingAck    bool
	pendingAckSeq byte
	ackTimer      *time.Timer

	outstanding    bool
	outstandingSeq uint8
	ackCh          chan struct{}

	routes map[uint32]Handler

	retransmitTimeout time.Duration
	retransmitMax     int
	ackTimeout        time.Duration
}

// New constructs a Transport around send, with no secure channel
// established yet (frames are integrity-protected with a plain
// crc32 until SetSession is called).
func New(send SendFunc) *Transport {
	return &Transport{
		send:              send,
		routes:            make(map[uint32]Handler),
		retransmitTimeout: RetransmitTimeout,
		retransmitMax:     RetransmitMaxCount,
		ackTimeout:        AckTimeout,
	}
}

// SetSession installs a confirmed secure-channel session. Once set,
// all subsequent frames are AEAD-sealed/opened instead of using the
// plaintext+crc32 framing.
func (t *Transport) SetSession(s *securechannel.Session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.session = s
	t.sendCounter = 0
	t.recvCounter = 0
}

// Route registers a callback for payloads carrying the given tag.
// Matches uc_route's callback-registration mode.
func (t *Transport) Route(tag uint32, h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.routes[tag] = h
}

// Send transmits a tagged payload as a DATA frame and blocks until it
// is acknowledged or RetransmitMaxCount retransmits are exhausted.
// With immediate set, the peer is asked to ACK right away rather than
// piggybacking, matching uc_send_immediate.
func (t *Transport) Send(tag uint32, payload []byte, immediate bool) error {
	t.mu.Lock()
	if t.outstanding {
		t.mu.Unlock()
		return ErrSendInProgress
	}
	seq := t.nextSendSeq
	t.nextSendSeq++

	body := make([]byte, 4+len(payload))
	binary.LittleEndian.PutUint32(body, tag)
	copy(body[4:], payload)

	flags := byte(0)
	if immediate {
		flags |= flagImmediate
	}
	var piggyback byte
	havePiggyback := false
	if t.pendingAck {
		piggyback = t.pendingAckSeq
		havePiggyback = true
		flags |= flagPiggyback
		t.clearPendingAckLocked()
	}

	protected, err := t.protectLocked(body)
	if err != nil {
		t.mu.Unlock()
		return err
	}

	header := make([]byte, headerSize)
	header[0] = typeData | flags
	header[1] = seq
	binary.LittleEndian.PutUint16(header[2:4], uint16(len(protected)))

	raw := header
	if havePiggyback {
		raw = append(raw, piggyback)
	}
	raw = append(raw, protected...)

	frame, err := cobs.EncodeFrame(raw)
	if err != nil {
		t.mu.Unlock()
		return err
	}

	t.outstanding = true
	t.outstandingSeq = seq
	t.ackCh = make(chan struct{}, 1)
	ackCh := t.ackCh
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.outstanding = false
		t.ackCh = nil
		t.mu.Unlock()
	}()

	for attempt := 0; attempt <= t.retransmitMax; attempt++ {
		if err := t.writeFrame(frame); err != nil {
			return err
		}
		select {
		case <-ackCh:
			return nil
		case <-time.After(t.retransmitTimeout):
			continue
		}
	}
	return ErrMaxRetransmits
}

func (t *Transport) writeFrame(frame []byte) error {
	n, err := t.send(frame)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrZeroWrite
	}
	return nil
}

// protectLocked seals body under the secure channel if established,
// otherwise appends a crc32 checksum. Caller holds t.mu.
func (t *Transport) protectLocked(body []byte) ([]byte, error) {
	if t.session == nil {
		sum := crc32.ChecksumIEEE(body)
		out := make([]byte, len(body)+4)
		copy(out, body)
		binary.LittleEndian.PutUint32(out[len(body):], sum)
		return out, nil
	}
	ciphertext, counter, err := t.session.Seal(body, nil)
	if err != nil {
		return nil, err
	}
	if counter != t.sendCounter {
		// The session's internal counter has drifted from this
		// transport's bookkeeping, which should never happen since
		// every Seal call here corresponds to exactly one Transport
		// send counter tick.
		return nil, errors.New("uc: secure channel counter desynchronized")
	}
	t.sendCounter++
	return ciphertext, nil
}

// unprotectLocked is protectLocked's inverse. Caller holds t.mu.
func (t *Transport) unprotectLocked(body []byte) ([]byte, error) {
	if t.session == nil {
		if len(body) < 4 {
			return nil, ErrFrameTooShort
		}
		payload := body[:len(body)-4]
		want := binary.LittleEndian.Uint32(body[len(body)-4:])
		if crc32.ChecksumIEEE(payload) != want {
			return nil, ErrCRCMismatch
		}
		return payload, nil
	}
	plaintext, err := t.session.Open(body, t.recvCounter, nil)
	if err != nil {
		return nil, err
	}
	t.recvCounter++
	return plaintext, nil
}

func (t *Transport) clearPendingAckLocked() {
	t.pendingAck = false
	if t.ackTimer != nil {
		t.ackTimer.Stop()
		t.ackTimer = nil
	}
}

// Ack sends a pure ACK for the given sequence, matching uc_ack.
func (t *Transport) Ack(seq byte) error {
	header := make([]byte, headerSize)
	header[0] = typeAck
	header[1] = seq
	frame, err := cobs.EncodeFrame(header)
	if err != nil {
		return err
	}
	return t.writeFrame(frame)
}

// sendPendingAckIfDue is the uc_idle equivalent: if an accepted DATA
// frame's ACK has not yet gone out piggybacked on an outgoing frame,
// send a pure ACK for it now. handleData arms a timer that calls it
// AckTimeout after the frame was accepted; there is no exported Idle
// method for callers to poll.
func (t *Transport) sendPendingAckIfDue() {
	t.mu.Lock()
	if !t.pendingAck {
		t.mu.Unlock()
		return
	}
	seq := t.pendingAckSeq
	t.clearPendingAckLocked()
	t.mu.Unlock()
	t.Ack(seq)
}

// HandleFrame processes one complete COBS-encoded wire frame,
// including its trailing 0x00 delimiter if present. It is the
// uc_handle_data equivalent; callers feeding a raw byte stream should
// split on 0x00 themselves and call HandleFrame once per frame.
func (t *Transport) HandleFrame(encoded []byte) error {
	raw, err := cobs.DecodeFrame(encoded)
	if err != nil {
		return err
	}
	if len(raw) < headerSize {
		return ErrFrameTooShort
	}
	typ := raw[0]
	seq := raw[1]
	length := int(binary.LittleEndian.Uint16(raw[2:4]))
	rest := raw[headerSize:]

	if typ&typeMask == typeAck {
		t.handleAck(seq)
		return nil
	}
	if typ&typeMask != typeData {
		return errors.New("uc: unknown frame type")
	}

	if typ&flagPiggyback != 0 {
		if len(rest) < 1 {
			return ErrFrameTooShort
		}
		t.handleAck(rest[0])
		rest = rest[1:]
	}
	if len(rest) != length {
		return ErrLengthMismatch
	}

	return t.handleData(seq, typ&flagImmediate != 0, rest)
}

func (t *Transport) handleAck(seq byte) {
	t.mu.Lock()
	if t.outstanding && t.outstandingSeq == seq {
		ch := t.ackCh
		t.mu.Unlock()
		if ch != nil {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
		return
	}
	t.mu.Unlock()
}

func (t *Transport) handleData(seq byte, immediate bool, body []byte) error {
	t.mu.Lock()
	if t.haveRecvd && seq == t.lastRecvSeq {
		// Duplicate: discard the payload but re-ACK so a peer whose
		// own ACK was lost in transit still sees one.
		t.mu.Unlock()
		return t.Ack(seq)
	}

	payload, err := t.unprotectLocked(body)
	if err != nil {
		t.mu.Unlock()
		return err
	}
	t.haveRecvd = true
	t.lastRecvSeq = seq

	if immediate {
		t.mu.Unlock()
		return t.Ack(seq)
	}

	t.pendingAck = true
	t.pendingAckSeq = seq
	if t.ackTimer != nil {
		t.ackTimer.Stop()
	}
	t.ackTimer = time.AfterFunc(t.ackTimeout, t.sendPendingAckIfDue)
	t.mu.Unlock()

	if len(payload) < 4 {
		return errors.New("uc: payload shorter than its routing tag")
	}
	tag := binary.LittleEndian.Uint32(payload[:4])
	inner := payload[4:]

	t.mu.Lock()
	h := t.routes[tag]
	t.mu.Unlock()
	if h != nil {
		h(inner)
	}
	return nil
}
