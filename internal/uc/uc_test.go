package uc

import (
	"bytes"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/signetco/corefw/internal/uc/cobs"
)

// pipe wires two Transports back to back, splitting the outgoing byte
// stream on the COBS 0x00 delimiter and feeding whole frames to the
// peer's HandleFrame, mirroring how a UART ISR would hand off frames.
type pipe struct {
	mu       sync.Mutex
	peer     *Transport
	buf      []byte
	dropNext int
}

func (p *pipe) send(data []byte) (int, error) {
	p.mu.Lock()
	p.buf = append(p.buf, data...)
	var frames [][]byte
	for {
		idx := bytes.IndexByte(p.buf, 0)
		if idx < 0 {
			break
		}
		frames = append(frames, append([]byte(nil), p.buf[:idx+1]...))
		p.buf = p.buf[idx+1:]
	}
	drop := p.dropNext
	if drop > 0 {
		p.dropNext--
	}
	p.mu.Unlock()

	for _, f := range frames {
		if drop > 0 {
			drop--
			continue
		}
		go p.peer.HandleFrame(f)
	}
	return len(data), nil
}

func newLinkedPair() (a, b *Transport, pa, pb *pipe) {
	pa = &pipe{}
	pb = &pipe{}
	a = New(pa.send)
	b = New(pb.send)
	a.retransmitTimeout = 10 * time.Millisecond
	b.retransmitTimeout = 10 * time.Millisecond
	a.ackTimeout = 5 * time.Millisecond
	b.ackTimeout = 5 * time.Millisecond
	pa.peer = b
	pb.peer = a
	return
}

func TestSendDeliversToRoute(t *testing.T) {
	a, b, _, _ := newLinkedPair()

	received := make(chan []byte, 1)
	b.Route(0x42, func(payload []byte) {
		received <- append([]byte(nil), payload...)
	})

	if err := a.Send(0x42, []byte("hello"), false); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case got := <-received:
		if string(got) != "hello" {
			t.Fatalf("got %q", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

// TestSingleDropRecoveredByRetransmit exercises P9: one dropped DATA
// frame is recovered by exactly one retransmit, and the receiver only
// delivers the payload once.
func TestSingleDropRecoveredByRetransmit(t *testing.T) {
	a, b, pa, _ := newLinkedPair()

	var deliveries int
	var mu sync.Mutex
	b.Route(0x07, func(payload []byte) {
		mu.Lock()
		deliveries++
		mu.Unlock()
	})

	pa.dropNext = 1
	if err := a.Send(0x07, []byte("x"), false); err != nil {
		t.Fatalf("Send: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if deliveries != 1 {
		t.Fatalf("expected exactly one delivery after one retransmit, got %d", deliveries)
	}
}

func TestMaxRetransmitsExhausted(t *testing.T) {
	pa := &pipe{}
	a := New(pa.send)
	a.retransmitTimeout = 5 * time.Millisecond
	a.retransmitMax = 2
	pa.peer = New(func(data []byte) (int, error) { return len(data), nil }) // black hole: never ACKs

	err := a.Send(0x01, []byte("y"), false)
	if err != ErrMaxRetransmits {
		t.Fatalf("expected ErrMaxRetransmits, got %v", err)
	}
}

func TestDuplicateDataDiscardedButReACKed(t *testing.T) {
	a, b, _, _ := newLinkedPair()
	var deliveries int
	var mu sync.Mutex
	b.Route(0x09, func(payload []byte) {
		mu.Lock()
		deliveries++
		mu.Unlock()
	})

	if err := a.Send(0x09, []byte("once"), true); err != nil {
		t.Fatalf("first send: %v", err)
	}

	// Manually replay the same sequence as a duplicate DATA frame.
	// Duplicate detection happens before integrity checking, so an
	// arbitrary body is enough to exercise dedupe as long as the
	// header's length field matches it.
	b.mu.Lock()
	seq := b.lastRecvSeq
	b.mu.Unlock()
	body := []byte("garbage-not-checked")
	raw := make([]byte, headerSize, headerSize+len(body))
	raw[0] = typeData | flagImmediate
	raw[1] = seq
	binary.LittleEndian.PutUint16(raw[2:4], uint16(len(body)))
	raw = append(raw, body...)

	frame, err := cobs.EncodeFrame(raw)
	if err != nil {
		t.Fatal(err)
	}
	b.HandleFrame(frame)

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if deliveries != 1 {
		t.Fatalf("expected exactly one delivery across original + duplicate, got %d", deliveries)
	}
}
