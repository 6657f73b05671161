package wca

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"
)

type fakeRouter struct {
	gotTag  uint32
	gotBody []byte
	reply   []byte
	respond func(h *Handler)
	err     error
}

func (r *fakeRouter) RouteProto(tag uint32, body []byte) error {
	r.gotTag = tag
	r.gotBody = append([]byte(nil), body...)
	if r.err != nil {
		return r.err
	}
	if r.respond != nil {
		go r.respond(nil)
	}
	return nil
}

func apduHeader(ins, p1, p2 byte, lc int) []byte {
	return []byte{CLA, ins, p1, p2, byte(lc)}
}

// encodeTag builds a single-byte protobuf varint tag for small field
// numbers, e.g. field 9 wire type 2 (length-delimited).
func encodeTag(field uint32, wireType uint32) []byte {
	v := field<<3 | wireType
	return []byte{byte(v)}
}

func TestVersion(t *testing.T) {
	h := NewHandler(&fakeRouter{})
	body, sw := h.Handle([]byte{CLA, insVersion, 0, 0, 0})
	if sw != swOK {
		t.Fatalf("expected swOK, got %#x", sw)
	}
	if binary.BigEndian.Uint16(body) != protocolVersion {
		t.Fatalf("unexpected version body %x", body)
	}
}

func TestWrongCLARejected(t *testing.T) {
	h := NewHandler(&fakeRouter{})
	_, sw := h.Handle([]byte{0x00, insVersion, 0, 0, 0})
	if sw != swUnsupportedINS {
		t.Fatalf("expected swUnsupportedINS, got %#x", sw)
	}
}

func TestUnknownINSRejected(t *testing.T) {
	h := NewHandler(&fakeRouter{})
	_, sw := h.Handle([]byte{CLA, 0xFF, 0, 0, 0})
	if sw != swUnsupportedINS {
		t.Fatalf("expected swUnsupportedINS, got %#x", sw)
	}
}

func TestSingleChunkProtoExchange(t *testing.T) {
	router := &fakeRouter{}
	h := NewHandler(router)

	payload := append(encodeTag(9, 2), []byte("rest-of-proto")...)
	cmd := append(apduHeader(insProto, byte(len(payload)>>8), byte(len(payload)), len(payload)), payload...)

	done := make(chan struct {
		body []byte
		sw   uint16
	}, 1)
	go func() {
		body, sw := h.Handle(cmd)
		done <- struct {
			body []byte
			sw   uint16
		}{body, sw}
	}()

	time.Sleep(10 * time.Millisecond)
	h.HandleProtoResponse([]byte("response-bytes"))

	select {
	case r := <-done:
		if r.sw != swOK {
			t.Fatalf("expected swOK, got %#x", r.sw)
		}
		if !bytes.Equal(r.body, []byte("response-bytes")) {
			t.Fatalf("unexpected response body %q", r.body)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for exchange")
	}
	if router.gotTag != 9 {
		t.Fatalf("expected tag 9, got %d", router.gotTag)
	}
	if !bytes.Equal(router.gotBody, payload) {
		t.Fatalf("router saw unexpected body %q", router.gotBody)
	}
}

func TestChunkedProtoReassembly(t *testing.T) {
	router := &fakeRouter{}
	h := NewHandler(router)

	full := append(encodeTag(5, 2), bytes.Repeat([]byte{0xAB}, 50)...)
	first, second := full[:30], full[30:]

	_, sw := h.Handle(append(apduHeader(insProto, byte(len(full)>>8), byte(len(full)), len(first)), first...))
	if sw != swOK {
		t.Fatalf("expected swOK for the first chunk, got %#x", sw)
	}

	done := make(chan uint16, 1)
	go func() {
		_, sw := h.Handle(append(apduHeader(insProtoCont, 0, 0, len(second)), second...))
		done <- sw
	}()
	time.Sleep(10 * time.Millisecond)
	h.HandleProtoResponse(nil)

	select {
	case sw := <-done:
		if sw != swOK {
			t.Fatalf("expected swOK after reassembly completes, got %#x", sw)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
	if !bytes.Equal(router.gotBody, full) {
		t.Fatalf("reassembled body mismatch: got %x want %x", router.gotBody, full)
	}
}

func TestGetResponseDrainsInChunks(t *testing.T) {
	router := &fakeRouter{}
	h := NewHandler(router)
	payload := append(encodeTag(1, 2), []byte("x")...)
	cmd := append(apduHeader(insProto, byte(len(payload)>>8), byte(len(payload)), len(payload)), payload...)

	done := make(chan uint16, 1)
	go func() {
		_, sw := h.Handle(cmd)
		done <- sw
	}()
	time.Sleep(10 * time.Millisecond)
	big := bytes.Repeat([]byte{0x42}, 300)
	h.HandleProtoResponse(big)

	firstSW := <-done
	if firstSW>>8 != 0x61 {
		t.Fatalf("expected a 61xx status word for the first chunk, got %#x", firstSW)
	}

	body2, sw2 := h.Handle([]byte{CLA, insGetResponse, 0, 0, 0})
	if sw2 != swOK {
		t.Fatalf("expected swOK for the final chunk, got %#x", sw2)
	}
	if len(body2) != 45 {
		t.Fatalf("expected the remaining 45 bytes, got %d", len(body2))
	}
}

func TestEmptyResponseDrainsImmediately(t *testing.T) {
	router := &fakeRouter{}
	h := NewHandler(router)
	payload := append(encodeTag(2, 2), []byte("y")...)
	cmd := append(apduHeader(insProto, byte(len(payload)>>8), byte(len(payload)), len(payload)), payload...)

	done := make(chan struct {
		body []byte
		sw   uint16
	}, 1)
	go func() {
		body, sw := h.Handle(cmd)
		done <- struct {
			body []byte
			sw   uint16
		}{body, sw}
	}()
	time.Sleep(10 * time.Millisecond)
	h.HandleProtoResponse(nil)

	r := <-done
	if r.sw != swOK || len(r.body) != 0 {
		t.Fatalf("expected empty body and swOK, got body=%x sw=%#x", r.body, r.sw)
	}
}
