package t4t

import (
	"bytes"
	"io"
	"testing"
)

// fakeDevice replays a scripted sequence of reader->tag frames and
// records the responses the Tag writes back. A single call to
// Tag.Read drains frames from Read until one produces NDEF write
// payload bytes to hand back upstream, mirroring how the real ISO-DEP
// driver loop behaves against a blocking transport.
type fakeDevice struct {
	in   [][]byte
	out  [][]byte
	sent int
}

func (f *fakeDevice) Read(b []byte) (int, error) {
	if f.sent >= len(f.in) {
		return 0, io.EOF
	}
	n := copy(b, f.in[f.sent])
	f.sent++
	return n, nil
}

func (f *fakeDevice) Write(b []byte) (int, error) {
	f.out = append(f.out, append([]byte(nil), b...))
	return len(b), nil
}

func (f *fakeDevice) Sleep() error { return nil }

func selectFileFrames() [][]byte {
	return [][]byte{
		{cmdSENS_REQ, 0x00},
		append([]byte{isodepI_BLOCK | 1, isodepCLA}, isodepTAG_SELECT...),
		append([]byte{isodepI_BLOCK | 0, isodepCLA}, isodepCC_SELECT...),
		append([]byte{isodepI_BLOCK | 1, isodepCLA}, isodepFILE_SELECT...),
	}
}

func TestSelectSequenceAcksEachStep(t *testing.T) {
	d := &fakeDevice{in: selectFileFrames()}
	tag := NewTag(d)
	buf := make([]byte, 256)
	// None of the four activation frames produce write payload, so a
	// single Read call drains all of them and then blocks on the next
	// (absent) frame, surfacing io.EOF.
	if _, err := tag.Read(buf); err != io.EOF {
		t.Fatalf("expected io.EOF once frames are exhausted, got %v", err)
	}
	if len(d.out) != 4 {
		t.Fatalf("expected 4 responses, got %d", len(d.out))
	}
	if !bytes.Equal(d.out[0], ats) {
		t.Fatalf("step 0: expected the ATS in reply to activation, got %x", d.out[0])
	}
	for i, resp := range d.out[1:] {
		if len(resp) < 3 || !bytes.Equal(resp[1:3], isodepACK) {
			t.Fatalf("step %d: expected ACK-suffixed response, got %x", i+1, resp)
		}
	}
}

func TestUpdateBinaryODORoundTrip(t *testing.T) {
	payload := []byte("hello-odo")
	body := []byte{tagODOOffset, 1, 0x02}
	body = append(body, tagODOData, byte(len(payload)))
	body = append(body, payload...)
	writeFrame := append([]byte{isodepI_BLOCK | 0, isodepCLA, isodepWRITE_ODO}, body...)

	frames := append(selectFileFrames(), writeFrame)
	d := &fakeDevice{in: frames}
	tag := NewTag(d)
	buf := make([]byte, 256)

	n, err := tag.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(buf[:n], payload) {
		t.Fatalf("payload mismatch: got %q want %q", buf[:n], payload)
	}
}

func TestWriteODOMissingOffsetRejected(t *testing.T) {
	body := []byte{tagODOData, 2, 'h', 'i'}
	tag := NewTag(&fakeDevice{})
	if _, err := tag.writeODO(body); err == nil {
		t.Fatal("expected an error for a missing offset object")
	}
}

type fakeAlt struct {
	gotCmd []byte
	body   []byte
	sw     uint16
}

func (f *fakeAlt) Handle(cmd []byte) ([]byte, uint16) {
	f.gotCmd = append([]byte(nil), cmd...)
	return f.body, f.sw
}

func TestAltCLADispatchedBeforeT4T(t *testing.T) {
	alt := &fakeAlt{body: []byte("alt-body"), sw: 0x9000}
	d := &fakeDevice{in: selectFileFrames()}
	tag := NewTag(d)
	var glitches int
	tag.SetAltCLA(0x87, alt, func() { glitches++ }, nil)

	altFrame := []byte{isodepI_BLOCK | 0, 0x87, 0x74, 0x00, 0x00, 0x00}
	d.in = append(d.in, altFrame)

	buf := make([]byte, 256)
	if _, err := tag.Read(buf); err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
	if glitches == 0 {
		t.Fatal("expected a glitch delay before CLA dispatch")
	}
	if !bytes.Equal(alt.gotCmd, []byte{0x87, 0x74, 0x00, 0x00, 0x00}) {
		t.Fatalf("unexpected alt command %x", alt.gotCmd)
	}
	last := d.out[len(d.out)-1]
	if !bytes.Contains(last, []byte("alt-body")) {
		t.Fatalf("expected alt body in response, got %x", last)
	}
}

func TestUnknownCLADeactivates(t *testing.T) {
	d := &fakeDevice{in: selectFileFrames()}
	tag := NewTag(d)
	var deactivated bool
	tag.SetAltCLA(0x87, &fakeAlt{}, nil, func() { deactivated = true })

	badFrame := []byte{isodepI_BLOCK | 0, 0xAA, 0x00, 0x00, 0x00}
	d.in = append(d.in, badFrame)

	buf := make([]byte, 256)
	before := len(selectFileFrames()) // each activation frame is answered once
	if _, err := tag.Read(buf); err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
	if !deactivated {
		t.Fatal("expected deactivate callback on unrecognized CLA")
	}
	if len(d.out) != before {
		t.Fatalf("expected no response written for a deactivated exchange, got %d new writes", len(d.out)-before)
	}
}

func TestUpdateBinaryPlainStillWorks(t *testing.T) {
	payload := []byte("plain")
	body := []byte{0x00, 0x02, byte(len(payload))}
	body = append(body, payload...)
	writeFrame := append([]byte{isodepI_BLOCK | 0, isodepCLA, isodepWRITE}, body...)

	frames := append(selectFileFrames(), writeFrame)
	d := &fakeDevice{in: frames}
	tag := NewTag(d)
	buf := make([]byte, 256)

	n, err := tag.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(buf[:n], payload) {
		t.Fatalf("payload mismatch: got %q want %q", buf[:n], payload)
	}
}
