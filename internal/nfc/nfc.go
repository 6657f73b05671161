// Package nfc wires the two command protocols a reader may address
// over the single NFC contactless interface: WCA (CLA 0x87), the
// chunked-protobuf control channel proper, and a Type 4 Tag NDEF
// surface (CLA 0x00) that exists only so background readers (iOS/
// Android tap-to-open flows) see a well-formed tag instead of hanging
// on an unanswered SELECT. CLA dispatch happens inside a single
// ISO-DEP transport (internal/nfc/t4t.Tag), since a real reader
// activates the field once and then issues command APDUs under
// whichever CLA its session needs.
package nfc

import (
	"io"

	"github.com/signetco/corefw/internal/nfc/t4t"
	"github.com/signetco/corefw/internal/nfc/wca"
	"github.com/signetco/corefw/internal/secure"
)

// Field is the RF front end the Session drives: readable/writable
// ISO-DEP bytes, plus Deactivate to drop the field outright instead of
// answering an exchange the router can't identify.
type Field interface {
	io.ReadWriter
	Sleep() error
	Deactivate()
}

// Session owns one RF field activation: a reader taps, the field
// activates, and the Session stays live (serving SELECT/READ/WRITE and
// any number of WCA exchanges) until the reader deselects or sleeps
// it, at which point it is discarded.
type Session struct {
	tag *t4t.Tag
}

// NewSession constructs a Session over field, routing WCA command
// APDUs (CLA 0x87) to handler and falling back to the Type 4 Tag path
// for everything else. A command under neither CLA deactivates the
// field immediately rather than leaving a reader retrying against
// silence.
func NewSession(field Field, handler *wca.Handler) *Session {
	tag := t4t.NewTag(field)
	tag.SetAltCLA(wca.CLA, handler, secure.GlitchDelay, field.Deactivate)
	return &Session{tag: tag}
}

// Read drives the session's ISO-DEP state machine, returning any bytes
// written to the NDEF file by a completed UPDATE_BINARY exchange. WCA
// traffic never surfaces here: its responses are written directly back
// to the field by the ISO-DEP loop.
func (s *Session) Read(b []byte) (int, error) {
	return s.tag.Read(b)
}

// Reset discards all ISO-DEP and WCA reassembly state, returning the
// session to its pre-activation condition.
func (s *Session) Reset() {
	s.tag.Reset()
}
