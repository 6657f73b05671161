package wireproto

import (
	"encoding/binary"
	"fmt"
)

// HandlerFunc processes one command's raw CBOR payload and returns
// the raw CBOR payload of its response, matching one handle_* command
// function in sysinfo_task.c generalized over transport: it neither
// knows about NFC/WCA nor about inter-MCU framing, only about bytes in
// and bytes out for a given Tag.
type HandlerFunc func(payload []byte) ([]byte, error)

// Dispatcher routes decoded frames to registered HandlerFuncs,
// standing in for sysinfo_thread's big `switch (message.tag)` and the
// equivalent switch in every other command-handling task, unified
// into one routing table per transport (NFC WCA, inter-MCU uc
// channel) since a HandlerFunc is transport-agnostic.
type Dispatcher struct {
	handlers map[Tag]HandlerFunc
}

// NewDispatcher constructs an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[Tag]HandlerFunc)}
}

// Register binds tag to fn. Registering the same tag twice replaces
// the previous handler, matching how a fresh build's switch statement
// has exactly one case per tag.
func (d *Dispatcher) Register(tag Tag, fn HandlerFunc) {
	d.handlers[tag] = fn
}

// Dispatch decodes frame and invokes the registered handler for its
// tag, returning a fully framed response (same Tag, the handler's
// output payload). An unknown tag returns ErrUnknownTag rather than
// silently dropping the request, the Go equivalent of
// sysinfo_thread's `default: LOGE("unknown message %ld", ...)` case —
// except here the caller learns about it instead of it only reaching
// a log line.
func (d *Dispatcher) Dispatch(frame []byte) ([]byte, error) {
	tag, payload, err := Decode(frame)
	if err != nil {
		return nil, err
	}
	fn, ok := d.handlers[tag]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnknownTag, tag)
	}
	rspPayload, err := fn(payload)
	if err != nil {
		return nil, err
	}
	rsp := make([]byte, headerSize+len(rspPayload))
	binary.BigEndian.PutUint16(rsp[0:2], uint16(tag))
	binary.BigEndian.PutUint32(rsp[2:6], uint32(len(rspPayload)))
	copy(rsp[headerSize:], rspPayload)
	return rsp, nil
}
