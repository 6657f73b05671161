package main

import (
	"encoding/binary"
	"log"

	"github.com/signetco/corefw/internal/uc"
	"github.com/signetco/corefw/internal/wireproto"
)

// uiBridgeTags lists the host commands the display MCU's UI flows also
// need to reach: fingerprint enrollment, authentication state, and
// device lock, mirroring the same handlers hostproto.Register already
// bound to the NFC-facing Dispatcher (wireproto.Dispatcher's own doc
// comment: one routing table serves both NFC WCA and the inter-MCU uc
// channel).
var uiBridgeTags = []wireproto.Tag{
	wireproto.TagStartFingerprintEnrollment,
	wireproto.TagGetFingerprintEnrollmentStatus,
	wireproto.TagQueryAuthentication,
	wireproto.TagLockDevice,
}

// wireUIBridge re-frames each UI-originated uc payload as a wireproto
// frame, dispatches it through proto exactly as an NFC exchange would,
// and sends the decoded response payload back over the same tag.
func wireUIBridge(transport *uc.Transport, proto *wireproto.Dispatcher) {
	for _, tag := range uiBridgeTags {
		tag := tag
		transport.Route(uint32(tag), func(payload []byte) {
			rsp, err := proto.Dispatch(frameHeader(tag, payload))
			if err != nil {
				log.Printf("core: ui bridge: %s: %v", tag, err)
				return
			}
			_, rspPayload, err := wireproto.Decode(rsp)
			if err != nil {
				log.Printf("core: ui bridge: %s: %v", tag, err)
				return
			}
			if err := transport.Send(uint32(tag), rspPayload, true); err != nil {
				log.Printf("core: ui bridge: %s: %v", tag, err)
			}
		})
	}
}

// frameHeader reconstructs a wireproto frame (2-byte tag, 4-byte
// length, payload) from a payload already received whole off the uc
// transport, matching wireproto.Encode's layout without re-marshaling
// payload (it is already encoded CBOR, not a Go value to marshal).
func frameHeader(tag wireproto.Tag, payload []byte) []byte {
	frame := make([]byte, 6+len(payload))
	binary.BigEndian.PutUint16(frame[0:2], uint16(tag))
	binary.BigEndian.PutUint32(frame[2:6], uint32(len(payload)))
	copy(frame[6:], payload)
	return frame
}
