// Package t4t implements enough of the NFC Forum Type 4 Tag
// operation to satisfy iOS/Android background tag readers that probe
// for NDEF presence before a WCA session starts: SELECT, READ_BINARY,
// UPDATE_BINARY, and UPDATE_BINARY_ODO over ISO-DEP I-blocks. Adapted
// from seedhammer's nfc/type4 tag emulation, generalized to also
// accept the BER-TLV "offset data object" variant of UPDATE_BINARY
// (tag 0x54 offset / tag 0x53 data, per ISO/IEC 7816-4's discretionary
// data object convention) that some readers issue instead of the
// plain P1P2-offset form.
//
// A Tag also drives the ISO-DEP I-block transport for one other
// protocol registered via SetAltCLA, since a real reader activates the
// field once and then issues command APDUs under whichever CLA its
// session needs (WCA's 0x87 in this firmware, T4T's 0x00 otherwise).
package t4t

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const chunkSize = 128

// CLA is the ISO-DEP class byte T4T commands arrive under. The NFC
// router uses this to distinguish a T4T APDU from a WCA one (CLA
// 0x87) before dispatching.
const CLA = 0x00

// AltCLAHandler answers a complete command APDU (CLA through the end
// of the data field, Le included where present) arriving under a CLA
// other than this package's own. wca.Handler satisfies this
// structurally, letting the ISO-DEP loop dispatch WCA exchanges
// without t4t importing the wca package.
type AltCLAHandler interface {
	Handle(cmd []byte) (body []byte, sw uint16)
}

// Tag emulates a writable, effectively-empty Type 4 Tag: present
// enough structure (CC file, an empty NDEF file) that a reader is
// satisfied nothing is being withheld. A single Tag also drives the
// shared ISO-DEP I-block transport for any other protocol registered
// via SetAltCLA (WCA in practice), since a real reader session
// activates once and then issues APDUs under either CLA.
type Tag struct {
	d            Device
	state        protoState
	blockNo      byte
	nextWriteOff int

	altCLA     byte
	alt        AltCLAHandler
	glitch     func()
	deactivate func()

	buf       [maxFrameSize]byte
	readBytes int
}

// Device is the ISO-DEP transport the Tag drives.
type Device interface {
	// Sleep is called when the tag is instructed by the reader to
	// sleep (SLP_REQ or DESELECT).
	Sleep() error
	io.ReadWriter
}

func NewTag(d Device) *Tag {
	return &Tag{d: d}
}

// SetAltCLA registers a handler for command APDUs arriving under cla,
// dispatched before the fixed T4T CLA 0x00 path. glitch, if non-nil,
// is called once per dispatch decision to harden the CLA branch
// against timed fault injection. deactivate, if non-nil, is called
// instead of NAKing when an I-block's CLA matches neither registered
// protocol, dropping the RF field rather than leaving a reader spinning
// on retries it will never satisfy.
func (t *Tag) SetAltCLA(cla byte, h AltCLAHandler, glitch, deactivate func()) {
	t.altCLA = cla
	t.alt = h
	t.glitch = glitch
	t.deactivate = deactivate
}

func (t *Tag) Reset() {
	t.state = initState
	t.readBytes = 0
	t.nextWriteOff = 0
}

type protoState int

const (
	initState protoState = iota
	activeState
	ndefState
	ccFileState
	fileState
)

// ATS response (ISO/IEC 14443-4 §11.6.2).
const (
	atsTL = 5
	atsT0 = 0b1<<4 | 0b1<<5 | 0b1<<6 | fsci
	atsTA1 = 0x00
	atsTB1 = 8<<4 | 0
	atsTC1 = 0

	fsci         = 8
	maxFrameSize = 256
	ndefFileID   = 0x0001
	maxNDEFSize  = 8192
	blockSize    = 4
	readSize     = 16

	cmdSENS_REQ = 0xe0

	isodepDESELECT        = 0xc2
	isodepI_BLOCK         = 0x02
	isodepR_ACK           = 0xa2
	isodepR_NAK           = 0xb2
	isodepMAPPING_VERSION = 0x20
	isodepCLA             = CLA
	isodepREAD            = 0xb0
	isodepWRITE           = 0xd6
	// isodepWRITE_ODO is the BER-TLV "offset data object" variant of
	// UPDATE_BINARY: INS 0xD7, body is TLV-encoded rather than a
	// plain offset+length prefix.
	isodepWRITE_ODO = 0xd7

	tagODOOffset = 0x54
	tagODOData   = 0x53
)

var (
	cmdSLP_REQ = []byte{0x50, 0x00}
	ats        = []byte{atsTL, atsT0, atsTA1, atsTB1, atsTC1}

	isodepACK         = []byte{0x90, 0x00}
	isodepNAK         = []byte{0x67, 0x00}
	isodepTAG_SELECT  = []byte{0xa4, 0x04, 0x00, 0x07, 0xd2, 0x76, 0x00, 0x00, 0x85, 0x01, 0x01, 0x00}
	isodepCC_SELECT   = []byte{0xa4, 0x00, 0x0c, 0x02, 0xe1, 0x03}
	isodepFILE_SELECT = []byte{0xa4, 0x00, 0x0c, 0x02, 0x00, 0x01}
	capContainer      = make([]byte, 0, 15)
	emptyFile         = []byte{0x00, 0x00}
)

var bo = binary.BigEndian

func init() {
	capContainer = bo.AppendUint16(capContainer, uint16(cap(capContainer)))
	capContainer = append(capContainer, isodepMAPPING_VERSION)
	capContainer = bo.AppendUint16(capContainer, chunkSize)
	capContainer = bo.AppendUint16(capContainer, chunkSize)
	capContainer = append(capContainer, 0x04, 0x06)
	capContainer = bo.AppendUint16(capContainer, ndefFileID)
	capContainer = bo.AppendUint16(capContainer, maxNDEFSize)
	capContainer = append(capContainer, 0x00, 0x00)
}

// Read drives the ISO-DEP state machine against data read from d,
// returning any bytes written to the NDEF file by a completed
// UPDATE_BINARY/UPDATE_BINARY_ODO exchange.
func (t *Tag) Read(b []byte) (int, error) {
	var readErr error
	for {
		if readErr != nil {
			return 0, readErr
		}
		if t.readBytes > 0 {
			d := t.buf[:t.readBytes]
			n := copy(b, d)
			t.readBytes -= n
			copy(d, d[n:])
			return n, nil
		}
		n, err := t.d.Read(t.buf[:])
		buf := t.buf[:n]
		if err != nil {
			if err != io.EOF {
				t.Reset()
				return 0, fmt.Errorf("t4t: %w", err)
			}
			if len(buf) == 0 {
				return 0, io.EOF
			}
		}
		var readData []byte
		resp := t.buf[:0]
		switch {
		case t.state <= activeState && len(buf) == 2 && buf[0] == cmdSENS_REQ:
			t.blockNo = 0b1
			t.state = activeState
			resp = append(resp, ats...)
		case t.state <= activeState && bytes.Equal(buf, cmdSLP_REQ):
			if err := t.d.Sleep(); err != nil {
				return 0, fmt.Errorf("t4t: %w", err)
			}
			t.Reset()
			readErr = io.EOF
		case t.state >= activeState && len(buf) == 1 && buf[0] == isodepDESELECT:
			if err := t.d.Sleep(); err != nil {
				return 0, fmt.Errorf("t4t: %w", err)
			}
			t.Reset()
			readErr = io.EOF
			resp = append(resp, isodepDESELECT)
		case t.state >= activeState && len(buf) == 1 && (buf[0]&^0b1) == isodepR_NAK:
			rbno := buf[0] & 0b1
			if rbno != t.blockNo {
				resp = append(resp, isodepR_ACK|t.blockNo)
			}
		case t.state >= activeState && (buf[0]&^0b1) == isodepI_BLOCK:
			buf = buf[1:]
			t.blockNo = 1 - t.blockNo
			resp = append(resp, isodepI_BLOCK|t.blockNo)
			if len(buf) < 4 {
				break
			}
			if t.glitch != nil {
				t.glitch()
			}
			if t.alt != nil && buf[0] == t.altCLA {
				body, sw := t.alt.Handle(buf)
				resp = append(resp, body...)
				resp = append(resp, byte(sw>>8), byte(sw))
				break
			}
			if buf[0] != isodepCLA {
				if t.deactivate != nil {
					t.deactivate()
				}
				resp = resp[:0]
				break
			}
			buf = buf[1:]
			switch {
			case bytes.Equal(buf, isodepTAG_SELECT):
				t.state = ndefState
				resp = append(resp, isodepACK...)
			case t.state >= ndefState && bytes.Equal(buf, isodepCC_SELECT):
				t.state = ccFileState
				resp = append(resp, isodepACK...)
			case t.state >= ndefState && bytes.Equal(buf, isodepFILE_SELECT):
				t.state = fileState
				t.nextWriteOff = 0
				resp = append(resp, isodepACK...)
			case t.state >= ccFileState && len(buf) == 4 && buf[0] == isodepREAD:
				buf = buf[1:]
				var ok bool
				resp, ok = t.read(resp, buf)
				if !ok {
					break
				}
				resp = append(resp, isodepACK...)
			case t.state >= ccFileState && buf[0] == isodepWRITE:
				buf = buf[1:]
				readData, readErr = t.write(buf)
				if readErr != nil && readErr != io.EOF {
					break
				}
				t.readBytes = len(readData)
				resp = append(resp, isodepACK...)
			case t.state >= ccFileState && buf[0] == isodepWRITE_ODO:
				buf = buf[1:]
				readData, readErr = t.writeODO(buf)
				if readErr != nil && readErr != io.EOF {
					break
				}
				t.readBytes = len(readData)
				resp = append(resp, isodepACK...)
			}
			if len(resp) == 1 {
				resp = append(resp, isodepNAK...)
			}
		}
		if len(resp) > 0 {
			if _, err := t.d.Write(resp); err != nil {
				return 0, fmt.Errorf("t4t: %w", err)
			}
		}
		copy(t.buf[:], readData)
	}
}

func (t *Tag) read(out, in []byte) ([]byte, bool) {
	off := int(bo.Uint16(in))
	in = in[2:]
	size := int(in[0])
	var file []byte
	switch t.state {
	case ccFileState:
		file = capContainer
	case fileState:
		file = emptyFile
	}
	if off+size > len(file) {
		return out, false
	}
	out = append(out, file[off:off+size]...)
	return out, true
}

func (t *Tag) write(in []byte) ([]byte, error) {
	if len(in) < 3 {
		return nil, errors.New("t4t: write request too short")
	}
	off := int(bo.Uint16(in))
	in = in[2:]
	size := int(in[0])
	in = in[1:]
	if len(in) != size {
		return nil, errors.New("t4t: invalid size in write request")
	}
	return t.acceptWrite(off, in)
}

// writeODO parses the BER-TLV offset-data-object body of an
// UPDATE_BINARY_ODO command: a tag-0x54 offset object followed by a
// tag-0x53 discretionary data object, each length-prefixed per
// ISO/IEC 7816-4's simple-TLV rules (tag, 1-byte length, value).
func (t *Tag) writeODO(in []byte) ([]byte, error) {
	var offset int
	var data []byte
	haveOffset, haveData := false, false
	for len(in) > 0 {
		if len(in) < 2 {
			return nil, errors.New("t4t: truncated ODO TLV")
		}
		tag := in[0]
		length := int(in[1])
		in = in[2:]
		if len(in) < length {
			return nil, errors.New("t4t: truncated ODO TLV value")
		}
		value := in[:length]
		in = in[length:]
		switch tag {
		case tagODOOffset:
			if length == 0 || length > 4 {
				return nil, errors.New("t4t: invalid ODO offset length")
			}
			var padded [4]byte
			copy(padded[4-length:], value)
			offset = int(bo.Uint32(padded[:]))
			haveOffset = true
		case tagODOData:
			data = value
			haveData = true
		}
	}
	if !haveOffset || !haveData {
		return nil, errors.New("t4t: ODO body missing offset or data object")
	}
	return t.acceptWrite(offset, data)
}

// acceptWrite enforces the same contiguous-write, two-length-byte
// convention UPDATE_BINARY and UPDATE_BINARY_ODO share.
func (t *Tag) acceptWrite(off int, in []byte) ([]byte, error) {
	eof := false
	off -= 2
	if off < 0 {
		in = in[min(len(in), -off):]
		off = 0
		if t.nextWriteOff != 0 {
			eof = true
		}
		t.nextWriteOff = 0
	}
	if len(in) > 0 && off != t.nextWriteOff {
		return nil, errors.New("t4t: non-contiguous write")
	}
	t.nextWriteOff = off + len(in)
	if eof {
		return in, io.EOF
	}
	return in, nil
}
