// Package cobs implements Consistent Overhead Byte Stuffing: a
// zero-free encoding that lets the uc transport delimit frames on the
// wire with a single 0x00 byte. There is no reference Go
// implementation in the surrounding corpus to port from; this is
// written directly from the COBS algorithm, shaped to match the
// framing uc.h describes (encode, then append the 0x00 delimiter).
package cobs

import "errors"

// ErrTooLarge is returned when an input would require a code byte
// pointing past the 254-byte run limit the format allows, i.e. the
// caller handed encode a single run requiring more bookkeeping than a
// byte can express. MaxUnencodedSize already bounds this for plain
// byte slices, so callers validating against it never observe it.
var ErrTooLarge = errors.New("cobs: input exceeds maximum encodable size")

// ErrDecodeFailed is returned when the input is not validly
// COBS-encoded: a code byte points past the end of the buffer, or a
// zero byte appears where only the delimiter is expected.
var ErrDecodeFailed = errors.New("cobs: malformed frame")

// MaxUnencodedSize is the largest payload Encode accepts. COBS code
// bytes run 1..255, each covering up to 254 literal bytes before a
// new code byte is required; this bound keeps overhead bookkeeping in
// a single pass without needing multi-block code chains beyond what
// a uc frame ever carries.
const MaxUnencodedSize = 254 * 256

// Encode returns the COBS encoding of src with no 0x00 bytes among
// it. The caller is responsible for appending the 0x00 frame
// delimiter afterward; Encode itself never emits one.
func Encode(src []byte) ([]byte, error) {
	if len(src) > MaxUnencodedSize {
		return nil, ErrTooLarge
	}
	dst := make([]byte, 0, len(src)+len(src)/254+2)
	// codeIdx is the index in dst of the code byte for the run
	// currently being built; it's patched once the run ends.
	codeIdx := len(dst)
	dst = append(dst, 0)
	code := byte(1)

	flush := func() {
		dst[codeIdx] = code
		codeIdx = len(dst)
		dst = append(dst, 0)
		code = 1
	}

	for _, b := range src {
		if b == 0 {
			flush()
			continue
		}
		dst = append(dst, b)
		code++
		if code == 0xFF {
			flush()
		}
	}
	dst[codeIdx] = code
	return dst, nil
}

// Decode reverses Encode. src must not include the trailing 0x00
// frame delimiter; callers split frames on that delimiter first.
func Decode(src []byte) ([]byte, error) {
	dst := make([]byte, 0, len(src))
	i := 0
	for i < len(src) {
		code := src[i]
		if code == 0 {
			return nil, ErrDecodeFailed
		}
		runLen := int(code) - 1
		i++
		if i+runLen > len(src) {
			return nil, ErrDecodeFailed
		}
		for _, b := range src[i : i+runLen] {
			if b == 0 {
				return nil, ErrDecodeFailed
			}
		}
		dst = append(dst, src[i:i+runLen]...)
		i += runLen
		if code != 0xFF && i < len(src) {
			dst = append(dst, 0)
		}
	}
	return dst, nil
}

// EncodeFrame encodes src and appends the 0x00 delimiter, producing a
// complete on-wire frame ready to hand to the UART driver.
func EncodeFrame(src []byte) ([]byte, error) {
	enc, err := Encode(src)
	if err != nil {
		return nil, err
	}
	return append(enc, 0), nil
}

// DecodeFrame strips a trailing 0x00 delimiter, if present, and
// decodes the remainder.
func DecodeFrame(frame []byte) ([]byte, error) {
	if len(frame) > 0 && frame[len(frame)-1] == 0 {
		frame = frame[:len(frame)-1]
	}
	return Decode(frame)
}
