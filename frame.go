// Copyright (C) 2026 1Seven3Seven. All Rights Reserved.

package netlib

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// DefaultHeaderWidth is the length-prefix width used when a config does not
// specify one. A 4-byte header admits payloads up to 2^32-1 bytes.
const DefaultHeaderWidth = 4

// DefaultMaxPayload is the safety ceiling on a single frame's payload when a
// config does not specify one.
const DefaultMaxPayload = 1 << 24 // 16 MiB

// A Codec encodes text messages into length-prefixed binary frames and
// decodes frames back into messages.
//
// The wire format of a frame is a fixed-width big-endian payload length
// followed by exactly that many bytes of UTF-8 text. The header width is
// fixed per codec and must match between sender and receiver; it is a
// deployment agreement, not negotiated on the wire.
type Codec struct {
	HeaderWidth int // bytes of length prefix, 1..8
	MaxPayload  int // safety ceiling on payload length, in bytes
}

// headerMax reports the largest payload length representable in w header
// bytes. For w >= 8 every int payload length is representable.
func headerMax(w int) uint64 {
	if w >= 8 {
		return 1<<64 - 1
	}
	return 1<<(8*w) - 1
}

// Encode encodes msg into a single frame.
//
// It reports a *FrameSizeError if the UTF-8 encoding of msg does not fit in
// the codec's header width, or exceeds its safety ceiling.
func (c Codec) Encode(msg string) ([]byte, error) {
	n := len(msg)
	if uint64(n) > headerMax(c.HeaderWidth) {
		return nil, &FrameSizeError{Size: n, Limit: int(headerMax(c.HeaderWidth)), Err: ErrFrameTooLarge}
	}
	if n > c.MaxPayload {
		return nil, &FrameSizeError{Size: n, Limit: c.MaxPayload, Err: ErrFrameTooLarge}
	}

	buf := make([]byte, c.HeaderWidth+n)
	putUint(buf[:c.HeaderWidth], uint64(n))
	copy(buf[c.HeaderWidth:], msg)
	return buf, nil
}

// Decode reads one complete frame from r and returns its payload.
//
// A single read on a stream socket may return fewer bytes than requested, so
// Decode reads until the full header and payload counts are satisfied. If
// the stream ends before a complete frame is read, Decode reports
// ErrConnectionClosed. A declared payload length above the safety ceiling is
// a *FrameSizeError; the caller is expected to drop the connection rather
// than resynchronize.
func (c Codec) Decode(r *bufio.Reader) (string, error) {
	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:c.HeaderWidth]); err != nil {
		return "", decodeErr("header", err)
	}
	n := getUint(hdr[:c.HeaderWidth])
	if n > uint64(c.MaxPayload) {
		return "", &FrameSizeError{Size: int(n), Limit: c.MaxPayload, Err: ErrFrameTooLarge}
	}
	if n == 0 {
		return "", nil
	}

	payload := make([]byte, int(n))
	if _, err := io.ReadFull(r, payload); err != nil {
		return "", decodeErr("payload", err)
	}
	return string(payload), nil
}

// decodeErr maps an end-of-stream during a frame read to ErrConnectionClosed
// and passes every other error through with context.
func decodeErr(part string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("short %s: %w", part, ErrConnectionClosed)
	}
	return fmt.Errorf("read %s: %w", part, err)
}

func putUint(buf []byte, v uint64) {
	for i := len(buf) - 1; i >= 0; i-- {
		buf[i] = byte(v)
		v >>= 8
	}
}

func getUint(buf []byte) uint64 {
	if len(buf) == 8 {
		return binary.BigEndian.Uint64(buf)
	}
	var v uint64
	for _, b := range buf {
		v = v<<8 | uint64(b)
	}
	return v
}
