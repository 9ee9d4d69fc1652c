package protocol

import (
	"errors"
	"fmt"
)

// StartOfFrame marks the first byte of every frame
const StartOfFrame = 0x45

// FrameOverhead is the number of bytes a frame adds to a serialized packet
const FrameOverhead = 2

var (
	ErrBadMarker   = errors.New("frame does not start with 0x45")
	ErrBadChecksum = errors.New("frame checksum mismatch")
)

// EncodeFrame serializes p and wraps it with the start marker and CRC trailer
func EncodeFrame(p Packet) ([]byte, error) {
	body, err := p.MarshalBinary()
	if err != nil {
		return nil, err
	}

	frame := make([]byte, 0, len(body)+FrameOverhead)
	frame = append(frame, StartOfFrame)
	frame = append(frame, body...)
	return append(frame, CRC8(frame)), nil
}

// DecodeFrame validates marker, checksum and packet layout of one complete frame
func DecodeFrame(frame []byte) (Packet, error) {
	if len(frame) < headerSize+FrameOverhead {
		return Packet{}, fmt.Errorf("frame too short: %d bytes", len(frame))
	}
	if frame[0] != StartOfFrame {
		return Packet{}, ErrBadMarker
	}

	last := len(frame) - 1
	if sum := CRC8(frame[:last]); sum != frame[last] {
		return Packet{}, fmt.Errorf("%w: got 0x%02X, want 0x%02X", ErrBadChecksum, frame[last], sum)
	}

	var p Packet
	if err := p.UnmarshalBinary(frame[1:last]); err != nil {
		return Packet{}, err
	}
	return p, nil
}
