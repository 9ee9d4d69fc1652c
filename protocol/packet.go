// Package protocol implements the command packets exchanged with the radio
// bridge and the frame format that carries them over the link.
//
// Serialized packet (wire version 1):
//
//	[version=0x01] [command id] [payload length] [payload ...]
//
// Frame:
//
//	[0x45] [serialized packet ...] [CRC-8 over marker and packet]
package protocol

import (
	"encoding"
	"fmt"
)

// CommandID identifies a bridge command; one byte on the wire
type CommandID uint8

const (
	Ping CommandID = iota
	WriteRegister
	ReadRegister
	PerformAction
)

var commandNames = map[CommandID]string{
	Ping:          "Ping",
	WriteRegister: "WriteRegister",
	ReadRegister:  "ReadRegister",
	PerformAction: "PerformAction",
}

func (c CommandID) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("CommandID(%d)", uint8(c))
}

// Valid reports whether c is a known command
func (c CommandID) Valid() bool {
	_, ok := commandNames[c]
	return ok
}

// Wire layout constants
const (
	Version        = 0x01
	MaxPayloadSize = 0xFF
	headerSize     = 3 // version, command, length
)

// SerializationError reports a packet or payload that cannot be encoded
type SerializationError struct {
	What string
	Err  error
}

func (e *SerializationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("serialize %s: %v", e.What, e.Err)
	}
	return "serialize " + e.What
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}

// Packet is one command with its serialized payload
type Packet struct {
	Command CommandID
	Payload []byte
}

// NewPacket serializes payload and wraps it for command
func NewPacket(command CommandID, payload encoding.BinaryMarshaler) (Packet, error) {
	p := Packet{Command: command}
	if payload == nil {
		return p, nil
	}
	data, err := payload.MarshalBinary()
	if err != nil {
		return Packet{}, &SerializationError{What: command.String() + " payload", Err: err}
	}
	p.Payload = data
	return p, nil
}

// MarshalBinary encodes the packet in wire version 1 layout
func (p Packet) MarshalBinary() ([]byte, error) {
	if !p.Command.Valid() {
		return nil, &SerializationError{What: "packet", Err: fmt.Errorf("unknown command id %d", uint8(p.Command))}
	}
	if len(p.Payload) > MaxPayloadSize {
		return nil, &SerializationError{What: "packet", Err: fmt.Errorf("payload of %d bytes exceeds %d", len(p.Payload), MaxPayloadSize)}
	}

	buf := make([]byte, 0, headerSize+len(p.Payload))
	buf = append(buf, Version, byte(p.Command), byte(len(p.Payload)))
	return append(buf, p.Payload...), nil
}

// UnmarshalBinary decodes a wire version 1 packet
func (p *Packet) UnmarshalBinary(data []byte) error {
	if len(data) < headerSize {
		return fmt.Errorf("packet too short: %d bytes", len(data))
	}
	if data[0] != Version {
		return fmt.Errorf("unsupported packet version 0x%02X", data[0])
	}
	cmd := CommandID(data[1])
	if !cmd.Valid() {
		return fmt.Errorf("unknown command id %d", data[1])
	}
	if headerSize+int(data[2]) != len(data) {
		return fmt.Errorf("payload length %d does not match %d remaining bytes", data[2], len(data)-headerSize)
	}

	p.Command = cmd
	p.Payload = append([]byte(nil), data[headerSize:]...)
	return nil
}

// WriteRegisterFrame is the WriteRegister payload. Address is the register's
// wire identifier (low byte of its XDATA address).
type WriteRegisterFrame struct {
	Address byte
	Value   byte
}

func (f WriteRegisterFrame) MarshalBinary() ([]byte, error) {
	return []byte{f.Address, f.Value}, nil
}

func (f *WriteRegisterFrame) UnmarshalBinary(data []byte) error {
	if len(data) != 2 {
		return fmt.Errorf("write register payload must be 2 bytes, got %d", len(data))
	}
	f.Address, f.Value = data[0], data[1]
	return nil
}

// ReadRegisterFrame is the ReadRegister payload
type ReadRegisterFrame struct {
	Address byte
}

func (f ReadRegisterFrame) MarshalBinary() ([]byte, error) {
	return []byte{f.Address}, nil
}

func (f *ReadRegisterFrame) UnmarshalBinary(data []byte) error {
	if len(data) != 1 {
		return fmt.Errorf("read register payload must be 1 byte, got %d", len(data))
	}
	f.Address = data[0]
	return nil
}

// Action is a radio strobe executed by PerformAction (RFST values)
type Action uint8

const (
	ActionSFSTXON Action = 0x00 // enable and calibrate synthesizer
	ActionSCAL    Action = 0x01 // calibrate
	ActionSRX     Action = 0x02 // enable RX
	ActionSTX     Action = 0x03 // enable TX
	ActionSIDLE   Action = 0x04 // idle
)

var actionNames = map[Action]string{
	ActionSFSTXON: "sfstxon",
	ActionSCAL:    "scal",
	ActionSRX:     "srx",
	ActionSTX:     "stx",
	ActionSIDLE:   "sidle",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("Action(%d)", uint8(a))
}

// ParseAction maps a strobe name to its value
func ParseAction(name string) (Action, bool) {
	for a, n := range actionNames {
		if n == name {
			return a, true
		}
	}
	return 0, false
}

// ActionFrame is the PerformAction payload
type ActionFrame struct {
	Action Action
}

func (f ActionFrame) MarshalBinary() ([]byte, error) {
	if _, ok := actionNames[f.Action]; !ok {
		return nil, fmt.Errorf("unknown action %d", uint8(f.Action))
	}
	return []byte{byte(f.Action)}, nil
}
