package radio

import (
	"fmt"
	"strings"
)

// Register identifies one CC2510 radio configuration register
type Register uint8

// CC2510 radio registers, in XDATA address order
const (
	SYNC1 Register = iota
	SYNC0
	PKTLEN
	PKTCTRL1
	PKTCTRL0
	ADDR
	CHANNR
	FSCTRL1
	FSCTRL0
	FREQ2
	FREQ1
	FREQ0
	MDMCFG4
	MDMCFG3
	MDMCFG2
	MDMCFG1
	MDMCFG0
	DEVIATN
	MCSM2
	MCSM1
	MCSM0
	FOCCFG
	BSCFG
	AGCCTRL2
	AGCCTRL1
	AGCCTRL0
	FREND1
	FREND0
	FSCAL3
	FSCAL2
	FSCAL1
	FSCAL0
	TEST2
	TEST1
	TEST0
	PA_TABLE0
	IOCFG2
	IOCFG1
	IOCFG0

	NumRegisters int = iota
)

type registerInfo struct {
	name        string
	address     uint16
	reset       byte
	description string
}

// Datasheet table: XDATA address and power-on reset value
var registerTable = [NumRegisters]registerInfo{
	SYNC1:     {"SYNC1", 0xDF00, 0xD3, "Sync word, high byte"},
	SYNC0:     {"SYNC0", 0xDF01, 0x91, "Sync word, low byte"},
	PKTLEN:    {"PKTLEN", 0xDF02, 0xFF, "Packet length"},
	PKTCTRL1:  {"PKTCTRL1", 0xDF03, 0x04, "Packet automation control 1"},
	PKTCTRL0:  {"PKTCTRL0", 0xDF04, 0x45, "Packet automation control 0 (whitening, CRC, length mode)"},
	ADDR:      {"ADDR", 0xDF05, 0x00, "Device address"},
	CHANNR:    {"CHANNR", 0xDF06, 0x00, "Channel number"},
	FSCTRL1:   {"FSCTRL1", 0xDF07, 0x0F, "Frequency synthesizer control 1 (IF)"},
	FSCTRL0:   {"FSCTRL0", 0xDF08, 0x00, "Frequency synthesizer control 0 (offset)"},
	FREQ2:     {"FREQ2", 0xDF09, 0x5E, "Frequency control word, high byte"},
	FREQ1:     {"FREQ1", 0xDF0A, 0xC4, "Frequency control word, middle byte"},
	FREQ0:     {"FREQ0", 0xDF0B, 0xEC, "Frequency control word, low byte"},
	MDMCFG4:   {"MDMCFG4", 0xDF0C, 0x8C, "Modem config 4 (channel BW, data rate exponent)"},
	MDMCFG3:   {"MDMCFG3", 0xDF0D, 0x22, "Modem config 3 (data rate mantissa)"},
	MDMCFG2:   {"MDMCFG2", 0xDF0E, 0x02, "Modem config 2 (modulation, Manchester, sync mode)"},
	MDMCFG1:   {"MDMCFG1", 0xDF0F, 0x22, "Modem config 1 (FEC, preamble, spacing exponent)"},
	MDMCFG0:   {"MDMCFG0", 0xDF10, 0xF8, "Modem config 0 (channel spacing mantissa)"},
	DEVIATN:   {"DEVIATN", 0xDF11, 0x47, "Modem deviation setting"},
	MCSM2:     {"MCSM2", 0xDF12, 0x07, "Main radio control state machine 2"},
	MCSM1:     {"MCSM1", 0xDF13, 0x30, "Main radio control state machine 1"},
	MCSM0:     {"MCSM0", 0xDF14, 0x04, "Main radio control state machine 0"},
	FOCCFG:    {"FOCCFG", 0xDF15, 0x36, "Frequency offset compensation"},
	BSCFG:     {"BSCFG", 0xDF16, 0x6C, "Bit synchronization"},
	AGCCTRL2:  {"AGCCTRL2", 0xDF17, 0x03, "AGC control 2"},
	AGCCTRL1:  {"AGCCTRL1", 0xDF18, 0x40, "AGC control 1"},
	AGCCTRL0:  {"AGCCTRL0", 0xDF19, 0x91, "AGC control 0"},
	FREND1:    {"FREND1", 0xDF1A, 0x56, "Front end RX configuration"},
	FREND0:    {"FREND0", 0xDF1B, 0x10, "Front end TX configuration"},
	FSCAL3:    {"FSCAL3", 0xDF1C, 0xA9, "Frequency synthesizer calibration 3"},
	FSCAL2:    {"FSCAL2", 0xDF1D, 0x0A, "Frequency synthesizer calibration 2"},
	FSCAL1:    {"FSCAL1", 0xDF1E, 0x20, "Frequency synthesizer calibration 1"},
	FSCAL0:    {"FSCAL0", 0xDF1F, 0x0D, "Frequency synthesizer calibration 0"},
	TEST2:     {"TEST2", 0xDF23, 0x88, "Various test settings 2"},
	TEST1:     {"TEST1", 0xDF24, 0x31, "Various test settings 1"},
	TEST0:     {"TEST0", 0xDF25, 0x0B, "Various test settings 0"},
	PA_TABLE0: {"PA_TABLE0", 0xDF2E, 0x00, "PA power setting 0"},
	IOCFG2:    {"IOCFG2", 0xDF2F, 0x00, "GDO2 output pin configuration"},
	IOCFG1:    {"IOCFG1", 0xDF30, 0x00, "GDO1 output pin configuration"},
	IOCFG0:    {"IOCFG0", 0xDF31, 0x00, "GDO0 output pin configuration"},
}

// String returns the datasheet register name
func (r Register) String() string {
	if !r.Valid() {
		return fmt.Sprintf("Register(%d)", uint8(r))
	}
	return registerTable[r].name
}

// Valid reports whether r names a mapped register
func (r Register) Valid() bool {
	return int(r) < NumRegisters
}

// Address returns the 16-bit XDATA hardware address of the register
func (r Register) Address() uint16 {
	return registerTable[r].address
}

// WireAddress is the register identifier carried in command payloads: the
// low byte of the XDATA address. Every mapped register lives in the 0xDFxx
// page, so the low byte is unique.
func (r Register) WireAddress() byte {
	return byte(registerTable[r].address & 0xFF)
}

// Description returns a short human-readable description for UI listings
func (r Register) Description() string {
	return registerTable[r].description
}

// ResetValue returns the register's power-on reset value
func (r Register) ResetValue() byte {
	return registerTable[r].reset
}

// LookupRegister finds a register by datasheet name (case-insensitive)
func LookupRegister(name string) (Register, bool) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for i := 0; i < NumRegisters; i++ {
		if registerTable[i].name == name {
			return Register(i), true
		}
	}
	return 0, false
}

// LookupWireAddress finds the register whose wire address is addr
func LookupWireAddress(addr byte) (Register, bool) {
	for i := 0; i < NumRegisters; i++ {
		if Register(i).WireAddress() == addr {
			return Register(i), true
		}
	}
	return 0, false
}

// AllRegisters returns every mapped register in address order
func AllRegisters() []Register {
	regs := make([]Register, NumRegisters)
	for i := range regs {
		regs[i] = Register(i)
	}
	return regs
}

// Registers holds the current contents of every mapped register. Each entry
// is the literal byte the chip holds after a successful write.
type Registers [NumRegisters]byte

// ResetRegisters returns the power-on reset profile
func ResetRegisters() Registers {
	var regs Registers
	for i := range regs {
		regs[i] = registerTable[i].reset
	}
	return regs
}

// Get returns the value of a single register
func (r *Registers) Get(reg Register) byte {
	return r[reg]
}

// Set stores a value in a single register
func (r *Registers) Set(reg Register, value byte) {
	r[reg] = value
}

// Diff lists the registers whose values differ between r and other
func (r *Registers) Diff(other Registers) []Register {
	var changed []Register
	for i := range r {
		if r[i] != other[i] {
			changed = append(changed, Register(i))
		}
	}
	return changed
}

// Map returns the register contents keyed by register name
func (r *Registers) Map() map[string]uint8 {
	m := make(map[string]uint8, NumRegisters)
	for i := range r {
		m[registerTable[i].name] = r[i]
	}
	return m
}
