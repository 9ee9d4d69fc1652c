package radio

import (
	"sort"
	"strings"
)

// Modulation is the MOD_FORMAT field of MDMCFG2 (bits 6-4)
type Modulation byte

const (
	Modulation2FSK Modulation = 0x0
	ModulationGFSK Modulation = 0x1
	ModulationMSK  Modulation = 0x7
)

// Bit masks
const (
	modFormatMask  = 0x70 // MDMCFG2 bits 6-4
	manchesterBit  = 0x08 // MDMCFG2 bit 3
	whiteDataBit   = 0x40 // PKTCTRL0 bit 6
	drateExpMask   = 0x0F // MDMCFG4 bits 3-0
	chanBWMask     = 0xF0 // MDMCFG4 bits 7-4
	chanSpcExpMask = 0x03 // MDMCFG1 bits 1-0
	deviationMask  = 0x77 // DEVIATN bits 6-4 and 2-0
	phaseMask      = 0x07 // DEVIATN bits 2-0
)

var modulationNames = map[Modulation]string{
	Modulation2FSK: "2-FSK",
	ModulationGFSK: "GFSK",
	ModulationMSK:  "MSK",
}

func (m Modulation) String() string {
	if name, ok := modulationNames[m]; ok {
		return name
	}
	return "reserved"
}

// ParseModulation maps a UI name ("2-FSK", "GFSK", "MSK") to its field value
func ParseModulation(name string) (Modulation, bool) {
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "2FSK" || name == "FSK" {
		name = "2-FSK"
	}
	for m, n := range modulationNames {
		if n == name {
			return m, true
		}
	}
	return 0, false
}

// EncodeModulation clears MDMCFG2 bits 6-4 and sets the modulation format.
// Unrecognized formats leave the byte unchanged.
func EncodeModulation(mdmcfg2 byte, m Modulation) byte {
	if _, ok := modulationNames[m]; !ok {
		return mdmcfg2
	}
	return mdmcfg2&^modFormatMask | byte(m)<<4
}

// DecodeModulation extracts the modulation format from MDMCFG2
func DecodeModulation(mdmcfg2 byte) Modulation {
	return Modulation((mdmcfg2 & modFormatMask) >> 4)
}

// PA_TABLE0 values for the permitted output power levels (dBm)
var txPowerTable = map[int]byte{
	1:   0xFF,
	0:   0xFE,
	-2:  0xBB,
	-4:  0xA9,
	-6:  0x7F,
	-8:  0x6E,
	-10: 0x97,
	-12: 0xC6,
	-14: 0x8D,
	-16: 0x55,
	-18: 0x93,
	-20: 0x46,
	-22: 0x81,
	-24: 0x84,
	-26: 0xC0,
	-28: 0x44,
	-30: 0x50,
	-55: 0x00, // PA off
}

// TxPowerLevels lists the permitted TX power levels, highest first
func TxPowerLevels() []int {
	levels := make([]int, 0, len(txPowerTable))
	for dbm := range txPowerTable {
		levels = append(levels, dbm)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(levels)))
	return levels
}

// EncodeTxPower returns the PA_TABLE0 value for a power level. Levels not in
// the table leave the current byte unchanged.
func EncodeTxPower(current byte, dbm int) byte {
	if v, ok := txPowerTable[dbm]; ok {
		return v
	}
	return current
}

// DecodeTxPower maps a PA_TABLE0 byte back to its level
func DecodeTxPower(pa byte) (int, bool) {
	for dbm, v := range txPowerTable {
		if v == pa {
			return dbm, true
		}
	}
	return 0, false
}

func setBit(b, mask byte, on bool) byte {
	if on {
		return b | mask
	}
	return b &^ mask
}

// EncodeWhitening sets or clears WHITE_DATA in PKTCTRL0
func EncodeWhitening(pktctrl0 byte, on bool) byte {
	return setBit(pktctrl0, whiteDataBit, on)
}

// DecodeWhitening reports WHITE_DATA
func DecodeWhitening(pktctrl0 byte) bool {
	return pktctrl0&whiteDataBit != 0
}

// EncodeManchester sets or clears MANCHESTER_EN in MDMCFG2
func EncodeManchester(mdmcfg2 byte, on bool) byte {
	return setBit(mdmcfg2, manchesterBit, on)
}

// DecodeManchester reports MANCHESTER_EN
func DecodeManchester(mdmcfg2 byte) bool {
	return mdmcfg2&manchesterBit != 0
}

// EncodePhaseTransition writes the MSK phase transition time (DEVIATN bits
// 2-0). Values outside 0-7 leave the byte unchanged.
func EncodePhaseTransition(deviatn byte, value int) byte {
	if value < 0 || value > 7 {
		return deviatn
	}
	return deviatn&^phaseMask | byte(value)
}

// DecodePhaseTransition reads DEVIATN bits 2-0
func DecodePhaseTransition(deviatn byte) int {
	return int(deviatn & phaseMask)
}
