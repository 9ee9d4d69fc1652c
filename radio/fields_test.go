package radio

import (
	"reflect"
	"testing"
)

func TestModulationCodec(t *testing.T) {
	for _, m := range []Modulation{Modulation2FSK, ModulationGFSK, ModulationMSK} {
		for b := 0; b < 256; b++ {
			enc := EncodeModulation(byte(b), m)
			if DecodeModulation(enc) != m {
				t.Fatalf("DecodeModulation(EncodeModulation(%02X, %s)) = %s", b, m, DecodeModulation(enc))
			}
			if again := EncodeModulation(enc, m); again != enc {
				t.Fatalf("EncodeModulation not idempotent for %02X/%s", b, m)
			}
			if enc&^modFormatMask != byte(b)&^modFormatMask {
				t.Fatalf("EncodeModulation(%02X, %s) touched bits outside 6-4", b, m)
			}
		}
	}

	if got := EncodeModulation(0x02, Modulation(0x3)); got != 0x02 {
		t.Errorf("reserved format changed the byte: %02X", got)
	}
}

func TestParseModulation(t *testing.T) {
	tests := []struct {
		in   string
		want Modulation
		ok   bool
	}{
		{"2-FSK", Modulation2FSK, true},
		{"2fsk", Modulation2FSK, true},
		{" gfsk ", ModulationGFSK, true},
		{"MSK", ModulationMSK, true},
		{"OOK", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseModulation(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseModulation(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestTxPower(t *testing.T) {
	if got := EncodeTxPower(0xAA, -55); got != 0x00 {
		t.Errorf("EncodeTxPower(-55) = %02X, want 00", got)
	}
	if got := EncodeTxPower(0xAA, 1); got != 0xFF {
		t.Errorf("EncodeTxPower(1) = %02X, want FF", got)
	}
	if got := EncodeTxPower(0xAA, -3); got != 0xAA {
		t.Errorf("EncodeTxPower(-3) = %02X, want unchanged AA", got)
	}

	for _, dbm := range TxPowerLevels() {
		got, ok := DecodeTxPower(EncodeTxPower(0, dbm))
		if !ok || got != dbm {
			t.Errorf("DecodeTxPower(EncodeTxPower(%d)) = %d, %v", dbm, got, ok)
		}
	}
	if _, ok := DecodeTxPower(0x12); ok {
		t.Error("DecodeTxPower(0x12) matched a level")
	}
}

func TestTxPowerLevelsOrder(t *testing.T) {
	levels := TxPowerLevels()
	if len(levels) != 18 || levels[0] != 1 || levels[len(levels)-1] != -55 {
		t.Errorf("TxPowerLevels() = %v", levels)
	}
}

func TestToggles(t *testing.T) {
	tests := []struct {
		name   string
		encode func(byte, bool) byte
		decode func(byte) bool
		bit    byte
	}{
		{"whitening", EncodeWhitening, DecodeWhitening, 0x40},
		{"manchester", EncodeManchester, DecodeManchester, 0x08},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			on := tt.encode(0x05, true)
			if on != 0x05|tt.bit || !tt.decode(on) {
				t.Errorf("enable: got %02X", on)
			}
			off := tt.encode(0xFF, false)
			if off != 0xFF&^tt.bit || tt.decode(off) {
				t.Errorf("disable: got %02X", off)
			}
		})
	}
}

func TestPhaseTransition(t *testing.T) {
	if got := EncodePhaseTransition(0x47, 3); got != 0x43 {
		t.Errorf("EncodePhaseTransition(47, 3) = %02X, want 43", got)
	}
	if got := EncodePhaseTransition(0x47, 9); got != 0x47 {
		t.Errorf("out-of-range value changed the byte: %02X", got)
	}
	if got := DecodePhaseTransition(0x43); got != 3 {
		t.Errorf("DecodePhaseTransition(43) = %d", got)
	}
}

func TestRegisterMap(t *testing.T) {
	if NumRegisters != 39 {
		t.Errorf("NumRegisters = %d", NumRegisters)
	}

	tests := []struct {
		reg  Register
		name string
		addr uint16
		wire byte
	}{
		{SYNC1, "SYNC1", 0xDF00, 0x00},
		{FREQ2, "FREQ2", 0xDF09, 0x09},
		{MDMCFG4, "MDMCFG4", 0xDF0C, 0x0C},
		{DEVIATN, "DEVIATN", 0xDF11, 0x11},
		{TEST2, "TEST2", 0xDF23, 0x23},
		{PA_TABLE0, "PA_TABLE0", 0xDF2E, 0x2E},
		{IOCFG0, "IOCFG0", 0xDF31, 0x31},
	}
	for _, tt := range tests {
		if tt.reg.String() != tt.name || tt.reg.Address() != tt.addr || tt.reg.WireAddress() != tt.wire {
			t.Errorf("%s: got %s %04X %02X", tt.name, tt.reg, tt.reg.Address(), tt.reg.WireAddress())
		}
		if r, ok := LookupRegister(tt.name); !ok || r != tt.reg {
			t.Errorf("LookupRegister(%q) = %v, %v", tt.name, r, ok)
		}
		if r, ok := LookupWireAddress(tt.wire); !ok || r != tt.reg {
			t.Errorf("LookupWireAddress(%02X) = %v, %v", tt.wire, r, ok)
		}
	}

	if _, ok := LookupRegister("NOPE"); ok {
		t.Error("LookupRegister(NOPE) succeeded")
	}
	if _, ok := LookupWireAddress(0x20); ok {
		t.Error("LookupWireAddress(20) matched an unmapped address")
	}
	if Register(NumRegisters).Valid() {
		t.Error("out-of-range register reported valid")
	}
}

func TestRegistersDiff(t *testing.T) {
	a := ResetRegisters()
	b := a
	b.Set(CHANNR, 7)
	b.Set(PA_TABLE0, 0xFF)

	want := []Register{CHANNR, PA_TABLE0}
	if got := a.Diff(b); !reflect.DeepEqual(got, want) {
		t.Errorf("Diff() = %v, want %v", got, want)
	}
	if got := a.Diff(a); got != nil {
		t.Errorf("Diff(self) = %v, want nil", got)
	}

	m := b.Map()
	if len(m) != NumRegisters || m["CHANNR"] != 7 || m["FREQ2"] != 0x5E {
		t.Errorf("Map() = %v", m)
	}
}
