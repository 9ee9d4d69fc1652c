package radio

import (
	"errors"
	"math"
	"testing"
)

func TestEncodeFrequency(t *testing.T) {
	tests := []struct {
		mhz              float64
		want2, want1, w0 byte
	}{
		{2464.0, 0x5E, 0xC4, 0xEC},
		{2400.0, 0x5C, 0x4E, 0xC4},
	}
	for _, tt := range tests {
		f2, f1, f0, err := EncodeFrequency(tt.mhz)
		if err != nil {
			t.Fatalf("EncodeFrequency(%g) error = %v", tt.mhz, err)
		}
		if f2 != tt.want2 || f1 != tt.want1 || f0 != tt.w0 {
			t.Errorf("EncodeFrequency(%g) = %02X %02X %02X, want %02X %02X %02X",
				tt.mhz, f2, f1, f0, tt.want2, tt.want1, tt.w0)
		}
	}
}

func TestFrequencyWithinOneStep(t *testing.T) {
	for mhz := 2400.0; mhz <= 2483.5; mhz += 0.7331 {
		f2, f1, f0, err := EncodeFrequency(mhz)
		if err != nil {
			t.Fatalf("EncodeFrequency(%g) error = %v", mhz, err)
		}
		got := DecodeFrequency(f2, f1, f0)
		if d := mhz - got; d < 0 || d >= FrequencyStep() {
			t.Errorf("DecodeFrequency(EncodeFrequency(%g)) = %g, off by %g", mhz, got, d)
		}
	}
}

func TestEncodeFrequencyOverflow(t *testing.T) {
	for _, mhz := range []float64{-1, 7000, math.NaN()} {
		if _, _, _, err := EncodeFrequency(mhz); !errors.Is(err, ErrEncodingOverflow) {
			t.Errorf("EncodeFrequency(%g) error = %v, want ErrEncodingOverflow", mhz, err)
		}
	}
}

func TestEncodeDataRate(t *testing.T) {
	tests := []struct {
		kbaud    float64
		exp, man byte
	}{
		{115.051, 0x0C, 0x22},
		{250, 0x0D, 0x3B},
		{38.4, 0x0A, 0x83},
		{0.025, 0x00, 0x02},
		{1622, 0x0F, 0xFF},
	}
	for _, tt := range tests {
		exp, mant, err := EncodeDataRate(tt.kbaud)
		if err != nil {
			t.Fatalf("EncodeDataRate(%g) error = %v", tt.kbaud, err)
		}
		if exp != tt.exp || mant != tt.man {
			t.Errorf("EncodeDataRate(%g) = %X/%02X, want %X/%02X", tt.kbaud, exp, mant, tt.exp, tt.man)
		}
	}
}

func TestDataRateIdempotent(t *testing.T) {
	for e := 0; e <= dataRateMaxExp; e++ {
		for m := 0; m < 256; m++ {
			kbaud := DecodeDataRate(byte(e), byte(m))
			exp, mant, err := EncodeDataRate(kbaud)
			if err != nil {
				t.Fatalf("EncodeDataRate(%g) error = %v", kbaud, err)
			}
			if int(exp) != e || int(mant) != m {
				t.Fatalf("EncodeDataRate(DecodeDataRate(%X, %02X)) = %X/%02X", e, m, exp, mant)
			}
		}
	}
}

func TestDecodeDataRate(t *testing.T) {
	got := DecodeDataRate(0x0C, 0x22)
	if math.Abs(got-115.05126953125) > 1e-9 {
		t.Errorf("DecodeDataRate(C, 22) = %g", got)
	}
}

func TestEncodeDeviation(t *testing.T) {
	tests := []struct {
		khz  float64
		want byte
	}{
		{47.607, 0x47},
		{1.6, 0x00},
		{381, 0x77},
		{100, 0x60},
	}
	for _, tt := range tests {
		got, err := EncodeDeviation(tt.khz)
		if err != nil {
			t.Fatalf("EncodeDeviation(%g) error = %v", tt.khz, err)
		}
		if got != tt.want {
			t.Errorf("EncodeDeviation(%g) = %02X, want %02X", tt.khz, got, tt.want)
		}
	}
}

func TestDeviationIdempotent(t *testing.T) {
	for e := 0; e <= deviationMaxExp; e++ {
		for m := 0; m < 8; m++ {
			b := byte(e)<<4 | byte(m)
			got, err := EncodeDeviation(DecodeDeviation(b))
			if err != nil {
				t.Fatalf("EncodeDeviation(DecodeDeviation(%02X)) error = %v", b, err)
			}
			if got != b {
				t.Errorf("EncodeDeviation(DecodeDeviation(%02X)) = %02X", b, got)
			}
		}
	}
}

func TestDecodeDeviationIgnoresOtherBits(t *testing.T) {
	if DecodeDeviation(0x47) != DecodeDeviation(0xCF) {
		t.Errorf("bits 7 and 3 changed the decoded deviation")
	}
}

func TestEncodeChannelSpacing(t *testing.T) {
	tests := []struct {
		khz      float64
		exp, man byte
	}{
		{199.951, 0x02, 0xF8},
		{25.4, 0x00, 0x00},
		{405.46, 0x03, 0xFF},
	}
	for _, tt := range tests {
		exp, mant, err := EncodeChannelSpacing(tt.khz)
		if err != nil {
			t.Fatalf("EncodeChannelSpacing(%g) error = %v", tt.khz, err)
		}
		if exp != tt.exp || mant != tt.man {
			t.Errorf("EncodeChannelSpacing(%g) = %X/%02X, want %X/%02X", tt.khz, exp, mant, tt.exp, tt.man)
		}
	}
}

func TestSplitMantExpRejectsDegenerateInput(t *testing.T) {
	for _, raw := range []float64{0, -5, math.NaN(), math.Inf(1), 100} {
		if _, _, err := splitMantExp(raw, 256, 15); !errors.Is(err, ErrEncodingOverflow) {
			t.Errorf("splitMantExp(%g) error = %v, want ErrEncodingOverflow", raw, err)
		}
	}
	if _, _, err := splitMantExp(math.Ldexp(300, 20), 256, 15); !errors.Is(err, ErrEncodingOverflow) {
		t.Errorf("exponent above max: error = %v, want ErrEncodingOverflow", err)
	}
}

func TestBandwidth(t *testing.T) {
	tests := []struct {
		khz  float64
		want byte
	}{
		{203, 0x08},
		{203.125, 0x08},
		{812.5, 0x00},
		{58.03, 0x0F},
		{100, 0x0C},
	}
	for _, tt := range tests {
		got, err := EncodeBandwidth(tt.khz)
		if err != nil {
			t.Fatalf("EncodeBandwidth(%g) error = %v", tt.khz, err)
		}
		if got != tt.want {
			t.Errorf("EncodeBandwidth(%g) = %X, want %X", tt.khz, got, tt.want)
		}
		if DecodeBandwidth(got) < tt.khz {
			t.Errorf("EncodeBandwidth(%g) picked a narrower filter: %g", tt.khz, DecodeBandwidth(got))
		}
	}

	if _, err := EncodeBandwidth(900); !errors.Is(err, ErrEncodingOverflow) {
		t.Errorf("EncodeBandwidth(900) error = %v, want ErrEncodingOverflow", err)
	}
}
