package radio

import (
	"fmt"
	"math"
)

// CrystalMHz is the reference crystal of the CC2510
const CrystalMHz = 26.0

// Scale factors convert a physical unit to chip ticks: 2^N / crystal, with
// the crystal expressed in the quantity's unit.
var (
	frequencyScale = math.Ldexp(1, 16) / CrystalMHz          // ticks per MHz
	deviationScale = math.Ldexp(1, 17) / (CrystalMHz * 1000) // ticks per kHz
	dataRateScale  = math.Ldexp(1, 28) / (CrystalMHz * 1000) // ticks per kBaud
	spacingScale   = math.Ldexp(1, 18) / (CrystalMHz * 1000) // ticks per kHz
)

// Field widths
const (
	frequencyMax = 1<<24 - 1

	deviationMantBase = 8
	deviationMaxExp   = 7

	dataRateMantBase = 256
	dataRateMaxExp   = 15

	spacingMantBase = 256
	spacingMaxExp   = 3

	log2Slack = 1e-9
)

// FrequencyStep is one frequency quantization step in MHz
func FrequencyStep() float64 {
	return 1 / frequencyScale
}

// EncodeFrequency converts a carrier frequency in MHz to the 24-bit FREQ
// word split across FREQ2 (most significant), FREQ1 and FREQ0.
func EncodeFrequency(mhz float64) (freq2, freq1, freq0 byte, err error) {
	word := math.Floor(mhz * frequencyScale)
	if math.IsNaN(word) || word < 0 || word > frequencyMax {
		return 0, 0, 0, fmt.Errorf("%w: frequency word %.0f exceeds 24 bits", ErrEncodingOverflow, word)
	}

	w := uint32(word)
	return byte(w >> 16), byte(w >> 8), byte(w), nil
}

// DecodeFrequency converts FREQ2/FREQ1/FREQ0 back to MHz
func DecodeFrequency(freq2, freq1, freq0 byte) float64 {
	w := uint32(freq2)<<16 | uint32(freq1)<<8 | uint32(freq0)
	return float64(w) / frequencyScale
}

// splitMantExp expresses raw as (base + m) * 2^e with 0 <= m < base.
// The exponent comes from floor(log2(raw/base)); non-positive ratios have no
// logarithm and are rejected, as is any exponent outside [0, maxExp].
func splitMantExp(raw, base float64, maxExp int) (exp, mant int, err error) {
	ratio := raw / base
	if math.IsNaN(ratio) || math.IsInf(ratio, 0) || ratio <= 0 {
		return 0, 0, fmt.Errorf("%w: cannot take log2 of %g", ErrEncodingOverflow, ratio)
	}

	// Tolerate float error just below an exact power of two
	exp = int(math.Floor(math.Log2(ratio) + log2Slack))
	if exp < 0 {
		return 0, 0, fmt.Errorf("%w: %g is below the smallest representable value", ErrEncodingOverflow, raw)
	}

	mant = int(math.Round(raw/math.Ldexp(1, exp))) - int(base)
	// Rounding up to 2*base carries into the exponent
	if mant >= int(base) {
		mant -= int(base)
		exp++
	}
	if mant < 0 {
		mant = 0
	}
	if exp > maxExp {
		return 0, 0, fmt.Errorf("%w: exponent %d exceeds %d", ErrEncodingOverflow, exp, maxExp)
	}
	return exp, mant, nil
}

// EncodeDeviation returns the DEVIATN byte for a deviation in kHz:
// bits 6-4 exponent, bits 2-0 mantissa.
func EncodeDeviation(khz float64) (byte, error) {
	exp, mant, err := splitMantExp(khz*deviationScale, deviationMantBase, deviationMaxExp)
	if err != nil {
		return 0, err
	}
	return byte(exp)<<4 | byte(mant), nil
}

// DecodeDeviation converts a DEVIATN byte to kHz
func DecodeDeviation(b byte) float64 {
	exp := (b >> 4) & 0x07
	mant := b & 0x07
	raw := math.Ldexp(float64(deviationMantBase+int(mant)), int(exp))
	return raw / deviationScale
}

// EncodeDataRate returns the DRATE_E nibble (MDMCFG4 bits 3-0) and the
// DRATE_M byte (MDMCFG3) for a symbol rate in kBaud.
func EncodeDataRate(kbaud float64) (exp, mant byte, err error) {
	e, m, err := splitMantExp(kbaud*dataRateScale, dataRateMantBase, dataRateMaxExp)
	if err != nil {
		return 0, 0, err
	}
	return byte(e), byte(m), nil
}

// DecodeDataRate converts DRATE_E/DRATE_M to kBaud
func DecodeDataRate(exp, mant byte) float64 {
	raw := math.Ldexp(float64(dataRateMantBase+int(mant)), int(exp&0x0F))
	return raw / dataRateScale
}

// EncodeChannelSpacing returns CHANSPC_E (MDMCFG1 bits 1-0) and CHANSPC_M
// (MDMCFG0) for a channel spacing in kHz.
func EncodeChannelSpacing(khz float64) (exp, mant byte, err error) {
	e, m, err := splitMantExp(khz*spacingScale, spacingMantBase, spacingMaxExp)
	if err != nil {
		return 0, 0, err
	}
	return byte(e), byte(m), nil
}

// DecodeChannelSpacing converts CHANSPC_E/CHANSPC_M to kHz
func DecodeChannelSpacing(exp, mant byte) float64 {
	raw := math.Ldexp(float64(spacingMantBase+int(mant)), int(exp&0x03))
	return raw / spacingScale
}

// DecodeBandwidth converts the 4-bit CHANBW field (E in bits 3-2, M in bits
// 1-0, i.e. MDMCFG4 bits 7-4 shifted down) to kHz.
func DecodeBandwidth(field byte) float64 {
	exp := (field >> 2) & 0x03
	mant := field & 0x03
	return CrystalMHz * 1000 / (8 * float64(4+int(mant)) * math.Ldexp(1, int(exp)))
}

// EncodeBandwidth picks the narrowest receiver filter at least as wide as
// the requested bandwidth and returns its 4-bit CHANBW field.
func EncodeBandwidth(khz float64) (byte, error) {
	if math.IsNaN(khz) || khz <= 0 {
		return 0, fmt.Errorf("%w: bandwidth %g", ErrEncodingOverflow, khz)
	}

	best := -1
	bestBW := math.Inf(1)
	for field := 0; field < 16; field++ {
		bw := DecodeBandwidth(byte(field))
		if bw >= khz && bw < bestBW {
			best, bestBW = field, bw
		}
	}
	if best < 0 {
		return 0, fmt.Errorf("%w: no filter wide enough for %g kHz", ErrEncodingOverflow, khz)
	}
	return byte(best), nil
}
