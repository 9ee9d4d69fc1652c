package radio

import (
	"math"
	"strconv"
	"strings"
)

// Quantity names a user-editable physical parameter
type Quantity int

const (
	QuantityFrequency Quantity = iota
	QuantityDeviation
	QuantityDataRate
	QuantityChannel
	QuantityChannelSpacing
	QuantityBandwidth
	QuantityTxPower
	QuantityModulation
	QuantityPhaseTransition
	QuantityWhitening
	QuantityManchester
	QuantityRegister
)

type quantityInfo struct {
	name string
	unit string
	min  float64
	max  float64
}

var quantityTable = map[Quantity]quantityInfo{
	QuantityFrequency:       {"frequency", "MHz", 2400.0, 2483.5},
	QuantityDeviation:       {"deviation", "kHz", 1.6, 381.0},
	QuantityDataRate:        {"data rate", "kBaud", 0.025, 1622.0},
	QuantityChannel:         {"channel", "", 0, 255},
	QuantityChannelSpacing:  {"channel spacing", "kHz", 25.4, 405.46},
	QuantityBandwidth:       {"bandwidth", "kHz", 58.03, 812.5},
	QuantityTxPower:         {"tx power", "dBm", -55, 1},
	QuantityModulation:      {"modulation", "", 0, 0},
	QuantityPhaseTransition: {"phase transition time", "", 0, 7},
	QuantityWhitening:       {"whitening", "", 0, 0},
	QuantityManchester:      {"manchester coding", "", 0, 0},
	QuantityRegister:        {"register", "", 0, 0},
}

func (q Quantity) String() string {
	if info, ok := quantityTable[q]; ok {
		return info.name
	}
	return "unknown quantity"
}

// Unit returns the display unit for the quantity
func (q Quantity) Unit() string {
	return quantityTable[q].unit
}

// Bounds returns the inclusive valid input range
func (q Quantity) Bounds() (min, max float64) {
	info := quantityTable[q]
	return info.min, info.max
}

// ParseQuantity parses user text and range-checks it. Codecs only ever see
// values that passed this gate.
func ParseQuantity(q Quantity, text string) (float64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, invalid(q, "empty input", nil)
	}

	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, invalid(q, "not a number: "+strconv.Quote(text), err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, invalid(q, "not a finite number", nil)
	}

	min, max := q.Bounds()
	if v < min || v > max {
		return 0, invalid(q, "out of range: "+strconv.FormatFloat(v, 'g', -1, 64), nil)
	}
	return v, nil
}
