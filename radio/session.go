package radio

import (
	"errors"
	"math"
	"strconv"
)

// Session owns the register image for one connected radio. It is not safe
// for concurrent use; callers serialize access.
type Session struct {
	regs Registers
}

// NewSession starts a session from the given register image, normally
// ResetRegisters().
func NewSession(initial Registers) *Session {
	return &Session{regs: initial}
}

// Registers returns a copy of the current register image
func (s *Session) Registers() Registers {
	return s.regs
}

// Get returns one register value
func (s *Session) Get(reg Register) byte {
	return s.regs.Get(reg)
}

// apply runs fn on a scratch copy and commits it only if fn succeeds, so a
// field group is always written whole or not at all.
func (s *Session) apply(q Quantity, fn func(r *Registers) error) ([]Register, error) {
	next := s.regs
	if err := fn(&next); err != nil {
		if errors.Is(err, ErrEncodingOverflow) {
			return nil, invalid(q, "cannot be encoded", err)
		}
		return nil, err
	}
	changed := s.regs.Diff(next)
	s.regs = next
	return changed, nil
}

// SetFrequency parses a carrier frequency in MHz and writes FREQ2/1/0
func (s *Session) SetFrequency(text string) ([]Register, error) {
	mhz, err := ParseQuantity(QuantityFrequency, text)
	if err != nil {
		return nil, err
	}
	return s.apply(QuantityFrequency, func(r *Registers) error {
		f2, f1, f0, err := EncodeFrequency(mhz)
		if err != nil {
			return err
		}
		r.Set(FREQ2, f2)
		r.Set(FREQ1, f1)
		r.Set(FREQ0, f0)
		return nil
	})
}

// SetDeviation parses a deviation in kHz and writes DEVIATN
func (s *Session) SetDeviation(text string) ([]Register, error) {
	khz, err := ParseQuantity(QuantityDeviation, text)
	if err != nil {
		return nil, err
	}
	return s.apply(QuantityDeviation, func(r *Registers) error {
		b, err := EncodeDeviation(khz)
		if err != nil {
			return err
		}
		r.Set(DEVIATN, r.Get(DEVIATN)&^deviationMask|b)
		return nil
	})
}

// SetDataRate parses a symbol rate in kBaud and writes MDMCFG4/MDMCFG3
func (s *Session) SetDataRate(text string) ([]Register, error) {
	kbaud, err := ParseQuantity(QuantityDataRate, text)
	if err != nil {
		return nil, err
	}
	return s.apply(QuantityDataRate, func(r *Registers) error {
		exp, mant, err := EncodeDataRate(kbaud)
		if err != nil {
			return err
		}
		r.Set(MDMCFG4, r.Get(MDMCFG4)&^drateExpMask|exp)
		r.Set(MDMCFG3, mant)
		return nil
	})
}

// SetChannelSpacing parses a spacing in kHz and writes MDMCFG1/MDMCFG0
func (s *Session) SetChannelSpacing(text string) ([]Register, error) {
	khz, err := ParseQuantity(QuantityChannelSpacing, text)
	if err != nil {
		return nil, err
	}
	return s.apply(QuantityChannelSpacing, func(r *Registers) error {
		exp, mant, err := EncodeChannelSpacing(khz)
		if err != nil {
			return err
		}
		r.Set(MDMCFG1, r.Get(MDMCFG1)&^chanSpcExpMask|exp)
		r.Set(MDMCFG0, mant)
		return nil
	})
}

// SetBandwidth parses a receiver filter bandwidth in kHz and writes
// MDMCFG4 bits 7-4
func (s *Session) SetBandwidth(text string) ([]Register, error) {
	khz, err := ParseQuantity(QuantityBandwidth, text)
	if err != nil {
		return nil, err
	}
	return s.apply(QuantityBandwidth, func(r *Registers) error {
		field, err := EncodeBandwidth(khz)
		if err != nil {
			return err
		}
		r.Set(MDMCFG4, r.Get(MDMCFG4)&^chanBWMask|field<<4)
		return nil
	})
}

// SetChannel parses a channel number and writes CHANNR
func (s *Session) SetChannel(text string) ([]Register, error) {
	v, err := ParseQuantity(QuantityChannel, text)
	if err != nil {
		return nil, err
	}
	if v != math.Trunc(v) {
		return nil, invalid(QuantityChannel, "not an integer", nil)
	}
	return s.apply(QuantityChannel, func(r *Registers) error {
		r.Set(CHANNR, byte(v))
		return nil
	})
}

// SetModulation writes the modulation format into MDMCFG2
func (s *Session) SetModulation(name string) ([]Register, error) {
	m, ok := ParseModulation(name)
	if !ok {
		return nil, &InvalidInputError{
			Quantity: QuantityModulation,
			Reason:   "unknown format " + strconv.Quote(name) + " (use 2-FSK, GFSK or MSK)",
		}
	}
	return s.apply(QuantityModulation, func(r *Registers) error {
		r.Set(MDMCFG2, EncodeModulation(r.Get(MDMCFG2), m))
		return nil
	})
}

// SetTxPower writes PA_TABLE0 for one of the permitted levels
func (s *Session) SetTxPower(dbm int) ([]Register, error) {
	if _, ok := txPowerTable[dbm]; !ok {
		return nil, invalid(QuantityTxPower, "not a permitted level: "+strconv.Itoa(dbm), nil)
	}
	return s.apply(QuantityTxPower, func(r *Registers) error {
		r.Set(PA_TABLE0, EncodeTxPower(r.Get(PA_TABLE0), dbm))
		return nil
	})
}

// SetWhitening toggles data whitening
func (s *Session) SetWhitening(on bool) ([]Register, error) {
	return s.apply(QuantityWhitening, func(r *Registers) error {
		r.Set(PKTCTRL0, EncodeWhitening(r.Get(PKTCTRL0), on))
		return nil
	})
}

// SetManchester toggles Manchester coding
func (s *Session) SetManchester(on bool) ([]Register, error) {
	return s.apply(QuantityManchester, func(r *Registers) error {
		r.Set(MDMCFG2, EncodeManchester(r.Get(MDMCFG2), on))
		return nil
	})
}

// SetPhaseTransition writes the MSK phase transition time. It is rejected
// unless MSK is selected.
func (s *Session) SetPhaseTransition(value int) ([]Register, error) {
	if value < 0 || value > 7 {
		return nil, invalid(QuantityPhaseTransition, "out of range: "+strconv.Itoa(value), nil)
	}
	if DecodeModulation(s.regs.Get(MDMCFG2)) != ModulationMSK {
		return nil, &InvalidInputError{
			Quantity: QuantityPhaseTransition,
			Reason:   "only applies when MSK modulation is selected",
		}
	}
	return s.apply(QuantityPhaseTransition, func(r *Registers) error {
		r.Set(DEVIATN, EncodePhaseTransition(r.Get(DEVIATN), value))
		return nil
	})
}

// WriteRaw stores a literal register value
func (s *Session) WriteRaw(reg Register, value byte) ([]Register, error) {
	if !reg.Valid() {
		return nil, &InvalidInputError{Quantity: QuantityRegister, Reason: "unknown register " + reg.String()}
	}
	next := s.regs
	next.Set(reg, value)
	changed := s.regs.Diff(next)
	s.regs = next
	return changed, nil
}

// Load replaces the whole register image, e.g. from a saved profile
func (s *Session) Load(regs Registers) []Register {
	changed := s.regs.Diff(regs)
	s.regs = regs
	return changed
}

// Settings is the human-readable view of the register image
type Settings struct {
	FrequencyMHz        float64 `json:"frequency_mhz" yaml:"frequency_mhz"`
	ChannelFrequencyMHz float64 `json:"channel_frequency_mhz" yaml:"channel_frequency_mhz"`
	Channel             int     `json:"channel" yaml:"channel"`
	ChannelSpacingKHz   float64 `json:"channel_spacing_khz" yaml:"channel_spacing_khz"`
	BandwidthKHz        float64 `json:"bandwidth_khz" yaml:"bandwidth_khz"`
	DeviationKHz        float64 `json:"deviation_khz" yaml:"deviation_khz"`
	DataRateKBaud       float64 `json:"data_rate_kbaud" yaml:"data_rate_kbaud"`
	Modulation          string  `json:"modulation" yaml:"modulation"`
	TxPowerDBm          *int    `json:"tx_power_dbm,omitempty" yaml:"tx_power_dbm,omitempty"`
	Whitening           bool    `json:"whitening" yaml:"whitening"`
	Manchester          bool    `json:"manchester" yaml:"manchester"`
	PhaseTransition     int     `json:"phase_transition" yaml:"phase_transition"`
}

// Settings recomputes the presentation from the authoritative register bytes
func (s *Session) Settings() Settings {
	return DecodeSettings(s.regs)
}

// DecodeSettings decodes a register image into physical quantities
func DecodeSettings(r Registers) Settings {
	freq := DecodeFrequency(r.Get(FREQ2), r.Get(FREQ1), r.Get(FREQ0))
	spacing := DecodeChannelSpacing(r.Get(MDMCFG1)&chanSpcExpMask, r.Get(MDMCFG0))
	channel := int(r.Get(CHANNR))

	st := Settings{
		FrequencyMHz:        freq,
		ChannelFrequencyMHz: freq + float64(channel)*spacing/1000,
		Channel:             channel,
		ChannelSpacingKHz:   spacing,
		BandwidthKHz:        DecodeBandwidth(r.Get(MDMCFG4) >> 4),
		DeviationKHz:        DecodeDeviation(r.Get(DEVIATN)),
		DataRateKBaud:       DecodeDataRate(r.Get(MDMCFG4)&drateExpMask, r.Get(MDMCFG3)),
		Modulation:          DecodeModulation(r.Get(MDMCFG2)).String(),
		Whitening:           DecodeWhitening(r.Get(PKTCTRL0)),
		Manchester:          DecodeManchester(r.Get(MDMCFG2)),
		PhaseTransition:     DecodePhaseTransition(r.Get(DEVIATN)),
	}
	if dbm, ok := DecodeTxPower(r.Get(PA_TABLE0)); ok {
		st.TxPowerDBm = &dbm
	}
	return st
}
