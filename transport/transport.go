// Package transport provides the byte links that carry command frames to the
// radio bridge and collect whatever it sends back.
package transport

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrNoResetLine is returned by Reset when the link has no reset control
var ErrNoResetLine = errors.New("no reset line configured")

// Link is a frame sink with a receive queue
type Link interface {
	Write(frame []byte) error
	Received() *ByteQueue
	Close() error
}

// Link types
const (
	TypeSerial   = "serial"
	TypeSPI      = "spi"
	TypeLoopback = "loopback"
)

// Config selects and parameterizes a link
type Config struct {
	Type   string       `yaml:"type"`
	Serial SerialConfig `yaml:"serial"`
	SPI    SPIConfig    `yaml:"spi"`
}

// SetDefaults fills unset fields
func (c *Config) SetDefaults() {
	if c.Type == "" {
		c.Type = TypeSerial
	}
	if c.Serial.Port == "" {
		c.Serial.Port = "/dev/ttyACM0"
	}
	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = 115200
	}
	if c.Serial.ReadTimeoutMs == 0 {
		c.Serial.ReadTimeoutMs = 100
	}
	if c.SPI.Device == "" {
		c.SPI.Device = "/dev/spidev0.0"
	}
	if c.SPI.SpeedHz == 0 {
		c.SPI.SpeedHz = 1000000
	}
	if c.SPI.GPIOChip == "" {
		c.SPI.GPIOChip = "gpiochip0"
	}
}

// Open creates the link described by cfg
func Open(cfg Config, log *slog.Logger) (Link, error) {
	if log == nil {
		log = slog.Default()
	}
	switch cfg.Type {
	case TypeSerial:
		s, err := OpenSerial(cfg.Serial, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	case TypeSPI:
		s, err := OpenSPI(cfg.SPI, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	case TypeLoopback:
		return NewLoopback(true), nil
	default:
		return nil, fmt.Errorf("unknown transport type %q", cfg.Type)
	}
}

// TypeOf reports the link type of l, or "" for links not created by Open
func TypeOf(l Link) string {
	switch l.(type) {
	case *Serial:
		return TypeSerial
	case *SPI:
		return TypeSPI
	case *Loopback:
		return TypeLoopback
	default:
		return ""
	}
}
