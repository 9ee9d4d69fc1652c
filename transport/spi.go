package transport

import (
	"fmt"
	"log/slog"
	"sync"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// SPIConfig describes an SPI link with optional GPIO control lines
type SPIConfig struct {
	Device   string `yaml:"device"`
	SpeedHz  uint32 `yaml:"speed_hz"`
	GPIO     bool   `yaml:"gpio"`
	GPIOChip string `yaml:"gpio_chip"`
	ResetPin int    `yaml:"reset_pin"`
	ReadyPin int    `yaml:"ready_pin"`
}

// SPI writes frames with full-duplex transfers. Bytes clocked in during a
// transfer are queued as received data.
type SPI struct {
	mu     sync.Mutex
	conn   spi.Conn
	port   spi.PortCloser
	device string
	speed  physic.Frequency
	gpio   *BridgeGPIO
	queue  *ByteQueue
	log    *slog.Logger
}

// OpenSPI initializes periph.io, opens the SPI port and, if configured, the
// GPIO lines
func OpenSPI(cfg SPIConfig, log *slog.Logger) (*SPI, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph.io: %w", err)
	}

	port, err := spireg.Open(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI device %s: %w", cfg.Device, err)
	}

	speed := physic.Frequency(cfg.SpeedHz) * physic.Hertz
	conn, err := port.Connect(speed, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to connect to SPI device: %w", err)
	}

	s := &SPI{
		conn:   conn,
		port:   port,
		device: cfg.Device,
		speed:  speed,
		queue:  NewByteQueue(),
		log:    log,
	}

	if cfg.GPIO {
		g, err := NewBridgeGPIO(cfg.GPIOChip, cfg.ResetPin, cfg.ReadyPin)
		if err != nil {
			port.Close()
			return nil, err
		}
		s.gpio = g
	}

	log.Info("SPI link opened", "device", cfg.Device, "speed", speed.String(), "gpio", cfg.GPIO)
	return s, nil
}

// Write clocks out one frame and strobes the ready line afterwards
func (s *SPI) Write(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return fmt.Errorf("SPI device %s not open", s.device)
	}

	rx := make([]byte, len(frame))
	if err := s.conn.Tx(frame, rx); err != nil {
		return fmt.Errorf("SPI transfer failed: %w", err)
	}
	s.queue.Push(rx...)

	if s.gpio != nil {
		if err := s.gpio.Strobe(); err != nil {
			return err
		}
	}
	return nil
}

// Received returns bytes clocked in during writes
func (s *SPI) Received() *ByteQueue {
	return s.queue
}

// Reset pulses the bridge reset line
func (s *SPI) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gpio == nil {
		return fmt.Errorf("%s: %w", s.device, ErrNoResetLine)
	}
	return s.gpio.Reset()
}

// Info describes the link
func (s *SPI) Info() string {
	if s.conn == nil {
		return fmt.Sprintf("Device: %s (closed)", s.device)
	}
	if s.gpio != nil {
		return fmt.Sprintf("Device: %s, Speed: %s, %s", s.device, s.speed, s.gpio.Info())
	}
	return fmt.Sprintf("Device: %s, Speed: %s", s.device, s.speed)
}

// Close releases the port and GPIO lines
func (s *SPI) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.gpio != nil {
		err = s.gpio.Close()
		s.gpio = nil
	}
	if s.port != nil {
		if cerr := s.port.Close(); cerr != nil && err == nil {
			err = cerr
		}
		s.port = nil
		s.conn = nil
	}
	return err
}
