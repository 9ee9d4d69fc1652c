package transport

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.bug.st/serial"
)

// SerialConfig describes a UART link (8N1)
type SerialConfig struct {
	Port          string `yaml:"port"`
	BaudRate      int    `yaml:"baud_rate"`
	ReadTimeoutMs int    `yaml:"read_timeout_ms"`
}

// Serial writes frames to a serial port and queues every byte it reads back
type Serial struct {
	name  string
	port  io.ReadWriteCloser
	queue *ByteQueue
	log   *slog.Logger

	writeMu sync.Mutex
	done    chan struct{}
	wg      sync.WaitGroup
	closed  bool
}

// OpenSerial opens the port and starts the background reader
func OpenSerial(cfg SerialConfig, log *slog.Logger) (*Serial, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Port, err)
	}

	timeout := time.Duration(cfg.ReadTimeoutMs) * time.Millisecond
	if err := port.SetReadTimeout(timeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}

	log.Info("serial link opened", "port", cfg.Port, "baud", cfg.BaudRate)
	return newSerial(cfg.Port, port, log), nil
}

func newSerial(name string, port io.ReadWriteCloser, log *slog.Logger) *Serial {
	s := &Serial{
		name:  name,
		port:  port,
		queue: NewByteQueue(),
		log:   log,
		done:  make(chan struct{}),
	}
	s.wg.Add(1)
	go s.readLoop()
	return s
}

// readLoop pushes received bytes until the port is closed. A read that times
// out returns no data and no error.
func (s *Serial) readLoop() {
	defer s.wg.Done()

	buf := make([]byte, 256)
	for {
		n, err := s.port.Read(buf)
		if n > 0 {
			s.queue.Push(buf[:n]...)
		}
		if err != nil {
			select {
			case <-s.done:
			default:
				if !errors.Is(err, io.EOF) {
					s.log.Error("serial read failed", "port", s.name, "error", err)
				}
			}
			return
		}
	}
}

// Write sends the whole frame, blocking until the port accepts it
func (s *Serial) Write(frame []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed {
		return fmt.Errorf("serial port %s is closed", s.name)
	}
	for len(frame) > 0 {
		n, err := s.port.Write(frame)
		if err != nil {
			return fmt.Errorf("write to %s: %w", s.name, err)
		}
		if n == 0 {
			return fmt.Errorf("write to %s: %w", s.name, io.ErrShortWrite)
		}
		frame = frame[n:]
	}
	return nil
}

// Info describes the link
func (s *Serial) Info() string {
	return fmt.Sprintf("Port: %s", s.name)
}

// Received returns the queue fed by the reader goroutine
func (s *Serial) Received() *ByteQueue {
	return s.queue
}

// Close stops the reader and closes the port
func (s *Serial) Close() error {
	s.writeMu.Lock()
	if s.closed {
		s.writeMu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	err := s.port.Close()
	s.writeMu.Unlock()

	s.wg.Wait()
	return err
}

// Ports lists the serial ports present on the system
func Ports() ([]string, error) {
	return serial.GetPortsList()
}
