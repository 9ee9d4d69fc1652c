package transport

import (
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"
)

func TestLoopback(t *testing.T) {
	l := NewLoopback(true)

	if err := l.Write([]byte{0x01, 0x02}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := l.Write([]byte{0x03}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	want := [][]byte{{0x01, 0x02}, {0x03}}
	if got := l.Frames(); !reflect.DeepEqual(got, want) {
		t.Errorf("Frames() = %v, want %v", got, want)
	}
	if got := l.Received().Drain(); !reflect.DeepEqual(got, []byte{0x01, 0x02, 0x03}) {
		t.Errorf("echo = % X", got)
	}

	boom := errors.New("unplugged")
	l.FailWith(boom)
	if err := l.Write([]byte{0x04}); !errors.Is(err, boom) {
		t.Errorf("Write() error = %v, want %v", err, boom)
	}
	if len(l.Frames()) != 2 {
		t.Errorf("failed write was recorded")
	}

	l.FailWith(nil)
	l.Close()
	if err := l.Write([]byte{0x05}); !errors.Is(err, ErrClosed) {
		t.Errorf("Write() after Close error = %v, want ErrClosed", err)
	}
}

func TestOpenLoopbackAndUnknown(t *testing.T) {
	cfg := Config{Type: TypeLoopback}
	cfg.SetDefaults()
	link, err := Open(cfg, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, ok := link.(*Loopback); !ok {
		t.Errorf("Open() = %T, want *Loopback", link)
	}

	if _, err := Open(Config{Type: "carrier-pigeon"}, nil); err == nil {
		t.Error("Open() with unknown type: expected error")
	}
}

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()
	if cfg.Type != TypeSerial || cfg.Serial.BaudRate != 115200 || cfg.SPI.SpeedHz != 1000000 {
		t.Errorf("SetDefaults() = %+v", cfg)
	}
}

func TestLoopbackClearFrames(t *testing.T) {
	l := NewLoopback(true)
	l.Write([]byte{0x01})
	l.ClearFrames()

	if len(l.Frames()) != 0 {
		t.Errorf("Frames() after ClearFrames = %v", l.Frames())
	}
	if got := l.Received().Drain(); !reflect.DeepEqual(got, []byte{0x01}) {
		t.Errorf("ClearFrames touched the receive queue: % X", got)
	}

	// A loopback has no reset line
	var link Link = l
	if _, ok := link.(interface{ Reset() error }); ok {
		t.Error("Loopback must not offer Reset")
	}
}

func TestTypeOfAndInfo(t *testing.T) {
	r, _ := io.Pipe()
	serial := newSerial("/dev/ttyACM0", &pipePort{r: r}, slog.Default())
	defer serial.Close()

	tests := []struct {
		link     Link
		wantType string
		wantInfo string
	}{
		{NewLoopback(true), TypeLoopback, "Loopback (echo on)"},
		{serial, TypeSerial, "Port: /dev/ttyACM0"},
		{&SPI{device: "/dev/spidev0.0"}, TypeSPI, "Device: /dev/spidev0.0 (closed)"},
	}
	for _, tt := range tests {
		if got := TypeOf(tt.link); got != tt.wantType {
			t.Errorf("TypeOf(%T) = %q, want %q", tt.link, got, tt.wantType)
		}
		info := tt.link.(interface{ Info() string }).Info()
		if info != tt.wantInfo {
			t.Errorf("%T.Info() = %q, want %q", tt.link, info, tt.wantInfo)
		}
	}
}

func TestSPIResetWithoutGPIO(t *testing.T) {
	s := &SPI{device: "/dev/spidev0.0"}
	if err := s.Reset(); !errors.Is(err, ErrNoResetLine) {
		t.Errorf("Reset() error = %v, want ErrNoResetLine", err)
	}
}
