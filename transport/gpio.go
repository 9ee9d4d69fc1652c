package transport

import (
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// BridgeGPIO drives the bridge's reset and frame-ready lines
type BridgeGPIO struct {
	chip      *gpiocdev.Chip
	resetLine *gpiocdev.Line
	readyLine *gpiocdev.Line
	chipPath  string
	resetPin  int
	readyPin  int
}

// NewBridgeGPIO requests both lines as outputs, initially low
func NewBridgeGPIO(chipPath string, resetPin, readyPin int) (*BridgeGPIO, error) {
	chip, err := gpiocdev.NewChip(chipPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open GPIO chip %s: %w", chipPath, err)
	}

	g := &BridgeGPIO{
		chip:     chip,
		chipPath: chipPath,
		resetPin: resetPin,
		readyPin: readyPin,
	}

	resetLine, err := chip.RequestLine(resetPin, gpiocdev.AsOutput(0), gpiocdev.WithConsumer("eos-reset"))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("failed to request reset pin %d: %w", resetPin, err)
	}
	g.resetLine = resetLine

	readyLine, err := chip.RequestLine(readyPin, gpiocdev.AsOutput(0), gpiocdev.WithConsumer("eos-ready"))
	if err != nil {
		resetLine.Close()
		chip.Close()
		return nil, fmt.Errorf("failed to request ready pin %d: %w", readyPin, err)
	}
	g.readyLine = readyLine

	return g, nil
}

// Strobe pulses the ready line to tell the bridge a frame is complete
func (g *BridgeGPIO) Strobe() error {
	if g.readyLine == nil {
		return fmt.Errorf("ready line not initialized")
	}
	if err := g.readyLine.SetValue(1); err != nil {
		return fmt.Errorf("failed to raise ready line: %w", err)
	}
	time.Sleep(10 * time.Microsecond)
	if err := g.readyLine.SetValue(0); err != nil {
		return fmt.Errorf("failed to lower ready line: %w", err)
	}
	return nil
}

// Reset holds the bridge in reset for 100us, then waits 5ms for it to boot
func (g *BridgeGPIO) Reset() error {
	if g.resetLine == nil {
		return fmt.Errorf("reset line not initialized")
	}
	if err := g.resetLine.SetValue(1); err != nil {
		return fmt.Errorf("failed to set reset pin HIGH: %w", err)
	}
	time.Sleep(100 * time.Microsecond)
	if err := g.resetLine.SetValue(0); err != nil {
		return fmt.Errorf("failed to set reset pin LOW: %w", err)
	}
	time.Sleep(5 * time.Millisecond)
	return nil
}

// Info describes the chip and pins
func (g *BridgeGPIO) Info() string {
	if g.chip == nil {
		return fmt.Sprintf("GPIO: %s (closed)", g.chipPath)
	}
	return fmt.Sprintf("GPIO: %s (%s), Reset Pin: %d, Ready Pin: %d",
		g.chipPath, g.chip.Label, g.resetPin, g.readyPin)
}

// Close releases the lines and the chip
func (g *BridgeGPIO) Close() error {
	var errs []error

	if g.readyLine != nil {
		if err := g.readyLine.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close ready line: %w", err))
		}
		g.readyLine = nil
	}
	if g.resetLine != nil {
		if err := g.resetLine.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close reset line: %w", err))
		}
		g.resetLine = nil
	}
	if g.chip != nil {
		if err := g.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close GPIO chip: %w", err))
		}
		g.chip = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing GPIO: %v", errs)
	}
	return nil
}
