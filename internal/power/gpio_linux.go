//go:build linux

package power

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"

	"github.com/sweeney/power-sensor/internal/logic"
)

// DefaultGPIOChip is the Raspberry Pi's main GPIO chip.
const DefaultGPIOChip = "gpiochip0"

// GPIOSource reads a mains-detect input (e.g. an optocoupler on the PSU rail)
// through the Linux GPIO character device. A high line means mains present.
type GPIOSource struct {
	chip      *gpiocdev.Chip
	line      *gpiocdev.Line
	pin       int
	activeLow bool
}

// NewGPIOSource requests pin on chip as an input with pull-down.
// activeLow inverts the reading for sensors that pull the line low on mains.
func NewGPIOSource(chipName string, pin int, activeLow bool) (*GPIOSource, error) {
	if chipName == "" {
		chipName = DefaultGPIOChip
	}
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}

	line, err := chip.RequestLine(pin, gpiocdev.AsInput, gpiocdev.WithPullDown)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request pin %d: %w", pin, err)
	}

	return &GPIOSource{
		chip:      chip,
		line:      line,
		pin:       pin,
		activeLow: activeLow,
	}, nil
}

// Read returns the power state from the line value.
func (g *GPIOSource) Read() (logic.Kind, error) {
	raw, err := g.line.Value()
	if err != nil {
		return "", fmt.Errorf("read pin %d: %w", g.pin, err)
	}
	return kindFromLine(raw, g.activeLow), nil
}

// Close restores the pin to input with pull-down (the Pi boot default) and
// releases the line and chip.
func (g *GPIOSource) Close() error {
	var errs []error
	if g.line != nil {
		if err := g.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", g.pin, err))
		}
		if err := g.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin %d: %w", g.pin, err))
		}
	}
	if g.chip != nil {
		if err := g.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
