//go:build !linux

package power

import (
	"errors"

	"github.com/sweeney/power-sensor/internal/logic"
)

// DefaultGPIOChip is the Raspberry Pi's main GPIO chip.
const DefaultGPIOChip = "gpiochip0"

// GPIOSource is not available on non-Linux platforms.
type GPIOSource struct{}

// NewGPIOSource returns an error on non-Linux platforms.
func NewGPIOSource(chipName string, pin int, activeLow bool) (*GPIOSource, error) {
	return nil, errors.New("power: gpio not supported on this platform (requires Linux)")
}

// Read is not implemented on non-Linux platforms.
func (g *GPIOSource) Read() (logic.Kind, error) {
	return "", errors.New("power: gpio not supported")
}

// Close is not implemented on non-Linux platforms.
func (g *GPIOSource) Close() error {
	return nil
}
