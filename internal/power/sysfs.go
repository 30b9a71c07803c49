package power

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sweeney/power-sensor/internal/logic"
)

// DefaultSysfsRoot is the kernel's power supply class directory.
const DefaultSysfsRoot = "/sys/class/power_supply"

// SysfsSource reads /sys/class/power_supply. Linux only in practice, but it
// only touches plain files so it is testable anywhere.
type SysfsSource struct {
	root string
}

// NewSysfsSource creates a reader over root (DefaultSysfsRoot when empty).
func NewSysfsSource(root string) *SysfsSource {
	if root == "" {
		root = DefaultSysfsRoot
	}
	return &SysfsSource{root: root}
}

// Read decides the power source:
//   - any online mains/USB supply: AC
//   - a discharging battery: battery
//   - a mains supply that is offline: battery
//   - only a battery that is not discharging: AC
func (s *SysfsSource) Read() (logic.Kind, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", s.root, err)
	}

	var sawMains, mainsOnline, sawBattery, discharging bool
	for _, e := range entries {
		dir := filepath.Join(s.root, e.Name())
		switch readAttr(dir, "type") {
		case "Mains", "USB", "USB_C", "USB_PD", "USB_PD_DRP":
			sawMains = true
			if readAttr(dir, "online") == "1" {
				mainsOnline = true
			}
		case "Battery", "UPS":
			sawBattery = true
			if readAttr(dir, "status") == "Discharging" {
				discharging = true
			}
		}
	}

	switch {
	case mainsOnline:
		return logic.KindRestored, nil
	case discharging:
		return logic.KindLost, nil
	case sawMains:
		return logic.KindLost, nil
	case sawBattery:
		return logic.KindRestored, nil
	default:
		return "", ErrNoSupply
	}
}

// Close is a no-op.
func (s *SysfsSource) Close() error { return nil }

func readAttr(dir, name string) string {
	b, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}
