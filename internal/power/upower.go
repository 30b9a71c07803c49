package power

import (
	"context"
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"

	"github.com/sweeney/power-sensor/internal/logic"
)

const (
	upowerDest      = "org.freedesktop.UPower"
	upowerPath      = dbus.ObjectPath("/org/freedesktop/UPower")
	upowerIface     = "org.freedesktop.UPower"
	propertiesIface = "org.freedesktop.DBus.Properties"
	propertyChanged = propertiesIface + ".PropertiesChanged"
)

// UPowerSource reads the UPower daemon's OnBattery property over the system
// bus and watches its PropertiesChanged signal.
type UPowerSource struct {
	conn *dbus.Conn
	obj  dbus.BusObject
}

// NewUPowerSource connects to the system bus.
func NewUPowerSource() (*UPowerSource, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}
	return &UPowerSource{
		conn: conn,
		obj:  conn.Object(upowerDest, upowerPath),
	}, nil
}

// Read queries OnBattery.
func (u *UPowerSource) Read() (logic.Kind, error) {
	v, err := u.obj.GetProperty(upowerIface + ".OnBattery")
	if err != nil {
		return "", fmt.Errorf("upower OnBattery: %w", err)
	}
	onBattery, ok := v.Value().(bool)
	if !ok {
		return "", fmt.Errorf("upower OnBattery: unexpected type %s", v.Signature())
	}
	return kindFromOnBattery(onBattery), nil
}

// Watch sends the current state, then one raw signal per OnBattery change.
func (u *UPowerSource) Watch(ctx context.Context, out chan<- logic.Kind) error {
	match := []dbus.MatchOption{
		dbus.WithMatchObjectPath(upowerPath),
		dbus.WithMatchInterface(propertiesIface),
		dbus.WithMatchMember("PropertiesChanged"),
	}
	if err := u.conn.AddMatchSignal(match...); err != nil {
		return fmt.Errorf("upower subscribe: %w", err)
	}
	defer u.conn.RemoveMatchSignal(match...)

	signals := make(chan *dbus.Signal, 16)
	u.conn.Signal(signals)
	defer u.conn.RemoveSignal(signals)

	send := func(k logic.Kind) {
		select {
		case out <- k:
		case <-ctx.Done():
		}
	}

	if k, err := u.Read(); err == nil {
		send(k)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig, ok := <-signals:
			if !ok {
				return errors.New("upower: signal channel closed")
			}
			if k, ok := kindFromSignal(sig); ok {
				send(k)
			}
		}
	}
}

// Close closes the bus connection.
func (u *UPowerSource) Close() error {
	return u.conn.Close()
}

// kindFromSignal extracts OnBattery from a UPower PropertiesChanged signal.
func kindFromSignal(sig *dbus.Signal) (logic.Kind, bool) {
	if sig == nil || sig.Path != upowerPath || sig.Name != propertyChanged || len(sig.Body) < 2 {
		return "", false
	}
	iface, ok := sig.Body[0].(string)
	if !ok || iface != upowerIface {
		return "", false
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return "", false
	}
	v, ok := changed["OnBattery"]
	if !ok {
		return "", false
	}
	onBattery, ok := v.Value().(bool)
	if !ok {
		return "", false
	}
	return kindFromOnBattery(onBattery), true
}

func kindFromOnBattery(onBattery bool) logic.Kind {
	if onBattery {
		return logic.KindLost
	}
	return logic.KindRestored
}
