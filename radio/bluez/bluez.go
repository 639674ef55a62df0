// Package bluez advertises through BlueZ's LEAdvertisingManager1 over the system D-Bus.
package bluez

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/prop"
	"github.com/pkg/errors"

	"github.com/user/ibeacon-blue/logger"
	"github.com/user/ibeacon-blue/radio"
	"github.com/user/ibeacon-blue/wire/ibeacon"
)

const (
	DefaultAdapter = "hci0"

	advertisementInterface = "org.bluez.LEAdvertisement1"
	registerMethod         = "org.bluez.LEAdvertisingManager1.RegisterAdvertisement"
	unregisterMethod       = "org.bluez.LEAdvertisingManager1.UnregisterAdvertisement"
)

var advertisementID uint64

// caller is the slice of dbus.BusObject the driver uses.
type caller interface {
	Call(method string, flags dbus.Flags, args ...interface{}) *dbus.Call
}

// exporter publishes and withdraws the advertisement object on the bus.
type exporter interface {
	Export(path dbus.ObjectPath, props map[string]interface{}, release func()) error
	Unexport(path dbus.ObjectPath)
}

// Driver registers one advertisement at a time with a BlueZ adapter.
type Driver struct {
	adapter  caller
	exporter exporter
	tag      string

	mu         sync.Mutex
	path       dbus.ObjectPath
	registered bool
}

// Open connects to the system bus and checks that the adapter exists.
func Open(adapterID string) (*Driver, error) {
	if adapterID == "" {
		adapterID = DefaultAdapter
	}
	bus, err := dbus.SystemBus()
	if err != nil {
		return nil, errors.Wrap(err, "bluez: connect system bus")
	}

	adapter := bus.Object("org.bluez", dbus.ObjectPath("/org/bluez/"+adapterID))
	if _, err := adapter.GetProperty("org.bluez.Adapter1.Address"); err != nil {
		if derr, ok := err.(dbus.Error); ok && derr.Name == "org.freedesktop.DBus.Error.UnknownObject" {
			return nil, errors.Errorf("bluez: adapter %s does not exist", adapter.Path())
		}
		return nil, errors.Wrap(err, "bluez: activate adapter")
	}

	return newDriver(adapter, &busExporter{conn: bus}, adapterID), nil
}

func newDriver(adapter caller, exp exporter, adapterID string) *Driver {
	return &Driver{
		adapter:  adapter,
		exporter: exp,
		tag:      adapterID + " BlueZ",
	}
}

// StartAdvertising exports the advertisement object and registers it. Registration is a
// blocking D-Bus call, so it runs on its own goroutine and reports through cb.
func (d *Driver) StartAdvertising(raw ibeacon.RawAdvertisement, cb radio.Callback) error {
	d.mu.Lock()
	if d.registered {
		d.mu.Unlock()
		go cb.OnStartFailure(&radio.DriverError{Reason: radio.ReasonAlreadyStarted, Op: "start"})
		return nil
	}

	id := atomic.AddUint64(&advertisementID, 1)
	path := dbus.ObjectPath(fmt.Sprintf("/org/ibeacon_blue/advertisement%d", id))
	props := map[string]interface{}{
		"Type":             "peripheral",
		"ManufacturerData": map[uint16]interface{}{ibeacon.CompanyID: raw.Bytes()},
		"ServiceUUIDs":     []string{},
		"Timeout":          uint16(0),
	}
	if err := d.exporter.Export(path, props, func() { d.released(path) }); err != nil {
		d.mu.Unlock()
		return &radio.DriverError{Reason: radio.ReasonInternalError, Op: "start", Err: errors.Wrap(err, "bluez: export advertisement")}
	}
	d.path = path
	d.registered = true
	d.mu.Unlock()

	go func() {
		logger.Trace(d.tag, "RegisterAdvertisement %s %s", path, raw)
		err := d.adapter.Call(registerMethod, 0, path, map[string]interface{}{}).Err
		if err == nil {
			cb.OnStartSuccess()
			return
		}

		d.mu.Lock()
		if d.path == path {
			d.registered = false
			d.path = ""
		}
		d.mu.Unlock()
		d.exporter.Unexport(path)

		cb.OnStartFailure(&radio.DriverError{
			Reason: ReasonFromDBus(err),
			Op:     "start",
			Err:    errors.Wrap(err, "bluez: register advertisement"),
		})
	}()
	return nil
}

// StopAdvertising unregisters the current advertisement. An advertisement BlueZ no
// longer knows about counts as stopped.
func (d *Driver) StopAdvertising() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.path == "" {
		return nil
	}

	err := d.adapter.Call(unregisterMethod, 0, d.path).Err
	if err != nil && dbusName(err) != "org.bluez.Error.DoesNotExist" {
		return &radio.DriverError{Reason: ReasonFromDBus(err), Op: "stop", Err: errors.Wrap(err, "bluez: unregister advertisement")}
	}

	d.exporter.Unexport(d.path)
	d.path = ""
	d.registered = false
	return nil
}

// released runs when BlueZ drops the advertisement on its own (adapter reset, power off).
func (d *Driver) released(path dbus.ObjectPath) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.path != path {
		return
	}
	logger.Warn(d.tag, "advertisement %s released by bluetoothd", path)
	d.exporter.Unexport(path)
	d.path = ""
	d.registered = false
}

// ReasonFromDBus maps a BlueZ error name to a radio.Reason.
func ReasonFromDBus(err error) radio.Reason {
	switch dbusName(err) {
	case "org.bluez.Error.AlreadyExists":
		return radio.ReasonAlreadyStarted
	case "org.bluez.Error.InvalidLength":
		return radio.ReasonDataTooLarge
	case "org.bluez.Error.NotPermitted":
		return radio.ReasonTooManyAdvertisers
	case "org.bluez.Error.NotSupported",
		"org.freedesktop.DBus.Error.UnknownMethod",
		"org.freedesktop.DBus.Error.UnknownObject",
		"org.freedesktop.DBus.Error.ServiceUnknown":
		return radio.ReasonFeatureUnsupported
	case "org.bluez.Error.Failed", "org.bluez.Error.InvalidArguments":
		return radio.ReasonInternalError
	default:
		return radio.ReasonUnknown
	}
}

func dbusName(err error) string {
	switch e := errors.Cause(err).(type) {
	case dbus.Error:
		return e.Name
	case *dbus.Error:
		return e.Name
	}
	return ""
}

// busExporter exports LEAdvertisement1 properties and its Release method with godbus.
type busExporter struct {
	conn *dbus.Conn
}

type releaser struct {
	release func()
}

// Release is invoked by bluetoothd.
func (r releaser) Release() *dbus.Error {
	r.release()
	return nil
}

func (e *busExporter) Export(path dbus.ObjectPath, props map[string]interface{}, release func()) error {
	table := map[string]*prop.Prop{}
	for name, v := range props {
		table[name] = &prop.Prop{Value: v, Emit: prop.EmitFalse}
	}
	if _, err := prop.Export(e.conn, path, map[string]map[string]*prop.Prop{advertisementInterface: table}); err != nil {
		return err
	}
	return e.conn.Export(releaser{release: release}, path, advertisementInterface)
}

func (e *busExporter) Unexport(path dbus.ObjectPath) {
	e.conn.Export(nil, path, advertisementInterface)
	e.conn.Export(nil, path, "org.freedesktop.DBus.Properties")
}
