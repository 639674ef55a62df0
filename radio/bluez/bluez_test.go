package bluez

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/user/ibeacon-blue/radio"
	"github.com/user/ibeacon-blue/wire/ibeacon"
)

type fakeAdapter struct {
	mu      sync.Mutex
	methods []string
	errs    map[string]error
}

func (f *fakeAdapter) Call(method string, flags dbus.Flags, args ...interface{}) *dbus.Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.methods = append(f.methods, method)
	return &dbus.Call{Err: f.errs[method]}
}

func (f *fakeAdapter) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.methods {
		if m == method {
			n++
		}
	}
	return n
}

type fakeExporter struct {
	mu       sync.Mutex
	exported map[dbus.ObjectPath]map[string]interface{}
	release  map[dbus.ObjectPath]func()
}

func newFakeExporter() *fakeExporter {
	return &fakeExporter{
		exported: map[dbus.ObjectPath]map[string]interface{}{},
		release:  map[dbus.ObjectPath]func(){},
	}
}

func (f *fakeExporter) Export(path dbus.ObjectPath, props map[string]interface{}, release func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exported[path] = props
	f.release[path] = release
	return nil
}

func (f *fakeExporter) Unexport(path dbus.ObjectPath) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.exported, path)
}

func (f *fakeExporter) only(t *testing.T) (dbus.ObjectPath, map[string]interface{}) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.exported) != 1 {
		t.Fatalf("expected one exported advertisement, got %d", len(f.exported))
	}
	for p, props := range f.exported {
		return p, props
	}
	return "", nil
}

func wait(t *testing.T) (radio.Callback, func() *radio.DriverError) {
	ch := make(chan *radio.DriverError, 1)
	cb := radio.CallbackFuncs{
		Success: func() { ch <- nil },
		Failure: func(err *radio.DriverError) { ch <- err },
	}
	return cb, func() *radio.DriverError {
		t.Helper()
		select {
		case err := <-ch:
			return err
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for callback")
			return nil
		}
	}
}

func TestStartRegistersManufacturerData(t *testing.T) {
	adapter := &fakeAdapter{}
	exp := newFakeExporter()
	d := newDriver(adapter, exp, "hci0")

	raw := ibeacon.DefaultAdvertisement()
	cb, result := wait(t)
	if err := d.StartAdvertising(raw, cb); err != nil {
		t.Fatalf("StartAdvertising failed: %v", err)
	}
	if err := result(); err != nil {
		t.Fatalf("unexpected failure: %v", err)
	}

	_, props := exp.only(t)
	md, ok := props["ManufacturerData"].(map[uint16]interface{})
	if !ok {
		t.Fatalf("ManufacturerData has type %T", props["ManufacturerData"])
	}
	payload, _ := md[ibeacon.CompanyID].([]byte)
	if got, err := ibeacon.ParseRaw(payload); err != nil || got != raw {
		t.Errorf("payload %x, want %s", payload, raw)
	}
	if adapter.count(registerMethod) != 1 {
		t.Errorf("expected one RegisterAdvertisement call")
	}

	if err := d.StopAdvertising(); err != nil {
		t.Fatalf("StopAdvertising failed: %v", err)
	}
	if adapter.count(unregisterMethod) != 1 {
		t.Errorf("expected one UnregisterAdvertisement call")
	}
	if len(exp.exported) != 0 {
		t.Errorf("advertisement still exported after stop")
	}
}

func TestStartTwiceReportsAlreadyStarted(t *testing.T) {
	adapter := &fakeAdapter{}
	d := newDriver(adapter, newFakeExporter(), "hci0")

	cb, result := wait(t)
	d.StartAdvertising(ibeacon.DefaultAdvertisement(), cb)
	if err := result(); err != nil {
		t.Fatalf("first start failed: %v", err)
	}

	cb2, result2 := wait(t)
	d.StartAdvertising(ibeacon.DefaultAdvertisement(), cb2)
	if err := result2(); !errors.Is(err, radio.ErrAlreadyStarted) {
		t.Fatalf("expected already started, got %v", err)
	}
	if adapter.count(registerMethod) != 1 {
		t.Errorf("second start must not reach bluetoothd")
	}
}

func TestRegisterFailureMapsReason(t *testing.T) {
	adapter := &fakeAdapter{errs: map[string]error{
		registerMethod: dbus.Error{Name: "org.bluez.Error.AlreadyExists"},
	}}
	exp := newFakeExporter()
	d := newDriver(adapter, exp, "hci0")

	cb, result := wait(t)
	d.StartAdvertising(ibeacon.DefaultAdvertisement(), cb)
	err := result()
	if err == nil || err.Reason != radio.ReasonAlreadyStarted {
		t.Fatalf("expected ReasonAlreadyStarted, got %v", err)
	}
	if len(exp.exported) != 0 {
		t.Errorf("failed registration should unexport the object")
	}

	// Nothing registered, so stop has nothing to do
	if err := d.StopAdvertising(); err != nil {
		t.Errorf("StopAdvertising after failed start: %v", err)
	}
	if adapter.count(unregisterMethod) != 0 {
		t.Errorf("unexpected UnregisterAdvertisement call")
	}
}

func TestStopToleratesDoesNotExist(t *testing.T) {
	adapter := &fakeAdapter{errs: map[string]error{
		unregisterMethod: dbus.Error{Name: "org.bluez.Error.DoesNotExist"},
	}}
	d := newDriver(adapter, newFakeExporter(), "hci0")

	cb, result := wait(t)
	d.StartAdvertising(ibeacon.DefaultAdvertisement(), cb)
	result()

	if err := d.StopAdvertising(); err != nil {
		t.Fatalf("DoesNotExist should count as stopped: %v", err)
	}
}

func TestStopFailureKeepsRegistration(t *testing.T) {
	adapter := &fakeAdapter{errs: map[string]error{
		unregisterMethod: dbus.Error{Name: "org.bluez.Error.Failed"},
	}}
	exp := newFakeExporter()
	d := newDriver(adapter, exp, "hci0")

	cb, result := wait(t)
	d.StartAdvertising(ibeacon.DefaultAdvertisement(), cb)
	result()

	err := d.StopAdvertising()
	var de *radio.DriverError
	if !errors.As(err, &de) || de.Reason != radio.ReasonInternalError || de.Op != "stop" {
		t.Fatalf("expected internal stop error, got %v", err)
	}
	exp.only(t)
}

func TestReleaseClearsRegistration(t *testing.T) {
	adapter := &fakeAdapter{}
	exp := newFakeExporter()
	d := newDriver(adapter, exp, "hci0")

	cb, result := wait(t)
	d.StartAdvertising(ibeacon.DefaultAdvertisement(), cb)
	result()

	path, _ := exp.only(t)
	exp.release[path]()

	cb2, result2 := wait(t)
	d.StartAdvertising(ibeacon.DefaultAdvertisement(), cb2)
	if err := result2(); err != nil {
		t.Fatalf("start after release failed: %v", err)
	}
}

func TestReasonFromDBus(t *testing.T) {
	tests := map[string]radio.Reason{
		"org.bluez.Error.AlreadyExists":            radio.ReasonAlreadyStarted,
		"org.bluez.Error.InvalidLength":            radio.ReasonDataTooLarge,
		"org.bluez.Error.NotPermitted":             radio.ReasonTooManyAdvertisers,
		"org.freedesktop.DBus.Error.UnknownMethod": radio.ReasonFeatureUnsupported,
		"org.bluez.Error.Failed":                   radio.ReasonInternalError,
		"com.example.Whatever":                     radio.ReasonUnknown,
	}
	for name, want := range tests {
		if got := ReasonFromDBus(dbus.Error{Name: name}); got != want {
			t.Errorf("%s: got %s, want %s", name, got, want)
		}
	}
	if got := ReasonFromDBus(errors.New("plain")); got != radio.ReasonUnknown {
		t.Errorf("plain error: got %s", got)
	}
}
