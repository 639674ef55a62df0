package beacon

import (
	"context"
	"sync"

	"github.com/user/ibeacon-blue/radio"
	"github.com/user/ibeacon-blue/wire/ibeacon"
)

// fakeDriver records calls and lets tests decide when and how starts complete.
type fakeDriver struct {
	mu        sync.Mutex
	starts    []ibeacon.RawAdvertisement
	callbacks []radio.Callback
	stops     int
	on        bool // radio is advertising

	startErr error // returned synchronously from StartAdvertising
	stopErrs []error
	auto     func(cb radio.Callback) // called inline from StartAdvertising when set
	submit   func()                  // called first thing in StartAdvertising when set
}

func (d *fakeDriver) StartAdvertising(raw ibeacon.RawAdvertisement, cb radio.Callback) error {
	d.mu.Lock()
	submit := d.submit
	d.mu.Unlock()
	if submit != nil {
		submit()
	}

	d.mu.Lock()
	d.starts = append(d.starts, raw)
	d.callbacks = append(d.callbacks, cb)
	startErr := d.startErr
	auto := d.auto
	if startErr == nil {
		d.on = true
	}
	d.mu.Unlock()

	if startErr != nil {
		return startErr
	}
	if auto != nil {
		auto(cb)
	}
	return nil
}

func (d *fakeDriver) StopAdvertising() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stops++
	if len(d.stopErrs) > 0 {
		err := d.stopErrs[0]
		d.stopErrs = d.stopErrs[1:]
		return err
	}
	d.on = false
	return nil
}

func (d *fakeDriver) advertising() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.on
}

func (d *fakeDriver) startCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.starts)
}

func (d *fakeDriver) stopCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stops
}

func (d *fakeDriver) callback(i int) radio.Callback {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.callbacks[i]
}

func succeed(cb radio.Callback) { cb.OnStartSuccess() }

func failWith(reason radio.Reason) func(cb radio.Callback) {
	return func(cb radio.Callback) {
		cb.OnStartFailure(&radio.DriverError{Reason: reason, Op: "start"})
	}
}

// memStore is an in-memory Store.
type memStore struct {
	mu      sync.Mutex
	raw     ibeacon.RawAdvertisement
	ok      bool
	saves   int
	saveErr error
	loadErr error
}

func (m *memStore) Save(_ context.Context, raw ibeacon.RawAdvertisement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.raw, m.ok = raw, true
	m.saves++
	return nil
}

func (m *memStore) Load(_ context.Context) (ibeacon.RawAdvertisement, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.raw, m.ok, m.loadErr
}
