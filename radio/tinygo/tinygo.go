// Package tinygo advertises through tinygo.org/x/bluetooth, which covers Linux (BlueZ),
// macOS, Windows and bare-metal Nordic/RP2040 targets.
package tinygo

import (
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"tinygo.org/x/bluetooth"

	"github.com/user/ibeacon-blue/logger"
	"github.com/user/ibeacon-blue/radio"
	"github.com/user/ibeacon-blue/wire/ibeacon"
)

// Interval is the advertising interval used for beacons (low power mode).
const Interval = 1000 * time.Millisecond

// advertisement is the part of *bluetooth.Advertisement the driver uses.
type advertisement interface {
	Configure(options bluetooth.AdvertisementOptions) error
	Start() error
	Stop() error
}

// Driver owns the adapter's default advertisement.
type Driver struct {
	adv advertisement

	mu      sync.Mutex
	started bool
}

// Open enables the default adapter.
func Open() (*Driver, error) {
	adapter := bluetooth.DefaultAdapter
	if err := adapter.Enable(); err != nil {
		return nil, errors.Wrap(err, "tinygo: enable adapter")
	}
	return &Driver{adv: adapter.DefaultAdvertisement()}, nil
}

// Options builds the advertisement options for raw.
func Options(raw ibeacon.RawAdvertisement) bluetooth.AdvertisementOptions {
	return bluetooth.AdvertisementOptions{
		Interval: bluetooth.NewDuration(Interval),
		ManufacturerData: []bluetooth.ManufacturerDataElement{
			{CompanyID: ibeacon.CompanyID, Data: raw.Bytes()},
		},
	}
}

// StartAdvertising configures and starts the advertisement. The stack answers
// synchronously, so the callback fires on a fresh goroutine once the result is known.
func (d *Driver) StartAdvertising(raw ibeacon.RawAdvertisement, cb radio.Callback) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		go cb.OnStartFailure(&radio.DriverError{Reason: radio.ReasonAlreadyStarted, Op: "start"})
		return nil
	}

	if err := d.adv.Configure(Options(raw)); err != nil {
		de := &radio.DriverError{Reason: reasonFromError(err), Op: "start", Err: errors.Wrap(err, "tinygo: configure")}
		go cb.OnStartFailure(de)
		return nil
	}
	if err := d.adv.Start(); err != nil {
		de := &radio.DriverError{Reason: reasonFromError(err), Op: "start", Err: errors.Wrap(err, "tinygo: start")}
		go cb.OnStartFailure(de)
		return nil
	}

	d.started = true
	logger.Trace("tinygo Radio", "advertising %s", raw)
	go cb.OnStartSuccess()
	return nil
}

func (d *Driver) StopAdvertising() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started {
		return nil
	}
	if err := d.adv.Stop(); err != nil {
		if !strings.Contains(err.Error(), "not started") {
			return &radio.DriverError{Reason: reasonFromError(err), Op: "stop", Err: errors.Wrap(err, "tinygo: stop")}
		}
	}
	d.started = false
	return nil
}

// reasonFromError classifies the library's plain-text errors.
func reasonFromError(err error) radio.Reason {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "already"):
		return radio.ReasonAlreadyStarted
	case strings.Contains(msg, "too large"), strings.Contains(msg, "too long"), strings.Contains(msg, "invalidlength"):
		return radio.ReasonDataTooLarge
	case strings.Contains(msg, "not supported"), strings.Contains(msg, "unsupported"):
		return radio.ReasonFeatureUnsupported
	default:
		return radio.ReasonInternalError
	}
}
