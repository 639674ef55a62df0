package radio

import (
	"fmt"
	"sync"

	"github.com/user/ibeacon-blue/kotlin"
	"github.com/user/ibeacon-blue/logger"
	"github.com/user/ibeacon-blue/wire/ibeacon"
)

// AndroidCodeError carries the raw AdvertiseCallback error code.
type AndroidCodeError int

func (c AndroidCodeError) Error() string { return kotlin.ErrorCodeName(int(c)) }

// ReasonFromAndroid maps an AdvertiseCallback error code to a Reason.
func ReasonFromAndroid(code int) Reason {
	switch code {
	case kotlin.ADVERTISE_FAILED_DATA_TOO_LARGE:
		return ReasonDataTooLarge
	case kotlin.ADVERTISE_FAILED_TOO_MANY_ADVERTISERS:
		return ReasonTooManyAdvertisers
	case kotlin.ADVERTISE_FAILED_ALREADY_STARTED:
		return ReasonAlreadyStarted
	case kotlin.ADVERTISE_FAILED_INTERNAL_ERROR:
		return ReasonInternalError
	case kotlin.ADVERTISE_FAILED_FEATURE_UNSUPPORTED:
		return ReasonFeatureUnsupported
	default:
		return ReasonUnknown
	}
}

// Android drives the simulated Android advertiser. Settings match a battery-friendly
// beacon: low power mode, connectable, medium TX power, no name or TX power AD.
type Android struct {
	adapter  *kotlin.BluetoothAdapter
	settings *kotlin.AdvertiseSettings
	tag      string

	mu     sync.Mutex
	active *kotlin.BluetoothLeAdvertiser
}

// NewAndroid wraps an adapter. The advertiser is looked up on every start, so an
// adapter switched off after construction fails cleanly.
func NewAndroid(adapter *kotlin.BluetoothAdapter, deviceID string) *Android {
	if len(deviceID) > 8 {
		deviceID = deviceID[:8]
	}
	return &Android{
		adapter:  adapter,
		settings: kotlin.DefaultAdvertiseSettings(),
		tag:      deviceID + " Radio",
	}
}

func (d *Android) StartAdvertising(raw ibeacon.RawAdvertisement, cb Callback) error {
	adv := d.adapter.GetBluetoothLeAdvertiser()
	if adv == nil {
		return &DriverError{Reason: ReasonFeatureUnsupported, Op: "start", Err: ErrRadioOff}
	}

	d.mu.Lock()
	d.active = adv
	d.mu.Unlock()

	data := &kotlin.AdvertiseData{
		ManufacturerData: map[int][]byte{ibeacon.CompanyID: raw.Bytes()},
	}
	logger.Trace(d.tag, "startAdvertising %s", raw)
	adv.StartAdvertising(d.settings, data, nil, androidCallback{cb: cb, tag: d.tag})
	return nil
}

func (d *Android) StopAdvertising() error {
	d.mu.Lock()
	adv := d.active
	d.mu.Unlock()

	if adv == nil {
		adv = d.adapter.GetBluetoothLeAdvertiser()
	}
	if adv == nil {
		return &DriverError{Reason: ReasonInternalError, Op: "stop", Err: ErrRadioOff}
	}
	adv.StopAdvertising()
	return nil
}

type androidCallback struct {
	cb  Callback
	tag string
}

func (c androidCallback) OnStartSuccess(settings *kotlin.AdvertiseSettings) {
	logger.Trace(c.tag, "onStartSuccess mode=%d connectable=%v", settings.AdvertiseMode, settings.Connectable)
	c.cb.OnStartSuccess()
}

func (c androidCallback) OnStartFailure(errorCode int) {
	logger.Trace(c.tag, "onStartFailure %s", kotlin.ErrorCodeName(errorCode))
	c.cb.OnStartFailure(&DriverError{
		Reason: ReasonFromAndroid(errorCode),
		Op:     "start",
		Err:    fmt.Errorf("android: %w", AndroidCodeError(errorCode)),
	})
}
