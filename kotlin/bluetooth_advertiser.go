package kotlin

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/user/ibeacon-blue/logger"
	"github.com/user/ibeacon-blue/wire"
	"github.com/user/ibeacon-blue/wire/advertising"
)

// AdvertiseCallback matches Android's AdvertiseCallback interface
type AdvertiseCallback interface {
	OnStartSuccess(settingsInEffect *AdvertiseSettings)
	OnStartFailure(errorCode int)
}

// AdvertiseSettings matches Android's AdvertiseSettings class
type AdvertiseSettings struct {
	AdvertiseMode int // ADVERTISE_MODE_LOW_POWER, BALANCED, LOW_LATENCY
	Connectable   bool
	Timeout       int // milliseconds, 0 = no timeout
	TxPowerLevel  int // ADVERTISE_TX_POWER_ULTRA_LOW, LOW, MEDIUM, HIGH
}

// AdvertiseSettings modes
const (
	ADVERTISE_MODE_LOW_POWER   = 0 // 1000ms interval
	ADVERTISE_MODE_BALANCED    = 1 // 250ms interval
	ADVERTISE_MODE_LOW_LATENCY = 2 // 100ms interval
)

// AdvertiseSettings TX power levels
const (
	ADVERTISE_TX_POWER_ULTRA_LOW = 0 // -21 dBm
	ADVERTISE_TX_POWER_LOW       = 1 // -15 dBm
	ADVERTISE_TX_POWER_MEDIUM    = 2 // -7 dBm
	ADVERTISE_TX_POWER_HIGH      = 3 // 1 dBm
)

// AdvertiseCallback error codes
const (
	ADVERTISE_FAILED_DATA_TOO_LARGE       = 1
	ADVERTISE_FAILED_TOO_MANY_ADVERTISERS = 2
	ADVERTISE_FAILED_ALREADY_STARTED      = 3
	ADVERTISE_FAILED_INTERNAL_ERROR       = 4
	ADVERTISE_FAILED_FEATURE_UNSUPPORTED  = 5
)

// ErrorCodeName returns the Android constant name for an AdvertiseCallback error code
func ErrorCodeName(code int) string {
	switch code {
	case ADVERTISE_FAILED_DATA_TOO_LARGE:
		return "ADVERTISE_FAILED_DATA_TOO_LARGE"
	case ADVERTISE_FAILED_TOO_MANY_ADVERTISERS:
		return "ADVERTISE_FAILED_TOO_MANY_ADVERTISERS"
	case ADVERTISE_FAILED_ALREADY_STARTED:
		return "ADVERTISE_FAILED_ALREADY_STARTED"
	case ADVERTISE_FAILED_INTERNAL_ERROR:
		return "ADVERTISE_FAILED_INTERNAL_ERROR"
	case ADVERTISE_FAILED_FEATURE_UNSUPPORTED:
		return "ADVERTISE_FAILED_FEATURE_UNSUPPORTED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", code)
	}
}

// DefaultAdvertiseSettings mirrors AdvertiseSettings.Builder() with no setters called
func DefaultAdvertiseSettings() *AdvertiseSettings {
	return &AdvertiseSettings{
		AdvertiseMode: ADVERTISE_MODE_LOW_POWER,
		Connectable:   true,
		Timeout:       0,
		TxPowerLevel:  ADVERTISE_TX_POWER_MEDIUM,
	}
}

// AdvertiseData matches Android's AdvertiseData class
type AdvertiseData struct {
	ManufacturerData    map[int][]byte // Company ID -> data
	IncludeTxPowerLevel bool
	IncludeDeviceName   bool
}

// BluetoothLeAdvertiser matches Android's BluetoothLeAdvertiser class
type BluetoothLeAdvertiser struct {
	uuid       string
	deviceName string
	wire       *wire.Wire
	adapter    *BluetoothAdapter // nil when created standalone

	mu              sync.Mutex
	isAdvertising   bool
	stopAdvertising chan struct{}
	callback        AdvertiseCallback
	settings        *AdvertiseSettings
}

// NewBluetoothLeAdvertiser creates a new advertiser
func NewBluetoothLeAdvertiser(uuid string, deviceName string, sharedWire *wire.Wire) *BluetoothLeAdvertiser {
	return &BluetoothLeAdvertiser{
		uuid:          uuid,
		deviceName:    deviceName,
		wire:          sharedWire,
		isAdvertising: false,
	}
}

func (a *BluetoothLeAdvertiser) tag() string {
	id := a.uuid
	if len(id) > 8 {
		id = id[:8]
	}
	return id + " Android"
}

// StartAdvertising starts advertising with the specified settings and data.
// Success and failure are both reported asynchronously through callback.
// Matches: bluetoothLeAdvertiser.startAdvertising(settings, advertiseData, scanResponse, callback)
func (a *BluetoothLeAdvertiser) StartAdvertising(
	settings *AdvertiseSettings,
	advertiseData *AdvertiseData,
	scanResponse *AdvertiseData,
	callback AdvertiseCallback,
) {
	fail := func(code int) {
		logger.Debug(a.tag(), "❌ startAdvertising failed: %s", ErrorCodeName(code))
		if callback != nil {
			go callback.OnStartFailure(code)
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.isAdvertising {
		fail(ADVERTISE_FAILED_ALREADY_STARTED)
		return
	}

	if settings == nil {
		settings = DefaultAdvertiseSettings()
	}

	if a.adapter != nil {
		if !a.adapter.IsMultipleAdvertisementSupported() {
			fail(ADVERTISE_FAILED_FEATURE_UNSUPPORTED)
			return
		}
		if !a.adapter.acquireAdvertiserSlot() {
			fail(ADVERTISE_FAILED_TOO_MANY_ADVERTISERS)
			return
		}
	}
	release := func() {
		if a.adapter != nil {
			a.adapter.releaseAdvertiserSlot()
		}
	}

	wireAdvData, err := a.buildAdvertisingData(settings, advertiseData)
	if err != nil {
		release()
		if errors.Is(err, advertising.ErrDataTooLarge) {
			fail(ADVERTISE_FAILED_DATA_TOO_LARGE)
		} else {
			fail(ADVERTISE_FAILED_INTERNAL_ERROR)
		}
		return
	}

	// Scan response goes out in a separate 31-byte packet; only its size is checked here
	if scanResponse != nil {
		if _, err := a.buildAdvertisingData(&AdvertiseSettings{TxPowerLevel: settings.TxPowerLevel}, scanResponse); err != nil {
			release()
			fail(ADVERTISE_FAILED_DATA_TOO_LARGE)
			return
		}
	}

	// Write advertising data to wire layer
	if err := a.wire.WriteAdvertisingData(wireAdvData); err != nil {
		release()
		fail(ADVERTISE_FAILED_INTERNAL_ERROR)
		return
	}

	a.callback = callback
	a.settings = settings
	a.isAdvertising = true
	a.stopAdvertising = make(chan struct{})

	logger.Info(a.tag(), "📡 Started Advertising (%d bytes, interval %dms)", len(wireAdvData.Payload), wireAdvData.IntervalMs)

	// Handle timeout if specified
	if settings.Timeout > 0 {
		stop := a.stopAdvertising
		go func() {
			select {
			case <-time.After(time.Duration(settings.Timeout) * time.Millisecond):
				a.StopAdvertising()
			case <-stop:
				// Stopped manually before timeout
			}
		}()
	}

	// Notify callback of success
	if callback != nil {
		go func() {
			// Small delay to match real Android async behavior
			time.Sleep(10 * time.Millisecond)
			callback.OnStartSuccess(settings)
		}()
	}
}

// StopAdvertising stops advertising. Stopping an idle advertiser is a no-op.
// Matches: bluetoothLeAdvertiser.stopAdvertising(callback)
func (a *BluetoothLeAdvertiser) StopAdvertising() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.isAdvertising {
		return
	}

	if a.stopAdvertising != nil {
		close(a.stopAdvertising)
		a.stopAdvertising = nil
	}

	if err := a.wire.ClearAdvertisingData(); err != nil {
		logger.Warn(a.tag(), "⚠️  Failed to clear advertising data: %v", err)
	}
	if a.adapter != nil {
		a.adapter.releaseAdvertiserSlot()
	}

	a.isAdvertising = false
	a.callback = nil
	a.settings = nil

	logger.Info(a.tag(), "📡 Stopped Advertising")
}

// IsAdvertising returns whether currently advertising
func (a *BluetoothLeAdvertiser) IsAdvertising() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.isAdvertising
}

// buildAdvertisingData lays out the AD structures the way the Android stack does:
// flags (connectable only), manufacturer data in company order, TX power, then name.
func (a *BluetoothLeAdvertiser) buildAdvertisingData(settings *AdvertiseSettings, advertiseData *AdvertiseData) (*wire.AdvertisingData, error) {
	wireAdvData := &wire.AdvertisingData{
		IsConnectable: settings.Connectable,
		AdvertiseMode: settings.AdvertiseMode,
		IntervalMs:    int(advertiseInterval(settings.AdvertiseMode) / time.Millisecond),
	}

	var structures []advertising.ADStructure
	if settings.Connectable {
		structures = append(structures, advertising.NewFlagsAD(advertising.FlagLEGeneralDiscoverableMode|advertising.FlagBREDRNotSupported))
	}

	if advertiseData != nil {
		companies := make([]int, 0, len(advertiseData.ManufacturerData))
		for id := range advertiseData.ManufacturerData {
			companies = append(companies, id)
		}
		sort.Ints(companies)
		for i, id := range companies {
			data := advertiseData.ManufacturerData[id]
			structures = append(structures, advertising.NewManufacturerSpecificDataAD(uint16(id), data))
			if i == 0 {
				wireAdvData.ManufacturerID = uint16(id)
				wireAdvData.ManufacturerData = append([]byte(nil), data...)
			}
		}

		// Include TX power level if requested
		if advertiseData.IncludeTxPowerLevel {
			txPower := txPowerLevelToDbm(settings.TxPowerLevel)
			wireAdvData.TxPowerLevel = &txPower
			structures = append(structures, advertising.NewTxPowerLevelAD(int8(txPower)))
		}

		// Include device name if requested
		if advertiseData.IncludeDeviceName {
			wireAdvData.DeviceName = a.deviceName
			structures = append(structures, advertising.NewCompleteLocalNameAD(a.deviceName))
		}
	}

	payload, err := advertising.EncodeADStructures(structures)
	if err != nil {
		return nil, err
	}
	wireAdvData.Payload = payload
	return wireAdvData, nil
}

// advertiseInterval converts an Android advertise mode to its nominal interval
func advertiseInterval(mode int) time.Duration {
	switch mode {
	case ADVERTISE_MODE_LOW_LATENCY:
		return 100 * time.Millisecond
	case ADVERTISE_MODE_BALANCED:
		return 250 * time.Millisecond
	default:
		return 1000 * time.Millisecond
	}
}

// txPowerLevelToDbm converts Android TX power level to dBm
func txPowerLevelToDbm(level int) int {
	switch level {
	case ADVERTISE_TX_POWER_ULTRA_LOW:
		return -21
	case ADVERTISE_TX_POWER_LOW:
		return -15
	case ADVERTISE_TX_POWER_MEDIUM:
		return -7
	case ADVERTISE_TX_POWER_HIGH:
		return 1
	default:
		return -7 // Default to medium
	}
}
