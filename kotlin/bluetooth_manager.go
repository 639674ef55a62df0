package kotlin

import (
	"sync"

	"github.com/user/ibeacon-blue/logger"
	"github.com/user/ibeacon-blue/wire"
)

// DefaultMaxAdvertisers is the number of concurrent advertising sets a typical
// controller supports.
const DefaultMaxAdvertisers = 4

// BluetoothManager matches Android's BluetoothManager system service
type BluetoothManager struct {
	Adapter *BluetoothAdapter
}

// NewBluetoothManager creates a manager whose adapter uses the shared wire
func NewBluetoothManager(uuid string, sharedWire *wire.Wire) *BluetoothManager {
	return &BluetoothManager{
		Adapter: NewBluetoothAdapter(uuid, sharedWire),
	}
}

// BluetoothAdapter matches Android's BluetoothAdapter class
type BluetoothAdapter struct {
	uuid string
	wire *wire.Wire

	mu                 sync.Mutex
	enabled            bool
	multiAdvertisement bool
	maxAdvertisers     int
	activeAdvertisers  int
	advertiser         *BluetoothLeAdvertiser
}

// NewBluetoothAdapter creates an enabled adapter with multi-advertisement support
func NewBluetoothAdapter(uuid string, sharedWire *wire.Wire) *BluetoothAdapter {
	return &BluetoothAdapter{
		uuid:               uuid,
		wire:               sharedWire,
		enabled:            true,
		multiAdvertisement: true,
		maxAdvertisers:     DefaultMaxAdvertisers,
	}
}

// IsEnabled matches bluetoothAdapter.isEnabled()
func (a *BluetoothAdapter) IsEnabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enabled
}

// SetEnabled simulates the user toggling Bluetooth
func (a *BluetoothAdapter) SetEnabled(enabled bool) {
	a.mu.Lock()
	a.enabled = enabled
	adv := a.advertiser
	a.mu.Unlock()

	if !enabled && adv != nil {
		adv.StopAdvertising()
	}
	logger.Debug(a.uuid[:min(8, len(a.uuid))]+" Android", "Bluetooth enabled=%v", enabled)
}

// IsMultipleAdvertisementSupported matches bluetoothAdapter.isMultipleAdvertisementSupported()
func (a *BluetoothAdapter) IsMultipleAdvertisementSupported() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.multiAdvertisement
}

// SetMultipleAdvertisementSupported simulates controllers without LE advertising support
func (a *BluetoothAdapter) SetMultipleAdvertisementSupported(supported bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.multiAdvertisement = supported
}

// SetMaxAdvertisers limits how many advertisers may run at once on this adapter
func (a *BluetoothAdapter) SetMaxAdvertisers(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.maxAdvertisers = n
}

// GetBluetoothLeAdvertiser returns the adapter's advertiser, or nil while Bluetooth is off
// Matches: bluetoothAdapter.getBluetoothLeAdvertiser()
func (a *BluetoothAdapter) GetBluetoothLeAdvertiser() *BluetoothLeAdvertiser {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.enabled {
		return nil
	}
	if a.advertiser == nil {
		a.advertiser = NewBluetoothLeAdvertiser(a.uuid, "", a.wire)
		a.advertiser.adapter = a
	}
	return a.advertiser
}

// NewAdvertisingSet returns an additional advertiser sharing this adapter's slots.
// Each set publishes on its own wire.
func (a *BluetoothAdapter) NewAdvertisingSet(uuid string, w *wire.Wire) *BluetoothLeAdvertiser {
	adv := NewBluetoothLeAdvertiser(uuid, "", w)
	adv.adapter = a
	return adv
}

func (a *BluetoothAdapter) acquireAdvertiserSlot() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.activeAdvertisers >= a.maxAdvertisers {
		return false
	}
	a.activeAdvertisers++
	return true
}

func (a *BluetoothAdapter) releaseAdvertiserSlot() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.activeAdvertisers > 0 {
		a.activeAdvertisers--
	}
}
