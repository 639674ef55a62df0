package kotlin

import (
	"testing"

	"github.com/user/ibeacon-blue/wire"
)

// TestBluetoothManager_SharedWire tests that BluetoothManager uses shared wire instance
func TestBluetoothManager_SharedWire(t *testing.T) {
	setupTestEnv(t)

	w := wire.NewWire("test-uuid")
	manager := NewBluetoothManager("test-uuid", w)

	if manager.Adapter.wire != w {
		t.Error("Adapter does not have shared wire")
	}

	advertiser := manager.Adapter.GetBluetoothLeAdvertiser()
	if advertiser == nil {
		t.Fatal("Expected an advertiser from an enabled adapter")
	}
	if advertiser.wire != w {
		t.Error("Advertiser does not have shared wire")
	}
	if manager.Adapter.GetBluetoothLeAdvertiser() != advertiser {
		t.Error("Adapter should hand out the same advertiser")
	}
}

// TestBluetoothAdapter_DisabledHasNoAdvertiser tests getBluetoothLeAdvertiser() returns null while off
func TestBluetoothAdapter_DisabledHasNoAdvertiser(t *testing.T) {
	setupTestEnv(t)

	adapter := NewBluetoothAdapter("test-uuid", wire.NewWire("test-uuid"))
	adv := adapter.GetBluetoothLeAdvertiser()

	callback, success, failure := channelCallback()
	adv.StartAdvertising(nil, beaconAdvertiseData(), nil, callback)
	if code := waitStart(t, success, failure); code != 0 {
		t.Fatalf("Start failed with %s", ErrorCodeName(code))
	}

	adapter.SetEnabled(false)
	if adapter.IsEnabled() {
		t.Error("Adapter should report disabled")
	}
	if adv.IsAdvertising() {
		t.Error("Disabling Bluetooth should stop advertising")
	}
	if adapter.GetBluetoothLeAdvertiser() != nil {
		t.Error("Expected nil advertiser while Bluetooth is off")
	}
}

// TestBluetoothAdapter_FeatureUnsupported tests controllers without LE advertising
func TestBluetoothAdapter_FeatureUnsupported(t *testing.T) {
	setupTestEnv(t)

	adapter := NewBluetoothAdapter("test-uuid", wire.NewWire("test-uuid"))
	adapter.SetMultipleAdvertisementSupported(false)

	callback, success, failure := channelCallback()
	adapter.GetBluetoothLeAdvertiser().StartAdvertising(nil, beaconAdvertiseData(), nil, callback)
	if code := waitStart(t, success, failure); code != ADVERTISE_FAILED_FEATURE_UNSUPPORTED {
		t.Fatalf("Expected FEATURE_UNSUPPORTED, got %s", ErrorCodeName(code))
	}
}

// TestBluetoothAdapter_TooManyAdvertisers tests the advertising set limit
func TestBluetoothAdapter_TooManyAdvertisers(t *testing.T) {
	setupTestEnv(t)

	adapter := NewBluetoothAdapter("set-0", wire.NewWire("set-0"))
	adapter.SetMaxAdvertisers(1)

	first := adapter.GetBluetoothLeAdvertiser()
	defer first.StopAdvertising()
	callback, success, failure := channelCallback()
	first.StartAdvertising(nil, beaconAdvertiseData(), nil, callback)
	if code := waitStart(t, success, failure); code != 0 {
		t.Fatalf("First set failed with %s", ErrorCodeName(code))
	}

	second := adapter.NewAdvertisingSet("set-1", wire.NewWire("set-1"))
	callback2, success2, failure2 := channelCallback()
	second.StartAdvertising(nil, beaconAdvertiseData(), nil, callback2)
	if code := waitStart(t, success2, failure2); code != ADVERTISE_FAILED_TOO_MANY_ADVERTISERS {
		t.Fatalf("Expected TOO_MANY_ADVERTISERS, got %s", ErrorCodeName(code))
	}

	// Freeing the slot lets the second set in
	first.StopAdvertising()
	callback3, success3, failure3 := channelCallback()
	second.StartAdvertising(nil, beaconAdvertiseData(), nil, callback3)
	if code := waitStart(t, success3, failure3); code != 0 {
		t.Fatalf("Second set failed after slot freed: %s", ErrorCodeName(code))
	}
	second.StopAdvertising()
}
