package kotlin

import (
	"bytes"
	"testing"

	"github.com/user/ibeacon-blue/wire"
	"github.com/user/ibeacon-blue/wire/advertising"
	"github.com/user/ibeacon-blue/wire/ibeacon"
)

func beaconAdvertiseData() *AdvertiseData {
	raw := ibeacon.DefaultAdvertisement()
	return &AdvertiseData{
		ManufacturerData: map[int][]byte{ibeacon.CompanyID: raw.Bytes()},
	}
}

// TestBluetoothLeAdvertiser_StartPublishesToWire tests that a started advertiser is visible to scanners
func TestBluetoothLeAdvertiser_StartPublishesToWire(t *testing.T) {
	setupTestEnv(t)

	w := wire.NewWire("peripheral-uuid")
	scanner := wire.NewWire("central-uuid")
	advertiser := NewBluetoothLeAdvertiser("peripheral-uuid", "Beacon", w)

	callback, success, failure := channelCallback()
	advertiser.StartAdvertising(DefaultAdvertiseSettings(), beaconAdvertiseData(), nil, callback)

	if code := waitStart(t, success, failure); code != 0 {
		t.Fatalf("Advertising failed with %s", ErrorCodeName(code))
	}
	if !advertiser.IsAdvertising() {
		t.Fatal("Expected advertiser to report advertising")
	}

	data, err := scanner.ReadAdvertisingData("peripheral-uuid")
	if err != nil {
		t.Fatalf("Scanner could not read advertisement: %v", err)
	}
	raw, err := advertising.ParseIBeacon(data.Payload)
	if err != nil {
		t.Fatalf("Payload is not an iBeacon: %v", err)
	}
	if raw != ibeacon.DefaultAdvertisement() {
		t.Errorf("Wrong payload on air: %s", raw)
	}
	if data.IntervalMs != 1000 {
		t.Errorf("LOW_POWER should advertise every 1000ms, got %d", data.IntervalMs)
	}
	if !bytes.Equal(data.ManufacturerData, raw.Bytes()) {
		t.Errorf("ManufacturerData mismatch")
	}

	advertiser.StopAdvertising()
	if advertiser.IsAdvertising() {
		t.Error("Expected advertiser to be stopped")
	}
	if got := scanner.ListAvailableDevices(); len(got) != 0 {
		t.Errorf("Expected nothing on air after stop, got %v", got)
	}
}

// TestBluetoothLeAdvertiser_AlreadyStarted tests the second start reports ALREADY_STARTED
func TestBluetoothLeAdvertiser_AlreadyStarted(t *testing.T) {
	setupTestEnv(t)

	advertiser := NewBluetoothLeAdvertiser("peripheral-uuid", "Beacon", wire.NewWire("peripheral-uuid"))
	defer advertiser.StopAdvertising()

	first, success, failure := channelCallback()
	advertiser.StartAdvertising(nil, beaconAdvertiseData(), nil, first)
	if code := waitStart(t, success, failure); code != 0 {
		t.Fatalf("First start failed with %s", ErrorCodeName(code))
	}

	second, success2, failure2 := channelCallback()
	advertiser.StartAdvertising(nil, beaconAdvertiseData(), nil, second)
	if code := waitStart(t, success2, failure2); code != ADVERTISE_FAILED_ALREADY_STARTED {
		t.Fatalf("Expected ALREADY_STARTED, got %s", ErrorCodeName(code))
	}
	if !advertiser.IsAdvertising() {
		t.Error("Failed second start must not stop the first advertisement")
	}
}

// TestBluetoothLeAdvertiser_DataTooLarge tests that a name pushing past 31 bytes is rejected
func TestBluetoothLeAdvertiser_DataTooLarge(t *testing.T) {
	setupTestEnv(t)

	advertiser := NewBluetoothLeAdvertiser("peripheral-uuid", "A Rather Long Beacon Name", wire.NewWire("peripheral-uuid"))
	data := beaconAdvertiseData()
	data.IncludeDeviceName = true

	callback, success, failure := channelCallback()
	advertiser.StartAdvertising(nil, data, nil, callback)

	if code := waitStart(t, success, failure); code != ADVERTISE_FAILED_DATA_TOO_LARGE {
		t.Fatalf("Expected DATA_TOO_LARGE, got %s", ErrorCodeName(code))
	}
	if advertiser.IsAdvertising() {
		t.Error("Advertiser should not be running after DATA_TOO_LARGE")
	}
}

// TestBluetoothLeAdvertiser_NonConnectableOmitsFlags tests the AD layout without flags
func TestBluetoothLeAdvertiser_NonConnectableOmitsFlags(t *testing.T) {
	setupTestEnv(t)

	w := wire.NewWire("peripheral-uuid")
	advertiser := NewBluetoothLeAdvertiser("peripheral-uuid", "", w)
	defer advertiser.StopAdvertising()

	settings := DefaultAdvertiseSettings()
	settings.Connectable = false
	settings.AdvertiseMode = ADVERTISE_MODE_LOW_LATENCY

	callback, success, failure := channelCallback()
	advertiser.StartAdvertising(settings, beaconAdvertiseData(), nil, callback)
	if code := waitStart(t, success, failure); code != 0 {
		t.Fatalf("Start failed with %s", ErrorCodeName(code))
	}

	data, err := w.ReadAdvertisingData("peripheral-uuid")
	if err != nil {
		t.Fatalf("ReadAdvertisingData failed: %v", err)
	}
	structures, err := advertising.DecodeADStructures(data.Payload)
	if err != nil {
		t.Fatalf("DecodeADStructures failed: %v", err)
	}
	if _, found := advertising.GetFlags(structures); found {
		t.Error("Non-connectable advertisement should not carry flags")
	}
	if data.IntervalMs != 100 {
		t.Errorf("LOW_LATENCY should advertise every 100ms, got %d", data.IntervalMs)
	}
}

func TestBluetoothLeAdvertiser_StopIdleIsNoop(t *testing.T) {
	setupTestEnv(t)

	advertiser := NewBluetoothLeAdvertiser("peripheral-uuid", "", wire.NewWire("peripheral-uuid"))
	advertiser.StopAdvertising()
	if advertiser.IsAdvertising() {
		t.Error("Idle advertiser should stay idle")
	}
}

func TestErrorCodeName(t *testing.T) {
	if got := ErrorCodeName(ADVERTISE_FAILED_ALREADY_STARTED); got != "ADVERTISE_FAILED_ALREADY_STARTED" {
		t.Errorf("Unexpected name %s", got)
	}
	if got := ErrorCodeName(42); got != "UNKNOWN(42)" {
		t.Errorf("Unexpected name %s", got)
	}
}
