package wire

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/user/ibeacon-blue/logger"
	"github.com/user/ibeacon-blue/util"
	"github.com/user/ibeacon-blue/wire/advertising"
)

// Real BLE behavior: advertising data is stored per-device and discovered via filesystem
// scanning (simulates over-the-air discovery). No global registries - each device
// reads/writes its own files under {dataDir}/air/{hardwareUUID}/.

// Wire is the simulated radio medium for a single device.
type Wire struct {
	hardwareUUID string
	mu           sync.Mutex
}

// NewWire creates a new Wire instance
func NewWire(hardwareUUID string) *Wire {
	return &Wire{hardwareUUID: hardwareUUID}
}

// WriteAdvertisingData publishes what this device broadcasts.
// Real BLE: this sets what we broadcast in advertising packets
func (w *Wire) WriteAdvertisingData(data *AdvertisingData) error {
	if len(data.Payload) > advertising.MaxAdvertisingDataLen {
		return fmt.Errorf("%w: %d", advertising.ErrDataTooLarge, len(data.Payload))
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	deviceDir := util.GetDeviceDir(w.hardwareUUID)
	if err := os.MkdirAll(deviceDir, 0755); err != nil {
		return fmt.Errorf("failed to create device directory: %w", err)
	}

	if data.UpdatedAt.IsZero() {
		data.UpdatedAt = time.Now()
	}
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal advertising data: %w", err)
	}

	// Write then rename so scanners never see a half-written file
	advPath := filepath.Join(deviceDir, advertisingFile)
	tmpPath := advPath + ".tmp"
	if err := os.WriteFile(tmpPath, jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", advertisingFile, err)
	}
	if err := os.Rename(tmpPath, advPath); err != nil {
		return fmt.Errorf("failed to publish %s: %w", advertisingFile, err)
	}

	logger.Trace(shortHash(w.hardwareUUID)+" Wire", "📡 on air: % x", data.Payload)
	return nil
}

// ClearAdvertisingData takes this device off the air. Clearing twice is not an error.
func (w *Wire) ClearAdvertisingData() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	advPath := filepath.Join(util.GetDeviceDir(w.hardwareUUID), advertisingFile)
	if err := os.Remove(advPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", advertisingFile, err)
	}
	logger.Trace(shortHash(w.hardwareUUID)+" Wire", "📴 off air")
	return nil
}

// ReadAdvertisingData reads advertising data for a device from filesystem.
// The returned error wraps os.ErrNotExist when the device is not broadcasting.
func (w *Wire) ReadAdvertisingData(deviceUUID string) (*AdvertisingData, error) {
	advPath := filepath.Join(util.GetDeviceDir(deviceUUID), advertisingFile)

	data, err := os.ReadFile(advPath)
	if err != nil {
		return nil, fmt.Errorf("device %s not advertising: %w", shortHash(deviceUUID), err)
	}

	var advData AdvertisingData
	if err := json.Unmarshal(data, &advData); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", advertisingFile, err)
	}

	return &advData, nil
}
