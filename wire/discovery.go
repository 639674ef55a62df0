package wire

import (
	"path/filepath"
	"time"

	"github.com/user/ibeacon-blue/util"
)

// ListAvailableDevices scans the air directory and returns the hardware UUIDs of every
// other device currently advertising.
func (w *Wire) ListAvailableDevices() []string {
	devices := make([]string, 0)

	matches, err := filepath.Glob(filepath.Join(util.GetAirDir(), "*", advertisingFile))
	if err != nil {
		return devices
	}

	for _, path := range matches {
		uuid := filepath.Base(filepath.Dir(path))

		// Don't include ourselves
		if uuid != w.hardwareUUID {
			devices = append(devices, uuid)
		}
	}

	return devices
}

// StartDiscovery polls the air every interval and reports each advertising device.
// Close the returned channel to stop.
func (w *Wire) StartDiscovery(interval time.Duration, callback func(deviceUUID string, data *AdvertisingData)) chan struct{} {
	if interval <= 0 {
		interval = DefaultDiscoveryInterval
	}
	stopChan := make(chan struct{})

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			w.scanOnce(callback)
			select {
			case <-stopChan:
				return
			case <-ticker.C:
			}
		}
	}()

	return stopChan
}

func (w *Wire) scanOnce(callback func(deviceUUID string, data *AdvertisingData)) {
	for _, deviceUUID := range w.ListAvailableDevices() {
		data, err := w.ReadAdvertisingData(deviceUUID)
		if err != nil {
			// Went off air between the glob and the read, or mid-write garbage
			continue
		}
		callback(deviceUUID, data)
	}
}
