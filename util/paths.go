package util

import (
	"os"
	"path/filepath"
)

// DataDirEnv overrides the data directory, mainly for tests.
const DataDirEnv = "IBEACON_BLUE_DIR"

// GetDataDir returns the data directory path
func GetDataDir() string {
	if envDir := os.Getenv(DataDirEnv); envDir != "" {
		return envDir
	}

	home, err := os.UserHomeDir()
	if err != nil {
		// No home directory (e.g. a stripped-down service account)
		return "data"
	}
	return filepath.Join(home, ".ibeacon-blue-data")
}

// GetDeviceDir returns the directory for a specific simulated device
// Example: ~/.ibeacon-blue-data/air/{deviceUUID}/
func GetDeviceDir(deviceUUID string) string {
	return filepath.Join(GetAirDir(), deviceUUID)
}

// GetAirDir returns the directory where simulated devices publish what they broadcast
func GetAirDir() string {
	return filepath.Join(GetDataDir(), "air")
}

// GetPrefsPath returns the path of the preferences file holding the last used advertisement
func GetPrefsPath() string {
	return filepath.Join(GetDataDir(), "prefs.json")
}
