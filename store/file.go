package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/user/ibeacon-blue/logger"
	"github.com/user/ibeacon-blue/util"
	"github.com/user/ibeacon-blue/wire/ibeacon"
)

// File keeps preferences as a flat JSON object of strings, like an Android
// SharedPreferences file. Keys other than Key are preserved.
type File struct {
	path string
	mu   sync.Mutex
}

// NewFile uses path, or the data directory's prefs.json when path is empty.
func NewFile(path string) *File {
	if path == "" {
		path = util.GetPrefsPath()
	}
	return &File{path: path}
}

// Path returns the backing file.
func (f *File) Path() string { return f.path }

func (f *File) Save(_ context.Context, raw ibeacon.RawAdvertisement) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	prefs, err := f.read()
	if err != nil {
		return err
	}
	prefs[Key] = EncodeValue(raw)

	data, err := json.MarshalIndent(prefs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal preferences: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return fmt.Errorf("failed to create preferences directory: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("failed to replace preferences: %w", err)
	}

	logger.Debug("Store", "saved %s to %s", raw, f.path)
	logger.TraceJSON("Store", "prefs", prefs)
	return nil
}

func (f *File) Load(_ context.Context) (ibeacon.RawAdvertisement, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	prefs, err := f.read()
	if err != nil {
		return ibeacon.RawAdvertisement{}, false, err
	}
	return DecodeValue(prefs[Key])
}

// read returns the current preferences; a missing file is an empty set.
func (f *File) read() (map[string]string, error) {
	prefs := map[string]string{}
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return prefs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read preferences: %w", err)
	}
	if len(data) == 0 {
		return prefs, nil
	}
	if err := json.Unmarshal(data, &prefs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return prefs, nil
}
