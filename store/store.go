// Package store persists the last broadcast advertisement as base64 text under a
// single well-known key.
package store

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/user/ibeacon-blue/wire/ibeacon"
)

// Key is the preference name the advertisement is stored under.
const Key = "advertising_data"

// ErrCorrupt is wrapped when a stored value is not a base64 23-byte advertisement.
var ErrCorrupt = errors.New("store: stored advertisement is corrupt")

// EncodeValue renders raw the way it is persisted.
func EncodeValue(raw ibeacon.RawAdvertisement) string {
	return base64.StdEncoding.EncodeToString(raw[:])
}

// DecodeValue parses a persisted value. An empty value reports ok=false.
func DecodeValue(s string) (ibeacon.RawAdvertisement, bool, error) {
	if s == "" {
		return ibeacon.RawAdvertisement{}, false, nil
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return ibeacon.RawAdvertisement{}, false, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	raw, err := ibeacon.ParseRaw(b)
	if err != nil {
		return ibeacon.RawAdvertisement{}, false, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return raw, true, nil
}
