package wire

import "time"

const (
	advertisingFile = "advertising.json"

	// DefaultDiscoveryInterval is how often StartDiscovery rescans the air directory.
	DefaultDiscoveryInterval = 1 * time.Second
)
