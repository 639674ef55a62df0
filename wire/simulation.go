package wire

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// SimulationConfig controls how a simulated scanner perceives advertisements.
type SimulationConfig struct {
	// Radio characteristics
	EnableRSSI     bool    // Default: true
	RSSIVariance   int     // Default: 4 dBm of fluctuation
	PathLossFactor float64 // Default: 2.0 (free space)

	// Fraction of scan windows that miss an advertisement
	PacketLossRate float64 // Default: 0.015

	// Deterministic mode for testing
	Deterministic bool
	Seed          int64
}

// DefaultSimulationConfig returns realistic scan parameters.
func DefaultSimulationConfig() *SimulationConfig {
	return &SimulationConfig{
		EnableRSSI:     true,
		RSSIVariance:   4,
		PathLossFactor: 2.0,
		PacketLossRate: 0.015,
	}
}

// PerfectSimulationConfig returns a lossless, jitter-free config for tests.
func PerfectSimulationConfig() *SimulationConfig {
	cfg := DefaultSimulationConfig()
	cfg.RSSIVariance = 0
	cfg.PacketLossRate = 0
	cfg.Deterministic = true
	return cfg
}

// Simulator turns calibrated beacon power into received signal strength.
type Simulator struct {
	config *SimulationConfig

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulator creates a simulator; nil selects DefaultSimulationConfig.
func NewSimulator(config *SimulationConfig) *Simulator {
	if config == nil {
		config = DefaultSimulationConfig()
	}

	var rng *rand.Rand
	if config.Deterministic {
		rng = rand.New(rand.NewSource(config.Seed))
	} else {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	return &Simulator{
		config: config,
		rng:    rng,
	}
}

// ShouldPacketSucceed reports whether this scan window hears the advertisement.
func (s *Simulator) ShouldPacketSucceed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64() >= s.config.PacketLossRate
}

// GenerateRSSI returns the RSSI a scanner distance meters away would see from a beacon
// whose measured power at 1 m is txPower.
func (s *Simulator) GenerateRSSI(txPower int8, distance float64) int {
	if !s.config.EnableRSSI {
		return int(txPower)
	}
	if distance < 0.1 {
		distance = 0.1
	}

	// Log-distance path loss relative to the 1 m calibration point
	rssi := float64(txPower) - 10*s.config.PathLossFactor*math.Log10(distance)

	if s.config.RSSIVariance > 0 {
		s.mu.Lock()
		rssi += float64(s.rng.Intn(s.config.RSSIVariance*2+1) - s.config.RSSIVariance)
		s.mu.Unlock()
	}

	// Clamp to realistic BLE range (-100 to -20 dBm)
	if rssi < -100 {
		rssi = -100
	} else if rssi > -20 {
		rssi = -20
	}
	return int(math.Round(rssi))
}

// EstimateDistance inverts the path loss model: meters from rssi and the beacon's
// measured power at 1 m.
func (s *Simulator) EstimateDistance(txPower int8, rssi int) float64 {
	if txPower == 0 {
		return -1
	}
	return math.Pow(10, float64(int(txPower)-rssi)/(10*s.config.PathLossFactor))
}
