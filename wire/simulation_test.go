package wire

import (
	"math"
	"testing"
)

func TestGenerateRSSIPerfect(t *testing.T) {
	sim := NewSimulator(PerfectSimulationConfig())

	if got := sim.GenerateRSSI(-59, 1); got != -59 {
		t.Errorf("RSSI at 1 m should equal measured power, got %d", got)
	}
	if got := sim.GenerateRSSI(-59, 10); got != -79 {
		t.Errorf("RSSI at 10 m = %d, want -79", got)
	}
	if got := sim.GenerateRSSI(-59, 10000); got != -100 {
		t.Errorf("RSSI should clamp to -100, got %d", got)
	}
}

func TestGenerateRSSIVariance(t *testing.T) {
	cfg := DefaultSimulationConfig()
	cfg.Deterministic = true
	cfg.Seed = 42
	sim := NewSimulator(cfg)

	for i := 0; i < 100; i++ {
		got := sim.GenerateRSSI(-59, 1)
		if got < -63 || got > -55 {
			t.Fatalf("RSSI %d outside variance window", got)
		}
	}
}

func TestEstimateDistanceInvertsRSSI(t *testing.T) {
	sim := NewSimulator(PerfectSimulationConfig())

	for _, d := range []float64{1, 2.5, 8} {
		rssi := sim.GenerateRSSI(-59, d)
		est := sim.EstimateDistance(-59, rssi)
		if math.Abs(est-d)/d > 0.15 {
			t.Errorf("distance %.1f estimated as %.2f (rssi %d)", d, est, rssi)
		}
	}
	if sim.EstimateDistance(0, -70) != -1 {
		t.Errorf("uncalibrated beacon should give -1")
	}
}

func TestShouldPacketSucceed(t *testing.T) {
	sim := NewSimulator(PerfectSimulationConfig())
	for i := 0; i < 100; i++ {
		if !sim.ShouldPacketSucceed() {
			t.Fatalf("perfect config dropped a packet")
		}
	}

	cfg := PerfectSimulationConfig()
	cfg.PacketLossRate = 1
	if NewSimulator(cfg).ShouldPacketSucceed() {
		t.Errorf("loss rate 1 should drop every packet")
	}
}
