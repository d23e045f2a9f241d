package anomaly_test

import (
	"testing"

	"github.com/releves-ma/si-releves/internal/anomaly"
)

const (
	testSpikeThreshold            = 3.0
	testMinDataPointsForDetection = 3
)

func TestDetectSpike_NegativeConsumption(t *testing.T) {
	detector := anomaly.NewDetector(testSpikeThreshold, testMinDataPointsForDetection)

	isSpike, reason := detector.DetectSpike(-10, []int{100, 105, 98})

	if !isSpike {
		t.Error("Expected anomaly for negative consumption")
	}
	if reason != "negative consumption" {
		t.Errorf("Expected reason 'negative consumption', got '%s'", reason)
	}
}

func TestDetectSpike_SuddenSpike(t *testing.T) {
	detector := anomaly.NewDetector(testSpikeThreshold, testMinDataPointsForDetection)

	history := []int{100, 105, 98, 102, 99}
	consumption := 350 // More than 3x the average (~100)

	isSpike, reason := detector.DetectSpike(consumption, history)

	if !isSpike {
		t.Error("Expected anomaly for sudden spike")
	}
	if reason == "" {
		t.Error("Expected reason for spike anomaly")
	}
}

func TestDetectSpike_NormalConsumption(t *testing.T) {
	detector := anomaly.NewDetector(testSpikeThreshold, testMinDataPointsForDetection)

	history := []int{100, 105, 98, 102, 99}

	isSpike, reason := detector.DetectSpike(103, history)

	if isSpike {
		t.Errorf("Expected no anomaly for normal consumption, got '%s'", reason)
	}
}

func TestDetectSpike_InsufficientHistory(t *testing.T) {
	detector := anomaly.NewDetector(testSpikeThreshold, testMinDataPointsForDetection)

	isSpike, _ := detector.DetectSpike(10000, []int{100, 105})

	if isSpike {
		t.Error("Expected no detection with insufficient history")
	}
}
