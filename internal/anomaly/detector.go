// Package anomaly flags suspicious consumption values on ingested readings.
// Flagged captures are still recorded; the reason lands in the reading notes
// for the back office to review.
package anomaly

import (
	"fmt"
)

// Detector handles consumption anomaly detection with configurable thresholds
type Detector struct {
	spikeThreshold            float64
	minDataPointsForDetection int
}

// NewDetector creates a new anomaly detector with the specified thresholds
func NewDetector(spikeThreshold float64, minDataPointsForDetection int) *Detector {
	return &Detector{
		spikeThreshold:            spikeThreshold,
		minDataPointsForDetection: minDataPointsForDetection,
	}
}

// DetectSpike checks a capture's consumption against the meter's recent
// history. Returns whether the value is anomalous and a human-readable
// reason.
func (d *Detector) DetectSpike(consumption int, history []int) (bool, string) {
	if consumption < 0 {
		return true, "negative consumption"
	}

	// Need enough history for spike detection
	if len(history) < d.minDataPointsForDetection {
		return false, ""
	}

	sum := 0
	for _, v := range history {
		sum += v
	}
	average := float64(sum) / float64(len(history))

	if average > 0 && float64(consumption) > d.spikeThreshold*average {
		return true, fmt.Sprintf("consumption spike: %d exceeds %.1fx rolling average %.2f",
			consumption, d.spikeThreshold, average)
	}

	return false, ""
}
