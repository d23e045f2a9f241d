// Package validator checks reading submissions coming off the ingest queue
// before they reach the store.
package validator

import (
	"fmt"
	"time"
)

// ValidationResult holds validation outcome
type ValidationResult struct {
	IsValid bool
	Reason  string
}

// ReadingData is one submitted index capture as it arrives on the wire.
type ReadingData struct {
	MeterIdentifier string
	Date            string
	NewIndex        int
	Notes           string
}

// Validator handles reading validation with configurable parameters
type Validator struct {
	timestampToleranceMinutes int
}

// NewValidator creates a new validator with the specified tolerance
func NewValidator(timestampToleranceMinutes int) *Validator {
	return &Validator{
		timestampToleranceMinutes: timestampToleranceMinutes,
	}
}

// ValidateReading validates a single submitted capture against the meter's
// current index. It returns the parsed capture time alongside the outcome.
func (v *Validator) ValidateReading(r ReadingData, currentIndex int, receivedAt time.Time) (time.Time, ValidationResult) {
	result := ValidationResult{IsValid: true}

	if len(r.MeterIdentifier) != 9 {
		result.IsValid = false
		result.Reason = fmt.Sprintf("meter identifier must be 9 digits, got %q", r.MeterIdentifier)
		return time.Time{}, result
	}

	if r.NewIndex < 0 {
		result.IsValid = false
		result.Reason = "negative index"
		return time.Time{}, result
	}

	if r.NewIndex < currentIndex {
		result.IsValid = false
		result.Reason = fmt.Sprintf("index regression: meter at %d, got %d", currentIndex, r.NewIndex)
		return time.Time{}, result
	}

	readingTime, err := ParseDeviceTimestamp(r.Date)
	if err != nil {
		result.IsValid = false
		result.Reason = fmt.Sprintf("invalid timestamp format: %v", err)
		return time.Time{}, result
	}

	if !isWithinTolerance(readingTime, receivedAt, v.timestampToleranceMinutes) {
		result.IsValid = false
		result.Reason = fmt.Sprintf("timestamp outside tolerance window (±%d minutes)", v.timestampToleranceMinutes)
		return readingTime, result
	}

	return readingTime, result
}

// ParseDeviceTimestamp attempts to parse a capture timestamp with the formats
// handheld terminals are known to emit.
func ParseDeviceTimestamp(dateStr string) (time.Time, error) {
	formats := []string{
		"02/01/2006 15:04:05", // DD/MM/YYYY HH:mm:ss
		"02 15:04:05/01/2006", // DD HH:mm:ss/MM/YYYY
		time.RFC3339,          // Standard RFC3339
		"2006-01-02",          // date only
	}

	var lastErr error
	for _, format := range formats {
		t, err := time.Parse(format, dateStr)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("failed to parse timestamp '%s': %w", dateStr, lastErr)
}

// isWithinTolerance checks if the capture timestamp is within tolerance of
// received time
func isWithinTolerance(readingTime, receivedTime time.Time, toleranceMinutes int) bool {
	diff := readingTime.Sub(receivedTime)
	if diff < 0 {
		diff = -diff
	}
	return diff <= time.Duration(toleranceMinutes)*time.Minute
}
