// Package metric defines the shared data model exchanged between the
// collection engine and publisher adapters.
package metric

import "time"

// Quality tags a published reading so downstream consumers can distinguish
// fresh data from stale or missing data.
type Quality string

const (
	QualityGood        Quality = "good"
	QualityStale       Quality = "stale"
	QualityUnavailable Quality = "unavailable"
)

// Status classifies the outcome of one collection run for one module.
type Status string

const (
	StatusSuccess           Status = "success"
	StatusSourceUnavailable Status = "source_unavailable"
	StatusParseFailure      Status = "parse_failure"
	StatusConversionFailure Status = "conversion_failure"
	StatusTimeout           Status = "timeout"
)

// Failed reports whether the status counts toward the failure policy.
func (s Status) Failed() bool {
	return s != StatusSuccess
}

// Reading is one named, typed, unit-tagged value destined for a state store.
// Value holds a float64, int64, or string according to the module's declared
// target type; it is nil when Quality is not QualityGood.
type Reading struct {
	Name      string    `json:"name"`
	Value     any       `json:"value"`
	Unit      string    `json:"unit,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Quality   Quality   `json:"quality"`
}

// CollectionResult is the outcome of one pipeline run for one module.
// It is created per scheduler tick, handed to the publisher adapter and the
// failure policy, and then discarded.
type CollectionResult struct {
	ModuleID  string
	Timestamp time.Time
	Status    Status
	Readings  []Reading
	// FailedReadings names readings whose conversion failed while sibling
	// readings of the same run succeeded. They are published with
	// QualityUnavailable.
	FailedReadings []string
}
