package telemetry

import (
	"context"
	"time"
)

// MinReadingValue is the lowest plausible meter value.
const MinReadingValue int32 = 1000

// ReadingStatus is the outcome flag carried by packets and status results.
type ReadingStatus int32

const (
	StatusUnknown ReadingStatus = iota
	StatusSuccess
	StatusFailure
)

// String returns the status name.
func (s ReadingStatus) String() string {
	switch s {
	case StatusSuccess:
		return "Success"
	case StatusFailure:
		return "Failure"
	default:
		return "Unknown"
	}
}

// Reading is a single meter sample produced by a ReadingFactory.
type Reading struct {
	CustomerID int32
	Value      int32
	Timestamp  time.Time
}

// ReadingBatch is a set of readings submitted together.
type ReadingBatch struct {
	Readings []Reading
	Outcome  ReadingStatus
	Notes    string
}

// StatusResult is the in-band reply to a batch submission.
type StatusResult struct {
	Outcome ReadingStatus
	Message string
}

// MeterReading is the persisted shape of an accepted reading.
type MeterReading struct {
	CustomerID  int32
	Value       int32
	ReadingDate time.Time
}

// ReadingFactory produces one reading per call.
type ReadingFactory interface {
	Generate(ctx context.Context, customerID int32) (Reading, error)
}

// ReadingRepository opens per-request units of work.
type ReadingRepository interface {
	Begin() ReadingUnit
}

// ReadingUnit stages entities and commits them atomically.
// SaveAll reports false when nothing was written.
type ReadingUnit interface {
	Add(reading MeterReading) error
	SaveAll(ctx context.Context) (bool, error)
}
