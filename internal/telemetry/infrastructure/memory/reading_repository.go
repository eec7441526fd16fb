package memory

import (
	"context"
	"errors"
	"sync"

	"meter-reader/internal/telemetry/domain"
)

// ReadingRepository is an in-memory repository for demo/testing.
type ReadingRepository struct {
	mu   sync.RWMutex
	data []telemetry.MeterReading
}

// NewReadingRepository constructs a repository.
func NewReadingRepository() *ReadingRepository {
	return &ReadingRepository{}
}

// Begin opens a unit of work.
func (r *ReadingRepository) Begin() telemetry.ReadingUnit {
	return &readingUnit{repo: r}
}

// All returns a copy of committed readings.
func (r *ReadingRepository) All() []telemetry.MeterReading {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]telemetry.MeterReading, len(r.data))
	copy(out, r.data)
	return out
}

// Count returns the number of committed readings.
func (r *ReadingRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data)
}

type readingUnit struct {
	repo   *ReadingRepository
	staged []telemetry.MeterReading
	done   bool
}

func (u *readingUnit) Add(reading telemetry.MeterReading) error {
	if u.done {
		return errors.New("memory reading repo: unit already committed")
	}
	if reading.ReadingDate.IsZero() {
		return errors.New("memory reading repo: missing reading date")
	}
	u.staged = append(u.staged, reading)
	return nil
}

func (u *readingUnit) SaveAll(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if u.done {
		return false, errors.New("memory reading repo: unit already committed")
	}
	u.done = true
	if len(u.staged) == 0 {
		return false, nil
	}

	u.repo.mu.Lock()
	defer u.repo.mu.Unlock()
	u.repo.data = append(u.repo.data, u.staged...)
	u.staged = nil
	return true, nil
}
