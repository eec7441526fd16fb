package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"meter-reader/internal/telemetry/domain"
)

const defaultReadingTable = "meter_readings"

// ReadingRepository is a Postgres implementation for meter readings.
type ReadingRepository struct {
	db    *sql.DB
	table string
}

// NewReadingRepository constructs a repository with default table name.
func NewReadingRepository(db *sql.DB, opts ...RepositoryOption) *ReadingRepository {
	repo := &ReadingRepository{db: db, table: defaultReadingTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// RepositoryOption configures the repository.
type RepositoryOption func(*ReadingRepository)

// WithTable overrides the default table name.
func WithTable(table string) RepositoryOption {
	return func(repo *ReadingRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// Begin opens a unit of work. Nothing touches the database until SaveAll.
func (r *ReadingRepository) Begin() telemetry.ReadingUnit {
	return &readingUnit{repo: r}
}

type readingUnit struct {
	repo   *ReadingRepository
	staged []telemetry.MeterReading
}

func (u *readingUnit) Add(reading telemetry.MeterReading) error {
	if reading.ReadingDate.IsZero() {
		return errors.New("reading repo: invalid reading date")
	}
	u.staged = append(u.staged, reading)
	return nil
}

// SaveAll inserts every staged reading in one transaction.
func (u *readingUnit) SaveAll(ctx context.Context) (bool, error) {
	r := u.repo
	if r == nil || r.db == nil {
		return false, errors.New("reading repo: nil db")
	}
	if len(u.staged) == 0 {
		return false, nil
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	customer_id,
	value,
	reading_date
) VALUES (
	$1, $2, $3
)`, r.table)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		_ = tx.Rollback()
		return false, err
	}
	defer stmt.Close()

	var written int64
	for _, m := range u.staged {
		res, err := stmt.ExecContext(ctx, m.CustomerID, m.Value, m.ReadingDate.UTC())
		if err != nil {
			_ = tx.Rollback()
			return false, err
		}
		if n, err := res.RowsAffected(); err == nil {
			written += n
		}
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	u.staged = nil
	return written > 0, nil
}

// CountByCustomer returns stored readings for a customer.
func (r *ReadingRepository) CountByCustomer(ctx context.Context, customerID int32) (int, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("reading repo: nil db")
	}
	var count int
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE customer_id = $1`, r.table)
	if err := r.db.QueryRowContext(ctx, query, customerID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
