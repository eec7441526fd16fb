package application

import (
	"context"
	"log"
	"time"

	"meter-reader/internal/observability/metrics"
	telemetry "meter-reader/internal/telemetry/domain"
)

const faultMessage = "Exception thrown during processing"

// ResultKind discriminates submission outcomes.
type ResultKind int

const (
	// ResultAccepted means every reading was committed.
	ResultAccepted ResultKind = iota
	// ResultDeclined is an ordinary non-acceptance reported in-band.
	ResultDeclined
	// ResultRejected means a reading failed validation; nothing was committed.
	ResultRejected
	// ResultFaulted means staging or commit failed unexpectedly.
	ResultFaulted
)

func (k ResultKind) String() string {
	switch k {
	case ResultAccepted:
		return metrics.ResultAccepted
	case ResultDeclined:
		return metrics.ResultDeclined
	case ResultRejected:
		return metrics.ResultRejected
	case ResultFaulted:
		return metrics.ResultFaulted
	default:
		return "unknown"
	}
}

// SubmitResult is the outcome of Pipeline.Submit.
type SubmitResult struct {
	Kind      ResultKind
	Status    telemetry.StatusResult
	Committed int
	Violation *telemetry.Violation
	Err       error
}

// Pipeline validates reading batches and commits them all-or-nothing.
type Pipeline struct {
	repo   telemetry.ReadingRepository
	logger *log.Logger
}

// NewPipeline constructs a pipeline.
func NewPipeline(repo telemetry.ReadingRepository, logger *log.Logger) (*Pipeline, error) {
	if repo == nil {
		return nil, telemetry.ErrNilRepository
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Pipeline{repo: repo, logger: logger}, nil
}

// Submit processes one batch.
func (p *Pipeline) Submit(ctx context.Context, batch telemetry.ReadingBatch) SubmitResult {
	start := time.Now()
	result := p.submit(ctx, batch)
	metrics.ObserveSubmission(result.Kind.String(), time.Since(start))
	return result
}

func (p *Pipeline) submit(ctx context.Context, batch telemetry.ReadingBatch) SubmitResult {
	if batch.Outcome != telemetry.StatusSuccess {
		return declined()
	}

	unit := p.repo.Begin()
	for _, r := range batch.Readings {
		if v := telemetry.ValidateReading(r); v != nil {
			p.logger.Printf("reading pipeline: rejected batch of %d: %v", len(batch.Readings), v)
			metrics.IncReadingsRejected()
			return SubmitResult{
				Kind:      ResultRejected,
				Status:    telemetry.StatusResult{Outcome: telemetry.StatusFailure},
				Violation: v,
			}
		}
		if err := unit.Add(telemetry.MeterReading{
			CustomerID:  r.CustomerID,
			Value:       r.Value,
			ReadingDate: r.Timestamp,
		}); err != nil {
			return p.faulted(err)
		}
	}

	ok, err := unit.SaveAll(ctx)
	if err != nil {
		return p.faulted(err)
	}
	if !ok {
		return declined()
	}

	n := len(batch.Readings)
	p.logger.Printf("reading pipeline: stored %d new readings", n)
	metrics.AddReadingsStored(n)
	return SubmitResult{
		Kind:      ResultAccepted,
		Status:    telemetry.StatusResult{Outcome: telemetry.StatusSuccess},
		Committed: n,
	}
}

func (p *Pipeline) faulted(err error) SubmitResult {
	p.logger.Printf("reading pipeline: exception thrown during saving of readings: %v", err)
	return SubmitResult{
		Kind:   ResultFaulted,
		Status: telemetry.StatusResult{Outcome: telemetry.StatusFailure, Message: faultMessage},
		Err:    err,
	}
}

func declined() SubmitResult {
	return SubmitResult{
		Kind:   ResultDeclined,
		Status: telemetry.StatusResult{Outcome: telemetry.StatusFailure},
	}
}
