package application

import (
	"context"
	"errors"
	"io"
	"log"
	"time"

	"meter-reader/internal/observability/metrics"
	telemetry "meter-reader/internal/telemetry/domain"
)

// ReadingReceiver yields streamed readings until io.EOF.
type ReadingReceiver func() (telemetry.Reading, error)

// DiagnosticsSink logs streamed readings. It never validates or stores them.
type DiagnosticsSink struct {
	logger *log.Logger
}

// NewDiagnosticsSink constructs a sink.
func NewDiagnosticsSink(logger *log.Logger) *DiagnosticsSink {
	if logger == nil {
		logger = log.Default()
	}
	return &DiagnosticsSink{logger: logger}
}

// Drain consumes the stream until the sender closes it and returns the
// number of readings received.
func (s *DiagnosticsSink) Drain(ctx context.Context, recv ReadingReceiver) (int, error) {
	if recv == nil {
		return 0, errors.New("diagnostics: nil receiver")
	}
	count := 0
	defer func() { metrics.AddDiagnosticsReadings(count) }()
	for {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		reading, err := recv()
		if errors.Is(err, io.EOF) {
			return count, nil
		}
		if err != nil {
			return count, err
		}
		count++
		s.logger.Printf("diagnostics: received reading customer=%d value=%d time=%s",
			reading.CustomerID, reading.Value, reading.Timestamp.UTC().Format(time.RFC3339))
	}
}
