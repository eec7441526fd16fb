package meterclient

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"meter-reader/internal/meterrpc"
	"meter-reader/internal/observability/metrics"
	telemetry "meter-reader/internal/telemetry/domain"
)

const (
	defaultBatchSize        = 5
	defaultDiagnosticsSize  = 5
	defaultDiagnosticsEvery = 3
	defaultNotes            = "This is our test"
)

// MeterClient is the RPC surface the driver calls.
type MeterClient interface {
	AddReading(ctx context.Context, in *meterrpc.ReadingPacket, opts ...grpc.CallOption) (*meterrpc.StatusMessage, error)
	SendDiagnostics(ctx context.Context, opts ...grpc.CallOption) (meterrpc.DiagnosticsClientStream, error)
}

// Authenticator guards calls that need a bearer token.
type Authenticator interface {
	EnsureAuthenticated(ctx context.Context) bool
	Context(ctx context.Context) context.Context
}

// DriverConfig holds the immutable driver settings.
type DriverConfig struct {
	CustomerID       int32
	Delay            time.Duration
	DiagnosticsEvery int
	BatchSize        int
	DiagnosticsSize  int
	Notes            string
}

func (c DriverConfig) withDefaults() DriverConfig {
	if c.DiagnosticsEvery <= 0 {
		c.DiagnosticsEvery = defaultDiagnosticsEvery
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.DiagnosticsSize <= 0 {
		c.DiagnosticsSize = defaultDiagnosticsSize
	}
	if c.Notes == "" {
		c.Notes = defaultNotes
	}
	if c.Delay < 0 {
		c.Delay = 0
	}
	return c
}

// Driver periodically generates and submits reading batches. Cycles run
// strictly one after another.
type Driver struct {
	client  MeterClient
	factory telemetry.ReadingFactory
	auth    Authenticator
	cfg     DriverConfig
	logger  *log.Logger

	counter atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewDriver constructs a driver.
func NewDriver(client MeterClient, factory telemetry.ReadingFactory, auth Authenticator, cfg DriverConfig, logger *log.Logger) (*Driver, error) {
	if client == nil {
		return nil, errors.New("driver: nil client")
	}
	if factory == nil {
		return nil, telemetry.ErrNilFactory
	}
	if auth == nil {
		return nil, errors.New("driver: nil authenticator")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Driver{
		client:  client,
		factory: factory,
		auth:    auth,
		cfg:     cfg.withDefaults(),
		logger:  logger,
	}, nil
}

// CycleCount returns the number of cycles started so far.
func (d *Driver) CycleCount() int64 {
	return d.counter.Load()
}

// Run loops until ctx is cancelled. It returns nil on cancellation.
func (d *Driver) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		d.cycle(ctx)
		if !d.sleep(ctx) {
			return nil
		}
	}
}

// Start runs the loop in its own goroutine. A second Start is a no-op.
func (d *Driver) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	d.cancel = cancel
	d.done = done
	go func() {
		defer close(done)
		_ = d.Run(ctx)
	}()
}

// Stop cancels a started loop and waits for it to exit.
func (d *Driver) Stop() {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel, d.done = nil, nil
	d.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (d *Driver) cycle(ctx context.Context) {
	n := d.counter.Add(1)
	metrics.IncClientCycle()

	if d.diagnosticsDue(n) && d.auth.EnsureAuthenticated(ctx) {
		d.sendDiagnostics(ctx)
	}

	d.logger.Printf("driver: worker running at: %s", time.Now().Format(time.RFC3339))

	batch, err := d.generateBatch(ctx)
	if err != nil {
		d.logger.Printf("driver: generate batch error: %v", err)
		metrics.IncClientSubmit(metrics.ResultSkipped)
		return
	}
	if !d.auth.EnsureAuthenticated(ctx) {
		d.logger.Printf("driver: not authorized, skipping submission for cycle %d", n)
		metrics.IncClientSubmit(metrics.ResultSkipped)
		return
	}
	if ctx.Err() != nil {
		return
	}
	d.submit(ctx, batch)
}

func (d *Driver) diagnosticsDue(n int64) bool {
	return n%int64(d.cfg.DiagnosticsEvery) == 0
}

func (d *Driver) generateBatch(ctx context.Context) (telemetry.ReadingBatch, error) {
	batch := telemetry.ReadingBatch{
		Readings: make([]telemetry.Reading, 0, d.cfg.BatchSize),
		Outcome:  telemetry.StatusSuccess,
		Notes:    d.cfg.Notes,
	}
	for i := 0; i < d.cfg.BatchSize; i++ {
		r, err := d.factory.Generate(ctx, d.cfg.CustomerID)
		if err != nil {
			return telemetry.ReadingBatch{}, err
		}
		batch.Readings = append(batch.Readings, r)
	}
	return batch, nil
}

func (d *Driver) submit(ctx context.Context, batch telemetry.ReadingBatch) {
	var trailer metadata.MD
	resp, err := d.client.AddReading(d.auth.Context(ctx), meterrpc.NewReadingPacket(batch), grpc.Trailer(&trailer))
	if err != nil {
		if meterrpc.IsOutOfRange(err) {
			d.logger.Printf("driver: readings rejected: %v", meterrpc.FromError(err, trailer))
			metrics.IncClientSubmit(metrics.ResultRejected)
		} else {
			metrics.IncClientSubmit(metrics.ResultError)
		}
		d.logger.Printf("driver: submit error: %v", err)
		return
	}
	if resp != nil && resp.Success == telemetry.StatusSuccess {
		d.logger.Printf("driver: successfully sent %d readings", len(batch.Readings))
		metrics.IncClientSubmit(metrics.ResultSuccess)
		return
	}
	msg := ""
	if resp != nil {
		msg = resp.Message
	}
	d.logger.Printf("driver: failed to send: %s", msg)
	metrics.IncClientSubmit(metrics.ResultFailure)
}

func (d *Driver) sendDiagnostics(ctx context.Context) {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.logger.Printf("driver: sending diagnostics")
	stream, err := d.client.SendDiagnostics(d.auth.Context(streamCtx))
	if err != nil {
		d.logger.Printf("driver: open diagnostics error: %v", err)
		return
	}
	for i := 0; i < d.cfg.DiagnosticsSize; i++ {
		r, err := d.factory.Generate(streamCtx, d.cfg.CustomerID)
		if err != nil {
			d.logger.Printf("driver: diagnostics generate error: %v", err)
			return
		}
		if err := stream.Send(meterrpc.NewReadingMessage(r)); err != nil {
			d.logger.Printf("driver: diagnostics send error: %v", err)
			return
		}
	}
	if _, err := stream.CloseAndRecv(); err != nil {
		d.logger.Printf("driver: diagnostics close error: %v", err)
	}
}

func (d *Driver) sleep(ctx context.Context) bool {
	timer := time.NewTimer(d.cfg.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
