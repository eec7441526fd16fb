package meterclient

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"meter-reader/internal/meterrpc"
	telemetry "meter-reader/internal/telemetry/domain"
)

type stubAuth struct {
	ok    bool
	calls int
}

func (a *stubAuth) EnsureAuthenticated(context.Context) bool {
	a.calls++
	return a.ok
}

func (a *stubAuth) Context(ctx context.Context) context.Context { return ctx }

type stubStream struct {
	grpc.ClientStream
	sent    []*meterrpc.ReadingMessage
	sendErr error
	closed  bool
}

func (s *stubStream) Send(m *meterrpc.ReadingMessage) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, m)
	return nil
}

func (s *stubStream) CloseAndRecv() (*meterrpc.Empty, error) {
	s.closed = true
	return &meterrpc.Empty{}, nil
}

type stubMeterClient struct {
	packets   []*meterrpc.ReadingPacket
	resp      *meterrpc.StatusMessage
	addErr    error
	trailer   metadata.MD
	onAdd     func(n int)
	added     chan struct{}
	opensAt   []int
	openErr   error
	streams   []*stubStream
	streamErr error
}

func (c *stubMeterClient) AddReading(_ context.Context, in *meterrpc.ReadingPacket, opts ...grpc.CallOption) (*meterrpc.StatusMessage, error) {
	c.packets = append(c.packets, in)
	for _, opt := range opts {
		if tr, ok := opt.(grpc.TrailerCallOption); ok && c.trailer != nil {
			*tr.TrailerAddr = c.trailer
		}
	}
	if c.onAdd != nil {
		c.onAdd(len(c.packets))
	}
	if c.added != nil {
		select {
		case c.added <- struct{}{}:
		default:
		}
	}
	if c.addErr != nil {
		return nil, c.addErr
	}
	if c.resp != nil {
		return c.resp, nil
	}
	return &meterrpc.StatusMessage{Success: telemetry.StatusSuccess}, nil
}

func (c *stubMeterClient) SendDiagnostics(context.Context, ...grpc.CallOption) (meterrpc.DiagnosticsClientStream, error) {
	c.opensAt = append(c.opensAt, len(c.packets)+1)
	if c.openErr != nil {
		return nil, c.openErr
	}
	s := &stubStream{sendErr: c.streamErr}
	c.streams = append(c.streams, s)
	return s, nil
}

type stubFactory struct {
	calls int
	value int32
	err   error
}

func (f *stubFactory) Generate(ctx context.Context, customerID int32) (telemetry.Reading, error) {
	f.calls++
	if f.err != nil {
		return telemetry.Reading{}, f.err
	}
	return telemetry.Reading{CustomerID: customerID, Value: f.value, Timestamp: time.Now().UTC()}, nil
}

func newTestDriver(t *testing.T, client MeterClient, factory telemetry.ReadingFactory, auth Authenticator, cfg DriverConfig, logger *log.Logger) *Driver {
	t.Helper()
	if logger == nil {
		logger = quietLogger()
	}
	d, err := NewDriver(client, factory, auth, cfg, logger)
	if err != nil {
		t.Fatalf("new driver: %v", err)
	}
	return d
}

func TestDriver_DiagnosticsOnlyOnMultiplesOfCadence(t *testing.T) {
	for _, every := range []int{1, 3, 10} {
		client := &stubMeterClient{}
		d := newTestDriver(t, client, &stubFactory{value: 1500}, &stubAuth{ok: true},
			DriverConfig{CustomerID: 42, DiagnosticsEvery: every}, nil)

		for i := 0; i < 30; i++ {
			d.cycle(context.Background())
		}

		var want []int
		for n := every; n <= 30; n += every {
			want = append(want, n)
		}
		if len(client.opensAt) != len(want) {
			t.Fatalf("every=%d: expected opens at %v, got %v", every, want, client.opensAt)
		}
		for i := range want {
			if client.opensAt[i] != want[i] {
				t.Fatalf("every=%d: expected opens at %v, got %v", every, want, client.opensAt)
			}
		}
		if d.CycleCount() != 30 {
			t.Fatalf("expected 30 cycles, got %d", d.CycleCount())
		}
	}
}

func TestDriver_DiagnosticsStreamsFiveReadingsThenCloses(t *testing.T) {
	client := &stubMeterClient{}
	factory := &stubFactory{value: 200}
	d := newTestDriver(t, client, factory, &stubAuth{ok: true}, DriverConfig{CustomerID: 42, DiagnosticsEvery: 1}, nil)

	d.cycle(context.Background())

	if len(client.streams) != 1 {
		t.Fatalf("expected 1 stream, got %d", len(client.streams))
	}
	s := client.streams[0]
	if len(s.sent) != 5 || !s.closed {
		t.Fatalf("expected 5 readings and close, got %d closed=%v", len(s.sent), s.closed)
	}
	if factory.calls != 10 {
		t.Fatalf("expected 5 diagnostics + 5 batch generations, got %d", factory.calls)
	}
}

func TestDriver_DiagnosticsFailureDoesNotBlockSubmission(t *testing.T) {
	client := &stubMeterClient{openErr: status.Error(codes.Unavailable, "down")}
	d := newTestDriver(t, client, &stubFactory{value: 1500}, &stubAuth{ok: true}, DriverConfig{DiagnosticsEvery: 1}, nil)

	d.cycle(context.Background())
	if len(client.packets) != 1 {
		t.Fatalf("expected submission despite diagnostics failure, got %d", len(client.packets))
	}

	client.openErr = nil
	client.streamErr = errors.New("stream broken")
	d.cycle(context.Background())
	if len(client.packets) != 2 {
		t.Fatalf("expected submission despite stream failure, got %d", len(client.packets))
	}
}

func TestDriver_SubmitsBatchOfFive(t *testing.T) {
	client := &stubMeterClient{}
	d := newTestDriver(t, client, &stubFactory{value: 1500}, &stubAuth{ok: true},
		DriverConfig{CustomerID: 42, DiagnosticsEvery: 100, Notes: "cycle notes"}, nil)

	d.cycle(context.Background())

	if len(client.packets) != 1 {
		t.Fatalf("expected 1 packet, got %d", len(client.packets))
	}
	pkt := client.packets[0]
	if len(pkt.Readings) != 5 {
		t.Fatalf("expected 5 readings, got %d", len(pkt.Readings))
	}
	if pkt.Successful != telemetry.StatusSuccess || pkt.Notes != "cycle notes" {
		t.Fatalf("unexpected packet header %+v", pkt)
	}
	for _, r := range pkt.Readings {
		if r.CustomerID != 42 || r.ReadingValue != 1500 {
			t.Fatalf("unexpected reading %+v", r)
		}
	}
}

func TestDriver_AuthFailureSkipsNetworkCalls(t *testing.T) {
	client := &stubMeterClient{}
	auth := &stubAuth{ok: false}
	d := newTestDriver(t, client, &stubFactory{value: 1500}, auth, DriverConfig{DiagnosticsEvery: 1}, nil)

	d.cycle(context.Background())
	d.cycle(context.Background())

	if len(client.packets) != 0 {
		t.Fatalf("expected no AddReading calls, got %d", len(client.packets))
	}
	if len(client.opensAt) != 0 {
		t.Fatalf("expected no diagnostics streams, got %d", len(client.opensAt))
	}
	if d.CycleCount() != 2 {
		t.Fatalf("expected counter to keep advancing, got %d", d.CycleCount())
	}
}

func TestDriver_LogsStructuredRejection(t *testing.T) {
	var buf bytes.Buffer
	client := &stubMeterClient{
		addErr:  status.Error(codes.OutOfRange, "Readings are invalid"),
		trailer: metadata.Pairs("badvalue", "500", "field", "ReadingValue", "message", "Readings are invalid"),
	}
	d := newTestDriver(t, client, &stubFactory{value: 500}, &stubAuth{ok: true},
		DriverConfig{DiagnosticsEvery: 100}, log.New(&buf, "", 0))

	d.cycle(context.Background())

	out := buf.String()
	if !strings.Contains(out, "readings rejected") {
		t.Fatalf("expected rejection log, got %s", out)
	}
	if !strings.Contains(out, "BadValue=500") || !strings.Contains(out, "Field=ReadingValue") {
		t.Fatalf("expected structured attributes in log, got %s", out)
	}
}

func TestDriver_GenerationErrorSkipsCycle(t *testing.T) {
	client := &stubMeterClient{}
	d := newTestDriver(t, client, &stubFactory{err: errors.New("sensor offline")}, &stubAuth{ok: true},
		DriverConfig{DiagnosticsEvery: 100}, nil)

	d.cycle(context.Background())
	if len(client.packets) != 0 {
		t.Fatalf("expected no submission without a batch")
	}
}

func TestDriver_RunSurvivesErrorsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client := &stubMeterClient{addErr: status.Error(codes.Internal, "boom")}
	client.onAdd = func(n int) {
		if n == 3 {
			cancel()
		}
	}
	d := newTestDriver(t, client, &stubFactory{value: 1500}, &stubAuth{ok: true}, DriverConfig{DiagnosticsEvery: 100}, nil)

	if err := d.Run(ctx); err != nil {
		t.Fatalf("expected clean exit, got %v", err)
	}
	if d.CycleCount() != 3 {
		t.Fatalf("expected 3 cycles, got %d", d.CycleCount())
	}
}

func TestDriver_StopInterruptsSleep(t *testing.T) {
	client := &stubMeterClient{added: make(chan struct{}, 1)}
	d := newTestDriver(t, client, &stubFactory{value: 1500}, &stubAuth{ok: true},
		DriverConfig{Delay: time.Hour, DiagnosticsEvery: 100}, nil)

	d.Start(context.Background())
	select {
	case <-client.added:
	case <-time.After(5 * time.Second):
		t.Fatalf("driver did not submit")
	}

	stopped := make(chan struct{})
	go func() {
		d.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatalf("stop did not interrupt sleep")
	}
	if d.CycleCount() != 1 {
		t.Fatalf("expected 1 cycle, got %d", d.CycleCount())
	}
}

func TestDriver_CancelledBeforeStartRunsNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client := &stubMeterClient{}
	d := newTestDriver(t, client, &stubFactory{value: 1500}, &stubAuth{ok: true}, DriverConfig{}, nil)

	if err := d.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if d.CycleCount() != 0 || len(client.packets) != 0 {
		t.Fatalf("expected no cycles")
	}
}
