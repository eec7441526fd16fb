package grpcapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"meter-reader/internal/audit"
	"meter-reader/internal/auth"
	"meter-reader/internal/meterrpc"
	telemetryapp "meter-reader/internal/telemetry/application"
	telemetry "meter-reader/internal/telemetry/domain"
)

// TokenIssuer verifies credentials and issues tokens.
type TokenIssuer interface {
	CreateToken(ctx context.Context, username, password string) (auth.TokenResult, error)
}

// BatchSubmitter validates and persists reading batches.
type BatchSubmitter interface {
	Submit(ctx context.Context, batch telemetry.ReadingBatch) telemetryapp.SubmitResult
}

// ReadingDrainer consumes diagnostics streams.
type ReadingDrainer interface {
	Drain(ctx context.Context, recv telemetryapp.ReadingReceiver) (int, error)
}

// MeterService implements the meter reading RPC surface.
type MeterService struct {
	issuer   TokenIssuer
	pipeline BatchSubmitter
	sink     ReadingDrainer
	audit    audit.Logger
	logger   *log.Logger
}

// ServiceOption configures the meter service.
type ServiceOption func(*MeterService)

// WithAuditLogger records token issuance and batch rejections.
func WithAuditLogger(logger audit.Logger) ServiceOption {
	return func(s *MeterService) {
		s.audit = logger
	}
}

var _ meterrpc.Server = (*MeterService)(nil)

// NewMeterService constructs the service.
func NewMeterService(issuer TokenIssuer, pipeline BatchSubmitter, sink ReadingDrainer, logger *log.Logger, opts ...ServiceOption) (*MeterService, error) {
	if issuer == nil {
		return nil, errors.New("meter service: nil issuer")
	}
	if pipeline == nil {
		return nil, errors.New("meter service: nil pipeline")
	}
	if sink == nil {
		return nil, errors.New("meter service: nil diagnostics sink")
	}
	if logger == nil {
		logger = log.Default()
	}
	svc := &MeterService{issuer: issuer, pipeline: pipeline, sink: sink, logger: logger}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// CreateToken exchanges credentials for a bearer token.
func (s *MeterService) CreateToken(ctx context.Context, req *meterrpc.TokenRequest) (*meterrpc.TokenResponse, error) {
	if req == nil {
		return &meterrpc.TokenResponse{}, nil
	}
	res, err := s.issuer.CreateToken(ctx, req.Username, req.Password)
	if err != nil {
		s.logger.Printf("meter service: create token error: %v", err)
		return nil, status.Error(codes.Internal, "token issuance failed")
	}
	if !res.Success {
		s.record(ctx, audit.Entry{Actor: req.Username, Action: audit.ActionTokenDenied, Method: meterrpc.MethodCreateToken})
		return &meterrpc.TokenResponse{Success: false}, nil
	}
	s.record(ctx, audit.Entry{Actor: req.Username, Role: string(auth.RoleMeter), Action: audit.ActionTokenIssued, Method: meterrpc.MethodCreateToken})
	return &meterrpc.TokenResponse{Success: true, Token: res.Token, Expiration: res.Expiration}, nil
}

// AddReading validates and stores a batch.
func (s *MeterService) AddReading(ctx context.Context, pkt *meterrpc.ReadingPacket) (*meterrpc.StatusMessage, error) {
	batch := pkt.Batch()
	res := s.pipeline.Submit(ctx, batch)
	switch res.Kind {
	case telemetryapp.ResultRejected:
		if err := grpc.SetTrailer(ctx, meterrpc.RejectionTrailer(res.Violation)); err != nil {
			s.logger.Printf("meter service: set trailer error: %v", err)
		}
		s.recordRejection(ctx, batch, res.Violation)
		return nil, meterrpc.RejectionStatus(res.Violation)
	case telemetryapp.ResultFaulted:
		return nil, status.Error(codes.Internal, res.Status.Message)
	default:
		s.logger.Printf("meter service: batch from %s: %s (%d readings, notes=%q)",
			callerName(ctx), res.Status.Outcome, len(batch.Readings), batch.Notes)
		return meterrpc.NewStatusMessage(res.Status), nil
	}
}

// SendDiagnostics drains a client stream of readings.
func (s *MeterService) SendDiagnostics(stream meterrpc.DiagnosticsServerStream) error {
	ctx := stream.Context()
	n, err := s.sink.Drain(ctx, func() (telemetry.Reading, error) {
		m, err := stream.Recv()
		if err != nil {
			return telemetry.Reading{}, err
		}
		return m.Reading(), nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return status.FromContextError(err).Err()
		}
		return err
	}
	s.logger.Printf("meter service: diagnostics stream from %s closed after %d readings", callerName(ctx), n)
	return stream.SendAndClose(&meterrpc.Empty{})
}

func callerName(ctx context.Context) string {
	if subject := auth.SubjectFromContext(ctx); subject != "" {
		return subject
	}
	return "anonymous"
}

func (s *MeterService) recordRejection(ctx context.Context, batch telemetry.ReadingBatch, v *telemetry.Violation) {
	if s.audit == nil || v == nil {
		return
	}
	entry := audit.Entry{
		Actor:  callerName(ctx),
		Role:   string(auth.RoleFromContext(ctx)),
		Action: audit.ActionReadingRejected,
		Method: meterrpc.MethodAddReading,
	}
	if len(batch.Readings) > 0 {
		entry.CustomerID = batch.Readings[0].CustomerID
	}
	if meta, err := json.Marshal(v.Attributes()); err == nil {
		entry.Metadata = meta
	}
	s.record(ctx, entry)
}

// record writes an audit entry. Audit failures never fail the call.
func (s *MeterService) record(ctx context.Context, entry audit.Entry) {
	if s.audit == nil {
		return
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		entry.IP = p.Addr.String()
	}
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ua := md.Get("user-agent"); len(ua) > 0 {
			entry.UserAgent = ua[0]
		}
	}
	if err := s.audit.Log(ctx, entry); err != nil {
		s.logger.Printf("meter service: audit error: %v", err)
	}
}
