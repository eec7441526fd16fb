package meterrpc

import (
	"time"

	telemetry "meter-reader/internal/telemetry/domain"
)

// TokenRequest asks for a bearer token.
type TokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenResponse carries an issued token. Token is empty when Success is false.
type TokenResponse struct {
	Success    bool      `json:"success"`
	Token      string    `json:"token,omitempty"`
	Expiration time.Time `json:"expiration"`
}

// ReadingMessage is a single reading on the wire.
type ReadingMessage struct {
	CustomerID   int32     `json:"customerId"`
	ReadingValue int32     `json:"readingValue"`
	ReadingTime  time.Time `json:"readingTime"`
}

// ReadingPacket is a batch of readings.
type ReadingPacket struct {
	Readings   []*ReadingMessage       `json:"readings"`
	Successful telemetry.ReadingStatus `json:"successful"`
	Notes      string                  `json:"notes,omitempty"`
}

// StatusMessage is the reply to AddReading.
type StatusMessage struct {
	Success telemetry.ReadingStatus `json:"success"`
	Message string                  `json:"message,omitempty"`
}

// Empty acknowledges a diagnostics stream.
type Empty struct{}

// NewReadingMessage converts a domain reading.
func NewReadingMessage(r telemetry.Reading) *ReadingMessage {
	return &ReadingMessage{
		CustomerID:   r.CustomerID,
		ReadingValue: r.Value,
		ReadingTime:  r.Timestamp.UTC(),
	}
}

// Reading converts the message to a domain reading.
func (m *ReadingMessage) Reading() telemetry.Reading {
	if m == nil {
		return telemetry.Reading{}
	}
	return telemetry.Reading{
		CustomerID: m.CustomerID,
		Value:      m.ReadingValue,
		Timestamp:  m.ReadingTime,
	}
}

// NewReadingPacket converts a domain batch.
func NewReadingPacket(b telemetry.ReadingBatch) *ReadingPacket {
	pkt := &ReadingPacket{
		Readings:   make([]*ReadingMessage, 0, len(b.Readings)),
		Successful: b.Outcome,
		Notes:      b.Notes,
	}
	for _, r := range b.Readings {
		pkt.Readings = append(pkt.Readings, NewReadingMessage(r))
	}
	return pkt
}

// Batch converts the packet to a domain batch. Nil entries are dropped.
func (p *ReadingPacket) Batch() telemetry.ReadingBatch {
	if p == nil {
		return telemetry.ReadingBatch{}
	}
	batch := telemetry.ReadingBatch{
		Readings: make([]telemetry.Reading, 0, len(p.Readings)),
		Outcome:  p.Successful,
		Notes:    p.Notes,
	}
	for _, m := range p.Readings {
		if m == nil {
			continue
		}
		batch.Readings = append(batch.Readings, m.Reading())
	}
	return batch
}

// NewStatusMessage converts a domain status result.
func NewStatusMessage(s telemetry.StatusResult) *StatusMessage {
	return &StatusMessage{Success: s.Outcome, Message: s.Message}
}
