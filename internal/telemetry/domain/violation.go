package telemetry

import (
	"errors"
	"strconv"
)

// Attribute keys attached to a rejected batch.
const (
	AttrBadValue = "BadValue"
	AttrField    = "Field"
	AttrMessage  = "Message"
)

const (
	fieldReadingValue   = "ReadingValue"
	messageInvalidValue = "Readings are invalid"
)

var (
	ErrNilRepository = errors.New("telemetry: nil repository")
	ErrNilFactory    = errors.New("telemetry: nil reading factory")
)

// Violation describes why a batch was rejected.
type Violation struct {
	BadValue string
	Field    string
	Message  string
}

// ValueViolation builds the violation for an implausible reading value.
func ValueViolation(value int32) *Violation {
	return &Violation{
		BadValue: strconv.FormatInt(int64(value), 10),
		Field:    fieldReadingValue,
		Message:  messageInvalidValue,
	}
}

// Attributes returns the violation as key/value detail.
func (v *Violation) Attributes() map[string]string {
	if v == nil {
		return nil
	}
	return map[string]string{
		AttrBadValue: v.BadValue,
		AttrField:    v.Field,
		AttrMessage:  v.Message,
	}
}

// Error implements error.
func (v *Violation) Error() string {
	if v == nil {
		return ""
	}
	return v.Message + ": " + v.Field + "=" + v.BadValue
}

// ValidateReading checks a reading against the plausibility floor.
func ValidateReading(r Reading) *Violation {
	if r.Value < MinReadingValue {
		return ValueViolation(r.Value)
	}
	return nil
}
