package meterrpc

import (
	"fmt"
	"sort"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	telemetry "meter-reader/internal/telemetry/domain"
)

// AuthorizationKey is the metadata key carrying the bearer token.
const AuthorizationKey = "authorization"

// gRPC lower-cases metadata keys; map them back to their canonical spelling.
var canonicalAttrs = map[string]string{
	strings.ToLower(telemetry.AttrBadValue): telemetry.AttrBadValue,
	strings.ToLower(telemetry.AttrField):    telemetry.AttrField,
	strings.ToLower(telemetry.AttrMessage):  telemetry.AttrMessage,
}

// StructuredError is a failed call with out-of-band detail.
type StructuredError struct {
	Code       codes.Code
	Message    string
	Attributes map[string]string
}

func (e *StructuredError) Error() string {
	if e == nil {
		return ""
	}
	if len(e.Attributes) == 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	keys := make([]string, 0, len(e.Attributes))
	for k := range e.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+e.Attributes[k])
	}
	return fmt.Sprintf("%s: %s [%s]", e.Code, e.Message, strings.Join(parts, " "))
}

// BearerMetadata builds the authorization header for a token.
func BearerMetadata(token string) metadata.MD {
	return metadata.Pairs(AuthorizationKey, "Bearer "+token)
}

// RejectionTrailer encodes violation attributes as trailer metadata.
func RejectionTrailer(v *telemetry.Violation) metadata.MD {
	md := metadata.MD{}
	for k, val := range v.Attributes() {
		md.Set(k, val)
	}
	return md
}

// RejectionStatus is the status returned for a rejected batch.
func RejectionStatus(v *telemetry.Violation) error {
	msg := "Readings are invalid"
	if v != nil && v.Message != "" {
		msg = v.Message
	}
	return status.Error(codes.OutOfRange, msg)
}

// FromError rebuilds a StructuredError from a call error and the trailer
// captured with grpc.Trailer. It returns nil for a nil error.
func FromError(err error, trailer metadata.MD) *StructuredError {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return &StructuredError{Code: codes.Unknown, Message: err.Error()}
	}
	out := &StructuredError{Code: st.Code(), Message: st.Message()}
	if len(trailer) > 0 {
		out.Attributes = make(map[string]string, len(trailer))
		for k, values := range trailer {
			if len(values) == 0 {
				continue
			}
			if canonical, ok := canonicalAttrs[k]; ok {
				k = canonical
			}
			out.Attributes[k] = values[0]
		}
	}
	return out
}

// IsOutOfRange reports whether err is a validation rejection.
func IsOutOfRange(err error) bool {
	return status.Code(err) == codes.OutOfRange
}
