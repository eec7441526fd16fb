package auth

import "meter-reader/internal/meterrpc"

// Policy determines required roles by gRPC method.
type Policy struct {
	ExemptMethods map[string]struct{}
	Required      map[string]Role
}

// NewDefaultPolicy builds the meter service policy. Token issuance is always
// open; diagnostics is open only when requireDiagnosticsAuth is false.
func NewDefaultPolicy(requireDiagnosticsAuth bool) Policy {
	exempt := map[string]struct{}{
		meterrpc.MethodCreateToken: {},
	}
	required := map[string]Role{
		meterrpc.MethodAddReading: RoleMeter,
	}
	if requireDiagnosticsAuth {
		required[meterrpc.MethodSendDiagnostics] = RoleMeter
	} else {
		exempt[meterrpc.MethodSendDiagnostics] = struct{}{}
	}
	return Policy{ExemptMethods: exempt, Required: required}
}

// IsExempt returns true when a call should skip auth.
func (p Policy) IsExempt(method string) bool {
	_, ok := p.ExemptMethods[method]
	return ok
}

// RequiredRole resolves the required role for a method. Unknown methods
// require admin.
func (p Policy) RequiredRole(method string) Role {
	if role, ok := p.Required[method]; ok {
		return role
	}
	return RoleAdmin
}
