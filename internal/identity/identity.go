package identity

import (
	"context"

	"github.com/google/uuid"
)

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleStaff     Role = "staff"
	RoleClinician Role = "clinician"
)

const (
	ActionAppointmentsRead  = "appointments:read"
	ActionAppointmentsWrite = "appointments:write"
)

// Identity is the authenticated caller: who they are, which clinic
// they act for, and what they may do. The scheduling engine trusts the
// caller was authorized before invocation; all role checks happen at
// the HTTP boundary.
type Identity struct {
	OrganizationID uuid.UUID
	UserID         uuid.UUID
	Role           Role
}

var rolePermissions = map[Role]map[string]bool{
	RoleAdmin: {
		ActionAppointmentsRead:  true,
		ActionAppointmentsWrite: true,
	},
	RoleStaff: {
		ActionAppointmentsRead:  true,
		ActionAppointmentsWrite: true,
	},
	RoleClinician: {
		ActionAppointmentsRead: true,
	},
}

func (id Identity) Can(action string) bool {
	return rolePermissions[id.Role][action]
}

type contextKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}
