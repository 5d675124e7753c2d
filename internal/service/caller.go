package service

import (
	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/model"

	"github.com/google/uuid"
)

// Caller is the authenticated identity every operation runs as.
type Caller struct {
	TenantID   uuid.UUID
	OperatorID uuid.UUID
	Role       string
}

// Elevated reports whether the caller holds a supervisor or admin role.
func (c Caller) Elevated() bool { return model.IsElevatedRole(c.Role) }
