package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TenantOwned is implemented by every row type stored in a table protected
// by the tenant_isolation policy.
type TenantOwned interface {
	OwnerTenant() uuid.UUID
	StampTenant(id uuid.UUID)
	EntityName() string
}

// TenantBase contains the columns shared by all tenant-owned tables.
type TenantBase struct {
	ID        uuid.UUID `json:"id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (b *TenantBase) OwnerTenant() uuid.UUID   { return b.TenantID }
func (b *TenantBase) StampTenant(id uuid.UUID) { b.TenantID = id }

// Employee represents the employees table.
type Employee struct {
	TenantBase
	FullName string `json:"full_name" validate:"required,min=1,max=200"`
	Email    string `json:"email" validate:"omitempty,email,max=254"`
	JobTitle string `json:"job_title" validate:"max=120"`
}

func (e *Employee) EntityName() string { return "employee" }

// TenantEvent represents the tenant_events table, an append-only log of
// lifecycle steps for one tenant.
type TenantEvent struct {
	TenantBase
	Step    string          `json:"step"`
	Status  string          `json:"status"`
	Details json.RawMessage `json:"details,omitempty"`
}

func (e *TenantEvent) EntityName() string { return "tenant event" }
