package models

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// TenantStatus is the lifecycle state of an operator application.
type TenantStatus string

const (
	TenantPending  TenantStatus = "pending"
	TenantApproved TenantStatus = "approved"
	TenantRejected TenantStatus = "rejected"
)

// tenantTransitions lists the allowed next states for each status.
// approved and rejected are terminal.
var tenantTransitions = map[TenantStatus][]TenantStatus{
	TenantPending:  {TenantApproved, TenantRejected},
	TenantApproved: {},
	TenantRejected: {},
}

// ParseTenantStatus converts a stored status string into a TenantStatus.
func ParseTenantStatus(s string) (TenantStatus, error) {
	st := TenantStatus(s)
	if _, ok := tenantTransitions[st]; !ok {
		return "", fmt.Errorf("unknown tenant status %q", s)
	}
	return st, nil
}

// IsTerminal reports whether no further transitions are possible.
func (s TenantStatus) IsTerminal() bool {
	return len(tenantTransitions[s]) == 0
}

// CanTransitionTo reports whether moving from s to target is allowed.
func (s TenantStatus) CanTransitionTo(target TenantStatus) bool {
	return slices.Contains(tenantTransitions[s], target)
}

// Tenant is a registered fleet operator (a Sacco). Exactly one per owning principal.
type Tenant struct {
	ID                 uuid.UUID    `db:"id"                  json:"id"`
	OwnerID            uuid.UUID    `db:"owner_id"            json:"owner_id"`
	Name               string       `db:"name"                json:"name"`
	RegistrationNumber string       `db:"registration_number" json:"registration_number"`
	ContactEmail       string       `db:"contact_email"       json:"contact_email"`
	VerificationDocs   []string     `db:"verification_docs"   json:"verification_docs"`
	Status             TenantStatus `db:"status"              json:"status"`
	RejectionReason    *string      `db:"rejection_reason"    json:"rejection_reason,omitempty"`
	ReviewedBy         *uuid.UUID   `db:"reviewed_by"         json:"reviewed_by,omitempty"`
	ReviewedAt         *time.Time   `db:"reviewed_at"         json:"reviewed_at,omitempty"`
	CreatedAt          time.Time    `db:"created_at"          json:"created_at"`
	UpdatedAt          time.Time    `db:"updated_at"          json:"updated_at"`
}
