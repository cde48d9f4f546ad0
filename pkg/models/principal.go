// Package models contains shared data models used across the fleetgate codebase.
package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role is the closed set of privileges a principal can hold.
type Role string

const (
	RoleRider         Role = "rider"
	RoleOperatorAdmin Role = "operator_admin"
	RoleReviewer      Role = "reviewer"
)

// ParseRole converts a stored role string into a Role.
// Unknown values are an error rather than a silent downgrade.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleRider, RoleOperatorAdmin, RoleReviewer:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

func (r Role) String() string { return string(r) }

// Principal is a person with login credentials.
type Principal struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	FullName  string    `db:"full_name"  json:"full_name"`
	Email     string    `db:"email"      json:"email"`
	Phone     string    `db:"phone"      json:"phone"`
	Role      Role      `db:"role"       json:"role"`
	Confirmed bool      `db:"confirmed"  json:"confirmed"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
