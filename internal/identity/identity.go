// Package identity owns principals: credentials, roles and sessions.
package identity

import (
	"context"
	"errors"
	"time"

	"github.com/fleetgate/fleetgate/pkg/models"
	"github.com/google/uuid"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid token")
	ErrNotFound           = errors.New("principal not found")
)

// NewPrincipal is the input to CreatePrincipal.
type NewPrincipal struct {
	Email    string
	Password string
	FullName string
	Phone    string
	Role     models.Role
	// PreConfirmed skips email confirmation; used when an operator
	// registers through the onboarding workflow.
	PreConfirmed bool
}

// Session is an authenticated principal plus a bearer token.
type Session struct {
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expires_at"`
	Principal models.Principal `json:"principal"`
}

// Provider is the identity backend used by the workflows.
type Provider interface {
	CreatePrincipal(ctx context.Context, np NewPrincipal) (uuid.UUID, error)
	// DeletePrincipal is idempotent: deleting an unknown id succeeds.
	DeletePrincipal(ctx context.Context, id uuid.UUID) error
	Authenticate(ctx context.Context, email, password string) (*Session, error)
	SetRole(ctx context.Context, id uuid.UUID, role models.Role) error
	GetPrincipal(ctx context.Context, id uuid.UUID) (*models.Principal, error)
	ParseSession(token string) (*Claims, error)
}
