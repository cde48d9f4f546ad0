package onboarding

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fleetgate/fleetgate/internal/apperr"
	"github.com/fleetgate/fleetgate/internal/identity"
	"github.com/fleetgate/fleetgate/pkg/models"
	"github.com/google/uuid"
)

// RiderSignup is a self-service rider account request.
type RiderSignup struct {
	FullName string
	Email    string
	Phone    string
	Password string
}

type RiderAccount struct {
	PrincipalID uuid.UUID `json:"principal_id"`
	Message     string    `json:"message"`
}

// LoginResult carries the session and the dashboard the caller should land on.
type LoginResult struct {
	Session  *identity.Session `json:"session"`
	Redirect string            `json:"redirect"`
}

// SignupRider creates an unconfirmed rider principal.
func (w *Workflow) SignupRider(ctx context.Context, req RiderSignup) (*RiderAccount, error) {
	for _, err := range []error{
		validateFullName(req.FullName),
		validateEmail("email", req.Email),
		validatePhone(req.Phone),
		validatePassword(req.Password),
	} {
		if err != nil {
			return nil, err
		}
	}

	ctx, cancel := withTimeout(ctx, w.limits.IdentityTimeout)
	defer cancel()

	id, err := w.identity.CreatePrincipal(ctx, identity.NewPrincipal{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
		Phone:    req.Phone,
		Role:     models.RoleRider,
	})
	if errors.Is(err, identity.ErrEmailTaken) {
		return nil, apperr.Conflict("email", "An account with this email already exists.")
	}
	if err != nil {
		w.logger.Error("rider signup failed", "error", err)
		return nil, apperr.Dependency("SIGNUP_FAILED", err)
	}
	return &RiderAccount{PrincipalID: id, Message: "Account created! You can now log in."}, nil
}

// Login authenticates and picks a landing page by role.
func (w *Workflow) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if strings.TrimSpace(email) == "" {
		return nil, apperr.Validation("email", "Email is required.")
	}
	if password == "" {
		return nil, apperr.Validation("password", "Password is required.")
	}

	ctx, cancel := withTimeout(ctx, w.limits.IdentityTimeout)
	defer cancel()

	sess, err := w.identity.Authenticate(ctx, email, password)
	if errors.Is(err, identity.ErrInvalidCredentials) {
		return nil, apperr.Unauthorized("Invalid email or password.")
	}
	if err != nil {
		w.logger.Error("login failed", "error", err)
		return nil, apperr.Dependency("LOGIN_FAILED", err)
	}
	return &LoginResult{Session: sess, Redirect: LandingPage(sess.Principal.Role)}, nil
}

// LandingPage maps a role to its dashboard.
func LandingPage(role models.Role) string {
	switch role {
	case models.RoleOperatorAdmin:
		return "/dashboard/sacco"
	case models.RoleReviewer:
		return "/dashboard/admin"
	default:
		return "/dashboard/user"
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
