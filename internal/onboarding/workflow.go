// Package onboarding registers fleet operators and riders.
package onboarding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fleetgate/fleetgate/internal/apperr"
	"github.com/fleetgate/fleetgate/internal/blob"
	"github.com/fleetgate/fleetgate/internal/identity"
	"github.com/fleetgate/fleetgate/internal/metrics"
	"github.com/fleetgate/fleetgate/internal/saga"
	"github.com/fleetgate/fleetgate/internal/store"
	"github.com/fleetgate/fleetgate/pkg/models"
	"github.com/google/uuid"
)

const (
	MessageRegistered  = "Application submitted! Your operator account is pending review."
	MessageLoginManual = "Account created! Please log in manually."
)

type AdminInfo struct {
	FullName string
	Email    string
	Phone    string
	Password string
}

type TenantInfo struct {
	Name               string
	RegistrationNumber string
	// ContactEmail defaults to the admin's email.
	ContactEmail string
}

type Document struct {
	Name        string
	ContentType string
	Data        []byte
}

// RegisterRequest is one operator application: the admin, the tenant and its documents.
type RegisterRequest struct {
	Admin     AdminInfo
	Tenant    TenantInfo
	Documents []Document
}

// Application is a submitted operator registration.
type Application struct {
	Tenant             *models.Tenant    `json:"tenant"`
	PrincipalID        uuid.UUID         `json:"principal_id"`
	SessionEstablished bool              `json:"session_established"`
	Session            *identity.Session `json:"session,omitempty"`
	Message            string            `json:"message"`
}

// Limits bounds documents and per-dependency call time.
type Limits struct {
	MaxDocuments     int
	MaxDocumentBytes int64
	IdentityTimeout  time.Duration
	StorageTimeout   time.Duration
	StoreTimeout     time.Duration
}

// Workflow runs operator registration and rider account flows.
type Workflow struct {
	identity identity.Provider
	docs     blob.Store
	store    store.Store
	limits   Limits
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewWorkflow creates a Workflow.
func NewWorkflow(idp identity.Provider, docs blob.Store, st store.Store, limits Limits, m *metrics.Metrics, logger *slog.Logger) *Workflow {
	if logger == nil {
		logger = slog.Default()
	}
	return &Workflow{
		identity: idp,
		docs:     docs,
		store:    st,
		limits:   limits,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// registration is the state threaded through the onboarding saga.
type registration struct {
	req         RegisterRequest
	principalID uuid.UUID
	docRefs     []string
	tenant      *models.Tenant
	session     *identity.Session
}

// Register runs validate, provision-identity, store-documents, create-tenant
// and auto-authenticate. A failure after provisioning deletes the new
// principal; uploaded documents are left in place. Auto-authentication is
// best-effort.
func (w *Workflow) Register(ctx context.Context, req RegisterRequest) (*Application, error) {
	def := saga.Definition[registration]{
		Name:    "onboarding",
		Logger:  w.logger,
		Metrics: w.metrics,
		Steps: []saga.Step[registration]{
			{
				Name:    "validate",
				Execute: func(_ context.Context, r *registration) error { return w.validate(r.req) },
			},
			{
				Name:       "provision-identity",
				Detach:     true,
				Timeout:    w.limits.IdentityTimeout,
				Execute:    w.provisionIdentity,
				Compensate: w.deleteIdentity,
			},
			{
				Name:    "store-documents",
				Timeout: w.limits.StorageTimeout,
				Execute: w.storeDocuments,
			},
			{
				Name:    "create-tenant",
				Timeout: w.limits.StoreTimeout,
				Execute: w.createTenant,
			},
			{
				Name:       "auto-authenticate",
				BestEffort: true,
				Timeout:    w.limits.IdentityTimeout,
				Execute:    w.authenticate,
			},
		},
	}

	r := &registration{req: req}
	if err := def.Run(ctx, r); err != nil {
		return nil, w.translate(r, err)
	}

	app := &Application{
		Tenant:             r.tenant,
		PrincipalID:        r.principalID,
		SessionEstablished: r.session != nil,
		Session:            r.session,
		Message:            MessageRegistered,
	}
	if r.session == nil {
		app.Message = MessageLoginManual
	}
	w.logger.Info("operator application submitted",
		"principal_id", r.principalID, "tenant_id", r.tenant.ID, "session", app.SessionEstablished)
	return app, nil
}

func (w *Workflow) provisionIdentity(ctx context.Context, r *registration) error {
	id, err := w.identity.CreatePrincipal(ctx, identity.NewPrincipal{
		Email:        r.req.Admin.Email,
		Password:     r.req.Admin.Password,
		FullName:     r.req.Admin.FullName,
		Phone:        r.req.Admin.Phone,
		Role:         models.RoleRider,
		PreConfirmed: true,
	})
	if errors.Is(err, identity.ErrEmailTaken) {
		return apperr.Conflict("email", "An account with this email already exists.")
	}
	if err != nil {
		return apperr.Dependency("IDENTITY_PROVISIONING_FAILED", err)
	}
	r.principalID = id
	return nil
}

func (w *Workflow) deleteIdentity(ctx context.Context, r *registration) error {
	return w.identity.DeletePrincipal(ctx, r.principalID)
}

func (w *Workflow) storeDocuments(ctx context.Context, r *registration) error {
	ts := w.now().UnixMilli()
	used := make(map[string]bool, len(r.req.Documents))
	refs := make([]string, 0, len(r.req.Documents))
	for _, d := range r.req.Documents {
		base := sanitizeFileName(d.Name)
		name := base
		for n := 2; used[name]; n++ {
			name = fmt.Sprintf("%d-%s", n, base)
		}
		used[name] = true

		path := fmt.Sprintf("%s/%d-%s", r.principalID, ts, name)
		ref, err := w.docs.Put(ctx, path, d.Data, d.ContentType)
		if err != nil {
			return apperr.Dependency("DOCUMENT_UPLOAD_FAILED", err)
		}
		refs = append(refs, string(ref))
	}
	r.docRefs = refs
	return nil
}

func (w *Workflow) createTenant(ctx context.Context, r *registration) error {
	now := w.now().UTC()
	contact := strings.TrimSpace(r.req.Tenant.ContactEmail)
	if contact == "" {
		contact = identity.NormalizeEmail(r.req.Admin.Email)
	}
	tenant := &models.Tenant{
		ID:                 uuid.New(),
		OwnerID:            r.principalID,
		Name:               strings.TrimSpace(r.req.Tenant.Name),
		RegistrationNumber: strings.TrimSpace(r.req.Tenant.RegistrationNumber),
		ContactEmail:       contact,
		VerificationDocs:   r.docRefs,
		Status:             models.TenantPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := w.store.InsertTenant(ctx, tenant); err != nil {
		if constraint, ok := store.ViolatedConstraint(err); ok {
			switch constraint {
			case store.ConstraintRegistrationNumber:
				return apperr.Conflict("registration_number", "Registration number already in use.")
			case store.ConstraintTenantOwner:
				return apperr.Conflict("email", "This account already has an operator application.")
			}
		}
		return apperr.Dependency("TENANT_CREATION_FAILED", err)
	}
	r.tenant = tenant
	return nil
}

func (w *Workflow) authenticate(ctx context.Context, r *registration) error {
	sess, err := w.identity.Authenticate(ctx, r.req.Admin.Email, r.req.Admin.Password)
	if err != nil {
		return err
	}
	r.session = sess
	return nil
}

// translate maps a saga failure to exactly one apperr kind.
func (w *Workflow) translate(r *registration, err error) error {
	var ce *saga.CompensationError
	if errors.As(err, &ce) {
		w.metrics.ConsistencyGap("onboarding")
		w.logger.Error("onboarding rollback failed, orphaned principal needs manual cleanup",
			"principal_id", r.principalID, "failed_step", ce.Step, "error", err)
		return apperr.ConsistencyGap("ONBOARDING_ROLLBACK_FAILED",
			"Registration could not be completed. Please contact support before trying again.", err)
	}

	if ae, ok := apperr.As(err); ok {
		if ae.Kind == apperr.KindDependency {
			w.logger.Error("onboarding failed", "principal_id", r.principalID, "code", ae.Code, "error", ae.Err)
		}
		return ae
	}
	return apperr.Dependency("ONBOARDING_FAILED", err)
}
