package handler

import (
	"context"
	"net/http"

	"github.com/fleetgate/fleetgate/internal/api/response"
	"github.com/fleetgate/fleetgate/internal/onboarding"
)

// Onboarding is the registration and login surface the handlers depend on.
type Onboarding interface {
	Register(ctx context.Context, req onboarding.RegisterRequest) (*onboarding.Application, error)
	SignupRider(ctx context.Context, req onboarding.RiderSignup) (*onboarding.RiderAccount, error)
	Login(ctx context.Context, email, password string) (*onboarding.LoginResult, error)
}

// NewRegisterRiderHandler returns an http.HandlerFunc for POST /api/v1/auth/register-rider.
func NewRegisterRiderHandler(svc Onboarding) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			FullName string `json:"full_name"`
			Email    string `json:"email"`
			Phone    string `json:"phone"`
			Password string `json:"password"`
		}
		if err := decodeJSON(r, &req); err != nil {
			response.Fail(w, r, err)
			return
		}

		acct, err := svc.SignupRider(r.Context(), onboarding.RiderSignup{
			FullName: req.FullName,
			Email:    req.Email,
			Phone:    req.Phone,
			Password: req.Password,
		})
		if err != nil {
			response.Fail(w, r, err)
			return
		}
		response.Created(w, acct)
	}
}

// NewLoginHandler returns an http.HandlerFunc for POST /api/v1/auth/login.
func NewLoginHandler(svc Onboarding) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := decodeJSON(r, &req); err != nil {
			response.Fail(w, r, err)
			return
		}

		res, err := svc.Login(r.Context(), req.Email, req.Password)
		if err != nil {
			response.Fail(w, r, err)
			return
		}
		response.JSON(w, res)
	}
}

// NewRegisterTenantHandler returns an http.HandlerFunc for the multipart
// POST /api/v1/tenants/register.
func NewRegisterTenantHandler(svc Onboarding, maxUploadBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := parseMultipart(w, r, maxUploadBytes); err != nil {
			response.Fail(w, r, err)
			return
		}
		files, err := formFiles(r, "documents")
		if err != nil {
			response.Fail(w, r, err)
			return
		}

		docs := make([]onboarding.Document, len(files))
		for i, f := range files {
			docs[i] = onboarding.Document{Name: f.name, ContentType: f.contentType, Data: f.data}
		}

		app, err := svc.Register(r.Context(), onboarding.RegisterRequest{
			Admin: onboarding.AdminInfo{
				FullName: formValue(r, "full_name"),
				Email:    formValue(r, "email"),
				Phone:    formValue(r, "phone"),
				Password: r.FormValue("password"),
			},
			Tenant: onboarding.TenantInfo{
				Name:               formValue(r, "tenant_name"),
				RegistrationNumber: formValue(r, "registration_number"),
				ContactEmail:       formValue(r, "contact_email"),
			},
			Documents: docs,
		})
		if err != nil {
			response.Fail(w, r, err)
			return
		}
		response.Created(w, app)
	}
}
