package onboarding

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"

	"github.com/fleetgate/fleetgate/internal/apperr"
)

// kenyanPhone accepts +2547XXXXXXXX, +2541XXXXXXXX and the 07/01 local forms.
var kenyanPhone = regexp.MustCompile(`^(?:\+254|0)[17]\d{8}$`)

var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9.-]`)

const (
	minNameLen     = 2
	minPasswordLen = 6
	minRegNoLen    = 3
)

func validateFullName(name string) error {
	if len([]rune(strings.TrimSpace(name))) < minNameLen {
		return apperr.Validation("full_name", "Name must be at least 2 characters.")
	}
	return nil
}

func validateEmail(field, email string) error {
	email = strings.TrimSpace(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return apperr.Validation(field, "Invalid email address.")
	}
	return nil
}

func validatePhone(phone string) error {
	if !kenyanPhone.MatchString(strings.TrimSpace(phone)) {
		return apperr.Validation("phone", "Invalid phone number. Use 07XXXXXXXX or +2547XXXXXXXX.")
	}
	return nil
}

func validatePassword(pw string) error {
	if len(pw) < minPasswordLen {
		return apperr.Validation("password", "Password must be at least 6 characters.")
	}
	return nil
}

// validate is side-effect free and deterministic for a given request.
func (w *Workflow) validate(req RegisterRequest) error {
	if err := validateFullName(req.Admin.FullName); err != nil {
		return err
	}
	if err := validateEmail("email", req.Admin.Email); err != nil {
		return err
	}
	if err := validatePhone(req.Admin.Phone); err != nil {
		return err
	}
	if err := validatePassword(req.Admin.Password); err != nil {
		return err
	}
	if len([]rune(strings.TrimSpace(req.Tenant.Name))) < minNameLen {
		return apperr.Validation("tenant_name", "Operator name must be at least 2 characters.")
	}
	if len(strings.TrimSpace(req.Tenant.RegistrationNumber)) < minRegNoLen {
		return apperr.Validation("registration_number", "Registration number is required.")
	}
	if req.Tenant.ContactEmail != "" {
		if err := validateEmail("contact_email", req.Tenant.ContactEmail); err != nil {
			return err
		}
	}

	if len(req.Documents) == 0 {
		return apperr.Validation("documents", "At least one verification document is required.")
	}
	if len(req.Documents) > w.limits.MaxDocuments {
		return apperr.Validation("documents", fmt.Sprintf("At most %d documents are allowed.", w.limits.MaxDocuments))
	}
	for _, d := range req.Documents {
		if len(d.Data) == 0 {
			return apperr.Validation("documents", fmt.Sprintf("Document %q is empty.", d.Name))
		}
		if w.limits.MaxDocumentBytes > 0 && int64(len(d.Data)) > w.limits.MaxDocumentBytes {
			return apperr.Validation("documents", fmt.Sprintf("Document %q is too large.", d.Name))
		}
	}
	return nil
}

// sanitizeFileName replaces anything outside [a-zA-Z0-9.-] with '_'.
func sanitizeFileName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "document"
	}
	return unsafeFileChars.ReplaceAllString(name, "_")
}
