package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Listing is a publishable vehicle record. Every photo reference it holds
// has passed the safety gate.
type Listing struct {
	ID             uuid.UUID       `db:"id"              json:"id"`
	TenantID       uuid.UUID       `db:"tenant_id"       json:"tenant_id"`
	Name           string          `db:"name"            json:"name"`
	PlateNumber    string          `db:"plate_number"    json:"plate_number"`
	Capacity       int             `db:"capacity"        json:"capacity"`
	RatePerHour    decimal.Decimal `db:"rate_per_hour"   json:"rate_per_hour"`
	Description    string          `db:"description"     json:"description"`
	Features       []string        `db:"features"        json:"features"`
	CoverPhoto     string          `db:"cover_photo"     json:"cover_photo"`
	ExteriorPhotos []string        `db:"exterior_photos" json:"exterior_photos"`
	InteriorPhotos []string        `db:"interior_photos" json:"interior_photos"`
	IsAvailable    bool            `db:"is_available"    json:"is_available"`
	CreatedAt      time.Time       `db:"created_at"      json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"      json:"updated_at"`
}
