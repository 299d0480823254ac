package branding

import (
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/ward/pkg/apperr"
	"github.com/ehr/ward/pkg/lifecycle"
)

const (
	DefaultLogoName = "Hospital Logo"
	nameMaxLen      = 150
)

type Logo struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	ImageURL  string          `json:"imageUrl"`
	State     lifecycle.State `json:"state"`
	CreatedBy *uuid.UUID      `json:"createdById,omitempty"`
	UpdatedBy *uuid.UUID      `json:"updatedById,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`

	// Resolved usernames.
	CreatedByName *string `json:"createdBy,omitempty"`
	UpdatedByName *string `json:"updatedBy,omitempty"`
}

type LogoUpdate struct {
	Name     *string          `json:"name"`
	ImageURL *string          `json:"imageUrl"`
	State    *lifecycle.State `json:"state"`
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultLogoName, nil
	}
	if len([]rune(name)) > nameMaxLen {
		return "", apperr.Validation("Name cannot exceed %d characters", nameMaxLen)
	}
	return name, nil
}

// validateImageURL requires an absolute URI.
func validateImageURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", apperr.Validation("Image URL is required")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || (u.Host == "" && u.Opaque == "") {
		return "", apperr.Validation("Image URL must be a valid URI")
	}
	return raw, nil
}
