package staff

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/ward/internal/domain/rbac"
	"github.com/ehr/ward/internal/platform/auth"
	"github.com/ehr/ward/pkg/apperr"
	"github.com/ehr/ward/pkg/lifecycle"
)

// DefaultAdminUsername is the account seeded on first start.
const DefaultAdminUsername = "admin"

const (
	usernameMinLen  = 3
	usernameMaxLen  = 30
	nameMaxLen      = 100
	phoneMaxLen     = 20
	specialtyMaxLen = 100
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9_'^&/+-]+(\.[a-zA-Z0-9_'^&/+-]+)*@([a-zA-Z0-9-]+\.)+[a-zA-Z]{2,}$`)

// User is a staff account. The password hash never leaves the package.
type User struct {
	ID             uuid.UUID       `json:"id"`
	Username       string          `json:"username"`
	PasswordHash   string          `json:"-"`
	FirstName      *string         `json:"firstName,omitempty"`
	LastName       *string         `json:"lastName,omitempty"`
	Email          *string         `json:"email,omitempty"`
	Phone          *string         `json:"phone,omitempty"`
	Specialization *string         `json:"specialization,omitempty"`
	RoleID         uuid.UUID       `json:"roleId"`
	Role           *rbac.Role      `json:"role,omitempty"`
	State          lifecycle.State `json:"state"`
	CreatedBy      *uuid.UUID      `json:"createdBy,omitempty"`
	UpdatedBy      *uuid.UUID      `json:"updatedBy,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

type CreateUserInput struct {
	Username       string  `json:"username"`
	Password       string  `json:"password"`
	FirstName      *string `json:"firstName"`
	LastName       *string `json:"lastName"`
	Email          *string `json:"email"`
	Phone          *string `json:"phone"`
	Specialization *string `json:"specialization"`
	RoleID         string  `json:"role"`
}

// UserUpdate is a partial update; nil fields are left unchanged.
type UserUpdate struct {
	Password       *string          `json:"password"`
	FirstName      *string          `json:"firstName"`
	LastName       *string          `json:"lastName"`
	Email          *string          `json:"email"`
	Phone          *string          `json:"phone"`
	Specialization *string          `json:"specialization"`
	RoleID         *string          `json:"role"`
	State          *lifecycle.State `json:"state"`
}

// Session is the body returned by a successful login.
type Session struct {
	Message string `json:"message"`
	Token   string `json:"token"`
	User    *User  `json:"user"`
}

func validateUsername(username string) error {
	if n := len([]rune(username)); n < usernameMinLen || n > usernameMaxLen {
		return apperr.Validation("Username must be between %d and %d characters", usernameMinLen, usernameMaxLen)
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < auth.MinPasswordLength {
		return apperr.Validation("Password must be at least %d characters", auth.MinPasswordLength)
	}
	return nil
}

// normalizeOptional trims v and turns blank values into nil.
func normalizeOptional(v *string) *string {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(*v)
	if s == "" {
		return nil
	}
	return &s
}

func normalizeEmail(v *string) (*string, error) {
	v = normalizeOptional(v)
	if v == nil {
		return nil, nil
	}
	s := strings.ToLower(*v)
	if !emailPattern.MatchString(s) {
		return nil, apperr.Validation("Please provide a valid email")
	}
	return &s, nil
}

func checkLength(field string, v *string, max int) error {
	if v != nil && len([]rune(*v)) > max {
		return apperr.Validation("%s cannot exceed %d characters", field, max)
	}
	return nil
}

func validateProfile(u *User) error {
	if err := checkLength("First name", u.FirstName, nameMaxLen); err != nil {
		return err
	}
	if err := checkLength("Last name", u.LastName, nameMaxLen); err != nil {
		return err
	}
	if err := checkLength("Phone", u.Phone, phoneMaxLen); err != nil {
		return err
	}
	return checkLength("Specialization", u.Specialization, specialtyMaxLen)
}
