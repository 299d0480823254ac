package staff

import (
	"context"
	"fmt"
	"strings"

	"github.com/ehr/ward/internal/platform/auth"
	"github.com/ehr/ward/internal/platform/db"
	"github.com/ehr/ward/internal/platform/telemetry"
	"github.com/ehr/ward/pkg/apperr"
)

const (
	msgInvalidCredentials = "Invalid credentials"
	msgAccountDeactivated = "Account is deactivated"
)

// Login checks credentials and issues a session token.
func (s *Service) Login(ctx context.Context, username, password string) (*Session, error) {
	sess, err := s.login(ctx, strings.TrimSpace(username), password)
	if err == nil {
		s.recordLogin(telemetry.OutcomeSuccess)
	} else if ae, ok := apperr.As(err); ok && ae.Kind == apperr.KindValidation {
		s.recordLogin(telemetry.OutcomeRejected)
		s.logger.Info().Str("username", username).Str("reason", ae.Message).Msg("login rejected")
	} else {
		s.recordLogin(telemetry.OutcomeError)
	}
	return sess, err
}

func (s *Service) login(ctx context.Context, username, password string) (*Session, error) {
	if username == "" || password == "" {
		return nil, apperr.Validation(msgInvalidCredentials)
	}

	u, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, apperr.Validation(msgInvalidCredentials)
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !u.State.IsActive() {
		return nil, apperr.Validation(msgAccountDeactivated)
	}

	ok, err := auth.CheckPassword(u.PasswordHash, password)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Validation(msgInvalidCredentials)
	}

	token, _, err := s.tokens.Issue(u.ID)
	if err != nil {
		return nil, err
	}
	u.Role = s.roleOf(ctx, u.RoleID)
	return &Session{Message: "Login successful", Token: token, User: u}, nil
}

// Me returns the account behind the request's identity.
func (s *Service) Me(ctx context.Context) (*User, error) {
	id := auth.IdentityFromContext(ctx)
	if id == nil {
		return nil, apperr.Unauthenticated("No token, authorization denied")
	}
	return s.GetUser(ctx, id.UserID)
}

// Logout revokes the token the request was made with until it expires.
func (s *Service) Logout(ctx context.Context) error {
	id := auth.IdentityFromContext(ctx)
	if id == nil {
		return apperr.Unauthenticated("No token, authorization denied")
	}
	if s.revocations == nil || id.TokenID == "" {
		return nil
	}
	if err := s.revocations.Revoke(ctx, id.TokenID, id.TokenExpiresAt); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	s.logger.Info().Str("user_id", id.UserID.String()).Msg("token revoked")
	return nil
}

func (s *Service) recordLogin(outcome string) {
	if s.metrics != nil {
		s.metrics.Login(outcome)
	}
}
