package branding

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/ward/internal/platform/auth"
	"github.com/ehr/ward/internal/platform/db"
	"github.com/ehr/ward/pkg/apperr"
	"github.com/ehr/ward/pkg/lifecycle"
)

const msgLogoNotFound = "Logo not found"

type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger.With().Str("component", "branding").Logger()}
}

func (s *Service) CreateLogo(ctx context.Context, name, imageURL string) (*Logo, error) {
	name, err := validateName(name)
	if err != nil {
		return nil, err
	}
	if imageURL, err = validateImageURL(imageURL); err != nil {
		return nil, err
	}
	actor := auth.ActorFromContext(ctx)
	l := &Logo{Name: name, ImageURL: imageURL, State: lifecycle.Active, CreatedBy: actor, UpdatedBy: actor}
	if err := s.repo.Create(ctx, l); err != nil {
		return nil, fmt.Errorf("create logo: %w", err)
	}
	return s.GetLogo(ctx, l.ID)
}

func (s *Service) GetLogo(ctx context.Context, id uuid.UUID) (*Logo, error) {
	l, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, apperr.NotFound(msgLogoNotFound)
		}
		return nil, fmt.Errorf("get logo: %w", err)
	}
	return l, nil
}

// ListLogos returns active logos, newest first.
func (s *Service) ListLogos(ctx context.Context) ([]*Logo, error) {
	logos, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list logos: %w", err)
	}
	if logos == nil {
		logos = []*Logo{}
	}
	return logos, nil
}

func (s *Service) UpdateLogo(ctx context.Context, id uuid.UUID, upd LogoUpdate) (*Logo, error) {
	if upd.State != nil && !upd.State.Valid() {
		return nil, apperr.Validation("State must be active or inactive")
	}
	l, err := s.GetLogo(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.Name != nil {
		if l.Name, err = validateName(*upd.Name); err != nil {
			return nil, err
		}
	}
	if upd.ImageURL != nil {
		if l.ImageURL, err = validateImageURL(*upd.ImageURL); err != nil {
			return nil, err
		}
	}
	if upd.State != nil {
		l.State = *upd.State
	}
	l.UpdatedBy = auth.ActorFromContext(ctx)
	if err := s.repo.Update(ctx, l); err != nil {
		if db.IsNotFound(err) {
			return nil, apperr.NotFound(msgLogoNotFound)
		}
		return nil, fmt.Errorf("update logo: %w", err)
	}
	return s.GetLogo(ctx, id)
}

func (s *Service) DeleteLogo(ctx context.Context, id uuid.UUID) error {
	ok, err := s.repo.Deactivate(ctx, id, auth.ActorFromContext(ctx))
	if err != nil {
		return fmt.Errorf("delete logo: %w", err)
	}
	if !ok {
		return apperr.NotFound(msgLogoNotFound)
	}
	return nil
}
