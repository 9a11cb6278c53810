package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/okian/arena/internal/adapters/repository"
	"github.com/okian/arena/internal/domain/event"
	"github.com/okian/arena/internal/domain/model"
	"github.com/okian/arena/pkg/logger"
)

// ModelInput is the request to register a model.
type ModelInput struct {
	Name            string         `json:"name"`
	Version         string         `json:"version"`
	Description     string         `json:"description,omitempty"`
	Type            model.Type     `json:"model_type,omitempty"`
	ParametersCount string         `json:"parameters_count,omitempty"`
	Metadata        map[string]any `json:"model_metadata,omitempty"`
}

func (in ModelInput) validate() error {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return errors.New("missing name")
	case strings.TrimSpace(in.Version) == "":
		return errors.New("missing version")
	case !in.Type.Valid():
		return fmt.Errorf("unknown model_type %q", in.Type)
	}
	return nil
}

// ModelUpdate changes the mutable fields of a model. Nil fields are kept.
type ModelUpdate struct {
	Name        *string        `json:"name,omitempty"`
	Description *string        `json:"description,omitempty"`
	Metadata    map[string]any `json:"model_metadata,omitempty"`
	Active      *bool          `json:"is_active,omitempty"`
}

// RegisterModel persists a new model owned by owner and announces it.
func (s *Service) RegisterModel(ctx context.Context, owner string, in ModelInput) (model.Model, error) {
	if err := in.validate(); err != nil {
		return model.Model{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if owner == "" {
		owner = anonymousOwner
	}

	m, err := s.store.CreateModel(ctx, model.Model{
		Name:            strings.TrimSpace(in.Name),
		Version:         strings.TrimSpace(in.Version),
		Description:     in.Description,
		Type:            in.Type,
		ParametersCount: in.ParametersCount,
		OwnerID:         owner,
		Metadata:        in.Metadata,
		Active:          true,
	})
	if err != nil {
		return model.Model{}, err
	}

	if err := s.publisher.PublishModelRegistered(ctx, event.ModelRegistered{Summary: m.Summary()}); err != nil {
		s.logger.Warn(ctx, "model event not published",
			logger.Int64("model_id", m.ID),
			logger.Error(err),
		)
	}
	s.logger.Info(ctx, "model registered",
		logger.Int64("model_id", m.ID),
		logger.String("name", m.Name),
		logger.String("owner", owner),
	)
	return m, nil
}

// UpdateModel applies upd to a model owned by owner.
func (s *Service) UpdateModel(ctx context.Context, owner string, id int64, upd ModelUpdate) (model.Model, error) {
	m, err := s.store.GetModel(ctx, id)
	if err != nil {
		return model.Model{}, err
	}
	if err := checkOwner(owner, m); err != nil {
		return model.Model{}, err
	}

	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return model.Model{}, fmt.Errorf("%w: empty name", ErrInvalidInput)
		}
		m.Name = name
	}
	if upd.Description != nil {
		m.Description = *upd.Description
	}
	if upd.Metadata != nil {
		m.Metadata = upd.Metadata
	}
	if upd.Active != nil {
		m.Active = *upd.Active
	}
	return s.store.UpdateModel(ctx, m)
}

// Model returns one model.
func (s *Service) Model(ctx context.Context, id int64) (model.Model, error) {
	return s.store.GetModel(ctx, id)
}

// ListModels returns models matching f.
func (s *Service) ListModels(ctx context.Context, f repository.ModelFilter) ([]model.Model, error) {
	if f.Type != "" && !f.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown model_type %q", ErrInvalidInput, f.Type)
	}
	return s.store.ListModels(ctx, f)
}

// checkOwner allows any caller when owner is empty (auth disabled).
func checkOwner(owner string, m model.Model) error {
	if owner != "" && owner != m.OwnerID {
		return fmt.Errorf("%w: model %d belongs to another owner", ErrForbidden, m.ID)
	}
	return nil
}
