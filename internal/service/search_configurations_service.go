package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jzebell/gov-proposal-ai-sub006/internal/apperrors"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/models"
)

const maxConfigurationNameLength = 100

// SearchConfigurationsRepository persists named weight sets.
type SearchConfigurationsRepository interface {
	Create(ctx context.Context, cfg *models.SearchConfiguration) (*models.SearchConfiguration, error)
	List(ctx context.Context) ([]models.SearchConfiguration, error)
}

// CreateSearchConfigurationRequest is a new named weight set.
type CreateSearchConfigurationRequest struct {
	Name      string
	Weights   models.Weights
	IsDefault bool
}

// SearchConfigurationsService manages named weight sets.
type SearchConfigurationsService struct {
	repo   SearchConfigurationsRepository
	logger *slog.Logger
}

// NewSearchConfigurationsService creates a SearchConfigurationsService.
func NewSearchConfigurationsService(repo SearchConfigurationsRepository, logger *slog.Logger) *SearchConfigurationsService {
	if logger == nil {
		logger = slog.Default()
	}

	return &SearchConfigurationsService{repo: repo, logger: logger}
}

// List returns every configuration, default first.
func (s *SearchConfigurationsService) List(ctx context.Context) ([]models.SearchConfiguration, error) {
	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list search configurations: %w", err)
	}

	return list, nil
}

// Create validates and stores a configuration. Weights must each lie in [0,1] and sum to 1.
func (s *SearchConfigurationsService) Create(ctx context.Context, req *CreateSearchConfigurationRequest) (*models.SearchConfiguration, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperrors.NewValidationError("name", "is required")
	}

	if len(name) > maxConfigurationNameLength {
		return nil, apperrors.NewValidationError("name", fmt.Sprintf("must be at most %d characters", maxConfigurationNameLength))
	}

	if err := req.Weights.Validate(); err != nil {
		return nil, apperrors.NewValidationError("weights", err.Error())
	}

	created, err := s.repo.Create(ctx, &models.SearchConfiguration{
		Name:      name,
		Weights:   req.Weights,
		IsDefault: req.IsDefault,
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "search configuration created",
		"name", created.Name,
		"is_default", created.IsDefault,
	)

	return created, nil
}
