package environment

import (
	"context"
	"fmt"
	"strings"

	"log/slog"

	"github.com/splax/peep/internal/domain"
	"github.com/splax/peep/internal/repository"
)

// Service exposes project environment associations.
type Service struct {
	envs   repository.EnvironmentRepository
	logger *slog.Logger
}

// New constructs an environment service.
func New(envs repository.EnvironmentRepository, logger *slog.Logger) Service {
	return Service{envs: envs, logger: logger}
}

var (
	errProjectIDRequired       = fmt.Errorf("%w: project id required", repository.ErrInvalidArgument)
	errEnvironmentNameRequired = fmt.Errorf("%w: environment name required", repository.ErrInvalidArgument)
)

// List returns the project's environments matching visibility, ordered by
// environment name. visibility must be one of the accepted values.
func (s Service) List(ctx context.Context, projectID, visibility string) ([]domain.EnvironmentProject, error) {
	v, err := ParseVisibility(visibility)
	if err != nil {
		return nil, err
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	items, err := s.envs.ListEnvironmentProjects(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return v.Filter(items), nil
}

// Get returns a single association by environment name.
func (s Service) Get(ctx context.Context, projectID, name string) (*domain.EnvironmentProject, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	if name == "" {
		return nil, errEnvironmentNameRequired
	}
	return s.envs.GetEnvironmentProject(ctx, projectID, name)
}

// SetHidden hides or reveals an environment for the project.
func (s Service) SetHidden(ctx context.Context, projectID, name string, hidden bool) (*domain.EnvironmentProject, error) {
	item, err := s.Get(ctx, projectID, name)
	if err != nil {
		return nil, err
	}
	if item.IsHidden == hidden {
		return item, nil
	}
	if err := s.envs.SetEnvironmentProjectHidden(ctx, item.ID, hidden); err != nil {
		return nil, err
	}
	item.IsHidden = hidden
	if s.logger != nil {
		s.logger.Info("environment visibility updated", "project_id", item.ProjectID, "environment", item.EnvironmentName, "hidden", hidden)
	}
	return item, nil
}
