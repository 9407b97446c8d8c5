package project

import (
	"context"
	"fmt"
	"strings"

	"log/slog"

	"github.com/google/uuid"

	"github.com/splax/peep/internal/domain"
	"github.com/splax/peep/internal/repository"
)

// Service resolves projects for request handlers.
type Service struct {
	projects repository.ProjectRepository
	logger   *slog.Logger
}

// New returns a project service.
func New(projects repository.ProjectRepository, logger *slog.Logger) Service {
	return Service{projects: projects, logger: logger}
}

var (
	errMissingProjectID = fmt.Errorf("%w: project id required", repository.ErrInvalidArgument)
	errProjectNotFound  = fmt.Errorf("%w: project", repository.ErrNotFound)
)

// Get returns project details by identifier. Identifiers that are not UUIDs
// cannot exist and are reported as not found.
func (s Service) Get(ctx context.Context, projectID string) (*domain.Project, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, errMissingProjectID
	}
	if _, err := uuid.Parse(projectID); err != nil {
		return nil, errProjectNotFound
	}
	return s.projects.GetProjectByID(ctx, projectID)
}

// Authorize loads the project and checks it belongs to teamID. An empty
// teamID means the caller is not scoped to a team.
func (s Service) Authorize(ctx context.Context, projectID, teamID string) (*domain.Project, error) {
	project, err := s.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	teamID = strings.TrimSpace(teamID)
	if teamID != "" && project.TeamID != teamID {
		if s.logger != nil {
			s.logger.Warn("project access denied", "project_id", project.ID, "team_id", teamID)
		}
		return nil, fmt.Errorf("%w: project belongs to another team", repository.ErrForbidden)
	}
	return project, nil
}
