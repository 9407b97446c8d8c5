package repository

import (
	"context"

	"github.com/splax/peep/internal/domain"
)

// ProjectRepository reads project records.
type ProjectRepository interface {
	GetProjectByID(ctx context.Context, projectID string) (*domain.Project, error)
}

// EnvironmentRepository reads project environment associations.
type EnvironmentRepository interface {
	// ListEnvironmentProjects returns every association of the project ordered by environment name.
	ListEnvironmentProjects(ctx context.Context, projectID string) ([]domain.EnvironmentProject, error)
	GetEnvironmentProject(ctx context.Context, projectID, environmentName string) (*domain.EnvironmentProject, error)
	SetEnvironmentProjectHidden(ctx context.Context, associationID string, hidden bool) error
}
