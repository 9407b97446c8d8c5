package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/splax/peep/internal/domain"
	"github.com/splax/peep/internal/repository"
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.ProjectRepository     = (*Repository)(nil)
	_ repository.EnvironmentRepository = (*Repository)(nil)
)

const environmentProjectColumns = `ep.id, ep.project_id, ep.environment_id, e.name, ep.is_hidden, ep.created_at`

// GetProjectByID fetches project details.
func (r *Repository) GetProjectByID(ctx context.Context, projectID string) (*domain.Project, error) {
	const query = `SELECT id, team_id, slug, name, created_at FROM projects WHERE id = $1`
	row := r.pool.QueryRow(ctx, query, projectID)
	var project domain.Project
	if err := row.Scan(&project.ID, &project.TeamID, &project.Slug, &project.Name, &project.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &project, nil
}

// ListEnvironmentProjects returns a project's environment associations ordered by environment name.
func (r *Repository) ListEnvironmentProjects(ctx context.Context, projectID string) ([]domain.EnvironmentProject, error) {
	const query = `SELECT ` + environmentProjectColumns + `
		FROM environment_projects ep
		INNER JOIN environments e ON e.id = ep.environment_id
		WHERE ep.project_id = $1
		ORDER BY e.name ASC, ep.id ASC`
	rows, err := r.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.EnvironmentProject, 0)
	for rows.Next() {
		item, err := scanEnvironmentProject(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// GetEnvironmentProject loads one association by environment name.
func (r *Repository) GetEnvironmentProject(ctx context.Context, projectID, environmentName string) (*domain.EnvironmentProject, error) {
	const query = `SELECT ` + environmentProjectColumns + `
		FROM environment_projects ep
		INNER JOIN environments e ON e.id = ep.environment_id
		WHERE ep.project_id = $1 AND e.name = $2`
	item, err := scanEnvironmentProject(r.pool.QueryRow(ctx, query, projectID, environmentName))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

// SetEnvironmentProjectHidden updates the hidden flag of an association.
func (r *Repository) SetEnvironmentProjectHidden(ctx context.Context, associationID string, hidden bool) error {
	const query = `UPDATE environment_projects SET is_hidden = $2 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, associationID, hidden)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func scanEnvironmentProject(row pgx.Row) (domain.EnvironmentProject, error) {
	var item domain.EnvironmentProject
	err := row.Scan(
		&item.ID,
		&item.ProjectID,
		&item.EnvironmentID,
		&item.EnvironmentName,
		&item.IsHidden,
		&item.CreatedAt,
	)
	return item, err
}
