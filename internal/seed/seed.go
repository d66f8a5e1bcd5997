// internal/seed/seed.go

// Package seed populates the organization, project and repository tables from
// configuration and the remote API at startup. All writes are idempotent
// upserts, so re-running on every boot is safe.
package seed

import (
	"context"
	"fmt"
	"log/slog"

	"git-analytics-service/internal/model"
	"git-analytics-service/internal/store"
)

// ProjectClient fetches project metadata from the source system.
type ProjectClient interface {
	GetProject(ctx context.Context, project string) (*model.Project, error)
}

// Discoverer refreshes the repository list of a project.
type Discoverer interface {
	DiscoverRepositories(ctx context.Context, projectName, projectID string) ([]model.Repository, error)
}

// Refresher re-discovers a project's repositories on demand, for the HTTP
// surface. The project must already be seeded; only repository rows change.
type Refresher struct {
	client ProjectClient
	disc   Discoverer
}

// NewRefresher wires a Refresher.
func NewRefresher(client ProjectClient, disc Discoverer) *Refresher {
	return &Refresher{client: client, disc: disc}
}

// Refresh resolves the project by name against the source system and upserts
// its current repository list.
func (r *Refresher) Refresh(ctx context.Context, projectName string) ([]model.Repository, error) {
	project, err := r.client.GetProject(ctx, projectName)
	if err != nil {
		return nil, fmt.Errorf("fetching project %q: %w", projectName, err)
	}
	return r.disc.DiscoverRepositories(ctx, project.Name, project.ID)
}

// Run seeds the organization and the configured projects, then discovers each
// project's repositories.
func Run(ctx context.Context, st store.Store, client ProjectClient, disc Discoverer, logger *slog.Logger, orgName, orgURL string, projects []string) error {
	org, err := st.UpsertOrganization(ctx, model.Organization{
		Name: orgName,
		URL:  orgURL,
	})
	if err != nil {
		return err
	}
	logger.Info("Seeded organization", "organization", org.Name)

	for _, name := range projects {
		project, err := client.GetProject(ctx, name)
		if err != nil {
			return fmt.Errorf("fetching project %q: %w", name, err)
		}
		project.OrganizationID = org.ID
		if err := st.UpsertProject(ctx, *project); err != nil {
			return err
		}

		repos, err := disc.DiscoverRepositories(ctx, project.Name, project.ID)
		if err != nil {
			return err
		}
		logger.Info("Seeded project", "project", project.Name, "repositories", len(repos))
	}

	return nil
}
