package services

import (
	"context"

	"github.com/fieldlink/fieldlink-go/internal/client/models"
	"github.com/fieldlink/fieldlink-go/internal/logging"
)

// ProjectAPI is the subset of the backend client the project service needs.
type ProjectAPI interface {
	ListProjects(ctx context.Context) ([]models.Project, error)
}

// ProjectService serves the construction-project listing. The call runs
// through the authenticated pipeline, so an expired session surfaces as
// common.ErrUnauthorized after the pipeline has exhausted its refresh.
type ProjectService struct {
	api ProjectAPI
	log logging.Logger
}

func NewProjectService(apiClient ProjectAPI, log logging.Logger) *ProjectService {
	return &ProjectService{api: apiClient, log: log.With("component", "projects")}
}

func (s *ProjectService) List(ctx context.Context) ([]models.Project, error) {
	projects, err := s.api.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	s.log.Debug(ctx, "projects listed", "count", len(projects))
	return projects, nil
}
