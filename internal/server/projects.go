package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"sprintline/internal/analytics"
	"sprintline/internal/domain"
	"sprintline/internal/engine"
	"sprintline/internal/repo"
)

func registerProjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		opts := engine.ProjectCreateOptions{
			Name:         input.Body.Name,
			Status:       input.Body.Status,
			Priority:     input.Body.Priority,
			Phase:        input.Body.Phase,
			Size:         input.Body.Size,
			ManagerID:    input.Body.ManagerID,
			SponsorID:    input.Body.SponsorID,
			BusinessUnit: input.Body.BusinessUnit,
			StartDate:    input.Body.StartDate,
			EndDate:      input.Body.EndDate,
			Budget:       input.Body.Budget,
		}
		if input.Body.ID != nil {
			opts.ID = *input.Body.ID
		}
		p, err := e.CreateProject(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status   string `query:"status" enum:"planned,active,on_hold,completed,closed,"`
		Priority string `query:"priority" enum:"low,medium,high,critical,"`
		Manager  string `query:"manager"`
		Sponsor  string `query:"sponsor"`
		Offset   int    `query:"offset" minimum:"0"`
		Limit    int    `query:"limit" minimum:"0" maximum:"500"`
	}) (*struct {
		Body ProjectListResponse `json:"body"`
	}, error) {
		if input.Limit == 0 {
			input.Limit = 50
		}
		filters := repo.ProjectFilters{
			Status:   input.Status,
			Priority: input.Priority,
			Manager:  input.Manager,
			Sponsor:  input.Sponsor,
			Offset:   input.Offset,
			Limit:    input.Limit,
		}
		items, err := e.Repo.ListProjects(ctx, filters)
		if err != nil {
			return nil, handleError(err)
		}
		total, err := e.Repo.CountProjects(ctx, filters)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Project{}
		}
		return &struct {
			Body ProjectListResponse `json:"body"`
		}{Body: ProjectListResponse{
			Items: items,
			Meta:  ListMeta{Total: total, Offset: input.Offset, Limit: input.Limit},
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		p, err := e.Repo.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project-overview",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/overview",
		Summary:     "Project overview",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body ProjectOverview `json:"body"`
	}, error) {
		p, err := e.Repo.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		overview := ProjectOverview{Project: p}
		overview.ManagerName = resolveResourceName(ctx, e, p.ManagerID)
		overview.SponsorName = resolveResourceName(ctx, e, p.SponsorID)
		counts, err := e.Repo.CountWorkItemsByStatus(ctx, p.ID)
		if err != nil {
			return nil, handleError(err)
		}
		overview.ItemStatusCounts = counts
		return &struct {
			Body ProjectOverview `json:"body"`
		}{Body: overview}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-project",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}",
		Summary:     "Update project",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string               `path:"project_id"`
		Body      UpdateProjectRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		p, err := e.UpdateProject(ctx, engine.ProjectUpdateOptions{
			ID:           input.ProjectID,
			Name:         input.Body.Name,
			Status:       input.Body.Status,
			Priority:     input.Body.Priority,
			Phase:        input.Body.Phase,
			Size:         input.Body.Size,
			ManagerID:    input.Body.ManagerID,
			SponsorID:    input.Body.SponsorID,
			BusinessUnit: input.Body.BusinessUnit,
			StartDate:    input.Body.StartDate,
			EndDate:      input.Body.EndDate,
			Budget:       input.Body.Budget,
			ActualCost:   input.Body.ActualCost,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-project",
		Method:        http.MethodDelete,
		Path:          "/projects/{project_id}",
		Summary:       "Delete project",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct{}, error) {
		if err := e.DeleteProject(ctx, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project-velocity",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/velocity",
		Summary:     "Project velocity report",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body analytics.VelocityReport `json:"body"`
	}, error) {
		report, err := e.Velocity(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body analytics.VelocityReport `json:"body"`
		}{Body: report}, nil
	})
}

func resolveResourceName(ctx context.Context, e engine.Engine, id *string) *string {
	if id == nil {
		return nil
	}
	res, err := e.Repo.GetResource(ctx, *id)
	if err != nil {
		// unresolved names are cosmetic; the overview stays usable
		return nil
	}
	return &res.Name
}
