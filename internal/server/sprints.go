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

func registerSprints(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-sprint",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/sprints",
		Summary:       "Create sprint",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string              `path:"project_id"`
		Body      CreateSprintRequest `json:"body"`
	}) (*struct {
		Body domain.Sprint `json:"body"`
	}, error) {
		opts := engine.SprintCreateOptions{
			ProjectID:       input.ProjectID,
			Name:            input.Body.Name,
			Goal:            input.Body.Goal,
			StageID:         input.Body.StageID,
			StartDate:       input.Body.StartDate,
			EndDate:         input.Body.EndDate,
			PlannedVelocity: input.Body.PlannedVelocity,
		}
		if input.Body.ID != nil {
			opts.ID = *input.Body.ID
		}
		s, err := e.CreateSprint(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Sprint `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-sprints",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/sprints",
		Summary:     "List sprints",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Status    string `query:"status" enum:"planning,active,completed,cancelled,"`
		Search    string `query:"search"`
		Metrics   bool   `query:"metrics" doc:"Include member metrics per sprint"`
		Offset    int    `query:"offset" minimum:"0"`
		Limit     int    `query:"limit" minimum:"0" maximum:"500"`
	}) (*struct {
		Body SprintListResponse `json:"body"`
	}, error) {
		if _, err := e.Repo.GetProject(ctx, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		if input.Limit == 0 {
			input.Limit = 50
		}
		filters := repo.SprintFilters{
			ProjectID: input.ProjectID,
			Status:    input.Status,
			Search:    input.Search,
			Offset:    input.Offset,
			Limit:     input.Limit,
		}
		sprints, err := e.Repo.ListSprints(ctx, filters)
		if err != nil {
			return nil, handleError(err)
		}
		total, err := e.Repo.CountSprints(ctx, filters)
		if err != nil {
			return nil, handleError(err)
		}
		views := make([]SprintView, 0, len(sprints))
		for _, s := range sprints {
			view := SprintView{Sprint: s}
			if input.Metrics {
				m, err := e.SprintMetrics(ctx, s.ID)
				if err != nil {
					return nil, handleError(err)
				}
				view.Metrics = &m
			}
			views = append(views, view)
		}
		return &struct {
			Body SprintListResponse `json:"body"`
		}{Body: SprintListResponse{
			Items: views,
			Meta:  ListMeta{Total: total, Offset: input.Offset, Limit: input.Limit},
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-sprint",
		Method:      http.MethodGet,
		Path:        "/sprints/{sprint_id}",
		Summary:     "Get sprint",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		SprintID string `path:"sprint_id"`
	}) (*struct {
		Body SprintView `json:"body"`
	}, error) {
		s, err := e.Repo.GetSprint(ctx, input.SprintID)
		if err != nil {
			return nil, handleError(err)
		}
		m, err := e.SprintMetrics(ctx, s.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SprintView `json:"body"`
		}{Body: SprintView{Sprint: s, Metrics: &m}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-sprint",
		Method:      http.MethodPatch,
		Path:        "/sprints/{sprint_id}",
		Summary:     "Update sprint",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		SprintID string              `path:"sprint_id"`
		Body     UpdateSprintRequest `json:"body"`
	}) (*struct {
		Body domain.Sprint `json:"body"`
	}, error) {
		s, err := e.UpdateSprint(ctx, engine.SprintUpdateOptions{
			ID:                input.SprintID,
			Name:              input.Body.Name,
			Goal:              input.Body.Goal,
			StageID:           input.Body.StageID,
			StartDate:         input.Body.StartDate,
			EndDate:           input.Body.EndDate,
			Status:            input.Body.Status,
			PlannedVelocity:   input.Body.PlannedVelocity,
			ExpectedUpdatedAt: input.Body.UpdatedAt,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Sprint `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-sprint",
		Method:        http.MethodDelete,
		Path:          "/sprints/{sprint_id}",
		Summary:       "Delete sprint and unassign members",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		SprintID string `path:"sprint_id"`
	}) (*struct{}, error) {
		if err := e.DeleteSprint(ctx, input.SprintID); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "add-sprint-items",
		Method:      http.MethodPost,
		Path:        "/sprints/{sprint_id}/items",
		Summary:     "Add work items to the sprint backlog",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		SprintID string            `path:"sprint_id"`
		Body     BacklogAddRequest `json:"body"`
	}) (*struct {
		Body []domain.WorkItem `json:"body"`
	}, error) {
		items, err := e.AddToBacklog(ctx, input.SprintID, input.Body.ItemIDs)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.WorkItem `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-sprint-item",
		Method:      http.MethodDelete,
		Path:        "/sprints/{sprint_id}/items/{item_id}",
		Summary:     "Remove a work item from the sprint backlog",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		SprintID string `path:"sprint_id"`
		ItemID   string `path:"item_id"`
	}) (*struct {
		Body domain.WorkItem `json:"body"`
	}, error) {
		w, err := e.RemoveFromBacklog(ctx, input.SprintID, input.ItemID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.WorkItem `json:"body"`
		}{Body: w}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-sprint-burndown",
		Method:      http.MethodGet,
		Path:        "/sprints/{sprint_id}/burndown",
		Summary:     "Sprint burndown series",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		SprintID string `path:"sprint_id"`
	}) (*struct {
		Body []analytics.BurndownPoint `json:"body"`
	}, error) {
		series, err := e.Burndown(ctx, input.SprintID)
		if err != nil {
			return nil, handleError(err)
		}
		if series == nil {
			series = []analytics.BurndownPoint{}
		}
		return &struct {
			Body []analytics.BurndownPoint `json:"body"`
		}{Body: series}, nil
	})
}

func registerRetrospectives(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "upsert-retrospective",
		Method:      http.MethodPut,
		Path:        "/sprints/{sprint_id}/retrospective",
		Summary:     "Create or replace the sprint retrospective",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		SprintID string                     `path:"sprint_id"`
		Body     UpsertRetrospectiveRequest `json:"body"`
	}) (*struct {
		Body domain.Retrospective `json:"body"`
	}, error) {
		items := make([]domain.ActionItem, 0, len(input.Body.ActionItems))
		for _, a := range input.Body.ActionItems {
			items = append(items, domain.ActionItem{
				Item:    a.Item,
				OwnerID: a.OwnerID,
				DueDate: a.DueDate,
				Status:  a.Status,
			})
		}
		r, err := e.UpsertRetrospective(ctx, engine.RetrospectiveOptions{
			SprintID:            input.SprintID,
			RetrospectiveDate:   input.Body.RetrospectiveDate,
			WhatWentWell:        input.Body.WhatWentWell,
			WhatCouldBeImproved: input.Body.WhatCouldBeImproved,
			ActionItems:         items,
			TeamSentiment:       input.Body.TeamSentiment,
			SprintRating:        input.Body.SprintRating,
			Notes:               input.Body.Notes,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Retrospective `json:"body"`
		}{Body: r}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-retrospective",
		Method:      http.MethodGet,
		Path:        "/sprints/{sprint_id}/retrospective",
		Summary:     "Get the sprint retrospective",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		SprintID string `path:"sprint_id"`
	}) (*struct {
		Body domain.Retrospective `json:"body"`
	}, error) {
		r, err := e.GetRetrospective(ctx, input.SprintID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Retrospective `json:"body"`
		}{Body: r}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-retrospective",
		Method:        http.MethodDelete,
		Path:          "/sprints/{sprint_id}/retrospective",
		Summary:       "Delete the sprint retrospective",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		SprintID string `path:"sprint_id"`
	}) (*struct{}, error) {
		if err := e.DeleteRetrospective(ctx, input.SprintID); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})
}

func registerResources(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-resource",
		Method:        http.MethodPost,
		Path:          "/resources",
		Summary:       "Create resource",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateResourceRequest `json:"body"`
	}) (*struct {
		Body domain.Resource `json:"body"`
	}, error) {
		opts := engine.ResourceOptions{
			Name:                input.Body.Name,
			Email:               input.Body.Email,
			Role:                input.Body.Role,
			Status:              input.Body.Status,
			HourlyRate:          input.Body.HourlyRate,
			AvailabilityPercent: input.Body.AvailabilityPercent,
		}
		if input.Body.ID != nil {
			opts.ID = *input.Body.ID
		}
		res, err := e.CreateResource(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Resource `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-resources",
		Method:      http.MethodGet,
		Path:        "/resources",
		Summary:     "List resources",
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" enum:"active,inactive,"`
	}) (*struct {
		Body []domain.Resource `json:"body"`
	}, error) {
		resources, err := e.Repo.ListResources(ctx, input.Status)
		if err != nil {
			return nil, handleError(err)
		}
		if resources == nil {
			resources = []domain.Resource{}
		}
		return &struct {
			Body []domain.Resource `json:"body"`
		}{Body: resources}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-resource",
		Method:      http.MethodGet,
		Path:        "/resources/{resource_id}",
		Summary:     "Get resource",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ResourceID string `path:"resource_id"`
	}) (*struct {
		Body domain.Resource `json:"body"`
	}, error) {
		res, err := e.Repo.GetResource(ctx, input.ResourceID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Resource `json:"body"`
		}{Body: res}, nil
	})
}
