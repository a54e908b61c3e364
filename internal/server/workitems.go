package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"sprintline/internal/domain"
	"sprintline/internal/engine"
	"sprintline/internal/repo"
	"sprintline/internal/rollup"
)

func registerWorkItems(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-work-item",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/work-items",
		Summary:       "Create work item",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string                `path:"project_id"`
		Body      CreateWorkItemRequest `json:"body"`
	}) (*struct {
		Body domain.WorkItem `json:"body"`
	}, error) {
		opts := engine.WorkItemCreateOptions{
			ProjectID:          input.ProjectID,
			ParentID:           input.Body.ParentID,
			Type:               input.Body.Type,
			Title:              input.Body.Title,
			Description:        input.Body.Description,
			AcceptanceCriteria: input.Body.AcceptanceCriteria,
			Status:             input.Body.Status,
			Priority:           input.Body.Priority,
			EffortEstimate:     input.Body.EffortEstimate,
			EffortUnit:         input.Body.EffortUnit,
			AssigneeID:         input.Body.AssigneeID,
			SprintID:           input.Body.SprintID,
		}
		if input.Body.ID != nil {
			opts.ID = *input.Body.ID
		}
		w, err := e.CreateWorkItem(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.WorkItem `json:"body"`
		}{Body: w}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-work-items",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/work-items",
		Summary:     "List work items",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Type      string `query:"type" enum:"epic,feature,user_story,task,"`
		ParentID  string `query:"parent_id"`
		SprintID  string `query:"sprint_id"`
		Status    string `query:"status" enum:"backlog,todo,in_progress,in_review,done,cancelled,"`
		Priority  string `query:"priority" enum:"low,medium,high,critical,"`
		Assignee  string `query:"assignee_id"`
		Search    string `query:"search"`
		Rollup    bool   `query:"rollup" doc:"Include the derived completion rollup per item"`
		Offset    int    `query:"offset" minimum:"0"`
		Limit     int    `query:"limit" minimum:"0" maximum:"500"`
	}) (*struct {
		Body WorkItemListResponse `json:"body"`
	}, error) {
		if _, err := e.Repo.GetProject(ctx, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		if input.Limit == 0 {
			input.Limit = 50
		}
		filters := repo.WorkItemFilters{
			ProjectID:  input.ProjectID,
			Type:       input.Type,
			ParentID:   input.ParentID,
			SprintID:   input.SprintID,
			Status:     input.Status,
			Priority:   input.Priority,
			AssigneeID: input.Assignee,
			Search:     input.Search,
			Offset:     input.Offset,
			Limit:      input.Limit,
		}
		items, err := e.Repo.ListWorkItems(ctx, filters)
		if err != nil {
			return nil, handleError(err)
		}
		total, err := e.Repo.CountWorkItems(ctx, filters)
		if err != nil {
			return nil, handleError(err)
		}
		views := make([]WorkItemView, 0, len(items))
		names := nameResolver{e: e}
		for _, w := range items {
			view, err := workItemView(ctx, e, w, input.Rollup, &names)
			if err != nil {
				return nil, handleError(err)
			}
			views = append(views, view)
		}
		return &struct {
			Body WorkItemListResponse `json:"body"`
		}{Body: WorkItemListResponse{
			Items: views,
			Meta:  ListMeta{Total: total, Offset: input.Offset, Limit: input.Limit},
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-work-item",
		Method:      http.MethodGet,
		Path:        "/work-items/{item_id}",
		Summary:     "Get work item",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ItemID string `path:"item_id"`
	}) (*struct {
		Body WorkItemView `json:"body"`
	}, error) {
		w, err := e.Repo.GetWorkItem(ctx, input.ItemID)
		if err != nil {
			return nil, handleError(err)
		}
		names := nameResolver{e: e}
		view, err := workItemView(ctx, e, w, true, &names)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body WorkItemView `json:"body"`
		}{Body: view}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-work-item-rollup",
		Method:      http.MethodGet,
		Path:        "/work-items/{item_id}/rollup",
		Summary:     "Work item completion rollup",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ItemID string `path:"item_id"`
	}) (*struct {
		Body rollup.Summary `json:"body"`
	}, error) {
		summary, err := e.Rollup(ctx, input.ItemID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body rollup.Summary `json:"body"`
		}{Body: summary}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-work-item-children",
		Method:      http.MethodGet,
		Path:        "/work-items/{item_id}/children",
		Summary:     "List direct children",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ItemID string `path:"item_id"`
		Type   string `query:"type" enum:"epic,feature,user_story,task,"`
	}) (*struct {
		Body []domain.WorkItem `json:"body"`
	}, error) {
		if _, err := e.Repo.GetWorkItem(ctx, input.ItemID); err != nil {
			return nil, handleError(err)
		}
		children, err := e.Repo.ListChildren(ctx, input.ItemID, input.Type)
		if err != nil {
			return nil, handleError(err)
		}
		if children == nil {
			children = []domain.WorkItem{}
		}
		return &struct {
			Body []domain.WorkItem `json:"body"`
		}{Body: children}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-work-item-tree",
		Method:      http.MethodGet,
		Path:        "/work-items/{item_id}/tree",
		Summary:     "Work item subtree",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ItemID string `path:"item_id"`
	}) (*struct {
		Body TreeNode `json:"body"`
	}, error) {
		root, err := e.Repo.GetWorkItem(ctx, input.ItemID)
		if err != nil {
			return nil, handleError(err)
		}
		descendants, err := e.Descendants(ctx, input.ItemID)
		if err != nil {
			return nil, handleError(err)
		}
		all := append([]domain.WorkItem{root}, descendants...)
		node, err := buildTree(ctx, e, root, all)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TreeNode `json:"body"`
		}{Body: node}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-work-item-history",
		Method:      http.MethodGet,
		Path:        "/work-items/{item_id}/history",
		Summary:     "Status transition history",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ItemID string `path:"item_id"`
	}) (*struct {
		Body []domain.StatusTransition `json:"body"`
	}, error) {
		if _, err := e.Repo.GetWorkItem(ctx, input.ItemID); err != nil {
			return nil, handleError(err)
		}
		transitions, err := e.History.ListForItem(ctx, input.ItemID)
		if err != nil {
			return nil, handleError(err)
		}
		if transitions == nil {
			transitions = []domain.StatusTransition{}
		}
		return &struct {
			Body []domain.StatusTransition `json:"body"`
		}{Body: transitions}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-work-item",
		Method:      http.MethodPatch,
		Path:        "/work-items/{item_id}",
		Summary:     "Update work item",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ItemID string                `path:"item_id"`
		Body   UpdateWorkItemRequest `json:"body"`
	}) (*struct {
		Body domain.WorkItem `json:"body"`
	}, error) {
		w, err := e.UpdateWorkItem(ctx, engine.WorkItemUpdateOptions{
			ID:                 input.ItemID,
			Title:              input.Body.Title,
			Description:        input.Body.Description,
			AcceptanceCriteria: input.Body.AcceptanceCriteria,
			Status:             input.Body.Status,
			Priority:           input.Body.Priority,
			EffortEstimate:     input.Body.EffortEstimate,
			EffortUnit:         input.Body.EffortUnit,
			AssigneeID:         input.Body.AssigneeID,
			SetParent:          input.Body.ParentID,
			SetSprint:          input.Body.SprintID,
			ExpectedUpdatedAt:  input.Body.UpdatedAt,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.WorkItem `json:"body"`
		}{Body: w}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-work-item-status",
		Method:      http.MethodPut,
		Path:        "/work-items/{item_id}/status",
		Summary:     "Move work item on the board",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ItemID string           `path:"item_id"`
		Body   SetStatusRequest `json:"body"`
	}) (*struct {
		Body domain.WorkItem `json:"body"`
	}, error) {
		w, err := e.SetWorkItemStatus(ctx, input.ItemID, input.Body.Status)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.WorkItem `json:"body"`
		}{Body: w}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-work-item",
		Method:        http.MethodDelete,
		Path:          "/work-items/{item_id}",
		Summary:       "Delete work item and its subtree",
		DefaultStatus: http.StatusOK,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ItemID string `path:"item_id"`
	}) (*struct {
		Body struct {
			Deleted int `json:"deleted"`
		} `json:"body"`
	}, error) {
		n, err := e.DeleteWorkItem(ctx, input.ItemID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Deleted int `json:"deleted"`
			} `json:"body"`
		}{}
		out.Body.Deleted = n
		return out, nil
	})
}

// nameResolver caches resource and sprint names within one request.
type nameResolver struct {
	e         engine.Engine
	resources map[string]*string
	sprints   map[string]*string
}

func (n *nameResolver) resourceName(ctx context.Context, id *string) *string {
	if id == nil {
		return nil
	}
	if n.resources == nil {
		n.resources = map[string]*string{}
	}
	if name, ok := n.resources[*id]; ok {
		return name
	}
	name := resolveResourceName(ctx, n.e, id)
	n.resources[*id] = name
	return name
}

func (n *nameResolver) sprintName(ctx context.Context, id *string) *string {
	if id == nil {
		return nil
	}
	if n.sprints == nil {
		n.sprints = map[string]*string{}
	}
	if name, ok := n.sprints[*id]; ok {
		return name
	}
	s, err := n.e.Repo.GetSprint(ctx, *id)
	if err != nil {
		n.sprints[*id] = nil
		return nil
	}
	n.sprints[*id] = &s.Name
	return &s.Name
}

func workItemView(ctx context.Context, e engine.Engine, w domain.WorkItem, withRollup bool, names *nameResolver) (WorkItemView, error) {
	view := WorkItemView{WorkItem: w}
	view.AssigneeName = names.resourceName(ctx, w.AssigneeID)
	view.SprintName = names.sprintName(ctx, w.SprintID)
	count, err := e.Repo.CountChildren(ctx, w.ID, "")
	if err != nil {
		return view, err
	}
	view.ChildCount = count
	if withRollup {
		summary, err := e.Rollup(ctx, w.ID)
		if err != nil {
			return view, err
		}
		view.Rollup = &summary
	}
	return view, nil
}

func buildTree(ctx context.Context, e engine.Engine, root domain.WorkItem, all []domain.WorkItem) (TreeNode, error) {
	children := map[string][]domain.WorkItem{}
	for _, w := range all {
		if w.ParentID != nil {
			children[*w.ParentID] = append(children[*w.ParentID], w)
		}
	}
	names := nameResolver{e: e}
	var build func(w domain.WorkItem) (TreeNode, error)
	build = func(w domain.WorkItem) (TreeNode, error) {
		view, err := workItemView(ctx, e, w, false, &names)
		if err != nil {
			return TreeNode{}, err
		}
		view.Rollup = summaryPtr(rollup.Compute(w.ID, all))
		node := TreeNode{WorkItemView: view, Children: []TreeNode{}}
		for _, c := range children[w.ID] {
			kid, err := build(c)
			if err != nil {
				return TreeNode{}, err
			}
			node.Children = append(node.Children, kid)
		}
		return node, nil
	}
	return build(root)
}

func summaryPtr(s rollup.Summary) *rollup.Summary { return &s }
