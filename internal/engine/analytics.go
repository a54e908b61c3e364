package engine

import (
	"context"

	"sprintline/internal/analytics"
	"sprintline/internal/domain"
	"sprintline/internal/repo"
	"sprintline/internal/rollup"
)

// Burndown assembles a sprint's daily burndown. Completion days come
// from the status transition log; done members without a recorded
// transition count from the sprint's first day.
func (e Engine) Burndown(ctx context.Context, sprintID string) ([]analytics.BurndownPoint, error) {
	s, err := e.Repo.GetSprint(ctx, sprintID)
	if err != nil {
		return nil, wrap(err, "sprint", sprintID)
	}
	members, err := e.Repo.ListSprintMembers(ctx, sprintID)
	if err != nil {
		return nil, wrap(err, "sprint", sprintID)
	}
	var doneIDs []string
	for _, m := range members {
		if m.Status == domain.StatusDone {
			doneIDs = append(doneIDs, m.ID)
		}
	}
	doneAt, err := e.History.LastDoneAt(ctx, doneIDs)
	if err != nil {
		return nil, wrap(err, "sprint", sprintID)
	}
	series, err := analytics.Burndown(s, members, doneAt, e.now())
	if err != nil {
		return nil, fieldErr("sprint", err.Error())
	}
	return series, nil
}

// Velocity reports planned versus actual story points per sprint with
// a rolling average, across all of a project's sprints.
func (e Engine) Velocity(ctx context.Context, projectID string) (analytics.VelocityReport, error) {
	var report analytics.VelocityReport
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return report, wrap(err, "project", projectID)
	}
	sprints, err := e.Repo.ListSprints(ctx, repo.SprintFilters{ProjectID: projectID})
	if err != nil {
		return report, wrap(err, "project", projectID)
	}
	actuals := make(map[string]float64, len(sprints))
	for _, s := range sprints {
		actual, err := e.Repo.SumDoneStoryPoints(ctx, s.ID)
		if err != nil {
			return report, wrap(err, "sprint", s.ID)
		}
		actuals[s.ID] = actual
	}
	return analytics.Velocity(sprints, actuals, e.Config.VelocityWindow()), nil
}

// Rollup computes the derived completion summary for one work item's
// subtree.
func (e Engine) Rollup(ctx context.Context, itemID string) (rollup.Summary, error) {
	w, err := e.Repo.GetWorkItem(ctx, itemID)
	if err != nil {
		return rollup.Summary{}, wrap(err, "work item", itemID)
	}
	descendants, err := e.Descendants(ctx, itemID)
	if err != nil {
		return rollup.Summary{}, err
	}
	items := append([]domain.WorkItem{w}, descendants...)
	return rollup.Compute(itemID, items), nil
}
