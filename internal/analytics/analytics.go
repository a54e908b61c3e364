// Package analytics computes sprint burndown and project velocity
// series. Both are derived on demand from the store plus the status
// transition log.
package analytics

import (
	"math"
	"time"

	"sprintline/internal/domain"
)

const dateLayout = "2006-01-02"

// BurndownPoint is one calendar day of a sprint's burndown.
type BurndownPoint struct {
	Day             string  `json:"day" format:"date"`
	RemainingEffort float64 `json:"remaining_effort"`
	IdealRemaining  float64 `json:"ideal_remaining"`
	CompletedEffort float64 `json:"completed_effort"`
}

// Burndown samples the story-point members of a sprint for every day
// from start through min(end, today). doneAt maps member ids to the
// moment they last entered done; done members absent from the map are
// treated as completed on the start date.
func Burndown(sprint domain.Sprint, members []domain.WorkItem, doneAt map[string]time.Time, today time.Time) ([]BurndownPoint, error) {
	start, err := time.Parse(dateLayout, sprint.StartDate)
	if err != nil {
		return nil, err
	}
	end, err := time.Parse(dateLayout, sprint.EndDate)
	if err != nil {
		return nil, err
	}
	last := end
	today = today.UTC().Truncate(24 * time.Hour)
	if today.Before(last) {
		last = today
	}
	if last.Before(start) {
		return []BurndownPoint{}, nil
	}

	type member struct {
		effort float64
		doneOn *time.Time
	}
	var total float64
	var pool []member
	for _, w := range members {
		if w.EffortUnit != domain.UnitStoryPoints {
			continue
		}
		effort := 0.0
		if w.EffortEstimate != nil {
			effort = *w.EffortEstimate
		}
		m := member{effort: effort}
		if w.Status == domain.StatusDone {
			day := start
			if at, ok := doneAt[w.ID]; ok {
				day = at.UTC().Truncate(24 * time.Hour)
			}
			m.doneOn = &day
		}
		total += effort
		pool = append(pool, m)
	}

	span := end.Sub(start).Hours() / 24
	var series []BurndownPoint
	for d := start; !d.After(last); d = d.AddDate(0, 0, 1) {
		var completed float64
		for _, m := range pool {
			if m.doneOn != nil && !m.doneOn.After(d) {
				completed += m.effort
			}
		}
		ideal := 0.0
		if span > 0 {
			elapsed := d.Sub(start).Hours() / 24
			ideal = total * (1 - elapsed/span)
			ideal = math.Max(0, math.Min(total, ideal))
		}
		series = append(series, BurndownPoint{
			Day:             d.Format(dateLayout),
			RemainingEffort: total - completed,
			IdealRemaining:  ideal,
			CompletedEffort: completed,
		})
	}
	return series, nil
}

// SprintVelocity is one sprint's row in a project velocity report.
type SprintVelocity struct {
	SprintID        string   `json:"sprint_id"`
	SprintName      string   `json:"sprint_name"`
	StartDate       string   `json:"start_date" format:"date"`
	Status          string   `json:"status"`
	Planned         float64  `json:"planned"`
	Actual          float64  `json:"actual"`
	RollingAvg      float64  `json:"rolling_avg"`
	Variance        float64  `json:"variance"`
	VariancePercent *float64 `json:"variance_percent,omitempty"`
}

// VelocityReport aggregates a project's sprints.
type VelocityReport struct {
	Sprints          []SprintVelocity `json:"sprints"`
	AvgPlanned       float64          `json:"avg_planned"`
	AvgActual        float64          `json:"avg_actual"`
	LatestRollingAvg float64          `json:"latest_rolling_avg"`
}

// Velocity builds the report for sprints already ordered by start date
// ascending. actuals maps sprint id to completed story points; window
// is the rolling-average span.
func Velocity(sprints []domain.Sprint, actuals map[string]float64, window int) VelocityReport {
	if window <= 0 {
		window = 3
	}
	report := VelocityReport{Sprints: []SprintVelocity{}}
	var sumPlanned, sumActual float64
	for k, s := range sprints {
		actual := actuals[s.ID]
		row := SprintVelocity{
			SprintID:   s.ID,
			SprintName: s.Name,
			StartDate:  s.StartDate,
			Status:     s.Status,
			Planned:    s.PlannedVelocity,
			Actual:     actual,
			Variance:   actual - s.PlannedVelocity,
		}
		if s.PlannedVelocity > 0 {
			vp := row.Variance * 100 / s.PlannedVelocity
			row.VariancePercent = &vp
		}
		lo := k - window + 1
		if lo < 0 {
			lo = 0
		}
		var windowSum float64
		for i := lo; i <= k; i++ {
			windowSum += actuals[sprints[i].ID]
		}
		row.RollingAvg = windowSum / float64(k-lo+1)
		report.Sprints = append(report.Sprints, row)
		sumPlanned += s.PlannedVelocity
		sumActual += actual
	}
	if n := len(sprints); n > 0 {
		report.AvgPlanned = sumPlanned / float64(n)
		report.AvgActual = sumActual / float64(n)
		report.LatestRollingAvg = report.Sprints[n-1].RollingAvg
	}
	return report
}
