// Package rollup derives completion metrics for a work item from its
// subtree. Results are computed per query and never stored.
package rollup

import "sprintline/internal/domain"

// Summary is the derived view of one work item's subtree.
type Summary struct {
	TotalEffort       float64 `json:"total_effort"`
	CompletedEffort   float64 `json:"completed_effort"`
	CompletionPercent int     `json:"completion_percent"`
	LeafCount         int     `json:"leaf_count"`
	// DoneCount counts done descendants, plus the root itself when it
	// is a leaf.
	DoneCount int `json:"done_count"`
	// Per-unit totals; mixed subtrees still sum numerically in
	// TotalEffort, but these let consumers show honest breakdowns.
	StoryPoints UnitTotals `json:"story_points"`
	Hours       UnitTotals `json:"hours"`
}

type UnitTotals struct {
	Total     float64 `json:"total"`
	Completed float64 `json:"completed"`
}

// Compute rolls up the subtree rooted at rootID. items must contain
// the root and every descendant; extra items outside the subtree are
// ignored. Effort on non-leaf items is ignored; leaves carry the
// weight.
func Compute(rootID string, items []domain.WorkItem) Summary {
	byID := make(map[string]domain.WorkItem, len(items))
	children := make(map[string][]string, len(items))
	for _, w := range items {
		byID[w.ID] = w
		if w.ParentID != nil {
			children[*w.ParentID] = append(children[*w.ParentID], w.ID)
		}
	}
	if _, ok := byID[rootID]; !ok {
		return Summary{}
	}
	var s Summary
	doneLeaves := 0
	var walk func(id string, isRoot bool)
	walk = func(id string, isRoot bool) {
		w := byID[id]
		kids := children[id]
		leaf := len(kids) == 0
		done := w.Status == domain.StatusDone
		if done && (!isRoot || leaf) {
			s.DoneCount++
		}
		if leaf {
			s.LeafCount++
			if done {
				doneLeaves++
			}
			effort := 0.0
			if w.EffortEstimate != nil {
				effort = *w.EffortEstimate
			}
			s.TotalEffort += effort
			if done {
				s.CompletedEffort += effort
			}
			switch w.EffortUnit {
			case domain.UnitHours:
				s.Hours.Total += effort
				if done {
					s.Hours.Completed += effort
				}
			default:
				s.StoryPoints.Total += effort
				if done {
					s.StoryPoints.Completed += effort
				}
			}
			return
		}
		for _, kid := range kids {
			walk(kid, false)
		}
	}
	walk(rootID, true)
	s.CompletionPercent = percent(s, doneLeaves)
	return s
}

// percent weights by effort when any leaf carries an estimate;
// otherwise it falls back to done leaves over all leaves. DoneCount
// also counts done non-leaves, so it cannot serve as the numerator.
func percent(s Summary, doneLeaves int) int {
	if s.TotalEffort > 0 {
		return roundHalfAway(s.CompletedEffort * 100 / s.TotalEffort)
	}
	if s.LeafCount > 0 {
		return roundHalfAway(float64(doneLeaves) * 100 / float64(s.LeafCount))
	}
	return 0
}

func roundHalfAway(v float64) int {
	if v < 0 {
		return -roundHalfAway(-v)
	}
	return int(v + 0.5)
}
