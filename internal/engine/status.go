package engine

import (
	"fmt"

	"sprintline/internal/domain"
)

// ensureStatusTransition rejects work-item status pairs that are not
// edges of the board's lifecycle. Same-status calls are filtered out by
// the caller before reaching here.
func ensureStatusTransition(oldStatus, newStatus string) error {
	switch oldStatus {
	case domain.StatusBacklog:
		if newStatus == domain.StatusTodo || newStatus == domain.StatusCancelled {
			return nil
		}
	case domain.StatusTodo:
		if newStatus == domain.StatusInProgress || newStatus == domain.StatusBacklog || newStatus == domain.StatusCancelled {
			return nil
		}
	case domain.StatusInProgress:
		if newStatus == domain.StatusInReview || newStatus == domain.StatusTodo ||
			newStatus == domain.StatusDone || newStatus == domain.StatusCancelled {
			return nil
		}
	case domain.StatusInReview:
		if newStatus == domain.StatusInProgress || newStatus == domain.StatusDone || newStatus == domain.StatusCancelled {
			return nil
		}
	case domain.StatusDone:
		if newStatus == domain.StatusInReview || newStatus == domain.StatusCancelled {
			return nil
		}
	case domain.StatusCancelled:
		if newStatus == domain.StatusBacklog {
			return nil
		}
	}
	return &Error{
		Kind:    KindInvalidStatusTransition,
		Message: fmt.Sprintf("cannot move item from %s to %s", oldStatus, newStatus),
	}
}

func ensureSprintTransition(oldStatus, newStatus string) error {
	switch oldStatus {
	case domain.SprintPlanning:
		if newStatus == domain.SprintActive || newStatus == domain.SprintCancelled {
			return nil
		}
	case domain.SprintActive:
		// active→planning backs out a sprint started by mistake.
		if newStatus == domain.SprintCompleted || newStatus == domain.SprintCancelled || newStatus == domain.SprintPlanning {
			return nil
		}
	case domain.SprintCompleted:
		if newStatus == domain.SprintActive {
			return nil
		}
	}
	return &Error{
		Kind:    KindInvalidSprintTransition,
		Message: fmt.Sprintf("cannot move sprint from %s to %s", oldStatus, newStatus),
	}
}
