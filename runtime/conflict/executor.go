package conflict

import (
	"context"
	"fmt"
)

// Outcome is how an executed ResolutionPlan's actions fared.
type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomePartialSuccess Outcome = "partial_success"
	OutcomeFailure        Outcome = "failure"
)

// CalendarClient is the external collaborator a ResolutionPlan's actions
// are dispatched to. Implementations wrap whatever calendar API the
// deployment integrates with.
type CalendarClient interface {
	Apply(ctx context.Context, action Action) error
}

// ExecutionResult records what happened when a ResolutionPlan's actions
// were dispatched.
type ExecutionResult struct {
	ConflictID string
	Outcome    Outcome
	Applied    []Action
	Failed     []Action
	Errors     []error
}

// Executor dispatches approved ResolutionPlans to a CalendarClient and
// aggregates the result.
type Executor struct {
	client CalendarClient
}

// NewExecutor wraps client for use by Execute.
func NewExecutor(client CalendarClient) *Executor {
	return &Executor{client: client}
}

// Execute applies every action in plan in order, continuing past
// individual failures so a partial success is still reported accurately.
// A plan flagged UserApprovalRequired must not be passed to Execute until
// that approval has been obtained by the caller.
func (x *Executor) Execute(ctx context.Context, plan ResolutionPlan) ExecutionResult {
	result := ExecutionResult{ConflictID: plan.ConflictID}
	for _, action := range plan.Actions {
		if err := x.client.Apply(ctx, action); err != nil {
			result.Failed = append(result.Failed, action)
			result.Errors = append(result.Errors, fmt.Errorf("%s on %s: %w", action.Kind, action.MeetingID, err))
			continue
		}
		result.Applied = append(result.Applied, action)
	}

	switch {
	case len(result.Failed) == 0:
		result.Outcome = OutcomeSuccess
	case len(result.Applied) == 0:
		result.Outcome = OutcomeFailure
	default:
		result.Outcome = OutcomePartialSuccess
	}
	return result
}
