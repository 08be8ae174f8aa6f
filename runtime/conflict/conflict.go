package conflict

// Type is one of the nine closed conflict categories.
type Type string

const (
	TypeDirectOverlap          Type = "direct_overlap"
	TypeInsufficientBuffer     Type = "insufficient_buffer"
	TypeFocusTimeConflict      Type = "focus_time_conflict"
	TypeCommuteTimeConflict    Type = "commute_time_conflict"
	TypeOverloadedDay          Type = "overloaded_day"
	TypeDoubleBooking          Type = "double_booking"
	TypePreparationTimeConflict Type = "preparation_time_conflict"
	TypeLunchConflict          Type = "lunch_conflict"
	TypeTimezoneConflict       Type = "timezone_conflict"
)

// Severity is a conflict's urgency class.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityCritical: 0,
	SeverityHigh:     1,
	SeverityMedium:   2,
	SeverityLow:      3,
}

// Strategy is a resolution approach the engine may select.
type Strategy string

const (
	StrategyAutoReschedule     Strategy = "auto_reschedule"
	StrategySuggestAlternative Strategy = "suggest_alternative"
	StrategyAutoDecline        Strategy = "auto_decline"
	StrategyCreateBuffer       Strategy = "create_buffer"
	StrategySplitMeeting       Strategy = "split_meeting"
	StrategyDelegateMeeting    Strategy = "delegate_meeting"
	StrategyRequestClarification Strategy = "request_clarification"
	StrategyOptimizeSchedule   Strategy = "optimize_schedule"
)

// Conflict is a detected calendar anomaly.
type Conflict struct {
	ID                   string
	Type                 Type
	Severity             Severity
	MeetingIDs           []string
	Description          string
	ImpactScore          float64
	ResolutionStrategies []Strategy
	Metadata             map[string]any
}

// Action is one step of a ResolutionPlan, dispatched to the external
// calendar collaborator.
type Action struct {
	Kind       string
	MeetingID  string
	Parameters map[string]any
}

// ResolutionPlan is an ordered sequence of calendar actions intended to
// clear a Conflict.
type ResolutionPlan struct {
	ConflictID            string
	Strategy              Strategy
	Actions               []Action
	EstimatedSuccessRate  float64
	EstimatedImpact       float64
	RequiredPermissions   []string
	UserApprovalRequired  bool
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
