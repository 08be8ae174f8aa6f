package conflict

import "sort"

// baseSuccessRate is each strategy's historical success rate before any
// importance/severity adjustment, taken from the original detector's
// resolution-strategy catalog.
var baseSuccessRate = map[Strategy]float64{
	StrategyAutoReschedule:       0.72,
	StrategySuggestAlternative:   0.85,
	StrategyAutoDecline:         0.95,
	StrategyCreateBuffer:         0.90,
	StrategySplitMeeting:         0.55,
	StrategyDelegateMeeting:      0.60,
	StrategyRequestClarification: 0.80,
	StrategyOptimizeSchedule:     0.65,
}

// strategyPermissions lists the calendar permissions a strategy's actions
// require, so a caller can check them before building a plan.
var strategyPermissions = map[Strategy][]string{
	StrategyAutoReschedule:       {"calendar.write"},
	StrategySuggestAlternative:   {"calendar.read"},
	StrategyAutoDecline:         {"calendar.write"},
	StrategyCreateBuffer:         {"calendar.write"},
	StrategySplitMeeting:         {"calendar.write"},
	StrategyDelegateMeeting:      {"calendar.write", "delegation.write"},
	StrategyRequestClarification: {"messaging.write"},
	StrategyOptimizeSchedule:     {"calendar.write"},
}

// Engine scores a Conflict's candidate strategies and builds the
// ResolutionPlan for the highest-scoring one. Grounded on the teacher's
// features/policy/basic.Engine: precomputed tables and small pure helper
// functions behind a single Decide entry point.
type Engine struct {
	meetingByID map[string]Meeting
}

// NewEngine indexes meetings by id for use while building resolution
// actions.
func NewEngine(meetings []Meeting) *Engine {
	idx := make(map[string]Meeting, len(meetings))
	for _, m := range meetings {
		idx[m.ID] = m
	}
	return &Engine{meetingByID: idx}
}

// Decide picks the best-scoring strategy for c and returns the resulting
// ResolutionPlan. Returns false if c names no candidate strategies.
func (e *Engine) Decide(c Conflict) (ResolutionPlan, bool) {
	if len(c.ResolutionStrategies) == 0 {
		return ResolutionPlan{}, false
	}

	avgImportance := e.averageImportance(c.MeetingIDs)

	best := c.ResolutionStrategies[0]
	bestScore := -1.0
	for _, s := range c.ResolutionStrategies {
		score := scoreStrategy(s, c.Severity, avgImportance)
		if score > bestScore {
			bestScore = score
			best = s
		}
	}

	plan := ResolutionPlan{
		ConflictID:           c.ID,
		Strategy:             best,
		Actions:              e.buildActions(best, c),
		EstimatedSuccessRate: bestScore,
		EstimatedImpact:      c.ImpactScore,
		RequiredPermissions:  strategyPermissions[best],
		UserApprovalRequired: requiresApproval(best, c.Severity),
	}
	return plan, true
}

// DecideAll runs Decide over every conflict, preserving input order.
func (e *Engine) DecideAll(conflicts []Conflict) []ResolutionPlan {
	plans := make([]ResolutionPlan, 0, len(conflicts))
	for _, c := range conflicts {
		if p, ok := e.Decide(c); ok {
			plans = append(plans, p)
		}
	}
	return plans
}

func (e *Engine) averageImportance(meetingIDs []string) float64 {
	if len(meetingIDs) == 0 {
		return 0.5
	}
	var sum float64
	var n int
	for _, id := range meetingIDs {
		if m, ok := e.meetingByID[id]; ok {
			sum += m.Importance
			n++
		}
	}
	if n == 0 {
		return 0.5
	}
	return sum / float64(n)
}

// scoreStrategy blends a strategy's base success rate with a penalty for
// high-importance meetings (declining or rescheduling an important meeting
// is riskier) and a bonus for high-severity conflicts, where acting
// decisively is more likely to actually resolve the conflict.
func scoreStrategy(s Strategy, sev Severity, avgImportance float64) float64 {
	score := baseSuccessRate[s]

	switch s {
	case StrategyAutoDecline, StrategyDelegateMeeting:
		score -= avgImportance * 0.3
	case StrategyAutoReschedule, StrategyCreateBuffer:
		score -= avgImportance * 0.1
	}

	switch sev {
	case SeverityCritical:
		score += 0.05
	case SeverityHigh:
		score += 0.02
	}

	return clamp01(score)
}

// requiresApproval flags auto_reschedule and auto_decline for
// high-or-critical severity conflicts: these strategies mutate the
// calendar directly, so acting on a high-stakes conflict without a human
// sign-off is too risky to automate.
func requiresApproval(s Strategy, sev Severity) bool {
	if s != StrategyAutoReschedule && s != StrategyAutoDecline {
		return false
	}
	return severityRank[sev] <= severityRank[SeverityHigh]
}

func (e *Engine) buildActions(s Strategy, c Conflict) []Action {
	switch s {
	case StrategyAutoReschedule, StrategySuggestAlternative:
		actions := make([]Action, 0, len(c.MeetingIDs))
		for _, id := range c.MeetingIDs {
			actions = append(actions, Action{Kind: "propose_reschedule", MeetingID: id, Parameters: map[string]any{"reason": c.Description}})
		}
		return actions
	case StrategyAutoDecline:
		target := lowestImportanceMeeting(e.meetingByID, c.MeetingIDs)
		if target == "" {
			return nil
		}
		return []Action{{Kind: "decline", MeetingID: target, Parameters: map[string]any{"reason": c.Description}}}
	case StrategyCreateBuffer:
		if len(c.MeetingIDs) == 0 {
			return nil
		}
		return []Action{{Kind: "insert_buffer", MeetingID: c.MeetingIDs[len(c.MeetingIDs)-1], Parameters: map[string]any{"minutes": 15}}}
	case StrategySplitMeeting:
		if len(c.MeetingIDs) == 0 {
			return nil
		}
		return []Action{{Kind: "split", MeetingID: c.MeetingIDs[0]}}
	case StrategyDelegateMeeting:
		target := lowestImportanceMeeting(e.meetingByID, c.MeetingIDs)
		if target == "" {
			return nil
		}
		return []Action{{Kind: "delegate", MeetingID: target}}
	case StrategyRequestClarification:
		if len(c.MeetingIDs) == 0 {
			return nil
		}
		return []Action{{Kind: "request_info", MeetingID: c.MeetingIDs[0], Parameters: map[string]any{"reason": c.Description}}}
	case StrategyOptimizeSchedule:
		actions := make([]Action, 0, len(c.MeetingIDs))
		for _, id := range c.MeetingIDs {
			actions = append(actions, Action{Kind: "optimize", MeetingID: id})
		}
		return actions
	default:
		return nil
	}
}

func lowestImportanceMeeting(byID map[string]Meeting, ids []string) string {
	best := ""
	bestImportance := 2.0
	ordered := append([]string(nil), ids...)
	sort.Strings(ordered)
	for _, id := range ordered {
		m, ok := byID[id]
		if !ok {
			continue
		}
		if m.Importance < bestImportance {
			bestImportance = m.Importance
			best = id
		}
	}
	return best
}
