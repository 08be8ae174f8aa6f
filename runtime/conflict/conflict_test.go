package conflict

import (
	"context"
	"errors"
	"testing"
	"time"
)

func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 2, hour, minute, 0, 0, time.UTC)
}

// scenario 4: two meetings overlap by 30 minutes -> direct_overlap,
// severity medium, impact_score 0.5.
func TestDirectOverlapScenario(t *testing.T) {
	meetings := []Meeting{
		{ID: "m1", Title: "Planning", Start: at(10, 0), End: at(11, 0), Importance: 0.5},
		{ID: "m2", Title: "Standup", Start: at(10, 30), End: at(11, 30), Importance: 0.5},
	}

	conflicts := Detect(meetings, DefaultDetectorConfig())

	var overlaps []Conflict
	for _, c := range conflicts {
		if c.Type == TypeDirectOverlap {
			overlaps = append(overlaps, c)
		}
	}
	if len(overlaps) != 1 {
		t.Fatalf("want 1 direct_overlap conflict, got %d", len(overlaps))
	}
	c := overlaps[0]
	if c.Severity != SeverityMedium {
		t.Errorf("want severity medium, got %s", c.Severity)
	}
	if c.ImpactScore != 0.5 {
		t.Errorf("want impact_score 0.5, got %f", c.ImpactScore)
	}
}

// scenario 5: 7 meetings on one date totaling 9 hours -> overloaded_day,
// severity medium (7 <= 8 meetings, 9 <= 10 hours).
func TestOverloadedDayScenario(t *testing.T) {
	var meetings []Meeting
	start := at(9, 0)
	// 7 meetings, back-to-back, totaling exactly 9 hours (540 minutes).
	durations := []int{77, 77, 77, 77, 77, 77, 78}
	cursor := start
	for i, d := range durations {
		s := cursor
		e := s.Add(time.Duration(d) * time.Minute)
		meetings = append(meetings, Meeting{
			ID:         string(rune('a' + i)),
			Title:      "Sync",
			Start:      s,
			End:        e,
			Importance: 0.5,
		})
		cursor = e
	}

	conflicts := Detect(meetings, DefaultDetectorConfig())

	var overloaded *Conflict
	for i := range conflicts {
		if conflicts[i].Type == TypeOverloadedDay {
			overloaded = &conflicts[i]
			break
		}
	}
	if overloaded == nil {
		t.Fatalf("want an overloaded_day conflict, got none among %d conflicts", len(conflicts))
	}
	if overloaded.Severity != SeverityMedium {
		t.Errorf("want severity medium, got %s", overloaded.Severity)
	}
	if len(overloaded.MeetingIDs) != 7 {
		t.Errorf("want 7 meeting ids, got %d", len(overloaded.MeetingIDs))
	}
}

func TestInsufficientBufferSeverityBands(t *testing.T) {
	meetings := []Meeting{
		{ID: "a", Title: "A", Start: at(9, 0), End: at(9, 30)},
		{ID: "b", Title: "B", Start: at(9, 33), End: at(10, 0)},
	}
	conflicts := Detect(meetings, DefaultDetectorConfig())
	found := false
	for _, c := range conflicts {
		if c.Type == TypeInsufficientBuffer {
			found = true
			if c.Severity != SeverityHigh {
				t.Errorf("want severity high for a 3-minute gap, got %s", c.Severity)
			}
		}
	}
	if !found {
		t.Fatalf("want an insufficient_buffer conflict")
	}
}

func TestDoubleBookingIsCritical(t *testing.T) {
	meetings := []Meeting{
		{ID: "a", Title: "A", Start: at(10, 0), End: at(11, 0), Importance: 0.4},
		{ID: "b", Title: "B", Start: at(10, 0), End: at(10, 30), Importance: 0.9},
	}
	conflicts := Detect(meetings, DefaultDetectorConfig())
	var got *Conflict
	for i := range conflicts {
		if conflicts[i].Type == TypeDoubleBooking {
			got = &conflicts[i]
		}
	}
	if got == nil {
		t.Fatalf("want a double_booking conflict")
	}
	if got.Severity != SeverityCritical {
		t.Errorf("want severity critical, got %s", got.Severity)
	}
}

func TestConflictsSortedBySeverityThenImpact(t *testing.T) {
	meetings := []Meeting{
		{ID: "a", Title: "A", Start: at(10, 0), End: at(11, 0), Importance: 0.5},
		{ID: "b", Title: "B", Start: at(10, 45), End: at(11, 45), Importance: 0.5}, // 15min overlap, medium
		{ID: "c", Title: "C", Start: at(13, 0), End: at(14, 30), Importance: 0.5},
		{ID: "d", Title: "D", Start: at(13, 0), End: at(14, 0), Importance: 0.5}, // same start, double booking, critical
	}
	conflicts := Detect(meetings, DefaultDetectorConfig())
	if len(conflicts) < 2 {
		t.Fatalf("want multiple conflicts, got %d", len(conflicts))
	}
	for i := 1; i < len(conflicts); i++ {
		prevRank := severityRank[conflicts[i-1].Severity]
		curRank := severityRank[conflicts[i].Severity]
		if curRank < prevRank {
			t.Fatalf("conflicts not sorted by severity descending at index %d: %v", i, conflicts)
		}
	}
}

func TestEngineDecideGatesAutoDeclineBehindApproval(t *testing.T) {
	meetings := []Meeting{
		{ID: "a", Title: "A", Start: at(10, 0), End: at(11, 0), Importance: 0.2},
		{ID: "b", Title: "B", Start: at(10, 0), End: at(10, 30), Importance: 0.9},
	}
	conflicts := Detect(meetings, DefaultDetectorConfig())
	eng := NewEngine(meetings)

	var plan ResolutionPlan
	var ok bool
	for _, c := range conflicts {
		if c.Type == TypeDoubleBooking {
			plan, ok = eng.Decide(c)
		}
	}
	if !ok {
		t.Fatalf("want a plan for the double_booking conflict")
	}
	if plan.Strategy == StrategyAutoDecline || plan.Strategy == StrategyAutoReschedule {
		if !plan.UserApprovalRequired {
			t.Errorf("critical severity + %s should require approval", plan.Strategy)
		}
	}
	if len(plan.Actions) == 0 {
		t.Errorf("want at least one action in the plan")
	}
}

type fakeCalendar struct {
	failOn map[string]bool
}

func (f *fakeCalendar) Apply(ctx context.Context, action Action) error {
	if f.failOn[action.MeetingID] {
		return errors.New("calendar API rejected the change")
	}
	return nil
}

func TestExecutorAggregatesPartialSuccess(t *testing.T) {
	plan := ResolutionPlan{
		ConflictID: "c1",
		Strategy:   StrategyOptimizeSchedule,
		Actions: []Action{
			{Kind: "optimize", MeetingID: "a"},
			{Kind: "optimize", MeetingID: "b"},
		},
	}
	exec := NewExecutor(&fakeCalendar{failOn: map[string]bool{"b": true}})
	result := exec.Execute(context.Background(), plan)

	if result.Outcome != OutcomePartialSuccess {
		t.Fatalf("want partial_success, got %s", result.Outcome)
	}
	if len(result.Applied) != 1 || len(result.Failed) != 1 {
		t.Fatalf("want 1 applied and 1 failed, got applied=%d failed=%d", len(result.Applied), len(result.Failed))
	}
}

func TestExecutorAllSucceed(t *testing.T) {
	plan := ResolutionPlan{
		ConflictID: "c2",
		Actions:    []Action{{Kind: "decline", MeetingID: "x"}},
	}
	exec := NewExecutor(&fakeCalendar{})
	result := exec.Execute(context.Background(), plan)
	if result.Outcome != OutcomeSuccess {
		t.Fatalf("want success, got %s", result.Outcome)
	}
}
