// Package conflict implements the Conflict Engine: a fixed catalog of
// calendar-conflict detectors over a time-ordered meeting set, strategy
// scoring that blends a base rate with meeting-importance adjustments,
// and an executor that dispatches approved resolution plans to an
// external calendar collaborator.
//
// Grounded on the original Python conflict_resolution.py detector/
// strategy catalog, restructured in the teacher's policy-engine idiom
// (features/policy/basic.Engine): small pure functions composed behind a
// single Decide-style entry point.
package conflict

import (
	"strings"
	"time"
)

// Status is a Meeting's lifecycle state.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// Decision is the AI's disposition toward a Meeting.
type Decision string

const (
	DecisionAccept        Decision = "accept"
	DecisionDecline       Decision = "decline"
	DecisionReschedule    Decision = "reschedule"
	DecisionDelegate      Decision = "delegate"
	DecisionDelegateToAI  Decision = "delegate_to_ai"
	DecisionRequestInfo   Decision = "request_info"
)

// Meeting is the calendar-shaped input the Conflict Engine analyzes.
type Meeting struct {
	ID                 string
	Title              string
	Description        string
	Start              time.Time
	End                time.Time
	Timezone           string
	Attendees          []string
	Organizer          string
	Location           string
	MeetingLink        string
	Status             Status
	AIDecision         *Decision
	DecisionConfidence float64
	DecisionReasoning  string
	Importance         float64 // [0,1]
	ConflictScore      float64 // [0,1]
	ProductivityImpact float64 // [-1,1]
}

// DurationMinutes is End-Start in minutes.
func (m Meeting) DurationMinutes() float64 { return m.End.Sub(m.Start).Minutes() }

func normalizeLocation(loc string) string {
	loc = strings.ToLower(strings.TrimSpace(loc))
	if loc == "" {
		return "virtual"
	}
	return loc
}
