package conflict

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// FocusBlock is a local time-of-day window protected against low-importance
// meetings.
type FocusBlock struct {
	StartHour, EndHour int
}

// DetectorConfig tunes the fixed detector catalog's thresholds. The zero
// value has no focus blocks and zero thresholds; DefaultDetectorConfig
// returns the documented defaults.
type DetectorConfig struct {
	FocusBlocks             []FocusBlock
	OverloadedDayMaxMeetings int
	OverloadedDayMaxHours    float64
	HighPrepTitlePatterns    []string
	SameCampusTravelMinutes  float64
	CrossLocationTravelMinutes float64
}

// DefaultDetectorConfig mirrors the specification's §4.7 defaults.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		FocusBlocks: []FocusBlock{
			{StartHour: 9, EndHour: 11},
			{StartHour: 14, EndHour: 16},
		},
		OverloadedDayMaxMeetings:   6,
		OverloadedDayMaxHours:      8,
		HighPrepTitlePatterns:      []string{"presentation", "demo", "pitch", "interview", "review"},
		SameCampusTravelMinutes:    10,
		CrossLocationTravelMinutes: 30,
	}
}

// Detect runs every detector in fixed sequence over meetings (assumed
// already time-ordered by the caller) and returns the combined output
// sorted by (severity descending, impact_score descending).
func Detect(meetings []Meeting, cfg DetectorConfig) []Conflict {
	var out []Conflict
	out = append(out, detectDirectOverlaps(meetings)...)
	out = append(out, detectDoubleBookings(meetings)...)
	out = append(out, detectInsufficientBuffers(meetings)...)
	out = append(out, detectFocusTimeConflicts(meetings, cfg)...)
	out = append(out, detectOverloadedDays(meetings, cfg)...)
	out = append(out, detectPreparationConflicts(meetings, cfg)...)
	out = append(out, detectCommuteConflicts(meetings, cfg)...)
	out = append(out, detectLunchConflicts(meetings)...)
	out = append(out, detectTimezoneConflicts(meetings)...)

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Severity != out[j].Severity {
			return severityRank[out[i].Severity] < severityRank[out[j].Severity]
		}
		return out[i].ImpactScore > out[j].ImpactScore
	})
	return out
}

func overlapMinutes(a, b Meeting) float64 {
	start := a.Start
	if b.Start.After(start) {
		start = b.Start
	}
	end := a.End
	if b.End.Before(end) {
		end = b.End
	}
	if end.Before(start) || end.Equal(start) {
		return 0
	}
	return end.Sub(start).Minutes()
}

func overlapSeverity(minutes float64) Severity {
	switch {
	case minutes >= 60:
		return SeverityCritical
	case minutes > 30:
		return SeverityHigh
	case minutes >= 15:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// 1. Direct overlap.
func detectDirectOverlaps(meetings []Meeting) []Conflict {
	var out []Conflict
	for i := 0; i < len(meetings); i++ {
		for j := i + 1; j < len(meetings); j++ {
			a, b := meetings[i], meetings[j]
			minutes := overlapMinutes(a, b)
			if minutes <= 0 {
				continue
			}
			out = append(out, Conflict{
				ID:          fmt.Sprintf("overlap-%s-%s", a.ID, b.ID),
				Type:        TypeDirectOverlap,
				Severity:    overlapSeverity(minutes),
				MeetingIDs:  []string{a.ID, b.ID},
				Description: fmt.Sprintf("%q overlaps %q by %.0f minutes", a.Title, b.Title, minutes),
				ImpactScore: clamp01(minutes / 60),
				ResolutionStrategies: []Strategy{StrategyAutoReschedule, StrategySuggestAlternative, StrategyAutoDecline},
				Metadata:    map[string]any{"overlap_minutes": minutes},
			})
		}
	}
	return out
}

// 9. Double booking — identical start time, a stricter case of direct
// overlap.
func detectDoubleBookings(meetings []Meeting) []Conflict {
	var out []Conflict
	for i := 0; i < len(meetings); i++ {
		for j := i + 1; j < len(meetings); j++ {
			a, b := meetings[i], meetings[j]
			if !a.Start.Equal(b.Start) {
				continue
			}
			minutes := overlapMinutes(a, b)
			out = append(out, Conflict{
				ID:          fmt.Sprintf("double-%s-%s", a.ID, b.ID),
				Type:        TypeDoubleBooking,
				Severity:    SeverityCritical,
				MeetingIDs:  []string{a.ID, b.ID},
				Description: fmt.Sprintf("%q and %q start at the same time", a.Title, b.Title),
				ImpactScore: clamp01(0.8 + minutes/300),
				ResolutionStrategies: []Strategy{StrategyAutoDecline, StrategyAutoReschedule},
				Metadata:    map[string]any{"overlap_minutes": minutes},
			})
		}
	}
	return out
}

// 2. Insufficient buffer.
func detectInsufficientBuffers(meetings []Meeting) []Conflict {
	ordered := sortedByStart(meetings)
	var out []Conflict
	for i := 0; i+1 < len(ordered); i++ {
		a, b := ordered[i], ordered[i+1]
		gap := b.Start.Sub(a.End).Minutes()
		if gap <= 0 || gap >= 15 {
			continue
		}
		var sev Severity
		switch {
		case gap <= 5:
			sev = SeverityHigh
		case gap <= 10:
			sev = SeverityMedium
		default:
			sev = SeverityLow
		}
		out = append(out, Conflict{
			ID:          fmt.Sprintf("buffer-%s-%s", a.ID, b.ID),
			Type:        TypeInsufficientBuffer,
			Severity:    sev,
			MeetingIDs:  []string{a.ID, b.ID},
			Description: fmt.Sprintf("only %.0f minutes between %q and %q", gap, a.Title, b.Title),
			ImpactScore: clamp01(1 - gap/15),
			ResolutionStrategies: []Strategy{StrategyCreateBuffer, StrategySuggestAlternative},
			Metadata:    map[string]any{"gap_minutes": gap},
		})
	}
	return out
}

// 3. Focus-time conflict.
func detectFocusTimeConflicts(meetings []Meeting, cfg DetectorConfig) []Conflict {
	var out []Conflict
	for _, m := range meetings {
		if m.Importance >= 0.7 {
			continue
		}
		hour := m.Start.Hour()
		inBlock := false
		for _, fb := range cfg.FocusBlocks {
			if hour >= fb.StartHour && hour < fb.EndHour {
				inBlock = true
				break
			}
		}
		if !inBlock {
			continue
		}
		sev := SeverityLow
		if m.Importance < 0.3 {
			sev = SeverityMedium
		}
		out = append(out, Conflict{
			ID:          "focus-" + m.ID,
			Type:        TypeFocusTimeConflict,
			Severity:    sev,
			MeetingIDs:  []string{m.ID},
			Description: fmt.Sprintf("%q (importance %.2f) is scheduled inside a protected focus block", m.Title, m.Importance),
			ImpactScore: clamp01(1 - m.Importance),
			ResolutionStrategies: []Strategy{StrategySuggestAlternative, StrategyDelegateMeeting},
			Metadata:    map[string]any{"importance": m.Importance},
		})
	}
	return out
}

// 4. Overloaded day.
func detectOverloadedDays(meetings []Meeting, cfg DetectorConfig) []Conflict {
	byDate := map[string][]Meeting{}
	for _, m := range meetings {
		key := m.Start.Format("2006-01-02")
		byDate[key] = append(byDate[key], m)
	}
	var out []Conflict
	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	for _, date := range dates {
		ms := byDate[date]
		count := len(ms)
		var totalHours float64
		ids := make([]string, 0, count)
		for _, m := range ms {
			totalHours += m.DurationMinutes() / 60
			ids = append(ids, m.ID)
		}
		if count <= cfg.OverloadedDayMaxMeetings && totalHours <= cfg.OverloadedDayMaxHours {
			continue
		}
		sev := SeverityMedium
		if count > cfg.OverloadedDayMaxMeetings+2 || totalHours > cfg.OverloadedDayMaxHours+2 {
			sev = SeverityHigh
		}
		out = append(out, Conflict{
			ID:          "overloaded-" + date,
			Type:        TypeOverloadedDay,
			Severity:    sev,
			MeetingIDs:  ids,
			Description: fmt.Sprintf("%s holds %d meetings totaling %.1f hours", date, count, totalHours),
			ImpactScore: clamp01((float64(count) / float64(cfg.OverloadedDayMaxMeetings)) * 1.2),
			ResolutionStrategies: []Strategy{StrategyOptimizeSchedule, StrategySuggestAlternative},
			Metadata:    map[string]any{"meeting_count": count, "total_hours": totalHours},
		})
	}
	return out
}

// 5. Preparation-time conflict.
func detectPreparationConflicts(meetings []Meeting, cfg DetectorConfig) []Conflict {
	ordered := sortedByStart(meetings)
	var out []Conflict
	for i, m := range ordered {
		if !titleNeedsPrep(m.Title, cfg.HighPrepTitlePatterns) {
			continue
		}
		var available float64 = 1e9
		if i > 0 {
			available = m.Start.Sub(ordered[i-1].End).Minutes()
		}
		if available >= 30 {
			continue
		}
		sev := SeverityLow
		switch {
		case available < 10:
			sev = SeverityHigh
		case available < 20:
			sev = SeverityMedium
		}
		out = append(out, Conflict{
			ID:          "prep-" + m.ID,
			Type:        TypePreparationTimeConflict,
			Severity:    sev,
			MeetingIDs:  []string{m.ID},
			Description: fmt.Sprintf("only %.0f minutes to prepare for %q", available, m.Title),
			ImpactScore: clamp01(1 - available/30),
			ResolutionStrategies: []Strategy{StrategyCreateBuffer, StrategySuggestAlternative},
			Metadata:    map[string]any{"available_minutes": available},
		})
	}
	return out
}

func titleNeedsPrep(title string, patterns []string) bool {
	lower := strings.ToLower(title)
	for _, p := range patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// 6. Commute conflict.
func detectCommuteConflicts(meetings []Meeting, cfg DetectorConfig) []Conflict {
	ordered := sortedByStart(meetings)
	var out []Conflict
	for i := 0; i+1 < len(ordered); i++ {
		a, b := ordered[i], ordered[i+1]
		locA, locB := normalizeLocation(a.Location), normalizeLocation(b.Location)
		if locA == locB {
			continue
		}
		travel := cfg.CrossLocationTravelMinutes
		if locA == "virtual" || locB == "virtual" {
			travel = 0
		}
		gap := b.Start.Sub(a.End).Minutes()
		if gap >= travel {
			continue
		}
		out = append(out, Conflict{
			ID:          fmt.Sprintf("commute-%s-%s", a.ID, b.ID),
			Type:        TypeCommuteTimeConflict,
			Severity:    SeverityMedium,
			MeetingIDs:  []string{a.ID, b.ID},
			Description: fmt.Sprintf("only %.0f minutes to travel from %q to %q", gap, locA, locB),
			ImpactScore: clamp01(1 - gap/travel),
			ResolutionStrategies: []Strategy{StrategyCreateBuffer, StrategySuggestAlternative},
			Metadata:    map[string]any{"gap_minutes": gap, "required_travel_minutes": travel},
		})
	}
	return out
}

// 7. Lunch conflict.
func detectLunchConflicts(meetings []Meeting) []Conflict {
	var out []Conflict
	for _, m := range meetings {
		if strings.Contains(strings.ToLower(m.Title), "lunch") {
			continue
		}
		lunchStart := time.Date(m.Start.Year(), m.Start.Month(), m.Start.Day(), 12, 0, 0, 0, m.Start.Location())
		lunchEnd := lunchStart.Add(time.Hour)
		if m.Start.Before(lunchEnd) && m.End.After(lunchStart) {
			out = append(out, Conflict{
				ID:          "lunch-" + m.ID,
				Type:        TypeLunchConflict,
				Severity:    SeverityLow,
				MeetingIDs:  []string{m.ID},
				Description: fmt.Sprintf("%q overlaps the lunch window", m.Title),
				ImpactScore: 0.2,
				ResolutionStrategies: []Strategy{StrategySuggestAlternative},
			})
		}
	}
	return out
}

// 8. Timezone conflict.
func detectTimezoneConflicts(meetings []Meeting) []Conflict {
	var out []Conflict
	for _, m := range meetings {
		hour := m.Start.Hour()
		if hour >= 8 && hour < 18 {
			continue
		}
		if !hasExternalAttendee(m) {
			continue
		}
		sev := SeverityMedium
		if hour < 7 || hour > 20 {
			sev = SeverityHigh
		}
		out = append(out, Conflict{
			ID:          "tz-" + m.ID,
			Type:        TypeTimezoneConflict,
			Severity:    sev,
			MeetingIDs:  []string{m.ID},
			Description: fmt.Sprintf("%q starts at %02d:00 local with an external attendee", m.Title, hour),
			ImpactScore: clamp01(0.5),
			ResolutionStrategies: []Strategy{StrategySuggestAlternative, StrategyRequestClarification},
		})
	}
	return out
}

func hasExternalAttendee(m Meeting) bool {
	organizerDomain := domainOf(m.Organizer)
	for _, a := range m.Attendees {
		if domainOf(a) != organizerDomain {
			return true
		}
	}
	return false
}

func domainOf(email string) string {
	parts := strings.SplitN(email, "@", 2)
	if len(parts) != 2 {
		return email
	}
	return parts[1]
}

func sortedByStart(meetings []Meeting) []Meeting {
	out := make([]Meeting, len(meetings))
	copy(out, meetings)
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}
