package schedule

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/karanmehta/agenda/internal/model"
	"github.com/karanmehta/agenda/internal/temporal"
)

const (
	defaultDurationHours = 2.0
	slotSearchStepMin    = 30
	maxSuggestions       = 3
	lookaheadDays        = 7
)

var (
	businessDayStart = temporal.NewTimeOfDay(9, 0, 0)
	businessDayEnd   = temporal.NewTimeOfDay(18, 0, 0)
)

// ConflictParams is the proposed window to check. StartTime and EndTime are
// optional; a proposal without a start time reports full-day co-occupancy
// only and skips overlap computation.
type ConflictParams struct {
	Date          string  `json:"scheduled_date"`
	StartTime     string  `json:"start_time,omitempty"`
	EndTime       string  `json:"end_time,omitempty"`
	DurationHours float64 `json:"duration_hours,omitempty"`
}

// ConflictItem is one same-day item, listed for visibility whether or not it
// overlaps the proposal.
type ConflictItem struct {
	TaskID        int64          `json:"task_id"`
	Title         string         `json:"title"`
	ScheduledDate *temporal.Date `json:"scheduled_date"`
	DueDate       *temporal.Date `json:"due_date"`
	StartTime     string         `json:"start_time,omitempty"`
	EndTime       string         `json:"end_time,omitempty"`
	Priority      model.Priority `json:"priority"`
	Status        model.Status   `json:"status"`
	Description   string         `json:"description,omitempty"`
	IsTimeOverlap bool           `json:"is_time_overlap"`

	start, end *temporal.TimeOfDay
}

// ConflictReport is the full answer: every same-day item, per-item overlap
// flags, and alternatives when the proposal collides.
type ConflictReport struct {
	HasConflicts   bool           `json:"has_conflicts"`
	HasTimeOverlap bool           `json:"has_time_overlap"`
	ConflictCount  int            `json:"conflict_count"`
	Conflicts      []ConflictItem `json:"conflicts"`
	SuggestedTimes []string       `json:"suggested_times"`
	SuggestedDates []string       `json:"suggested_dates"`
	Message        string         `json:"message"`
}

// CheckConflicts reports how a proposed window collides with the user's
// existing items on that day, using the half-open interval test: touching
// endpoints are not conflicts.
func (s *Service) CheckConflicts(ctx context.Context, userID int64, p ConflictParams) (*ConflictReport, error) {
	date, err := temporal.ParseDate(p.Date)
	if err != nil {
		return nil, err
	}

	duration := p.DurationHours
	if duration <= 0 {
		duration = defaultDurationHours
	}

	var proposedStart, proposedEnd *temporal.TimeOfDay
	if p.StartTime != "" {
		start, err := temporal.ParseTimeOfDay(p.StartTime)
		if err != nil {
			return nil, err
		}
		proposedStart = &start
	}
	if p.EndTime != "" {
		end, err := temporal.ParseTimeOfDay(p.EndTime)
		if err != nil {
			return nil, err
		}
		proposedEnd = &end
	} else if proposedStart != nil {
		end, _ := temporal.DeriveEnd(*proposedStart, duration)
		proposedEnd = &end
	}

	items, err := s.tasks.ListByScheduledDate(userID, date)
	if err != nil {
		return nil, fmt.Errorf("list same-day items: %w", err)
	}

	report := &ConflictReport{
		SuggestedTimes: []string{},
		SuggestedDates: []string{},
	}
	for _, item := range items {
		c := ConflictItem{
			TaskID:        item.TaskID,
			Title:         item.Title,
			ScheduledDate: item.ScheduledDate,
			DueDate:       item.DueDate,
			Priority:      item.Priority,
			Status:        item.Status,
			Description:   truncate(item.Description, 100),
			start:         item.StartTime,
			end:           item.EndTime,
		}
		if item.StartTime != nil {
			c.StartTime = item.StartTime.HHMM()
		}
		if item.EndTime != nil {
			c.EndTime = item.EndTime.HHMM()
		}
		// Untimed items never overlap but stay listed for visibility.
		if proposedStart != nil && proposedEnd != nil && item.Timed() {
			if temporal.Overlaps(*item.StartTime, *item.EndTime, *proposedStart, *proposedEnd) {
				c.IsTimeOverlap = true
				report.HasTimeOverlap = true
			}
		}
		report.Conflicts = append(report.Conflicts, c)
	}

	report.HasConflicts = len(report.Conflicts) > 0
	report.ConflictCount = len(report.Conflicts)

	if report.HasTimeOverlap && proposedStart != nil {
		report.SuggestedTimes = suggestTimes(duration, report.Conflicts)
	}
	if report.HasConflicts && len(report.SuggestedTimes) == 0 {
		dates, err := s.suggestDates(userID, date)
		if err != nil {
			return nil, err
		}
		report.SuggestedDates = dates
	}

	report.Message = conflictMessage(date, report)
	return report, nil
}

// suggestTimes scans the business window in fixed steps and collects up to
// three candidate starts whose window clears every timed same-day item.
func suggestTimes(durationHours float64, conflicts []ConflictItem) []string {
	suggested := []string{}
	for cur := businessDayStart; cur.Before(businessDayEnd) && len(suggested) < maxSuggestions; {
		slotEnd, _ := temporal.DeriveEnd(cur, durationHours)

		free := true
		for _, c := range conflicts {
			if c.start == nil || c.end == nil {
				continue
			}
			if temporal.Overlaps(cur, slotEnd, *c.start, *c.end) {
				free = false
				break
			}
		}
		if free {
			suggested = append(suggested, cur.HHMM())
		}

		next, rolled := temporal.DeriveEnd(cur, float64(slotSearchStepMin)/60)
		if rolled {
			break
		}
		cur = next
	}
	return suggested
}

// suggestDates is the coarse day-level fallback: the next days with nothing
// scheduled at all, regardless of clock windows.
func (s *Service) suggestDates(userID int64, date temporal.Date) ([]string, error) {
	suggested := []string{}
	for offset := 1; offset <= lookaheadDays && len(suggested) < maxSuggestions; offset++ {
		day := date.AddDays(offset)
		n, err := s.tasks.CountOnDate(userID, day)
		if err != nil {
			return nil, fmt.Errorf("count items on %s: %w", day, err)
		}
		if n == 0 {
			suggested = append(suggested, day.String())
		}
	}
	return suggested, nil
}

func conflictMessage(date temporal.Date, r *ConflictReport) string {
	if !r.HasConflicts {
		return "No conflicts found"
	}
	msg := fmt.Sprintf("Found %d task(s) on %s", r.ConflictCount, date)
	if r.HasTimeOverlap {
		overlaps := 0
		for _, c := range r.Conflicts {
			if c.IsTimeOverlap {
				overlaps++
			}
		}
		msg += fmt.Sprintf(" (%d time overlap(s))", overlaps)
	}
	return msg
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
