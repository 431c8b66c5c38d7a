package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/karanmehta/agenda/internal/model"
	"github.com/karanmehta/agenda/internal/temporal"
)

// AppliedChange is one accepted placement after validation.
type AppliedChange struct {
	TaskID    int64  `json:"task_id"`
	Title     string `json:"title"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Reason    string `json:"reason,omitempty"`
}

// ReplanResult reports what the re-planner did. Generated is false whenever
// the planner produced nothing usable; the day is then left exactly as it was.
type ReplanResult struct {
	Generated      bool            `json:"generated"`
	AppliedChanges []AppliedChange `json:"applied_changes"`
	DroppedCount   int             `json:"dropped_count"`
	DroppedReasons []string        `json:"dropped_reasons,omitempty"`
	Message        string          `json:"message"`
}

type window struct {
	start, end temporal.TimeOfDay
}

// ReplanToday rebuilds the user's current day around its fixed points.
// Meetings never move, timed or not; everything else is handed to the
// planner, and each returned placement is validated independently before
// commit. A placement that references an unknown or fixed item, carries a
// malformed window, or collides with an already-occupied slot is dropped on
// its own; the rest still apply.
func (s *Service) ReplanToday(ctx context.Context, userID int64) (*ReplanResult, error) {
	today := temporal.DateOf(s.now())

	items, err := s.tasks.ListForToday(userID, today)
	if err != nil {
		return nil, fmt.Errorf("list today's items: %w", err)
	}
	if len(items) == 0 {
		return &ReplanResult{
			Generated:      false,
			AppliedChanges: []AppliedChange{},
			Message:        "Nothing to plan: no open items for today.",
		}, nil
	}

	flexible := make(map[int64]model.ScheduleItem)
	var occupied []window
	for _, item := range items {
		// Status alone decides fixedness. An untimed meeting is still a
		// meeting; it pins no window but must never be rescheduled as a task.
		if item.Status == model.StatusMeeting {
			if item.Timed() {
				occupied = append(occupied, window{start: *item.StartTime, end: *item.EndTime})
			}
			continue
		}
		flexible[item.TaskID] = item
	}

	placements, err := s.planner.PlanDay(ctx, today, items)
	if err != nil {
		// Planner failures never touch the day. The error is surfaced in the
		// result so the caller can tell the user, not propagated.
		s.logger.Warn("day planner failed", "user_id", userID, "error", err)
		return &ReplanResult{
			Generated:      false,
			AppliedChanges: []AppliedChange{},
			Message:        "Could not generate a schedule; your day is unchanged.",
		}, nil
	}

	result := &ReplanResult{AppliedChanges: []AppliedChange{}}
	for _, p := range placements {
		item, ok := flexible[p.TaskID]
		if !ok {
			result.drop(fmt.Sprintf("task %d: not a movable item", p.TaskID))
			continue
		}

		start, err := parseStrictClock(p.StartTime)
		if err != nil {
			result.drop(fmt.Sprintf("task %d: bad start time %q", p.TaskID, p.StartTime))
			continue
		}
		end, err := parseStrictClock(p.EndTime)
		if err != nil {
			result.drop(fmt.Sprintf("task %d: bad end time %q", p.TaskID, p.EndTime))
			continue
		}
		if !start.Before(end) {
			result.drop(fmt.Sprintf("task %d: end %s not after start %s", p.TaskID, end, start))
			continue
		}

		collides := false
		for _, w := range occupied {
			if temporal.Overlaps(start, end, w.start, w.end) {
				collides = true
				break
			}
		}
		if collides {
			result.drop(fmt.Sprintf("task %d: window %s-%s overlaps an occupied slot", p.TaskID, start.HHMM(), end.HHMM()))
			continue
		}

		// Committed placements become occupied for the ones still pending,
		// so a self-overlapping proposal cannot slip through.
		if err := s.tasks.UpdateSchedule(p.TaskID, start, end, today, model.StatusTask); err != nil {
			return nil, fmt.Errorf("apply placement for task %d: %w", p.TaskID, err)
		}
		occupied = append(occupied, window{start: start, end: end})
		result.AppliedChanges = append(result.AppliedChanges, AppliedChange{
			TaskID:    p.TaskID,
			Title:     item.Title,
			StartTime: start.String(),
			EndTime:   end.String(),
			Reason:    p.Reason,
		})
	}

	result.Generated = true
	result.Message = fmt.Sprintf("Rescheduled %d item(s) for today.", len(result.AppliedChanges))
	if result.DroppedCount > 0 {
		result.Message += fmt.Sprintf(" Skipped %d proposed placement(s).", result.DroppedCount)
	}
	return result, nil
}

func (r *ReplanResult) drop(reason string) {
	r.DroppedCount++
	r.DroppedReasons = append(r.DroppedReasons, reason)
}

// parseStrictClock accepts only HH:MM:SS. The planner contract demands the
// exact format; anything looser is treated as a violation, not normalized.
func parseStrictClock(s string) (temporal.TimeOfDay, error) {
	t, err := time.Parse("15:04:05", s)
	if err != nil {
		return temporal.TimeOfDay{}, err
	}
	return temporal.NewTimeOfDay(t.Hour(), t.Minute(), t.Second()), nil
}
