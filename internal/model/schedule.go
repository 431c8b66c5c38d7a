package model

import (
	"time"

	"github.com/karanmehta/agenda/internal/temporal"
)

// Status is the lifecycle bucket of a ScheduleItem. It governs display and
// re-planning eligibility, not calendar sync.
type Status string

const (
	StatusTodo      Status = "todo"
	StatusTask      Status = "task"
	StatusMeeting   Status = "meeting"
	StatusCompleted Status = "completed"
)

// Priority of a ScheduleItem.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ValidPriority reports whether p is one of the known priority levels.
func ValidPriority(p Priority) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// EventType distinguishes task-backed events from meetings.
type EventType string

const (
	EventTypeTask    EventType = "task"
	EventTypeMeeting EventType = "meeting"
)

// LinkPlatform identifies where a meeting link came from.
type LinkPlatform string

const (
	PlatformCustom     LinkPlatform = "custom"
	PlatformGoogleMeet LinkPlatform = "google_meet"
)

// ScheduleItem is a task, todo, or meeting record owned by a user. StartTime
// and EndTime are nil for unscheduled, all-day, or todo-only items. When both
// are present and EndTime is numerically earlier than StartTime, the window
// spans midnight and ends on ScheduledDate + 1 day.
type ScheduleItem struct {
	TaskID        int64               `json:"task_id"`
	UserID        int64               `json:"user_id"`
	Title         string              `json:"title"`
	Description   string              `json:"description"`
	Status        Status              `json:"status"`
	Priority      Priority            `json:"priority"`
	Category      string              `json:"category"`
	DueDate       *temporal.Date      `json:"due_date"`
	ScheduledDate *temporal.Date      `json:"scheduled_date"`
	StartTime     *temporal.TimeOfDay `json:"start_time"`
	EndTime       *temporal.TimeOfDay `json:"end_time"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// Timed reports whether the item occupies a concrete clock window.
func (s *ScheduleItem) Timed() bool {
	return s.StartTime != nil && s.EndTime != nil
}

// CalendarEvent is the scheduling unit mirrored to the external calendar.
// GoogleEventRef transitions from empty to set at most once per successful
// external push and is never cleared by the engine. A CalendarEvent is never
// marked completed; that concept belongs to the backing ScheduleItem.
type CalendarEvent struct {
	EventID          int64               `json:"event_id"`
	TaskID           *int64              `json:"task_id"`
	UserID           int64               `json:"user_id"`
	StartTime        *temporal.TimeOfDay `json:"start_time"`
	EndTime          *temporal.TimeOfDay `json:"end_time"`
	DueDate          *temporal.Date      `json:"due_date"`
	ScheduledDate    *temporal.Date      `json:"scheduled_date"`
	EventDesc        string              `json:"event_desc"`
	EventType        EventType           `json:"event_type"`
	GoogleEventRef   string              `json:"google_event_ref,omitempty"`
	IsCalendarSynced bool                `json:"is_calendar_synced"`
	CreatedAt        time.Time           `json:"created_at"`
}

// MeetingLink is the one-to-one conference link for a CalendarEvent.
type MeetingLink struct {
	LinkID      int64        `json:"link_id"`
	EventID     int64        `json:"event_id"`
	Platform    LinkPlatform `json:"platform"`
	MeetingCode string       `json:"meeting_code"`
	MeetingURL  string       `json:"meeting_url"`
}

// EventCollaborator joins a CalendarEvent to a user in the system. Outsiders
// invited by bare email are pushed as external attendees only and never
// persisted as rows.
type EventCollaborator struct {
	CollabID int64  `json:"collab_id"`
	EventID  int64  `json:"event_id"`
	UserID   int64  `json:"user_id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
}

// User is the minimal profile the engine needs for collaborator resolution.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
}

// GoogleAccount holds the stored external-calendar credentials for a user.
// Acquisition and refresh happen outside the engine; a missing row means the
// user is not connected.
type GoogleAccount struct {
	UserID       int64
	AccessToken  string
	RefreshToken string
	TokenURI     string
	ClientID     string
	ClientSecret string
	Scopes       string
	TokenExpiry  *time.Time
}
