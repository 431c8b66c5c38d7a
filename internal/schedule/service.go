// Package schedule is the scheduling and conflict-resolution engine: it
// normalizes temporal input, detects overlaps, proposes alternatives,
// re-plans a day against an external planning oracle, and mirrors committed
// items to an external calendar on a best-effort basis.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/karanmehta/agenda/internal/gcal"
	"github.com/karanmehta/agenda/internal/model"
	"github.com/karanmehta/agenda/internal/oracle"
	"github.com/karanmehta/agenda/internal/store"
	"github.com/karanmehta/agenda/internal/temporal"
)

// Planner produces a proposed day schedule. Implemented by oracle.Client;
// stubbed in tests. The proposal is untrusted and validated before commit.
type Planner interface {
	PlanDay(ctx context.Context, today temporal.Date, items []model.ScheduleItem) ([]oracle.Placement, error)
}

// Service exposes the engine's boundary operations. Every operation takes the
// acting user's id explicitly; there is no ambient user context.
type Service struct {
	tasks    *store.TaskStore
	events   *store.EventStore
	users    *store.UserStore
	accounts *store.GoogleAccountStore
	calendar *gcal.Client
	planner  Planner
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(tasks *store.TaskStore, events *store.EventStore, users *store.UserStore, accounts *store.GoogleAccountStore, calendar *gcal.Client, planner Planner, logger *slog.Logger) *Service {
	return &Service{
		tasks:    tasks,
		events:   events,
		users:    users,
		accounts: accounts,
		calendar: calendar,
		planner:  planner,
		logger:   logger,
		now:      time.Now,
	}
}

// TaskParams carries the loosely-typed input of a task or todo creation.
// Dates and times are strings because callers (the chat agent, the UI) send
// heterogeneous formats; normalization happens here, before any write.
type TaskParams struct {
	Title         string `json:"title"`
	Description   string `json:"description"`
	DueDate       string `json:"due_date,omitempty"`
	ScheduledDate string `json:"scheduled_date,omitempty"`
	StartTime     string `json:"start_time,omitempty"`
	EndTime       string `json:"end_time,omitempty"`
	Priority      string `json:"priority,omitempty"`
	Category      string `json:"category,omitempty"`
	MeetingLink   string `json:"meeting_link,omitempty"`
}

func (p *TaskParams) validate() (model.Priority, string, error) {
	if strings.TrimSpace(p.Title) == "" {
		return "", "", &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	priority := model.Priority(p.Priority)
	if p.Priority == "" {
		priority = model.PriorityMedium
	} else if !model.ValidPriority(priority) {
		return "", "", &ValidationError{Field: "priority", Reason: fmt.Sprintf("unknown priority %q", p.Priority)}
	}
	category := p.Category
	if category == "" {
		category = "general"
	}
	return priority, category, nil
}

// TaskResult reports a created task, its calendar event, and the mirror
// outcome.
type TaskResult struct {
	TaskID        int64       `json:"task_id"`
	EventID       int64       `json:"event_id"`
	GoogleSynced  bool        `json:"google_synced"`
	GoogleEventID string      `json:"google_event_id,omitempty"`
	Sync          SyncOutcome `json:"sync"`
	Message       string      `json:"message"`
}

// AddTaskToCalendar creates a ScheduleItem and its CalendarEvent, then pushes
// the event to the external mirror. The local commit always happens first;
// sync failure is reported, never propagated.
func (s *Service) AddTaskToCalendar(ctx context.Context, userID int64, p TaskParams) (*TaskResult, error) {
	priority, category, err := p.validate()
	if err != nil {
		return nil, err
	}

	// Missing due date defaults to tomorrow; missing scheduled date to the
	// due date.
	var dueDate temporal.Date
	if p.DueDate != "" {
		if dueDate, err = temporal.ParseDate(p.DueDate); err != nil {
			return nil, err
		}
	} else {
		dueDate = temporal.DateOf(s.now()).AddDays(1)
	}
	scheduledDate := dueDate
	if p.ScheduledDate != "" {
		if scheduledDate, err = temporal.ParseDate(p.ScheduledDate); err != nil {
			return nil, err
		}
	}

	var startTime, endTime *temporal.TimeOfDay
	if p.StartTime != "" {
		t, err := temporal.ParseTimeOfDay(p.StartTime)
		if err != nil {
			return nil, err
		}
		startTime = &t
	}
	if p.EndTime != "" {
		t, err := temporal.ParseTimeOfDay(p.EndTime)
		if err != nil {
			return nil, err
		}
		endTime = &t
	}

	task, err := s.tasks.Create(userID, strings.TrimSpace(p.Title), p.Description, model.StatusTask, priority, category, &dueDate, &scheduledDate, startTime, endTime)
	if err != nil {
		return nil, fmt.Errorf("persist task: %w", err)
	}

	event, err := s.events.Create(&task.TaskID, userID, startTime, endTime, &dueDate, &scheduledDate, p.Description, model.EventTypeTask)
	if err != nil {
		return nil, fmt.Errorf("persist calendar event: %w", err)
	}

	if p.MeetingLink != "" {
		code := meetingCodeFromLink(p.MeetingLink)
		if _, err := s.events.UpsertMeetingLink(event.EventID, model.PlatformCustom, code, p.MeetingLink); err != nil {
			return nil, fmt.Errorf("persist meeting link: %w", err)
		}
	}

	// Local rows are committed; everything past this point is advisory.
	eventStart, eventEnd := eventWindow(scheduledDate, startTime, endTime, 1.0)
	ext := &gcal.Event{
		Summary:     task.Title,
		Description: fmt.Sprintf("%s\n\nPriority: %s\nCategory: %s", p.Description, strings.ToUpper(string(priority)), category),
		Start:       s.calendar.At(eventStart),
		End:         s.calendar.At(eventEnd),
		ColorID:     priorityColor(priority),
		Location:    p.MeetingLink,
	}
	outcome := s.syncCreate(ctx, event, ext, 0)

	message := fmt.Sprintf("Task %q added successfully. Due: %s", task.Title, dueDate)
	if startTime != nil {
		message += " " + startTime.HHMM()
	}
	message += ". " + outcome.Annotation()

	return &TaskResult{
		TaskID:        task.TaskID,
		EventID:       event.EventID,
		GoogleSynced:  outcome.Synced(),
		GoogleEventID: outcome.GoogleEventID,
		Sync:          outcome,
		Message:       message,
	}, nil
}

// TodoResult reports a created todo.
type TodoResult struct {
	TaskID  int64  `json:"task_id"`
	Message string `json:"message"`
}

// SaveTodoOnly persists a ScheduleItem with status todo and never creates a
// CalendarEvent. Dates are kept as given, without the creation defaults.
func (s *Service) SaveTodoOnly(ctx context.Context, userID int64, p TaskParams) (*TodoResult, error) {
	priority, category, err := p.validate()
	if err != nil {
		return nil, err
	}

	var dueDate, scheduledDate *temporal.Date
	if p.DueDate != "" {
		d, err := temporal.ParseDate(p.DueDate)
		if err != nil {
			return nil, err
		}
		dueDate = &d
	}
	if p.ScheduledDate != "" {
		d, err := temporal.ParseDate(p.ScheduledDate)
		if err != nil {
			return nil, err
		}
		scheduledDate = &d
	} else {
		scheduledDate = dueDate
	}

	var startTime, endTime *temporal.TimeOfDay
	if p.StartTime != "" {
		t, err := temporal.ParseTimeOfDay(p.StartTime)
		if err != nil {
			return nil, err
		}
		startTime = &t
	}
	if p.EndTime != "" {
		t, err := temporal.ParseTimeOfDay(p.EndTime)
		if err != nil {
			return nil, err
		}
		endTime = &t
	}

	task, err := s.tasks.Create(userID, strings.TrimSpace(p.Title), p.Description, model.StatusTodo, priority, category, dueDate, scheduledDate, startTime, endTime)
	if err != nil {
		return nil, fmt.Errorf("persist todo: %w", err)
	}

	message := fmt.Sprintf("Task %q added to your todo list", task.Title)
	if dueDate != nil {
		message += fmt.Sprintf(" (Due: %s)", dueDate)
	}
	return &TodoResult{TaskID: task.TaskID, Message: message}, nil
}

// MeetingParams carries the all-in-one meeting creation input.
type MeetingParams struct {
	Title              string   `json:"title"`
	ScheduledDate      string   `json:"scheduled_date"`
	StartTime          string   `json:"start_time"`
	EndTime            string   `json:"end_time,omitempty"`
	DueDate            string   `json:"due_date,omitempty"`
	Priority           string   `json:"priority,omitempty"`
	Description        string   `json:"description,omitempty"`
	CollaboratorIDs    []int64  `json:"collaborator_ids,omitempty"`
	CollaboratorEmails []string `json:"collaborator_emails,omitempty"`
	MeetingCode        string   `json:"meeting_code,omitempty"`
	AutoGenerateLink   *bool    `json:"auto_generate_link,omitempty"` // default true
	DurationHours      float64  `json:"duration_hours,omitempty"`    // default 2
}

// MeetingResult reports a scheduled meeting.
type MeetingResult struct {
	TaskID        int64       `json:"task_id"`
	EventID       int64       `json:"event_id"`
	GoogleEventID string      `json:"google_event_id,omitempty"`
	MeetingURL    string      `json:"meeting_url,omitempty"`
	Sync          SyncOutcome `json:"sync"`
	Message       string      `json:"message"`
}

// ScheduleMeeting creates the backing ScheduleItem (status meeting) and
// CalendarEvent, mirrors them, optionally provisions a conference link, and
// attaches collaborators. An end time numerically before the start means the
// meeting runs past midnight; the external event end lands on the next day.
func (s *Service) ScheduleMeeting(ctx context.Context, userID int64, p MeetingParams) (*MeetingResult, error) {
	if strings.TrimSpace(p.Title) == "" {
		return nil, &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if p.ScheduledDate == "" {
		return nil, &ValidationError{Field: "scheduled_date", Reason: "required"}
	}
	if p.StartTime == "" {
		return nil, &ValidationError{Field: "start_time", Reason: "required"}
	}
	priority := model.Priority(p.Priority)
	if p.Priority == "" {
		priority = model.PriorityMedium
	} else if !model.ValidPriority(priority) {
		return nil, &ValidationError{Field: "priority", Reason: fmt.Sprintf("unknown priority %q", p.Priority)}
	}
	autoGenerate := p.AutoGenerateLink == nil || *p.AutoGenerateLink
	duration := p.DurationHours
	if duration <= 0 {
		duration = defaultDurationHours
	}

	scheduledDate, err := temporal.ParseDate(p.ScheduledDate)
	if err != nil {
		return nil, err
	}
	dueDate := scheduledDate
	if p.DueDate != "" {
		if dueDate, err = temporal.ParseDate(p.DueDate); err != nil {
			return nil, err
		}
	}
	startTime, err := temporal.ParseTimeOfDay(p.StartTime)
	if err != nil {
		return nil, err
	}

	var endTime temporal.TimeOfDay
	if p.EndTime != "" {
		if endTime, err = temporal.ParseTimeOfDay(p.EndTime); err != nil {
			return nil, err
		}
	} else {
		endTime, _ = temporal.DeriveEnd(startTime, duration)
	}

	eventStart := scheduledDate.At(startTime)
	eventEnd := scheduledDate.At(endTime)
	if endTime.Before(startTime) {
		// Overnight meeting: the end instant is on the next day.
		eventEnd = scheduledDate.AddDays(1).At(endTime)
	}

	task, err := s.tasks.Create(userID, strings.TrimSpace(p.Title), p.Description, model.StatusMeeting, priority, "general", &dueDate, &scheduledDate, &startTime, &endTime)
	if err != nil {
		return nil, fmt.Errorf("persist meeting task: %w", err)
	}

	eventDesc := fmt.Sprintf("Title: %s\n\n%s", task.Title, p.Description)
	event, err := s.events.Create(&task.TaskID, userID, &startTime, &endTime, &dueDate, &scheduledDate, eventDesc, model.EventTypeMeeting)
	if err != nil {
		return nil, fmt.Errorf("persist meeting event: %w", err)
	}

	ext := &gcal.Event{
		Summary:     task.Title,
		Description: p.Description,
		Start:       s.calendar.At(eventStart),
		End:         s.calendar.At(eventEnd),
	}
	conferenceVersion := 0
	if autoGenerate && p.MeetingCode == "" {
		ext.ConferenceData = gcal.NewMeetRequest()
		conferenceVersion = 1
	}
	outcome := s.syncCreate(ctx, event, ext, conferenceVersion)

	result := &MeetingResult{
		TaskID:        task.TaskID,
		EventID:       event.EventID,
		GoogleEventID: outcome.GoogleEventID,
		Sync:          outcome,
	}

	if outcome.Synced() && outcome.MeetingURL != "" {
		if _, err := s.events.UpsertMeetingLink(event.EventID, model.PlatformGoogleMeet, outcome.MeetingCode, outcome.MeetingURL); err != nil {
			s.logger.Error("persist generated meeting link", "event_id", event.EventID, "error", err)
		} else {
			result.MeetingURL = outcome.MeetingURL
		}
	}

	message := fmt.Sprintf("Meeting %q scheduled for %s %s. %s", task.Title, scheduledDate, startTime.HHMM(), outcome.Annotation())

	// Refresh the event so attendee sync sees the external reference
	// recorded by syncCreate.
	if len(p.CollaboratorIDs) > 0 || len(p.CollaboratorEmails) > 0 {
		collab, err := s.AddCollaborators(ctx, userID, event.EventID, p.CollaboratorIDs, p.CollaboratorEmails)
		if err != nil {
			s.logger.Warn("add collaborators", "event_id", event.EventID, "error", err)
		} else {
			message += " " + collab.Message
		}
	}

	if p.MeetingCode != "" {
		link, err := s.GenerateMeetingLink(ctx, userID, event.EventID, p.MeetingCode)
		if err != nil {
			s.logger.Warn("attach meeting code", "event_id", event.EventID, "error", err)
		} else {
			result.MeetingURL = link.MeetingURL
			message += " Meeting link attached: " + link.MeetingURL
		}
	}

	result.Message = message
	return result, nil
}

// AddedCollaborator is one attendee attached to an event. Outsiders carry no
// user id and exist only as external attendees.
type AddedCollaborator struct {
	UserID int64  `json:"user_id,omitempty"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}

// CollaboratorResult reports an attendee update.
type CollaboratorResult struct {
	AddedCount    int                 `json:"added_count"`
	Collaborators []AddedCollaborator `json:"collaborators"`
	GoogleSynced  bool                `json:"google_synced"`
	Message       string              `json:"message"`
}

// AddCollaborators attaches known users (by id or resolvable email) as event
// collaborators and pushes everyone, outsiders included, as external
// attendees. Duplicate pairs are no-ops.
func (s *Service) AddCollaborators(ctx context.Context, userID, eventID int64, collaboratorIDs []int64, collaboratorEmails []string) (*CollaboratorResult, error) {
	event, err := s.ownedEvent(userID, eventID)
	if err != nil {
		return nil, err
	}

	var added []AddedCollaborator
	for _, collabID := range collaboratorIDs {
		user, err := s.users.GetByID(collabID)
		if err != nil {
			return nil, fmt.Errorf("look up collaborator %d: %w", collabID, err)
		}
		if user == nil {
			continue
		}
		inserted, err := s.events.AddCollaborator(eventID, collabID)
		if err != nil {
			return nil, fmt.Errorf("add collaborator %d: %w", collabID, err)
		}
		if inserted {
			added = append(added, AddedCollaborator{UserID: user.ID, Email: user.Email, Name: user.FullName})
		}
	}

	for _, email := range collaboratorEmails {
		user, err := s.users.GetByEmail(email)
		if err != nil {
			return nil, fmt.Errorf("look up email %s: %w", email, err)
		}
		if user != nil {
			inserted, err := s.events.AddCollaborator(eventID, user.ID)
			if err != nil {
				return nil, fmt.Errorf("add collaborator %d: %w", user.ID, err)
			}
			if inserted {
				added = append(added, AddedCollaborator{UserID: user.ID, Email: user.Email, Name: user.FullName})
			}
			continue
		}
		// Outsider: pushed as an external attendee only, never persisted.
		added = append(added, AddedCollaborator{Email: email, Name: emailLocalPart(email)})
	}

	result := &CollaboratorResult{AddedCount: len(added), Collaborators: added}

	if len(added) > 0 && event.GoogleEventRef != "" {
		attendees := make([]gcal.Attendee, len(added))
		for i, c := range added {
			attendees[i] = gcal.Attendee{Email: c.Email}
		}
		outcome := s.syncUpdateAttendees(ctx, event, attendees)
		result.GoogleSynced = outcome.Synced()
	}

	names := make([]string, len(added))
	for i, c := range added {
		if c.Name != "" {
			names[i] = c.Name
		} else {
			names[i] = c.Email
		}
	}
	result.Message = fmt.Sprintf("Added %d collaborator(s): %s", len(added), strings.Join(names, ", "))
	if result.GoogleSynced {
		result.Message += " Invitations sent via Google Calendar."
	}
	return result, nil
}

// LinkResult reports a meeting link attachment or generation.
type LinkResult struct {
	MeetingURL  string             `json:"meeting_url"`
	MeetingCode string             `json:"meeting_code"`
	Platform    model.LinkPlatform `json:"platform"`
	Message     string             `json:"message"`
}

// GenerateMeetingLink attaches a caller-provided code as a custom link, or
// provisions a conference on the already-mirrored event. Generation requires
// a connected account and an existing external reference; otherwise it fails
// cleanly without touching anything.
func (s *Service) GenerateMeetingLink(ctx context.Context, userID, eventID int64, existingCode string) (*LinkResult, error) {
	event, err := s.ownedEvent(userID, eventID)
	if err != nil {
		return nil, err
	}

	if existingCode != "" {
		url, code := normalizeMeetingCode(existingCode)
		if _, err := s.events.UpsertMeetingLink(eventID, model.PlatformCustom, code, url); err != nil {
			return nil, fmt.Errorf("persist meeting link: %w", err)
		}
		return &LinkResult{
			MeetingURL:  url,
			MeetingCode: code,
			Platform:    model.PlatformCustom,
			Message:     "Meeting link attached: " + url,
		}, nil
	}

	outcome, err := s.syncGenerateConferenceLink(ctx, event)
	if err != nil {
		return nil, err
	}

	if _, err := s.events.UpsertMeetingLink(eventID, model.PlatformGoogleMeet, outcome.MeetingCode, outcome.MeetingURL); err != nil {
		return nil, fmt.Errorf("persist meeting link: %w", err)
	}
	return &LinkResult{
		MeetingURL:  outcome.MeetingURL,
		MeetingCode: outcome.MeetingCode,
		Platform:    model.PlatformGoogleMeet,
		Message:     "Google Meet link generated: " + outcome.MeetingURL,
	}, nil
}

// EventSummary is one browsed calendar event with its combined start and end
// instants. End lands on the next day when the window crosses midnight.
type EventSummary struct {
	EventID     int64           `json:"event_id"`
	Title       string          `json:"title"`
	StartTime   string          `json:"start_time,omitempty"` // ISO datetime
	EndTime     string          `json:"end_time,omitempty"`   // ISO datetime
	MeetingLink string          `json:"meeting_link,omitempty"`
	Type        model.EventType `json:"type"`
	Description string          `json:"description,omitempty"`
}

// EventsResult reports a ranged browse.
type EventsResult struct {
	Count   int            `json:"count"`
	Events  []EventSummary `json:"events"`
	Message string         `json:"message"`
}

// GetCalendarEvents returns the user's events between two dates, inclusive.
func (s *Service) GetCalendarEvents(ctx context.Context, userID int64, startDate, endDate string, limit int) (*EventsResult, error) {
	from, err := temporal.ParseDate(startDate)
	if err != nil {
		return nil, err
	}
	to, err := temporal.ParseDate(endDate)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.events.ListByDateRange(userID, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	events := make([]EventSummary, 0, len(rows))
	for _, row := range rows {
		summary := EventSummary{
			EventID:     row.EventID,
			Title:       row.Title,
			MeetingLink: row.MeetingURL,
			Type:        row.EventType,
			Description: row.TaskDesc,
		}
		if summary.Description == "" {
			summary.Description = row.EventDesc
		}
		if row.ScheduledDate != nil && row.StartTime != nil {
			summary.StartTime = row.ScheduledDate.At(*row.StartTime).Format("2006-01-02T15:04:05")
		}
		if row.ScheduledDate != nil && row.EndTime != nil {
			endDay := *row.ScheduledDate
			if row.StartTime != nil && row.EndTime.Before(*row.StartTime) {
				endDay = endDay.AddDays(1)
			}
			summary.EndTime = endDay.At(*row.EndTime).Format("2006-01-02T15:04:05")
		}
		events = append(events, summary)
	}

	return &EventsResult{
		Count:   len(events),
		Events:  events,
		Message: fmt.Sprintf("Found %d events from %s to %s", len(events), from, to),
	}, nil
}

// CompleteTask marks a task completed. The transition is terminal; the
// mirrored calendar event is deliberately left alone.
func (s *Service) CompleteTask(ctx context.Context, userID, taskID int64) error {
	task, err := s.tasks.GetByID(taskID)
	if err != nil {
		return fmt.Errorf("look up task: %w", err)
	}
	if task == nil || task.UserID != userID {
		return ErrNotFound
	}
	if err := s.tasks.Complete(taskID); err != nil {
		return err
	}
	return nil
}

// SearchCollaborators finds candidate invitees within the user's friend
// network.
func (s *Service) SearchCollaborators(ctx context.Context, userID int64, query, searchType string) ([]model.User, error) {
	switch searchType {
	case "", "any", "name", "email", "username":
	default:
		searchType = "any"
	}
	return s.users.SearchFriends(userID, query, searchType)
}

func (s *Service) ownedEvent(userID, eventID int64) (*model.CalendarEvent, error) {
	event, err := s.events.GetByID(eventID)
	if err != nil {
		return nil, fmt.Errorf("look up event: %w", err)
	}
	if event == nil || event.UserID != userID {
		return nil, ErrNotFound
	}
	return event, nil
}

// eventWindow combines the scheduled day with the optional clock window the
// way the external payload needs it: no start means midnight, no end means
// start plus the default span.
func eventWindow(date temporal.Date, start, end *temporal.TimeOfDay, defaultHours float64) (time.Time, time.Time) {
	startTod := temporal.NewTimeOfDay(0, 0, 0)
	if start != nil {
		startTod = *start
	}
	eventStart := date.At(startTod)

	if end != nil {
		endDay := date
		if end.Before(startTod) {
			endDay = date.AddDays(1)
		}
		return eventStart, endDay.At(*end)
	}

	endTod, rolled := temporal.DeriveEnd(startTod, defaultHours)
	endDay := date
	if rolled {
		endDay = date.AddDays(1)
	}
	return eventStart, endDay.At(endTod)
}

func priorityColor(p model.Priority) string {
	if p == model.PriorityHigh || p == model.PriorityUrgent {
		return "9"
	}
	return "1"
}

func meetingCodeFromLink(link string) string {
	if idx := strings.LastIndex(link, "/"); idx >= 0 {
		return link[idx+1:]
	}
	return link
}

func normalizeMeetingCode(existing string) (url, code string) {
	if strings.HasPrefix(existing, "http") {
		return existing, meetingCodeFromLink(existing)
	}
	return "https://meet.google.com/" + existing, existing
}

func emailLocalPart(email string) string {
	if idx := strings.Index(email, "@"); idx >= 0 {
		return email[:idx]
	}
	return email
}
