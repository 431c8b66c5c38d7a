package store

import (
	"database/sql"
	"fmt"

	"github.com/karanmehta/agenda/internal/model"
	"github.com/karanmehta/agenda/internal/temporal"
)

type EventStore struct {
	db *sql.DB
}

func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{db: db}
}

const eventColumns = `event_id, task_id, user_id, start_time, end_time, due_date,
	scheduled_date, event_desc, event_type, google_event_ref, is_calendar_synced, created_at`

func (s *EventStore) Create(taskID *int64, userID int64, start, end *temporal.TimeOfDay, due, scheduled *temporal.Date, desc string, eventType model.EventType) (*model.CalendarEvent, error) {
	var tid sql.NullInt64
	if taskID != nil {
		tid = sql.NullInt64{Int64: *taskID, Valid: true}
	}

	result, err := s.db.Exec(
		`INSERT INTO calendar_events (task_id, user_id, start_time, end_time, due_date, scheduled_date, event_desc, event_type)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		tid, userID, timeArg(start), timeArg(end), dateArg(due), dateArg(scheduled), desc, string(eventType),
	)
	if err != nil {
		return nil, fmt.Errorf("insert calendar event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return s.GetByID(id)
}

func (s *EventStore) GetByID(eventID int64) (*model.CalendarEvent, error) {
	row := s.db.QueryRow(`SELECT `+eventColumns+` FROM calendar_events WHERE event_id = ?`, eventID)
	event, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query calendar event: %w", err)
	}
	return event, nil
}

// SetGoogleRef records the external calendar id after a successful push and
// flips the synced flag. Keyed by event_id, so repeated pushes for the same
// event overwrite the reference instead of accumulating.
func (s *EventStore) SetGoogleRef(eventID int64, ref string) error {
	_, err := s.db.Exec(
		`UPDATE calendar_events SET google_event_ref = ?, is_calendar_synced = 1 WHERE event_id = ?`,
		ref, eventID,
	)
	if err != nil {
		return fmt.Errorf("set google event ref: %w", err)
	}
	return nil
}

// EventDetails is a CalendarEvent joined with its backing task's title and
// description and any meeting link, the shape the browse operation returns.
type EventDetails struct {
	model.CalendarEvent
	Title      string `json:"title"`
	TaskDesc   string `json:"task_desc"`
	MeetingURL string `json:"meeting_url,omitempty"`
}

func (s *EventStore) ListByDateRange(userID int64, from, to temporal.Date, limit int) ([]EventDetails, error) {
	rows, err := s.db.Query(
		`SELECT `+prefixedEventColumns+`,
			COALESCE(t.title, e.event_desc, 'Untitled Event'),
			COALESCE(t.description, ''),
			COALESCE(ml.meeting_url, '')
		 FROM calendar_events e
		 LEFT JOIN tasks t ON e.task_id = t.task_id
		 LEFT JOIN meeting_links ml ON e.event_id = ml.event_id
		 WHERE e.user_id = ? AND e.scheduled_date >= ? AND e.scheduled_date <= ?
		 ORDER BY e.scheduled_date ASC, e.start_time ASC
		 LIMIT ?`,
		userID, from, to, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query events by range: %w", err)
	}
	defer rows.Close()

	var events []EventDetails
	for rows.Next() {
		var d EventDetails
		var tid sql.NullInt64
		var start, end, due, scheduled, ref sql.NullString
		var eventType string
		var synced int

		if err := rows.Scan(&d.EventID, &tid, &d.UserID, &start, &end, &due, &scheduled,
			&d.EventDesc, &eventType, &ref, &synced, &d.CreatedAt,
			&d.Title, &d.TaskDesc, &d.MeetingURL); err != nil {
			return nil, fmt.Errorf("scan event details: %w", err)
		}
		if err := fillEvent(&d.CalendarEvent, tid, start, end, due, scheduled, eventType, ref, synced); err != nil {
			return nil, err
		}
		events = append(events, d)
	}
	return events, rows.Err()
}

// UpsertMeetingLink inserts or replaces the single link attached to an event.
func (s *EventStore) UpsertMeetingLink(eventID int64, platform model.LinkPlatform, code, url string) (*model.MeetingLink, error) {
	_, err := s.db.Exec(
		`INSERT INTO meeting_links (event_id, platform, meeting_code, meeting_url)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(event_id) DO UPDATE
		 SET platform = excluded.platform, meeting_code = excluded.meeting_code, meeting_url = excluded.meeting_url`,
		eventID, string(platform), code, url,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert meeting link: %w", err)
	}
	return s.GetMeetingLink(eventID)
}

func (s *EventStore) GetMeetingLink(eventID int64) (*model.MeetingLink, error) {
	var link model.MeetingLink
	var platform string
	err := s.db.QueryRow(
		`SELECT link_id, event_id, platform, meeting_code, meeting_url FROM meeting_links WHERE event_id = ?`,
		eventID,
	).Scan(&link.LinkID, &link.EventID, &platform, &link.MeetingCode, &link.MeetingURL)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query meeting link: %w", err)
	}
	link.Platform = model.LinkPlatform(platform)
	return &link, nil
}

// AddCollaborator attaches a user to an event. A duplicate pair is a no-op
// and reports added=false.
func (s *EventStore) AddCollaborator(eventID, userID int64) (bool, error) {
	result, err := s.db.Exec(
		`INSERT OR IGNORE INTO event_collaborators (event_id, user_id) VALUES (?, ?)`,
		eventID, userID,
	)
	if err != nil {
		return false, fmt.Errorf("insert collaborator: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *EventStore) ListCollaborators(eventID int64) ([]model.EventCollaborator, error) {
	rows, err := s.db.Query(
		`SELECT ec.collab_id, ec.event_id, ec.user_id, u.email, u.full_name
		 FROM event_collaborators ec
		 JOIN users u ON ec.user_id = u.id
		 WHERE ec.event_id = ?
		 ORDER BY ec.collab_id ASC`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("query collaborators: %w", err)
	}
	defer rows.Close()

	var collabs []model.EventCollaborator
	for rows.Next() {
		var c model.EventCollaborator
		if err := rows.Scan(&c.CollabID, &c.EventID, &c.UserID, &c.Email, &c.FullName); err != nil {
			return nil, fmt.Errorf("scan collaborator: %w", err)
		}
		collabs = append(collabs, c)
	}
	return collabs, rows.Err()
}

const prefixedEventColumns = `e.event_id, e.task_id, e.user_id, e.start_time, e.end_time, e.due_date,
	e.scheduled_date, e.event_desc, e.event_type, e.google_event_ref, e.is_calendar_synced, e.created_at`

func scanEvent(row rowScanner) (*model.CalendarEvent, error) {
	var e model.CalendarEvent
	var tid sql.NullInt64
	var start, end, due, scheduled, ref sql.NullString
	var eventType string
	var synced int

	err := row.Scan(&e.EventID, &tid, &e.UserID, &start, &end, &due, &scheduled,
		&e.EventDesc, &eventType, &ref, &synced, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := fillEvent(&e, tid, start, end, due, scheduled, eventType, ref, synced); err != nil {
		return nil, err
	}
	return &e, nil
}

func fillEvent(e *model.CalendarEvent, tid sql.NullInt64, start, end, due, scheduled sql.NullString, eventType string, ref sql.NullString, synced int) error {
	if tid.Valid {
		e.TaskID = &tid.Int64
	}
	e.EventType = model.EventType(eventType)
	if ref.Valid {
		e.GoogleEventRef = ref.String
	}
	e.IsCalendarSynced = synced != 0

	var err error
	if e.StartTime, err = scanTime(start); err != nil {
		return fmt.Errorf("scan start_time: %w", err)
	}
	if e.EndTime, err = scanTime(end); err != nil {
		return fmt.Errorf("scan end_time: %w", err)
	}
	if e.DueDate, err = scanDate(due); err != nil {
		return fmt.Errorf("scan due_date: %w", err)
	}
	if e.ScheduledDate, err = scanDate(scheduled); err != nil {
		return fmt.Errorf("scan scheduled_date: %w", err)
	}
	return nil
}
