package schedule

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/karanmehta/agenda/internal/database"
	"github.com/karanmehta/agenda/internal/gcal"
	"github.com/karanmehta/agenda/internal/model"
	"github.com/karanmehta/agenda/internal/oracle"
	"github.com/karanmehta/agenda/internal/store"
	"github.com/karanmehta/agenda/internal/temporal"
)

// testNow is the frozen clock for every service test: 08:00 on 2026-03-15.
var testNow = time.Date(2026, time.March, 15, 8, 0, 0, 0, time.UTC)

type stubPlanner struct {
	placements []oracle.Placement
	err        error
	gotItems   []model.ScheduleItem
}

func (p *stubPlanner) PlanDay(ctx context.Context, today temporal.Date, items []model.ScheduleItem) ([]oracle.Placement, error) {
	p.gotItems = items
	return p.placements, p.err
}

// fakeCalendar stands in for the external calendar API. Inserts assign
// sequential ids; a conference provisioning request is answered with a fixed
// Meet conference.
type fakeCalendar struct {
	mu        sync.Mutex
	inserts   int
	updates   int
	lastEvent gcal.Event
	lastPath  string
	lastQuery url.Values
}

func (f *fakeCalendar) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.lastPath = r.URL.Path
	f.lastQuery = r.URL.Query()

	var ev gcal.Event
	if r.Method != http.MethodGet {
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.lastEvent = ev
	}

	switch r.Method {
	case http.MethodPost:
		f.inserts++
		ev.ID = fmt.Sprintf("g-%d", f.inserts)
	case http.MethodPut, http.MethodGet:
		ev.ID = path.Base(r.URL.Path)
		if r.Method == http.MethodPut {
			f.updates++
		}
	}

	if ev.ConferenceData != nil && ev.ConferenceData.CreateRequest != nil {
		ev.ConferenceData = &gcal.ConferenceData{
			ConferenceID: "abc-defg-hij",
			EntryPoints: []gcal.EntryPoint{
				{EntryPointType: "video", URI: "https://meet.google.com/abc-defg-hij"},
			},
		}
	}

	json.NewEncoder(w).Encode(ev)
}

func newTestService(t *testing.T, calendarHandler http.Handler, planner Planner) (*Service, *sql.DB) {
	t.Helper()

	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if calendarHandler == nil {
		calendarHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "unexpected calendar call", http.StatusInternalServerError)
		})
	}
	server := httptest.NewServer(calendarHandler)
	t.Cleanup(server.Close)

	if planner == nil {
		planner = &stubPlanner{}
	}

	svc := NewService(
		store.NewTaskStore(db),
		store.NewEventStore(db),
		store.NewUserStore(db),
		store.NewGoogleAccountStore(db),
		gcal.NewClient(gcal.Config{BaseURL: server.URL}),
		planner,
		slog.Default(),
	)
	svc.now = func() time.Time { return testNow }
	return svc, db
}

func createUser(t *testing.T, db *sql.DB, username, email string) *model.User {
	t.Helper()
	user, err := store.NewUserStore(db).Create(username, username+" Test", email)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func connectGoogle(t *testing.T, db *sql.DB, userID int64) {
	t.Helper()
	if err := store.NewGoogleAccountStore(db).Upsert(model.GoogleAccount{UserID: userID, AccessToken: "tok"}); err != nil {
		t.Fatalf("connect google account: %v", err)
	}
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func TestAddTaskToCalendarDefaultsAndNotConnected(t *testing.T) {
	svc, db := newTestService(t, nil, nil)
	user := createUser(t, db, "asha", "asha@example.com")

	result, err := svc.AddTaskToCalendar(context.Background(), user.ID, TaskParams{Title: "Write report"})
	if err != nil {
		t.Fatalf("add task: %v", err)
	}

	if result.Sync.State != SyncStateNotConnected {
		t.Errorf("sync state = %s, want not_connected", result.Sync.State)
	}
	if result.GoogleSynced {
		t.Error("unconnected user cannot be synced")
	}

	task, err := store.NewTaskStore(db).GetByID(result.TaskID)
	if err != nil || task == nil {
		t.Fatalf("task row missing: %v", err)
	}
	tomorrow := temporal.DateOf(testNow).AddDays(1)
	if task.DueDate == nil || !task.DueDate.Equal(tomorrow) {
		t.Errorf("due date = %v, want tomorrow %s", task.DueDate, tomorrow)
	}
	if task.ScheduledDate == nil || !task.ScheduledDate.Equal(tomorrow) {
		t.Errorf("scheduled date = %v, want due date", task.ScheduledDate)
	}
	if task.Status != model.StatusTask {
		t.Errorf("status = %s", task.Status)
	}
	if task.Priority != model.PriorityMedium {
		t.Errorf("priority = %s, want medium default", task.Priority)
	}

	event, err := store.NewEventStore(db).GetByID(result.EventID)
	if err != nil || event == nil {
		t.Fatalf("event row missing: %v", err)
	}
	if event.IsCalendarSynced {
		t.Error("event must stay unsynced")
	}
}

func TestAddTaskToCalendarSynced(t *testing.T) {
	cal := &fakeCalendar{}
	svc, db := newTestService(t, cal, nil)
	user := createUser(t, db, "asha", "asha@example.com")
	connectGoogle(t, db, user.ID)

	result, err := svc.AddTaskToCalendar(context.Background(), user.ID, TaskParams{
		Title:       "Prep slides",
		Description: "for the quarterly review",
		DueDate:     "2026-03-20",
		StartTime:   "14:00",
		EndTime:     "16:00",
		Priority:    "high",
		Category:    "work",
	})
	if err != nil {
		t.Fatalf("add task: %v", err)
	}

	if !result.GoogleSynced || result.GoogleEventID != "g-1" {
		t.Errorf("sync = %v / %q", result.GoogleSynced, result.GoogleEventID)
	}

	event, err := store.NewEventStore(db).GetByID(result.EventID)
	if err != nil || event == nil {
		t.Fatal("event row missing")
	}
	if event.GoogleEventRef != "g-1" || !event.IsCalendarSynced {
		t.Errorf("event ref = %q synced = %v", event.GoogleEventRef, event.IsCalendarSynced)
	}

	if cal.lastEvent.Summary != "Prep slides" {
		t.Errorf("pushed summary = %q", cal.lastEvent.Summary)
	}
	if !strings.Contains(cal.lastEvent.Description, "Priority: HIGH") {
		t.Errorf("pushed description = %q", cal.lastEvent.Description)
	}
	if cal.lastEvent.ColorID != "9" {
		t.Errorf("color = %q, want 9 for high priority", cal.lastEvent.ColorID)
	}
	if cal.lastEvent.Start == nil || cal.lastEvent.Start.DateTime != "2026-03-20T14:00:00" {
		t.Errorf("pushed start = %+v", cal.lastEvent.Start)
	}
}

func TestAddTaskSyncFailureStillPersists(t *testing.T) {
	failing := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusInternalServerError)
	})
	svc, db := newTestService(t, failing, nil)
	user := createUser(t, db, "asha", "asha@example.com")
	connectGoogle(t, db, user.ID)

	result, err := svc.AddTaskToCalendar(context.Background(), user.ID, TaskParams{Title: "Still saved"})
	if err != nil {
		t.Fatalf("sync failure must not abort the operation: %v", err)
	}
	if result.Sync.State != SyncStateFailed {
		t.Errorf("sync state = %s, want failed", result.Sync.State)
	}
	if countRows(t, db, "tasks") != 1 || countRows(t, db, "calendar_events") != 1 {
		t.Error("local rows must persist despite sync failure")
	}
}

func TestAddTaskAuthExpired(t *testing.T) {
	expired := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"invalid_grant","error_description":"Token has been expired or revoked."}`)
	})
	svc, db := newTestService(t, expired, nil)
	user := createUser(t, db, "asha", "asha@example.com")
	connectGoogle(t, db, user.ID)

	result, err := svc.AddTaskToCalendar(context.Background(), user.ID, TaskParams{Title: "Renew"})
	if err != nil {
		t.Fatal(err)
	}
	if result.Sync.State != SyncStateAuthExpired {
		t.Errorf("sync state = %s, want auth_expired", result.Sync.State)
	}
}

func TestSyncCreateIdempotentRepush(t *testing.T) {
	cal := &fakeCalendar{}
	svc, db := newTestService(t, cal, nil)
	user := createUser(t, db, "asha", "asha@example.com")
	connectGoogle(t, db, user.ID)

	events := store.NewEventStore(db)
	event, err := events.Create(nil, user.ID, nil, nil, nil, nil, "already mirrored", model.EventTypeTask)
	if err != nil {
		t.Fatal(err)
	}
	if err := events.SetGoogleRef(event.EventID, "g-existing"); err != nil {
		t.Fatal(err)
	}
	event, err = events.GetByID(event.EventID)
	if err != nil {
		t.Fatal(err)
	}

	outcome := svc.syncCreate(context.Background(), event, &gcal.Event{Summary: "repush"}, 0)
	if !outcome.Synced() {
		t.Fatalf("outcome = %+v", outcome)
	}
	if outcome.GoogleEventID != "g-existing" {
		t.Errorf("google event id = %q, want the existing reference", outcome.GoogleEventID)
	}
	if cal.inserts != 0 || cal.updates != 1 {
		t.Errorf("inserts = %d updates = %d, want repush to update in place", cal.inserts, cal.updates)
	}
	if !strings.HasSuffix(cal.lastPath, "/g-existing") {
		t.Errorf("path = %q", cal.lastPath)
	}
}

func TestSaveTodoOnly(t *testing.T) {
	svc, db := newTestService(t, nil, nil)
	user := createUser(t, db, "asha", "asha@example.com")

	result, err := svc.SaveTodoOnly(context.Background(), user.ID, TaskParams{Title: "Read paper"})
	if err != nil {
		t.Fatalf("save todo: %v", err)
	}

	task, err := store.NewTaskStore(db).GetByID(result.TaskID)
	if err != nil || task == nil {
		t.Fatal("todo row missing")
	}
	if task.Status != model.StatusTodo {
		t.Errorf("status = %s, want todo", task.Status)
	}
	if task.DueDate != nil {
		t.Errorf("due date = %v, todos take no date defaults", task.DueDate)
	}
	if countRows(t, db, "calendar_events") != 0 {
		t.Error("todos must not create calendar events")
	}
}

func TestScheduleMeetingDefaultsAndAutoLink(t *testing.T) {
	cal := &fakeCalendar{}
	svc, db := newTestService(t, cal, nil)
	user := createUser(t, db, "asha", "asha@example.com")
	connectGoogle(t, db, user.ID)

	result, err := svc.ScheduleMeeting(context.Background(), user.ID, MeetingParams{
		Title:         "Design sync",
		ScheduledDate: "2026-03-20",
		StartTime:     "14:00",
	})
	if err != nil {
		t.Fatalf("schedule meeting: %v", err)
	}

	task, err := store.NewTaskStore(db).GetByID(result.TaskID)
	if err != nil || task == nil {
		t.Fatal("meeting task missing")
	}
	if task.Status != model.StatusMeeting {
		t.Errorf("status = %s", task.Status)
	}
	if task.EndTime == nil || *task.EndTime != temporal.NewTimeOfDay(16, 0, 0) {
		t.Errorf("end time = %v, want 16:00:00 from the default duration", task.EndTime)
	}
	if task.DueDate == nil || !task.DueDate.Equal(temporal.NewDate(2026, time.March, 20)) {
		t.Errorf("due date = %v, want the scheduled date", task.DueDate)
	}

	if cal.lastQuery.Get("conferenceDataVersion") != "1" {
		t.Errorf("conferenceDataVersion = %q", cal.lastQuery.Get("conferenceDataVersion"))
	}
	if result.MeetingURL != "https://meet.google.com/abc-defg-hij" {
		t.Errorf("meeting url = %q", result.MeetingURL)
	}

	link, err := store.NewEventStore(db).GetMeetingLink(result.EventID)
	if err != nil || link == nil {
		t.Fatal("meeting link row missing")
	}
	if link.Platform != model.PlatformGoogleMeet || link.MeetingCode != "abc-defg-hij" {
		t.Errorf("link = %+v", link)
	}

	if cal.lastEvent.Start.DateTime != "2026-03-20T14:00:00" || cal.lastEvent.End.DateTime != "2026-03-20T16:00:00" {
		t.Errorf("pushed window = %s to %s", cal.lastEvent.Start.DateTime, cal.lastEvent.End.DateTime)
	}
}

func TestScheduleMeetingOvernight(t *testing.T) {
	cal := &fakeCalendar{}
	svc, db := newTestService(t, cal, nil)
	user := createUser(t, db, "asha", "asha@example.com")
	connectGoogle(t, db, user.ID)

	auto := false
	result, err := svc.ScheduleMeeting(context.Background(), user.ID, MeetingParams{
		Title:            "Incident bridge",
		ScheduledDate:    "2026-03-20",
		StartTime:        "23:00",
		EndTime:          "01:00",
		AutoGenerateLink: &auto,
	})
	if err != nil {
		t.Fatalf("schedule overnight meeting: %v", err)
	}

	task, err := store.NewTaskStore(db).GetByID(result.TaskID)
	if err != nil || task == nil {
		t.Fatal("task missing")
	}
	// Stored end stays numerically before the start; the rollover lives only
	// in the external payload.
	if *task.EndTime != temporal.NewTimeOfDay(1, 0, 0) {
		t.Errorf("stored end = %s", task.EndTime)
	}
	if cal.lastEvent.End.DateTime != "2026-03-21T01:00:00" {
		t.Errorf("pushed end = %s, want the next day", cal.lastEvent.End.DateTime)
	}
}

func TestScheduleMeetingValidation(t *testing.T) {
	svc, db := newTestService(t, nil, nil)
	user := createUser(t, db, "asha", "asha@example.com")

	tests := []struct {
		name   string
		params MeetingParams
	}{
		{"missing title", MeetingParams{ScheduledDate: "2026-03-20", StartTime: "14:00"}},
		{"missing date", MeetingParams{Title: "x", StartTime: "14:00"}},
		{"missing start", MeetingParams{Title: "x", ScheduledDate: "2026-03-20"}},
		{"bad priority", MeetingParams{Title: "x", ScheduledDate: "2026-03-20", StartTime: "14:00", Priority: "asap"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ScheduleMeeting(context.Background(), user.ID, tt.params)
			var verr *ValidationError
			if err == nil || !errors.As(err, &verr) {
				t.Errorf("error = %v, want ValidationError", err)
			}
		})
	}

	if countRows(t, db, "tasks") != 0 {
		t.Error("rejected input must not write rows")
	}
}

func TestAddCollaborators(t *testing.T) {
	cal := &fakeCalendar{}
	svc, db := newTestService(t, cal, nil)
	owner := createUser(t, db, "asha", "asha@example.com")
	friend := createUser(t, db, "vik", "vik@example.com")
	connectGoogle(t, db, owner.ID)

	events := store.NewEventStore(db)
	event, err := events.Create(nil, owner.ID, nil, nil, nil, nil, "", model.EventTypeMeeting)
	if err != nil {
		t.Fatal(err)
	}
	if err := events.SetGoogleRef(event.EventID, "g-ev"); err != nil {
		t.Fatal(err)
	}

	result, err := svc.AddCollaborators(context.Background(), owner.ID, event.EventID,
		[]int64{friend.ID}, []string{"guest@external.example"})
	if err != nil {
		t.Fatalf("add collaborators: %v", err)
	}

	if result.AddedCount != 2 {
		t.Errorf("added count = %d", result.AddedCount)
	}
	if !result.GoogleSynced {
		t.Error("attendee push should have synced")
	}

	// Only the known user lands in the collaborator table; the outsider is
	// push-only.
	if countRows(t, db, "event_collaborators") != 1 {
		t.Errorf("collaborator rows = %d, want 1", countRows(t, db, "event_collaborators"))
	}

	outsider := result.Collaborators[1]
	if outsider.UserID != 0 || outsider.Name != "guest" {
		t.Errorf("outsider = %+v", outsider)
	}

	if cal.lastQuery.Get("sendUpdates") != "all" {
		t.Errorf("sendUpdates = %q", cal.lastQuery.Get("sendUpdates"))
	}
	if len(cal.lastEvent.Attendees) != 2 {
		t.Errorf("pushed attendees = %+v", cal.lastEvent.Attendees)
	}
}

func TestAddCollaboratorsOwnership(t *testing.T) {
	svc, db := newTestService(t, nil, nil)
	owner := createUser(t, db, "asha", "asha@example.com")
	intruder := createUser(t, db, "zed", "zed@example.com")

	event, err := store.NewEventStore(db).Create(nil, owner.ID, nil, nil, nil, nil, "", model.EventTypeMeeting)
	if err != nil {
		t.Fatal(err)
	}

	_, err = svc.AddCollaborators(context.Background(), intruder.ID, event.EventID, nil, []string{"x@example.com"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestGenerateMeetingLinkExistingCode(t *testing.T) {
	svc, db := newTestService(t, nil, nil)
	user := createUser(t, db, "asha", "asha@example.com")
	event, err := store.NewEventStore(db).Create(nil, user.ID, nil, nil, nil, nil, "", model.EventTypeMeeting)
	if err != nil {
		t.Fatal(err)
	}

	result, err := svc.GenerateMeetingLink(context.Background(), user.ID, event.EventID, "abc-defg-hij")
	if err != nil {
		t.Fatalf("attach code: %v", err)
	}
	if result.MeetingURL != "https://meet.google.com/abc-defg-hij" || result.Platform != model.PlatformCustom {
		t.Errorf("result = %+v", result)
	}

	// A full URL is kept as-is with the code taken from the last segment.
	result, err = svc.GenerateMeetingLink(context.Background(), user.ID, event.EventID, "https://zoom.example.com/j/99887766")
	if err != nil {
		t.Fatal(err)
	}
	if result.MeetingURL != "https://zoom.example.com/j/99887766" || result.MeetingCode != "99887766" {
		t.Errorf("result = %+v", result)
	}
}

func TestGenerateMeetingLinkRequiresMirroredEvent(t *testing.T) {
	svc, db := newTestService(t, nil, nil)
	user := createUser(t, db, "asha", "asha@example.com")
	connectGoogle(t, db, user.ID)
	event, err := store.NewEventStore(db).Create(nil, user.ID, nil, nil, nil, nil, "", model.EventTypeMeeting)
	if err != nil {
		t.Fatal(err)
	}

	_, err = svc.GenerateMeetingLink(context.Background(), user.ID, event.EventID, "")
	if !errors.Is(err, ErrNotSynced) {
		t.Errorf("error = %v, want ErrNotSynced", err)
	}
}

func TestGenerateMeetingLinkProvisions(t *testing.T) {
	cal := &fakeCalendar{}
	svc, db := newTestService(t, cal, nil)
	user := createUser(t, db, "asha", "asha@example.com")
	connectGoogle(t, db, user.ID)

	events := store.NewEventStore(db)
	event, err := events.Create(nil, user.ID, nil, nil, nil, nil, "", model.EventTypeMeeting)
	if err != nil {
		t.Fatal(err)
	}
	if err := events.SetGoogleRef(event.EventID, "g-ev"); err != nil {
		t.Fatal(err)
	}

	result, err := svc.GenerateMeetingLink(context.Background(), user.ID, event.EventID, "")
	if err != nil {
		t.Fatalf("provision link: %v", err)
	}
	if result.Platform != model.PlatformGoogleMeet || result.MeetingCode != "abc-defg-hij" {
		t.Errorf("result = %+v", result)
	}
	if cal.lastQuery.Get("conferenceDataVersion") != "1" {
		t.Errorf("conferenceDataVersion = %q", cal.lastQuery.Get("conferenceDataVersion"))
	}

	link, err := events.GetMeetingLink(event.EventID)
	if err != nil || link == nil {
		t.Fatal("link row missing")
	}
	if link.MeetingURL != "https://meet.google.com/abc-defg-hij" {
		t.Errorf("persisted url = %q", link.MeetingURL)
	}
}

func TestGetCalendarEvents(t *testing.T) {
	svc, db := newTestService(t, nil, nil)
	user := createUser(t, db, "asha", "asha@example.com")

	tasks := store.NewTaskStore(db)
	events := store.NewEventStore(db)
	day := temporal.NewDate(2026, time.March, 20)

	task, err := tasks.Create(user.ID, "design review", "walk through mocks", model.StatusTask,
		model.PriorityMedium, "work", &day, &day,
		timeOfDayPtr(14, 0), timeOfDayPtr(16, 0))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := events.Create(&task.TaskID, user.ID, timeOfDayPtr(14, 0), timeOfDayPtr(16, 0),
		&day, &day, "", model.EventTypeTask); err != nil {
		t.Fatal(err)
	}

	// Overnight meeting whose end instant falls on the next day.
	if _, err := events.Create(nil, user.ID, timeOfDayPtr(23, 0), timeOfDayPtr(1, 0),
		&day, &day, "bridge call", model.EventTypeMeeting); err != nil {
		t.Fatal(err)
	}

	result, err := svc.GetCalendarEvents(context.Background(), user.ID, "2026-03-20", "2026-03-27", 0)
	if err != nil {
		t.Fatalf("get events: %v", err)
	}
	if result.Count != 2 {
		t.Fatalf("count = %d", result.Count)
	}

	first := result.Events[0]
	if first.Title != "design review" || first.StartTime != "2026-03-20T14:00:00" || first.EndTime != "2026-03-20T16:00:00" {
		t.Errorf("first event = %+v", first)
	}
	if first.Description != "walk through mocks" {
		t.Errorf("description = %q, want the backing task's", first.Description)
	}

	second := result.Events[1]
	if second.EndTime != "2026-03-21T01:00:00" {
		t.Errorf("overnight end = %q, want next day", second.EndTime)
	}
}

func TestCompleteTask(t *testing.T) {
	svc, db := newTestService(t, nil, nil)
	owner := createUser(t, db, "asha", "asha@example.com")
	intruder := createUser(t, db, "zed", "zed@example.com")

	tasks := store.NewTaskStore(db)
	task, err := tasks.Create(owner.ID, "ship it", "", model.StatusTask, model.PriorityMedium, "general", nil, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.CompleteTask(context.Background(), intruder.ID, task.TaskID); !errors.Is(err, ErrNotFound) {
		t.Errorf("foreign completion error = %v, want ErrNotFound", err)
	}

	if err := svc.CompleteTask(context.Background(), owner.ID, task.TaskID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	got, err := tasks.GetByID(task.TaskID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.StatusCompleted {
		t.Errorf("status = %s", got.Status)
	}
}

func timeOfDayPtr(hour, minute int) *temporal.TimeOfDay {
	tod := temporal.NewTimeOfDay(hour, minute, 0)
	return &tod
}
