package schedule

import (
	"context"
	"errors"
	"testing"

	"github.com/karanmehta/agenda/internal/model"
	"github.com/karanmehta/agenda/internal/oracle"
	"github.com/karanmehta/agenda/internal/store"
	"github.com/karanmehta/agenda/internal/temporal"
)

func seedToday(t *testing.T, tasks *store.TaskStore, userID int64, title string, status model.Status, start, end *temporal.TimeOfDay) *model.ScheduleItem {
	t.Helper()
	today := temporal.DateOf(testNow)
	task, err := tasks.Create(userID, title, "", status, model.PriorityMedium, "general", &today, &today, start, end)
	if err != nil {
		t.Fatalf("seed %s: %v", title, err)
	}
	return task
}

func TestReplanTodayValidatesPlacements(t *testing.T) {
	planner := &stubPlanner{}
	svc, db := newTestService(t, nil, planner)
	user := createUser(t, db, "asha", "asha@example.com")
	tasks := store.NewTaskStore(db)

	meeting := seedToday(t, tasks, user.ID, "standup", model.StatusMeeting,
		timeOfDayPtr(10, 0), timeOfDayPtr(11, 0))
	notes := seedToday(t, tasks, user.ID, "write notes", model.StatusTodo, nil, nil)
	review := seedToday(t, tasks, user.ID, "review PRs", model.StatusTask, nil, nil)
	inbox := seedToday(t, tasks, user.ID, "inbox zero", model.StatusTask, nil, nil)

	planner.placements = []oracle.Placement{
		// Valid: lands before the meeting.
		{TaskID: notes.TaskID, StartTime: "09:00:00", EndTime: "10:00:00", Reason: "morning focus"},
		// Collides with the fixed meeting.
		{TaskID: review.TaskID, StartTime: "10:30:00", EndTime: "11:30:00"},
		// Malformed clock format.
		{TaskID: inbox.TaskID, StartTime: "9:00", EndTime: "10:00:00"},
		// The fixed meeting itself must never move.
		{TaskID: meeting.TaskID, StartTime: "15:00:00", EndTime: "16:00:00"},
		// Unknown item.
		{TaskID: 9999, StartTime: "12:00:00", EndTime: "13:00:00"},
	}

	result, err := svc.ReplanToday(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("replan: %v", err)
	}

	if !result.Generated {
		t.Fatal("expected a generated plan")
	}
	if len(result.AppliedChanges) != 1 {
		t.Fatalf("applied = %+v", result.AppliedChanges)
	}
	if result.AppliedChanges[0].TaskID != notes.TaskID || result.AppliedChanges[0].Reason != "morning focus" {
		t.Errorf("applied change = %+v", result.AppliedChanges[0])
	}
	if result.DroppedCount != 4 {
		t.Errorf("dropped = %d (%v)", result.DroppedCount, result.DroppedReasons)
	}

	// The accepted todo is promoted and pinned to the new window.
	got, err := tasks.GetByID(notes.TaskID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.StatusTask {
		t.Errorf("status = %s, want promotion to task", got.Status)
	}
	if got.StartTime == nil || *got.StartTime != temporal.NewTimeOfDay(9, 0, 0) {
		t.Errorf("start = %v", got.StartTime)
	}

	// Rejected items keep their previous state.
	got, err = tasks.GetByID(review.TaskID)
	if err != nil {
		t.Fatal(err)
	}
	if got.StartTime != nil {
		t.Errorf("rejected item gained a window: %v", got.StartTime)
	}

	// The fixed meeting is untouched.
	got, err = tasks.GetByID(meeting.TaskID)
	if err != nil {
		t.Fatal(err)
	}
	if *got.StartTime != temporal.NewTimeOfDay(10, 0, 0) {
		t.Errorf("meeting moved to %s", got.StartTime)
	}
}

func TestReplanTodayUntimedMeetingStaysMeeting(t *testing.T) {
	planner := &stubPlanner{}
	svc, db := newTestService(t, nil, planner)
	user := createUser(t, db, "asha", "asha@example.com")
	tasks := store.NewTaskStore(db)

	meeting := seedToday(t, tasks, user.ID, "sync, time TBD", model.StatusMeeting, nil, nil)
	planner.placements = []oracle.Placement{
		{TaskID: meeting.TaskID, StartTime: "13:00:00", EndTime: "14:00:00"},
	}

	result, err := svc.ReplanToday(context.Background(), user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.AppliedChanges) != 0 || result.DroppedCount != 1 {
		t.Errorf("meeting without a window must not be placed: %+v", result)
	}

	got, err := tasks.GetByID(meeting.TaskID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.StatusMeeting {
		t.Errorf("status = %s, want the meeting untouched", got.Status)
	}
	if got.StartTime != nil {
		t.Errorf("meeting gained a window: %v", got.StartTime)
	}
}

func TestReplanTodayRejectsSelfOverlap(t *testing.T) {
	planner := &stubPlanner{}
	svc, db := newTestService(t, nil, planner)
	user := createUser(t, db, "asha", "asha@example.com")
	tasks := store.NewTaskStore(db)

	a := seedToday(t, tasks, user.ID, "first", model.StatusTask, nil, nil)
	b := seedToday(t, tasks, user.ID, "second", model.StatusTask, nil, nil)

	planner.placements = []oracle.Placement{
		{TaskID: a.TaskID, StartTime: "09:00:00", EndTime: "10:00:00"},
		{TaskID: b.TaskID, StartTime: "09:30:00", EndTime: "10:30:00"},
	}

	result, err := svc.ReplanToday(context.Background(), user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.AppliedChanges) != 1 || result.DroppedCount != 1 {
		t.Errorf("applied = %d dropped = %d, want the overlapping second placement dropped",
			len(result.AppliedChanges), result.DroppedCount)
	}
}

func TestReplanTodayRejectsInvertedWindow(t *testing.T) {
	planner := &stubPlanner{}
	svc, db := newTestService(t, nil, planner)
	user := createUser(t, db, "asha", "asha@example.com")
	tasks := store.NewTaskStore(db)

	task := seedToday(t, tasks, user.ID, "flexible", model.StatusTask, nil, nil)
	planner.placements = []oracle.Placement{
		{TaskID: task.TaskID, StartTime: "10:00:00", EndTime: "10:00:00"},
	}

	result, err := svc.ReplanToday(context.Background(), user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.AppliedChanges) != 0 || result.DroppedCount != 1 {
		t.Errorf("zero-length window must be dropped: %+v", result)
	}
}

func TestReplanTodayPlannerFailureLeavesDayUntouched(t *testing.T) {
	planner := &stubPlanner{err: errors.New("model overloaded")}
	svc, db := newTestService(t, nil, planner)
	user := createUser(t, db, "asha", "asha@example.com")
	tasks := store.NewTaskStore(db)

	task := seedToday(t, tasks, user.ID, "flexible", model.StatusTodo, nil, nil)

	result, err := svc.ReplanToday(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("planner failure must not propagate: %v", err)
	}
	if result.Generated {
		t.Error("no plan should be generated")
	}

	got, err := tasks.GetByID(task.TaskID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.StatusTodo || got.StartTime != nil {
		t.Errorf("day changed despite planner failure: %+v", got)
	}
}

func TestReplanTodayUnparseableProposal(t *testing.T) {
	planner := &stubPlanner{err: oracle.ErrUnparseable}
	svc, db := newTestService(t, nil, planner)
	user := createUser(t, db, "asha", "asha@example.com")
	seedToday(t, store.NewTaskStore(db), user.ID, "flexible", model.StatusTask, nil, nil)

	result, err := svc.ReplanToday(context.Background(), user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if result.Generated {
		t.Error("unparseable proposal must not generate a plan")
	}
}

func TestReplanTodayNothingToPlan(t *testing.T) {
	planner := &stubPlanner{}
	svc, db := newTestService(t, nil, planner)
	user := createUser(t, db, "asha", "asha@example.com")

	result, err := svc.ReplanToday(context.Background(), user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if result.Generated {
		t.Error("empty day should not generate a plan")
	}
	if planner.gotItems != nil {
		t.Error("planner must not be called for an empty day")
	}
}

func TestReplanTodaySendsAllItemsToPlanner(t *testing.T) {
	planner := &stubPlanner{}
	svc, db := newTestService(t, nil, planner)
	user := createUser(t, db, "asha", "asha@example.com")
	tasks := store.NewTaskStore(db)

	seedToday(t, tasks, user.ID, "standup", model.StatusMeeting, timeOfDayPtr(10, 0), timeOfDayPtr(11, 0))
	seedToday(t, tasks, user.ID, "flexible", model.StatusTask, nil, nil)

	if _, err := svc.ReplanToday(context.Background(), user.ID); err != nil {
		t.Fatal(err)
	}

	// Fixed items are part of the prompt so the planner can route around
	// them, even though they can never move.
	if len(planner.gotItems) != 2 {
		t.Errorf("planner saw %d items, want 2", len(planner.gotItems))
	}
}
