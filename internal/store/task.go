package store

import (
	"database/sql"
	"fmt"

	"github.com/karanmehta/agenda/internal/model"
	"github.com/karanmehta/agenda/internal/temporal"
)

type TaskStore struct {
	db *sql.DB
}

func NewTaskStore(db *sql.DB) *TaskStore {
	return &TaskStore{db: db}
}

const taskColumns = `task_id, user_id, title, description, status, priority, category,
	due_date, scheduled_date, start_time, end_time, created_at, updated_at`

func (s *TaskStore) Create(userID int64, title, description string, status model.Status, priority model.Priority, category string, dueDate, scheduledDate *temporal.Date, start, end *temporal.TimeOfDay) (*model.ScheduleItem, error) {
	result, err := s.db.Exec(
		`INSERT INTO tasks (user_id, title, description, status, priority, category,
			due_date, scheduled_date, start_time, end_time)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		userID, title, description, string(status), string(priority), category,
		dateArg(dueDate), dateArg(scheduledDate), timeArg(start), timeArg(end),
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return s.GetByID(id)
}

func (s *TaskStore) GetByID(taskID int64) (*model.ScheduleItem, error) {
	row := s.db.QueryRow(
		`SELECT `+taskColumns+` FROM tasks WHERE task_id = ?`, taskID,
	)
	item, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query task: %w", err)
	}
	return item, nil
}

// ListByScheduledDate returns every item the user has on the given day,
// timed items first in start order. This is the conflict detector's view.
func (s *TaskStore) ListByScheduledDate(userID int64, date temporal.Date) ([]model.ScheduleItem, error) {
	rows, err := s.db.Query(
		`SELECT `+taskColumns+` FROM tasks
		 WHERE user_id = ? AND scheduled_date = ?
		 ORDER BY start_time IS NULL, start_time ASC, task_id ASC`,
		userID, date,
	)
	if err != nil {
		return nil, fmt.Errorf("query tasks by date: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// ListForToday returns the items eligible for the day re-planner: everything
// scheduled for the given day plus unscheduled items, excluding completed
// ones.
func (s *TaskStore) ListForToday(userID int64, today temporal.Date) ([]model.ScheduleItem, error) {
	rows, err := s.db.Query(
		`SELECT `+taskColumns+` FROM tasks
		 WHERE user_id = ?
		   AND status != ?
		   AND (scheduled_date = ? OR scheduled_date IS NULL)
		 ORDER BY scheduled_date IS NULL,
		          CASE priority
		            WHEN 'urgent' THEN 0
		            WHEN 'high' THEN 1
		            WHEN 'medium' THEN 2
		            ELSE 3
		          END,
		          task_id ASC`,
		userID, string(model.StatusCompleted), today,
	)
	if err != nil {
		return nil, fmt.Errorf("query today's tasks: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// CountOnDate reports how many items occupy the given day, timed or not.
// The day-level suggester treats any nonzero count as "busy".
func (s *TaskStore) CountOnDate(userID int64, date temporal.Date) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM tasks WHERE user_id = ? AND scheduled_date = ?`,
		userID, date,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count tasks on date: %w", err)
	}
	return n, nil
}

// UpdateSchedule moves an item to a new window on the given day. The status
// transition (todo promoted to task) is decided by the caller.
func (s *TaskStore) UpdateSchedule(taskID int64, start, end temporal.TimeOfDay, date temporal.Date, status model.Status) error {
	_, err := s.db.Exec(
		`UPDATE tasks
		 SET start_time = ?, end_time = ?, scheduled_date = ?, status = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE task_id = ?`,
		start, end, date, string(status), taskID,
	)
	if err != nil {
		return fmt.Errorf("update task schedule: %w", err)
	}
	return nil
}

// Complete marks an item completed. The transition is one-way; nothing in
// the engine ever moves an item out of completed.
func (s *TaskStore) Complete(taskID int64) error {
	_, err := s.db.Exec(
		`UPDATE tasks SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE task_id = ?`,
		string(model.StatusCompleted), taskID,
	)
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*model.ScheduleItem, error) {
	var item model.ScheduleItem
	var status, priority string
	var due, scheduled, start, end sql.NullString

	err := row.Scan(&item.TaskID, &item.UserID, &item.Title, &item.Description,
		&status, &priority, &item.Category,
		&due, &scheduled, &start, &end, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}

	item.Status = model.Status(status)
	item.Priority = model.Priority(priority)
	if item.DueDate, err = scanDate(due); err != nil {
		return nil, fmt.Errorf("scan due_date: %w", err)
	}
	if item.ScheduledDate, err = scanDate(scheduled); err != nil {
		return nil, fmt.Errorf("scan scheduled_date: %w", err)
	}
	if item.StartTime, err = scanTime(start); err != nil {
		return nil, fmt.Errorf("scan start_time: %w", err)
	}
	if item.EndTime, err = scanTime(end); err != nil {
		return nil, fmt.Errorf("scan end_time: %w", err)
	}
	return &item, nil
}

func collectTasks(rows *sql.Rows) ([]model.ScheduleItem, error) {
	var items []model.ScheduleItem
	for rows.Next() {
		item, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}
