package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/karanmehta/agenda/internal/schedule"
	ws "github.com/karanmehta/agenda/internal/websocket"
)

// ScheduleHandler adapts HTTP requests to the scheduling engine and pushes
// change notifications to connected clients after each mutation.
type ScheduleHandler struct {
	svc    *schedule.Service
	hub    *ws.Hub
	logger *slog.Logger
}

func NewScheduleHandler(svc *schedule.Service, hub *ws.Hub, logger *slog.Logger) *ScheduleHandler {
	return &ScheduleHandler{svc: svc, hub: hub, logger: logger}
}

type conflictRequest struct {
	userRef
	schedule.ConflictParams
}

func (h *ScheduleHandler) CheckConflicts(w http.ResponseWriter, r *http.Request) {
	var req conflictRequest
	if !decodeBody(w, r, &req) {
		return
	}

	report, err := h.svc.CheckConflicts(r.Context(), req.UserID, req.ConflictParams)
	if err != nil {
		h.logger.Error("check conflicts", "user_id", req.UserID, "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type taskRequest struct {
	userRef
	schedule.TaskParams
}

func (h *ScheduleHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.svc.AddTaskToCalendar(r.Context(), req.UserID, req.TaskParams)
	if err != nil {
		h.logger.Error("create task", "user_id", req.UserID, "error", err)
		writeError(w, err)
		return
	}

	h.hub.Notify(req.UserID, ws.NewMessage("task", "created", req.UserID, result.TaskID, map[string]any{
		"event_id": result.EventID,
		"synced":   result.GoogleSynced,
	}))
	writeJSON(w, http.StatusCreated, result)
}

func (h *ScheduleHandler) CreateTodo(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.svc.SaveTodoOnly(r.Context(), req.UserID, req.TaskParams)
	if err != nil {
		h.logger.Error("create todo", "user_id", req.UserID, "error", err)
		writeError(w, err)
		return
	}

	h.hub.Notify(req.UserID, ws.NewMessage("todo", "created", req.UserID, result.TaskID, nil))
	writeJSON(w, http.StatusCreated, result)
}

type meetingRequest struct {
	userRef
	schedule.MeetingParams
}

func (h *ScheduleHandler) ScheduleMeeting(w http.ResponseWriter, r *http.Request) {
	var req meetingRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.svc.ScheduleMeeting(r.Context(), req.UserID, req.MeetingParams)
	if err != nil {
		h.logger.Error("schedule meeting", "user_id", req.UserID, "error", err)
		writeError(w, err)
		return
	}

	h.hub.Notify(req.UserID, ws.NewMessage("meeting", "scheduled", req.UserID, result.EventID, map[string]any{
		"task_id": result.TaskID,
		"synced":  result.Sync.Synced(),
	}))
	writeJSON(w, http.StatusCreated, result)
}

type linkRequest struct {
	userRef
	MeetingCode string `json:"meeting_code,omitempty"`
}

func (h *ScheduleHandler) GenerateLink(w http.ResponseWriter, r *http.Request) {
	eventID, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	var req linkRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.svc.GenerateMeetingLink(r.Context(), req.UserID, eventID, req.MeetingCode)
	if err != nil {
		h.logger.Error("generate meeting link", "event_id", eventID, "error", err)
		writeError(w, err)
		return
	}

	h.hub.Notify(req.UserID, ws.NewMessage("event", "link_generated", req.UserID, eventID, map[string]any{
		"meeting_url": result.MeetingURL,
	}))
	writeJSON(w, http.StatusOK, result)
}

type collaboratorRequest struct {
	userRef
	CollaboratorIDs    []int64  `json:"collaborator_ids,omitempty"`
	CollaboratorEmails []string `json:"collaborator_emails,omitempty"`
}

func (h *ScheduleHandler) AddCollaborators(w http.ResponseWriter, r *http.Request) {
	eventID, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	var req collaboratorRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.svc.AddCollaborators(r.Context(), req.UserID, eventID, req.CollaboratorIDs, req.CollaboratorEmails)
	if err != nil {
		h.logger.Error("add collaborators", "event_id", eventID, "error", err)
		writeError(w, err)
		return
	}

	h.hub.Notify(req.UserID, ws.NewMessage("event", "collaborators_added", req.UserID, eventID, map[string]any{
		"added_count": result.AddedCount,
	}))
	writeJSON(w, http.StatusOK, result)
}

func (h *ScheduleHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	userID, ok := queryUserID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
		return
	}
	start := r.URL.Query().Get("start")
	end := r.URL.Query().Get("end")
	if start == "" || end == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "start and end query parameters are required"})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	result, err := h.svc.GetCalendarEvents(r.Context(), userID, start, end, limit)
	if err != nil {
		h.logger.Error("list events", "user_id", userID, "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type replanRequest struct {
	userRef
}

func (h *ScheduleHandler) Replan(w http.ResponseWriter, r *http.Request) {
	var req replanRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.svc.ReplanToday(r.Context(), req.UserID)
	if err != nil {
		h.logger.Error("replan day", "user_id", req.UserID, "error", err)
		writeError(w, err)
		return
	}

	if result.Generated && len(result.AppliedChanges) > 0 {
		h.hub.Notify(req.UserID, ws.NewMessage("schedule", "replanned", req.UserID, 0, map[string]any{
			"applied": len(result.AppliedChanges),
		}))
	}
	writeJSON(w, http.StatusOK, result)
}

type completeRequest struct {
	userRef
}

func (h *ScheduleHandler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	taskID, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	var req completeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.svc.CompleteTask(r.Context(), req.UserID, taskID); err != nil {
		h.logger.Error("complete task", "task_id", taskID, "error", err)
		writeError(w, err)
		return
	}

	h.hub.Notify(req.UserID, ws.NewMessage("task", "completed", req.UserID, taskID, nil))
	writeJSON(w, http.StatusOK, map[string]any{"task_id": taskID, "status": "completed"})
}

func (h *ScheduleHandler) SearchCollaborators(w http.ResponseWriter, r *http.Request) {
	userID, ok := queryUserID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
		return
	}
	query := r.URL.Query().Get("q")
	if query == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "q is required"})
		return
	}

	users, err := h.svc.SearchCollaborators(r.Context(), userID, query, r.URL.Query().Get("type"))
	if err != nil {
		h.logger.Error("search collaborators", "user_id", userID, "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(users), "users": users})
}
