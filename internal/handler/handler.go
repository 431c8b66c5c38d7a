// Package handler exposes the scheduling engine over JSON HTTP endpoints.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/karanmehta/agenda/internal/schedule"
	"github.com/karanmehta/agenda/internal/temporal"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	var verr *schedule.ValidationError
	switch {
	case errors.As(err, &verr), errors.Is(err, temporal.ErrInvalidTemporalInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, schedule.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, schedule.ErrNotConnected), errors.Is(err, schedule.ErrNotSynced):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func parseIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

// decodeBody decodes a JSON body into v and validates the embedded user id.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{ userID() int64 }) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return false
	}
	if v.userID() <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
		return false
	}
	return true
}

// userRef is embedded in every mutating request body. There is no ambient
// session; callers always say who is acting.
type userRef struct {
	UserID int64 `json:"user_id"`
}

func (u userRef) userID() int64 { return u.UserID }

func queryUserID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	return id, err == nil && id > 0
}
