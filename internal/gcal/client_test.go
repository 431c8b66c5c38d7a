package gcal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAtUsesConfiguredTimezone(t *testing.T) {
	c := NewClient(Config{Timezone: "Asia/Kolkata"})
	got := c.At(time.Date(2026, time.March, 15, 14, 30, 0, 0, time.UTC))
	if got.DateTime != "2026-03-15T14:30:00" {
		t.Errorf("DateTime = %q", got.DateTime)
	}
	if got.TimeZone != "Asia/Kolkata" {
		t.Errorf("TimeZone = %q", got.TimeZone)
	}
}

func TestNewMeetRequestUniqueIDs(t *testing.T) {
	a := NewMeetRequest()
	b := NewMeetRequest()
	if a.CreateRequest == nil || b.CreateRequest == nil {
		t.Fatal("expected create requests")
	}
	if a.CreateRequest.RequestID == b.CreateRequest.RequestID {
		t.Error("request ids must not repeat across calls")
	}
	if a.CreateRequest.ConferenceSolutionKey.Type != "hangoutsMeet" {
		t.Errorf("solution type = %q", a.CreateRequest.ConferenceSolutionKey.Type)
	}
}

func TestVideoEntry(t *testing.T) {
	ev := &Event{
		ConferenceData: &ConferenceData{
			ConferenceID: "abc-defg-hij",
			EntryPoints: []EntryPoint{
				{EntryPointType: "phone", URI: "tel:+1-555-0100"},
				{EntryPointType: "video", URI: "https://meet.google.com/abc-defg-hij"},
			},
		},
	}

	url, code, ok := ev.VideoEntry()
	if !ok {
		t.Fatal("expected a video entry")
	}
	if url != "https://meet.google.com/abc-defg-hij" || code != "abc-defg-hij" {
		t.Errorf("entry = %q / %q", url, code)
	}

	if _, _, ok := (&Event{}).VideoEntry(); ok {
		t.Error("event without conference data has no video entry")
	}
}

func TestInsertEvent(t *testing.T) {
	var gotPath, gotAuth, gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.RawQuery
		var ev Event
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			t.Errorf("decode body: %v", err)
		}
		ev.ID = "created-1"
		json.NewEncoder(w).Encode(ev)
	}))
	defer server.Close()

	c := NewClient(Config{BaseURL: server.URL})
	ev, err := c.InsertEvent(context.Background(), "tok", &Event{Summary: "standup"}, 1)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if ev.ID != "created-1" || ev.Summary != "standup" {
		t.Errorf("event = %+v", ev)
	}
	if gotPath != "/calendars/primary/events" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("auth = %q", gotAuth)
	}
	if gotQuery != "conferenceDataVersion=1" {
		t.Errorf("query = %q", gotQuery)
	}
}

func TestUpdateEventSendUpdates(t *testing.T) {
	var gotMethod, gotPath, gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		json.NewEncoder(w).Encode(Event{ID: "ev-1"})
	}))
	defer server.Close()

	c := NewClient(Config{BaseURL: server.URL})
	_, err := c.UpdateEvent(context.Background(), "tok", "ev-1", &Event{}, UpdateOptions{SendUpdates: "all"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if gotMethod != http.MethodPut {
		t.Errorf("method = %s", gotMethod)
	}
	if gotPath != "/calendars/primary/events/ev-1" {
		t.Errorf("path = %q", gotPath)
	}
	if gotQuery != "sendUpdates=all" {
		t.Errorf("query = %q", gotQuery)
	}
}

func TestParseAPIErrorShapes(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantReason  string
		wantExpired bool
	}{
		{
			"nested google error",
			http.StatusForbidden,
			`{"error":{"code":403,"message":"Rate limit exceeded","errors":[{"reason":"rateLimitExceeded"}]}}`,
			"rateLimitExceeded",
			false,
		},
		{
			"nested auth error",
			http.StatusForbidden,
			`{"error":{"code":403,"message":"Invalid credentials","errors":[{"reason":"authError"}]}}`,
			"authError",
			true,
		},
		{
			"flat oauth error",
			http.StatusBadRequest,
			`{"error":"invalid_grant","error_description":"Token has been expired or revoked."}`,
			"invalid_grant",
			true,
		},
		{
			"unauthorized without body",
			http.StatusUnauthorized,
			`{}`,
			"",
			true,
		},
		{
			"plain server error",
			http.StatusInternalServerError,
			`boom`,
			"",
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			c := NewClient(Config{BaseURL: server.URL})
			_, err := c.GetEvent(context.Background(), "tok", "ev-1")
			if err == nil {
				t.Fatal("expected an error")
			}

			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("error type = %T", err)
			}
			if apiErr.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", apiErr.StatusCode, tt.status)
			}
			if apiErr.Reason != tt.wantReason {
				t.Errorf("reason = %q, want %q", apiErr.Reason, tt.wantReason)
			}
			if got := IsAuthExpired(err); got != tt.wantExpired {
				t.Errorf("IsAuthExpired = %v, want %v", got, tt.wantExpired)
			}
		})
	}
}

func TestIsAuthExpiredNonAPIError(t *testing.T) {
	if IsAuthExpired(errors.New("dial tcp: connection refused")) {
		t.Error("transport errors are not auth failures")
	}
}
