// Package gcal is a thin client for the slice of the Google Calendar v3 API
// the scheduling engine uses: inserting events, fetching them back, and
// updating attendees or conference data. Error classification happens here so
// callers never inspect message text.
package gcal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const defaultBaseURL = "https://www.googleapis.com/calendar/v3"

// Config holds calendar client configuration.
type Config struct {
	BaseURL  string
	Timezone string // single fixed timezone label applied to event payloads
	Timeout  time.Duration
}

// Client calls the external calendar service on behalf of one request at a
// time; the bearer token is passed per call because each user holds their
// own credentials.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a calendar client. Every call is bounded by the
// configured timeout so a slow mirror can never hang a local operation.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Asia/Kolkata"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// EventTime is a zoned instant in the wire format the calendar API expects.
type EventTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

// Attendee is an invitee on an external event.
type Attendee struct {
	Email string `json:"email"`
}

// ConferenceSolutionKey selects the conference provider.
type ConferenceSolutionKey struct {
	Type string `json:"type"`
}

// CreateRequest asks the calendar service to provision a conference.
type CreateRequest struct {
	RequestID             string                `json:"requestId"`
	ConferenceSolutionKey ConferenceSolutionKey `json:"conferenceSolutionKey"`
}

// EntryPoint is one way of joining a provisioned conference.
type EntryPoint struct {
	EntryPointType string `json:"entryPointType"`
	URI            string `json:"uri"`
}

// ConferenceData carries either a provisioning request or the provisioned
// conference returned by the service.
type ConferenceData struct {
	CreateRequest *CreateRequest `json:"createRequest,omitempty"`
	ConferenceID  string         `json:"conferenceId,omitempty"`
	EntryPoints   []EntryPoint   `json:"entryPoints,omitempty"`
}

// Event is the external calendar event payload.
type Event struct {
	ID             string          `json:"id,omitempty"`
	Summary        string          `json:"summary,omitempty"`
	Description    string          `json:"description,omitempty"`
	Location       string          `json:"location,omitempty"`
	ColorID        string          `json:"colorId,omitempty"`
	Start          *EventTime      `json:"start,omitempty"`
	End            *EventTime      `json:"end,omitempty"`
	Attendees      []Attendee      `json:"attendees,omitempty"`
	ConferenceData *ConferenceData `json:"conferenceData,omitempty"`
}

// VideoEntry returns the conference join URL and code, if the event carries a
// provisioned video conference.
func (e *Event) VideoEntry() (meetingURL, meetingCode string, ok bool) {
	if e.ConferenceData == nil {
		return "", "", false
	}
	for _, entry := range e.ConferenceData.EntryPoints {
		if entry.EntryPointType == "video" {
			return entry.URI, e.ConferenceData.ConferenceID, true
		}
	}
	return "", "", false
}

// At renders an instant with the client's fixed timezone label.
func (c *Client) At(t time.Time) *EventTime {
	return &EventTime{DateTime: t.Format("2006-01-02T15:04:05"), TimeZone: c.cfg.Timezone}
}

// NewMeetRequest builds a conference provisioning request with a fresh
// request id, so retried pushes cannot collide.
func NewMeetRequest() *ConferenceData {
	return &ConferenceData{
		CreateRequest: &CreateRequest{
			RequestID:             "meet-" + uuid.NewString(),
			ConferenceSolutionKey: ConferenceSolutionKey{Type: "hangoutsMeet"},
		},
	}
}

// UpdateOptions tune an event update call.
type UpdateOptions struct {
	SendUpdates           string // "all" to email attendees
	ConferenceDataVersion int
}

// InsertEvent creates an event on the user's primary calendar.
func (c *Client) InsertEvent(ctx context.Context, token string, ev *Event, conferenceDataVersion int) (*Event, error) {
	q := url.Values{}
	if conferenceDataVersion > 0 {
		q.Set("conferenceDataVersion", strconv.Itoa(conferenceDataVersion))
	}
	return c.do(ctx, token, http.MethodPost, "/calendars/primary/events", q, ev)
}

// GetEvent fetches an event by its external id.
func (c *Client) GetEvent(ctx context.Context, token, eventID string) (*Event, error) {
	return c.do(ctx, token, http.MethodGet, "/calendars/primary/events/"+url.PathEscape(eventID), nil, nil)
}

// UpdateEvent replaces an event by its external id.
func (c *Client) UpdateEvent(ctx context.Context, token, eventID string, ev *Event, opts UpdateOptions) (*Event, error) {
	q := url.Values{}
	if opts.SendUpdates != "" {
		q.Set("sendUpdates", opts.SendUpdates)
	}
	if opts.ConferenceDataVersion > 0 {
		q.Set("conferenceDataVersion", strconv.Itoa(opts.ConferenceDataVersion))
	}
	return c.do(ctx, token, http.MethodPut, "/calendars/primary/events/"+url.PathEscape(eventID), q, ev)
}

func (c *Client) do(ctx context.Context, token, method, path string, query url.Values, body any) (*Event, error) {
	endpoint := c.cfg.BaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal event: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calendar request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, parseAPIError(resp)
	}

	var ev Event
	if err := json.NewDecoder(resp.Body).Decode(&ev); err != nil {
		return nil, fmt.Errorf("decode calendar response: %w", err)
	}
	return &ev, nil
}
