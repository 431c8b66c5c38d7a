package schedule

import (
	"context"
	"fmt"

	"github.com/karanmehta/agenda/internal/gcal"
	"github.com/karanmehta/agenda/internal/model"
)

// SyncState classifies the outcome of a best-effort external push.
type SyncState string

const (
	SyncStateSynced       SyncState = "synced"
	SyncStateNotConnected SyncState = "not_connected"
	SyncStateAuthExpired  SyncState = "auth_expired"
	SyncStateFailed       SyncState = "failed"
)

// SyncOutcome reports what happened on the external mirror. It is attached to
// the success response of the triggering operation and never aborts it: the
// local store is authoritative, the mirror is advisory.
type SyncOutcome struct {
	State         SyncState `json:"state"`
	GoogleEventID string    `json:"google_event_id,omitempty"`
	MeetingURL    string    `json:"meeting_url,omitempty"`
	MeetingCode   string    `json:"meeting_code,omitempty"`
	Detail        string    `json:"detail,omitempty"`
}

// Synced reports whether the external push succeeded.
func (o SyncOutcome) Synced() bool { return o.State == SyncStateSynced }

// Annotation is the user-visible sync status line. Every creation response
// carries it so the user never believes a sync happened when it did not.
func (o SyncOutcome) Annotation() string {
	switch o.State {
	case SyncStateSynced:
		return "Synced to Google Calendar."
	case SyncStateNotConnected:
		return "Google Calendar not connected: authorize your Google account to sync events."
	case SyncStateAuthExpired:
		return "Google Calendar authorization expired: re-authorize your Google account to sync events."
	default:
		if o.Detail != "" {
			return fmt.Sprintf("Google Calendar sync failed (%s); saved locally only.", o.Detail)
		}
		return "Google Calendar sync failed; saved locally only."
	}
}

func classifySyncError(err error) SyncOutcome {
	if gcal.IsAuthExpired(err) {
		return SyncOutcome{State: SyncStateAuthExpired, Detail: err.Error()}
	}
	return SyncOutcome{State: SyncStateFailed, Detail: err.Error()}
}

// syncCreate pushes a calendar event to the external mirror. The local rows
// are already committed when this runs. When the event already holds an
// external reference, the push updates that event instead of inserting a
// duplicate, which makes repeated pushes idempotent.
func (s *Service) syncCreate(ctx context.Context, event *model.CalendarEvent, ext *gcal.Event, conferenceDataVersion int) SyncOutcome {
	acct, err := s.accounts.GetByUserID(event.UserID)
	if err != nil {
		return SyncOutcome{State: SyncStateFailed, Detail: err.Error()}
	}
	if acct == nil {
		return SyncOutcome{State: SyncStateNotConnected}
	}

	var pushed *gcal.Event
	if event.GoogleEventRef != "" {
		pushed, err = s.calendar.UpdateEvent(ctx, acct.AccessToken, event.GoogleEventRef, ext, gcal.UpdateOptions{ConferenceDataVersion: conferenceDataVersion})
	} else {
		pushed, err = s.calendar.InsertEvent(ctx, acct.AccessToken, ext, conferenceDataVersion)
	}
	if err != nil {
		s.logger.Warn("calendar sync failed", "event_id", event.EventID, "error", err)
		return classifySyncError(err)
	}

	if err := s.events.SetGoogleRef(event.EventID, pushed.ID); err != nil {
		// The external event exists but the reference write-back failed;
		// report as failed so the user knows the link is not recorded.
		s.logger.Error("record google event ref", "event_id", event.EventID, "error", err)
		return SyncOutcome{State: SyncStateFailed, Detail: err.Error()}
	}

	outcome := SyncOutcome{State: SyncStateSynced, GoogleEventID: pushed.ID}
	if url, code, ok := pushed.VideoEntry(); ok {
		outcome.MeetingURL = url
		outcome.MeetingCode = code
	}
	return outcome
}

// syncUpdateAttendees appends attendees to the already-mirrored event and
// asks the service to email invitations. Without an external reference there
// is nothing to update.
func (s *Service) syncUpdateAttendees(ctx context.Context, event *model.CalendarEvent, attendees []gcal.Attendee) SyncOutcome {
	if event.GoogleEventRef == "" {
		return SyncOutcome{State: SyncStateFailed, Detail: ErrNotSynced.Error()}
	}

	acct, err := s.accounts.GetByUserID(event.UserID)
	if err != nil {
		return SyncOutcome{State: SyncStateFailed, Detail: err.Error()}
	}
	if acct == nil {
		return SyncOutcome{State: SyncStateNotConnected}
	}

	current, err := s.calendar.GetEvent(ctx, acct.AccessToken, event.GoogleEventRef)
	if err != nil {
		s.logger.Warn("fetch external event for attendee sync", "event_id", event.EventID, "error", err)
		return classifySyncError(err)
	}
	current.Attendees = append(current.Attendees, attendees...)

	if _, err := s.calendar.UpdateEvent(ctx, acct.AccessToken, event.GoogleEventRef, current, gcal.UpdateOptions{SendUpdates: "all"}); err != nil {
		s.logger.Warn("attendee sync failed", "event_id", event.EventID, "error", err)
		return classifySyncError(err)
	}
	return SyncOutcome{State: SyncStateSynced, GoogleEventID: event.GoogleEventRef}
}

// syncGenerateConferenceLink provisions a video conference on the mirrored
// event and returns the join URL and code.
func (s *Service) syncGenerateConferenceLink(ctx context.Context, event *model.CalendarEvent) (SyncOutcome, error) {
	if event.GoogleEventRef == "" {
		return SyncOutcome{State: SyncStateFailed, Detail: ErrNotSynced.Error()}, ErrNotSynced
	}

	acct, err := s.accounts.GetByUserID(event.UserID)
	if err != nil {
		return SyncOutcome{State: SyncStateFailed, Detail: err.Error()}, err
	}
	if acct == nil {
		return SyncOutcome{State: SyncStateNotConnected}, ErrNotConnected
	}

	current, err := s.calendar.GetEvent(ctx, acct.AccessToken, event.GoogleEventRef)
	if err != nil {
		return classifySyncError(err), err
	}
	current.ConferenceData = gcal.NewMeetRequest()

	updated, err := s.calendar.UpdateEvent(ctx, acct.AccessToken, event.GoogleEventRef, current, gcal.UpdateOptions{ConferenceDataVersion: 1})
	if err != nil {
		return classifySyncError(err), err
	}

	url, code, ok := updated.VideoEntry()
	if !ok {
		err := fmt.Errorf("external event has no video entry point")
		return SyncOutcome{State: SyncStateFailed, Detail: err.Error()}, err
	}
	return SyncOutcome{State: SyncStateSynced, GoogleEventID: event.GoogleEventRef, MeetingURL: url, MeetingCode: code}, nil
}
