package gcal

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// APIError is a non-2xx response from the calendar service, carrying the
// machine-readable reason code so callers classify by kind rather than by
// message text.
type APIError struct {
	StatusCode int
	Reason     string
	Message    string
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("calendar API: %d %s: %s", e.StatusCode, e.Reason, e.Message)
	}
	return fmt.Sprintf("calendar API: status %d: %s", e.StatusCode, e.Message)
}

// IsAuthExpired reports whether the error means the stored grant is no longer
// usable and the user must re-authorize.
func IsAuthExpired(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Reason {
	case "invalid_grant", "authError", "expired":
		return true
	}
	return apiErr.StatusCode == http.StatusUnauthorized
}

type errorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
		Errors  []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}

func parseAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return apiErr
	}

	var body errorBody
	if json.Unmarshal(data, &body) == nil {
		apiErr.Message = body.Error.Message
		if len(body.Error.Errors) > 0 {
			apiErr.Reason = body.Error.Errors[0].Reason
		}
	}

	// Token endpoints report {"error": "invalid_grant", ...} with a string
	// error field; a second decode pass catches that shape.
	if apiErr.Reason == "" {
		var flat struct {
			Error       string `json:"error"`
			Description string `json:"error_description"`
		}
		if json.Unmarshal(data, &flat) == nil && flat.Error != "" {
			apiErr.Reason = flat.Error
			if apiErr.Message == "" {
				apiErr.Message = flat.Description
			}
		}
	}

	return apiErr
}
