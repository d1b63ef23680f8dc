package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"vqagen/models"
)

// quotaMarkers are the 400-level messages that actually mean quota
// exhaustion. The API reports daily-quota hits this way instead of a 429.
var quotaMarkers = []string{
	"quota exceeded",
	"resource has been exhausted",
	"resource_exhausted",
	"rate limit",
}

// classifyHTTPError maps an HTTP failure onto the dispatch error kinds.
func classifyHTTPError(statusCode int, body []byte) *models.APIError {
	msg := errorMessage(body)
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return models.NewAPIError(models.ErrKindAuthFailed, statusCode, msg)
	case statusCode == http.StatusTooManyRequests:
		return models.NewAPIError(models.ErrKindRateLimited, statusCode, msg)
	case statusCode == http.StatusBadRequest && mentionsQuota(msg):
		return models.NewAPIError(models.ErrKindRateLimited, statusCode, msg)
	default:
		return models.NewAPIError(models.ErrKindOther, statusCode, msg)
	}
}

func mentionsQuota(msg string) bool {
	lower := strings.ToLower(msg)
	for _, marker := range quotaMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// errorMessage pulls the human-readable message out of an error body.
func errorMessage(body []byte) string {
	var parsed errorResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return "empty error body"
	}
	if len(trimmed) > 512 {
		trimmed = trimmed[:512]
	}
	return trimmed
}

// wrapTransportError keeps timeout classification visible to the dispatcher.
// Run-level cancellation passes through untouched so it is not mistaken for a
// call failure.
func wrapTransportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return models.NewAPIError(models.ErrKindTimeout, 0, err.Error())
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return models.NewAPIError(models.ErrKindTimeout, 0, err.Error())
	}
	return models.NewAPIError(models.ErrKindOther, 0, err.Error())
}
