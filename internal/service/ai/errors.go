package ai

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/zhouzirui/implantai/backend/internal/config"
)

// Reason classifies why a send failed.
type Reason string

const (
	ReasonMissingCredential  Reason = "missing_credential"
	ReasonRateLimited        Reason = "rate_limited"
	ReasonBadRequest         Reason = "bad_request"
	ReasonServiceUnavailable Reason = "service_unavailable"
	ReasonUnknown            Reason = "unknown"
)

// TransportError is the only error kind Send returns for remote failures.
type TransportError struct {
	Reason Reason
	Err    error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// UserMessage renders the failure as markdown suitable for a failure turn.
func (e *TransportError) UserMessage() string {
	switch e.Reason {
	case ReasonMissingCredential:
		return "⚠️ **Configuration Error**\n\nThe model service credential is not configured. Set `ARK_API_KEY` (or `ARK_ACCESS_KEY`/`ARK_SECRET_KEY`) and restart the server."
	case ReasonRateLimited:
		return "⚠️ **Rate Limit Reached**\n\nThe model service quota is exhausted. Wait a moment and resend your message."
	case ReasonBadRequest:
		return "⚠️ **Request Rejected**\n\nThe model service could not process this request. Check the attached images and try again."
	case ReasonServiceUnavailable:
		return "⚠️ **Service Unavailable**\n\nThe model service is temporarily unavailable. Please try again shortly."
	default:
		detail := "unknown error"
		if e.Err != nil {
			detail = e.Err.Error()
		}
		return "⚠️ **Unexpected Error**\n\n" + detail
	}
}

var (
	// Matches the status phrasing of the Ark SDK ("status code: 429",
	// "StatusCode=503") and of OpenAI compatible gateways ("Error code: 400").
	statusPattern = regexp.MustCompile(`(?:status\s*code|error\s*code)\s*[:=]\s*(400|429|500|502|503|504)\b`)

	rateLimitHints   = []string{"ratelimit", "rate limit", "too many requests", "quota", "resource_exhausted", "serveroverloaded"}
	badRequestHints  = []string{"invalidparameter", "invalid parameter", "bad request", "invalid_argument", "invalidimage"}
	unavailableHints = []string{"serviceunavailable", "service unavailable", "internalserviceerror", "bad gateway", "gateway timeout", "connection refused"}
)

// Classify maps an arbitrary send failure to a TransportError. An error that
// is already classified is returned as is.
func Classify(err error) *TransportError {
	if err == nil {
		return nil
	}

	var te *TransportError
	if errors.As(err, &te) {
		return te
	}

	if errors.Is(err, config.ErrMissingCredential) {
		return &TransportError{Reason: ReasonMissingCredential, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TransportError{Reason: ReasonServiceUnavailable, Err: err}
	}

	message := strings.ToLower(err.Error())

	// 状态码优先于关键字
	if match := statusPattern.FindStringSubmatch(message); match != nil {
		switch match[1] {
		case "429":
			return &TransportError{Reason: ReasonRateLimited, Err: err}
		case "400":
			return &TransportError{Reason: ReasonBadRequest, Err: err}
		default:
			return &TransportError{Reason: ReasonServiceUnavailable, Err: err}
		}
	}

	switch {
	case containsAny(message, rateLimitHints):
		return &TransportError{Reason: ReasonRateLimited, Err: err}
	case containsAny(message, badRequestHints):
		return &TransportError{Reason: ReasonBadRequest, Err: err}
	case containsAny(message, unavailableHints):
		return &TransportError{Reason: ReasonServiceUnavailable, Err: err}
	}

	return &TransportError{Reason: ReasonUnknown, Err: err}
}

func containsAny(s string, hints []string) bool {
	for _, hint := range hints {
		if strings.Contains(s, hint) {
			return true
		}
	}
	return false
}
