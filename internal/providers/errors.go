package providers

import (
	"errors"
	"fmt"
	"strings"
)

type ErrorType string

const (
	ErrorQuota     ErrorType = "quota"
	ErrorRate      ErrorType = "rate"
	ErrorTransient ErrorType = "transient"
	ErrorPermanent ErrorType = "permanent"
	ErrorContext   ErrorType = "context"
	ErrorPolicy    ErrorType = "policy"
	ErrorAuth      ErrorType = "auth"
)

// StatusError carries the HTTP status of a failed provider call so
// classification does not depend on message wording alone.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s generate error %d: %s", e.Provider, e.StatusCode, e.Body)
}

func ClassifyError(err error) ErrorType {
	if err == nil {
		return ""
	}
	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode == 401 || se.StatusCode == 403:
			return ErrorAuth
		case se.StatusCode == 429:
			if strings.Contains(strings.ToLower(se.Body), "quota") {
				return ErrorQuota
			}
			return ErrorRate
		case se.StatusCode >= 500:
			return ErrorTransient
		}
	}
	e := strings.ToLower(err.Error())
	switch {
	case strings.Contains(e, "content_policy"), strings.Contains(e, "content policy"), strings.Contains(e, "safety system"), strings.Contains(e, "content_filter"):
		return ErrorPolicy
	case strings.Contains(e, "invalid api key"), strings.Contains(e, "invalid_api_key"), strings.Contains(e, "incorrect api key"), strings.Contains(e, "unauthorized"), strings.Contains(e, "key missing"):
		return ErrorAuth
	case strings.Contains(e, "quota"), strings.Contains(e, "credit"), strings.Contains(e, "insufficient_quota"):
		return ErrorQuota
	case strings.Contains(e, "rate limit"), strings.Contains(e, "rate_limit"), strings.Contains(e, "429"):
		return ErrorRate
	case strings.Contains(e, "context length"), strings.Contains(e, "too long"):
		return ErrorContext
	case strings.Contains(e, "timeout"), strings.Contains(e, "deadline"), strings.Contains(e, "temporarily"), strings.Contains(e, "unavailable"), strings.Contains(e, "connection"):
		return ErrorTransient
	default:
		return ErrorPermanent
	}
}

// Retryable is false only for policy rejections and credential failures:
// another attempt with the same input and key cannot succeed.
func Retryable(t ErrorType) bool {
	return t != ErrorPolicy && t != ErrorAuth
}
