package providers

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifyError(t *testing.T) {
	cases := map[string]ErrorType{
		"insufficient_quota":                    ErrorQuota,
		"429 too many requests":                 ErrorRate,
		"rate limit reached for gpt-4o-mini":    ErrorRate,
		"maximum context length is 8192 tokens": ErrorContext,
		"timeout":                               ErrorTransient,
		"context deadline exceeded":             ErrorTransient,
		"bad request":                           ErrorPermanent,
		"rejected by content_policy_violation":  ErrorPolicy,
		"Incorrect API key provided: sk-***":    ErrorAuth,
		"openai generate request failed: EOF x": ErrorPermanent,
	}
	for msg, want := range cases {
		if got := ClassifyError(errors.New(msg)); got != want {
			t.Fatalf("classify %q: got %s want %s", msg, got, want)
		}
	}
}

func TestClassifyStatusError(t *testing.T) {
	cases := []struct {
		err  *StatusError
		want ErrorType
	}{
		{&StatusError{Provider: "groq", StatusCode: 401, Body: "nope"}, ErrorAuth},
		{&StatusError{Provider: "groq", StatusCode: 429, Body: "slow down"}, ErrorRate},
		{&StatusError{Provider: "groq", StatusCode: 429, Body: "quota exceeded"}, ErrorQuota},
		{&StatusError{Provider: "groq", StatusCode: 503, Body: ""}, ErrorTransient},
	}
	for _, c := range cases {
		wrapped := fmt.Errorf("llm generate via groq failed: %w", c.err)
		if got := ClassifyError(wrapped); got != c.want {
			t.Fatalf("status %d: got %s want %s", c.err.StatusCode, got, c.want)
		}
	}
}

func TestRetryable(t *testing.T) {
	if Retryable(ErrorPolicy) || Retryable(ErrorAuth) {
		t.Fatalf("policy and auth errors must not be retryable")
	}
	for _, et := range []ErrorType{ErrorQuota, ErrorRate, ErrorTransient, ErrorPermanent, ErrorContext} {
		if !Retryable(et) {
			t.Fatalf("%s should be retryable", et)
		}
	}
}
