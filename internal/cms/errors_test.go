package cms

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{nil, KindNone},
		{fmt.Errorf("get: %w", ErrNotFound), KindNotFound},
		{ErrRemoteEmpty, KindNotFound},
		{stepErr(StepWriteRemote, fmt.Errorf("put: %w", ErrConflict)), KindConflict},
		{stepErr(StepAuthorize, ErrUnauthorized), KindUnauthorized},
		{&RateLimitError{RetryAfter: time.Minute}, KindRateLimited},
		{fmt.Errorf("list: %w", context.DeadlineExceeded), KindTransport},
		{ErrTransport, KindTransport},
		{fmt.Errorf("get: %w", ErrRemoteDenied), KindRemoteDenied},
		{fmt.Errorf("working store: %w", ErrNotConfigured), KindNotConfigured},
		{ErrInvalidInput, KindInvalidInput},
		{errors.New("disk on fire"), KindInternal},
	}
	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.want {
			t.Errorf("KindOf(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(stepErr(StepWriteRemote, ErrConflict)) {
		t.Error("conflict should be retryable")
	}
	if !Retryable(&RateLimitError{}) {
		t.Error("rate limit should be retryable")
	}
	if Retryable(stepErr(StepAuthorize, ErrUnauthorized)) {
		t.Error("denial should not be retryable")
	}
	if Retryable(fmt.Errorf("put: %w", ErrRemoteDenied)) {
		t.Error("remote denial should not be retryable")
	}
	if Retryable(ErrInvalidInput) {
		t.Error("invalid input should not be retryable")
	}
}

func TestRetryAfter(t *testing.T) {
	err := stepErr(StepListRemote, fmt.Errorf("list: %w", &RateLimitError{RetryAfter: 30 * time.Second}))
	if got := RetryAfter(err); got != 30*time.Second {
		t.Errorf("RetryAfter() = %v, want 30s", got)
	}
	if !errors.Is(err, ErrRateLimited) {
		t.Error("RateLimitError should match ErrRateLimited")
	}
	if got := RetryAfter(ErrTransport); got != 0 {
		t.Errorf("RetryAfter(transport) = %v, want 0", got)
	}
}

func TestFailedStep(t *testing.T) {
	if stepErr(StepMirror, nil) != nil {
		t.Error("stepErr(nil) should be nil")
	}
	err := fmt.Errorf("approve: %w", stepErr(StepDeleteWorking, ErrTransport))
	if got := FailedStep(err); got != StepDeleteWorking {
		t.Errorf("FailedStep() = %q, want %q", got, StepDeleteWorking)
	}
	if got := FailedStep(ErrTransport); got != "" {
		t.Errorf("FailedStep(bare) = %q, want empty", got)
	}
	if got := stepErr(StepAuthorize, ErrUnauthorized).Error(); got != "authorize: unauthorized" {
		t.Errorf("Error() = %q", got)
	}
}
