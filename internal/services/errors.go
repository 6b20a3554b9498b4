package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidInput marks malformed caller input (bad archive, missing fields).
	// Jobs failing with it never reach the running state.
	ErrInvalidInput = errors.New("invalid input")
	// ErrToolNotConfigured marks a missing engine or encoder executable path.
	ErrToolNotConfigured = errors.New("tool not configured")
	// ErrProcessFailure marks a non-zero or killed external tool invocation.
	ErrProcessFailure = errors.New("process failure")
	// ErrOutputMissing marks a zero-exit invocation that produced no usable artifact.
	ErrOutputMissing = errors.New("output missing")
	// ErrRateLimited marks an upstream throttling response callers may absorb.
	ErrRateLimited = errors.New("rate limited")
	// ErrTransient marks failures with no better classification.
	ErrTransient = errors.New("transient failure")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Message strips the sentinel prefix from a wrapped error, returning the
// human-readable remainder suitable for storing on a job record.
func Message(err error) string {
	if err == nil {
		return ""
	}
	text := err.Error()
	for _, marker := range []error{
		ErrInvalidInput,
		ErrToolNotConfigured,
		ErrProcessFailure,
		ErrOutputMissing,
		ErrRateLimited,
		ErrTransient,
	} {
		prefix := marker.Error() + ": "
		if strings.HasPrefix(text, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(text, prefix))
		}
	}
	return strings.TrimSpace(text)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
