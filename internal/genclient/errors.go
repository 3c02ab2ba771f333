package genclient

import (
	"context"
	"errors"
	"fmt"

	"storybook-server/internal/models"
)

// transportErr wraps a failed backend call.
func transportErr(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %w", models.ErrTransport, op, err)
	}
	return fmt.Errorf("%w: %s: %v", models.ErrTransport, op, err)
}

// malformedErr reports a payload that does not have the expected shape.
func malformedErr(op, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", models.ErrMalformedResponse, op, fmt.Sprintf(format, args...))
}

// statusFor maps a classified error to its metric label.
func statusFor(err error) string {
	switch {
	case err == nil:
		return statusSuccess
	case errors.Is(err, models.ErrMalformedResponse):
		return statusMalformed
	default:
		return statusTransport
	}
}
