package entity

import (
	"context"
	"errors"
	"fmt"
)

// APIError is a non-transient rejection from the exchange: bad parameters,
// rejected order, auth failure. Retrying it would only repeat the rejection.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("exchange rejected request: status=%d message=%s", e.StatusCode, e.Message)
}

// IsTransientError reports whether a placement failure is worth retrying.
// Exchange rejections and cancelled contexts are final; everything else is
// assumed to be connectivity trouble.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	return true
}
