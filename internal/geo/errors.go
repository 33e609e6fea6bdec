package geo

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/mr1hm/disaster-response/internal/models"
)

// ProviderError is the only error type adapters return.
type ProviderError struct {
	Provider string
	Kind     models.FailureKind
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// SlotError converts the error into the marker stored in an aggregated view.
func (e *ProviderError) SlotError() *models.SlotError {
	return &models.SlotError{
		Provider: e.Provider,
		Kind:     e.Kind,
		Message:  e.Err.Error(),
	}
}

var ErrNotConfigured = errors.New("provider not configured")

func newError(provider string, kind models.FailureKind, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: kind, Err: err}
}

// AsProviderError classifies any error into a ProviderError. Errors that are
// already classified pass through unchanged.
func AsProviderError(provider string, err error) *ProviderError {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	return transportError(provider, err)
}

func transportError(provider string, err error) *ProviderError {
	if isTimeout(err) {
		return newError(provider, models.FailureTimeout, err)
	}
	return newError(provider, models.FailureUnreachable, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
