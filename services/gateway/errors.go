package gateway

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"

	"github.com/noyaclicks-jpg/crmhost/internal/enum"
)

// ProviderError is the typed failure a provider client returns for a non-2xx
// response. The gateway and the orchestration services branch on its
// classification instead of string-matching provider bodies.
type ProviderError struct {
	Service    enum.ProviderService
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s api error: status %d: %s", e.Service, e.StatusCode, e.Body)
}

func (e *ProviderError) IsAuth() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

func (e *ProviderError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

func (e *ProviderError) IsConflict() bool {
	return e.StatusCode == http.StatusConflict
}

// Retryable reports whether another attempt could plausibly succeed.
// Client-side classifications (4xx) are deterministic and never retried.
func (e *ProviderError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

func NewProviderError(service enum.ProviderService, statusCode int, body string) *ProviderError {
	return &ProviderError{Service: service, StatusCode: statusCode, Body: body}
}

func IsAuth(err error) bool {
	var perr *ProviderError
	return errors.As(err, &perr) && perr.IsAuth()
}

func IsNotFound(err error) bool {
	var perr *ProviderError
	return errors.As(err, &perr) && perr.IsNotFound()
}

func IsConflict(err error) bool {
	var perr *ProviderError
	return errors.As(err, &perr) && perr.IsConflict()
}
