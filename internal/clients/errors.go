// internal/clients/errors.go
package clients

import (
	"errors"
	"fmt"

	"github.com/go-resty/resty/v2"
)

// ProviderError is a non-2xx answer (or an in-band failure code) from an external API.
type ProviderError struct {
	Provider string
	Status   int
	Code     string
	Message  string
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (%d): %s", e.Provider, e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.Status, e.Message)
}

// AsProviderError unwraps err into a *ProviderError.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

func newProviderError(provider string, resp *resty.Response, code, message string) *ProviderError {
	if message == "" {
		message = resp.String()
	}
	return &ProviderError{
		Provider: provider,
		Status:   resp.StatusCode(),
		Code:     code,
		Message:  message,
	}
}
