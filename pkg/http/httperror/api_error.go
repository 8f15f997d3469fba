package httperror

import (
	"fmt"
	"net/http"
)

// APIError is returned by the approval client for responses that are
// neither successful nor one of the API's own JSON errors.
type APIError struct {
	StatusCode int
	Status     string
	Body       string
}

func (err *APIError) Error() string {
	return fmt.Sprintf("%s (%s)", err.Status, err.Body)
}

// IsUnavailable is true when something between the client and the
// approval endpoint could not reach it.
func (err *APIError) IsUnavailable() bool {
	switch err.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// IsMissing usually means the endpoint is not a bluegreen approval
// API at all.
func (err *APIError) IsMissing() bool {
	return err.StatusCode == http.StatusNotFound
}
