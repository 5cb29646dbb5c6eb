package client

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAuthenticated means there is no stored session to attach
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrSessionExpired means the refresh attempt failed and the session
	// was cleared, the user has to log in again
	ErrSessionExpired = errors.New("session expired")
)

// APIError is the structured failure payload the server responds with
type APIError struct {
	Status  int
	Type    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Type, e.Message)
	}
	return fmt.Sprintf("api error %d", e.Status)
}
