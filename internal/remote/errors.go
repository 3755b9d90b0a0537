package remote

import (
	"errors"
	"fmt"
	"net/http"
)

// HTTPError is a non-success response from the quiz service.
type HTTPError struct {
	Status  int
	Code    string
	Message string
	Fields  map[string]string
	Body    string
}

func (e *HTTPError) Error() string {
	switch {
	case e.Code != "" && e.Message != "":
		return fmt.Sprintf("quiz service: %d %s: %s", e.Status, e.Code, e.Message)
	case e.Code != "":
		return fmt.Sprintf("quiz service: %d %s", e.Status, e.Code)
	default:
		return fmt.Sprintf("quiz service: %d %s", e.Status, http.StatusText(e.Status))
	}
}

// Describe is the student-facing text of the error.
func (e *HTTPError) Describe() string {
	if e.Message != "" {
		return e.Message
	}
	if text := http.StatusText(e.Status); text != "" {
		return fmt.Sprintf("The server answered %d %s.", e.Status, text)
	}
	return fmt.Sprintf("The server answered %d.", e.Status)
}

// IsStatus reports whether err is an HTTPError with the given status.
func IsStatus(err error, status int) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.Status == status
}
