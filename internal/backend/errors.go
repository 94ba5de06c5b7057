package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aridosvaldez/aridos/internal/identity"
)

// StatusError is a non-2xx answer from the server.
type StatusError struct {
	Code    int
	Message string
}

func newStatusError(resp *http.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	msg := http.StatusText(resp.StatusCode)
	if json.Unmarshal(body, &envelope) == nil && envelope.Error.Message != "" {
		msg = envelope.Error.Message
	}
	return &StatusError{Code: resp.StatusCode, Message: msg}
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.Code, e.Message)
}

// IsRetryable reports whether the same request may succeed later.
func (e *StatusError) IsRetryable() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests
}

// Is lets retryable answers match identity.ErrNetwork.
func (e *StatusError) Is(target error) bool {
	return target == identity.ErrNetwork && e.IsRetryable()
}

func isStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}
