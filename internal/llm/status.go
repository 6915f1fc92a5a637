package llm

import (
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxErrorBody = 4 << 10

// StatusError is a non-success HTTP response from an upstream
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s returned status %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// NewStatusError reads a bounded prefix of the response body into a StatusError
func NewStatusError(provider string, resp *http.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{
		Provider:   provider,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
	}
}

// Truncated reports a stream body that ended before the upstream sent its
// terminal marker. The result wraps io.ErrUnexpectedEOF.
func Truncated(provider string) error {
	return fmt.Errorf("%s stream ended early: %w", provider, io.ErrUnexpectedEOF)
}
