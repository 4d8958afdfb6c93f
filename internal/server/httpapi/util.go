package httpapi

import (
	"errors"
	"io"

	"github.com/dmitrijs2005/teamsync/internal/server/services"
)

func isConflict(err error) bool {
	return conflictOf(err) != nil
}

func conflictOf(err error) *services.ConflictError {
	var c *services.ConflictError
	if errors.As(err, &c) {
		return c
	}
	return nil
}

// itemStatusFor turns an error code into the per-item status vocabulary
// shared with batch results.
func itemStatusFor(code string) string {
	switch code {
	case "conflict":
		return string(services.StatusConflict)
	case "validation_failed", "bad_request":
		return string(services.StatusInvalid)
	case "forbidden":
		return string(services.StatusForbidden)
	case "not_found":
		return string(services.StatusNotFound)
	}
	return string(services.StatusError)
}

func copyBody(w io.Writer, r io.Reader) (int64, error) {
	buf := make([]byte, 32<<10)
	return io.CopyBuffer(w, r, buf)
}
