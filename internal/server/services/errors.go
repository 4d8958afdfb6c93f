package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dmitrijs2005/teamsync/internal/common"
	"github.com/dmitrijs2005/teamsync/internal/server/models"
)

// ConflictError reports a rejected mutation together with the server's
// current version of the record so the client can re-base.
type ConflictError struct {
	Current *models.Record
}

func (e *ConflictError) Error() string {
	if e.Current == nil {
		return common.ErrVersionConflict.Error()
	}
	return fmt.Sprintf("%s: %s/%s is at %s", common.ErrVersionConflict, e.Current.EntityType, e.Current.ID,
		e.Current.UpdatedAt.Format("2006-01-02T15:04:05.000000Z07:00"))
}

func (e *ConflictError) Unwrap() error {
	return common.ErrVersionConflict
}

// ValidationError lists the offending fields of a mutation, keyed by their
// JSON name.
type ValidationError struct {
	Fields map[string]string
}

func newValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return common.ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return common.ErrValidation
}
