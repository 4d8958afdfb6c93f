package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/teamsync/internal/common"
	"github.com/dmitrijs2005/teamsync/internal/server/services"
)

type errorResponse struct {
	Error         string            `json:"error"`
	Code          string            `json:"code"`
	Fields        map[string]string `json:"fields,omitempty"`
	ServerVersion *recordDTO        `json:"serverVersion,omitempty"`
}

// statusFor maps service errors onto HTTP status codes and stable error codes.
func statusFor(err error) (int, string) {
	var (
		conflict *services.ConflictError
		invalid  *services.ValidationError
	)
	switch {
	case errors.As(err, &conflict):
		return http.StatusConflict, "conflict"
	case errors.As(err, &invalid), errors.Is(err, common.ErrValidation):
		return http.StatusUnprocessableEntity, "validation_failed"
	case errors.Is(err, common.ErrResyncRequired):
		return http.StatusBadRequest, "resync_required"
	case errors.Is(err, common.ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, common.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, common.ErrTokenExpired):
		return http.StatusUnauthorized, "token_expired"
	case errors.Is(err, common.ErrInvalidToken), errors.Is(err, common.ErrorUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	}
	return http.StatusInternalServerError, "internal"
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	resp := errorResponse{Error: err.Error(), Code: code}

	var (
		conflict *services.ConflictError
		invalid  *services.ValidationError
	)
	if errors.As(err, &conflict) && conflict.Current != nil {
		resp.ServerVersion = newRecordDTO(conflict.Current)
	}
	if errors.As(err, &invalid) {
		resp.Fields = invalid.Fields
	}
	if status == http.StatusInternalServerError {
		h.logger.Error(ctx, "request failed", "error", err)
		resp.Error = common.ErrorInternal.Error()
	}
	writeJSON(w, status, resp)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg, Code: "bad_request"})
}
