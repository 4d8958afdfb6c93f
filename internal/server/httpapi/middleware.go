package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/teamsync/internal/common"
	"github.com/dmitrijs2005/teamsync/internal/server/auth"
	"github.com/dmitrijs2005/teamsync/internal/server/models"
	"github.com/rs/cors"
)

type ctxKey string

const scopeKey ctxKey = "scope"

// ScopeFromContext returns the caller scope stored by the auth middleware.
func ScopeFromContext(ctx context.Context) (models.Scope, bool) {
	s, ok := ctx.Value(scopeKey).(models.Scope)
	return s, ok
}

// requireAuth validates the bearer token and stores the caller's scope in
// the request context.
func (h *Handler) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get(common.AuthorizationHeaderName)
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing bearer token", Code: "unauthorized"})
			return
		}

		scope, err := auth.ScopeFromToken(token, h.secret)
		if err != nil {
			h.writeServiceError(r.Context(), w, err)
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), scopeKey, scope)))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

// observe records latency per route pattern and writes the access log.
func (h *Handler) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}

		next.ServeHTTP(rec, r)

		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		elapsed := time.Since(start)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		if h.metrics != nil {
			h.metrics.RequestDuration.WithLabelValues(route, strconv.Itoa(rec.status)).Observe(elapsed.Seconds())
		}
		h.logger.Info(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"bytes", rec.bytes,
			"duration", elapsed,
		)
	})
}

func (h *Handler) withCORS(next http.Handler) http.Handler {
	if len(h.corsOrigins) == 0 {
		return next
	}
	return cors.New(cors.Options{
		AllowedOrigins: h.corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{
			common.AuthorizationHeaderName,
			"Content-Type",
			common.CheckpointHeaderName,
			common.DeviceProfileHeaderName,
			common.DeviceWidthHeaderName,
			common.DeviceDPRHeaderName,
		},
		ExposedHeaders: []string{common.CheckpointHeaderName},
		MaxAge:         600,
	}).Handler(next)
}
