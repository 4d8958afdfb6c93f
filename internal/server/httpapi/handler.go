// Package httpapi exposes the sync engine over HTTP/JSON.
package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/teamsync/internal/common"
	"github.com/dmitrijs2005/teamsync/internal/logging"
	"github.com/dmitrijs2005/teamsync/internal/server/media"
	"github.com/dmitrijs2005/teamsync/internal/server/metrics"
	"github.com/dmitrijs2005/teamsync/internal/server/models"
	"github.com/dmitrijs2005/teamsync/internal/server/services"
)

// Services groups the sync components the handlers delegate to. Media may
// be nil when no object store is configured.
type Services struct {
	Delta    *services.DeltaEngine
	Resolver *services.ConflictResolver
	Mapper   *services.IDMapper
	Deleter  *services.DeletionPropagator
	Batch    *services.BatchReconciler
	Media    *media.Gateway
}

type Handler struct {
	svc         Services
	metrics     *metrics.Metrics
	logger      logging.Logger
	secret      []byte
	corsOrigins []string
}

func NewHandler(svc Services, m *metrics.Metrics, logger logging.Logger, secretKey string, corsOrigins []string) *Handler {
	return &Handler{
		svc:         svc,
		metrics:     m,
		logger:      logger.With("module", "http"),
		secret:      []byte(secretKey),
		corsOrigins: corsOrigins,
	}
}

// Routes returns the full middleware-wrapped router.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", handleHealthz)
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics.Handler())
	}

	mux.HandleFunc("GET /sync/delta", h.requireAuth(h.handleDelta))
	mux.HandleFunc("POST /sync/records", h.requireAuth(h.handleUpdate))
	mux.HandleFunc("POST /sync/batch", h.requireAuth(h.handleBatch))
	mux.HandleFunc("POST /sync/create", h.requireAuth(h.handleCreate))
	mux.HandleFunc("POST /sync/deletions", h.requireAuth(h.handleDeletions))
	mux.HandleFunc("GET /media/{id}", h.requireAuth(h.handleMedia))

	return h.withCORS(h.observe(mux))
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, jsonResponse{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func parseEntities(raw string) ([]models.EntityType, error) {
	if raw == "" {
		return nil, nil
	}
	var out []models.EntityType
	for _, part := range strings.Split(raw, ",") {
		et, err := models.ParseEntityType(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrBadRequest, err)
		}
		out = append(out, et)
	}
	return out, nil
}

func (h *Handler) handleDelta(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scope, _ := ScopeFromContext(ctx)

	entities, err := parseEntities(r.URL.Query().Get("entities"))
	if err != nil {
		h.writeServiceError(ctx, w, err)
		return
	}

	token := r.Header.Get(common.CheckpointHeaderName)
	if token == "" {
		token = r.URL.Query().Get("checkpoint")
	}

	res, err := h.svc.Delta.Delta(ctx, scope, token, entities)
	if err != nil {
		h.writeServiceError(ctx, w, err)
		return
	}

	if h.metrics != nil {
		var nu, nd int
		for _, u := range res.Updates {
			nu += len(u)
		}
		for _, d := range res.Deletions {
			nd += len(d)
		}
		h.metrics.DeltaRecords.WithLabelValues("update").Add(float64(nu))
		h.metrics.DeltaRecords.WithLabelValues("deletion").Add(float64(nd))
	}

	w.Header().Set(common.CheckpointHeaderName, res.SyncTime)
	writeJSON(w, http.StatusOK, newDeltaResponse(res))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scope, _ := ScopeFromContext(ctx)

	var req updateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if req.Entity == "" || req.ID == "" || len(req.Data) == 0 {
		badRequest(w, "entity, id and data are required")
		return
	}
	et, err := models.ParseEntityType(req.Entity)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	applied, err := h.svc.Resolver.Resolve(ctx, scope, &models.PendingMutation{
		EntityType:       et,
		ID:               req.ID,
		TeamID:           req.TeamID,
		Payload:          req.Data,
		ClientMutationID: req.ClientMutationID,
		ClientTimestamp:  req.ClientTimestamp.Time,
	})
	if err != nil {
		if h.metrics != nil && isConflict(err) {
			h.metrics.Conflicts.WithLabelValues(string(et)).Inc()
		}
		h.writeServiceError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, jsonResponse{
		"data":      newRecordDTO(applied.Record),
		"duplicate": applied.Replayed,
	})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scope, _ := ScopeFromContext(ctx)

	var req createRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if req.Entity == "" || req.TempID == "" || len(req.Data) == 0 {
		badRequest(w, "entity, tempId and data are required")
		return
	}
	et, err := models.ParseEntityType(req.Entity)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	applied, err := h.svc.Mapper.Create(ctx, scope, &models.PendingMutation{
		EntityType:       et,
		TempID:           req.TempID,
		TeamID:           req.TeamID,
		Payload:          req.Data,
		ClientMutationID: req.ClientMutationID,
		ClientTimestamp:  req.ClientTimestamp.Time,
	})
	if err != nil {
		h.writeServiceError(ctx, w, err)
		return
	}

	status := http.StatusCreated
	if applied.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, jsonResponse{
		"data": createdDTO{
			recordDTO: *newRecordDTO(applied.Record),
			ServerID:  applied.Record.ID,
			TempID:    req.TempID,
		},
	})
}

func (h *Handler) handleBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scope, _ := ScopeFromContext(ctx)

	var req batchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	res := h.svc.Batch.Reconcile(ctx, scope, req.Mutations())
	if h.metrics != nil {
		for status, n := range res.Counts() {
			h.metrics.BatchItems.WithLabelValues(string(status)).Add(float64(n))
		}
		for _, it := range res.Results {
			if it.Status == services.StatusConflict {
				h.metrics.Conflicts.WithLabelValues(string(it.Ref.Entity)).Inc()
			}
		}
	}

	writeJSON(w, http.StatusOK, newBatchResponse(res))
}

func (h *Handler) handleDeletions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scope, _ := ScopeFromContext(ctx)

	var req deletionsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if req.Deletions == nil {
		badRequest(w, "deletions is required")
		return
	}

	success := true
	results := make([]deletionResult, 0, len(req.Deletions))
	for _, d := range req.Deletions {
		res := deletionResult{Entity: d.Entity, ID: d.ID}

		et, err := models.ParseEntityType(d.Entity)
		if err != nil {
			res.Status, res.Detail = string(services.StatusInvalid), err.Error()
			results = append(results, res)
			success = false
			continue
		}

		ts, err := h.svc.Deleter.Delete(ctx, scope, et, d.ID, d.Timestamp.Time)
		if err != nil {
			status, code := statusFor(err)
			res.Status = itemStatusFor(code)
			res.Detail = err.Error()
			if status == http.StatusInternalServerError {
				h.logger.Error(ctx, "deletion failed", "entity", et, "id", d.ID, "error", err)
				res.Detail = common.ErrorInternal.Error()
			}
			if c := conflictOf(err); c != nil {
				res.ServerVersion = newRecordDTO(c.Current)
			}
			results = append(results, res)
			success = false
			continue
		}

		res.Status = string(services.StatusApplied)
		res.Tombstone = newTombstoneDTO(ts)
		results = append(results, res)
	}

	writeJSON(w, http.StatusOK, jsonResponse{
		"success": success,
		"results": results,
	})
}

func (h *Handler) handleMedia(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.svc.Media == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "media storage is not configured", Code: "not_found"})
		return
	}

	profile := media.ProfileFromHeaders(
		r.Header.Get(common.DeviceProfileHeaderName),
		r.Header.Get(common.DeviceWidthHeaderName),
		r.Header.Get(common.DeviceDPRHeaderName),
	)

	resp, err := h.svc.Media.Serve(ctx, r.PathValue("id"), profile)
	if err != nil {
		h.writeServiceError(ctx, w, err)
		return
	}

	if resp.RedirectURL != "" {
		h.countMedia("redirect")
		http.Redirect(w, r, resp.RedirectURL, http.StatusTemporaryRedirect)
		return
	}
	defer resp.Body.Close()

	mode := "variant"
	if resp.Variant == "" {
		mode = "original"
	}
	h.countMedia(mode)

	hdr := w.Header()
	hdr.Set("Content-Type", resp.ContentType)
	hdr.Set("Vary", strings.Join([]string{common.DeviceProfileHeaderName, common.DeviceWidthHeaderName, common.DeviceDPRHeaderName}, ", "))
	hdr.Set("Cache-Control", "private, max-age=300")
	if resp.ContentLength > 0 {
		hdr.Set("Content-Length", strconv.FormatInt(resp.ContentLength, 10))
	}
	if resp.ETag != "" {
		hdr.Set("ETag", resp.ETag)
	}
	if resp.Variant != "" {
		hdr.Set("X-Media-Variant", string(resp.Variant))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := copyBody(w, resp.Body); err != nil {
		h.logger.Warn(ctx, "media stream interrupted", "error", err)
	}
}

func (h *Handler) countMedia(mode string) {
	if h.metrics != nil {
		h.metrics.MediaServed.WithLabelValues(mode).Inc()
	}
}
