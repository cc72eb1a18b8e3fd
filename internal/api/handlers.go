// Package api exposes HTTP handlers for the sync service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/qiuhuiming/titan-track/internal/auth"
	"github.com/qiuhuiming/titan-track/internal/domain"
)

const (
	maxDeviceIDLength = 64
	maxBodyBytes      = 8 << 20
)

// Syncer reconciles a client batch for one user.
type Syncer interface {
	Sync(ctx context.Context, id domain.Identity, lastSyncAt *time.Time, batch domain.ClientBatch) (*domain.Result, error)
}

// Handler coordinates HTTP requests with the sync engine.
type Handler struct {
	engine Syncer
	logger *zap.Logger
}

// NewHandler builds a Handler.
func NewHandler(engine Syncer, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{engine: engine, logger: logger}
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) sync(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok || strings.TrimSpace(claims.Subject) == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !auth.CanSync(claims) {
		writeError(w, http.StatusForbidden, "forbidden", "scope sync:write required")
		return
	}

	var req SyncRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	lastSyncAt, err := req.Validate()
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	batch, err := domain.DecodeBatch(req.Exercises, req.WorkoutPlans, req.WorkoutEntries)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	identity := domain.Identity{UserID: claims.Subject, DeviceID: req.DeviceID}
	result, err := h.engine.Sync(r.Context(), identity, lastSyncAt, batch)
	if err != nil {
		h.writeSyncError(w, r, identity, err)
		return
	}

	writeJSON(w, http.StatusOK, toSyncResponse(result))
}

func (h *Handler) writeSyncError(w http.ResponseWriter, r *http.Request, id domain.Identity, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, "validation_failed", verr.Error())
	case errors.Is(err, domain.ErrMissingIdentity):
		writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
	case errors.Is(err, domain.ErrConcurrentModification):
		writeError(w, http.StatusConflict, "conflict", "records changed during sync, retry")
	default:
		h.logger.Error("sync failed",
			zap.String("user_id", id.UserID),
			zap.String("device_id", id.DeviceID),
			zap.String("request_id", requestID(r)),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "server_error", "sync failed")
	}
}

// SyncRequest is the payload for POST /v1/sync. Entity records stay raw until the decode step.
type SyncRequest struct {
	DeviceID       string            `json:"device_id"`
	LastSyncAt     *string           `json:"last_sync_at"`
	Exercises      []json.RawMessage `json:"exercises"`
	WorkoutPlans   []json.RawMessage `json:"workout_plans"`
	WorkoutEntries []json.RawMessage `json:"workout_entries"`
}

// Validate ensures request correctness and returns the parsed watermark.
func (r SyncRequest) Validate() (*time.Time, error) {
	if strings.TrimSpace(r.DeviceID) == "" {
		return nil, errors.New("device_id is required")
	}
	if len(r.DeviceID) > maxDeviceIDLength {
		return nil, errors.New("device_id must be at most 64 characters")
	}
	if r.LastSyncAt == nil || strings.TrimSpace(*r.LastSyncAt) == "" {
		return nil, nil
	}
	parsed, err := domain.ParseTimestamp(strings.TrimSpace(*r.LastSyncAt))
	if err != nil {
		return nil, errors.New("last_sync_at must be an ISO-8601 timestamp")
	}
	return &parsed, nil
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
