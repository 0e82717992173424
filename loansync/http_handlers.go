// Copyright 2026 Asili Finance
// SPDX-License-Identifier: Apache-2.0

package loansync

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// Backend is the write surface the HTTP layer exposes. Service implements
// it; tests substitute a fake.
type Backend interface {
	Create(ctx context.Context, collection string, payload []byte) (*Record, error)
	Update(ctx context.Context, collection string, id uuid.UUID, payload []byte) (*Record, error)
	SoftDelete(ctx context.Context, collection string, id uuid.UUID) (*Record, error)
	RegisteredCollections() []string
}

// HTTPHandlers provides the HTTP handlers for the backend write API.
type HTTPHandlers struct {
	backend Backend
	appName string
	logger  *slog.Logger
}

// NewHTTPHandlers creates the handler set over a backend.
func NewHTTPHandlers(backend Backend, appName string, logger *slog.Logger) *HTTPHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPHandlers{backend: backend, appName: appName, logger: logger}
}

// NewRouter builds the API router. All collection routes require a valid
// bearer token; health and status stay open so clients can probe
// reachability without credentials.
//
// Routes:
//
//	GET    /healthz                    → liveness probe (reachability target)
//	GET    /api/status                 → service status and registered collections
//	POST   /api/{collection}           → create record
//	PATCH  /api/{collection}/{id}      → update record
//	DELETE /api/{collection}/{id}      → soft-delete record
func NewRouter(h *HTTPHandlers, jwtAuth *JWTAuth) http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)

	r.Get("/healthz", h.HandleHealth)
	r.Head("/healthz", h.HandleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", h.HandleStatus)

		r.Group(func(r chi.Router) {
			if jwtAuth != nil {
				r.Use(jwtAuth.Middleware)
			}
			r.Post("/{collection}", h.HandleCreate)
			r.Patch("/{collection}/{id}", h.HandleUpdate)
			r.Delete("/{collection}/{id}", h.HandleSoftDelete)
		})
	})

	return r
}

// HandleHealth responds to liveness probes.
func (h *HTTPHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// HandleStatus reports service status and configuration.
func (h *HTTPHandlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, StatusResponse{
		Status:      "healthy",
		AppName:     h.appName,
		Collections: h.backend.RegisteredCollections(),
	})
}

// HandleCreate processes record creation requests.
func (h *HTTPHandlers) HandleCreate(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Failed to read request body")
		return
	}

	record, err := h.backend.Create(r.Context(), collection, payload)
	if err != nil {
		h.writeBackendError(w, r, err, "create")
		return
	}
	h.writeJSON(w, http.StatusCreated, record)
}

// HandleUpdate processes record update requests.
func (h *HTTPHandlers) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Record id must be a UUID")
		return
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Failed to read request body")
		return
	}

	record, err := h.backend.Update(r.Context(), collection, id, payload)
	if err != nil {
		h.writeBackendError(w, r, err, "update")
		return
	}
	h.writeJSON(w, http.StatusOK, record)
}

// HandleSoftDelete processes soft-delete requests.
func (h *HTTPHandlers) HandleSoftDelete(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Record id must be a UUID")
		return
	}

	record, err := h.backend.SoftDelete(r.Context(), collection, id)
	if err != nil {
		h.writeBackendError(w, r, err, "soft_delete")
		return
	}
	h.writeJSON(w, http.StatusOK, record)
}

// writeBackendError maps service errors onto the HTTP error envelope.
func (h *HTTPHandlers) writeBackendError(w http.ResponseWriter, r *http.Request, err error, op string) {
	switch {
	case errors.Is(err, ErrUnknownCollection):
		h.writeError(w, http.StatusNotFound, "unknown_collection", err.Error())
	case errors.Is(err, ErrRecordNotFound):
		h.writeError(w, http.StatusNotFound, "record_not_found", err.Error())
	case errors.Is(err, ErrRecordDeleted):
		h.writeError(w, http.StatusConflict, "record_deleted", err.Error())
	case errors.Is(err, ErrServiceClosed):
		h.writeError(w, http.StatusServiceUnavailable, "service_unavailable", "Service is shutting down")
	case isValidationError(err):
		h.writeError(w, http.StatusUnprocessableEntity, "validation_failed", err.Error())
	default:
		h.logger.Error("backend operation failed", "op", op, "path", r.URL.Path, "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to process request")
	}
}

// isValidationError reports whether the error came from payload
// normalization rather than storage.
func isValidationError(err error) bool {
	var verr *validationError
	return errors.As(err, &verr)
}

func (h *HTTPHandlers) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *HTTPHandlers) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}
