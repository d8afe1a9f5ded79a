package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/yegors/flightroutes/internal/routes"
	"github.com/yegors/flightroutes/internal/storage"
	"github.com/yegors/flightroutes/pkg/logger"
)

const (
	// MaxBodyBytes caps the routeset request body
	MaxBodyBytes = 64 << 10

	listChunkSize = 100
	pingTimeout   = 2 * time.Second
)

// Handler contains the API handlers
type Handler struct {
	resolver   *routes.Resolver
	store      storage.Store
	planeLimit int
	validate   *validator.Validate
	logger     *logger.Logger
}

// NewHandler creates a new API handler
func NewHandler(resolver *routes.Resolver, store storage.Store, planeLimit int, log *logger.Logger) *Handler {
	return &Handler{
		resolver:   resolver,
		store:      store,
		planeLimit: planeLimit,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		logger:     log.Named("api-handler"),
	}
}

// GetRouteSet resolves a batch of planes to their routes
func (h *Handler) GetRouteSet(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE",
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "failed to read request body")
		return
	}

	var list PlaneList
	if err := json.Unmarshal(body, &list); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		return
	}
	if err := h.validate.Struct(list); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "planes is required")
		return
	}

	if len(list.Planes) > h.planeLimit {
		writeError(w, http.StatusRequestEntityTooLarge, "TOO_MANY_PLANES",
			fmt.Sprintf("too many planes: %d requested, the limit is %d", len(list.Planes), h.planeLimit))
		return
	}

	response, err := h.resolver.Resolve(r.Context(), list.Callsigns())
	if err != nil {
		h.storeFailed(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, response)
}

// GetRoute returns the stored route for one callsign
func (h *Handler) GetRoute(w http.ResponseWriter, r *http.Request) {
	cs := chi.URLParam(r, "callsign")

	record, err := h.resolver.Lookup(r.Context(), cs)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "route not found")
		return
	}
	if err != nil {
		h.storeFailed(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// GetAllCallsigns lists every stored callsign
func (h *Handler) GetAllCallsigns(w http.ResponseWriter, r *http.Request) {
	callsigns, err := h.resolver.Callsigns(r.Context())
	if err != nil {
		h.storeFailed(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, callsigns)
}

// GetPlausibleCallsigns lists stored callsigns whose route is plausible
func (h *Handler) GetPlausibleCallsigns(w http.ResponseWriter, r *http.Request) {
	h.listByPlausibility(w, r, storage.Plausible)
}

// GetImplausibleCallsigns lists stored callsigns whose route is implausible
func (h *Handler) GetImplausibleCallsigns(w http.ResponseWriter, r *http.Request) {
	h.listByPlausibility(w, r, storage.Implausible)
}

func (h *Handler) listByPlausibility(w http.ResponseWriter, r *http.Request, want storage.Plausibility) {
	callsigns, err := h.resolver.Callsigns(r.Context())
	if err != nil {
		h.storeFailed(w, r, err)
		return
	}

	filtered, err := h.resolver.Filter(r.Context(), callsigns, want, listChunkSize)
	if err != nil {
		h.storeFailed(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, filtered)
}

// GetHealth reports liveness
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetReady reports whether the route store answers
func (h *Handler) GetReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn("Readiness check failed", logger.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// storeFailed logs the cause and answers with a generic 503
func (h *Handler) storeFailed(w http.ResponseWriter, r *http.Request, err error) {
	log := h.logger.WithRequestID(middleware.GetReqID(r.Context()))
	if errors.Is(err, context.Canceled) {
		log.Debug("Client went away during store read", logger.String("path", r.URL.Path))
	} else {
		log.Error("Route store read failed", logger.String("path", r.URL.Path), logger.Error(err))
	}
	writeError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", storage.ErrStoreUnavailable.Error())
}
