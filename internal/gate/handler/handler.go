// Package handler wires the gate's HTTP endpoints. It stays thin: decode,
// delegate to the service, translate errors.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"allowgate/internal/gate/models"
	"allowgate/internal/gate/service"
	derrors "allowgate/pkg/domain-errors"
	"allowgate/pkg/platform/httputil"
)

// Service defines the gate operations the transport exposes.
type Service interface {
	Check(ctx context.Context, rawAddress string) (models.Verdict, error)
	AddAddress(ctx context.Context, rawAddress string) (models.AllowlistEntry, error)
	RemoveAddress(ctx context.Context, rawAddress string) error
	Stats() (service.Stats, bool)
}

// Handler exposes the verification gate over HTTP.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a gate handler.
func New(service Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

// Register mounts the gate endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/check", h.HandleCheck)
	r.Post("/v1/allowlist", h.HandleAdd)
	r.Delete("/v1/allowlist/{address}", h.HandleRemove)
	r.Get("/v1/stats", h.HandleStats)
}

type checkRequest struct {
	Address string `json:"address"`
}

type checkResponse struct {
	Allowed bool `json:"allowed"`
}

// HandleCheck handles POST /v1/check requests.
func (h *Handler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	verdict, err := h.service.Check(r.Context(), req.Address)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, checkResponse{
		Allowed: verdict == models.VerdictAllowed,
	})
}

type addRequest struct {
	Address string `json:"address"`
}

type entryResponse struct {
	ID        int64  `json:"id"`
	Address   string `json:"address"`
	CreatedAt string `json:"created_at"`
}

// HandleAdd handles POST /v1/allowlist requests.
func (h *Handler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	entry, err := h.service.AddAddress(r.Context(), req.Address)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.logger.Info("address allowlisted", "address", entry.Address.String())
	httputil.WriteJSON(w, http.StatusCreated, entryResponse{
		ID:        entry.ID,
		Address:   entry.Address.String(),
		CreatedAt: entry.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})
}

// HandleRemove handles DELETE /v1/allowlist/{address} requests.
func (h *Handler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")

	if err := h.service.RemoveAddress(r.Context(), address); err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.logger.Info("address removed from allowlist", "address", address)
	w.WriteHeader(http.StatusNoContent)
}

// HandleStats handles GET /v1/stats requests.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, ok := h.service.Stats()
	if !ok {
		httputil.WriteError(w, derrors.New(derrors.CodeUnavailable, "filter not loaded yet"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}
