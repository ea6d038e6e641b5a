// Package server exposes pool statistics and Prometheus metrics over HTTP
// for the dbpool serve command.
package server

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ajitpratap0/dbpool/pkg/pool"
)

// Pool is the part of *pool.Wrapper the handler uses.
type Pool interface {
	Name() string
	Statistics(since int64) pool.Statistics
	ResetStatistics()
	SetCollectCheckOutTimes(enabled bool)
	SetCollectSnapshotStatistics(enabled bool)
	CollectCheckOutTimes() bool
	CollectSnapshotStatistics() bool
}

// Handler serves the statistics of a fixed set of pools.
type Handler struct {
	pools    map[string]Pool
	gatherer prometheus.Gatherer
	logger   *zap.Logger
}

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error string `json:"error"`
}

// CollectionResponse reports the statistics collection switches of a pool
type CollectionResponse struct {
	CheckOutTimes bool `json:"check_out_times"`
	Snapshots     bool `json:"snapshots"`
}

// NewHandler creates a handler. Metrics are served from gatherer.
func NewHandler(gatherer prometheus.Gatherer, logger *zap.Logger, pools ...Pool) *Handler {
	h := &Handler{
		pools:    make(map[string]Pool, len(pools)),
		gatherer: gatherer,
		logger:   logger.With(zap.String("component", "http_server")),
	}
	for _, p := range pools {
		h.pools[p.Name()] = p
	}
	return h
}

// Router returns the routes with the standard middleware applied
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	h.RegisterRoutes(r)
	return r
}

// RegisterRoutes mounts the handler on r
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.Health)
	r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	r.Get("/pools", h.ListPools)
	r.Route("/pools/{pool}", func(r chi.Router) {
		r.Get("/stats", h.GetStatistics)
		r.Post("/stats/reset", h.ResetStatistics)
		r.Put("/collect", h.SetCollection)
	})
}

// Health reports that the process is serving
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListPools returns the pool names in sorted order
func (h *Handler) ListPools(w http.ResponseWriter, _ *http.Request) {
	names := make([]string, 0, len(h.pools))
	for name := range h.pools {
		names = append(names, name)
	}
	sort.Strings(names)
	writeJSON(w, http.StatusOK, names)
}

// GetStatistics returns Wrapper.Statistics. The optional since query
// parameter (Unix millis) selects snapshot samples; without it no snapshot
// is returned.
func (h *Handler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookup(w, r)
	if !ok {
		return
	}

	since := int64(-1)
	if raw := r.URL.Query().Get("since"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "since must be an integer"})
			return
		}
		since = v
	}

	writeJSON(w, http.StatusOK, p.Statistics(since))
}

// ResetStatistics zeroes the pool counters
func (h *Handler) ResetStatistics(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookup(w, r)
	if !ok {
		return
	}
	p.ResetStatistics()
	h.logger.Info("statistics reset", zap.String("pool", p.Name()),
		zap.String("request_id", middleware.GetReqID(r.Context())))
	w.WriteHeader(http.StatusNoContent)
}

// SetCollection switches check-out time and snapshot collection. Fields
// missing from the body are left unchanged.
func (h *Handler) SetCollection(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req struct {
		CheckOutTimes *bool `json:"check_out_times"`
		Snapshots     *bool `json:"snapshots"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if req.CheckOutTimes != nil {
		p.SetCollectCheckOutTimes(*req.CheckOutTimes)
	}
	if req.Snapshots != nil {
		p.SetCollectSnapshotStatistics(*req.Snapshots)
	}

	writeJSON(w, http.StatusOK, CollectionResponse{
		CheckOutTimes: p.CollectCheckOutTimes(),
		Snapshots:     p.CollectSnapshotStatistics(),
	})
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (Pool, bool) {
	name := chi.URLParam(r, "pool")
	p, ok := h.pools[name]
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "pool " + name + " not found"})
	}
	return p, ok
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
