package mapsurface

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"meshboard-maps/internal/logging"
	"meshboard-maps/mapsurface/application"
	"meshboard-maps/mapsurface/domain"
	"meshboard-maps/mapsurface/infra"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	defaultSnapshotZoom = 14.0
	maxAwait            = 2 * time.Minute
)

// EventCounters é opcional: quem souber contar eventos de admissão aparece em
// /api/map/stats.
type EventCounters interface {
	Total() infra.Counters
}

// Options reúne as dependências da API.
type Options struct {
	Scheduler *application.Scheduler
	Renderer  *application.Renderer
	Events    EventCounters
	Throttle  ThrottleOptions
	Logger    *slog.Logger
}

// API é o adapter HTTP do agendador e do renderer.
type API struct {
	router    chi.Router
	scheduler *application.Scheduler
	renderer  *application.Renderer
	events    EventCounters
	logger    *slog.Logger

	// reverted marca donos que perderam o mapa interativo do desktop e ainda
	// não consultaram o estado.
	mu       sync.Mutex
	reverted map[domain.OwnerID]bool
}

func New(opts Options) *API {
	a := &API{
		router:    chi.NewRouter(),
		scheduler: opts.Scheduler,
		renderer:  opts.Renderer,
		events:    opts.Events,
		logger:    logging.Component(opts.Logger, "api"),
		reverted:  make(map[domain.OwnerID]bool),
	}
	if opts.Throttle.Logger == nil {
		opts.Throttle.Logger = a.logger
	}
	a.routes(opts.Throttle)
	return a
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

func (a *API) routes(throttle ThrottleOptions) {
	r := a.router

	r.Use(middleware.RequestID)
	if throttle.TrustXForwardedFor {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Recoverer)
	r.Use(loggingMiddleware(a.logger))

	r.Route("/api/map", func(r chi.Router) {
		r.Route("/instances", func(r chi.Router) {
			r.Post("/", a.handleRequestInstance)
			r.Route("/{owner}", func(r chi.Router) {
				r.Get("/", a.handleGetInstance)
				r.Delete("/", a.handleReleaseInstance)
				r.Put("/priority", a.handleUpdatePriority)
			})
		})
		r.Post("/desktop/{owner}", a.handleDesktop)
		r.Get("/stats", a.handleStats)

		r.With(Throttle(throttle)).Get("/snapshot", a.handleSnapshot)
		r.Delete("/snapshot/cache", a.handleClearCache)
	})
}

type instanceRequest struct {
	Owner     string `json:"owner"`
	Priority  int    `json:"priority"`
	Wait      bool   `json:"wait"`
	TimeoutMS int    `json:"timeout_ms"`
}

type instanceResponse struct {
	Owner      string `json:"owner"`
	Allowed    bool   `json:"allowed"`
	InstanceID uint64 `json:"instance_id,omitempty"`
	Pending    bool   `json:"pending"`
}

// handleRequestInstance pede uma superfície viva.
// POST /api/map/instances
//
// Sem "wait" responde na hora: 200 se concedida, 202 se ficou pendente (o
// cliente acompanha por GET). Com "wait" segura a requisição até a concessão,
// o timeout ou o cliente desistir; nesses dois últimos casos o pedido sai da
// fila.
func (a *API) handleRequestInstance(w http.ResponseWriter, r *http.Request) {
	var req instanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.Owner == "" {
		req.Owner = uuid.NewString()
	}
	owner := domain.OwnerID(req.Owner)
	a.clearReverted(owner)

	resp := instanceResponse{Owner: req.Owner}

	if req.Wait {
		timeout := maxAwait
		if req.TimeoutMS > 0 {
			timeout = min(timeout, time.Duration(req.TimeoutMS)*time.Millisecond)
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		out := a.scheduler.AwaitInstance(ctx, owner, req.Priority)
		resp.Allowed, resp.InstanceID = out.Allowed, out.InstanceID
		respondJSON(w, http.StatusOK, resp)
		return
	}

	select {
	case out := <-a.scheduler.RequestInstance(owner, req.Priority):
		resp.Allowed, resp.InstanceID = out.Allowed, out.InstanceID
		respondJSON(w, http.StatusOK, resp)
	default:
		resp.Pending = true
		respondJSON(w, http.StatusAccepted, resp)
	}
}

type instanceState struct {
	Owner    string `json:"owner"`
	Active   bool   `json:"active"`
	Desktop  bool   `json:"desktop"`
	Reverted bool   `json:"reverted"`
}

// GET /api/map/instances/{owner}
func (a *API) handleGetInstance(w http.ResponseWriter, r *http.Request) {
	owner := domain.OwnerID(chi.URLParam(r, "owner"))
	respondJSON(w, http.StatusOK, a.state(owner))
}

func (a *API) state(owner domain.OwnerID) instanceState {
	desktop, _ := a.scheduler.DesktopOwner()

	a.mu.Lock()
	reverted := a.reverted[owner]
	a.mu.Unlock()

	return instanceState{
		Owner:    string(owner),
		Active:   a.scheduler.IsActive(owner),
		Desktop:  desktop == owner,
		Reverted: reverted,
	}
}

// DELETE /api/map/instances/{owner}
func (a *API) handleReleaseInstance(w http.ResponseWriter, r *http.Request) {
	owner := domain.OwnerID(chi.URLParam(r, "owner"))

	a.scheduler.CancelRequest(owner)
	a.scheduler.ReleaseInstance(owner)
	a.scheduler.UnregisterDesktopCallback(owner)
	a.clearReverted(owner)

	w.WriteHeader(http.StatusNoContent)
}

// PUT /api/map/instances/{owner}/priority
func (a *API) handleUpdatePriority(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Priority *int `json:"priority"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.Priority == nil {
		respondError(w, r, http.StatusBadRequest, "priority is required")
		return
	}

	a.scheduler.UpdatePriority(domain.OwnerID(chi.URLParam(r, "owner")), *req.Priority)
	w.WriteHeader(http.StatusNoContent)
}

// handleDesktop torna owner o único mapa interativo do desktop. O detentor
// anterior passa a aparecer como "reverted" no GET.
// POST /api/map/desktop/{owner}
func (a *API) handleDesktop(w http.ResponseWriter, r *http.Request) {
	owner := domain.OwnerID(chi.URLParam(r, "owner"))

	a.scheduler.RegisterDesktopCallback(owner, func() {
		a.mu.Lock()
		a.reverted[owner] = true
		a.mu.Unlock()
		a.logger.Info("desktop interactive map reverted", "owner", owner)
	})
	a.clearReverted(owner)
	a.scheduler.RequestDesktopInteractiveMap(owner)

	respondJSON(w, http.StatusOK, a.state(owner))
}

func (a *API) clearReverted(owner domain.OwnerID) {
	a.mu.Lock()
	delete(a.reverted, owner)
	a.mu.Unlock()
}

type slotView struct {
	Owner      string `json:"owner"`
	Priority   int    `json:"priority"`
	InstanceID uint64 `json:"instance_id"`
}

type statsResponse struct {
	MaxInstances        int              `json:"max_instances"`
	ResourceConstrained bool             `json:"resource_constrained"`
	Active              int              `json:"active"`
	Pending             int              `json:"pending"`
	Slots               []slotView       `json:"slots"`
	DesktopOwner        string           `json:"desktop_owner,omitempty"`
	RenderQueue         int              `json:"render_queue"`
	RendererAvailable   bool             `json:"renderer_available"`
	Events              map[string]int64 `json:"events,omitempty"`
}

// GET /api/map/stats
func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	slots := a.scheduler.Slots()
	resp := statsResponse{
		MaxInstances:        a.scheduler.MaxInstances(),
		ResourceConstrained: a.scheduler.NeedsControl(),
		Active:              len(slots),
		Pending:             a.scheduler.PendingCount(),
		Slots:               make([]slotView, 0, len(slots)),
	}
	for _, s := range slots {
		resp.Slots = append(resp.Slots, slotView{Owner: string(s.Owner), Priority: s.Priority, InstanceID: s.InstanceID})
	}
	if owner, ok := a.scheduler.DesktopOwner(); ok {
		resp.DesktopOwner = string(owner)
	}
	if a.renderer != nil {
		resp.RenderQueue = a.renderer.QueueLen()
		resp.RendererAvailable = a.renderer.Available()
	}
	if a.events != nil {
		resp.Events = make(map[string]int64)
		for kind, n := range a.events.Total() {
			resp.Events[string(kind)] = n
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleSnapshot devolve o PNG de até 5 locais.
// GET /api/map/snapshot?loc=lat,lng[,label]&loc=...&zoom=14&y=120
func (a *API) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if a.renderer == nil {
		respondError(w, r, http.StatusServiceUnavailable, "snapshot renderer disabled")
		return
	}

	q := r.URL.Query()
	locations, err := ParseLocations(q["loc"])
	if err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	zoom := defaultSnapshotZoom
	if v := q.Get("zoom"); v != "" {
		zoom, err = strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(zoom) || math.IsInf(zoom, 0) {
			respondError(w, r, http.StatusBadRequest, "invalid zoom")
			return
		}
	}

	var anchor domain.Anchor
	if v := q.Get("y"); v != "" {
		y, err := strconv.ParseFloat(v, 64)
		if err != nil {
			respondError(w, r, http.StatusBadRequest, "invalid y")
			return
		}
		anchor = domain.PageY(y)
	}

	img := a.renderer.RenderMapToImage(r.Context(), locations, zoom, anchor)
	if img == nil {
		respondError(w, r, http.StatusServiceUnavailable, "snapshot unavailable")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", formatInt(len(img)))
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img)
}

// DELETE /api/map/snapshot/cache
func (a *API) handleClearCache(w http.ResponseWriter, r *http.Request) {
	if a.renderer == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err := a.renderer.ClearCache(r.Context()); err != nil {
		a.logger.Error("clear cache failed", "error", err)
		respondError(w, r, http.StatusInternalServerError, "clear cache failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type paramError string

func (e paramError) Error() string { return string(e) }

// ParseLocations lê valores "lat,lng[,label]"; a etiqueta pode conter vírgulas.
func ParseLocations(raw []string) ([]domain.Location, error) {
	if len(raw) == 0 {
		return nil, paramError("at least one loc is required")
	}
	if len(raw) > domain.MaxLocations {
		return nil, paramError("at most " + formatInt(domain.MaxLocations) + " locations")
	}

	out := make([]domain.Location, 0, len(raw))
	for _, s := range raw {
		parts := strings.SplitN(s, ",", 3)
		if len(parts) < 2 {
			return nil, paramError("loc must be lat,lng[,label]: " + s)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil || lat < -90 || lat > 90 {
			return nil, paramError("invalid latitude: " + parts[0])
		}
		lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil || lng < -180 || lng > 180 {
			return nil, paramError("invalid longitude: " + parts[1])
		}
		l := domain.Location{Lat: lat, Lng: lng}
		if len(parts) == 3 {
			l.Label = strings.TrimSpace(parts[2])
		}
		out = append(out, l)
	}
	return out, nil
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func respondError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	respondJSON(w, status, errorResponse{Error: msg, RequestID: middleware.GetReqID(r.Context())})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// loggingMiddleware registra método, rota, status e duração de cada request.
func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(sw, r)

			logger.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration", time.Since(start).String(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
