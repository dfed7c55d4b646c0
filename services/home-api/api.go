package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/handlers"

	"github.com/KishorKumar15007/aqimonitor/internal/chart"
	"github.com/KishorKumar15007/aqimonitor/internal/metrics"
	"github.com/KishorKumar15007/aqimonitor/internal/telemetry"
)

// APIHandler sdružuje metody pro obsluhu HTTP požadavků.
type APIHandler struct {
	svc     *Service
	streams *StreamHandler
	logger  *slog.Logger
}

// NewAPIHandler vytváří novou instanci handleru.
func NewAPIHandler(svc *Service, streams *StreamHandler, logger *slog.Logger) *APIHandler {
	return &APIHandler{svc: svc, streams: streams, logger: logger}
}

// Routes sestaví router. Stream se neměří přes metrics.Instrument,
// protože obalený ResponseWriter neumí Hijack.
func (h *APIHandler) Routes(origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Jednoduchý healthcheck pro Docker
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/devices", metrics.Instrument("devices", h.handleListDevices))
		r.Get("/system", metrics.Instrument("system", h.handleSystem))

		r.Route("/devices/{id}", func(r chi.Router) {
			r.Get("/live", metrics.Instrument("live", h.handleLive))
			r.Get("/history", metrics.Instrument("history", h.handleHistory))
			r.Get("/chart", metrics.Instrument("chart", h.handleChart))
			r.Get("/alerts", metrics.Instrument("alerts", h.handleAlerts))
			r.Get("/stream", h.streams.ServeHTTP)
		})
	})

	return handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)(r)
}

// handleListDevices: GET /api/devices
func (h *APIHandler) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.svc.Devices(r.Context())
	if err != nil {
		h.fail(w, r, err, "Chyba při získávání zařízení")
		return
	}
	h.writeJSON(w, http.StatusOK, devices)
}

// handleSystem: GET /api/system
func (h *APIHandler) handleSystem(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.svc.System())
}

// handleLive: GET /api/devices/{id}/live
func (h *APIHandler) handleLive(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Live(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err, "Chyba při čtení živých dat")
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

// handleHistory: GET /api/devices/{id}/history?range=raw_10s
func (h *APIHandler) handleHistory(w http.ResponseWriter, r *http.Request) {
	g, err := telemetry.ParseGranularity(r.URL.Query().Get("range"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	series, err := h.svc.History(r.Context(), chi.URLParam(r, "id"), g)
	if err != nil {
		h.fail(w, r, err, "Chyba při načítání historie")
		return
	}
	h.writeJSON(w, http.StatusOK, series)
}

// handleChart: GET /api/devices/{id}/chart?range=&metrics=aqi,pm25&labels=blank
// Bez parametru metrics jsou zapnuté všechny čtyři metriky.
func (h *APIHandler) handleChart(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	g, err := telemetry.ParseGranularity(q.Get("range"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	labels, err := chart.ParseLabelStyle(q.Get("labels"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	in := chart.Input{Labels: labels}
	if q.Has("metrics") {
		selected, err := chart.ParseMetrics(q.Get("metrics"))
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		in.Metrics = selected
		if in.Metrics == nil {
			in.Metrics = []telemetry.Metric{}
		}
	}

	c, err := h.svc.Chart(r.Context(), chi.URLParam(r, "id"), g, in)
	if err != nil {
		h.fail(w, r, err, "Chyba při skládání grafu")
		return
	}
	h.writeJSON(w, http.StatusOK, c)
}

// handleAlerts: GET /api/devices/{id}/alerts
func (h *APIHandler) handleAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.svc.Alerts(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err, "Chyba při čtení alertů")
		return
	}
	h.writeJSON(w, http.StatusOK, alerts)
}

// fail rozliší chybu klienta (400) od chyby zdroje (500).
func (h *APIHandler) fail(w http.ResponseWriter, r *http.Request, err error, msg string) {
	if errors.Is(err, ErrInvalidDevice) {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.logger.Error(msg, "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "error", err)
	h.writeError(w, http.StatusInternalServerError, "Interní chyba serveru")
}

func (h *APIHandler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, ErrorResponse{Error: msg})
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Chyba při zápisu JSON odpovědi", "error", err)
	}
}
