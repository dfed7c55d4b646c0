package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/KishorKumar15007/aqimonitor/internal/chart"
	"github.com/KishorKumar15007/aqimonitor/internal/feed"
	"github.com/KishorKumar15007/aqimonitor/internal/metrics"
	"github.com/KishorKumar15007/aqimonitor/internal/rtdb"
	"github.com/KishorKumar15007/aqimonitor/internal/telemetry"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10 // musí být kratší než pongWait
	maxMessageSize = 512
	sendBuffer     = 16
)

// Pohledy, které umí stream.
const (
	viewLive    = "live"
	viewHistory = "history"
	viewAlerts  = "alerts"
)

// StreamHandler obsluhuje GET /api/devices/{id}/stream?view=...
// Otevření socketu = mount pohledu (subscribe), zavření = unmount (unsubscribe).
type StreamHandler struct {
	svc      *Service
	refresh  time.Duration
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewStreamHandler(svc *Service, refresh time.Duration, origins []string, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{
		svc:     svc,
		refresh: refresh,
		logger:  logger.With("component", "stream"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(origins),
		},
	}
}

// originChecker povolí "*" nebo přesnou shodu hlavičky Origin.
func originChecker(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if u, err := url.Parse(origin); err == nil && u.Host == r.Host {
			return true
		}
		return allowed[origin]
	}
}

// session je jedno WebSocket spojení a readery, které vlastní.
type session struct {
	id       string
	deviceID string
	view     string
	conn     *websocket.Conn
	send     chan []byte
	ctx      context.Context
	cancel   context.CancelFunc
	logger   *slog.Logger

	// jen pro view=history
	mu      sync.Mutex
	history *feed.HistoryReader
	chartIn chart.Input
}

func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "id")
	if !rtdb.ValidDeviceID(deviceID) {
		writeStatus(w, http.StatusBadRequest, "neplatné ID zařízení")
		return
	}
	q := r.URL.Query()
	view := q.Get("view")
	if view == "" {
		view = viewLive
	}
	if view != viewLive && view != viewHistory && view != viewAlerts {
		writeStatus(w, http.StatusBadRequest, fmt.Sprintf("neznámý pohled %q", view))
		return
	}
	g, err := telemetry.ParseGranularity(q.Get("range"))
	if err != nil {
		writeStatus(w, http.StatusBadRequest, err.Error())
		return
	}
	in := chart.Input{Location: h.svc.opts.Location}
	if in.Labels, err = chart.ParseLabelStyle(q.Get("labels")); err != nil {
		writeStatus(w, http.StatusBadRequest, err.Error())
		return
	}
	if q.Has("metrics") {
		if in.Metrics, err = chart.ParseMetrics(q.Get("metrics")); err != nil {
			writeStatus(w, http.StatusBadRequest, err.Error())
			return
		}
		if in.Metrics == nil {
			in.Metrics = []telemetry.Metric{}
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade už odpověděl klientovi
		h.logger.Warn("WebSocket upgrade selhal", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		id:       uuid.NewString(),
		deviceID: deviceID,
		view:     view,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		ctx:      ctx,
		cancel:   cancel,
		chartIn:  in,
	}
	s.logger = h.logger.With("session", s.id, "device", deviceID, "view", view)

	metrics.StreamSessions.WithLabelValues(view).Inc()
	defer metrics.StreamSessions.WithLabelValues(view).Dec()
	s.logger.Info("Stream otevřen", "remote", r.RemoteAddr)

	stop, err := h.mount(s, g)
	if err != nil {
		s.logger.Error("Odběr se nepodařilo spustit", "error", err)
		s.push("error", ErrorResponse{Error: "zdroj dat není dostupný"})
	}

	go s.writePump()
	s.readPump(h)

	// unmount
	cancel()
	if stop != nil {
		stop()
	}
	s.logger.Info("Stream zavřen")
}

// mount spustí reader podle pohledu. Vrací funkci, která ho zastaví.
func (h *StreamHandler) mount(s *session, g telemetry.Granularity) (func(), error) {
	switch s.view {
	case viewHistory:
		reader := h.svc.NewHistoryReader(s.deviceID)
		s.mu.Lock()
		s.history = reader
		s.mu.Unlock()
		err := reader.Start(s.ctx, g, func(series telemetry.Series) {
			s.push("chart", chart.Build(series, s.chartInput()))
		})
		return reader.Stop, err

	case viewAlerts:
		reader := h.svc.NewAlertReader(s.deviceID)
		err := reader.Start(s.ctx, func(alerts []telemetry.AlertView) {
			s.push("alerts", alerts)
		})
		return reader.Stop, err

	default:
		reader := h.svc.NewLiveReader(s.deviceID)
		if err := reader.Start(s.ctx, func(v telemetry.LiveView) { s.push("live", v) }); err != nil {
			return reader.Stop, err
		}
		go s.refreshLoop(reader, h.refresh)
		return reader.Stop, nil
	}
}

func (s *session) chartInput() chart.Input {
	s.mu.Lock()
	defer s.mu.Unlock()
	in := s.chartIn
	if in.Metrics != nil {
		in.Metrics = append([]telemetry.Metric{}, in.Metrics...)
	}
	return in
}

// refreshLoop přepne LIVE → OFFLINE i bez nového pushe.
func (s *session) refreshLoop(reader *feed.LiveReader, every time.Duration) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			reader.Refresh()
		}
	}
}

// push serializuje zprávu a zařadí ji k odeslání. Neblokuje: klient,
// který nestíhá číst, je odpojen.
func (s *session) push(kind string, data any) {
	payload, err := json.Marshal(StreamMessage{Type: kind, DeviceID: s.deviceID, Data: data})
	if err != nil {
		s.logger.Error("Serializace zprávy selhala", "type", kind, "error", err)
		return
	}
	select {
	case <-s.ctx.Done():
	case s.send <- payload:
	default:
		s.logger.Warn("Klient nestíhá, odpojuji")
		s.cancel()
	}
}

// readPump čte řídicí zprávy. Skončí chybou čtení nebo zavřením socketu.
func (s *session) readPump(h *StreamHandler) {
	defer s.conn.Close()
	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("Chyba čtení WebSocketu", "error", err)
			}
			return
		}
		if err := s.control(message); err != nil {
			s.push("error", ErrorResponse{Error: err.Error()})
		}
	}
}

// control zpracuje {"range": ...}, {"metrics": [...]}, {"labels": ...}.
func (s *session) control(message []byte) error {
	var msg ControlMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return fmt.Errorf("neplatná řídicí zpráva: %w", err)
	}

	s.mu.Lock()
	reader := s.history
	s.mu.Unlock()
	if reader == nil {
		return fmt.Errorf("pohled %s nepřijímá řídicí zprávy", s.view)
	}

	rerender := false
	if msg.Metrics != nil {
		selected := []telemetry.Metric{}
		for _, name := range *msg.Metrics {
			m, err := telemetry.ParseMetric(name)
			if err != nil {
				return err
			}
			selected = append(selected, m)
		}
		s.mu.Lock()
		s.chartIn.Metrics = selected
		s.mu.Unlock()
		rerender = true
	}
	if msg.Labels != nil {
		style, err := chart.ParseLabelStyle(*msg.Labels)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.chartIn.Labels = style
		s.mu.Unlock()
		rerender = true
	}
	if msg.Range != nil {
		g, err := telemetry.ParseGranularity(*msg.Range)
		if err != nil {
			return err
		}
		if g != reader.Granularity() || !reader.Attached() {
			// nová kolekce pošle svůj první snapshot sama
			if err := reader.SetGranularity(s.ctx, g); err != nil {
				return fmt.Errorf("přepnutí rozsahu selhalo: %w", err)
			}
			s.logger.Info("Rozsah přepnut", "range", g)
			return nil
		}
	}
	if rerender {
		s.push("chart", chart.Build(reader.Current(), s.chartInput()))
	}
	return nil
}

// writePump posílá zprávy z fronty a pingy. Skončí se session.
func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()
	for {
		select {
		case <-s.ctx.Done():
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case message := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.logger.Warn("Chyba zápisu WebSocketu", "error", err)
				s.cancel()
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.cancel()
				return
			}
		}
	}
}

// writeStatus: chyba před upgradem, ve stejném tvaru jako REST.
func writeStatus(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: msg})
}
