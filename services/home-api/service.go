package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/KishorKumar15007/aqimonitor/internal/chart"
	"github.com/KishorKumar15007/aqimonitor/internal/feed"
	"github.com/KishorKumar15007/aqimonitor/internal/rtdb"
	"github.com/KishorKumar15007/aqimonitor/internal/sysstats"
	"github.com/KishorKumar15007/aqimonitor/internal/telemetry"
)

// ErrInvalidDevice: ID zařízení z URL neprošlo validací.
var ErrInvalidDevice = errors.New("neplatné ID zařízení")

// Service drží jediného klienta realtime stromu a skládá z něj view-modely.
// Sám nic nezapisuje, jen čte.
type Service struct {
	client  rtdb.Client
	backend string
	devices []string
	opts    telemetry.ViewOptions
	monitor *sysstats.Monitor
	now     func() time.Time
}

// NewService je konstruktor (Dependency Injection). monitor může být nil.
func NewService(client rtdb.Client, backend string, devices []string, opts telemetry.ViewOptions, monitor *sysstats.Monitor) *Service {
	return &Service{
		client:  client,
		backend: backend,
		devices: devices,
		opts:    opts,
		monitor: monitor,
		now:     time.Now,
	}
}

func checkDevice(id string) error {
	if !rtdb.ValidDeviceID(id) {
		return fmt.Errorf("%w: %q", ErrInvalidDevice, id)
	}
	return nil
}

// Live vrací aktuální stav zařízení. Chybějící data nejsou chyba (HasData=false).
func (s *Service) Live(ctx context.Context, deviceID string) (telemetry.LiveView, error) {
	if err := checkDevice(deviceID); err != nil {
		return telemetry.LiveView{}, err
	}
	return feed.LiveSnapshot(ctx, s.client, deviceID, s.opts, s.now())
}

// History vrací celou řadu zvolené granularity seřazenou vzestupně.
func (s *Service) History(ctx context.Context, deviceID string, g telemetry.Granularity) (telemetry.Series, error) {
	if err := checkDevice(deviceID); err != nil {
		return telemetry.Series{}, err
	}
	return feed.HistorySnapshot(ctx, s.client, deviceID, g)
}

// Chart vrací graf pro stránku Analytics.
func (s *Service) Chart(ctx context.Context, deviceID string, g telemetry.Granularity, in chart.Input) (chart.Chart, error) {
	series, err := s.History(ctx, deviceID, g)
	if err != nil {
		return chart.Chart{}, err
	}
	in.Location = s.opts.Location
	return chart.Build(series, in), nil
}

// Alerts vrací alerty za posledních 7 dní, nejnovější první.
func (s *Service) Alerts(ctx context.Context, deviceID string) ([]telemetry.AlertView, error) {
	if err := checkDevice(deviceID); err != nil {
		return nil, err
	}
	return feed.AlertsSnapshot(ctx, s.client, deviceID, s.opts, s.now())
}

// Devices vrací nakonfigurovaná zařízení s jejich živým stavem.
func (s *Service) Devices(ctx context.Context) ([]DeviceDTO, error) {
	out := make([]DeviceDTO, 0, len(s.devices))
	for _, id := range s.devices {
		live, err := s.Live(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("zařízení %s: %w", id, err)
		}
		out = append(out, DeviceDTO{ID: id, Live: live})
	}
	return out, nil
}

// System vrací poslední systémové statistiky.
func (s *Service) System() SystemDTO {
	dto := SystemDTO{Backend: s.backend}
	if s.monitor != nil {
		dto.Stats, dto.Ready = s.monitor.Latest()
	}
	return dto
}

// Readery pro WebSocket streamy. Každý stream má vlastní.

func (s *Service) NewLiveReader(deviceID string) *feed.LiveReader {
	return feed.NewLiveReader(s.client, deviceID, s.opts, s.now)
}

func (s *Service) NewHistoryReader(deviceID string) *feed.HistoryReader {
	return feed.NewHistoryReader(s.client, deviceID)
}

func (s *Service) NewAlertReader(deviceID string) *feed.AlertReader {
	return feed.NewAlertReader(s.client, deviceID, s.opts, s.now)
}
