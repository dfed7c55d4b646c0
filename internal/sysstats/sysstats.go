// Package sysstats měří stav hostitele, na kterém běží backend (panel System Status).
package sysstats

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// DefaultProcesses jsou procesy, jejichž RSS sčítáme do AppRamUsedMB.
var DefaultProcesses = []string{"home-api", "web-dashboard", "log-collector", "mosquitto", "valkey", "postgres"}

// Stats je jeden snímek stavu systému.
type Stats struct {
	CPULoad float64 `json:"cpu_load"`

	// Used = Total - Available, tedy bez diskové cache.
	RamUsedMB  float64 `json:"ram_used_mb"`
	RamTotalMB float64 `json:"ram_total_mb"`

	AppRamUsedMB float64 `json:"app_ram_used_mb"`

	DiskUsedGB  float64 `json:"disk_used_gb"`
	DiskTotalGB float64 `json:"disk_total_gb"`

	UptimeSeconds uint64 `json:"uptime_seconds"`
	CollectedAt   int64  `json:"collected_at"`
}

// Collect změří všechno najednou. Chyba jedné části se zaloguje a ostatní pokračují.
// Měření CPU trvá sample (typicky 1 s).
func Collect(ctx context.Context, sample time.Duration, processes []string, logger *slog.Logger) Stats {
	stats := Stats{CollectedAt: time.Now().Unix()}

	percentages, err := cpu.PercentWithContext(ctx, sample, false)
	if err == nil && len(percentages) > 0 {
		stats.CPULoad = percentages[0]
	} else {
		logger.Error("Chyba při čtení CPU statistik", "error", err)
	}

	if vMem, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		stats.RamUsedMB = float64(vMem.Total-vMem.Available) / 1024.0 / 1024.0
		stats.RamTotalMB = float64(vMem.Total) / 1024.0 / 1024.0
	} else {
		logger.Error("Chyba při čtení RAM statistik", "error", err)
	}

	stats.AppRamUsedMB = float64(appMemory(ctx, processes)) / 1024.0 / 1024.0

	if dStat, err := disk.UsageWithContext(ctx, "/"); err == nil {
		stats.DiskUsedGB = float64(dStat.Used) / 1024.0 / 1024.0 / 1024.0
		stats.DiskTotalGB = float64(dStat.Total) / 1024.0 / 1024.0 / 1024.0
	} else {
		logger.Error("Chyba při čtení statistik disku", "error", err)
	}

	if up, err := host.UptimeWithContext(ctx); err == nil {
		stats.UptimeSeconds = up
	} else {
		logger.Warn("Chyba při čtení uptime", "error", err)
	}

	return stats
}

// appMemory sečte RSS procesů, jejichž název obsahuje některý z targets.
func appMemory(ctx context.Context, targets []string) uint64 {
	procs, _ := process.ProcessesWithContext(ctx)
	var sum uint64
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			// proces mezitím skončil
			continue
		}
		if !matches(name, targets) {
			continue
		}
		if memInfo, err := p.MemoryInfoWithContext(ctx); err == nil {
			sum += memInfo.RSS
		}
	}
	return sum
}

func matches(name string, targets []string) bool {
	for _, t := range targets {
		if strings.Contains(name, t) {
			return true
		}
	}
	return false
}

// Monitor měří v intervalu na pozadí; HTTP handler jen čte poslední snímek
// a nečeká na měření CPU.
type Monitor struct {
	interval  time.Duration
	sample    time.Duration
	processes []string
	logger    *slog.Logger
	collect   func(ctx context.Context) Stats

	mu     sync.RWMutex
	latest Stats
	ready  bool
}

// NewMonitor vytvoří monitor. processes == nil znamená DefaultProcesses.
func NewMonitor(interval time.Duration, processes []string, logger *slog.Logger) *Monitor {
	if processes == nil {
		processes = DefaultProcesses
	}
	m := &Monitor{
		interval:  interval,
		sample:    time.Second,
		processes: processes,
		logger:    logger,
	}
	m.collect = func(ctx context.Context) Stats {
		return Collect(ctx, m.sample, m.processes, m.logger)
	}
	return m
}

// Run měří hned při startu a pak každý interval, dokud neskončí ctx.
func (m *Monitor) Run(ctx context.Context) {
	m.refresh(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.refresh(ctx)
		}
	}
}

func (m *Monitor) refresh(ctx context.Context) {
	stats := m.collect(ctx)
	if ctx.Err() != nil {
		return
	}
	m.mu.Lock()
	m.latest = stats
	m.ready = true
	m.mu.Unlock()
	m.logger.Debug("Systémové statistiky aktualizovány", "cpu", stats.CPULoad, "ram_used_mb", stats.RamUsedMB)
}

// Latest vrací poslední snímek; false, dokud neproběhlo první měření.
func (m *Monitor) Latest() (Stats, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest, m.ready
}
