package server

import (
	"context"
	"net/http"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// systemStatus is the response of GET /api/system/status.
type systemStatus struct {
	Status        string                    `json:"status"`
	UptimeSeconds int64                     `json:"uptime_seconds"`
	Memory        *memoryStatus             `json:"memory,omitempty"`
	CPUPercent    *float64                  `json:"cpu_percent,omitempty"`
	Connectivity  map[string]serviceStatus  `json:"connectivity"`
	Databases     map[string]databaseStatus `json:"databases"`
}

type memoryStatus struct {
	TotalBytes  uint64  `json:"total_bytes"`
	UsedBytes   uint64  `json:"used_bytes"`
	UsedPercent float64 `json:"used_percent"`
}

type serviceStatus struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type databaseStatus struct {
	OK           bool  `json:"ok"`
	SizeBytes    int64 `json:"size_bytes"`
	WALSizeBytes int64 `json:"wal_size_bytes"`
}

func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	status := systemStatus{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Connectivity:  map[string]serviceStatus{},
		Databases:     map[string]databaseStatus{},
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		status.Memory = &memoryStatus{
			TotalBytes:  vm.Total,
			UsedBytes:   vm.Used,
			UsedPercent: vm.UsedPercent,
		}
	}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		status.CPUPercent = &percents[0]
	}

	status.Connectivity["binance"] = pingStatus(ctx, s.exchange)
	status.Connectivity["coinmarketcap"] = pingStatus(ctx, s.ranking)

	for name, db := range s.databases {
		dbStatus := databaseStatus{OK: db.QuickCheck(ctx) == nil}
		if stats, err := db.GetStats(); err == nil {
			dbStatus.SizeBytes = stats.SizeBytes
			dbStatus.WALSizeBytes = stats.WALSizeBytes
		}
		status.Databases[name] = dbStatus
	}

	for _, c := range status.Connectivity {
		if !c.OK {
			status.Status = "degraded"
			break
		}
	}

	s.respondJSON(w, http.StatusOK, status)
}

func pingStatus(ctx context.Context, p Pinger) serviceStatus {
	if p == nil {
		return serviceStatus{OK: false, Error: "not configured"}
	}
	if err := p.Ping(ctx); err != nil {
		return serviceStatus{OK: false, Error: err.Error()}
	}
	return serviceStatus{OK: true}
}
