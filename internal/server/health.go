package server

import (
	"encoding/json"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/dgnsrekt/voicepipe/internal/cache"
	"github.com/dgnsrekt/voicepipe/internal/ttypes"
	"github.com/dgnsrekt/voicepipe/internal/worker"
)

type healthReport struct {
	Status  string                       `json:"status"`
	Uptime  string                       `json:"uptime"`
	Process processReport                `json:"process"`
	System  systemReport                 `json:"system"`
	Workers worker.Stats                 `json:"workers"`
	Cache   *cache.ManagerStats          `json:"cache,omitempty"`
	Engines map[string]ttypes.EngineInfo `json:"engines"`
}

type processReport struct {
	PID        int32   `json:"pid"`
	RSSBytes   uint64  `json:"rss_bytes"`
	CPUPercent float64 `json:"cpu_percent"`
	Threads    int32   `json:"threads"`
	Goroutines int     `json:"goroutines"`
}

type systemReport struct {
	CPUs              int     `json:"cpus"`
	MemoryUsedPercent float64 `json:"memory_used_percent"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()

	report := healthReport{
		Status:  "ok",
		Uptime:  time.Since(s.startTime).Round(time.Second).String(),
		Workers: s.deps.Pool.Stats(),
		Engines: make(map[string]ttypes.EngineInfo),
	}

	// Stats are best effort; a platform without /proc just reports zeros
	report.Process.PID = int32(os.Getpid()) //nolint:gosec
	report.Process.Goroutines = runtime.NumGoroutine()
	if p, err := process.NewProcessWithContext(ctx, report.Process.PID); err == nil {
		if m, err := p.MemoryInfoWithContext(ctx); err == nil {
			report.Process.RSSBytes = m.RSS
		}
		if c, err := p.CPUPercentWithContext(ctx); err == nil {
			report.Process.CPUPercent = c
		}
		if n, err := p.NumThreadsWithContext(ctx); err == nil {
			report.Process.Threads = n
		}
	}
	if n, err := cpu.CountsWithContext(ctx, true); err == nil {
		report.System.CPUs = n
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		report.System.MemoryUsedPercent = vm.UsedPercent
	}

	if s.deps.Cache != nil {
		stats := s.deps.Cache.Stats()
		report.Cache = &stats
	}
	if s.deps.Transcriber != nil {
		report.Engines["stt"] = s.deps.Transcriber.GetInfo()
	}
	if s.deps.Synthesizer != nil {
		report.Engines["tts"] = s.deps.Synthesizer.GetInfo()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(report); err != nil {
		s.logger.Debug("could not write health report", "error", err)
	}
}
