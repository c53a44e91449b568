package workers

import (
	"context"
	"feedback-relay/observability"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/process"
)

// HealthMonitoringWorker samples the relay's own process on every tick and
// publishes resident memory, CPU and goroutine count as gauges.
type HealthMonitoringWorker struct {
	log            *slog.Logger
	metrics        *observability.Metrics
	metricInterval time.Duration
	pid            int32
}

func NewHealthMonitoringWorker(log *slog.Logger, metrics *observability.Metrics, metricInterval time.Duration) *HealthMonitoringWorker {
	return &HealthMonitoringWorker{
		log:            log,
		metrics:        metrics,
		metricInterval: metricInterval,
		pid:            int32(os.Getpid()),
	}
}

func (w *HealthMonitoringWorker) Run(ctx context.Context) error {
	p, err := process.NewProcess(w.pid)
	if err != nil {
		return err
	}
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping health sampling")
			return nil
		case <-ticker.C:
			w.sample(p)
		}
	}
}

func (w *HealthMonitoringWorker) sample(p *process.Process) {
	w.metrics.Goroutines.Set(float64(runtime.NumGoroutine()))

	if mem, err := p.MemoryInfo(); err != nil {
		w.log.Debug("Error while finding process memory", "pid", w.pid, "err", err)
	} else {
		w.metrics.ProcessResident.Set(float64(mem.RSS))
	}

	cpu, err := p.CPUPercent()
	if err != nil {
		w.log.Debug("Error while finding process cpu usage", "pid", w.pid, "err", err)
		return
	}
	w.metrics.ProcessCPUPercent.Set(cpu)
}
