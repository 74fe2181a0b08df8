package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// writeMetrics publishes the cycle outcome in node_exporter textfile format.
func writeMetrics(path string, res Result, now time.Time) error {
	reg := prometheus.NewRegistry()

	archiveBytes := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bootchartd_archive_bytes",
		Help: "Size of the last written bootchart archive.",
	})
	entries := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bootchartd_archive_entries",
		Help: "Number of files in the last written bootchart archive.",
	})
	lastStop := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bootchartd_last_stop_timestamp_seconds",
		Help: "Unix time of the last completed extraction.",
	})
	duration := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bootchartd_stop_duration_seconds",
		Help: "Wall time of the last extraction cycle.",
	})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bootchartd_post_step_failures_total",
		Help: "Best-effort post-archive steps that failed in the last cycle.",
	}, []string{"step"})
	reg.MustRegister(archiveBytes, entries, lastStop, duration, failures)

	archiveBytes.Set(float64(res.Archive.Bytes))
	entries.Set(float64(len(res.Archive.Entries)))
	lastStop.Set(float64(now.Unix()))
	duration.Set(res.Duration.Seconds())
	failures.WithLabelValues("render")
	failures.WithLabelValues("hook")
	if res.RenderErr != nil {
		failures.WithLabelValues("render").Inc()
	}
	if res.HookErr != nil {
		failures.WithLabelValues("hook").Inc()
	}

	return prometheus.WriteToTextfile(path, reg)
}
