package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	DownloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lwbackup_downloads_total",
			Help: "Total number of archive downloads by environment and status.",
		},
		[]string{"env", "status"}, // status: succeeded, failed
	)

	DownloadBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lwbackup_download_bytes_total",
			Help: "Total number of archive bytes written to disk by environment.",
		},
		[]string{"env"},
	)

	BatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lwbackup_batches_total",
			Help: "Total number of backup batches by final status.",
		},
		[]string{"status"},
	)

	RollbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lwbackup_rollbacks_total",
			Help: "Total number of whole-batch rollbacks.",
		},
	)

	BatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lwbackup_batch_duration_seconds",
			Help:    "Wall-clock duration of backup batches.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)
)

func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(DownloadsTotal, DownloadBytesTotal, BatchesTotal, RollbacksTotal, BatchDuration)
}
