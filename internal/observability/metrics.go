package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	scanPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "checkin_service",
		Subsystem: "persistence",
		Name:      "last_scan_recorded_timestamp_seconds",
		Help:      "Unix timestamp of the most recent scan persisted to the store.",
	})
	scansRecordedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "checkin_service",
		Subsystem: "ingest",
		Name:      "scans_recorded_total",
		Help:      "Number of scans recorded through the check-in endpoint.",
	})
	importedUsersGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "checkin_service",
		Subsystem: "importer",
		Name:      "imported_users",
		Help:      "Number of users loaded by the last completed bulk import.",
	})
	importedScansGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "checkin_service",
		Subsystem: "importer",
		Name:      "imported_scans",
		Help:      "Number of scans loaded by the last completed bulk import.",
	})
)

func init() {
	prometheus.MustRegister(scanPersistGauge, scansRecordedCounter, importedUsersGauge, importedScansGauge)
}

// RecordScanPersisted updates the persistence watermark gauge and the scan
// counter.
func RecordScanPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	scanPersistGauge.Set(float64(ts.Unix()))
	scansRecordedCounter.Inc()
}

// RecordImportCompleted reports the size of a completed bulk import.
func RecordImportCompleted(users, scans int) {
	importedUsersGauge.Set(float64(users))
	importedScansGauge.Set(float64(scans))
}
