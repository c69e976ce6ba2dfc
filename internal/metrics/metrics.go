package metrics

import (
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	DevicesCounter *prometheus.CounterVec

	StageCounter        *prometheus.CounterVec
	StageRunTimeSummary *prometheus.SummaryVec

	RegistryErrorCounter *prometheus.CounterVec
	LedgerErrorCounter   prometheus.Counter
)

func init() {
	DevicesCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commissioner_devices_processed",
			Help: "A counter metric to measure the total count of devices processed, by outcome",
		},
		[]string{"outcome"},
	)

	StageCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commissioner_stages_executed",
			Help: "A counter metric to measure the sum of commissioning stages executed, successful and failed",
		},
		[]string{"stage", "state"},
	)

	StageRunTimeSummary = promauto.NewSummaryVec(
		prometheus.SummaryOpts{
			Name: "commissioner_stage_duration_seconds",
			Help: "A summary metric to measure the total time spent in each commissioning stage",
		},
		[]string{"stage"},
	)

	RegistryErrorCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commissioner_registry_errors",
			Help: "A counter metric to measure the total count of cloud registry request errors",
		},
		[]string{"operation"},
	)

	LedgerErrorCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "commissioner_ledger_errors",
			Help: "A counter metric to measure the total count of inventory ledger write errors",
		},
	)
}

// ObserveStageRunTime records the duration of a completed stage.
func ObserveStageRunTime(stage string, startTS time.Time) {
	StageRunTimeSummary.With(
		prometheus.Labels{"stage": stage},
	).Observe(time.Since(startTS).Seconds())
}

// ListenAndServe exposes the metrics endpoint.
func ListenAndServe(addr string) {
	endpoint := addr

	go func() {
		http.Handle("/metrics", promhttp.Handler())

		server := &http.Server{
			Addr:              endpoint,
			ReadHeaderTimeout: 2 * time.Second,
		}

		if err := server.ListenAndServe(); err != nil {
			log.Println(err)
		}
	}()
}
