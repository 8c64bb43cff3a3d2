package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	durationBuckets = []float64{
		0.001, // 1ms
		0.005, // 5ms
		0.01,  // 10ms
		0.025, // 25ms
		0.05,  // 50ms
		0.1,   // 100ms
		0.25,  // 250ms
		0.5,   // 500ms
		1.0,   // 1s
		2.5,   // 2.5s
		5.0,   // 5s
	}

	// PurchaseDuration tracks the latency of pack purchases
	PurchaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pack_purchase_duration_seconds",
			Help:    "Duration of pack purchase requests in seconds",
			Buckets: durationBuckets,
		},
		[]string{"status"}, // success or failure
	)

	// ClaimDuration tracks the latency of pack claims
	ClaimDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pack_claim_duration_seconds",
			Help:    "Duration of pack claim requests in seconds",
			Buckets: durationBuckets,
		},
		[]string{"status"},
	)

	// PacksSold counts successfully purchased packs
	PacksSold = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "packs_sold_total",
			Help: "Total number of packs sold across all campaigns",
		},
	)
)

// RecordPurchaseDuration records the duration of a purchase request
func RecordPurchaseDuration(status string, duration float64) {
	PurchaseDuration.WithLabelValues(status).Observe(duration)
}

// RecordClaimDuration records the duration of a claim request
func RecordClaimDuration(status string, duration float64) {
	ClaimDuration.WithLabelValues(status).Observe(duration)
}
