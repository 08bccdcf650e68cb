package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	documentsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docflow_documents_processed_total",
			Help: "Total number of processed documents by terminal state",
		},
		[]string{"state"},
	)

	stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docflow_stage_duration_seconds",
			Help:    "Duration of individual pipeline stages",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)

	matchTiers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docflow_identity_match_tier_total",
			Help: "Identity resolution outcomes by confidence tier",
		},
		[]string{"tier"},
	)

	packagedPlaceholders = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "docflow_placeholder_documents_total",
			Help: "Documents archived as placeholder PDFs",
		},
	)
)
