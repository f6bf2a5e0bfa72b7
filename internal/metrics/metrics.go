package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ingestion and anomaly pipeline metrics for production monitoring
var (
	// Upload metrics
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentraview_uploads_total",
			Help: "Total number of spreadsheet uploads processed",
		},
		[]string{"tool", "status"}, // status: parsed/rejected/duplicate
	)

	ParseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sentraview_parse_duration_seconds",
			Help:    "Workbook parse duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"tool"},
	)

	RecordsParsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentraview_records_parsed_total",
			Help: "Total number of records extracted from uploads",
		},
		[]string{"tool"},
	)

	DuplicateRecordsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentraview_duplicate_records_dropped_total",
			Help: "Total number of rows removed by signature deduplication",
		},
		[]string{"tool"},
	)

	// Dataset metrics
	DatasetActivations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentraview_dataset_activations_total",
			Help: "Total number of dataset activation swaps",
		},
		[]string{"tool"},
	)

	// Filter metrics
	FilterRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentraview_filter_requests_total",
			Help: "Total number of filtered read requests",
		},
		[]string{"tool", "range"},
	)

	FilterDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sentraview_filter_duration_seconds",
			Help:    "Filter and KPI recomputation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"tool"},
	)

	// Training metrics
	TrainingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentraview_trainings_total",
			Help: "Total number of anomaly model training runs",
		},
		[]string{"tool", "status"}, // status: trained/failed
	)

	TrainingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sentraview_training_duration_seconds",
			Help:    "Model training duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1min
		},
		[]string{"tool"},
	)

	TrainingRows = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sentraview_training_rows",
			Help: "Number of daily feature rows in the last training run",
		},
		[]string{"tool"},
	)

	// Detection metrics
	AnomaliesDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentraview_anomalies_detected_total",
			Help: "Total number of anomalous days flagged",
		},
		[]string{"tool", "severity"},
	)

	ScoringRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentraview_scoring_runs_total",
			Help: "Total number of scoring runs against an active model",
		},
		[]string{"tool", "status"},
	)
)
