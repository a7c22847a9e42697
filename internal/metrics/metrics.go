package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/foxzi/phishdash/internal/results"
)

// Metrics holds all Prometheus metrics for phishdash
type Metrics struct {
	// Polling
	PollsTotal          *prometheus.CounterVec
	PollDurationSeconds *prometheus.HistogramVec
	LastPollTimestamp   *prometheus.GaugeVec

	// Results state
	Results           *prometheus.GaugeVec
	SelectedCampaigns *prometheus.GaugeVec
	Campaigns         *prometheus.GaugeVec
	SubmittedForms    *prometheus.GaugeVec
	CommandsTotal     *prometheus.CounterVec

	// API metrics
	APIRequestsTotal          *prometheus.CounterVec
	APIRequestDurationSeconds *prometheus.HistogramVec
	APIErrorsTotal            *prometheus.CounterVec

	// System metrics
	UptimeSeconds    prometheus.Gauge
	Goroutines       prometheus.Gauge
	StorageUsedBytes prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		PollsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "phishdash_polls_total",
				Help: "Total number of results fetches by outcome",
			},
			[]string{"workspace", "outcome"},
		),
		PollDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "phishdash_poll_duration_seconds",
				Help:    "Results fetch duration in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"workspace"},
		),
		LastPollTimestamp: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "phishdash_last_successful_poll_timestamp_seconds",
				Help: "Unix time of the last applied fetch",
			},
			[]string{"workspace"},
		),

		Results: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "phishdash_results",
				Help: "Number of results in the selected campaigns by status bucket",
			},
			[]string{"workspace", "bucket"},
		),
		SelectedCampaigns: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "phishdash_selected_campaigns",
				Help: "Number of selected campaigns",
			},
			[]string{"workspace"},
		),
		Campaigns: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "phishdash_campaigns",
				Help: "Number of campaigns in the last fetch",
			},
			[]string{"workspace"},
		),
		SubmittedForms: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "phishdash_submitted_forms",
				Help: "Number of submitted forms in the selected campaigns",
			},
			[]string{"workspace"},
		),
		CommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "phishdash_commands_total",
				Help: "Total number of applied state changes by kind",
			},
			[]string{"workspace", "kind"},
		),

		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "phishdash_api_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		APIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "phishdash_api_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		APIErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "phishdash_api_errors_total",
				Help: "Total number of API errors",
			},
			[]string{"error_type"},
		),

		UptimeSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "phishdash_uptime_seconds",
				Help: "Server uptime in seconds",
			},
		),
		Goroutines: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "phishdash_goroutines",
				Help: "Number of active goroutines",
			},
		),
		StorageUsedBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "phishdash_storage_used_bytes",
				Help: "BoltDB file size in bytes",
			},
		),

		registry: reg,
	}

	reg.MustRegister(
		m.PollsTotal,
		m.PollDurationSeconds,
		m.LastPollTimestamp,
		m.Results,
		m.SelectedCampaigns,
		m.Campaigns,
		m.SubmittedForms,
		m.CommandsTotal,
		m.APIRequestsTotal,
		m.APIRequestDurationSeconds,
		m.APIErrorsTotal,
		m.UptimeSeconds,
		m.Goroutines,
		m.StorageUsedBytes,
	)

	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// FetchFinished records the outcome and duration of a results fetch
func (m *Metrics) FetchFinished(workspaceID string, d time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.PollsTotal.WithLabelValues(workspaceID, outcome).Inc()
	m.PollDurationSeconds.WithLabelValues(workspaceID).Observe(d.Seconds())
}

// CommandApplied counts a state change
func (m *Metrics) CommandApplied(workspaceID, kind string) {
	m.CommandsTotal.WithLabelValues(workspaceID, kind).Inc()
}

// StateChanged updates the gauges from a published state
func (m *Metrics) StateChanged(workspaceID string, st *results.State) {
	c := st.Counters
	buckets := map[string]int{
		"errored":    c.Errored,
		"scheduled":  c.Scheduled,
		"sent":       c.Sent,
		"unopened":   c.Unopened,
		"opened":     c.Opened,
		"clicked":    c.Clicked,
		"downloaded": c.Downloaded,
		"submitted":  c.Submitted,
	}
	for bucket, n := range buckets {
		m.Results.WithLabelValues(workspaceID, bucket).Set(float64(n))
	}

	selected := 0
	for _, camp := range st.Campaigns {
		if camp.State {
			selected++
		}
	}
	m.SelectedCampaigns.WithLabelValues(workspaceID).Set(float64(selected))
	m.Campaigns.WithLabelValues(workspaceID).Set(float64(len(st.Campaigns)))
	m.SubmittedForms.WithLabelValues(workspaceID).Set(float64(len(st.Forms)))

	if !st.FetchedAt.IsZero() {
		m.LastPollTimestamp.WithLabelValues(workspaceID).Set(float64(st.FetchedAt.Unix()))
	}
}
