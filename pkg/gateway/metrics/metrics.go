// Package metrics holds the Prometheus collectors for the gateway.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Channel labels.
const (
	ChannelBrowser = "browser"
	ChannelPhone   = "phone"
)

// Metrics holds all Prometheus metrics for the gateway. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Session metrics
	SessionsActive  *prometheus.GaugeVec
	SessionsTotal   *prometheus.CounterVec
	SessionDuration *prometheus.HistogramVec
	AudioBytesTotal *prometheus.CounterVec

	// Conversation metrics
	TurnsTotal        *prometheus.CounterVec
	FirstTokenLatency *prometheus.HistogramVec
	ModeChangesTotal  *prometheus.CounterVec

	// Escalation metrics
	CountdownsTotal   *prometheus.CounterVec
	EscalationsTotal  *prometheus.CounterVec
	EvidenceReports   *prometheus.CounterVec
	CollaboratorFails *prometheus.CounterVec
	CommandsRejected  *prometheus.CounterVec
}

// New creates a Metrics instance with all collectors registered on a private
// registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "calyx"
	}

	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.005, 0.025, 0.1, 0.5, 1, 5, 30},
		},
		[]string{"method", "route"},
	)

	sessionsActive := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of active sessions",
		},
		[]string{"channel"},
	)

	sessionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of sessions",
		},
		[]string{"channel", "status"},
	)

	sessionDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Session duration in seconds",
			Buckets:   []float64{10, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"channel"},
	)

	audioBytesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_total",
			Help:      "Total audio bytes relayed",
		},
		[]string{"channel", "direction"},
	)

	turnsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of completed assistant turns",
		},
		[]string{"channel", "input", "fallback"},
	)

	firstTokenLatency := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "first_token_latency_seconds",
			Help:      "Time from user input to the first completion token",
			Buckets:   []float64{0.1, 0.2, 0.35, 0.5, 0.75, 1, 2, 5},
		},
		[]string{"channel"},
	)

	modeChangesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mode_changes_total",
			Help:      "Total number of effective mode transitions",
		},
		[]string{"mode"},
	)

	countdownsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "countdowns_total",
			Help:      "Escalation countdown lifecycle events",
		},
		[]string{"event"},
	)

	escalationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalations_total",
			Help:      "Total number of escalation attempts",
		},
		[]string{"reason", "outcome"},
	)

	evidenceReports := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evidence_reports_total",
			Help:      "Total number of archived incident reports",
		},
		[]string{"trigger", "status"},
	)

	collaboratorFails := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collaborator_failures_total",
			Help:      "Failures of external collaborators by error kind",
		},
		[]string{"channel", "kind"},
	)

	commandsRejected := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_rejected_total",
			Help:      "Inbound frames that could not be decoded",
		},
		[]string{"channel", "code"},
	)

	registry.MustRegister(
		requestsTotal,
		requestDuration,
		sessionsActive,
		sessionsTotal,
		sessionDuration,
		audioBytesTotal,
		turnsTotal,
		firstTokenLatency,
		modeChangesTotal,
		countdownsTotal,
		escalationsTotal,
		evidenceReports,
		collaboratorFails,
		commandsRejected,
	)

	return &Metrics{
		registry:          registry,
		RequestsTotal:     requestsTotal,
		RequestDuration:   requestDuration,
		SessionsActive:    sessionsActive,
		SessionsTotal:     sessionsTotal,
		SessionDuration:   sessionDuration,
		AudioBytesTotal:   audioBytesTotal,
		TurnsTotal:        turnsTotal,
		FirstTokenLatency: firstTokenLatency,
		ModeChangesTotal:  modeChangesTotal,
		CountdownsTotal:   countdownsTotal,
		EscalationsTotal:  escalationsTotal,
		EvidenceReports:   evidenceReports,
		CollaboratorFails: collaboratorFails,
		CommandsRejected:  commandsRejected,
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest records a completed HTTP request.
func (m *Metrics) RecordRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordSessionStart records a new session starting.
func (m *Metrics) RecordSessionStart(channel string) {
	if m == nil {
		return
	}
	m.SessionsActive.WithLabelValues(channel).Inc()
}

// RecordSessionEnd records a session ending.
func (m *Metrics) RecordSessionEnd(channel, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.SessionsActive.WithLabelValues(channel).Dec()
	m.SessionsTotal.WithLabelValues(channel, status).Inc()
	m.SessionDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

// RecordAudio records relayed audio bytes. direction is "in" or "out".
func (m *Metrics) RecordAudio(channel, direction string, bytes int) {
	if m == nil || bytes <= 0 {
		return
	}
	m.AudioBytesTotal.WithLabelValues(channel, direction).Add(float64(bytes))
}

// RecordTurn records one assistant turn. input is "voice" or "text".
func (m *Metrics) RecordTurn(channel, input string, fallback bool, firstToken time.Duration) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(channel, input, strconv.FormatBool(fallback)).Inc()
	if firstToken > 0 {
		m.FirstTokenLatency.WithLabelValues(channel).Observe(firstToken.Seconds())
	}
}

// RecordModeChange records an effective mode transition.
func (m *Metrics) RecordModeChange(mode string) {
	if m == nil {
		return
	}
	m.ModeChangesTotal.WithLabelValues(mode).Inc()
}

// RecordCountdown records a countdown event: started, cancelled, fired.
func (m *Metrics) RecordCountdown(event string) {
	if m == nil {
		return
	}
	m.CountdownsTotal.WithLabelValues(event).Inc()
}

// RecordEscalation records an escalation attempt.
func (m *Metrics) RecordEscalation(reason, outcome string) {
	if m == nil {
		return
	}
	m.EscalationsTotal.WithLabelValues(reason, outcome).Inc()
}

// RecordEvidence records an archive attempt.
func (m *Metrics) RecordEvidence(trigger string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.EvidenceReports.WithLabelValues(trigger, status).Inc()
}

// RecordFailure records a collaborator failure by error kind.
func (m *Metrics) RecordFailure(channel, kind string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	m.CollaboratorFails.WithLabelValues(channel, kind).Inc()
}

// RecordRejected records an inbound frame that could not be decoded.
func (m *Metrics) RecordRejected(channel, code string) {
	if m == nil {
		return
	}
	m.CommandsRejected.WithLabelValues(channel, code).Inc()
}
