// Package metrics exposes Prometheus collectors for test orchestration
// activity. The collector observes orchestration events and updates
// counters, so the hot path never talks to Prometheus types directly.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/warbandhq/warband/pkg/events"
)

// Collector holds the orchestrator's Prometheus collectors. A nil Collector
// is valid and ignores every observation, which keeps metrics optional.
type Collector struct {
	registry *prometheus.Registry

	runsStarted    prometheus.Counter
	runsCompleted  *prometheus.CounterVec
	runDuration    prometheus.Histogram
	activeRuns     prometheus.Gauge
	botsCompleted  *prometheus.CounterVec
	tasksCompleted *prometheus.CounterVec
	suitesStarted  prometheus.Counter
	suitesDone     *prometheus.CounterVec

	adminCommands    *prometheus.CounterVec
	adminCmdDuration prometheus.Histogram
	wsConnections    prometheus.Gauge
}

// NewCollector builds a collector backed by its own registry. Registration
// errors other than duplicate registration panic, mirroring promauto.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	c := &Collector{
		registry: registry,
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "warband",
			Name:      "runs_started_total",
			Help:      "Total number of test runs started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "warband",
			Name:      "runs_completed_total",
			Help:      "Total number of test runs reaching a terminal status.",
		}, []string{"status"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "warband",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of completed test runs.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		activeRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "warband",
			Name:      "runs_active",
			Help:      "Number of test runs currently executing.",
		}),
		botsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "warband",
			Name:      "bots_completed_total",
			Help:      "Total number of bots finishing their routes.",
		}, []string{"result"}),
		tasksCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "warband",
			Name:      "tasks_completed_total",
			Help:      "Total number of task executions by result.",
		}, []string{"result"}),
		suitesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "warband",
			Name:      "suites_started_total",
			Help:      "Total number of suite runs started.",
		}),
		suitesDone: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "warband",
			Name:      "suites_completed_total",
			Help:      "Total number of suite runs reaching a terminal status.",
		}, []string{"status"}),
		adminCommands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "warband",
			Name:      "admin_commands_total",
			Help:      "Total number of admin channel commands by outcome.",
		}, []string{"outcome"}),
		adminCmdDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "warband",
			Name:      "admin_command_duration_seconds",
			Help:      "Round-trip duration of admin channel commands.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		wsConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "warband",
			Name:      "websocket_connections",
			Help:      "Number of websocket clients currently connected.",
		}),
	}

	collectors := []prometheus.Collector{
		c.runsStarted, c.runsCompleted, c.runDuration, c.activeRuns,
		c.botsCompleted, c.tasksCompleted, c.suitesStarted, c.suitesDone,
		c.adminCommands, c.adminCmdDuration, c.wsConnections,
	}
	for _, collector := range collectors {
		if err := registry.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			panic(err)
		}
	}
	return c
}

// Handler serves the collector's registry in Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordTaskCompleted counts one task execution. Called directly by the run
// coordinator because task events carry per-run channels only.
func (c *Collector) RecordTaskCompleted(result string) {
	if c == nil {
		return
	}
	c.tasksCompleted.WithLabelValues(result).Inc()
}

// RecordAdminCommand counts one admin channel round trip. Called directly by
// the admin channel because commands never flow through the event hub.
func (c *Collector) RecordAdminCommand(d time.Duration, err error) {
	if c == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.adminCommands.WithLabelValues(outcome).Inc()
	c.adminCmdDuration.Observe(d.Seconds())
}

// WSConnectionOpened and WSConnectionClosed track the live websocket client
// count. Called by the connection manager on accept and on teardown.
func (c *Collector) WSConnectionOpened() {
	if c == nil {
		return
	}
	c.wsConnections.Inc()
}

func (c *Collector) WSConnectionClosed() {
	if c == nil {
		return
	}
	c.wsConnections.Dec()
}

// --- events.Observer ---

func (c *Collector) OnRunStarted(events.RunStartedPayload) {
	if c == nil {
		return
	}
	c.runsStarted.Inc()
	c.activeRuns.Inc()
}

func (c *Collector) OnRunStatusChanged(events.RunStatusPayload) {}

func (c *Collector) OnRunCompleted(p events.RunCompletedPayload) {
	if c == nil {
		return
	}
	c.activeRuns.Dec()
	c.runsCompleted.WithLabelValues(p.Status).Inc()
	c.runDuration.Observe(time.Duration(p.DurationMS * int64(time.Millisecond)).Seconds())
}

func (c *Collector) OnBotCompleted(p events.BotCompletedPayload) {
	if c == nil {
		return
	}
	result := "failed"
	if p.Success {
		result = "passed"
	}
	c.botsCompleted.WithLabelValues(result).Inc()
}

func (c *Collector) OnSuiteStarted(events.SuiteStartedPayload) {
	if c == nil {
		return
	}
	c.suitesStarted.Inc()
}

func (c *Collector) OnSuiteCompleted(p events.SuiteCompletedPayload) {
	if c == nil {
		return
	}
	c.suitesDone.WithLabelValues(p.Status).Inc()
}
