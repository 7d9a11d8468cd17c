package supervisor

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/korydraughn/irodsd/internal/logging"
	"github.com/korydraughn/irodsd/internal/mailbox"
)

// metrics lives in a private registry and is published as a node-exporter
// style textfile, since irodsd exposes no HTTP endpoint.
type metrics struct {
	path   string
	logger *slog.Logger

	registry     *prometheus.Registry
	state        *prometheus.GaugeVec
	workerUp     *prometheus.GaugeVec
	messages     *prometheus.CounterVec
	workerExits  *prometheus.CounterVec
	forcedKills  prometheus.Counter
	lastActivity prometheus.Gauge
}

func newMetrics(path string, logger *slog.Logger) *metrics {
	m := &metrics{
		path:     path,
		logger:   logger,
		registry: prometheus.NewRegistry(),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "irodsd_supervisor_state",
			Help: "1 for the current supervisor lifecycle state, 0 otherwise.",
		}, []string{"state"}),
		workerUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "irodsd_worker_up",
			Help: "1 while the worker process for a role is alive.",
		}, []string{"role"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "irodsd_mailbox_messages_total",
			Help: "Messages received from the mailbox by sender role.",
		}, []string{"role"}),
		workerExits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "irodsd_worker_exits_total",
			Help: "Worker process exits by role and whether the supervisor requested them.",
		}, []string{"role", "requested"}),
		forcedKills: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "irodsd_worker_forced_kills_total",
			Help: "Workers sent SIGKILL after the shutdown grace period.",
		}),
		lastActivity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "irodsd_last_message_timestamp_seconds",
			Help: "Unix time of the last mailbox message.",
		}),
	}
	m.registry.MustRegister(m.state, m.workerUp, m.messages, m.workerExits, m.forcedKills, m.lastActivity)
	return m
}

func (m *metrics) setState(current State) {
	for _, st := range States() {
		value := 0.0
		if st == current {
			value = 1
		}
		m.state.WithLabelValues(st.String()).Set(value)
	}
	m.flush()
}

func (m *metrics) message(payload []byte) {
	role := mailbox.SenderRole(payload)
	if role == "" {
		role = "unknown"
	}
	m.messages.WithLabelValues(role).Inc()
	m.lastActivity.SetToCurrentTime()
	m.flush()
}

func (m *metrics) workerStarted(role string) {
	m.workerUp.WithLabelValues(role).Set(1)
}

func (m *metrics) workerExited(role string, requested bool) {
	m.workerUp.WithLabelValues(role).Set(0)
	label := "false"
	if requested {
		label = "true"
	}
	m.workerExits.WithLabelValues(role, label).Inc()
}

func (m *metrics) forcedKill() {
	m.forcedKills.Inc()
}

func (m *metrics) flush() {
	if m.path == "" {
		return
	}
	if err := prometheus.WriteToTextfile(m.path, m.registry); err != nil {
		logging.WarnWithContext(m.logger, "write metrics textfile failed", "metrics_write_failed",
			logging.String("path", m.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "metrics file is stale"),
			logging.String(logging.FieldErrorHint, "check that paths.metrics_file is writable"))
	}
}
