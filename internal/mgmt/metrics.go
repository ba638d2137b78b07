package mgmt

import (
	"time"

	"github.com/fjacquet/cpmgmt/internal/models"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "cpmgmt"

// Call outcomes used as the outcome label of cpmgmt_api_calls_total.
const (
	OutcomeSuccess    = "success"
	OutcomeNotSuccess = "not_success"
	OutcomeError      = "error"
)

// Metrics holds the Prometheus instruments updated by a Client.
//
// The client creates the following metrics:
//   - cpmgmt_api_calls_total: calls by command and outcome
//   - cpmgmt_api_call_duration_seconds: call latency by command
//   - cpmgmt_task_polls_total: show-task polls by task status
//   - cpmgmt_query_pages_total: pages fetched by query command
//   - cpmgmt_query_objects_total: objects aggregated by query command
//   - cpmgmt_session_active: 1 while logged in
//   - cpmgmt_api_server_info: 1, labelled with the server's API version
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	calls        *prometheus.CounterVec
	callDuration *prometheus.HistogramVec
	taskPolls    *prometheus.CounterVec
	queryPages   *prometheus.CounterVec
	queryObjects *prometheus.CounterVec
	session      prometheus.Gauge
	serverInfo   *prometheus.GaugeVec
}

// NewMetrics creates the client metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "api_calls_total",
			Help:      "Management API calls by command and outcome",
		}, []string{"command", "outcome"}),
		callDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "api_call_duration_seconds",
			Help:      "Management API call duration, including task waits",
			Buckets:   prometheus.DefBuckets,
		}, []string{"command"}),
		taskPolls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "task_polls_total",
			Help:      "show-task polls by observed task status",
		}, []string{"status"}),
		queryPages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "query_pages_total",
			Help:      "Pages fetched by the query aggregator",
		}, []string{"command"}),
		queryObjects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "query_objects_total",
			Help:      "Objects aggregated by the query aggregator",
		}, []string{"command"}),
		session: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "session_active",
			Help:      "1 while the client holds a management session",
		}),
		serverInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "api_server_info",
			Help:      "Management API server version reported at login",
		}, []string{"version"}),
	}

	for _, c := range []prometheus.Collector{
		m.calls, m.callDuration, m.taskPolls, m.queryPages, m.queryObjects, m.session, m.serverInfo,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveCall records one dispatched call.
func (m *Metrics) ObserveCall(command string, res *models.Response, err error, d time.Duration) {
	if m == nil {
		return
	}

	outcome := OutcomeSuccess
	switch {
	case err != nil:
		outcome = OutcomeError
	case res.IsNotSuccess():
		outcome = OutcomeNotSuccess
	}

	m.calls.WithLabelValues(command, outcome).Inc()
	m.callDuration.WithLabelValues(command).Observe(d.Seconds())
}

// ObserveTaskPoll records one show-task poll.
func (m *Metrics) ObserveTaskPoll(status string) {
	if m == nil {
		return
	}
	m.taskPolls.WithLabelValues(status).Inc()
}

// ObserveQueryPage records one aggregated page of n objects.
func (m *Metrics) ObserveQueryPage(command string, n int) {
	if m == nil {
		return
	}
	m.queryPages.WithLabelValues(command).Inc()
	m.queryObjects.WithLabelValues(command).Add(float64(n))
}

// SetSession updates the session gauges.
func (m *Metrics) SetSession(active bool, version string) {
	if m == nil {
		return
	}
	m.serverInfo.Reset()
	if !active {
		m.session.Set(0)
		return
	}
	m.session.Set(1)
	m.serverInfo.WithLabelValues(version).Set(1)
}
