// monitor/monitor.go
package monitor

import (
	"context"
	"errors"
	"expvar"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/wfunc/codexserver/logger"
)

type Metrics struct {
	OnlinePlayers    prometheus.Gauge
	ActiveLobbies    prometheus.Gauge
	ActiveMatches    prometheus.Gauge
	MatchesFinished  prometheus.Counter
	EventsDispatched prometheus.Counter
	EventsOverflow   prometheus.Counter
	MessagesReceived prometheus.Counter
	MessageLatency   prometheus.Histogram
}

func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OnlinePlayers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_players",
			Help:      "Number of logged in players",
		}),
		ActiveLobbies: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_lobbies",
			Help:      "Number of live lobbies, running or not",
		}),
		ActiveMatches: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_matches",
			Help:      "Number of lobbies running a match",
		}),
		MatchesFinished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_finished_total",
			Help:      "Total number of matches that reached the end",
		}),
		EventsDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dispatched_total",
			Help:      "Observer calls run by the event pool",
		}),
		EventsOverflow: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_overflow_total",
			Help:      "Observer calls run outside the pool because it was saturated",
		}),
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Total number of messages received",
		}),
		MessageLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_latency_seconds",
			Help:      "Message processing latency",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 10),
		}),
	}

	reg.MustRegister(
		m.OnlinePlayers,
		m.ActiveLobbies,
		m.ActiveMatches,
		m.MatchesFinished,
		m.EventsDispatched,
		m.EventsOverflow,
		m.MessagesReceived,
		m.MessageLatency,
	)

	return m
}

var publishVars sync.Once

// Monitor owns the metrics registry, the /metrics endpoint and the grpc
// health service.
type Monitor struct {
	metrics      *Metrics
	registry     *prometheus.Registry
	startTime    time.Time
	requestCount int64
	mutex        sync.Mutex

	httpServer *http.Server
	grpcServer *grpc.Server
	health     *health.Server
	healthAddr net.Addr
}

func NewMonitor(namespace string) *Monitor {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	return &Monitor{
		metrics:   NewMetrics(namespace, reg),
		registry:  reg,
		startTime: time.Now(),
		health:    health.NewServer(),
	}
}

// Registry exposes the registry metrics are kept in.
func (m *Monitor) Registry() *prometheus.Registry { return m.registry }

// StartServer serves /metrics and /debug/vars on addr.
func (m *Monitor) StartServer(addr string) error {
	publishVars.Do(func() {
		// 添加expvar指标
		expvar.Publish("uptime", expvar.Func(func() interface{} {
			return time.Since(m.startTime).Seconds()
		}))
		expvar.Publish("requests", expvar.Func(func() interface{} {
			m.mutex.Lock()
			defer m.mutex.Unlock()
			return m.requestCount
		}))
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	mux.Handle("/debug/vars", expvar.Handler())

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	m.httpServer = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := m.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Errorf("metrics server stopped: %v", err)
		}
	}()
	logger.Log.Infof("metrics listening on %s", ln.Addr())
	return nil
}

// StartHealth serves the grpc health protocol on addr and reports SERVING.
func (m *Monitor) StartHealth(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	m.healthAddr = ln.Addr()
	m.grpcServer = grpc.NewServer()
	grpc_health_v1.RegisterHealthServer(m.grpcServer, m.health)
	m.SetServing(true)
	go func() {
		if err := m.grpcServer.Serve(ln); err != nil {
			logger.Log.Errorf("health server stopped: %v", err)
		}
	}()
	logger.Log.Infof("health listening on %s", ln.Addr())
	return nil
}

// HealthAddr is the bound health address, nil before StartHealth.
func (m *Monitor) HealthAddr() net.Addr { return m.healthAddr }

// SetServing flips the overall health status.
func (m *Monitor) SetServing(ok bool) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if ok {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	m.health.SetServingStatus("", status)
}

// Stop reports NOT_SERVING and shuts both listeners down.
func (m *Monitor) Stop(ctx context.Context) {
	m.health.Shutdown()
	if m.grpcServer != nil {
		m.grpcServer.GracefulStop()
	}
	if m.httpServer != nil {
		_ = m.httpServer.Shutdown(ctx)
	}
}

func (m *Monitor) IncOnlinePlayers() {
	m.metrics.OnlinePlayers.Inc()
}

func (m *Monitor) DecOnlinePlayers() {
	m.metrics.OnlinePlayers.Dec()
}

func (m *Monitor) SetActiveLobbies(count int) {
	m.metrics.ActiveLobbies.Set(float64(count))
}

func (m *Monitor) SetActiveMatches(count int) {
	m.metrics.ActiveMatches.Set(float64(count))
}

func (m *Monitor) IncMatchesFinished() {
	m.metrics.MatchesFinished.Inc()
}

func (m *Monitor) IncEventsDispatched() {
	m.metrics.EventsDispatched.Inc()
}

func (m *Monitor) IncEventsOverflow() {
	m.metrics.EventsOverflow.Inc()
}

func (m *Monitor) IncMessagesReceived() {
	m.metrics.MessagesReceived.Inc()
	m.mutex.Lock()
	m.requestCount++
	m.mutex.Unlock()
}

func (m *Monitor) ObserveMessageLatency(duration time.Duration) {
	m.metrics.MessageLatency.Observe(duration.Seconds())
}
