package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/crystal-mush/mushkit/pkg/gamedb"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus metric descriptors for the game server. Each
// Metrics has its own registry so several games can live in one process.
type Metrics struct {
	game     *Game
	registry *prometheus.Registry

	sessionsConnected *prometheus.GaugeVec
	objectsTotal      *prometheus.GaugeVec
	connectionsTotal  *prometheus.CounterVec
	commandsTotal     prometheus.Counter
	scriptsActive     prometheus.Gauge
	uptimeSeconds     prometheus.Gauge
	memoryHeapBytes   prometheus.Gauge
	goroutines        prometheus.Gauge
}

// NewMetrics creates and registers Prometheus metrics for the game.
func NewMetrics(game *Game) *Metrics {
	m := &Metrics{
		game:     game,
		registry: prometheus.NewRegistry(),
		sessionsConnected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mushkit_sessions_connected",
			Help: "Number of currently open sessions by protocol.",
		}, []string{"protocol"}),
		objectsTotal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mushkit_objects_total",
			Help: "Objects in the database by type.",
		}, []string{"type"}),
		connectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mushkit_connections_total",
			Help: "Total connections since server start.",
		}, []string{"protocol"}),
		commandsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mushkit_commands_processed_total",
			Help: "Total commands processed since server start.",
		}),
		scriptsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mushkit_scripts_active",
			Help: "Number of active scripts.",
		}),
		uptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mushkit_uptime_seconds",
			Help: "Server uptime in seconds.",
		}),
		memoryHeapBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mushkit_memory_heap_bytes",
			Help: "Go heap memory allocated in bytes.",
		}),
		goroutines: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mushkit_goroutines",
			Help: "Number of active goroutines.",
		}),
	}

	m.registry.MustRegister(
		m.sessionsConnected,
		m.objectsTotal,
		m.connectionsTotal,
		m.commandsTotal,
		m.scriptsActive,
		m.uptimeSeconds,
		m.memoryHeapBytes,
		m.goroutines,
	)
	return m
}

// CommandProcessed counts one executed command.
func (m *Metrics) CommandProcessed() { m.commandsTotal.Inc() }

// Connected counts a new connection on the given protocol.
func (m *Metrics) Connected(protocol string) {
	m.connectionsTotal.WithLabelValues(protocol).Inc()
}

// Update refreshes all gauge metrics from current game state.
func (m *Metrics) Update() {
	g := m.game
	m.sessionsConnected.Reset()
	for proto, n := range g.SessionStats() {
		m.sessionsConnected.WithLabelValues(proto).Set(float64(n))
	}
	counts := g.DB.CountByType()
	for _, t := range []gamedb.ObjectType{gamedb.TypeRoom, gamedb.TypeCharacter, gamedb.TypeThing, gamedb.TypeExit} {
		m.objectsTotal.WithLabelValues(t.String()).Set(float64(counts[t]))
	}
	m.scriptsActive.Set(float64(g.Scripts.Count()))
	m.uptimeSeconds.Set(time.Since(g.StartTime).Seconds())

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	m.memoryHeapBytes.Set(float64(mem.HeapAlloc))
	m.goroutines.Set(float64(runtime.NumGoroutine()))
}

// Handler returns an http.Handler that updates metrics before serving them.
func (m *Metrics) Handler() http.Handler {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.Update()
		h.ServeHTTP(w, r)
	})
}
