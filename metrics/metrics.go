// Package metrics exports pipeline counters and timings to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pthm-cable/swarm/gpu"
	"github.com/pthm-cable/swarm/ring"
	"github.com/pthm-cable/swarm/sim"
)

// Pipeline holds the simulation metrics. It implements sim.Observer and
// renderer.FenceObserver.
type Pipeline struct {
	Ticks        *prometheus.CounterVec
	TickSeconds  prometheus.Histogram
	FenceWaits   *prometheus.CounterVec
	FenceSeconds *prometheus.HistogramVec
	TreeNodes    prometheus.Gauge
	TreeDropped  prometheus.Gauge
	TreeOverflow prometheus.Gauge
	Particles    prometheus.Gauge
	BufferSets   prometheus.Gauge
	MeanSpeed    prometheus.Gauge
}

var _ sim.Observer = (*Pipeline)(nil)

// fenceBuckets spans polling (microseconds) up to a blown frame budget.
var fenceBuckets = prometheus.ExponentialBuckets(1e-6, 4, 10)

// New registers the pipeline metrics on reg.
func New(reg prometheus.Registerer) *Pipeline {
	f := promauto.With(reg)
	return &Pipeline{
		Ticks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swarm_ticks_total",
				Help: "Simulation ticks by result",
			},
			[]string{"result"},
		),
		TickSeconds: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "swarm_tick_seconds",
				Help:    "CPU time spent submitting one tick",
				Buckets: prometheus.DefBuckets,
			},
		),
		FenceWaits: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swarm_fence_waits_total",
				Help: "Fence waits by buffer role and outcome",
			},
			[]string{"role", "status"},
		),
		FenceSeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "swarm_fence_wait_seconds",
				Help:    "Time blocked on fences by buffer role",
				Buckets: fenceBuckets,
			},
			[]string{"role"},
		),
		TreeNodes: f.NewGauge(prometheus.GaugeOpts{
			Name: "swarm_quadtree_nodes",
			Help: "Nodes in the last far-field quadtree",
		}),
		TreeDropped: f.NewGauge(prometheus.GaugeOpts{
			Name: "swarm_quadtree_dropped_points",
			Help: "Points outside the root of the last quadtree",
		}),
		TreeOverflow: f.NewGauge(prometheus.GaugeOpts{
			Name: "swarm_quadtree_overflow_points",
			Help: "Points absorbed by full leaves at maximum depth",
		}),
		Particles: f.NewGauge(prometheus.GaugeOpts{
			Name: "swarm_particles",
			Help: "Simulated particle count",
		}),
		BufferSets: f.NewGauge(prometheus.GaugeOpts{
			Name: "swarm_buffer_sets",
			Help: "Buffer sets in the ring",
		}),
		MeanSpeed: f.NewGauge(prometheus.GaugeOpts{
			Name: "swarm_mean_speed",
			Help: "Mean particle speed at the last stats window",
		}),
	}
}

// ObserveFenceWait implements sim.Observer.
func (p *Pipeline) ObserveFenceWait(role ring.Role, status gpu.WaitStatus, waited time.Duration) {
	p.FenceWaits.WithLabelValues(role.String(), status.String()).Inc()
	p.FenceSeconds.WithLabelValues(role.String()).Observe(waited.Seconds())
}

// ObserveTick implements sim.Observer.
func (p *Pipeline) ObserveTick(result sim.TickResult, took time.Duration) {
	p.Ticks.WithLabelValues(result.String()).Inc()
	p.TickSeconds.Observe(took.Seconds())
}

// ObserveTree implements sim.Observer.
func (p *Pipeline) ObserveTree(nodes, dropped, overflow int) {
	p.TreeNodes.Set(float64(nodes))
	p.TreeDropped.Set(float64(dropped))
	p.TreeOverflow.Set(float64(overflow))
}

// NewServer returns an HTTP server exposing the registry at path.
func NewServer(addr, path string, g prometheus.Gatherer) *http.Server {
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}
}
