package pipeline

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Phase labels.
const (
	PhaseNodes = "nodes"
	PhaseWays  = "ways"
	PhasePlan  = "plan"
	PhaseGraph = "graph"
	PhaseWrite = "write"
)

// Metrics holds the counters of a preprocessing run. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	Records       *prometheus.CounterVec
	Skipped       *prometheus.CounterVec
	Edges         *prometheus.CounterVec
	GraphNodes    prometheus.Gauge
	GraphArcs     prometheus.Gauge
	PhaseDuration *prometheus.GaugeVec
}

// NewMetrics registers the run metrics against reg, defaulting to the
// global registry when nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	records, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mapgraph_records_total",
		Help: "Records parsed, labeled by collection phase.",
	}, []string{"phase"}), "mapgraph_records_total")
	if err != nil {
		return nil, err
	}
	skipped, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mapgraph_records_skipped_total",
		Help: "Malformed records skipped, labeled by collection phase.",
	}, []string{"phase"}), "mapgraph_records_skipped_total")
	if err != nil {
		return nil, err
	}
	edges, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mapgraph_edges_total",
		Help: "Consecutive coordinate pairs seen by the stitcher, labeled by outcome.",
	}, []string{"result"}), "mapgraph_edges_total")
	if err != nil {
		return nil, err
	}
	nodes, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mapgraph_graph_nodes",
		Help: "Nodes in the last built graph.",
	}), "mapgraph_graph_nodes")
	if err != nil {
		return nil, err
	}
	arcs, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mapgraph_graph_arcs",
		Help: "Directed arcs in the last built graph.",
	}), "mapgraph_graph_arcs")
	if err != nil {
		return nil, err
	}
	durations, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mapgraph_phase_duration_seconds",
		Help: "Wall time of each pipeline phase in the last run.",
	}, []string{"phase"}), "mapgraph_phase_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		gatherer:      gatherer,
		Records:       records,
		Skipped:       skipped,
		Edges:         edges,
		GraphNodes:    nodes,
		GraphArcs:     arcs,
		PhaseDuration: durations,
	}, nil
}

func (m *Metrics) observeScan(phase string, s ScanStats) {
	if m == nil {
		return
	}
	m.Records.WithLabelValues(phase).Add(float64(s.Records))
	m.Skipped.WithLabelValues(phase).Add(float64(s.Skipped))
}

func (m *Metrics) observeStitch(res *StitchResult) {
	if m == nil {
		return
	}
	m.Edges.WithLabelValues("accepted").Add(float64(res.Accepted))
	m.Edges.WithLabelValues("unresolved").Add(float64(res.SkippedUnresolved))
	m.Edges.WithLabelValues("self_loop").Add(float64(res.SkippedSelfLoop))
}

func (m *Metrics) observePhase(phase string, d time.Duration) {
	if m == nil {
		return
	}
	m.PhaseDuration.WithLabelValues(phase).Set(d.Seconds())
}

func (m *Metrics) setGraph(nodes, arcs uint32) {
	if m == nil {
		return
	}
	m.GraphNodes.Set(float64(nodes))
	m.GraphArcs.Set(float64(arcs))
}

// WriteTextfile dumps every metric of the registry in the node-exporter
// textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.gatherer)
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, g prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(g); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return g, nil
}
