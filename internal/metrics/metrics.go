// Package metrics collects per-worker counters and batch-timing histograms
// and exposes them to Prometheus. Workers never touch the Prometheus
// registry directly in their hot path; they push lightweight Snapshots to
// an Aggregator over a bounded channel, and overflow is silently dropped
// since metrics are explicitly non-critical (spec.md §5).
package metrics

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// MaxBatchSize bounds the batch-size label cardinality on the latency
// histogram; a larger batch is recorded under the MaxBatchSize label.
const MaxBatchSize = 64

// NetworkCounts mirrors a worker's per-interval I/O counters.
type NetworkCounts struct {
	RecvWouldBlock   int
	SuccessfulSends  int
	FailedSends      int
	FailedPolls      int
	FailedRecvs      int
}

// RequestCounts mirrors a worker's per-interval request-ingest outcomes.
type RequestCounts struct {
	OK    int
	Bad   int
	Runt  int
	Jumbo int
}

// Snapshot is what a worker pushes to the Aggregator once per metrics
// interval (or per batch, for BatchSize/BatchSeconds).
type Snapshot struct {
	WorkerID     string
	Network      NetworkCounts
	Request      RequestCounts
	BatchSize    int     // 0 means no batch was flushed this iteration
	BatchSeconds float64 // wall-clock time spent signing, serializing and sending the batch
}

// Aggregator owns the Prometheus collectors and the channel workers publish
// Snapshots to. One Aggregator per process, shared read-only handle (the
// channel) by every worker.
type Aggregator struct {
	ch chan Snapshot

	networkTotal *prometheus.CounterVec
	requestTotal *prometheus.CounterVec
	batchLatency *prometheus.HistogramVec
	dropped      prometheus.Counter
}

// NewAggregator creates an Aggregator with queueLen buffered snapshot slots
// and registers its collectors with reg.
func NewAggregator(reg prometheus.Registerer, queueLen int) *Aggregator {
	a := &Aggregator{
		ch: make(chan Snapshot, queueLen),
		networkTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "roughtimed",
			Subsystem: "network",
			Name:      "events_total",
			Help:      "Cumulative network backend events by worker and kind.",
		}, []string{"worker", "kind"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "roughtimed",
			Subsystem: "request",
			Name:      "events_total",
			Help:      "Cumulative request-ingest outcomes by worker and kind.",
		}, []string{"worker", "kind"}),
		batchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "roughtimed",
			Subsystem: "batch",
			Name:      "process_seconds",
			Help:      "Time to compute the Merkle root, sign the SREP, and serialize and send responses for a batch, by batch size.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 2, 16),
		}, []string{"batch_size"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "roughtimed",
			Subsystem: "metrics",
			Name:      "snapshots_dropped_total",
			Help:      "Snapshots dropped because the aggregator's queue was full.",
		}),
	}
	reg.MustRegister(a.networkTotal, a.requestTotal, a.batchLatency, a.dropped)
	return a
}

// Publish enqueues snap for the aggregator goroutine to merge. It never
// blocks: if the queue is full the snapshot is dropped and the drop is
// itself counted.
func (a *Aggregator) Publish(snap Snapshot) {
	select {
	case a.ch <- snap:
	default:
		a.dropped.Inc()
	}
}

// Run drains published snapshots into the Prometheus collectors until ctx
// is canceled. Intended to run in its own goroutine for the process
// lifetime.
func (a *Aggregator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-a.ch:
			a.merge(snap)
		}
	}
}

func (a *Aggregator) merge(snap Snapshot) {
	n, r := snap.Network, snap.Request
	a.networkTotal.WithLabelValues(snap.WorkerID, "recv_wouldblock").Add(float64(n.RecvWouldBlock))
	a.networkTotal.WithLabelValues(snap.WorkerID, "successful_sends").Add(float64(n.SuccessfulSends))
	a.networkTotal.WithLabelValues(snap.WorkerID, "failed_sends").Add(float64(n.FailedSends))
	a.networkTotal.WithLabelValues(snap.WorkerID, "failed_polls").Add(float64(n.FailedPolls))
	a.networkTotal.WithLabelValues(snap.WorkerID, "failed_recvs").Add(float64(n.FailedRecvs))

	a.requestTotal.WithLabelValues(snap.WorkerID, "ok").Add(float64(r.OK))
	a.requestTotal.WithLabelValues(snap.WorkerID, "bad").Add(float64(r.Bad))
	a.requestTotal.WithLabelValues(snap.WorkerID, "runt").Add(float64(r.Runt))
	a.requestTotal.WithLabelValues(snap.WorkerID, "jumbo").Add(float64(r.Jumbo))

	if snap.BatchSize > 0 {
		size := snap.BatchSize
		if size > MaxBatchSize {
			size = MaxBatchSize
		}
		a.batchLatency.WithLabelValues(strconv.Itoa(size)).Observe(snap.BatchSeconds)
	}
}
