package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Collector, labels prometheus.Labels) float64 {
	t.Helper()
	vec, ok := c.(*prometheus.CounterVec)
	if !ok {
		t.Fatalf("not a CounterVec: %T", c)
	}
	m := &dto.Metric{}
	if err := vec.With(labels).(prometheus.Metric).Write(m); err != nil {
		t.Fatal(err)
	}
	return m.GetCounter().GetValue()
}

func TestAggregatorMergesNetworkAndRequestCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	agg := NewAggregator(reg, 16)

	agg.Publish(Snapshot{
		WorkerID: "w0",
		Network:  NetworkCounts{SuccessfulSends: 3, FailedRecvs: 1},
		Request:  RequestCounts{OK: 5, Bad: 2},
	})
	agg.Publish(Snapshot{
		WorkerID: "w0",
		Network:  NetworkCounts{SuccessfulSends: 4},
		Request:  RequestCounts{OK: 1},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		agg.Run(ctx)
		close(done)
	}()
	// Give the goroutine a moment to drain both snapshots.
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	if got := counterValue(t, agg.networkTotal, prometheus.Labels{"worker": "w0", "kind": "successful_sends"}); got != 7 {
		t.Errorf("successful_sends = %v, want 7", got)
	}
	if got := counterValue(t, agg.requestTotal, prometheus.Labels{"worker": "w0", "kind": "ok"}); got != 6 {
		t.Errorf("ok requests = %v, want 6", got)
	}
	if got := counterValue(t, agg.requestTotal, prometheus.Labels{"worker": "w0", "kind": "bad"}); got != 2 {
		t.Errorf("bad requests = %v, want 2", got)
	}
}

func TestAggregatorDropsOnFullQueue(t *testing.T) {
	reg := prometheus.NewRegistry()
	agg := NewAggregator(reg, 1)

	// Fill the one slot without a consumer draining it.
	agg.Publish(Snapshot{WorkerID: "w0", Request: RequestCounts{OK: 1}})
	agg.Publish(Snapshot{WorkerID: "w0", Request: RequestCounts{OK: 1}})
	agg.Publish(Snapshot{WorkerID: "w0", Request: RequestCounts{OK: 1}})

	m := &dto.Metric{}
	if err := agg.dropped.Write(m); err != nil {
		t.Fatal(err)
	}
	if got := m.GetCounter().GetValue(); got < 1 {
		t.Errorf("dropped counter = %v, want at least 1", got)
	}
}

func TestBatchLatencySaturatesAtMaxBatchSize(t *testing.T) {
	reg := prometheus.NewRegistry()
	agg := NewAggregator(reg, 4)

	// A batch size beyond MaxBatchSize must still record, clamped to the
	// MaxBatchSize bucket rather than growing the label set unboundedly.
	agg.merge(Snapshot{WorkerID: "w0", BatchSize: MaxBatchSize + 1000, BatchSeconds: 0.001})
	agg.merge(Snapshot{WorkerID: "w0", BatchSize: MaxBatchSize, BatchSeconds: 0.002})

	clamped, err := agg.batchLatency.GetMetricWith(prometheus.Labels{"batch_size": "64"})
	if err != nil {
		t.Fatal(err)
	}
	m := &dto.Metric{}
	if err := clamped.(prometheus.Metric).Write(m); err != nil {
		t.Fatal(err)
	}
	if got := m.GetHistogram().GetSampleCount(); got != 2 {
		t.Errorf("bucket \"64\" sample count = %d, want 2 (both observations clamped here)", got)
	}
}
