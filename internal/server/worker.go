package server

import (
	"context"
	"crypto/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/int08h/roughtimed/internal/clock"
	"github.com/int08h/roughtimed/internal/metrics"
)

// pollTimeout bounds how long a single WaitForEvents call blocks before
// the worker re-checks rotation/metrics deadlines and the context.
const pollTimeout = 350 * time.Millisecond

// Worker runs the collect/sign/send loop against one NetworkBackend. Each
// worker owns its own backend, request handler, and response handler; a
// process runs one Worker per configured thread, all sharing a single
// metrics Aggregator.
type Worker struct {
	id      string
	clk     clock.Source
	backend NetworkBackend
	req     *RequestHandler
	resp    *ResponseHandler
	agg     *metrics.Aggregator

	rotationInterval time.Duration
	metricsInterval  time.Duration
	nextRotation     uint64
	nextMetrics      uint64

	log *logrus.Entry
}

// NewWorker wires together the pieces a single processing thread needs.
func NewWorker(id string, clk clock.Source, backend NetworkBackend, req *RequestHandler, resp *ResponseHandler, agg *metrics.Aggregator, rotationInterval, metricsInterval time.Duration, log *logrus.Entry) *Worker {
	now := clk.EpochSeconds()
	return &Worker{
		id:               id,
		clk:              clk,
		backend:          backend,
		req:              req,
		resp:             resp,
		agg:              agg,
		rotationInterval: rotationInterval,
		metricsInterval:  metricsInterval,
		nextRotation:     now + uint64(rotationInterval.Seconds()) - randomJitterSeconds(rotationInterval),
		nextMetrics:      now + uint64(metricsInterval.Seconds()),
		log:              log.WithField("worker", id),
	}
}

// Run processes requests until ctx is canceled.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		now := w.clk.EpochSeconds()

		if now >= w.nextMetrics {
			w.publishMetrics()
		}
		if now >= w.nextRotation {
			w.rotateOnlineKey()
		}

		if !w.backend.WaitForEvents(pollTimeout) {
			continue
		}

		for {
			collectResult := w.backend.CollectRequests(w.req.CollectRequest)

			timer := time.Now()
			pending, tree := w.req.drain()
			if pending != nil {
				responses := w.resp.SignBatch(pending, tree)
				for i, data := range responses {
					w.backend.SendResponse(data, pending[i].addr)
				}
				w.req.ReturnTree(tree)
			}
			w.backend.Flush()

			if pending != nil {
				w.agg.Publish(metrics.Snapshot{
					WorkerID:     w.id,
					BatchSize:    len(pending),
					BatchSeconds: time.Since(timer).Seconds(),
				})
			}

			if collectResult == Empty {
				break
			}
		}
	}
}

func (w *Worker) rotateOnlineKey() {
	if err := w.resp.RotateOnlineKey(); err != nil {
		w.log.WithError(err).Error("failed to rotate online key, keeping previous one")
		return
	}
	w.log.WithField("public_key", w.resp.PublicKey()).Info("rotated online key")

	// Stagger rotations across workers so they don't all stall responses
	// for a signing operation at the same instant.
	w.nextRotation = w.clk.EpochSeconds() + uint64(w.rotationInterval.Seconds()) - randomJitterSeconds(w.rotationInterval)
}

// randomJitterSeconds returns a random offset in [0, interval) seconds, read
// from crypto/rand rather than derived from the (shared) ClockSource so
// concurrent workers don't all compute the same stagger.
func randomJitterSeconds(interval time.Duration) uint64 {
	max := uint64(interval.Seconds())
	if max == 0 {
		return 0
	}
	var b [1]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}
	return uint64(b[0]) % max
}

func (w *Worker) publishMetrics() {
	w.agg.Publish(metrics.Snapshot{
		WorkerID: w.id,
		Network:  w.backend.Metrics(),
		Request:  w.req.Metrics(),
	})
	w.backend.ResetMetrics()
	w.req.ResetMetrics()
	w.nextMetrics = w.clk.EpochSeconds() + uint64(w.metricsInterval.Seconds())
}
