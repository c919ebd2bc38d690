// Package embedqueue implements the bounded, cancellable, batching
// embedding work queue (C7): a single background worker that turns
// submitted chunk texts into vectors, coalescing consecutive requests into
// provider batches up to a target size or timeout, whichever comes first.
package embedqueue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	kgerrors "github.com/uforge/kgraph/internal/errors"
	"github.com/uforge/kgraph/internal/embedprovider"
)

// Queue is the embedding worker. Create with New, submit work with Submit /
// TrySubmit, observe state with Progress, and tear down with Shutdown.
type Queue struct {
	cfg      Config
	provider embedprovider.Embedder
	sink     ResultSink

	msgCh     chan message
	pendingSD *message // a Shutdown pulled mid-accumulate, replayed on the next round
	sem       chan struct{} // one token per in-flight request slot, bounds backpressure

	mu        sync.Mutex
	cancelled map[uuid.UUID]struct{}
	waiters   map[uuid.UUID]chan Outcome

	progressMu sync.RWMutex
	progress   Progress

	shutdownOnce sync.Once
	shuttingDown chan struct{}
	workerDone   chan struct{}
}

// New starts the queue's background worker. sink receives every
// successfully embedded vector.
func New(cfg Config, provider embedprovider.Embedder, sink ResultSink) *Queue {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultConfig().Capacity
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = DefaultConfig().BatchTimeout
	}

	q := &Queue{
		cfg:          cfg,
		provider:     provider,
		sink:         sink,
		msgCh:        make(chan message, cfg.Capacity),
		sem:          make(chan struct{}, cfg.Capacity),
		cancelled:    make(map[uuid.UUID]struct{}),
		waiters:      make(map[uuid.UUID]chan Outcome),
		shuttingDown: make(chan struct{}),
		workerDone:   make(chan struct{}),
	}
	go q.run()
	return q
}

// Submit enqueues one chunk's text for embedding, blocking until a capacity
// slot frees (backpressure) or ctx is cancelled. It returns the request id
// and a channel that receives exactly one Outcome.
func (q *Queue) Submit(ctx context.Context, objectID, chunkID uuid.UUID, text string) (uuid.UUID, <-chan Outcome, error) {
	select {
	case <-q.shuttingDown:
		return uuid.Nil, nil, kgerrors.QueueError(kgerrors.ErrCodeShutdownInProgress, "embedding queue is shutting down", nil)
	default:
	}

	select {
	case q.sem <- struct{}{}:
	case <-ctx.Done():
		return uuid.Nil, nil, ctx.Err()
	case <-q.shuttingDown:
		return uuid.Nil, nil, kgerrors.QueueError(kgerrors.ErrCodeShutdownInProgress, "embedding queue is shutting down", nil)
	}

	req := Request{RequestID: uuid.Must(uuid.NewRandom()), ObjectID: objectID, ChunkID: chunkID, Text: text}
	outcomeCh := q.registerWaiter(req.RequestID)

	select {
	case q.msgCh <- message{request: &req}:
	case <-ctx.Done():
		q.releaseWaiter(req.RequestID)
		<-q.sem
		return uuid.Nil, nil, ctx.Err()
	}

	q.bumpPending(1)
	return req.RequestID, outcomeCh, nil
}

// TrySubmit is the non-blocking variant of Submit: it returns QueueFull
// immediately instead of waiting for a capacity slot.
func (q *Queue) TrySubmit(objectID, chunkID uuid.UUID, text string) (uuid.UUID, <-chan Outcome, error) {
	select {
	case <-q.shuttingDown:
		return uuid.Nil, nil, kgerrors.QueueError(kgerrors.ErrCodeShutdownInProgress, "embedding queue is shutting down", nil)
	default:
	}

	select {
	case q.sem <- struct{}{}:
	default:
		return uuid.Nil, nil, kgerrors.QueueError(kgerrors.ErrCodeQueueFull, "embedding queue is at capacity", nil)
	}

	req := Request{RequestID: uuid.Must(uuid.NewRandom()), ObjectID: objectID, ChunkID: chunkID, Text: text}
	outcomeCh := q.registerWaiter(req.RequestID)
	q.msgCh <- message{request: &req}
	q.bumpPending(1)
	return req.RequestID, outcomeCh, nil
}

// Cancel marks a request cancelled. If it hasn't started processing yet, it
// is dropped with Outcome.Cancelled=true; if it's already inside an
// in-flight batch, the batch still completes but the result is discarded.
func (q *Queue) Cancel(requestID uuid.UUID) {
	q.mu.Lock()
	q.cancelled[requestID] = struct{}{}
	q.mu.Unlock()
}

// Progress returns the latest coalesced progress snapshot.
func (q *Queue) Progress() Progress {
	q.progressMu.RLock()
	defer q.progressMu.RUnlock()
	return q.progress
}

// Shutdown stops accepting new submissions and waits (until ctx is done) for the
// worker to drain in-flight work. After Shutdown returns, Submit/TrySubmit
// always fail with ShutdownInProgress.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.shutdownOnce.Do(func() {
		slog.Info("embedding queue shutting down")
		close(q.shuttingDown)
		q.msgCh <- message{isShutdown: true}
	})
	select {
	case <-q.workerDone:
		slog.Info("embedding queue drained", slog.Int("completed", q.Progress().Completed), slog.Int("failed", q.Progress().Failed))
		return nil
	case <-ctx.Done():
		slog.Warn("embedding queue shutdown deadline exceeded", slog.String("error", ctx.Err().Error()))
		return ctx.Err()
	}
}

func (q *Queue) registerWaiter(id uuid.UUID) chan Outcome {
	ch := make(chan Outcome, 1)
	q.mu.Lock()
	q.waiters[id] = ch
	q.mu.Unlock()
	return ch
}

func (q *Queue) releaseWaiter(id uuid.UUID) {
	q.mu.Lock()
	delete(q.waiters, id)
	delete(q.cancelled, id)
	q.mu.Unlock()
}

func (q *Queue) isCancelled(id uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.cancelled[id]
	return ok
}

func (q *Queue) deliver(req Request, outcome Outcome) {
	q.mu.Lock()
	ch, ok := q.waiters[req.RequestID]
	delete(q.waiters, req.RequestID)
	delete(q.cancelled, req.RequestID)
	q.mu.Unlock()
	if ok {
		ch <- outcome
		close(ch)
	}
	<-q.sem
}

func (q *Queue) bumpPending(delta int) {
	q.progressMu.Lock()
	q.progress.Pending += delta
	q.progressMu.Unlock()
}

// run is the single consumer worker loop.
func (q *Queue) run() {
	defer close(q.workerDone)

	for {
		msg, shutdown := q.nextMessage()
		if msg == nil && shutdown {
			return
		}
		if msg == nil {
			continue
		}

		batch := q.accumulate(*msg)
		if len(batch) == 0 {
			continue
		}
		q.processBatch(batch)
	}
}

// nextMessage blocks for the first message of the next batching round. It
// returns (nil, true) once a Shutdown message has been seen and no more
// work remains to drain.
func (q *Queue) nextMessage() (*message, bool) {
	if q.pendingSD == nil {
		msg, ok := <-q.msgCh
		if !ok {
			return nil, true
		}
		if !msg.isShutdown {
			return &msg, false
		}
		q.pendingSD = &msg
	}

	// Shutdown has been seen: drain whatever is already queued before
	// actually stopping.
	for {
		select {
		case next := <-q.msgCh:
			if next.isShutdown {
				continue
			}
			return &next, false
		default:
			return nil, true
		}
	}
}

// accumulate pulls additional Single/Cancel messages (starting from first)
// up to the target batch size or timeout, whichever comes first.
func (q *Queue) accumulate(first message) []Request {
	var batch []Request
	if first.request != nil && !q.isCancelled(first.request.RequestID) {
		batch = append(batch, *first.request)
	} else if first.request != nil {
		q.deliver(*first.request, Outcome{RequestID: first.request.RequestID, Cancelled: true})
	}
	if first.isCancel {
		q.Cancel(first.cancelID)
	}

	deadline := time.NewTimer(time.Duration(q.cfg.BatchTimeout) * time.Millisecond)
	defer deadline.Stop()

	for len(batch) < q.cfg.BatchSize {
		select {
		case msg := <-q.msgCh:
			switch {
			case msg.isShutdown:
				// Finish the batch already accumulated; the next call to
				// nextMessage drains anything still queued, then reports shutdown.
				q.pendingSD = &msg
				return batch
			case msg.isCancel:
				q.Cancel(msg.cancelID)
			case msg.request != nil:
				if q.isCancelled(msg.request.RequestID) {
					q.deliver(*msg.request, Outcome{RequestID: msg.request.RequestID, Cancelled: true})
					continue
				}
				batch = append(batch, *msg.request)
			}
		case <-deadline.C:
			return batch
		}
	}
	return batch
}

func (q *Queue) processBatch(batch []Request) {
	q.progressMu.Lock()
	q.progress.InFlightBatchSize = len(batch)
	q.progressMu.Unlock()

	slog.Debug("processing embedding batch", slog.Int("batch_size", len(batch)))

	texts := make([]string, len(batch))
	for i, r := range batch {
		texts[i] = r.Text
	}

	vectors, err := kgerrors.RetryWithResult(context.Background(), kgerrors.EmbedBatchRetryConfig(), func() ([][]float32, error) {
		return q.provider.EmbedBatch(context.Background(), texts)
	})
	if err != nil {
		slog.Warn("embedding batch failed", slog.Int("batch_size", len(batch)), slog.String("error", err.Error()))
	}

	outcomes := make([]Outcome, len(batch))
	var completed, failed int
	for i, req := range batch {
		if q.isCancelled(req.RequestID) {
			slog.Debug("embedding request cancelled", slog.String("chunk_id", req.ChunkID.String()))
			outcomes[i] = Outcome{RequestID: req.RequestID, Cancelled: true}
			continue
		}
		if err != nil {
			outcomes[i] = Outcome{RequestID: req.RequestID, Err: kgerrors.QueueError(kgerrors.ErrCodeProviderFailure, "embedding provider failed", err)}
			failed++
			continue
		}
		vec := vectors[i]
		if len(vec) != q.provider.Dimensions() {
			slog.Warn("embedded vector has wrong dimension",
				slog.String("chunk_id", req.ChunkID.String()),
				slog.Int("got", len(vec)),
				slog.Int("want", q.provider.Dimensions()))
			outcomes[i] = Outcome{RequestID: req.RequestID, Err: kgerrors.VectorError(kgerrors.ErrCodeDimensionMismatch, "embedded vector has wrong dimension", nil)}
			failed++
			continue
		}
		if q.sink != nil {
			if serr := q.sink.OnEmbedded(req, vec); serr != nil {
				slog.Warn("failed to sink embedded vector",
					slog.String("chunk_id", req.ChunkID.String()),
					slog.String("error", serr.Error()))
				outcomes[i] = Outcome{RequestID: req.RequestID, Err: serr}
				failed++
				continue
			}
		}
		outcomes[i] = Outcome{RequestID: req.RequestID, Vector: vec}
		completed++
	}

	q.progressMu.Lock()
	q.progress.Pending -= len(batch)
	q.progress.Completed += completed
	q.progress.Failed += failed
	q.progress.InFlightBatchSize = 0
	q.progressMu.Unlock()

	for i, req := range batch {
		q.deliver(req, outcomes[i])
	}
}
