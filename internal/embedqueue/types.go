package embedqueue

import (
	"github.com/google/uuid"
)

// Request is one unit of embedding work: a single chunk's text, tagged with
// enough identity for the result to be routed back to the right object and
// chunk, and for submission-order-per-(object,chunk) delivery to hold.
type Request struct {
	RequestID uuid.UUID
	ObjectID  uuid.UUID
	ChunkID   uuid.UUID
	Text      string
}

// Outcome is the terminal state of one submitted request: exactly one of a
// vector, a cancellation, or an error.
type Outcome struct {
	RequestID uuid.UUID
	Vector    []float32
	Cancelled bool
	Err       error
}

// Progress is the coalesced, observable state of the queue: only the latest
// snapshot is guaranteed visible, intermediate states may be dropped.
type Progress struct {
	Pending           int
	Completed         int
	Failed            int
	InFlightBatchSize int
}

// ResultSink receives successfully embedded vectors so they can be inserted
// into the vector index and recorded against the owning chunk. Sink errors
// are recorded as failed outcomes; they do not stop the worker.
type ResultSink interface {
	OnEmbedded(req Request, vector []float32) error
}

// Config fixes the queue's capacity and batching behavior.
type Config struct {
	Capacity     int // channel capacity; design default 64
	BatchSize    int // B; design default 16
	BatchTimeout int // T in milliseconds; design default 20
}

// DefaultConfig returns the design-default queue parameters.
func DefaultConfig() Config {
	return Config{Capacity: 64, BatchSize: 16, BatchTimeout: 20}
}

type message struct {
	request  *Request       // Single
	requests []Request      // Batch
	cancelID uuid.UUID      // Cancel
	isCancel bool
	isShutdown bool
	grace    chan struct{} // not set or closed anywhere; Shutdown waits on the worker's workerDone channel
}
