package redis

import (
	"context"
	"log/slog"
	"sync"
)

// Publisher is the sink a BufferedWriter protects.
type Publisher interface {
	Publish(ctx context.Context, msg RunMessage) error
}

// BufferedWriter wraps a Publisher with a circuit breaker.
// While the circuit is open, messages are held locally and replayed
// once the circuit closes again.
type BufferedWriter struct {
	pub Publisher
	cb  *CircuitBreaker
	ctx context.Context
	log *slog.Logger

	mu     sync.Mutex
	buffer []RunMessage
	maxBuf int // max buffered messages before dropping oldest (default: 1000)

	// Callbacks
	OnBuffer func()          // called when a message is buffered (for metrics)
	OnFlush  func(count int) // called after flushing buffered messages
}

// NewBufferedWriter creates a BufferedWriter wrapping pub.
func NewBufferedWriter(ctx context.Context, pub Publisher, cb *CircuitBreaker, maxBufferSize int, log *slog.Logger) *BufferedWriter {
	if maxBufferSize <= 0 {
		maxBufferSize = 1000
	}
	if log == nil {
		log = slog.Default()
	}
	bw := &BufferedWriter{
		pub:    pub,
		cb:     cb,
		ctx:    ctx,
		log:    log.With("component", "buffered-writer"),
		buffer: make([]RunMessage, 0, 16),
		maxBuf: maxBufferSize,
	}

	// Register flush on circuit close
	prevCallback := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prevCallback != nil {
			prevCallback(from, to)
		}
		if to == StateClosed {
			go bw.flush()
		}
	}

	return bw
}

// Publish sends msg through the circuit breaker.
// If the circuit is open the message is buffered and nil is returned.
func (bw *BufferedWriter) Publish(ctx context.Context, msg RunMessage) error {
	err := bw.cb.Execute(func() error {
		return bw.pub.Publish(ctx, msg)
	})
	if err == ErrCircuitOpen {
		bw.bufferWrite(msg)
		return nil // buffered, not lost
	}
	return err
}

func (bw *BufferedWriter) bufferWrite(msg RunMessage) {
	bw.mu.Lock()
	defer bw.mu.Unlock()

	if len(bw.buffer) >= bw.maxBuf {
		// Buffer full, drop oldest
		bw.buffer = bw.buffer[1:]
	}
	bw.buffer = append(bw.buffer, msg)

	if bw.OnBuffer != nil {
		bw.OnBuffer()
	}
}

// flush replays all buffered messages through the underlying publisher.
func (bw *BufferedWriter) flush() {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return
	}
	toFlush := bw.buffer
	bw.buffer = make([]RunMessage, 0, 16)
	bw.mu.Unlock()

	flushed := 0
	for _, msg := range toFlush {
		if err := bw.pub.Publish(bw.ctx, msg); err != nil {
			bw.log.Warn("replay failed", "run_id", msg.RunID, "error", err)
			continue
		}
		flushed++
	}

	bw.log.Info("flushed buffered runs", "count", flushed)
	if bw.OnFlush != nil {
		bw.OnFlush(flushed)
	}
}

// PendingCount returns the number of buffered messages waiting to be flushed.
func (bw *BufferedWriter) PendingCount() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}
