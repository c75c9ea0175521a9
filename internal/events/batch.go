package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/model"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/kafka"
)

// BatchPublisher buffers result events and publishes them when the buffer
// reaches batchSize or every flushInterval, whichever comes first. Deliver
// never blocks on Kafka. Events of a failed flush are re-queued, up to three
// batches; older overflow is dropped.
type BatchPublisher struct {
	producer      EventPublisher
	batchSize     int
	flushInterval time.Duration
	now           func() time.Time
	logger        *slog.Logger

	mu      sync.Mutex
	buffer  []kafka.Event
	dropped int

	flushMu sync.Mutex
	kick    chan struct{}
	done    chan struct{}
}

func NewBatchPublisher(p EventPublisher, batchSize int, flushInterval time.Duration) *BatchPublisher {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = time.Second
	}
	return &BatchPublisher{
		producer:      p,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		now:           time.Now,
		logger:        slog.Default().With("component", "batch-publisher"),
		buffer:        make([]kafka.Event, 0, batchSize),
		kick:          make(chan struct{}, 1),
		done:          make(chan struct{}),
	}
}

// Start launches the flush loop. It returns immediately; the loop performs
// a final flush when ctx ends and then closes Done.
func (b *BatchPublisher) Start(ctx context.Context) {
	go func() {
		defer close(b.done)
		ticker := time.NewTicker(b.flushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				b.Flush(ctx)
			case <-b.kick:
				b.Flush(ctx)
			case <-ctx.Done():
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				b.Flush(flushCtx)
				cancel()
				return
			}
		}
	}()
	b.logger.Info("batch publisher started", "batch_size", b.batchSize, "flush_interval", b.flushInterval)
}

// Done is closed once the flush loop has exited.
func (b *BatchPublisher) Done() <-chan struct{} { return b.done }

func (b *BatchPublisher) Deliver(ctx context.Context, runID, corpusID string, res model.SourceResult) error {
	b.mu.Lock()
	b.buffer = append(b.buffer, resultEvent(ctx, b.now(), runID, corpusID, res))
	full := len(b.buffer) >= b.batchSize
	b.mu.Unlock()
	if full {
		select {
		case b.kick <- struct{}{}:
		default:
		}
	}
	return nil
}

func (b *BatchPublisher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buffer)
}

// Flush publishes everything buffered so far.
func (b *BatchPublisher) Flush(ctx context.Context) {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.mu.Lock()
	if len(b.buffer) == 0 {
		b.mu.Unlock()
		return
	}
	batch := b.buffer
	b.buffer = make([]kafka.Event, 0, b.batchSize)
	b.mu.Unlock()

	if err := b.producer.Publish(ctx, batch...); err != nil {
		b.logger.Error("batch flush failed", "batch_size", len(batch), "error", err)
		b.mu.Lock()
		b.buffer = append(batch, b.buffer...)
		if limit := b.batchSize * 3; len(b.buffer) > limit {
			n := len(b.buffer) - limit
			b.buffer = b.buffer[n:]
			b.dropped += n
			b.logger.Warn("publish buffer overflow, events dropped", "dropped", n)
		}
		b.mu.Unlock()
		return
	}
	b.logger.Debug("batch flushed", "events", len(batch))
}
