// Package memory keeps a registry of cache-owning components and clears
// them when the heap grows past a configured limit.
package memory

import (
	"context"
	"log/slog"
	"runtime/metrics"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/logger"
	pkgmetrics "github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/metrics"
)

const heapObjectsMetric = "/memory/classes/heap/objects:bytes"

// HeapReader returns the current live heap size in bytes.
type HeapReader func() uint64

// Manager clears registered caches under memory pressure. A zero limit
// disables pressure detection; ClearAll still works.
type Manager struct {
	mu       sync.Mutex
	clearers map[string]func()

	limit    uint64
	backoff  time.Duration
	readHeap HeapReader
	log      *slog.Logger
	metrics  *pkgmetrics.Metrics
}

type Option func(*Manager)

func WithHeapReader(r HeapReader) Option {
	return func(m *Manager) { m.readHeap = r }
}

func WithMetrics(mt *pkgmetrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithBackoff sets the pause callers should insert after pressure was seen.
func WithBackoff(d time.Duration) Option {
	return func(m *Manager) { m.backoff = d }
}

func NewManager(maxHeapBytes uint64, opts ...Option) *Manager {
	m := &Manager{
		clearers: make(map[string]func()),
		limit:    maxHeapBytes,
		readHeap: readRuntimeHeap,
		log:      logger.WithComponent("memory"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register adds a clear capability under name, replacing any previous one.
func (m *Manager) Register(name string, clear func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearers[name] = clear
}

func (m *Manager) Unregister(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.clearers, name)
}

// Registered returns the registered names in sorted order.
func (m *Manager) Registered() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.clearers))
	for name := range m.clearers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ClearAll invokes every registered clear in name order and returns the
// names that were cleared.
func (m *Manager) ClearAll() []string {
	m.mu.Lock()
	names := make([]string, 0, len(m.clearers))
	fns := make(map[string]func(), len(m.clearers))
	for name, fn := range m.clearers {
		names = append(names, name)
		fns[name] = fn
	}
	m.mu.Unlock()

	sort.Strings(names)
	for _, name := range names {
		fns[name]()
	}
	return names
}

// CheckPressure clears every cache if the heap exceeds the limit and reports
// whether it did.
func (m *Manager) CheckPressure() bool {
	if m.limit == 0 {
		return false
	}
	heap := m.readHeap()
	if heap <= m.limit {
		return false
	}
	cleared := m.ClearAll()
	if m.metrics != nil {
		m.metrics.MemoryPressureTotal.Inc()
	}
	m.log.Warn("memory pressure, caches cleared",
		"heap_bytes", heap, "limit_bytes", m.limit, "caches", cleared)
	return true
}

// Backoff is the pause callers should take after CheckPressure returned
// true.
func (m *Manager) Backoff() time.Duration { return m.backoff }

// Relieve checks pressure and, if caches had to be cleared, waits for the
// backoff or until ctx ends.
func (m *Manager) Relieve(ctx context.Context) error {
	if !m.CheckPressure() || m.backoff <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(m.backoff)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Monitor polls the heap every interval until ctx ends.
func (m *Manager) Monitor(ctx context.Context, interval time.Duration) {
	if m.limit == 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CheckPressure()
		}
	}
}

func readRuntimeHeap() uint64 {
	sample := []metrics.Sample{{Name: heapObjectsMetric}}
	metrics.Read(sample)
	if sample[0].Value.Kind() != metrics.KindUint64 {
		return 0
	}
	return sample[0].Value.Uint64()
}
