// Package orchestrator drives a batch run: it prepares the target corpus
// once per fingerprint, streams source documents through the scoring pool
// (or scores them inline when no pool is configured), merges the results
// with the persisted match cache and records processed sources.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/candidate"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/memory"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/model"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/scheduler"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/similarity"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/store"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/vsm"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/tracing"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	defaultYieldEvery     = 100
	defaultPersistTimeout = 10 * time.Second
	tokenizeChunk         = 256
)

// Config tunes matching and the run loop.
type Config struct {
	Filters        candidate.Config
	Threshold      float64
	TopK           int
	Topics         int
	YieldEvery     int
	MaxInFlight    int
	PersistTimeout time.Duration
	VectorCache    int
}

// ConfigFrom maps the application config onto Config.
func ConfigFrom(cfg *config.Config) (Config, error) {
	mode, err := candidate.ParseMode(cfg.Filters.Mode)
	if err != nil {
		return Config{}, err
	}
	return Config{
		Filters: candidate.Config{
			Mode:                   mode,
			NumHashes:              cfg.Filters.NumHashes,
			Bands:                  cfg.Filters.Bands,
			BloomFalsePositiveRate: cfg.Filters.BloomFalsePositiveRate,
		},
		Threshold:      cfg.Similarity.Threshold,
		TopK:           cfg.Similarity.TopK,
		YieldEvery:     cfg.Memory.YieldEvery,
		PersistTimeout: cfg.Store.PersistTimeout,
	}, nil
}

func (c Config) withDefaults(poolSize int) Config {
	if c.TopK <= 0 {
		c.TopK = similarity.DefaultTopK
	}
	if c.Topics <= 0 {
		c.Topics = similarity.DefaultTopics
	}
	if c.YieldEvery <= 0 {
		c.YieldEvery = defaultYieldEvery
	}
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = 4 * max(poolSize, 1)
	}
	if c.PersistTimeout <= 0 {
		c.PersistTimeout = defaultPersistTimeout
	}
	return c
}

// Sink receives every source result as soon as it is final.
type Sink interface {
	Deliver(ctx context.Context, runID, corpusID string, res model.SourceResult) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, runID, corpusID string, res model.SourceResult) error

func (f SinkFunc) Deliver(ctx context.Context, runID, corpusID string, res model.SourceResult) error {
	return f(ctx, runID, corpusID, res)
}

// Options are the collaborators of an Orchestrator. Only Store may be
// shared with other components; nil Store selects an in-memory store and
// nil Pool scores inline on the calling goroutine.
type Options struct {
	Store     store.Store
	Pool      *Pool
	Memory    *memory.Manager
	Metrics   *metrics.Metrics
	Tokenizer *tokenizer.Tokenizer
	Sinks     []Sink
}

type Orchestrator struct {
	cfg     Config
	store   store.Store
	pool    *Pool
	mem     *memory.Manager
	metrics *metrics.Metrics
	sinks   []Sink
	pre     *tokenizer.Preprocessor
	vectors *vsm.VectorCache
	scorer  *similarity.Scorer
	log     *slog.Logger

	prepareMu sync.Mutex
	corpus    *Corpus

	runsMu sync.Mutex
	runs   map[string]context.CancelFunc

	closeOnce sync.Once
}

func New(cfg Config, opts Options) (*Orchestrator, error) {
	poolSize := 0
	if opts.Pool != nil {
		poolSize = opts.Pool.Size()
	}
	cfg = cfg.withDefaults(poolSize)

	pre, err := tokenizer.NewPreprocessor(opts.Tokenizer, 0)
	if err != nil {
		return nil, err
	}
	vectors, err := vsm.NewVectorCache(cfg.VectorCache)
	if err != nil {
		pre.Close()
		return nil, err
	}
	st := opts.Store
	if st == nil {
		st = store.NewMemoryStore()
	}
	o := &Orchestrator{
		cfg:     cfg,
		store:   st,
		pool:    opts.Pool,
		mem:     opts.Memory,
		metrics: opts.Metrics,
		sinks:   opts.Sinks,
		pre:     pre,
		vectors: vectors,
		scorer:  similarity.NewScorer(nil, cfg.Threshold, cfg.TopK),
		log:     logger.WithComponent("orchestrator"),
		runs:    make(map[string]context.CancelFunc),
	}
	if m := opts.Metrics; m != nil {
		pre.OnHit = m.CacheHitsTotal.WithLabelValues("terms").Inc
		pre.OnMiss = m.CacheMissesTotal.WithLabelValues("terms").Inc
		vectors.OnHit = m.CacheHitsTotal.WithLabelValues("vectors").Inc
		vectors.OnMiss = m.CacheMissesTotal.WithLabelValues("vectors").Inc
	}
	if o.mem != nil {
		o.mem.Register("preprocessor", pre.Clear)
		o.mem.Register("vector-cache", vectors.Clear)
	}
	return o, nil
}

// Close releases the caches. The pool and store belong to the caller.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		if o.mem != nil {
			o.mem.Unregister("preprocessor")
			o.mem.Unregister("vector-cache")
		}
		o.pre.Close()
	})
}

// ClearCaches drops the term and vector caches. The prepared corpus is kept.
func (o *Orchestrator) ClearCaches() []string {
	if o.mem != nil {
		return o.mem.ClearAll()
	}
	o.pre.Clear()
	o.vectors.Clear()
	return []string{"preprocessor", "vector-cache"}
}

// Stats reports the pool state, or false when scoring runs inline.
func (o *Orchestrator) Stats() (scheduler.Stats, bool) {
	if o.pool == nil {
		return scheduler.Stats{}, false
	}
	return o.pool.Stats(), true
}

// Cancel stops every active run from submitting more work and rejects all
// queued and running scoring tasks. It returns the number of tasks
// cancelled in the pool.
func (o *Orchestrator) Cancel() int {
	o.runsMu.Lock()
	for id, cancel := range o.runs {
		cancel()
		delete(o.runs, id)
	}
	o.runsMu.Unlock()
	if o.pool == nil {
		return 0
	}
	n := o.pool.CancelAll()
	o.log.Warn("scoring tasks cancelled", "tasks", n)
	return n
}

// Prepare returns the corpus for targets. While the target fingerprint is
// unchanged the previously built corpus is reused; otherwise the
// vocabulary, IDF table, target vectors and candidate index are rebuilt
// and the vector cache is purged.
func (o *Orchestrator) Prepare(ctx context.Context, targets []model.Document) (*Corpus, error) {
	if len(targets) == 0 {
		return nil, apperrors.Dataf("empty corpus")
	}
	ctx, span := tracing.StartChildSpan(ctx, "prepare")
	defer span.End()

	fp := vsm.Fingerprint(targets)
	o.prepareMu.Lock()
	defer o.prepareMu.Unlock()
	if c := o.corpus; c != nil && c.Fingerprint == fp {
		span.SetAttr("reused", true)
		return c, nil
	}
	span.SetAttr("reused", false)

	docs, err := o.tokenize(ctx, targets)
	if err != nil {
		return nil, err
	}
	snap, err := vsm.Build(docs)
	if err != nil {
		return nil, err
	}
	o.vectors.InvalidateOnCorpusChange(snap.Fingerprint)

	vectors := make([]vsm.Vector, len(docs))
	topics := make([][]string, len(docs))
	for i, d := range docs {
		if i > 0 && i%o.cfg.YieldEvery == 0 {
			runtime.Gosched()
			if err := o.relieve(ctx); err != nil {
				return nil, err
			}
		}
		v, err := snap.Vectorize(d.Terms)
		if err != nil {
			return nil, err
		}
		vectors[i] = v
		topics[i] = similarity.Topics(v, snap.Vocabulary, o.cfg.Topics)
	}
	index, err := candidate.Build(o.cfg.Filters, docs)
	if err != nil {
		return nil, err
	}

	urls := make([]string, len(docs))
	urlSet := make(map[string]struct{}, len(docs))
	for i, d := range docs {
		urls[i] = d.URL
		urlSet[d.URL] = struct{}{}
	}
	corpusID, err := o.store.GetOrCreateCorpusID(ctx, urls)
	if err != nil {
		return nil, fmt.Errorf("resolving corpus id: %w", err)
	}
	o.storeTargets(ctx, docs)

	c := &Corpus{
		ID:          corpusID,
		Fingerprint: snap.Fingerprint,
		Targets:     docs,
		Snapshot:    snap,
		Vectors:     vectors,
		Topics:      topics,
		Index:       index,
		scorer:      o.scorer,
		cache:       o.vectors,
		topics:      o.cfg.Topics,
		metrics:     o.metrics,
		urls:        urlSet,
	}
	o.corpus = c
	if o.metrics != nil {
		o.metrics.VocabularyRebuildsTotal.Inc()
		o.metrics.VocabularySize.Set(float64(snap.Vocabulary.Len()))
	}
	span.SetAttr("targets", len(docs))
	span.SetAttr("terms", snap.Vocabulary.Len())
	o.log.Info("corpus prepared",
		"corpus_id", corpusID,
		"targets", len(docs),
		"terms", snap.Vocabulary.Len(),
		"index", index.String(),
	)
	return c, nil
}

// tokenize copies docs and fills in their terms in parallel.
func (o *Orchestrator) tokenize(ctx context.Context, docs []model.Document) ([]model.Document, error) {
	out := make([]model.Document, len(docs))
	copy(out, docs)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for start := 0; start < len(out); start += tokenizeChunk {
		chunk := out[start:min(start+tokenizeChunk, len(out))]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			o.pre.Prepare(chunk)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// storeTargets saves the tokenized targets so later runs can name them as
// sources by URL alone. It gives up on the first failure.
func (o *Orchestrator) storeTargets(ctx context.Context, docs []model.Document) {
	ctx = context.WithoutCancel(ctx)
	for _, d := range docs {
		err := resilience.WithTimeout(ctx, o.cfg.PersistTimeout, "store.put_document", func(ctx context.Context) error {
			return o.store.PutDocument(ctx, d)
		})
		if err != nil {
			o.persistFailed("put_document", d.URL, err)
			return
		}
	}
}

func (o *Orchestrator) relieve(ctx context.Context) error {
	if o.mem == nil {
		return ctx.Err()
	}
	return o.mem.Relieve(ctx)
}

type outcome struct {
	source model.Document
	result model.SourceResult
	err    error
}

// Run matches every source against targets. Sources already processed
// against this corpus are answered from the store, and a source given by
// URL alone is loaded from it. A failing source is recorded in
// Summary.Failures and never aborts the batch. If the run is cancelled its
// queued and running tasks are withdrawn from the pool and the partial
// summary is returned with an error wrapping ErrCancelled.
func (o *Orchestrator) Run(ctx context.Context, sources, targets []model.Document) (*model.Summary, error) {
	runID := uuid.NewString()
	ctx = logger.WithRunID(ctx, runID)
	ctx, span := tracing.StartSpan(ctx, "run", runID)
	defer func() {
		span.End()
		span.Log(ctx, logger.FromContext(ctx), slog.LevelDebug)
	}()
	log := logger.FromContext(ctx).With("component", "orchestrator")

	corpus, err := o.Prepare(ctx, targets)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.runsMu.Lock()
	o.runs[runID] = cancel
	o.runsMu.Unlock()
	defer func() {
		o.runsMu.Lock()
		delete(o.runs, runID)
		o.runsMu.Unlock()
	}()

	summary := &model.Summary{
		RunID:     runID,
		CorpusID:  corpus.ID,
		Results:   make(map[string]model.SourceResult, len(sources)),
		StartedAt: time.Now().UTC(),
	}
	var mu sync.Mutex
	record := func(oc outcome) {
		if oc.err != nil {
			log.Warn("source failed", "source_url", oc.source.URL, "error", oc.err)
			mu.Lock()
			summary.Failures = append(summary.Failures, model.Failure{SourceURL: oc.source.URL, Error: oc.err.Error()})
			mu.Unlock()
			return
		}
		if !oc.result.FromCache {
			o.persist(ctx, corpus.ID, oc.result)
		}
		mu.Lock()
		summary.Results[oc.result.SourceURL] = oc.result
		mu.Unlock()
		o.deliver(ctx, runID, corpus.ID, oc.result)
	}

	_, submitSpan := tracing.StartChildSpan(ctx, "submit")
	sem := make(chan struct{}, o.cfg.MaxInFlight)
	var wg sync.WaitGroup
	seen := make(map[string]struct{}, len(sources))
	var taskIDs []string
	submitted, skipped := 0, 0

	for i, src := range sources {
		if ctx.Err() != nil {
			skipped += len(sources) - i
			break
		}
		if i > 0 && i%o.cfg.YieldEvery == 0 {
			runtime.Gosched()
			if err := o.relieve(ctx); err != nil {
				skipped += len(sources) - i
				break
			}
		}
		if src.URL != "" {
			if _, dup := seen[src.URL]; dup {
				log.Warn("duplicate source skipped", "source_url", src.URL)
				skipped++
				continue
			}
			seen[src.URL] = struct{}{}
			if src.Body == "" && src.Title == "" && src.Terms == nil {
				stored, err := o.lookup(ctx, src.URL)
				if err != nil {
					record(outcome{source: src, err: err})
					continue
				}
				src = stored
			}
			if res, ok := o.cached(ctx, corpus, src.URL); ok {
				res.SourceTopics = o.sourceTopics(corpus, src)
				record(outcome{source: src, result: res})
				continue
			}
		}

		if src.Terms == nil {
			src.Terms = o.pre.Terms(src)
		}
		submitted++
		if o.pool == nil {
			res, err := corpus.Match(ctx, src)
			record(outcome{source: src, result: res, err: err})
			continue
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			submitted--
			skipped += len(sources) - i
			break
		}
		taskID := runID + "/" + strconv.Itoa(i)
		fut, err := o.pool.Submit(scheduler.Task[ScoreRequest]{
			ID:      taskID,
			Payload: ScoreRequest{Source: src, Corpus: corpus},
		})
		if err != nil {
			<-sem
			record(outcome{source: src, err: err})
			continue
		}
		taskIDs = append(taskIDs, taskID)
		wg.Add(1)
		go func(src model.Document) {
			defer wg.Done()
			defer func() { <-sem }()
			res, err := fut.Wait(ctx)
			if err != nil && ctx.Err() != nil {
				err = fmt.Errorf("%w: %v", apperrors.ErrCancelled, err)
			}
			record(outcome{source: src, result: res, err: err})
		}(src)
	}
	submitSpan.SetAttr("submitted", submitted)
	submitSpan.End()
	wg.Wait()
	if ctx.Err() != nil && len(taskIDs) > 0 {
		if n := o.pool.Cancel(taskIDs...); n > 0 {
			log.Warn("withdrew tasks of cancelled run", "tasks", n)
		}
	}

	summary.Skipped = skipped
	summary.CompletedAt = time.Now().UTC()
	span.SetAttr("results", len(summary.Results))
	span.SetAttr("failures", len(summary.Failures))
	log.Info("run finished",
		"corpus_id", corpus.ID,
		"sources", len(sources),
		"results", len(summary.Results),
		"failures", len(summary.Failures),
		"skipped", skipped,
		"duration_ms", summary.CompletedAt.Sub(summary.StartedAt).Milliseconds(),
	)
	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("run %s: %w", runID, apperrors.ErrCancelled)
	}
	return summary, nil
}

// lookup loads a source that was given by URL only.
func (o *Orchestrator) lookup(ctx context.Context, url string) (model.Document, error) {
	doc, err := o.store.GetDocument(ctx, url)
	if err != nil {
		return model.Document{}, fmt.Errorf("loading source %s: %w", url, err)
	}
	if doc == nil {
		return model.Document{}, apperrors.Dataf("source %q has no text and is not stored", url)
	}
	return *doc, nil
}

// cached returns the stored matches of a source already processed against
// corpus. Lookup failures fall through to recomputation. A ledger entry
// without matches, or with matches pointing outside the corpus, is cleared
// so the source is scored again.
func (o *Orchestrator) cached(ctx context.Context, corpus *Corpus, sourceURL string) (model.SourceResult, bool) {
	done, err := o.store.IsProcessed(ctx, sourceURL, corpus.ID)
	if err != nil {
		o.log.Warn("processed lookup failed", "source_url", sourceURL, "error", err)
		return model.SourceResult{}, false
	}
	if !done {
		return model.SourceResult{}, false
	}
	matches, ok, err := o.store.GetCachedMatches(ctx, sourceURL, corpus.ID)
	if err != nil {
		o.log.Warn("cached matches lookup failed", "source_url", sourceURL, "error", err)
		return model.SourceResult{}, false
	}
	if !ok || !o.withinCorpus(corpus, matches) {
		o.log.Warn("stale processed entry cleared", "source_url", sourceURL, "corpus_id", corpus.ID)
		if err := o.store.ClearProcessed(ctx, sourceURL, corpus.ID); err != nil {
			o.persistFailed("clear_processed", sourceURL, err)
		}
		return model.SourceResult{}, false
	}
	return model.SourceResult{SourceURL: sourceURL, Matches: matches, FromCache: true}, true
}

func (o *Orchestrator) withinCorpus(corpus *Corpus, matches []model.Match) bool {
	for _, m := range matches {
		if !corpus.Contains(m.TargetURL) {
			return false
		}
	}
	return true
}

func (o *Orchestrator) sourceTopics(corpus *Corpus, src model.Document) []string {
	terms := src.Terms
	if terms == nil {
		terms = o.pre.Terms(src)
	}
	vec, err := corpus.Vectorize(terms)
	if err != nil {
		return nil
	}
	return similarity.Topics(vec, corpus.Snapshot.Vocabulary, o.cfg.Topics)
}

// persist stores matches and marks the source processed. Sources without
// matches are left unmarked so a later run against a grown corpus picks
// them up again. Failures are logged and counted, never returned.
func (o *Orchestrator) persist(ctx context.Context, corpusID string, res model.SourceResult) {
	if !res.ShouldMarkProcessed() {
		return
	}
	ctx = context.WithoutCancel(ctx)
	err := resilience.WithTimeout(ctx, o.cfg.PersistTimeout, "store.put_matches", func(ctx context.Context) error {
		return o.store.PutMatches(ctx, res.SourceURL, corpusID, res.Matches)
	})
	if err != nil {
		o.persistFailed("put_matches", res.SourceURL, err)
		return
	}
	err = resilience.WithTimeout(ctx, o.cfg.PersistTimeout, "store.mark_processed", func(ctx context.Context) error {
		return o.store.MarkProcessed(ctx, res.SourceURL, corpusID)
	})
	if err != nil {
		o.persistFailed("mark_processed", res.SourceURL, err)
	}
}

func (o *Orchestrator) persistFailed(op, sourceURL string, err error) {
	o.log.Error("persisting result failed", "operation", op, "source_url", sourceURL, "error", err)
	if o.metrics != nil {
		o.metrics.PersistFailuresTotal.WithLabelValues(op).Inc()
	}
}

func (o *Orchestrator) deliver(ctx context.Context, runID, corpusID string, res model.SourceResult) {
	for _, s := range o.sinks {
		if err := s.Deliver(context.WithoutCancel(ctx), runID, corpusID, res); err != nil {
			o.log.Warn("delivering result failed", "source_url", res.SourceURL, "error", err)
		}
	}
}
