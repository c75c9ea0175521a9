package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/ingest"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/model"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/orchestrator"
	apperrors "github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	events []kafka.Event
}

func (p *recordingPublisher) Publish(_ context.Context, events ...kafka.Event) error {
	p.events = append(p.events, events...)
	return nil
}

type fakeRunner struct {
	calls int
	err   error
}

func (r *fakeRunner) Run(_ context.Context, sources, _ []model.Document) (*model.Summary, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return &model.Summary{RunID: "run-1", Results: map[string]model.SourceResult{}}, nil
}

var _ orchestrator.Sink = (*Publisher)(nil)

func validRequest() MatchRequest {
	return MatchRequest{
		RequestID: "req-1",
		Sources:   []model.Document{{URL: "https://blog.example/post", Body: "cats make great pets"}},
		Targets:   []model.Document{{URL: "https://pets.example/cats", Body: "cats are great pets"}},
	}
}

func encode(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestPublisherDeliver(t *testing.T) {
	rec := &recordingPublisher{}
	p := NewPublisher(rec)
	p.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	ctx := logger.WithRequestID(context.Background(), "req-9")
	res := model.SourceResult{
		SourceURL:    "https://blog.example/post",
		SourceTopics: []string{"cats"},
		Matches:      []model.Match{{TargetURL: "https://pets.example/cats", SimilarityScore: 0.9}},
	}
	require.NoError(t, p.Deliver(ctx, "run-1", "corpus-1", res))

	require.Len(t, rec.events, 1)
	ev := rec.events[0]
	assert.Equal(t, "https://blog.example/post", ev.Key)
	assert.Equal(t, map[string]string{"run_id": "run-1", "corpus_id": "corpus-1", "request_id": "req-9"}, ev.Headers)
	body := ev.Value.(MatchResultEvent)
	assert.Equal(t, "corpus-1", body.CorpusID)
	assert.Equal(t, res.Matches, body.Matches)
	assert.Equal(t, 2026, body.PublishedAt.Year())
}

func TestHandleMatchRequestRuns(t *testing.T) {
	runner := &fakeRunner{}
	h := HandleMatchRequest(runner, ingest.Limits{})
	require.NoError(t, h(context.Background(), nil, encode(t, validRequest())))
	assert.Equal(t, 1, runner.calls)
}

func TestHandleMatchRequestDropsBadInput(t *testing.T) {
	runner := &fakeRunner{}
	h := HandleMatchRequest(runner, ingest.Limits{})

	assert.NoError(t, h(context.Background(), nil, []byte("{not json")))

	req := validRequest()
	req.Targets = nil
	assert.NoError(t, h(context.Background(), nil, encode(t, req)))

	req = validRequest()
	req.Sources[0].URL = "ftp://nowhere"
	assert.NoError(t, h(context.Background(), nil, encode(t, req)))

	assert.Equal(t, 0, runner.calls)
}

func TestHandleMatchRequestErrorClasses(t *testing.T) {
	runner := &fakeRunner{err: apperrors.Dataf("empty corpus")}
	h := HandleMatchRequest(runner, ingest.Limits{})
	assert.NoError(t, h(context.Background(), nil, encode(t, validRequest())))

	runner.err = apperrors.Transientf("store unavailable")
	err := h(context.Background(), nil, encode(t, validRequest()))
	require.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err))

	runner.err = errors.New("boom")
	assert.Error(t, h(context.Background(), nil, encode(t, validRequest())))
}

func TestValidateRequest(t *testing.T) {
	assert.NoError(t, ValidateRequest(validRequest(), ingest.Limits{}))

	req := validRequest()
	req.Sources = append(req.Sources, model.Document{URL: "https://x.example", Body: "short"})
	err := ValidateRequest(req, ingest.Limits{})
	require.Error(t, err)
	assert.True(t, apperrors.IsData(err))
	assert.Contains(t, err.Error(), "sources[1]")
	assert.Contains(t, err.Error(), "at least 10")

	assert.True(t, apperrors.IsData(ValidateRequest(MatchRequest{}, ingest.Limits{})))
}

func TestPublisherAsOrchestratorSink(t *testing.T) {
	rec := &recordingPublisher{}
	o, err := orchestrator.New(orchestrator.Config{Threshold: 0.02, TopK: 5},
		orchestrator.Options{Sinks: []orchestrator.Sink{NewPublisher(rec)}})
	require.NoError(t, err)
	defer o.Close()

	req := validRequest()
	summary, err := o.Run(context.Background(), req.Sources, req.Targets)
	require.NoError(t, err)
	require.Len(t, rec.events, 1)
	assert.Equal(t, summary.RunID, rec.events[0].Headers["run_id"])
	assert.Equal(t, summary.CorpusID, rec.events[0].Headers["corpus_id"])
}

type flakyPublisher struct {
	mu      sync.Mutex
	fail    bool
	batches [][]kafka.Event
}

func (p *flakyPublisher) Publish(_ context.Context, events ...kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker down")
	}
	p.batches = append(p.batches, events)
	return nil
}

func (p *flakyPublisher) published() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, b := range p.batches {
		n += len(b)
	}
	return n
}

func result(url string) model.SourceResult {
	return model.SourceResult{SourceURL: url, Matches: []model.Match{}}
}

func TestBatchPublisherFlushesOnSize(t *testing.T) {
	pub := &flakyPublisher{}
	b := NewBatchPublisher(pub, 2, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	b.Start(ctx)

	require.NoError(t, b.Deliver(ctx, "run", "corpus", result("https://a.example")))
	require.NoError(t, b.Deliver(ctx, "run", "corpus", result("https://b.example")))
	require.Eventually(t, func() bool { return pub.published() == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, b.Deliver(ctx, "run", "corpus", result("https://c.example")))
	cancel()
	<-b.Done()
	assert.Equal(t, 3, pub.published())
	assert.Equal(t, 0, b.Pending())
}

func TestBatchPublisherRequeuesAndBoundsBuffer(t *testing.T) {
	pub := &flakyPublisher{fail: true}
	b := NewBatchPublisher(pub, 2, time.Hour)
	ctx := context.Background()
	for i := 0; i < 8; i++ {
		require.NoError(t, b.Deliver(ctx, "run", "corpus", result(fmt.Sprintf("https://%d.example", i))))
	}
	b.Flush(ctx)
	assert.Equal(t, 6, b.Pending())
	assert.Equal(t, 2, b.dropped)

	pub.fail = false
	b.Flush(ctx)
	require.Len(t, pub.batches, 1)
	assert.Equal(t, "https://2.example", pub.batches[0][0].Key)
	assert.Equal(t, 0, b.Pending())
}
