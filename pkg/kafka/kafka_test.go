package kafka

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	apperrors "github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/errors"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

type fakeReader struct {
	msgs      []kafka.Message
	committed []int64
}

func (r *fakeReader) FetchMessage(context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		return kafka.Message{}, io.EOF
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func TestPublish(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, "match-results")
	err := p.Publish(context.Background(),
		Event{Key: "a", Value: map[string]int{"n": 1}, Headers: map[string]string{"run_id": "r1", "corpus_id": "c1"}},
		Event{Key: "b", Value: "plain"},
	)
	require.NoError(t, err)
	require.Len(t, w.msgs, 2)
	assert.Equal(t, []byte("a"), w.msgs[0].Key)
	assert.JSONEq(t, `{"n":1}`, string(w.msgs[0].Value))
	require.Len(t, w.msgs[0].Headers, 2)
	assert.Equal(t, "corpus_id", w.msgs[0].Headers[0].Key)
	assert.Equal(t, "run_id", w.msgs[0].Headers[1].Key)
	assert.Equal(t, `"plain"`, string(w.msgs[1].Value))

	require.NoError(t, p.Publish(context.Background()))
	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPublishError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := NewProducerWithWriter(w, "t")
	assert.Error(t, p.Publish(context.Background(), Event{Key: "a", Value: 1}))
	assert.Error(t, p.Publish(context.Background(), Event{Key: "a", Value: func() {}}))
}

func TestConsumerCommitPolicy(t *testing.T) {
	r := &fakeReader{msgs: []kafka.Message{
		{Offset: 1, Value: []byte("ok")},
		{Offset: 2, Value: []byte("transient")},
		{Offset: 3, Value: []byte("poison")},
	}}
	var seen []string
	c := NewConsumerWithReader(r, "match-requests", func(_ context.Context, _ []byte, value []byte) error {
		seen = append(seen, string(value))
		switch string(value) {
		case "transient":
			return apperrors.Transientf("store unavailable")
		case "poison":
			return apperrors.Dataf("bad payload")
		}
		return nil
	})
	require.NoError(t, c.Start(context.Background()))
	assert.Equal(t, []string{"ok", "transient", "poison"}, seen)
	assert.Equal(t, []int64{1, 3}, r.committed)
}

func TestConsumerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewConsumerWithReader(blockingReader{}, "t", func(context.Context, []byte, []byte) error { return nil })
	assert.NoError(t, c.Start(ctx))
}

type blockingReader struct{}

func (blockingReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}
func (blockingReader) CommitMessages(context.Context, ...kafka.Message) error { return nil }
func (blockingReader) Close() error                                         { return nil }

func TestDecodeJSON(t *testing.T) {
	v, err := DecodeJSON[map[string]int]([]byte(`{"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, 1, v["a"])

	_, err = DecodeJSON[map[string]int]([]byte(`{`))
	assert.True(t, apperrors.IsData(err))
}

func TestPingWithoutBrokers(t *testing.T) {
	assert.Error(t, Ping(context.Background(), nil))
}
