package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/geocoder/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/resilience"
)

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.msgs) > 0 {
		msg := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

type indexEvent struct {
	Source string `json:"source"`
}

func TestConsumerProcess(t *testing.T) {
	transient := errors.New("store busy")

	tests := []struct {
		name      string
		handler   func(calls int) error
		wantCalls int
		outcome   string
	}{
		{"handled", func(int) error { return nil }, 1, "ok"},
		{"invalid skipped", func(int) error { return apperrors.ErrInvalidInput }, 1, "skipped"},
		{"transient recovers", func(calls int) error {
			if calls < 2 {
				return transient
			}
			return nil
		}, 2, "ok"},
		{"persistent dropped", func(int) error { return transient }, 3, "dropped"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := metrics.New(prometheus.NewRegistry())
			r := &fakeReader{}
			calls := 0
			c := newConsumer(r, "geocoder.feature-ingest", func(context.Context, []byte, []byte) error {
				calls++
				return tt.handler(calls)
			}, consumerOptions{
				retry:   resilience.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond},
				metrics: m,
			})

			assert.True(t, c.process(context.Background(), kafka.Message{Offset: 7}))
			assert.Equal(t, tt.wantCalls, calls)
			assert.Equal(t, []int64{7}, r.committed, "every outcome commits")
			assert.Equal(t, 1.0, testutil.ToFloat64(m.KafkaMessagesTotal.WithLabelValues("geocoder.feature-ingest", tt.outcome)))
		})
	}
}

func TestConsumerLeavesInterruptedMessage(t *testing.T) {
	r := &fakeReader{}
	ctx, cancel := context.WithCancel(context.Background())
	c := newConsumer(r, "geocoder.index-complete", func(ctx context.Context, _, _ []byte) error {
		cancel()
		return ctx.Err()
	}, consumerOptions{})

	assert.False(t, c.process(ctx, kafka.Message{Offset: 3}))
	assert.Empty(t, r.committed)
}

func TestConsumerStart(t *testing.T) {
	r := &fakeReader{msgs: []kafka.Message{
		{Offset: 1, Value: []byte(`{"source":"place"}`)},
		{Offset: 2, Value: []byte(`{not json`)},
		{Offset: 3, Value: []byte(`{"source":"street"}`)},
	}}
	var mu sync.Mutex
	var sources []string
	done := make(chan struct{})
	c := newConsumer(r, "geocoder.index-complete", func(_ context.Context, _, value []byte) error {
		event, err := DecodeJSON[indexEvent](value)
		if err != nil {
			return err
		}
		mu.Lock()
		sources = append(sources, event.Source)
		if len(sources) == 2 {
			close(done)
		}
		mu.Unlock()
		return nil
	}, consumerOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- c.Start(ctx) }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not drain messages")
	}
	cancel()
	require.NoError(t, <-errc)

	r.mu.Lock()
	defer r.mu.Unlock()
	assert.Equal(t, []string{"place", "street"}, sources)
	assert.Equal(t, []int64{1, 2, 3}, r.committed)
	assert.True(t, r.closed)
}

func TestDecodeJSON(t *testing.T) {
	event, err := DecodeJSON[indexEvent]([]byte(`{"source":"address"}`))
	require.NoError(t, err)
	assert.Equal(t, "address", event.Source)

	_, err = DecodeJSON[indexEvent]([]byte(`[1,2`))
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestProducer(t *testing.T) {
	down := errors.New("broker unreachable")

	tests := []struct {
		name     string
		events   []Event
		writeErr error
		wantErr  error
		wantKeys []string
	}{
		{"single", []Event{{Key: "place.1", Value: indexEvent{Source: "place"}}}, nil, nil, []string{"place.1"}},
		{"batch", []Event{{Key: "a", Value: 1}, {Key: "b", Value: 2}}, nil, nil, []string{"a", "b"}},
		{"empty", nil, nil, nil, nil},
		{"unencodable", []Event{{Key: "a", Value: 1}, {Key: "bad", Value: make(chan int)}}, nil, apperrors.ErrInvalidInput, nil},
		{"broker down", []Event{{Key: "a", Value: 1}}, down, down, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &fakeWriter{err: tt.writeErr}
			p := newProducer(w, "geocoder.query-events")

			var err error
			if len(tt.events) == 1 {
				err = p.Publish(context.Background(), tt.events[0])
			} else {
				err = p.PublishBatch(context.Background(), tt.events)
			}
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, w.msgs)
				return
			}
			require.NoError(t, err)
			var keys []string
			for _, m := range w.msgs {
				keys = append(keys, string(m.Key))
			}
			assert.Equal(t, tt.wantKeys, keys)
		})
	}
}
