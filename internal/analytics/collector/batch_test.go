package collector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/kafka"
)

type recordingPublisher struct {
	mu      sync.Mutex
	batches [][]kafka.Event
	err     error
}

func (p *recordingPublisher) PublishBatch(_ context.Context, events []kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.batches = append(p.batches, events)
	return nil
}

func (p *recordingPublisher) published() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, b := range p.batches {
		n += len(b)
	}
	return n
}

func TestFlush(t *testing.T) {
	pub := &recordingPublisher{}
	bc := NewBatchCollector(pub, 10, time.Hour)

	bc.Track(analytics.QueryEvent{Query: "paris", RequestID: "r1"})
	bc.Track(analytics.QueryEvent{Query: "berlin", RequestID: "r2"})
	assert.Equal(t, 2, bc.BufferLen())

	bc.Flush(context.Background())
	assert.Equal(t, 0, bc.BufferLen())
	require.Len(t, pub.batches, 1)
	require.Len(t, pub.batches[0], 2)
	assert.Equal(t, "r1", pub.batches[0][0].Key)
	assert.Equal(t, "paris", pub.batches[0][0].Value.(analytics.QueryEvent).Query)

	bc.Flush(context.Background())
	assert.Len(t, pub.batches, 1, "empty buffer publishes nothing")
}

func TestFlushFailureRequeues(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	bc := NewBatchCollector(pub, 2, time.Hour)

	for i := 0; i < 8; i++ {
		bc.mu.Lock()
		bc.buffer = append(bc.buffer, kafka.Event{Key: "k", Value: analytics.QueryEvent{Returned: i}})
		bc.mu.Unlock()
	}
	bc.Flush(context.Background())
	require.Equal(t, 6, bc.BufferLen())
	assert.Equal(t, 2, bc.buffer[0].Value.(analytics.QueryEvent).Returned, "oldest events are dropped first")

	pub.mu.Lock()
	pub.err = nil
	pub.mu.Unlock()
	bc.Flush(context.Background())
	assert.Equal(t, 0, bc.BufferLen())
	assert.Equal(t, 6, pub.published())
}

func TestTrackFlushesFullBuffer(t *testing.T) {
	pub := &recordingPublisher{}
	bc := NewBatchCollector(pub, 3, time.Hour)
	for i := 0; i < 3; i++ {
		bc.Track(analytics.QueryEvent{Query: "q"})
	}
	assert.Eventually(t, func() bool { return pub.published() == 3 }, time.Second, 5*time.Millisecond)
}

func TestStartFlushesOnShutdown(t *testing.T) {
	pub := &recordingPublisher{}
	bc := NewBatchCollector(pub, 100, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	bc.Start(ctx)

	bc.Track(analytics.QueryEvent{Query: "q"})
	cancel()
	bc.Close()
	assert.Equal(t, 1, pub.published())
}
