package kafka

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Review-Theme-Analytics/pkg/logger"
)

func TestEventMessage(t *testing.T) {
	msg, err := Event{Key: "run-1", Type: "run.completed", Value: map[string]int{"k": 3}}.message(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("run-1"), msg.Key)
	assert.JSONEq(t, `{"k":3}`, string(msg.Value))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, TypeHeader, msg.Headers[0].Key)
	assert.Equal(t, "run.completed", string(msg.Headers[0].Value))

	msg, err = Event{Key: "x", Value: "v"}.message(context.Background())
	require.NoError(t, err)
	assert.Empty(t, msg.Headers)

	_, err = Event{Key: "bad", Value: math.NaN()}.message(context.Background())
	assert.Error(t, err)
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := logger.WithRequestID(context.Background(), "req-42")
	msg, err := Event{Key: "b1", Type: "batch.submitted", Value: 1}.message(ctx)
	require.NoError(t, err)
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, RequestIDHeader, msg.Headers[1].Key)

	got := messageContext(context.Background(), msg)
	assert.Equal(t, "req-42", logger.RequestID(got))

	plain := messageContext(context.Background(), kafka.Message{})
	assert.Empty(t, logger.RequestID(plain))
}

func TestDiscard(t *testing.T) {
	assert.NoError(t, Discard(nil))
	base := errors.New("bad payload")
	err := Discard(base)
	assert.ErrorIs(t, err, base)
	assert.True(t, IsDiscarded(err))
	assert.True(t, IsDiscarded(fmt.Errorf("wrapped: %w", err)))
	assert.False(t, IsDiscarded(base))
}

func TestDecodeJSON(t *testing.T) {
	type batch struct {
		ID string `json:"batch_id"`
	}
	got, err := DecodeJSON[batch]([]byte(`{"batch_id":"b1"}`))
	require.NoError(t, err)
	assert.Equal(t, "b1", got.ID)

	_, err = DecodeJSON[batch]([]byte(`{`))
	assert.Error(t, err)
}

func TestPingWithoutBrokers(t *testing.T) {
	err := Pinger(nil).Ping(context.Background())
	assert.ErrorContains(t, err, "no brokers configured")
}

type fakeReader struct {
	mu        sync.Mutex
	pending   []kafka.Message
	committed []int64
	fetchErrs int
	closed    bool
	drained   chan struct{}
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	if f.fetchErrs > 0 {
		f.fetchErrs--
		f.mu.Unlock()
		return kafka.Message{}, errors.New("broker hiccup")
	}
	if len(f.pending) > 0 {
		msg := f.pending[0]
		f.pending = f.pending[1:]
		f.mu.Unlock()
		return msg, nil
	}
	f.mu.Unlock()
	close(f.drained)
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeReader) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func TestConsumerCommitSemantics(t *testing.T) {
	reader := &fakeReader{
		fetchErrs: 1,
		drained:   make(chan struct{}),
		pending: []kafka.Message{
			{Offset: 1, Value: []byte("ok")},
			{Offset: 2, Value: []byte("flaky")},
			{Offset: 3, Value: []byte("poison")},
			{Offset: 4, Value: []byte("down")},
		},
	}
	var flakyCalls, downCalls int
	handler := func(_ context.Context, _ []byte, value []byte) error {
		switch string(value) {
		case "flaky":
			flakyCalls++
			if flakyCalls < 2 {
				return errors.New("transient")
			}
		case "poison":
			return Discard(errors.New("undecodable"))
		case "down":
			downCalls++
			return errors.New("store down")
		}
		return nil
	}
	var gaveUp []string
	c := newConsumer(reader, "review-batches", handler).
		OnGiveUp(func(_ context.Context, _ []byte, value []byte, err error) {
			gaveUp = append(gaveUp, string(value))
			assert.ErrorContains(t, err, "store down")
		})
	c.retry.InitialDelay = time.Millisecond
	c.retry.MaxDelay = time.Millisecond
	c.fetchBackoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- c.Start(ctx) }()
	<-reader.drained
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []int64{1, 2, 3}, reader.committed)
	assert.Equal(t, 2, flakyCalls)
	assert.Equal(t, c.retry.MaxAttempts, downCalls)
	assert.Equal(t, []string{"down"}, gaveUp)
	assert.True(t, reader.closed)
}
