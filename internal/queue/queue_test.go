package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeRoundTrip(t *testing.T) {
	msg := Message{Type: "attempt.recorded", Body: []byte("3f1c|with-pipe")}
	got := deserialize(serialize(msg))
	assert.Equal(t, msg, got)

	assert.Equal(t, Message{Body: []byte("legacy")}, deserialize("legacy"))

	retried := Message{Type: "attempt.recorded", Body: []byte("a1"), Retries: 2}
	assert.Equal(t, "attempt.recorded#2|a1", serialize(retried))
	assert.Equal(t, retried, deserialize(serialize(retried)))
}

func TestRequeueIsBounded(t *testing.T) {
	ctx := context.Background()
	q := NewInMemory(4)
	msg := Message{Type: "attempt.recorded", Body: []byte("a1")}

	for want := 1; want <= 2; want++ {
		ok, err := Requeue(ctx, q, msg, 2)
		require.NoError(t, err)
		require.True(t, ok)
		msg = <-q.ch
		assert.Equal(t, want, msg.Retries)
	}

	ok, err := Requeue(ctx, q, msg, 2)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, q.ch)
}

func TestInMemoryDelivers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewInMemory(4)
	msgs, err := q.Consume(ctx)
	require.NoError(t, err)

	require.NoError(t, q.Publish(ctx, Message{Type: "attempt.recorded", Body: []byte("a1")}))
	require.NoError(t, q.Publish(ctx, Message{Type: "attempt.recorded", Body: []byte("a2")}))

	for _, want := range []string{"a1", "a2"} {
		select {
		case m := <-msgs:
			assert.Equal(t, want, string(m.Body))
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}

	cancel()
	select {
	case _, ok := <-msgs:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("consumer channel not closed")
	}
}

func TestInMemoryPublishHonoursContext(t *testing.T) {
	q := NewInMemory(1)
	require.NoError(t, q.Publish(context.Background(), Message{Type: "x"}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Publish(ctx, Message{Type: "y"}), context.DeadlineExceeded)
}

func TestNewFallsBackToMemory(t *testing.T) {
	_, ok := New("redis", nil, "").(*InMemory)
	assert.True(t, ok)
	_, ok = New("memory", nil, "").(*InMemory)
	assert.True(t, ok)
}
