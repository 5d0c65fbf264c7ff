package broker

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johndosdos/paychat/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// exerciseBus publishes a run of messages and checks that a subscriber sees
// all of them in publish order.
func exerciseBus(t *testing.T, bus Bus) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	out := make(chan model.ChatMessage, 16)
	require.NoError(t, bus.Subscribe(ctx, out))

	author := uuid.New()
	for i := int64(1); i <= 5; i++ {
		require.NoError(t, bus.Publish(ctx, model.ChatMessage{
			ID:             time.Now().UnixNano() + i,
			AuthorID:       author,
			AuthorUsername: "alice",
			Body:           "hello",
			CreatedAt:      time.Now().UTC(),
		}))
	}

	var prev int64
	for i := 0; i < 5; i++ {
		select {
		case msg := <-out:
			assert.Equal(t, author, msg.AuthorID)
			assert.Greater(t, msg.ID, prev)
			prev = msg.ID
		case <-ctx.Done():
			t.Fatalf("timed out after %d messages", i)
		}
	}

	// Instances with their own stores reuse IDs; both messages must pass.
	id := time.Now().UnixNano()
	origins := []string{uuid.NewString(), uuid.NewString()}
	for _, origin := range origins {
		require.NoError(t, bus.Publish(ctx, model.ChatMessage{ID: id, Origin: origin, Body: "same id"}))
	}
	for _, origin := range origins {
		select {
		case msg := <-out:
			assert.Equal(t, id, msg.ID)
			assert.Equal(t, origin, msg.Origin)
		case <-ctx.Done():
			t.Fatalf("message from origin %s was not delivered", origin)
		}
	}
}

func TestLocal(t *testing.T) {
	bus := NewLocal()
	defer bus.Close()

	exerciseBus(t, bus)
}

func TestLocalFanOutToEverySubscriber(t *testing.T) {
	bus := NewLocal()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := make(chan model.ChatMessage, 1)
	b := make(chan model.ChatMessage, 1)
	require.NoError(t, bus.Subscribe(ctx, a))
	require.NoError(t, bus.Subscribe(ctx, b))

	require.NoError(t, bus.Publish(ctx, model.ChatMessage{ID: 7}))
	assert.Equal(t, int64(7), (<-a).ID)
	assert.Equal(t, int64(7), (<-b).ID)
}

func TestLocalPublishRespectsContext(t *testing.T) {
	bus := NewLocal()
	subCtx, subCancel := context.WithCancel(context.Background())
	defer subCancel()

	// Unbuffered and never read.
	require.NoError(t, bus.Subscribe(subCtx, make(chan model.ChatMessage)))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, bus.Publish(ctx, model.ChatMessage{ID: 1}), context.DeadlineExceeded)
}

func TestJetStream(t *testing.T) {
	url := os.Getenv("TEST_NATS_URL")
	if url == "" {
		t.Skip("TEST_NATS_URL not set")
	}

	conn, err := nats.Connect(url, nats.Timeout(5*time.Second))
	require.NoError(t, err)

	bus, err := NewJetStream(context.Background(), conn, discardLogger())
	require.NoError(t, err)
	defer bus.Close()

	exerciseBus(t, bus)
}

func TestRedis(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}

	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	defer client.Close()

	exerciseBus(t, NewRedis(client, discardLogger()))
}
