package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockStreamClient implements StreamClient in memory.
type mockStreamClient struct {
	mu      sync.Mutex
	keys    map[string]any
	entries []map[string]any
	xaddErr error
	setErr  error
}

func newMockStreamClient() *mockStreamClient {
	return &mockStreamClient{keys: make(map[string]any)}
}

func (m *mockStreamClient) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	cmd := redis.NewStringCmd(ctx, "xadd", a.Stream)
	if m.xaddErr != nil {
		cmd.SetErr(m.xaddErr)
		return cmd
	}
	values, _ := a.Values.(map[string]any)
	m.entries = append(m.entries, values)
	cmd.SetVal("1-0")
	return cmd
}

func (m *mockStreamClient) SetNX(ctx context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	cmd := redis.NewBoolCmd(ctx, "setnx", key, value)
	if m.setErr != nil {
		cmd.SetErr(m.setErr)
		return cmd
	}
	if _, exists := m.keys[key]; exists {
		cmd.SetVal(false)
		return cmd
	}
	m.keys[key] = value
	cmd.SetVal(true)
	return cmd
}

func (m *mockStreamClient) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	cmd := redis.NewIntCmd(ctx, "del")
	var n int64
	for _, k := range keys {
		if _, ok := m.keys[k]; ok {
			delete(m.keys, k)
			n++
		}
	}
	cmd.SetVal(n)
	return cmd
}

func testEnvelope(key string) Envelope {
	return Envelope{
		ID:             "id-" + key,
		Type:           "results_generated",
		Source:         "ingest",
		Version:        "1.0.0",
		Timestamp:      time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		IdempotencyKey: key,
		SubjectID:      "eval-1",
		Payload:        json.RawMessage(`{"score":90}`),
	}
}

func TestRedisStreamSinkAppend(t *testing.T) {
	client := newMockStreamClient()
	sink, err := NewRedisStreamSink(client, WithStream("test:events"))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, sink.Append(ctx, testEnvelope("k1")))
	require.NoError(t, sink.Append(ctx, testEnvelope("k1")), "duplicate is a silent no-op")
	require.NoError(t, sink.Append(ctx, testEnvelope("k2")))

	require.Len(t, client.entries, 2)
	assert.Equal(t, "results_generated", client.entries[0]["type"])
	assert.Equal(t, "eval-1", client.entries[0]["subject_id"])

	var decoded Envelope
	require.NoError(t, json.Unmarshal([]byte(client.entries[0]["envelope"].(string)), &decoded))
	assert.Equal(t, "k1", decoded.IdempotencyKey)
}

func TestRedisStreamSinkReleasesMarkerOnFailure(t *testing.T) {
	client := newMockStreamClient()
	client.xaddErr = errors.New("connection reset")
	sink, err := NewRedisStreamSink(client)
	require.NoError(t, err)

	ctx := context.Background()
	require.Error(t, sink.Append(ctx, testEnvelope("k1")))
	assert.Empty(t, client.keys, "marker released for retry")

	client.xaddErr = nil
	require.NoError(t, sink.Append(ctx, testEnvelope("k1")))
	assert.Len(t, client.entries, 1)
}

func TestRedisStreamSinkDedupeError(t *testing.T) {
	client := newMockStreamClient()
	client.setErr = errors.New("READONLY")
	sink, err := NewRedisStreamSink(client)
	require.NoError(t, err)

	require.Error(t, sink.Append(context.Background(), testEnvelope("k1")))
	assert.Empty(t, client.entries)

	_, err = NewRedisStreamSink(nil)
	assert.Error(t, err)
}

func TestMemorySink(t *testing.T) {
	sink := NewMemorySink()
	ctx := context.Background()
	require.NoError(t, sink.Append(ctx, testEnvelope("a")))
	require.NoError(t, sink.Append(ctx, testEnvelope("a")))
	require.NoError(t, sink.Append(ctx, testEnvelope("b")))
	assert.Len(t, sink.Envelopes(), 2)

	require.NoError(t, NewNoOpEventSink().Append(ctx, testEnvelope("c")))
}
