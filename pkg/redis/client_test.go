package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Client) {
	mr := miniredis.RunT(t)

	client, err := NewClient("redis://"+mr.Addr(), "test", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return mr, client
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		name        string
		url         string
		environment string
		expectError bool
	}{
		{
			name:        "Valid Redis URL",
			url:         "redis://localhost:6379/0",
			environment: "test",
			expectError: false,
		},
		{
			name:        "Invalid URL",
			url:         "invalid://url",
			environment: "test",
			expectError: true,
		},
		{
			name:        "Empty URL",
			url:         "",
			environment: "test",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.url, tt.environment, nil)

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, client)
			} else {
				// Creation does not dial, so no server is needed here
				assert.NoError(t, err)
				require.NotNil(t, client)
				assert.NotNil(t, client.KeyBuilder)
				_ = client.Close()
			}
		})
	}
}

func TestClient_Get(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("test:key1", "value1"))

	val, err := client.Get(ctx, "test:key1")
	assert.NoError(t, err)
	assert.Equal(t, "value1", val)

	_, err = client.Get(ctx, "test:nonexistent")
	assert.ErrorIs(t, err, Nil)
}

func TestClient_Incr(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		v, err := client.Incr(ctx, "test:counter")
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}

	got, err := mr.Get("test:counter")
	require.NoError(t, err)
	assert.Equal(t, "3", got)
}

func TestClient_SCard(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()

	_, err := mr.SetAdd("test:set", "1.1.1.1", "2.2.2.2", "1.1.1.1")
	require.NoError(t, err)

	n, err := client.SCard(ctx, "test:set")
	assert.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = client.SCard(ctx, "test:missing")
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestClient_Exists(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("test:a", "1"))

	n, err := client.Exists(ctx, "test:a", "test:b")
	assert.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestClient_Pipelined(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()

	cmds, err := client.Pipelined(ctx, "test", func(pipe Pipeliner) error {
		pipe.Incr(ctx, "test:pipe:counter")
		pipe.Expire(ctx, "test:pipe:counter", time.Hour)
		pipe.SAdd(ctx, "test:pipe:set", "a", "b")
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, cmds, 3)

	assert.Equal(t, time.Hour, mr.TTL("test:pipe:counter"))
	members, err := mr.Members("test:pipe:set")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, members)
}

func TestClient_TxPipelined(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()

	_, err := client.TxPipelined(ctx, "test", func(pipe Pipeliner) error {
		pipe.Incr(ctx, "test:tx:a")
		pipe.Incr(ctx, "test:tx:b")
		pipe.Expire(ctx, "test:tx:b", time.Minute)
		return nil
	})
	require.NoError(t, err)

	a, err := mr.Get("test:tx:a")
	require.NoError(t, err)
	assert.Equal(t, "1", a)
	assert.Equal(t, time.Minute, mr.TTL("test:tx:b"))
}

func TestClient_Health(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()

	assert.NoError(t, client.Health(ctx))
	assert.NoError(t, client.Ping(ctx))

	mr.Close()
	assert.Error(t, client.Health(ctx))
}

func TestClient_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()

	mr.Close()

	for i := 0; i < breakerFailureThreshold; i++ {
		_, err := client.Incr(ctx, "test:counter")
		require.Error(t, err)
	}

	assert.Equal(t, gobreaker.StateOpen, client.BreakerState())

	_, err := client.Incr(ctx, "test:counter")
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestClient_MissingKeyDoesNotTripBreaker(t *testing.T) {
	_, client := setupTestRedis(t)
	ctx := context.Background()

	for i := 0; i < breakerFailureThreshold*2; i++ {
		_, err := client.Get(ctx, "test:nonexistent")
		require.ErrorIs(t, err, Nil)
	}

	assert.Equal(t, gobreaker.StateClosed, client.BreakerState())
}

func TestPrefixForLog(t *testing.T) {
	assert.Equal(t, "short:key", prefixForLog("short:key"))
	assert.Equal(t, "prod:visitors:set:2024-0…", prefixForLog("prod:visitors:set:2024-01-14"))
}
