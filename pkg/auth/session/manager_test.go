package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryKV struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
}

func newMemoryKV() *memoryKV {
	return &memoryKV{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryKV) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (m *memoryKV) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = fmt.Sprint(value)
	m.ttls[key] = ttl
	return nil
}

func (m *memoryKV) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func (m *memoryKV) AccessSessionKey(accessID string) string { return "sess:" + accessID }

func newTestManager() (*Manager, *memoryKV) {
	kv := newMemoryKV()
	return &Manager{kv: kv, ttl: time.Hour}, kv
}

func TestGenerateStoresDigestOnly(t *testing.T) {
	manager, kv := newTestManager()

	token, err := manager.Generate(context.Background(), "access-123")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, digest(token), kv.data["sess:access-123"])
	assert.NotContains(t, kv.data["sess:access-123"], token)
	assert.Equal(t, time.Hour, kv.ttls["sess:access-123"])
}

func TestRotate(t *testing.T) {
	ctx := context.Background()
	manager, kv := newTestManager()
	token, err := manager.Generate(ctx, "access-123")
	require.NoError(t, err)

	_, _, err = manager.Rotate(ctx, "access-123", "wrong")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	newID, newToken, err := manager.Rotate(ctx, "access-123", token)
	require.NoError(t, err)
	assert.NotEqual(t, "access-123", newID)
	assert.NotContains(t, kv.data, "sess:access-123")
	assert.Equal(t, digest(newToken), kv.data["sess:"+newID])

	_, _, err = manager.Rotate(ctx, "access-123", token)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken, "a refresh token is single use")
}

func TestRotateRejectsBlankInput(t *testing.T) {
	manager, _ := newTestManager()
	for _, args := range [][2]string{{"", "token"}, {"jti", " "}, {"missing", "token"}} {
		_, _, err := manager.Rotate(context.Background(), args[0], args[1])
		assert.ErrorIs(t, err, ErrInvalidRefreshToken)
	}
}

func TestHasSessionAndRevoke(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestManager()

	ok, err := manager.HasSession(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = manager.Generate(ctx, "jti-1")
	require.NoError(t, err)
	ok, err = manager.HasSession(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, manager.Revoke(ctx, "jti-1"))
	ok, err = manager.HasSession(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = manager.HasSession(ctx, " ")
	assert.Error(t, err)
	assert.Error(t, manager.Revoke(ctx, ""))
}
