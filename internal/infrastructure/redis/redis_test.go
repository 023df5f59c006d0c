package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redisstore "github.com/pixelbridge/conversion-bridge/internal/infrastructure/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) (*redisstore.Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	return redisstore.New(mr.Addr(), "", 0), mr
}

func TestAllowRequest(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := store.AllowRequest(ctx, "203.0.113.7", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "request %d within limit", i)
	}

	ok, err := store.AllowRequest(ctx, "203.0.113.7", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// Other IPs unaffected.
	ok, err = store.AllowRequest(ctx, "198.51.100.1", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWizardMarkers(t *testing.T) {
	store, mr := newStore(t)
	ctx := context.Background()

	seen, err := store.WebhookTestSeen(ctx, "123")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, store.MarkWebhookTest(ctx, "123"))
	require.NoError(t, store.MarkScriptTest(ctx, "123"))

	seen, err = store.WebhookTestSeen(ctx, "123")
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = store.ScriptTestSeen(ctx, "123")
	require.NoError(t, err)
	assert.True(t, seen)

	// Markers expire.
	mr.FastForward(2 * time.Minute)
	seen, err = store.WebhookTestSeen(ctx, "123")
	require.NoError(t, err)
	assert.False(t, seen)
}
