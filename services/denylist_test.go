package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryDenylist(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	d := NewMemoryDenylist()
	d.now = func() time.Time { return now }

	require.NoError(t, d.Deny(ctx, "short", time.Minute))
	require.NoError(t, d.Deny(ctx, "long", time.Hour))
	require.NoError(t, d.Deny(ctx, "", time.Hour))
	require.NoError(t, d.Deny(ctx, "expired", 0))

	denied, err := d.IsDenied(ctx, "short")
	require.NoError(t, err)
	assert.True(t, denied)

	denied, err = d.IsDenied(ctx, "expired")
	require.NoError(t, err)
	assert.False(t, denied)

	now = now.Add(2 * time.Minute)
	denied, err = d.IsDenied(ctx, "short")
	require.NoError(t, err)
	assert.False(t, denied)

	denied, err = d.IsDenied(ctx, "long")
	require.NoError(t, err)
	assert.True(t, denied)

	now = now.Add(time.Hour)
	assert.Equal(t, 1, d.Purge())
	assert.Empty(t, d.entries)
}

func TestNewDenylistFallsBackToMemory(t *testing.T) {
	d, err := NewDenylist(context.Background(), "")
	require.NoError(t, err)
	assert.IsType(t, &MemoryDenylist{}, d)

	_, err = NewDenylist(context.Background(), "://not-a-url")
	assert.Error(t, err)
}
