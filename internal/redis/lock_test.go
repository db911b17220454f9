package redisclient

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLocker_ExclusivePerKey(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	err := l.WithKeyLock(ctx, "reminder:1", func(ctx context.Context) error {
		assert.ErrorIs(t, l.WithKeyLock(ctx, "reminder:1", func(context.Context) error { return nil }), ErrLockNotAcquired)

		ran := false
		require.NoError(t, l.WithKeyLock(ctx, "reminder:2", func(context.Context) error {
			ran = true
			return nil
		}))
		assert.True(t, ran)
		return nil
	})
	require.NoError(t, err)

	// released after fn returns
	require.NoError(t, l.WithKeyLock(ctx, "reminder:1", func(context.Context) error { return nil }))
}

func TestLocalLocker_ReturnsFnError(t *testing.T) {
	l := NewLocalLocker()
	boom := errors.New("boom")

	err := l.WithKeyLock(context.Background(), "k", func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	require.NoError(t, l.WithKeyLock(context.Background(), "k", func(context.Context) error { return nil }))
}

func TestChangeChannel(t *testing.T) {
	id := uuid.MustParse("8a1c1b58-4a47-4a0e-9c53-6f8f5c1d2e3f")
	assert.Equal(t, "clinic:changes:8a1c1b58-4a47-4a0e-9c53-6f8f5c1d2e3f", ChangeChannel(id))
}
