package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSBackend_RoundTrip(t *testing.T) {
	ctx := context.Background()
	b, err := NewFSBackend(ProviderStandard, t.TempDir())
	require.NoError(t, err)

	pointer, err := b.Upload(ctx, []byte("encrypted bytes"))
	require.NoError(t, err)
	require.NotEmpty(t, pointer)

	got, err := b.Download(ctx, pointer)
	require.NoError(t, err)
	assert.Equal(t, []byte("encrypted bytes"), got)

	require.NoError(t, b.Delete(ctx, pointer))
	_, err = b.Download(ctx, pointer)
	require.Error(t, err)
	assert.False(t, IsRetryable(err))

	// deleting twice is fine
	require.NoError(t, b.Delete(ctx, pointer))
}

func TestFSBackend_CancelledContext(t *testing.T) {
	b, err := NewFSBackend(ProviderBulk, t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = b.Upload(ctx, []byte("x"))
	var se *StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, ProviderBulk, se.Provider)
}
