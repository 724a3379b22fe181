package objectstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryPutGetDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Put(ctx, "documents/a.pdf", []byte("bytes")))

	ok, err := m.Exists(ctx, "documents/a.pdf")
	require.NoError(t, err)
	assert.True(t, ok)

	data, err := m.Get(ctx, "documents/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("bytes"), data)

	require.NoError(t, m.Delete(ctx, "documents/a.pdf"))
	_, err = m.Get(ctx, "documents/a.pdf")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting again is a no-op.
	require.NoError(t, m.Delete(ctx, "documents/a.pdf"))
}

func TestMemoryGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Put(ctx, "p", []byte("abc")))

	data, err := m.Get(ctx, "p")
	require.NoError(t, err)
	data[0] = 'z'

	again, err := m.Get(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again)
}

func TestMemoryURL(t *testing.T) {
	u, err := NewMemory().URL(context.Background(), "documents/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "memory://documents/a.pdf", u)
}

func TestArtifactPath(t *testing.T) {
	assert.Equal(t, "executions/exec-1/pages/page-1.png",
		ArtifactPath("exec-1", "pages", "page-1.png"))
}
