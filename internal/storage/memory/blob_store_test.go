package memory

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestBlobStoreKeepsCopies isolates stored content from caller buffers.
func TestBlobStoreKeepsCopies(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("content")
	uri, err := store.PutObject(context.Background(), "runs/1/index.json", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	require.Equal(t, "memory://runs/1/index.json", uri)

	payload[0] = 'C'
	got, contentType, ok := store.Object("runs/1/index.json")
	require.True(t, ok)
	require.Equal(t, "content", string(got))
	require.Equal(t, "application/json", contentType)

	got[0] = 'X'
	again, _, _ := store.Object("runs/1/index.json")
	require.Equal(t, "content", string(again))
	require.Equal(t, []string{"runs/1/index.json"}, store.Paths())

	_, _, ok = store.Object("missing")
	require.False(t, ok)
}
