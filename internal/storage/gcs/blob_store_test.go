package gcs

import (
	"context"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

// TestNewValidates rejects missing clients and buckets.
func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	_, err = New(client, Config{Bucket: " "})
	require.Error(t, err)

	s, err := New(client, Config{Bucket: "news", Prefix: "/snapshots/"})
	require.NoError(t, err)
	require.Equal(t, "snapshots/run/index.json", s.ObjectName("run/index.json"))
	require.NoError(t, s.Close())

	bare, err := New(client, Config{Bucket: "news"})
	require.NoError(t, err)
	require.Equal(t, "run/index.json", bare.ObjectName("run/index.json"))

	_, err = bare.PutObject(context.Background(), "", "", nil)
	require.Error(t, err)
}
