package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cloo-solutions/helpdesk/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestS3Client_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	rc := testutil.NewRustFSContainer(ctx, t)
	defer func() { _ = rc.Terminate(ctx) }()

	client, err := NewS3Client(ctx, S3ClientConfig{
		Endpoint:        rc.Endpoint(),
		AccessKeyID:     rc.AccessKey,
		SecretAccessKey: rc.SecretKey,
		Bucket:          "helpdesk-knowledge",
		UsePathStyle:    true,
	})
	require.NoError(t, err)
	require.NoError(t, client.EnsureBucket(ctx))
	require.NoError(t, client.EnsureBucket(ctx), "second call is a no-op")

	t.Run("get missing object", func(t *testing.T) {
		_, err := client.GetObject(ctx, "kb/shipping/missing.md")
		require.ErrorIs(t, err, ErrObjectNotFound)
	})

	t.Run("push then pull", func(t *testing.T) {
		src := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(src, "shipping"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(src, "shipping", "rates.md"),
			[]byte("---\ntitle: Shipping\n---\nWe ship worldwide."), 0o644))

		pushed, err := PushContent(ctx, client, src, "kb")
		require.NoError(t, err)
		assert.Equal(t, []string{"kb/shipping/rates.md"}, pushed)

		objects, err := client.ListObjects(ctx, "kb/")
		require.NoError(t, err)
		require.Len(t, objects, 1)
		assert.Equal(t, "kb/shipping/rates.md", objects[0].Key)

		dest := t.TempDir()
		result, err := PullContent(ctx, client, dest, SyncOptions{Prefix: "kb"})
		require.NoError(t, err)
		assert.Equal(t, []string{"shipping/rates.md"}, result.Written)

		data, err := os.ReadFile(filepath.Join(dest, "shipping", "rates.md"))
		require.NoError(t, err)
		assert.Contains(t, string(data), "We ship worldwide.")
	})
}
