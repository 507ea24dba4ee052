// Package local_test tests the filesystem snapshot store.
package local_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelane/content-pipeline/internal/pipeline"
	"github.com/carelane/content-pipeline/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		tempDir := t.TempDir()
		ss, err := local.New(local.Config{BaseDir: tempDir})
		require.NoError(t, err)
		assert.NotNil(t, ss)
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})

	t.Run("CreatesMissingDirectory", func(t *testing.T) {
		tempDir := t.TempDir() + "/nested/snapshots"
		_, err := local.New(local.Config{BaseDir: tempDir})
		require.NoError(t, err)
		info, err := os.Stat(tempDir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		tempFile, err := os.CreateTemp(t.TempDir(), "testfile")
		require.NoError(t, err)
		require.NoError(t, tempFile.Close())

		_, err = local.New(local.Config{BaseDir: tempFile.Name()})
		assert.Error(t, err)
	})
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	ss, err := local.New(local.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	uri, err := ss.Save(context.Background(), "https://example.com/diabetes", []byte("normalized body"))
	require.NoError(t, err)
	assert.Contains(t, uri, "file://")

	data, err := ss.Load(context.Background(), "https://example.com/diabetes")
	require.NoError(t, err)
	assert.Equal(t, "normalized body", string(data))
}

func TestLoadMissingSnapshot(t *testing.T) {
	t.Parallel()

	ss, err := local.New(local.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = ss.Load(context.Background(), "https://example.com/never-saved")
	require.ErrorIs(t, err, pipeline.ErrSnapshotNotFound)
}

func TestSaveRequiresKey(t *testing.T) {
	t.Parallel()

	ss, err := local.New(local.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = ss.Save(context.Background(), "  ", []byte("x"))
	require.Error(t, err)
}

func TestSaveHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	ss, err := local.New(local.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ss.Save(ctx, "https://example.com/x", []byte("x"))
	require.Error(t, err)
}
