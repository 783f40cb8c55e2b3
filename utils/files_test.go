package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemoveFileAndEmptyParents(t *testing.T) {
	t.Run("removes file and empty parents up to stop dir", func(t *testing.T) {
		root := t.TempDir()
		tenant := filepath.Join(root, "user1")
		nested := filepath.Join(tenant, "cam1", "2024", "01")
		require.NoError(t, os.MkdirAll(nested, 0755))
		file := filepath.Join(nested, "snap.jpg")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

		require.NoError(t, RemoveFileAndEmptyParents(file, tenant))

		assert.NoFileExists(t, file)
		assert.NoDirExists(t, filepath.Join(tenant, "cam1"))
		assert.DirExists(t, tenant)
	})

	t.Run("stops at first non-empty directory", func(t *testing.T) {
		tenant := t.TempDir()
		dir := filepath.Join(tenant, "cam1", "day")
		require.NoError(t, os.MkdirAll(dir, 0755))
		require.NoError(t, os.WriteFile(filepath.Join(tenant, "cam1", "keep.jpg"), []byte("x"), 0644))
		file := filepath.Join(dir, "snap.jpg")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

		require.NoError(t, RemoveFileAndEmptyParents(file, tenant))

		assert.NoDirExists(t, dir)
		assert.FileExists(t, filepath.Join(tenant, "cam1", "keep.jpg"))
	})

	t.Run("missing file is not an error", func(t *testing.T) {
		tenant := t.TempDir()
		assert.NoError(t, RemoveFileAndEmptyParents(filepath.Join(tenant, "gone.jpg"), tenant))
		assert.DirExists(t, tenant)
	})

	t.Run("never walks outside stop dir", func(t *testing.T) {
		outer := t.TempDir()
		empty := filepath.Join(outer, "empty")
		require.NoError(t, os.MkdirAll(empty, 0755))
		tenant := filepath.Join(outer, "tenant")
		require.NoError(t, os.MkdirAll(tenant, 0755))

		require.NoError(t, RemoveFileAndEmptyParents(filepath.Join(empty, "x.jpg"), tenant))
		assert.DirExists(t, empty)
	})
}

func TestIsWithin(t *testing.T) {
	root := filepath.FromSlash("/srv/ftp/user1")

	assert.True(t, IsWithin(root, root))
	assert.True(t, IsWithin(root, filepath.Join(root, "a", "b.jpg")))
	assert.False(t, IsWithin(root, filepath.FromSlash("/srv/ftp/user10")))
	assert.False(t, IsWithin(root, filepath.FromSlash("/srv/ftp")))
	assert.False(t, IsWithin(root, filepath.Join(root, "..", "user2")))
}
