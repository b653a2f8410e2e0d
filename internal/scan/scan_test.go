package scan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func TestDirectory(t *testing.T) {
	root := filepath.Join(t.TempDir(), "docs")
	writeFiles(t, root, map[string]string{
		"a.txt":        "hello",
		"sub/b.txt":    "world!",
		"Thumbs.db":    "junk",
		"~$report.doc": "lock",
	})

	res, err := Directory(root)
	require.NoError(t, err)

	keys := make(map[string]int64)
	for _, e := range res.Entries {
		keys[e.KeyName] = e.Size
	}
	assert.Equal(t, map[string]int64{
		"docs/a.txt":     5,
		"docs/sub/b.txt": 6,
	}, keys, "key names are relative to the scanned directory's parent, slash-separated")

	assert.Equal(t, int64(11), res.TotalSize())
	assert.Len(t, res.Excluded, 2)
	assert.Equal(t, "system file", res.Excluded[filepath.Join(root, "Thumbs.db")])
	assert.Equal(t, "temporary file", res.Excluded[filepath.Join(root, "~$report.doc")])

	for _, e := range res.Entries {
		assert.Len(t, e.MD5, 32, "path hash is a hex MD5 digest")
		assert.Equal(t, "UTC", e.LastModified.Location().String())
		assert.False(t, e.Uploaded)
	}
}

func TestDirectoryEmpty(t *testing.T) {
	root := filepath.Join(t.TempDir(), "empty")
	require.NoError(t, os.MkdirAll(root, 0o755))

	_, err := Directory(root)
	assert.ErrorContains(t, err, "no files to archive")
}

func TestDirectorySkipsSymlinks(t *testing.T) {
	root := filepath.Join(t.TempDir(), "docs")
	writeFiles(t, root, map[string]string{"a.txt": "hello"})
	link := filepath.Join(root, "link.txt")
	require.NoError(t, os.Symlink(filepath.Join(root, "a.txt"), link))

	res, err := Directory(root)
	require.NoError(t, err)
	assert.Len(t, res.Entries, 1)
	assert.Equal(t, "symlink", res.Excluded[link])
}
