package manifest

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coldstash/internal/record"
)

func TestBuildAndEncode(t *testing.T) {
	mtime := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	entries := []*record.FileEntry{
		{
			FileName:     "a.txt",
			KeyName:      "docs/a.txt",
			FilePath:     "/home/u/docs/a.txt",
			Size:         42,
			LastModified: mtime,
			MD5:          "1B2M2Y8AsgTpgAmY7PhCfg==",
		},
	}

	m := Build("arch-1", 7, entries)
	require.Len(t, m.Files, 1)
	assert.Equal(t, "docs/a.txt", m.Files[0].KeyName)
	assert.Equal(t, "2025-06-01T12:30:00Z", m.Files[0].LastModified)

	data, err := m.Encode()
	require.NoError(t, err)

	gz, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	raw, err := io.ReadAll(gz)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "arch-1", decoded["archiveid"])
	assert.Equal(t, float64(7), decoded["userid"])
	files, ok := decoded["files"].([]any)
	require.True(t, ok)
	require.Len(t, files, 1)
	file := files[0].(map[string]any)
	assert.Equal(t, "/home/u/docs/a.txt", file["file_path"])
	assert.Equal(t, "1B2M2Y8AsgTpgAmY7PhCfg==", file["md5"])
}
