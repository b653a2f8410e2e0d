package util

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigPath(t *testing.T) {
	assert.Equal(t, filepath.Join("/home/u/.config/coldstash", "config.yaml"),
		DefaultConfigPath("/home/u/.config/coldstash"))
}

func TestSetupDirectories(t *testing.T) {
	base := t.TempDir()
	dirs := []string{
		filepath.Join(base, "uploads"),
		filepath.Join(base, "logs", "nested"),
	}
	require.NoError(t, SetupDirectories(dirs...))
	for _, d := range dirs {
		assert.DirExists(t, d)
	}
}

func TestSizeString(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{2048, "2.0 KiB"},
		{5 * 1024 * 1024, "5.0 MiB"},
		{3 * 1024 * 1024 * 1024, "3.0 GiB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SizeString(tt.n), "n=%d", tt.n)
	}
}
