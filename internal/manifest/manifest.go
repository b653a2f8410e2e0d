// Package manifest builds and uploads the archive manifest: a gzipped
// JSON listing of every file in the archive, stored alongside the
// archive objects before any file bytes move.
package manifest

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"

	"coldstash/internal/record"
	"coldstash/internal/transfer"
)

// Key is the object key of the manifest inside the archive prefix.
const Key = "manifest.json.gz"

// File is one manifest line item. The JSON field names are shared with
// earlier clients and must not change.
type File struct {
	KeyName      string `json:"key_name"`
	FilePath     string `json:"file_path"`
	Size         int64  `json:"size"`
	LastModified string `json:"last_modified"`
	MD5          string `json:"md5"`
}

// Manifest describes one archive's full contents.
type Manifest struct {
	ArchiveID string `json:"archiveid"`
	UserID    int    `json:"userid"`
	Files     []File `json:"files"`
}

// Build assembles a manifest from the archive's file entries.
func Build(archiveID string, userID int, entries []*record.FileEntry) Manifest {
	m := Manifest{ArchiveID: archiveID, UserID: userID, Files: make([]File, 0, len(entries))}
	for _, e := range entries {
		m.Files = append(m.Files, File{
			KeyName:      e.KeyName,
			FilePath:     e.FilePath,
			Size:         e.Size,
			LastModified: e.LastModified.UTC().Format("2006-01-02T15:04:05Z"),
			MD5:          e.MD5,
		})
	}
	return m
}

// Encode serializes the manifest as gzipped indented JSON.
func (m Manifest) Encode() ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)

	enc := json.NewEncoder(gz)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress manifest: %w", err)
	}
	return buf.Bytes(), nil
}

// Upload encodes the manifest and stores it under the storage session's
// prefix. Callers guard against re-upload with the record's
// manifest-uploaded flag.
func Upload(ctx context.Context, tc transfer.Client, m Manifest) error {
	data, err := m.Encode()
	if err != nil {
		return err
	}
	if err := tc.PutData(ctx, Key, data); err != nil {
		return fmt.Errorf("failed to upload manifest: %w", err)
	}
	return nil
}
