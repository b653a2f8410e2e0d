// Package scan enumerates a directory into archive file entries:
// relative forward-slash key names, UTC timestamps, and a path hash,
// with the exclusion rules earlier clients applied.
package scan

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"coldstash/internal/record"
	"coldstash/internal/transfer"
)

// MaxFileSize caps a single file at 10000 parts of the fixed part
// size, the storage backend's multipart limit.
const MaxFileSize = transfer.PartSize * 10000

// Files that desktop environments scatter around and that never belong
// in an archive.
var systemFiles = map[string]bool{
	"desktop.ini":   true,
	"thumbs.db":     true,
	".ds_store":     true,
	".dropbox":      true,
	".dropbox.attr": true,
}

// Result is one directory enumeration: the entries to archive plus the
// paths that were skipped and why.
type Result struct {
	Entries  []*record.FileEntry
	Excluded map[string]string
}

// TotalSize is the byte size of all included entries.
func (r *Result) TotalSize() int64 {
	var total int64
	for _, e := range r.Entries {
		total += e.Size
	}
	return total
}

// Directory walks root and builds the archive entry list. Key names are
// relative to root's parent, so archiving /home/u/docs yields keys like
// docs/a.txt. Symbolic links are skipped, oversized files fail the
// whole scan.
func Directory(root string) (*Result, error) {
	root = filepath.Clean(root)
	base := filepath.Dir(root)
	res := &Result{Excluded: make(map[string]string)}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type()&fs.ModeSymlink != 0 {
			res.Excluded[path] = "symlink"
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !d.Type().IsRegular() {
			res.Excluded[path] = "not a regular file"
			return nil
		}
		if reason := excludeReason(d.Name()); reason != "" {
			res.Excluded[path] = reason
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() > MaxFileSize {
			return fmt.Errorf("file %s exceeds the maximum archive file size", path)
		}

		rel, err := filepath.Rel(base, path)
		if err != nil {
			return err
		}
		res.Entries = append(res.Entries, &record.FileEntry{
			FileName:     d.Name(),
			KeyName:      filepath.ToSlash(rel),
			FilePath:     path,
			Size:         info.Size(),
			LastModified: info.ModTime().UTC(),
			MD5:          pathHash(path),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}
	if len(res.Entries) == 0 {
		return nil, fmt.Errorf("no files to archive under %s", root)
	}

	slog.Debug("Scanned directory", "root", root, "files", len(res.Entries), "excluded", len(res.Excluded), "bytes", res.TotalSize())
	return res, nil
}

// excludeReason classifies a file name against the archive naming
// rules. An empty reason means the file is accepted.
func excludeReason(name string) string {
	lower := strings.ToLower(name)
	switch {
	case systemFiles[lower]:
		return "system file"
	case strings.HasSuffix(lower, " ") || strings.HasSuffix(lower, "."):
		return "trailing whitespace or period in name"
	case strings.HasPrefix(lower, "~$"), strings.HasPrefix(lower, ".~"):
		return "temporary file"
	case strings.HasPrefix(lower, "~") && strings.HasSuffix(lower, ".tmp"):
		return "temporary file"
	}
	return ""
}

// pathHash is the entry fingerprint: the hex MD5 digest of the file
// path. Earlier clients hashed the path rather than the contents and
// the manifest format inherits that.
func pathHash(path string) string {
	sum := md5.Sum([]byte(path))
	return hex.EncodeToString(sum[:])
}
