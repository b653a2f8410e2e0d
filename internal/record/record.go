package record

import (
	"fmt"
	"time"
)

// Status is the client-side view of an upload's lifecycle. The first
// five values mirror the strings reported by the control plane; the
// rest exist only locally.
type Status string

const (
	StatusPending   Status = "pending"
	StatusUploading Status = "uploading"
	StatusUploaded  Status = "uploaded"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"

	// StatusPaused is purely client-side: either the user paused the
	// upload or an attempt was interrupted.
	StatusPaused Status = "paused"

	// StatusNotFound marks a record whose remote upload no longer exists.
	StatusNotFound Status = "not_found"

	// StatusCorrupted marks a record that could not be read from disk,
	// not even via its backup. The only valid action is delete.
	StatusCorrupted Status = "corrupted"
)

// ParseStatus maps a server status string to a Status. "pending" maps
// strictly to StatusPending: the server created the upload and the
// client may transfer bytes.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusUploading, StatusUploaded, StatusCompleted, StatusError:
		return Status(s), nil
	}
	return StatusError, fmt.Errorf("unknown upload status %q", s)
}

// Terminal reports whether no further client action besides delete
// applies.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError || s == StatusNotFound || s == StatusCorrupted
}

// FileEntry is one local file destined for an archive. The JSON field
// names are shared with earlier clients and must not change.
type FileEntry struct {
	FileName     string    `json:"file_name"`
	KeyName      string    `json:"key_name"`
	FilePath     string    `json:"file_path"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
	MD5          string    `json:"md5"`
	Uploaded     bool      `json:"uploaded"`
	Progress     int64     `json:"progress"`
	UploadID     string    `json:"uploadid"`
}

// MarkUploaded finalizes the entry after a successful transfer:
// progress equals size and any multipart session id is cleared.
func (e *FileEntry) MarkUploaded() {
	e.Uploaded = true
	e.Progress = e.Size
	e.UploadID = ""
}

// SetProgress raises the entry's progress. Progress never decreases and
// never exceeds the file size, so stale or overshooting updates are
// clamped.
func (e *FileEntry) SetProgress(n int64) {
	if n > e.Size {
		n = e.Size
	}
	if n > e.Progress {
		e.Progress = n
	}
}

// Record is one archive's resumable upload state, persisted as a single
// JSON document.
type Record struct {
	URL              string       `json:"url"`
	Progress         int64        `json:"progress"`
	UserPaused       bool         `json:"user_paused"`
	ManifestUploaded bool         `json:"manifest_uploaded"`
	Files            []*FileEntry `json:"archive_files_info"`

	// SavePath is where this record lives on disk. Not serialized; the
	// store fills it on load.
	SavePath string `json:"-"`
}

// TotalSize is the byte size of the whole archive.
func (r *Record) TotalSize() int64 {
	var total int64
	for _, f := range r.Files {
		total += f.Size
	}
	return total
}

// ComputeProgress recomputes aggregate progress as the sum of entry
// progress. The persisted aggregate is only a cache of this value.
func (r *Record) ComputeProgress() int64 {
	var total int64
	for _, f := range r.Files {
		total += f.Progress
	}
	return total
}

// PendingFiles returns the entries that still need bytes transferred.
func (r *Record) PendingFiles() []*FileEntry {
	var pending []*FileEntry
	for _, f := range r.Files {
		if !f.Uploaded {
			pending = append(pending, f)
		}
	}
	return pending
}

// Complete reports whether every entry has been uploaded.
func (r *Record) Complete() bool {
	for _, f := range r.Files {
		if !f.Uploaded {
			return false
		}
	}
	return true
}

// Validate checks the per-entry invariants. A violation means the
// record was tampered with or a write was torn in a way the checksum
// missed.
func (r *Record) Validate() error {
	for _, f := range r.Files {
		if f.Progress > f.Size {
			return fmt.Errorf("entry %s: progress %d exceeds size %d", f.KeyName, f.Progress, f.Size)
		}
		if f.Uploaded && f.Progress != f.Size {
			return fmt.Errorf("entry %s: uploaded but progress %d != size %d", f.KeyName, f.Progress, f.Size)
		}
		if f.Uploaded && f.UploadID != "" {
			return fmt.Errorf("entry %s: uploaded but multipart session still open", f.KeyName)
		}
	}
	return nil
}
