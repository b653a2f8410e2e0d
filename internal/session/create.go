package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"coldstash/internal/record"
)

// Create registers a new archive with the control plane, creates its
// upload resource, and persists a fresh record. The returned
// controller is ready to Start.
//
// If the upload resource cannot be created after the archive was, the
// record is still persisted, without a URL: the archive may exist
// server-side, and a local trace must remain for the user to delete.
// URL-less records are excluded from the active set on load.
func Create(ctx context.Context, title string, entries []*record.FileEntry, deps Deps) (*Controller, error) {
	var total int64
	for _, e := range entries {
		total += e.Size
	}

	archive, err := deps.API.CreateArchive(ctx, total, title)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive: %w", err)
	}

	id := uuid.NewString()
	rec := &record.Record{
		Files:    entries,
		SavePath: deps.Store.Path(id),
	}

	upload, err := deps.API.CreateUpload(ctx, archive)
	if err != nil {
		if serr := deps.Store.Save(rec); serr != nil {
			slog.Warn("Failed to persist record for orphaned archive", "id", id, "error", serr)
		}
		return nil, fmt.Errorf("failed to create upload: %w", err)
	}
	rec.URL = upload.URL

	if err := deps.Store.Save(rec); err != nil {
		return nil, fmt.Errorf("failed to persist upload record: %w", err)
	}
	return NewController(id, rec, record.StatusPending, deps), nil
}
