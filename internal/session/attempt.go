package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"coldstash/internal/api"
	"coldstash/internal/manifest"
	"coldstash/internal/record"
	"coldstash/internal/retry"
	"coldstash/internal/scheduler"
	"coldstash/internal/transfer"
)

// run executes one upload attempt end to end and translates its
// outcome into a state. Cancellation and faults both land on Paused;
// faults are not auto-retried, the next resume retries them.
func (c *Controller) run(ctx context.Context) {
	st, err := c.attempt(ctx)

	c.mu.Lock()
	switch {
	case err == nil:
		c.setStatusLocked(st)
	case errors.Is(err, context.Canceled):
		c.setStatusLocked(record.StatusPaused)
	case api.IsNotFound(err):
		c.setStatusLocked(record.StatusNotFound)
	default:
		slog.Error("Upload attempt failed", "id", c.id, "error", err)
		c.setStatusLocked(record.StatusPaused)
	}
	interrupted := c.status == record.StatusPaused
	c.saveLocked()
	c.mu.Unlock()

	if interrupted {
		c.reconcile(context.Background())
	}
}

// attempt transfers the archive: manifest first, then every pending
// file, then the uploaded PATCH and completion polling. It returns the
// state the controller should settle in.
func (c *Controller) attempt(ctx context.Context) (record.Status, error) {
	c.mu.Lock()
	c.setStatusLocked(record.StatusUploading)
	c.rec.UserPaused = false
	c.saveLocked()
	uploadURL := c.rec.URL
	c.mu.Unlock()

	up, err := c.deps.API.GetUpload(ctx, uploadURL, retry.Fast)
	if err != nil {
		return "", err
	}
	remote, err := record.ParseStatus(up.Status)
	if err != nil {
		slog.Error("Remote upload in unknown state", "id", c.id, "status", up.Status)
		return record.StatusError, nil
	}
	switch remote {
	case record.StatusCompleted:
		return record.StatusCompleted, nil
	case record.StatusError:
		return record.StatusError, nil
	case record.StatusUploaded:
		return c.pollCompletion(ctx, uploadURL)
	case record.StatusPending:
	default:
		return "", fmt.Errorf("unexpected remote upload status %q", up.Status)
	}

	if err := c.ensureTransfer(ctx, up); err != nil {
		return "", err
	}
	if err := c.uploadManifest(ctx, up); err != nil {
		return "", fmt.Errorf("manifest upload failed: %w", err)
	}

	renewCtx, stopRenewal := context.WithCancel(ctx)
	defer stopRenewal()
	go c.renewLoop(renewCtx, uploadURL)

	if err := c.runScheduler(ctx); err != nil {
		return "", err
	}
	stopRenewal()

	if _, err := c.deps.API.PatchUploaded(ctx, uploadURL); err != nil {
		return "", err
	}
	c.mu.Lock()
	c.setStatusLocked(record.StatusUploaded)
	c.saveLocked()
	c.mu.Unlock()

	return c.pollCompletion(ctx, uploadURL)
}

// ensureTransfer builds the storage client on first use, or refreshes
// its credentials from the freshly fetched upload resource.
func (c *Controller) ensureTransfer(ctx context.Context, up *api.Upload) error {
	sess := sessionFrom(up.S3)

	c.mu.Lock()
	tc := c.tc
	c.mu.Unlock()

	if tc != nil {
		tc.SwapSession(sess)
		return nil
	}
	tc, err := c.deps.NewTransfer(ctx, sess)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.tc = tc
	c.mu.Unlock()
	return nil
}

// uploadManifest stores the archive manifest once per record. A
// manifest fault aborts the attempt: no file bytes move before the
// manifest is up.
func (c *Controller) uploadManifest(ctx context.Context, up *api.Upload) error {
	c.mu.Lock()
	uploaded := c.rec.ManifestUploaded
	files := c.rec.Files
	tc := c.tc
	c.mu.Unlock()

	if uploaded {
		return nil
	}
	m := manifest.Build(archiveKey(up.ArchiveURL), c.deps.UserID, files)
	if err := manifest.Upload(ctx, tc, m); err != nil {
		return err
	}
	c.mu.Lock()
	c.rec.ManifestUploaded = true
	c.saveLocked()
	c.mu.Unlock()
	return nil
}

// runScheduler drains the pending entries through the size-tiered
// scheduler.
func (c *Controller) runScheduler(ctx context.Context) error {
	c.mu.Lock()
	pending := c.rec.PendingFiles()
	tc := c.tc
	c.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	sched := scheduler.New(c.deps.Limits, func() {
		c.mu.Lock()
		c.publishLocked()
		c.mu.Unlock()
	})
	return sched.Run(ctx, pending, func(ctx context.Context, e *record.FileEntry) error {
		return c.runEntry(ctx, tc, e)
	})
}

// runEntry transfers one file and finalizes its record entry.
func (c *Controller) runEntry(ctx context.Context, tc transfer.Client, e *record.FileEntry) error {
	fu := transfer.FileUpload{
		Key:      e.KeyName,
		Path:     e.FilePath,
		Size:     e.Size,
		UploadID: e.UploadID,
		OnSession: func(uploadID string) {
			c.mu.Lock()
			e.UploadID = uploadID
			c.saveLocked()
			c.mu.Unlock()
		},
		OnProgress: func(n int64) {
			c.mu.Lock()
			e.SetProgress(n)
			c.publishLocked()
			c.saveThrottledLocked()
			c.mu.Unlock()
		},
	}
	if err := tc.UploadFile(ctx, fu); err != nil {
		return err
	}
	c.mu.Lock()
	e.MarkUploaded()
	c.publishLocked()
	c.saveLocked()
	c.mu.Unlock()
	return nil
}

// renewLoop refreshes the storage session while transfers run. When
// the token expires within the renewal window, the upload resource is
// re-fetched and the new credentials are swapped in whole.
func (c *Controller) renewLoop(ctx context.Context, uploadURL string) {
	ticker := time.NewTicker(c.deps.Intervals.RenewCheck)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		c.mu.Lock()
		tc := c.tc
		c.mu.Unlock()
		if tc == nil || !tc.Session().ExpiresWithin(time.Now(), c.deps.Intervals.RenewWindow) {
			continue
		}

		up, err := c.deps.API.GetUpload(ctx, uploadURL, retry.Fast)
		if err != nil {
			slog.Warn("Failed to renew storage session", "id", c.id, "error", err)
			continue
		}
		tc.SwapSession(sessionFrom(up.S3))
		slog.Debug("Storage session renewed", "id", c.id, "expires", up.S3.TokenExpiration)
	}
}

// pollCompletion watches the uploaded archive until the server
// finishes or fails it: fast polls right after upload, then a steady
// slower cadence.
func (c *Controller) pollCompletion(ctx context.Context, uploadURL string) (record.Status, error) {
	c.mu.Lock()
	if c.status != record.StatusUploaded {
		c.setStatusLocked(record.StatusUploaded)
		c.saveLocked()
	}
	c.mu.Unlock()

	fastUntil := time.Now().Add(c.deps.Intervals.PollFastFor)
	for {
		interval := c.deps.Intervals.PollSteady
		if time.Now().Before(fastUntil) {
			interval = c.deps.Intervals.PollFast
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(interval):
		}

		up, err := c.deps.API.GetUpload(ctx, uploadURL, retry.Fast)
		if err != nil {
			if api.IsNotFound(err) || errors.Is(err, context.Canceled) {
				return "", err
			}
			slog.Warn("Completion poll failed", "id", c.id, "error", err)
			continue
		}
		switch st, _ := record.ParseStatus(up.Status); st {
		case record.StatusCompleted:
			return record.StatusCompleted, nil
		case record.StatusError:
			return record.StatusError, nil
		}
	}
}

// reconcile recomputes true progress after an interrupted attempt.
// In-flight parts may or may not have landed, so the storage listing,
// not the in-memory counter, is authoritative. Progress only ever
// increases; a listing failure keeps the previous value.
func (c *Controller) reconcile(ctx context.Context) {
	c.mu.Lock()
	tc := c.tc
	open := openSessions(c.rec)
	c.mu.Unlock()

	if tc == nil || len(open) == 0 {
		return
	}

	for _, e := range open {
		parts, err := tc.ListParts(ctx, e.KeyName, e.UploadID)
		if err != nil {
			slog.Warn("Reconciliation listing failed", "id", c.id, "key", e.KeyName, "error", err)
			continue
		}
		var stored int64
		for _, p := range parts {
			stored += p.Size
		}
		c.mu.Lock()
		e.SetProgress(stored)
		c.mu.Unlock()
	}

	c.mu.Lock()
	c.publishLocked()
	c.saveLocked()
	c.mu.Unlock()
}
