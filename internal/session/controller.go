// Package session implements the per-archive upload state machine:
// manifest upload, scheduling, pause/resume, storage-session renewal,
// completion polling, and crash-safe record persistence.
package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"coldstash/internal/api"
	"coldstash/internal/record"
	"coldstash/internal/retry"
	"coldstash/internal/scheduler"
	"coldstash/internal/transfer"
)

// ControlPlane is the slice of the control-plane client a controller
// drives.
type ControlPlane interface {
	CreateArchive(ctx context.Context, size int64, title string) (*api.Archive, error)
	CreateUpload(ctx context.Context, archive *api.Archive) (*api.Upload, error)
	GetUpload(ctx context.Context, uploadURL string, policy retry.Policy) (*api.Upload, error)
	PatchUploaded(ctx context.Context, uploadURL string) (*api.Upload, error)
	DeleteUpload(ctx context.Context, uploadURL string) error
}

// TransferFactory builds a storage transfer client from a storage
// session. Swapped for a fake in tests.
type TransferFactory func(ctx context.Context, sess transfer.Session) (transfer.Client, error)

// Intervals are the controller's timing knobs, injectable so tests run
// in milliseconds.
type Intervals struct {
	RenewCheck   time.Duration
	RenewWindow  time.Duration
	PollFast     time.Duration
	PollFastFor  time.Duration
	PollSteady   time.Duration
	PersistEvery time.Duration
}

// DefaultIntervals are the production timings: renewal checked every
// minute against a five-minute expiry window, completion polled every
// 10 s for the first minute then once a minute, record writes
// throttled to one per second.
func DefaultIntervals() Intervals {
	return Intervals{
		RenewCheck:   time.Minute,
		RenewWindow:  5 * time.Minute,
		PollFast:     10 * time.Second,
		PollFastFor:  time.Minute,
		PollSteady:   time.Minute,
		PersistEvery: time.Second,
	}
}

// Deps are the collaborators shared by every controller.
type Deps struct {
	API         ControlPlane
	Store       *record.Store
	NewTransfer TransferFactory
	Limits      scheduler.Limits
	Intervals   Intervals

	// UserID goes into the archive manifest; fetched once at login.
	UserID int

	// OnProgress receives monotonic aggregate progress per archive.
	OnProgress func(id string, transferred, total int64)

	// OnState fires on every state transition.
	OnState func(id string, st record.Status)
}

// Controller owns one archive's upload record and is its only writer.
type Controller struct {
	id   string
	deps Deps

	mu        sync.Mutex
	rec       *record.Record
	status    record.Status
	tc        transfer.Client
	published int64
	lastSave  time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// NewController wraps a loaded record. Status starts as Paused for
// resumable records, or the stored terminal state.
func NewController(id string, rec *record.Record, status record.Status, deps Deps) *Controller {
	if deps.Intervals == (Intervals{}) {
		deps.Intervals = DefaultIntervals()
	}
	return &Controller{id: id, rec: rec, status: status, deps: deps, published: rec.ComputeProgress()}
}

func (c *Controller) ID() string { return c.id }

// Status returns the current client-side state.
func (c *Controller) Status() record.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Record returns a point-in-time view of progress: transferred and
// total bytes.
func (c *Controller) Progress() (transferred, total int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.published, c.rec.TotalSize()
}

// FileCount returns how many files the archive tracks.
func (c *Controller) FileCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.rec.Files)
}

// UserPaused reports whether the user explicitly paused this upload.
// User pauses never auto-resume.
func (c *Controller) UserPaused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rec.UserPaused
}

// Running reports whether an upload attempt is in flight.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}

// Start launches an upload attempt unless one is already running or
// the state is terminal. The attempt runs until the archive completes,
// faults, or is paused.
func (c *Controller) Start(parent context.Context) {
	c.mu.Lock()
	if c.cancel != nil || c.status.Terminal() {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	go func() {
		defer close(done)
		defer func() {
			c.mu.Lock()
			c.cancel = nil
			c.done = nil
			c.mu.Unlock()
			cancel()
		}()
		c.run(ctx)
	}()
}

// Pause cancels the running attempt and waits for every in-flight
// transfer to settle, so no task is still writing the record when
// Paused is declared. userInitiated pauses stick until the user
// resumes; automatic ones resume when connectivity returns.
func (c *Controller) Pause(userInitiated bool) {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	if userInitiated {
		c.rec.UserPaused = true
		c.saveLocked()
	}
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Resume restarts a paused upload. A user resume clears the sticky
// pause flag; an automatic resume (connectivity restored) respects it.
func (c *Controller) Resume(parent context.Context, userInitiated bool) {
	c.mu.Lock()
	if !userInitiated && c.rec.UserPaused {
		c.mu.Unlock()
		return
	}
	if userInitiated {
		c.rec.UserPaused = false
		c.saveLocked()
	}
	c.mu.Unlock()
	c.Start(parent)
}

// Delete tears the upload down: pause, best-effort abort of open
// multipart sessions, best-effort remote delete for unfinished
// uploads, and removal of the local record. The record is always
// removed.
func (c *Controller) Delete(ctx context.Context) error {
	c.Pause(false)

	c.mu.Lock()
	status := c.status
	tc := c.tc
	url := c.rec.URL
	rec := c.rec
	c.mu.Unlock()

	if status != record.StatusUploaded && status != record.StatusCompleted && status != record.StatusNotFound {
		if tc == nil {
			tc = c.transferForAbort(ctx, rec, url)
		}
		c.abortOpenSessions(ctx, tc)
		if url != "" {
			if err := c.deps.API.DeleteUpload(ctx, url); err != nil && !api.IsNotFound(err) {
				slog.Warn("Failed to delete remote upload", "id", c.id, "error", err)
			}
		}
	}

	if err := c.deps.Store.Delete(rec); err != nil {
		return err
	}
	return nil
}

// transferForAbort builds a storage client for a controller that never
// ran an attempt this process lifetime, so sessions recorded by a
// previous one can still be aborted. Best-effort: a failure leaves the
// sessions to the storage backend's own expiry.
func (c *Controller) transferForAbort(ctx context.Context, rec *record.Record, url string) transfer.Client {
	if url == "" || len(openSessions(rec)) == 0 {
		return nil
	}
	up, err := c.deps.API.GetUpload(ctx, url, retry.Fast)
	if err != nil {
		slog.Warn("Failed to fetch upload for session abort", "id", c.id, "error", err)
		return nil
	}
	tc, err := c.deps.NewTransfer(ctx, sessionFrom(up.S3))
	if err != nil {
		slog.Warn("Failed to build storage client for session abort", "id", c.id, "error", err)
		return nil
	}
	return tc
}

func (c *Controller) abortOpenSessions(ctx context.Context, tc transfer.Client) {
	if tc == nil {
		return
	}
	for _, e := range openSessions(c.rec) {
		if err := tc.Abort(ctx, e.KeyName, e.UploadID); err != nil {
			slog.Warn("Failed to abort multipart session", "id", c.id, "key", e.KeyName, "error", err)
		}
	}
}

func openSessions(rec *record.Record) []*record.FileEntry {
	var open []*record.FileEntry
	for _, e := range rec.Files {
		if !e.Uploaded && e.UploadID != "" {
			open = append(open, e)
		}
	}
	return open
}

// setStatusLocked transitions the state and notifies. Callers hold
// c.mu.
func (c *Controller) setStatusLocked(st record.Status) {
	if c.status == st {
		return
	}
	c.status = st
	slog.Info("Upload state changed", "id", c.id, "state", string(st))
	if c.deps.OnState != nil {
		go c.deps.OnState(c.id, st)
	}
}

// saveLocked writes the record through the store. Callers hold c.mu;
// the controller being the record's only writer keeps writes serial.
func (c *Controller) saveLocked() {
	c.lastSave = time.Now()
	if err := c.deps.Store.Save(c.rec); err != nil {
		slog.Warn("Failed to persist upload record", "id", c.id, "error", err)
	}
}

// saveThrottledLocked persists at most once per PersistEvery; state
// transitions and task completions save unconditionally instead.
func (c *Controller) saveThrottledLocked() {
	if time.Since(c.lastSave) >= c.deps.Intervals.PersistEvery {
		c.saveLocked()
	}
}

// publishLocked recomputes aggregate progress and reports it when it
// increased.
func (c *Controller) publishLocked() {
	total := c.rec.ComputeProgress()
	if total <= c.published {
		return
	}
	c.published = total
	c.rec.Progress = total
	if c.deps.OnProgress != nil {
		c.deps.OnProgress(c.id, total, c.rec.TotalSize())
	}
}

// sessionFrom converts the control plane's storage token block into a
// transfer session.
func sessionFrom(s3 api.S3Info) transfer.Session {
	return transfer.Session{
		Bucket:          s3.Bucket,
		Prefix:          s3.Prefix,
		AccessKeyID:     s3.TokenAccessKey,
		SecretAccessKey: s3.TokenSecretKey,
		SessionToken:    s3.TokenSession,
		Expiry:          s3.TokenExpiration,
	}
}

// archiveKey extracts the archive identifier from its resource URL.
func archiveKey(archiveURL string) string {
	trimmed := strings.TrimRight(archiveURL, "/")
	if i := strings.LastIndexByte(trimmed, '/'); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}
