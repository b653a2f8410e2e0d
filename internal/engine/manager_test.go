package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coldstash/internal/api"
	"coldstash/internal/record"
	"coldstash/internal/retry"
	"coldstash/internal/scheduler"
	"coldstash/internal/session"
	"coldstash/internal/transfer"
)

type stubAPI struct {
	mu         sync.Mutex
	status     string
	patchCalls int
}

func (s *stubAPI) CreateArchive(ctx context.Context, size int64, title string) (*api.Archive, error) {
	return &api.Archive{URL: "https://cp.test/archives/arch-1/", Key: "arch-1", UploadURL: "https://cp.test/archives/arch-1/upload/"}, nil
}

func (s *stubAPI) CreateUpload(ctx context.Context, archive *api.Archive) (*api.Upload, error) {
	return &api.Upload{URL: "https://cp.test/uploads/u-1/", ArchiveURL: archive.URL, Status: "pending"}, nil
}

func (s *stubAPI) GetUpload(ctx context.Context, uploadURL string, policy retry.Policy) (*api.Upload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.patchCalls > 0 {
		s.status = "completed"
	}
	return &api.Upload{URL: uploadURL, ArchiveURL: "https://cp.test/archives/arch-1/", Status: s.status}, nil
}

func (s *stubAPI) PatchUploaded(ctx context.Context, uploadURL string) (*api.Upload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patchCalls++
	s.status = "uploaded"
	return &api.Upload{URL: uploadURL, Status: s.status}, nil
}

func (s *stubAPI) DeleteUpload(ctx context.Context, uploadURL string) error { return nil }

// stubTransfer hangs every file transfer until cancelled when blocked
// is set, otherwise completes instantly.
type stubTransfer struct {
	mu      sync.Mutex
	sess    transfer.Session
	blocked bool
}

func (s *stubTransfer) UploadFile(ctx context.Context, fu transfer.FileUpload) error {
	s.mu.Lock()
	blocked := s.blocked
	s.mu.Unlock()
	if blocked {
		<-ctx.Done()
		return ctx.Err()
	}
	if fu.OnProgress != nil {
		fu.OnProgress(fu.Size)
	}
	return nil
}

func (s *stubTransfer) ListParts(ctx context.Context, key, uploadID string) ([]transfer.Part, error) {
	return nil, nil
}
func (s *stubTransfer) Abort(ctx context.Context, key, uploadID string) error { return nil }
func (s *stubTransfer) PutData(ctx context.Context, key string, data []byte) error {
	return nil
}
func (s *stubTransfer) SwapSession(sess transfer.Session) {
	s.mu.Lock()
	s.sess = sess
	s.mu.Unlock()
}
func (s *stubTransfer) Session() transfer.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess
}

func testDeps(t *testing.T, capi *stubAPI, tc *stubTransfer) session.Deps {
	t.Helper()
	store, err := record.NewStore(t.TempDir())
	require.NoError(t, err)
	return session.Deps{
		API:   capi,
		Store: store,
		NewTransfer: func(ctx context.Context, sess transfer.Session) (transfer.Client, error) {
			return tc, nil
		},
		Limits: scheduler.DefaultLimits(4),
		Intervals: session.Intervals{
			RenewCheck:   time.Minute,
			RenewWindow:  time.Minute,
			PollFast:     2 * time.Millisecond,
			PollFastFor:  50 * time.Millisecond,
			PollSteady:   5 * time.Millisecond,
			PersistEvery: time.Millisecond,
		},
	}
}

func saveRecord(t *testing.T, store *record.Store, id, url string) {
	t.Helper()
	rec := &record.Record{
		URL:      url,
		Files:    []*record.FileEntry{{KeyName: "a.txt", FilePath: "/src/a.txt", Size: 10}},
		SavePath: store.Path(id),
	}
	require.NoError(t, store.Save(rec))
}

func TestLoadBuildsControllers(t *testing.T) {
	capi := &stubAPI{status: "pending"}
	deps := testDeps(t, capi, &stubTransfer{})
	saveRecord(t, deps.Store, "u-1", "https://cp.test/uploads/u-1/")
	saveRecord(t, deps.Store, "u-2", "https://other.test/uploads/u-9/")

	m := NewManager(deps, "cp.test")
	require.NoError(t, m.Load(context.Background()))

	list := m.List()
	require.Len(t, list, 1, "records for other endpoints stay untouched")
	assert.Equal(t, "u-1", list[0].ID())
	assert.Equal(t, record.StatusPaused, list[0].Status())
}

func TestLoadedCompleteRecordResumesToPatchAndPoll(t *testing.T) {
	capi := &stubAPI{status: "pending"}
	deps := testDeps(t, capi, &stubTransfer{})
	m := NewManager(deps, "cp.test")

	// Every byte landed but the process died before the uploaded PATCH.
	rec := &record.Record{
		URL:              "https://cp.test/uploads/u-1/",
		ManifestUploaded: true,
		Files:            []*record.FileEntry{{KeyName: "a.txt", FilePath: "/src/a.txt", Size: 10, Uploaded: true, Progress: 10}},
		SavePath:         deps.Store.Path("u-1"),
	}
	require.NoError(t, deps.Store.Save(rec))
	require.NoError(t, m.Load(context.Background()))

	c, ok := m.Get("u-1")
	require.True(t, ok)
	require.Equal(t, record.StatusPaused, c.Status(), "a fully transferred record still needs an attempt")

	m.ConnectivityRestored(context.Background())
	require.Eventually(t, func() bool { return c.Status() == record.StatusCompleted },
		5*time.Second, 2*time.Millisecond)
	assert.Equal(t, 1, capi.patchCalls, "the attempt sends the missing PATCH")
}

func TestAddCreatesAndRunsUpload(t *testing.T) {
	capi := &stubAPI{status: "pending"}
	deps := testDeps(t, capi, &stubTransfer{})
	m := NewManager(deps, "cp.test")

	entries := []*record.FileEntry{{KeyName: "a.txt", FilePath: "/src/a.txt", Size: 10}}
	c, err := m.Add(context.Background(), "Photos", entries)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return c.Status() == record.StatusCompleted },
		5*time.Second, 2*time.Millisecond)

	got, ok := m.Get(c.ID())
	assert.True(t, ok)
	assert.Same(t, c, got)
}

func TestPauseAllSettlesEveryUpload(t *testing.T) {
	capi := &stubAPI{status: "pending"}
	tc := &stubTransfer{blocked: true}
	deps := testDeps(t, capi, tc)
	m := NewManager(deps, "cp.test")

	for _, id := range []string{"u-1", "u-2"} {
		saveRecord(t, deps.Store, id, "https://cp.test/uploads/"+id+"/")
	}
	require.NoError(t, m.Load(context.Background()))
	for _, c := range m.List() {
		c.Resume(context.Background(), true)
	}
	require.Eventually(t, func() bool {
		for _, c := range m.List() {
			if !c.Running() {
				return false
			}
		}
		return true
	}, time.Second, time.Millisecond)

	require.NoError(t, m.PauseAll(false))
	for _, c := range m.List() {
		assert.False(t, c.Running())
		assert.Equal(t, record.StatusPaused, c.Status())
		assert.False(t, c.UserPaused(), "an automatic pause is not sticky")
	}
}

func TestConnectivityRestoredSkipsUserPaused(t *testing.T) {
	capi := &stubAPI{status: "pending"}
	tc := &stubTransfer{blocked: true}
	deps := testDeps(t, capi, tc)
	m := NewManager(deps, "cp.test")

	saveRecord(t, deps.Store, "u-1", "https://cp.test/uploads/u-1/")
	saveRecord(t, deps.Store, "u-2", "https://cp.test/uploads/u-2/")
	require.NoError(t, m.Load(context.Background()))

	require.NoError(t, m.Resume(context.Background(), "u-1", true))
	require.NoError(t, m.Resume(context.Background(), "u-2", true))
	require.NoError(t, m.Pause("u-1", true))  // user pause
	require.NoError(t, m.Pause("u-2", false)) // automatic pause

	m.ConnectivityRestored(context.Background())
	require.Eventually(t, func() bool {
		c2, _ := m.Get("u-2")
		return c2.Running()
	}, time.Second, time.Millisecond)

	c1, _ := m.Get("u-1")
	assert.False(t, c1.Running(), "user-paused uploads never auto-resume")

	require.NoError(t, m.PauseAll(false))
}

func TestDeleteDropsController(t *testing.T) {
	capi := &stubAPI{status: "pending"}
	deps := testDeps(t, capi, &stubTransfer{})
	m := NewManager(deps, "cp.test")
	saveRecord(t, deps.Store, "u-1", "https://cp.test/uploads/u-1/")
	require.NoError(t, m.Load(context.Background()))

	require.NoError(t, m.Delete(context.Background(), "u-1"))
	_, ok := m.Get("u-1")
	assert.False(t, ok)
	assert.Error(t, m.Delete(context.Background(), "u-1"))
}
