// Package engine owns the set of upload session controllers for one
// endpoint: startup loading, new-archive creation, and the fan-out of
// pause-all and connectivity signals.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"coldstash/internal/record"
	"coldstash/internal/session"
)

// settleTimeout bounds PauseAll: a clean shutdown point must not hang
// forever on a wedged transfer.
const settleTimeout = 30 * time.Second

const settlePollInterval = 100 * time.Millisecond

// Manager holds one controller per persisted upload record.
type Manager struct {
	deps session.Deps
	host string

	mu          sync.Mutex
	controllers map[string]*session.Controller
}

// NewManager builds an empty manager for the endpoint host the record
// filter applies to.
func NewManager(deps session.Deps, endpointHost string) *Manager {
	return &Manager{
		deps:        deps,
		host:        endpointHost,
		controllers: make(map[string]*session.Controller),
	}
}

// Load enumerates every persisted record for this endpoint and wraps
// each in a controller. Corrupted records surface as controllers whose
// only valid operation is Delete. Nothing starts uploading; callers
// resume explicitly. A record whose files are all uploaded still loads
// as Paused: the uploaded PATCH and completion polling may not have
// happened yet, and the next attempt performs both with zero pending
// files.
func (m *Manager) Load(ctx context.Context) error {
	results, err := m.deps.Store.LoadAll(m.host)
	if err != nil {
		return fmt.Errorf("failed to load upload records: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, res := range results {
		status := record.StatusPaused
		rec := res.Record
		if res.Corrupted {
			status = record.StatusCorrupted
			rec = &record.Record{SavePath: m.deps.Store.Path(res.ID)}
		}
		m.controllers[res.ID] = session.NewController(res.ID, rec, status, m.deps)
	}
	slog.Info("Loaded upload records", "count", len(m.controllers))
	return nil
}

// Add creates a brand-new archive upload from scanned entries and
// starts it immediately.
func (m *Manager) Add(ctx context.Context, title string, entries []*record.FileEntry) (*session.Controller, error) {
	c, err := session.Create(ctx, title, entries, m.deps)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.controllers[c.ID()] = c
	m.mu.Unlock()

	c.Start(ctx)
	return c, nil
}

// Get returns the controller for an upload id.
func (m *Manager) Get(id string) (*session.Controller, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.controllers[id]
	return c, ok
}

// List returns the controllers sorted by id for stable display.
func (m *Manager) List() []*session.Controller {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*session.Controller, 0, len(m.controllers))
	for _, c := range m.controllers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Resume restarts one upload.
func (m *Manager) Resume(ctx context.Context, id string, userInitiated bool) error {
	c, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("no upload %s", id)
	}
	c.Resume(ctx, userInitiated)
	return nil
}

// Pause stops one upload and waits for it to settle.
func (m *Manager) Pause(id string, userInitiated bool) error {
	c, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("no upload %s", id)
	}
	c.Pause(userInitiated)
	return nil
}

// Delete tears one upload down and drops its controller.
func (m *Manager) Delete(ctx context.Context, id string) error {
	c, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("no upload %s", id)
	}
	if err := c.Delete(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.controllers, id)
	m.mu.Unlock()
	return nil
}

// PauseAll signals every running controller and waits, polling, until
// all of them settle or the bounded wait expires. Returning means the
// process may exit without a task still writing records.
func (m *Manager) PauseAll(userInitiated bool) error {
	running := m.runningControllers()
	if len(running) == 0 {
		return nil
	}
	slog.Info("Pausing all uploads", "count", len(running), "user", userInitiated)

	var wg sync.WaitGroup
	for _, c := range running {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Pause(userInitiated)
		}()
	}

	settled := make(chan struct{})
	go func() {
		wg.Wait()
		close(settled)
	}()

	deadline := time.Now().Add(settleTimeout)
	for {
		select {
		case <-settled:
			return nil
		case <-time.After(settlePollInterval):
			if time.Now().After(deadline) {
				return fmt.Errorf("uploads did not settle within %s", settleTimeout)
			}
		}
	}
}

// ConnectivityLost pauses everything without marking a user pause, so
// the uploads resume by themselves when the network returns.
func (m *Manager) ConnectivityLost() {
	if err := m.PauseAll(false); err != nil {
		slog.Error("Failed to pause uploads on connectivity loss", "error", err)
	}
}

// ConnectivityRestored resumes every paused upload the user did not
// pause themselves.
func (m *Manager) ConnectivityRestored(ctx context.Context) {
	for _, c := range m.List() {
		if c.Status() == record.StatusPaused && !c.UserPaused() {
			c.Resume(ctx, false)
		}
	}
}

func (m *Manager) runningControllers() []*session.Controller {
	m.mu.Lock()
	defer m.mu.Unlock()
	var running []*session.Controller
	for _, c := range m.controllers {
		if c.Running() {
			running = append(running, c)
		}
	}
	return running
}
