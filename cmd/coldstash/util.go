package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"coldstash/internal/api"
	"coldstash/internal/authstore"
	"coldstash/internal/config"
	"coldstash/internal/engine"
	"coldstash/internal/lock"
	"coldstash/internal/logging"
	"coldstash/internal/record"
	"coldstash/internal/session"
	"coldstash/internal/transfer"
	"coldstash/internal/util"
)

// app bundles everything a command needs: config, logging, the
// single-instance lock, and (when logged in) the control-plane client
// and upload manager.
type app struct {
	cfg     *config.Config
	logFile *os.File
	release func() error
	auth    *authstore.Store
	creds   *authstore.Credentials
	client  *api.Client
	manager *engine.Manager
}

// setupApp loads config, initializes logging, and takes the state
// lock. With needAuth it also builds the API client and loads every
// persisted upload into a manager.
func setupApp(ctx context.Context, configPath string, needAuth bool) (*app, error) {
	if configPath == "" {
		base, err := util.DefaultBaseDir()
		if err != nil {
			return nil, err
		}
		configPath = util.DefaultConfigPath(base)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := util.SetupDirectories(cfg.BaseDir, cfg.RecordDir()); err != nil {
		return nil, err
	}
	logger, logFile, err := util.SetupLogging(cfg.LogPath(), logging.ParseLevel(cfg.Log.Level))
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	release, err := lock.Acquire(cfg.LockPath())
	if err != nil {
		logFile.Close()
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		logFile: logFile,
		release: release,
		auth:    authstore.New(cfg.BaseDir),
	}
	if !needAuth {
		return a, nil
	}

	creds, err := a.auth.Load()
	if err != nil {
		a.close()
		return nil, err
	}
	client, err := api.New(cfg.Endpoint, api.Credentials{KeyID: creds.KeyID, Secret: creds.Secret})
	if err != nil {
		a.close()
		return nil, err
	}

	store, err := record.NewStore(cfg.RecordDir())
	if err != nil {
		a.close()
		return nil, err
	}
	deps := session.Deps{
		API:    client,
		Store:  store,
		Limits: cfg.Limits(runtime.NumCPU()),
		UserID: creds.UserID,
		NewTransfer: func(ctx context.Context, sess transfer.Session) (transfer.Client, error) {
			return transfer.NewS3(ctx, cfg.Region, sess)
		},
		OnProgress: func(id string, transferred, total int64) {
			slog.Debug("Upload progress", "id", id, "transferred", transferred, "total", total)
		},
	}

	a.creds = creds
	a.client = client
	a.manager = engine.NewManager(deps, client.Host())
	if err := a.manager.Load(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) close() {
	if a.release != nil {
		if err := a.release(); err != nil {
			slog.Warn("Failed to release lock", "error", err)
		}
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
}

// waitForUploads blocks until every tracked upload reaches a terminal
// or paused state, printing progress. On interrupt everything is
// paused cleanly before returning.
func waitForUploads(ctx context.Context, a *app) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := a.manager.PauseAll(false); err != nil {
				slog.Error("Uploads did not settle", "error", err)
			}
			return ctx.Err()
		case <-ticker.C:
		}

		busy := false
		for _, c := range a.manager.List() {
			if c.Running() {
				busy = true
				transferred, total := c.Progress()
				fmt.Printf("  %s  %s / %s  (%s)\n",
					c.ID(), util.SizeString(transferred), util.SizeString(total), c.Status())
			}
		}
		if !busy {
			return nil
		}
	}
}
