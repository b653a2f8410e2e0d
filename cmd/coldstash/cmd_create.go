package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"coldstash/internal/scan"
	"coldstash/internal/util"
)

func runCreate(ctx context.Context, configPath, dir, title string) error {
	a, err := setupApp(ctx, configPath, true)
	if err != nil {
		return err
	}
	defer a.close()

	res, err := scan.Directory(dir)
	if err != nil {
		return err
	}
	for path, reason := range res.Excluded {
		slog.Info("Excluded from archive", "path", path, "reason", reason)
	}
	if title == "" {
		title = filepath.Base(filepath.Clean(dir))
	}

	c, err := a.manager.Add(ctx, title, res.Entries)
	if err != nil {
		return err
	}
	fmt.Printf("Created upload %s: %d files, %s\n",
		c.ID(), len(res.Entries), util.SizeString(res.TotalSize()))

	return waitForUploads(ctx, a)
}
