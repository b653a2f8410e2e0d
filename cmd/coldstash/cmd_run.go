package main

import (
	"context"
	"fmt"

	"coldstash/internal/record"
)

func runUploads(ctx context.Context, configPath string) error {
	a, err := setupApp(ctx, configPath, true)
	if err != nil {
		return err
	}
	defer a.close()

	resumed := 0
	for _, c := range a.manager.List() {
		if c.Status() == record.StatusPaused && !c.UserPaused() {
			c.Resume(ctx, false)
			resumed++
		}
	}
	if resumed == 0 {
		fmt.Println("Nothing to upload")
		return nil
	}
	fmt.Printf("Resumed %d upload(s)\n", resumed)
	return waitForUploads(ctx, a)
}

func runResume(ctx context.Context, configPath, id string) error {
	a, err := setupApp(ctx, configPath, true)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.manager.Resume(ctx, id, true); err != nil {
		return err
	}
	return waitForUploads(ctx, a)
}

func runPause(ctx context.Context, configPath, id string) error {
	a, err := setupApp(ctx, configPath, true)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.manager.Pause(id, true); err != nil {
		return err
	}
	fmt.Printf("Paused %s\n", id)
	return nil
}

func runDelete(ctx context.Context, configPath, id string) error {
	a, err := setupApp(ctx, configPath, true)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.manager.Delete(ctx, id); err != nil {
		return err
	}
	fmt.Printf("Deleted %s\n", id)
	return nil
}
