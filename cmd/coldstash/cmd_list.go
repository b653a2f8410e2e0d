package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"coldstash/internal/record"
)

type UploadInfo struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	UserPaused  bool   `json:"user_paused,omitempty"`
	Files       int    `json:"files"`
	Transferred int64  `json:"transferred_bytes"`
	Total       int64  `json:"total_bytes"`
}

type UploadListOutput struct {
	Endpoint string       `json:"endpoint"`
	Uploads  []UploadInfo `json:"uploads"`
	Summary  struct {
		Total      int `json:"total"`
		Unfinished int `json:"unfinished"`
		Corrupted  int `json:"corrupted"`
	} `json:"summary"`
}

func runList(ctx context.Context, configPath string) error {
	a, err := setupApp(ctx, configPath, true)
	if err != nil {
		return err
	}
	defer a.close()

	output := UploadListOutput{
		Endpoint: a.client.Host(),
		Uploads:  []UploadInfo{},
	}
	for _, c := range a.manager.List() {
		transferred, total := c.Progress()
		status := c.Status()
		output.Uploads = append(output.Uploads, UploadInfo{
			ID:          c.ID(),
			Status:      string(status),
			UserPaused:  c.UserPaused(),
			Files:       c.FileCount(),
			Transferred: transferred,
			Total:       total,
		})
		if !status.Terminal() {
			output.Summary.Unfinished++
		}
		if status == record.StatusCorrupted {
			output.Summary.Corrupted++
		}
	}
	output.Summary.Total = len(output.Uploads)

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(output); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}
