package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

func main() {
	configFlag := &cli.StringFlag{
		Name:  "config",
		Usage: "path to configuration yaml file",
		Value: "",
	}

	cmd := &cli.Command{
		Name:    "coldstash",
		Usage:   "Long-term archive uploader",
		Version: "0.1.0",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Store API credentials after validating them",
				Flags: []cli.Flag{
					configFlag,
					&cli.StringFlag{
						Name:     "key-id",
						Usage:    "API key id",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "secret",
						Usage:    "API key secret",
						Required: true,
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runLogin(ctx, cmd.String("config"), cmd.String("key-id"), cmd.String("secret"))
				},
			},
			{
				Name:  "logout",
				Usage: "Remove stored API credentials",
				Flags: []cli.Flag{configFlag},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runLogout(ctx, cmd.String("config"))
				},
			},
			{
				Name:  "create",
				Usage: "Archive a directory and start uploading it",
				Flags: []cli.Flag{
					configFlag,
					&cli.StringFlag{
						Name:     "dir",
						Usage:    "Directory to archive",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "title",
						Usage: "Archive title (defaults to the directory name)",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runCreate(ctx, cmd.String("config"), cmd.String("dir"), cmd.String("title"))
				},
			},
			{
				Name:  "list",
				Usage: "List local uploads and their state",
				Flags: []cli.Flag{configFlag},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runList(ctx, cmd.String("config"))
				},
			},
			{
				Name:  "run",
				Usage: "Resume every unfinished upload and wait",
				Flags: []cli.Flag{configFlag},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runUploads(ctx, cmd.String("config"))
				},
			},
			{
				Name:  "resume",
				Usage: "Resume one upload",
				Flags: []cli.Flag{
					configFlag,
					&cli.StringFlag{
						Name:     "id",
						Usage:    "Upload id (see list)",
						Required: true,
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runResume(ctx, cmd.String("config"), cmd.String("id"))
				},
			},
			{
				Name:  "pause",
				Usage: "Pause one upload",
				Flags: []cli.Flag{
					configFlag,
					&cli.StringFlag{
						Name:     "id",
						Usage:    "Upload id (see list)",
						Required: true,
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runPause(ctx, cmd.String("config"), cmd.String("id"))
				},
			},
			{
				Name:  "delete",
				Usage: "Delete an upload, its remote resource, and its local state",
				Flags: []cli.Flag{
					configFlag,
					&cli.StringFlag{
						Name:     "id",
						Usage:    "Upload id (see list)",
						Required: true,
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runDelete(ctx, cmd.String("config"), cmd.String("id"))
				},
			},
		},
	}

	// Set up signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		if ctx.Err() == context.Canceled {
			fmt.Fprintln(os.Stderr, "\n⚠ Interrupted, uploads paused")
			os.Exit(130)
		}
		slog.Error("CLI error", "error", err)
		os.Exit(1)
	}
}
