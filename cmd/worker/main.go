// Command worker is a batch-ingestion CLI: it reads every regular file in a
// directory, submits them as one batch through the same internal/app wiring
// cmd/server uses, waits for the batch to finish, and prints a JSON summary.
// The in-memory queue is single-process and non-durable, so this is a client
// of that queue rather than a second daemon racing cmd/server for jobs.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fileforge/fileforge/internal/app"
	"github.com/fileforge/fileforge/internal/batch"
	"github.com/fileforge/fileforge/internal/config"
	"github.com/gabriel-vasile/mimetype"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	dir := flag.String("dir", "", "directory of files to ingest as one batch")
	userID := flag.String("user", "batch-cli", "userId to attribute the batch to")
	parallel := flag.Bool("parallel", true, "process the batch's files concurrently")
	concurrency := flag.Int("concurrency", batch.DefaultMaxConcurrency, "max files processed concurrently within the batch")
	timeout := flag.Duration("timeout", 10*time.Minute, "maximum time to wait for the batch to finish")
	flag.Parse()

	if *dir == "" {
		return fmt.Errorf("-dir is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	application, closeApp, err := app.Build(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to build application: %w", err)
	}
	defer closeApp(context.Background())

	inputs, err := readDirectory(*dir)
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		return fmt.Errorf("no regular files found under %s", *dir)
	}

	slog.InfoContext(ctx, "submitting batch", "files", len(inputs), "dir", *dir)

	job, err := application.Batches.CreateBatch(ctx, *userID, inputs, batch.CreateBatchOptions{
		Description:       fmt.Sprintf("CLI ingestion of %s", *dir),
		ProcessInParallel: *parallel,
		MaxConcurrency:    *concurrency,
	})
	if err != nil {
		return fmt.Errorf("failed to create batch: %w", err)
	}

	if err := application.Batches.StartBatch(ctx, job.BatchID); err != nil {
		return fmt.Errorf("failed to start batch: %w", err)
	}

	final, err := awaitBatch(ctx, application, job.BatchID)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(final)
}

// readDirectory loads every regular file directly under dir into a
// batch.FileInput, sniffing its mimetype from content the same way the HTTP
// upload path does.
func readDirectory(dir string) ([]batch.FileInput, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var inputs []batch.FileInput
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		inputs = append(inputs, batch.FileInput{
			OriginalName: entry.Name(),
			Mimetype:     mimetype.Detect(data).String(),
			Buffer:       data,
		})
	}
	return inputs, nil
}

// awaitBatch polls GetBatch until the batch reaches a terminal status.
// BatchCoordinator has no event-bus equivalent to JobQueue's Subscribe, so
// unlike cmd/server's job awaits, this is a plain poll loop.
func awaitBatch(ctx context.Context, a *app.App, batchID string) (any, error) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		job, err := a.Batches.GetBatch(ctx, batchID)
		if err != nil {
			return nil, fmt.Errorf("failed to poll batch: %w", err)
		}
		switch job.Status {
		case "completed", "completed_with_errors", "failed", "cancelled":
			return job, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
