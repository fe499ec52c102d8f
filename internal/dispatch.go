package internal

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/schollz/progressbar/v3"
)

// Dispatcher partitions units of work into batches and runs each batch
// through a bounded worker pool. Batches are a hard barrier: no unit of
// batch N+1 starts before every unit of batch N has an outcome.
type Dispatcher struct {
	cfg      *Config
	pipeline *Pipeline
	stats    *Stats
	manifest *Manifest
}

func NewDispatcher(cfg *Config, pipeline *Pipeline, stats *Stats, manifest *Manifest) *Dispatcher {
	return &Dispatcher{cfg: cfg, pipeline: pipeline, stats: stats, manifest: manifest}
}

type unitResult struct {
	unit    UnitOfWork
	outcome Outcome
}

// Run consumes the full unit sequence. Cancellation stops submission of
// further batches; units already in flight finish or fail naturally.
func (d *Dispatcher) Run(ctx context.Context, units []UnitOfWork) error {
	total := len(units)
	d.stats.TotalFiles.Store(int64(total))
	d.manifest.SessionStart(d.cfg.TakeoutPath, total)

	batchSize := d.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	totalBatches := batchCount(total, batchSize)

	bar := progressbar.Default(int64(total), "migrating")
	defer bar.Finish()

	// Per-call timeouts still apply, but an operator abort must not tear
	// down an upload mid-transfer.
	callCtx := context.WithoutCancel(ctx)

	for i, batchNum := 0, 1; i < total; i, batchNum = i+batchSize, batchNum+1 {
		if ctx.Err() != nil {
			slog.Warn("migration interrupted, not starting further batches",
				"completed_batches", batchNum-1, "total_batches", totalBatches)
			break
		}

		end := min(i+batchSize, total)
		slog.Info("processing batch", "batch", batchNum, "total_batches", totalBatches, "size", end-i)
		d.runBatch(callCtx, units[i:end], bar)
	}

	d.manifest.SessionEnd(d.stats)
	return ctx.Err()
}

// runBatch fans the batch out over the worker pool and blocks until every
// unit has been counted.
func (d *Dispatcher) runBatch(ctx context.Context, batch []UnitOfWork, bar *progressbar.ProgressBar) {
	workers := d.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(batch) {
		workers = len(batch)
	}

	jobs := make(chan UnitOfWork)
	results := make(chan unitResult)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for unit := range jobs {
				results <- unitResult{unit: unit, outcome: d.process(ctx, unit)}
			}
		}()
	}

	go func() {
		for _, unit := range batch {
			jobs <- unit
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	for res := range results {
		d.count(res.unit, res.outcome)
		bar.Add(1)
	}
}

// process guards the unit boundary: a panic inside the pipeline becomes a
// failed outcome, never an aborted batch.
func (d *Dispatcher) process(ctx context.Context, unit UnitOfWork) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("unexpected error processing unit", "path", unit.Path, "panic", r)
			out = Outcome{Reason: ReasonInternal, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return d.pipeline.Process(ctx, unit)
}

func (d *Dispatcher) count(unit UnitOfWork, out Outcome) {
	if out.Failed() {
		d.stats.FailedFiles.Add(1)
		d.manifest.Failed(unit.Path, out.Reason, out.Err)
		return
	}

	d.stats.ProcessedFiles.Add(1)
	if out.Duplicate {
		d.stats.DuplicatesFound.Add(1)
		d.manifest.Duplicate(unit.Path, out.AssetID)
	} else {
		d.stats.NewUploads.Add(1)
		d.manifest.Uploaded(unit.Path, out.AssetID)
	}

	if out.MetadataUpdated {
		d.stats.MetadataUpdates.Add(1)
		d.manifest.MetadataUpdated(unit.Path, out.AssetID)
	} else {
		d.stats.MetadataAlreadyCorrect.Add(1)
	}
}

func batchCount(total, batchSize int) int {
	if total == 0 {
		return 0
	}
	return (total + batchSize - 1) / batchSize
}

// RunMigration wires the whole engine together and processes a takeout.
func RunMigration(ctx context.Context, cfg *Config) (*Stats, error) {
	logOut := io.Writer(os.Stderr)
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		defer f.Close()
		logOut = io.MultiWriter(os.Stderr, f)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(logOut, nil)))

	manifest, err := NewManifest(cfg.ManifestDir)
	if err != nil {
		return nil, err
	}
	defer manifest.Close()

	audit, err := NewAuditLog(cfg.AlbumAuditLog)
	if err != nil {
		return nil, err
	}
	defer audit.Close()

	stats := NewStats()
	client := NewClient(cfg)
	albums := NewAlbumRegistry(client, stats, audit, manifest)
	dates := NewDateResolver(cfg.UseExifTool)
	defer dates.Close()
	pipeline := NewPipeline(cfg, client, albums, NewReconciler(client), dates)
	dispatcher := NewDispatcher(cfg, pipeline, stats, manifest)

	slog.Info("starting migration", "takeout", cfg.TakeoutPath, "server", cfg.ServerURL, "dry_run", cfg.DryRun)

	if !cfg.DryRun {
		if err := albums.Preload(ctx); err != nil {
			slog.Warn("could not load existing albums", "err", err)
		}
	}

	units, err := FindMediaFiles(cfg.TakeoutPath, cfg)
	if err != nil {
		return stats, fmt.Errorf("scanning takeout: %w", err)
	}
	slog.Info("found media files", "count", len(units))
	if len(units) == 0 {
		slog.Warn("no media files found")
		return stats, nil
	}

	err = dispatcher.Run(ctx, units)
	stats.PrintReport(os.Stdout)
	return stats, err
}
