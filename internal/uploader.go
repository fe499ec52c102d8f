package internal

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
)

// Outcome is the terminal state of one unit of work. Reason's zero value
// means the upload succeeded; MetadataUpdated reports the reconciliation
// step's verdict.
type Outcome struct {
	AssetID         string
	Duplicate       bool
	MetadataUpdated bool
	Reason          FailureReason
	Err             error
}

func (o Outcome) Failed() bool {
	return o.Reason != ReasonNone
}

// Pipeline runs one unit of work end to end: sidecar load, hash, upload,
// reconciliation, album assignment. Shared state (stats, registry) is
// injected; the pipeline itself is stateless and safe for concurrent use.
type Pipeline struct {
	cfg    *Config
	client *Client
	albums *AlbumRegistry
	recon  *Reconciler
	dates  *DateResolver
}

func NewPipeline(cfg *Config, client *Client, albums *AlbumRegistry, recon *Reconciler, dates *DateResolver) *Pipeline {
	return &Pipeline{cfg: cfg, client: client, albums: albums, recon: recon, dates: dates}
}

func (p *Pipeline) Process(ctx context.Context, unit UnitOfWork) Outcome {
	md, err := LoadSidecar(unit.SidecarPath)
	if err != nil {
		slog.Warn("could not load sidecar metadata", "path", unit.SidecarPath, "err", err)
		return Outcome{Reason: ReasonSidecarUnreadable, Err: err}
	}

	// Sidecar without photoTakenTime: fall back to the file's own capture
	// date so the upload envelope and reconciliation agree on one value.
	if md.CreatedAt == "" {
		if t, ok := p.dates.CaptureTime(unit.Path); ok {
			md.CreatedAt = t.UTC().Format(takenTimeLayout)
		}
	}

	if p.cfg.DryRun {
		slog.Info("[dry-run] would upload", "path", unit.Path, "album", unit.Album)
		return Outcome{AssetID: "dryrun-" + sha1Hex(unit.Path)}
	}

	checksum, err := FileSHA1(unit.Path)
	if err != nil {
		slog.Error("could not hash file", "path", unit.Path, "err", err)
		return Outcome{Reason: ReasonHashFailed, Err: err}
	}

	res, err := p.client.UploadAsset(ctx, unit.Path, p.deviceAssetID(unit.Path), checksum, md)
	if err != nil {
		slog.Error("upload failed", "path", unit.Path, "err", err)
		var se *StatusError
		if errors.As(err, &se) {
			return Outcome{Reason: ReasonUploadRejected, Err: err}
		}
		return Outcome{Reason: ReasonUploadTransport, Err: err}
	}

	if res.Duplicate {
		slog.Info("asset already exists (duplicate)", "path", unit.Path, "asset", res.ID)
	} else {
		slog.Info("asset uploaded", "path", unit.Path, "asset", res.ID)
	}

	// Runs for fresh uploads too: the server may have inferred wrong
	// metadata from embedded EXIF.
	updated := p.recon.Reconcile(ctx, res.ID, md)

	if unit.Album != "" {
		p.albums.Assign(ctx, unit.Album, res.ID)
	}

	return Outcome{AssetID: res.ID, Duplicate: res.Duplicate, MetadataUpdated: updated}
}

// deviceAssetID derives a stable per-file identifier from the path relative
// to the takeout root.
func (p *Pipeline) deviceAssetID(path string) string {
	rel, err := filepath.Rel(p.cfg.TakeoutPath, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	return sha1Hex(rel)
}
