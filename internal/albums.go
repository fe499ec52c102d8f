package internal

import (
	"context"
	"log/slog"
	"sync"
)

// AlbumRegistry maps album names to remote album IDs. For a given name, at
// most one creation request is ever issued, no matter how many workers
// discover the name at once.
type AlbumRegistry struct {
	client   *Client
	stats    *Stats
	audit    *AuditLog
	manifest *Manifest

	mu       sync.RWMutex // guards cache
	cache    map[string]string
	createMu sync.Mutex // serializes remote album creation

	trackMu sync.Mutex // guards tracked
	tracked map[string]bool
}

func NewAlbumRegistry(client *Client, stats *Stats, audit *AuditLog, manifest *Manifest) *AlbumRegistry {
	return &AlbumRegistry{
		client:   client,
		stats:    stats,
		audit:    audit,
		manifest: manifest,
		cache:    make(map[string]string),
		tracked:  make(map[string]bool),
	}
}

// Preload bulk-loads all existing remote albums. Runs once, single-threaded,
// before any uploads begin.
func (r *AlbumRegistry) Preload(ctx context.Context) error {
	albums, err := r.client.GetAllAlbums(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	for name, id := range albums {
		r.cache[name] = id
	}
	r.mu.Unlock()
	slog.Info("loaded existing albums", "count", len(albums))
	return nil
}

// Resolve returns the remote ID for an album name, creating the album on
// first sight. Safe for concurrent callers; an empty return means creation
// failed and album assignment should be skipped.
func (r *AlbumRegistry) Resolve(ctx context.Context, name string) string {
	r.mu.RLock()
	id, ok := r.cache[name]
	r.mu.RUnlock()
	if ok {
		r.trackExisting(name, id)
		r.audit.Printf("album already exists: %q (ID: %s)", name, id)
		return id
	}

	r.createMu.Lock()
	defer r.createMu.Unlock()

	// Double-checked: another worker may have created it while we waited.
	r.mu.RLock()
	id, ok = r.cache[name]
	r.mu.RUnlock()
	if ok {
		r.trackExisting(name, id)
		r.audit.Printf("album already exists (after lock): %q (ID: %s)", name, id)
		return id
	}

	id, err := r.client.CreateAlbum(ctx, name)
	if err != nil {
		slog.Error("album creation failed", "album", name, "err", err)
		r.audit.Printf("ERROR: album creation failed: %q: %v", name, err)
		return ""
	}

	r.mu.Lock()
	r.cache[name] = id
	r.mu.Unlock()

	r.markTracked(name)
	r.stats.AlbumsCreated.Add(1)
	r.stats.TrackCreatedAlbum(name, id)
	slog.Info("new album created", "album", name, "id", id)
	r.audit.Printf("album created: %q (ID: %s)", name, id)
	r.manifest.AlbumCreated(name, id)
	return id
}

// Assign resolves the album and adds the asset to it. Failures are logged
// and skipped; the upload itself already succeeded.
func (r *AlbumRegistry) Assign(ctx context.Context, name, assetID string) {
	albumID := r.Resolve(ctx, name)
	if albumID == "" {
		return
	}
	if err := r.client.AddToAlbum(ctx, albumID, []string{assetID}); err != nil {
		slog.Warn("could not add asset to album", "asset", assetID, "album", name, "err", err)
		r.audit.Printf("ERROR: asset %s could not be added to album %q: %v", assetID, name, err)
		return
	}
	r.audit.Printf("asset added to album: %s -> %q (ID: %s)", assetID, name, albumID)
	r.manifest.AlbumAssigned(assetID, name, albumID)
}

// trackExisting counts a pre-existing album exactly once per distinct name.
func (r *AlbumRegistry) trackExisting(name, id string) {
	if !r.markTracked(name) {
		return
	}
	r.stats.AlbumsExisting.Add(1)
	r.stats.TrackExistingAlbum(name, id)
	r.manifest.AlbumExisting(name, id)
}

func (r *AlbumRegistry) markTracked(name string) bool {
	r.trackMu.Lock()
	defer r.trackMu.Unlock()
	if r.tracked[name] {
		return false
	}
	r.tracked[name] = true
	return true
}
