package internal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Manifest records every migration event as a JSON line, one file per run.
// It is the machine-readable companion to the progress log: each unit's
// terminal state, every album operation, and the session bookends with the
// final counters.
type Manifest struct {
	Path string

	mu sync.Mutex
	f  *os.File
}

// ManifestEvent is a single event in the manifest log.
type ManifestEvent struct {
	Event   string `json:"event"`
	Ts      string `json:"ts"`
	Path    string `json:"path,omitempty"`
	AssetID string `json:"asset_id,omitempty"`
	Album   string `json:"album,omitempty"`
	AlbumID string `json:"album_id,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Error   string `json:"error,omitempty"`

	// Session start/end fields
	TakeoutPath            string `json:"takeout_path,omitempty"`
	TotalFiles             int64  `json:"total_files,omitempty"`
	ProcessedFiles         int64  `json:"processed_files,omitempty"`
	FailedFiles            int64  `json:"failed_files,omitempty"`
	NewUploads             int64  `json:"new_uploads,omitempty"`
	DuplicatesFound        int64  `json:"duplicates_found,omitempty"`
	AlbumsCreated          int64  `json:"albums_created,omitempty"`
	AlbumsExisting         int64  `json:"albums_existing,omitempty"`
	MetadataUpdates        int64  `json:"metadata_updates,omitempty"`
	MetadataAlreadyCorrect int64  `json:"metadata_already_correct,omitempty"`
	ElapsedSeconds         float64 `json:"elapsed_seconds,omitempty"`
}

// NewManifest creates the run directory and opens a fresh manifest file
// named after the current timestamp.
func NewManifest(dir string) (*Manifest, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create manifest directory: %w", err)
	}
	path := filepath.Join(dir, "migration-"+time.Now().Format("2006-01-02-150405")+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create manifest file: %w", err)
	}
	return &Manifest{Path: path, f: f}, nil
}

func (m *Manifest) SessionStart(takeoutPath string, totalFiles int) {
	m.write(ManifestEvent{
		Event:       "session_start",
		TakeoutPath: takeoutPath,
		TotalFiles:  int64(totalFiles),
	})
}

func (m *Manifest) Uploaded(path, assetID string) {
	m.write(ManifestEvent{Event: "uploaded", Path: path, AssetID: assetID})
}

func (m *Manifest) Duplicate(path, assetID string) {
	m.write(ManifestEvent{Event: "duplicate", Path: path, AssetID: assetID})
}

func (m *Manifest) Failed(path string, reason FailureReason, err error) {
	ev := ManifestEvent{Event: "failed", Path: path, Reason: string(reason)}
	if err != nil {
		ev.Error = err.Error()
	}
	m.write(ev)
}

func (m *Manifest) MetadataUpdated(path, assetID string) {
	m.write(ManifestEvent{Event: "metadata_updated", Path: path, AssetID: assetID})
}

func (m *Manifest) AlbumCreated(name, id string) {
	m.write(ManifestEvent{Event: "album_created", Album: name, AlbumID: id})
}

func (m *Manifest) AlbumExisting(name, id string) {
	m.write(ManifestEvent{Event: "album_existing", Album: name, AlbumID: id})
}

func (m *Manifest) AlbumAssigned(assetID, name, id string) {
	m.write(ManifestEvent{Event: "album_assigned", AssetID: assetID, Album: name, AlbumID: id})
}

func (m *Manifest) SessionEnd(stats *Stats) {
	m.write(ManifestEvent{
		Event:                  "session_end",
		TotalFiles:             stats.TotalFiles.Load(),
		ProcessedFiles:         stats.ProcessedFiles.Load(),
		FailedFiles:            stats.FailedFiles.Load(),
		NewUploads:             stats.NewUploads.Load(),
		DuplicatesFound:        stats.DuplicatesFound.Load(),
		AlbumsCreated:          stats.AlbumsCreated.Load(),
		AlbumsExisting:         stats.AlbumsExisting.Load(),
		MetadataUpdates:        stats.MetadataUpdates.Load(),
		MetadataAlreadyCorrect: stats.MetadataAlreadyCorrect.Load(),
		ElapsedSeconds:         stats.Elapsed().Seconds(),
	})
}

func (m *Manifest) Close() error {
	return m.f.Close()
}

func (m *Manifest) write(ev ManifestEvent) {
	ev.Ts = time.Now().UTC().Format(time.RFC3339)
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.f.Write(append(data, '\n'))
}
