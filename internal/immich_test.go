package internal

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeImmich is an in-memory Immich server for tests. It dedupes uploads by
// the x-immich-checksum header the way the real store matches content.
type fakeImmich struct {
	t   *testing.T
	srv *httptest.Server

	// infoFor provides the GET /api/assets/{id} record; defaults to an
	// empty record (nothing matches, reconciliation wants to update).
	infoFor func(id string) AssetInfo

	failUploads     bool
	failAlbumCreate bool

	mu            sync.Mutex
	requests      int
	uploads       int
	assetGets     int
	albumCreates  int
	updates       []AssetUpdate
	albums        map[string]string   // name -> id
	members       map[string][]string // album id -> asset ids
	checksums     map[string]string   // checksum -> asset id
	nextID        int
	inFlight      int
	maxInFlight   int
}

func newFakeImmich(t *testing.T) *fakeImmich {
	f := &fakeImmich{
		t:         t,
		albums:    make(map[string]string),
		members:   make(map[string][]string),
		checksums: make(map[string]string),
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeImmich) URL() string { return f.srv.URL }

func (f *fakeImmich) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests
}

func (f *fakeImmich) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests++
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if r.Header.Get("x-api-key") == "" {
		f.t.Errorf("missing x-api-key header on %s %s", r.Method, r.URL.Path)
	}

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/api/assets":
		f.handleUpload(w, r)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/api/assets/"):
		f.handleGetAsset(w, r)
	case r.Method == http.MethodPut && r.URL.Path == "/api/assets":
		f.handleUpdate(w, r)
	case r.Method == http.MethodGet && r.URL.Path == "/api/albums":
		f.handleListAlbums(w)
	case r.Method == http.MethodPost && r.URL.Path == "/api/albums":
		f.handleCreateAlbum(w, r)
	case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/api/albums/"):
		f.handleAddToAlbum(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeImmich) handleUpload(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.uploads++
	f.mu.Unlock()

	if f.failUploads {
		http.Error(w, `{"message":"bad request"}`, http.StatusBadRequest)
		return
	}

	if err := r.ParseMultipartForm(1 << 20); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if r.FormValue("deviceId") == "" || r.FormValue("deviceAssetId") == "" {
		http.Error(w, "missing device fields", http.StatusBadRequest)
		return
	}

	checksum := r.Header.Get("x-immich-checksum")

	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.checksums[checksum]; ok && checksum != "" {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"id": id, "status": "duplicate"})
		return
	}
	f.nextID++
	id := fmt.Sprintf("asset-%d", f.nextID)
	f.checksums[checksum] = id
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"id": id, "status": "created"})
}

func (f *fakeImmich) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.assetGets++
	f.mu.Unlock()

	id := strings.TrimPrefix(r.URL.Path, "/api/assets/")
	info := AssetInfo{ID: id}
	if f.infoFor != nil {
		info = f.infoFor(id)
		info.ID = id
	}
	json.NewEncoder(w).Encode(info)
}

func (f *fakeImmich) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var upd AssetUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.updates = append(f.updates, upd)
	f.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeImmich) handleListAlbums(w http.ResponseWriter) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]string, 0, len(f.albums))
	for name, id := range f.albums {
		out = append(out, map[string]string{"id": id, "albumName": name})
	}
	json.NewEncoder(w).Encode(out)
}

func (f *fakeImmich) handleCreateAlbum(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.albumCreates++
	f.mu.Unlock()

	if f.failAlbumCreate {
		http.Error(w, `{"message":"server error"}`, http.StatusInternalServerError)
		return
	}

	var req struct {
		AlbumName string `json:"albumName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("album-%d", f.nextID)
	f.albums[req.AlbumName] = id
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"id": id, "albumName": req.AlbumName})
}

func (f *fakeImmich) handleAddToAlbum(w http.ResponseWriter, r *http.Request) {
	albumID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/albums/"), "/assets")
	var req bulkIDs
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.members[albumID] = append(f.members[albumID], req.IDs...)
	f.mu.Unlock()
	w.Write([]byte(`[]`))
}

func testConfig(serverURL string) *Config {
	return &Config{
		ServerURL:       serverURL,
		APIKey:          "test-key",
		Workers:         4,
		BatchSize:       100,
		RetryAttempts:   0,
		UploadTimeout:   30 * time.Second,
		ImageExt:        []string{".jpg", ".jpeg", ".png", ".heic"},
		VideoExt:        []string{".mp4", ".mov"},
		SidecarSuffixes: []string{".supplemental-metadata.json", ".supplemental-metadata copy.json"},
		DescriptorNames: []string{"metadata.json", "Metadaten.json"},
	}
}

// testEngine wires the real components against a fake server, with logs and
// manifest in a temp dir.
type testEngine struct {
	cfg      *Config
	stats    *Stats
	albums   *AlbumRegistry
	recon    *Reconciler
	pipe     *Pipeline
	manifest *Manifest
	client   *Client
}

func newTestEngine(t *testing.T, cfg *Config) *testEngine {
	t.Helper()

	audit, err := NewAuditLog(filepath.Join(t.TempDir(), "album_audit.log"))
	require.NoError(t, err)
	t.Cleanup(func() { audit.Close() })

	manifest, err := NewManifest(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { manifest.Close() })

	stats := NewStats()
	client := NewClient(cfg)
	albums := NewAlbumRegistry(client, stats, audit, manifest)
	dates := NewDateResolver(false)
	t.Cleanup(dates.Close)
	recon := NewReconciler(client)

	return &testEngine{
		cfg:      cfg,
		stats:    stats,
		albums:   albums,
		recon:    recon,
		pipe:     NewPipeline(cfg, client, albums, recon, dates),
		manifest: manifest,
		client:   client,
	}
}

func (e *testEngine) dispatcher() *Dispatcher {
	return NewDispatcher(e.cfg, e.pipe, e.stats, e.manifest)
}
