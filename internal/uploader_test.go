package internal

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mediaUnit(t *testing.T, root, album, name, content string) UnitOfWork {
	t.Helper()
	dir := root
	if album != "" {
		dir = filepath.Join(root, album)
	}
	path := writeMedia(t, dir, name, content, 1600000000, "")
	return UnitOfWork{
		Path:        path,
		SidecarPath: path + ".supplemental-metadata.json",
		Album:       album,
	}
}

func TestProcess_FreshUploadReconcilesAndAssigns(t *testing.T) {
	fake := newFakeImmich(t)
	fake.infoFor = func(id string) AssetInfo {
		return AssetInfo{
			ID:            id,
			FileCreatedAt: "2020-09-13T12:26:40.000Z",
			ExifInfo:      ExifInfo{DateTimeOriginal: "2020-09-13T12:26:40.000Z"},
		}
	}
	cfg := testConfig(fake.URL())
	cfg.TakeoutPath = t.TempDir()
	eng := newTestEngine(t, cfg)

	unit := mediaUnit(t, cfg.TakeoutPath, "Summer 2020", "beach.jpg", "beach pixels")
	out := eng.pipe.Process(context.Background(), unit)

	require.False(t, out.Failed(), "outcome: %+v", out)
	assert.Equal(t, "asset-1", out.AssetID)
	assert.False(t, out.Duplicate)
	assert.False(t, out.MetadataUpdated, "server already has matching metadata")
	assert.Equal(t, 1, fake.uploads)
	assert.Equal(t, 1, fake.assetGets)

	albumID := fake.albums["Summer 2020"]
	require.NotEmpty(t, albumID)
	assert.Equal(t, []string{"asset-1"}, fake.members[albumID])
}

func TestProcess_SameContentTwiceIsDuplicate(t *testing.T) {
	fake := newFakeImmich(t)
	cfg := testConfig(fake.URL())
	cfg.TakeoutPath = t.TempDir()
	eng := newTestEngine(t, cfg)

	first := mediaUnit(t, cfg.TakeoutPath, "", "a.jpg", "same pixels")
	second := mediaUnit(t, cfg.TakeoutPath, "", "b.jpg", "same pixels")

	out1 := eng.pipe.Process(context.Background(), first)
	out2 := eng.pipe.Process(context.Background(), second)

	require.False(t, out1.Failed())
	require.False(t, out2.Failed())
	assert.False(t, out1.Duplicate)
	assert.True(t, out2.Duplicate)
	assert.Equal(t, out1.AssetID, out2.AssetID, "server returns the original asset's ID")
}

func TestProcess_DryRunTouchesNothing(t *testing.T) {
	fake := newFakeImmich(t)
	cfg := testConfig(fake.URL())
	cfg.TakeoutPath = t.TempDir()
	cfg.DryRun = true
	eng := newTestEngine(t, cfg)

	unit := mediaUnit(t, cfg.TakeoutPath, "Summer 2020", "beach.jpg", "beach pixels")
	out := eng.pipe.Process(context.Background(), unit)
	again := eng.pipe.Process(context.Background(), unit)

	require.False(t, out.Failed())
	assert.Equal(t, 0, fake.requestCount(), "dry run must not reach the server")
	assert.NotEmpty(t, out.AssetID)
	assert.Equal(t, out.AssetID, again.AssetID, "dry-run IDs are deterministic")
}

func TestProcess_MissingSidecarFailsUnit(t *testing.T) {
	fake := newFakeImmich(t)
	cfg := testConfig(fake.URL())
	cfg.TakeoutPath = t.TempDir()
	eng := newTestEngine(t, cfg)

	unit := mediaUnit(t, cfg.TakeoutPath, "", "a.jpg", "pixels")
	require.NoError(t, os.Remove(unit.SidecarPath))

	out := eng.pipe.Process(context.Background(), unit)

	assert.True(t, out.Failed())
	assert.Equal(t, ReasonSidecarUnreadable, out.Reason)
	assert.Equal(t, 0, fake.requestCount())
}

func TestProcess_RejectedUploadStopsThere(t *testing.T) {
	fake := newFakeImmich(t)
	fake.failUploads = true
	cfg := testConfig(fake.URL())
	cfg.TakeoutPath = t.TempDir()
	eng := newTestEngine(t, cfg)

	unit := mediaUnit(t, cfg.TakeoutPath, "Summer 2020", "beach.jpg", "pixels")
	out := eng.pipe.Process(context.Background(), unit)

	assert.True(t, out.Failed())
	assert.Equal(t, ReasonUploadRejected, out.Reason)
	assert.Equal(t, 0, fake.assetGets, "no reconciliation after a failed upload")
	assert.Empty(t, fake.albums, "no album work after a failed upload")
}

func TestProcess_UnreachableServerIsTransportFailure(t *testing.T) {
	fake := newFakeImmich(t)
	cfg := testConfig(fake.URL())
	cfg.TakeoutPath = t.TempDir()
	eng := newTestEngine(t, cfg)
	unit := mediaUnit(t, cfg.TakeoutPath, "", "a.jpg", "pixels")
	fake.srv.Close()

	out := eng.pipe.Process(context.Background(), unit)

	assert.True(t, out.Failed())
	assert.Equal(t, ReasonUploadTransport, out.Reason)
}

func TestProcess_MissingFileFailsHashing(t *testing.T) {
	fake := newFakeImmich(t)
	cfg := testConfig(fake.URL())
	cfg.TakeoutPath = t.TempDir()
	eng := newTestEngine(t, cfg)

	unit := mediaUnit(t, cfg.TakeoutPath, "", "a.jpg", "pixels")
	require.NoError(t, os.Remove(unit.Path))

	out := eng.pipe.Process(context.Background(), unit)

	assert.True(t, out.Failed())
	assert.Equal(t, ReasonHashFailed, out.Reason)
	assert.Equal(t, 0, fake.requestCount())
}
