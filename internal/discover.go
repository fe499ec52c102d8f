package internal

import (
	"encoding/json"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// UnitOfWork is one media file paired with its sidecar and, when its
// directory carries an album descriptor, the album title. Immutable once
// discovered.
type UnitOfWork struct {
	Path        string
	SidecarPath string
	Album       string
}

type albumDescriptor struct {
	Title string `json:"title"`
}

// FindMediaFiles walks the takeout tree and pairs every supported media file
// with its sidecar. Files without a sidecar are logged and skipped. An album
// descriptor applies only to media directly in its directory, not to
// subdirectories. Traversal order is not guaranteed.
func FindMediaFiles(root string, cfg *Config) ([]UnitOfWork, error) {
	var units []UnitOfWork
	albumByDir := make(map[string]string)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			slog.Warn("cannot read directory entry, skipping", "path", path, "err", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !isMediaFile(d.Name(), cfg) {
			return nil
		}

		sidecar := findSidecar(path, cfg)
		if sidecar == "" {
			slog.Warn("no sidecar metadata found, skipping", "path", path)
			return nil
		}

		dir := filepath.Dir(path)
		album, ok := albumByDir[dir]
		if !ok {
			album = albumTitle(dir, cfg)
			albumByDir[dir] = album
		}

		units = append(units, UnitOfWork{Path: path, SidecarPath: sidecar, Album: album})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return units, nil
}

// findSidecar tries the sidecar naming conventions next to the media file.
func findSidecar(path string, cfg *Config) string {
	for _, suffix := range cfg.SidecarSuffixes {
		candidate := path + suffix
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// albumTitle reads the directory's album descriptor, if any. An unreadable
// descriptor only costs the album name, never the files.
func albumTitle(dir string, cfg *Config) string {
	for _, name := range cfg.DescriptorNames {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var desc albumDescriptor
		if err := json.Unmarshal(data, &desc); err != nil {
			slog.Warn("could not parse album descriptor", "path", path, "err", err)
			continue
		}
		if desc.Title != "" {
			slog.Info("found album", "title", desc.Title, "dir", dir)
		}
		return desc.Title
	}
	return ""
}

func isMediaFile(name string, cfg *Config) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range cfg.ImageExt {
		if ext == e {
			return true
		}
	}
	for _, e := range cfg.VideoExt {
		if ext == e {
			return true
		}
	}
	return false
}

// TakeoutReport summarizes a takeout tree without touching the network.
type TakeoutReport struct {
	Directories int
	Matched     int
	Unmatched   int
	TotalSize   int64
	ByExtension map[string]int
	Albums      []string
}

// AnalyzeTakeout walks the tree the same way the migration does and reports
// what discovery would produce.
func AnalyzeTakeout(root string, cfg *Config) (*TakeoutReport, error) {
	report := &TakeoutReport{ByExtension: make(map[string]int)}
	albums := make(map[string]bool)
	albumByDir := make(map[string]string)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			report.Directories++
			return nil
		}
		if !isMediaFile(d.Name(), cfg) {
			return nil
		}

		report.ByExtension[strings.ToLower(filepath.Ext(d.Name()))]++
		if info, err := d.Info(); err == nil {
			report.TotalSize += info.Size()
		}

		if findSidecar(path, cfg) == "" {
			report.Unmatched++
			return nil
		}
		report.Matched++

		dir := filepath.Dir(path)
		album, ok := albumByDir[dir]
		if !ok {
			album = albumTitle(dir, cfg)
			albumByDir[dir] = album
		}
		if album != "" {
			albums[album] = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for name := range albums {
		report.Albums = append(report.Albums, name)
	}
	sort.Strings(report.Albums)
	return report, nil
}
