package internal

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	exiftool "github.com/barasher/go-exiftool"
	"github.com/rwcarlsen/goexif/exif"
)

// takenTimeLayout is the timestamp format Immich records: ISO-8601 UTC with
// millisecond precision.
const takenTimeLayout = "2006-01-02T15:04:05.000Z"

const exifDateLayout = "2006:01:02 15:04:05"

// GeoData is a capture location from a sidecar. A (0,0) pair is the sidecar
// convention for "no location" and never reaches this struct.
type GeoData struct {
	Latitude  float64
	Longitude float64
	Altitude  float64
}

// Metadata is what a sidecar tells us about a media file. CreatedAt is empty
// when the sidecar carries no photoTakenTime; the modification timestamp
// mirrors CreatedAt on upload.
type Metadata struct {
	CreatedAt string
	Geo       *GeoData
}

type sidecarFile struct {
	PhotoTakenTime struct {
		Timestamp string `json:"timestamp"`
	} `json:"photoTakenTime"`
	GeoDataExif struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Altitude  float64 `json:"altitude"`
	} `json:"geoDataExif"`
}

// LoadSidecar reads a sidecar JSON file and extracts the capture timestamp
// and geolocation.
func LoadSidecar(path string) (Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read sidecar %s: %w", path, err)
	}

	var sc sidecarFile
	if err := json.Unmarshal(data, &sc); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse sidecar %s: %w", path, err)
	}

	var md Metadata
	if ts := sc.PhotoTakenTime.Timestamp; ts != "" {
		secs, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			return Metadata{}, fmt.Errorf("invalid photoTakenTime in %s: %w", path, err)
		}
		md.CreatedAt = time.Unix(secs, 0).UTC().Format(takenTimeLayout)
	}

	// Takeout writes latitude/longitude 0.0 when there is no location.
	if sc.GeoDataExif.Latitude != 0 && sc.GeoDataExif.Longitude != 0 {
		md.Geo = &GeoData{
			Latitude:  sc.GeoDataExif.Latitude,
			Longitude: sc.GeoDataExif.Longitude,
			Altitude:  sc.GeoDataExif.Altitude,
		}
	}

	return md, nil
}

// DateResolver finds a capture date for media whose sidecar carries no
// photoTakenTime: embedded EXIF first, then exiftool when enabled, then the
// file modification time.
type DateResolver struct {
	mu sync.Mutex // exiftool's stay-open process is single-threaded
	et *exiftool.Exiftool
}

func NewDateResolver(useExifTool bool) *DateResolver {
	r := &DateResolver{}
	if useExifTool {
		et, err := exiftool.NewExiftool()
		if err != nil {
			slog.Warn("exiftool not available, falling back to file times", "err", err)
		} else {
			r.et = et
		}
	}
	return r
}

func (r *DateResolver) Close() {
	if r.et != nil {
		r.et.Close()
	}
}

func (r *DateResolver) CaptureTime(path string) (time.Time, bool) {
	if t, err := exifDateOriginal(path); err == nil {
		return t, true
	}
	if r.et != nil {
		if t, err := r.exiftoolDate(path); err == nil {
			return t, true
		}
	}
	if t, err := fileModTime(path); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// exifDateOriginal extracts DateTimeOriginal from embedded EXIF metadata
func exifDateOriginal(path string) (time.Time, error) {
	f, err := os.Open(path)
	if err != nil {
		return time.Time{}, err
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return time.Time{}, err
	}

	tag, err := x.Get(exif.DateTimeOriginal)
	if err != nil {
		return time.Time{}, err
	}

	dateStr, err := tag.StringVal()
	if err != nil {
		return time.Time{}, err
	}

	return time.Parse(exifDateLayout, dateStr)
}

func (r *DateResolver) exiftoolDate(path string) (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	metas := r.et.ExtractMetadata(path)
	if len(metas) == 0 {
		return time.Time{}, fmt.Errorf("no exiftool metadata for %s", path)
	}
	if metas[0].Err != nil {
		return time.Time{}, metas[0].Err
	}
	raw, err := metas[0].GetString("DateTimeOriginal")
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(exifDateLayout, raw)
}

// fileModTime fallback to file modification time
func fileModTime(path string) (time.Time, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return fi.ModTime(), nil
}
