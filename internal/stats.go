package internal

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
)

// AlbumRecord names an album and its server-assigned ID, for the final report.
type AlbumRecord struct {
	Name string
	ID   string
}

// Stats collects process-wide counters. Workers increment them atomically;
// the aggregate is read only after all workers have joined.
type Stats struct {
	TotalFiles             atomic.Int64
	ProcessedFiles         atomic.Int64
	FailedFiles            atomic.Int64
	NewUploads             atomic.Int64
	DuplicatesFound        atomic.Int64
	AlbumsCreated          atomic.Int64
	AlbumsExisting         atomic.Int64
	MetadataUpdates        atomic.Int64
	MetadataAlreadyCorrect atomic.Int64

	start time.Time

	mu       sync.Mutex
	created  []AlbumRecord
	existing []AlbumRecord
}

func NewStats() *Stats {
	return &Stats{start: time.Now()}
}

func (s *Stats) Elapsed() time.Duration {
	return time.Since(s.start)
}

func (s *Stats) TrackCreatedAlbum(name, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, AlbumRecord{Name: name, ID: id})
}

func (s *Stats) TrackExistingAlbum(name, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.existing = append(s.existing, AlbumRecord{Name: name, ID: id})
}

func (s *Stats) CreatedAlbums() []AlbumRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AlbumRecord, len(s.created))
	copy(out, s.created)
	return out
}

func (s *Stats) ExistingAlbums() []AlbumRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AlbumRecord, len(s.existing))
	copy(out, s.existing)
	return out
}

// PrintReport writes the final human-readable statistics block.
func (s *Stats) PrintReport(w io.Writer) {
	elapsed := s.Elapsed()
	total := s.TotalFiles.Load()
	processed := s.ProcessedFiles.Load()

	header := color.New(color.Bold, color.FgGreen)
	section := color.New(color.Bold)
	rule := "======================================================================"

	fmt.Fprintln(w, rule)
	header.Fprintln(w, "MIGRATION COMPLETED")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Total time: %.2f seconds (%.1f minutes)\n", elapsed.Seconds(), elapsed.Minutes())
	if total > 0 {
		fmt.Fprintf(w, "Average time per file: %.2f seconds\n", elapsed.Seconds()/float64(total))
	}
	fmt.Fprintln(w)

	section.Fprintln(w, "UPLOAD STATISTICS:")
	fmt.Fprintf(w, "  Total files found:      %d\n", total)
	fmt.Fprintf(w, "  Successfully processed: %d\n", processed)
	fmt.Fprintf(w, "  Failed:                 %d\n", s.FailedFiles.Load())
	if total > 0 {
		fmt.Fprintf(w, "  Success rate:           %.1f%%\n", float64(processed)/float64(total)*100)
	}
	fmt.Fprintf(w, "  New uploads:            %d\n", s.NewUploads.Load())
	fmt.Fprintf(w, "  Duplicates found:       %d\n", s.DuplicatesFound.Load())
	fmt.Fprintln(w)

	section.Fprintln(w, "ALBUM STATISTICS:")
	fmt.Fprintf(w, "  New albums created:     %d\n", s.AlbumsCreated.Load())
	fmt.Fprintf(w, "  Already existing:       %d\n", s.AlbumsExisting.Load())
	fmt.Fprintln(w)

	section.Fprintln(w, "METADATA STATISTICS:")
	fmt.Fprintf(w, "  Metadata updated:       %d\n", s.MetadataUpdates.Load())
	fmt.Fprintf(w, "  Already correct:        %d\n", s.MetadataAlreadyCorrect.Load())
	fmt.Fprintln(w, rule)

	section.Fprintln(w, "NEW ALBUMS CREATED:")
	created := s.CreatedAlbums()
	if len(created) == 0 {
		fmt.Fprintln(w, "  No new albums created")
	}
	for i, album := range created {
		fmt.Fprintf(w, "  %2d. %s (ID: %s)\n", i+1, album.Name, album.ID)
	}
	fmt.Fprintln(w, rule)
}
