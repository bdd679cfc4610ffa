// Package archive streams retrieved volumes into a zip archive.
package archive

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"

	"github.com/htrc/data-api/pkg/logging"
	"github.com/htrc/data-api/pkg/volume"
)

// ErrorEntry is the name of the entry appended when retrieval fails after
// the archive was started.
const ErrorEntry = "ERROR.err"

// VolumeIterator yields volumes until (nil, nil). retrieval.Coordinator
// implements it.
type VolumeIterator interface {
	Next(ctx context.Context) (*volume.Reader, error)
}

// Layout selects how pages are laid out in the archive.
type Layout int

const (
	// LayoutPerPage writes <sanitized id>/<seq>.txt per page.
	LayoutPerPage Layout = iota

	// LayoutConcat writes all pages of a volume into <sanitized id>.txt.
	LayoutConcat
)

// Compression is the entry compression method.
type Compression string

const (
	CompressionDeflate Compression = "deflate"
	CompressionStore   Compression = "store"

	// CompressionZstd uses zip method 93. Not every unzip tool reads it.
	CompressionZstd Compression = "zstd"
)

// ParseCompression parses a configured compression name. Empty means deflate.
func ParseCompression(s string) (Compression, error) {
	switch c := Compression(strings.ToLower(strings.TrimSpace(s))); c {
	case "":
		return CompressionDeflate, nil
	case CompressionDeflate, CompressionZstd, CompressionStore:
		return c, nil
	default:
		return "", fmt.Errorf("unknown archive compression %q", s)
	}
}

func (c Compression) method() uint16 {
	switch c {
	case CompressionZstd:
		return zstd.ZipMethodWinZip
	case CompressionStore:
		return zip.Store
	default:
		return zip.Deflate
	}
}

// Options configures a Writer.
type Options struct {
	Layout      Layout
	Compression Compression
}

// Stats summarizes a written archive.
type Stats struct {
	Volumes  int
	Pages    int
	Metadata int
	Entries  int
}

// Writer pulls volumes from an iterator and writes them as zip entries.
type Writer struct {
	opts   Options
	logger zerolog.Logger
}

// NewWriter creates an archive writer.
func NewWriter(opts Options) *Writer {
	if opts.Compression == "" {
		opts.Compression = CompressionDeflate
	}
	return &Writer{opts: opts, logger: logging.NewLogger("archive")}
}

// Stream drains it into a zip written to out.
//
// If the iterator fails before any entry was written, nothing is written
// to out and the failure is returned so the caller can still report it
// with a status code. If it fails later, an ERROR.err entry carrying the
// failure text is appended, the archive is closed and the failure is
// returned.
func (w *Writer) Stream(ctx context.Context, it VolumeIterator, out io.Writer) (Stats, error) {
	var stats Stats
	zw := zip.NewWriter(out)
	zw.RegisterCompressor(zstd.ZipMethodWinZip, zstd.ZipCompressor())

	for {
		r, err := it.Next(ctx)
		if err != nil {
			if stats.Entries == 0 {
				return stats, err
			}
			w.logger.Warn().
				Err(err).
				Int("volumes", stats.Volumes).
				Msg("Retrieval failed mid-archive, appending error entry")
			if werr := w.writeEntry(zw, ErrorEntry, []byte(err.Error())); werr != nil {
				return stats, fmt.Errorf("write %s: %w (retrieval: %v)", ErrorEntry, werr, err)
			}
			stats.Entries++
			if cerr := zw.Close(); cerr != nil {
				return stats, fmt.Errorf("close archive: %w (retrieval: %v)", cerr, err)
			}
			return stats, err
		}
		if r == nil {
			break
		}
		if err := w.writeVolume(zw, r, &stats); err != nil {
			return stats, err
		}
	}

	if err := zw.Close(); err != nil {
		return stats, fmt.Errorf("close archive: %w", err)
	}
	w.logger.Debug().
		Int("volumes", stats.Volumes).
		Int("entries", stats.Entries).
		Msg("Archive complete")
	return stats, nil
}

func (w *Writer) writeVolume(zw *zip.Writer, r *volume.Reader, stats *Stats) error {
	dir := r.SanitizedID()

	switch w.opts.Layout {
	case LayoutConcat:
		if r.HasMorePages() {
			ew, err := w.create(zw, dir+".txt")
			if err != nil {
				return err
			}
			for r.HasMorePages() {
				page, _ := r.NextPage()
				if _, err := ew.Write(page.Data); err != nil {
					return fmt.Errorf("write %s.txt: %w", dir, err)
				}
				stats.Pages++
			}
			stats.Entries++
		}
	default:
		for r.HasMorePages() {
			page, _ := r.NextPage()
			if err := w.writeEntry(zw, dir+"/"+page.Name+".txt", page.Data); err != nil {
				return err
			}
			stats.Pages++
			stats.Entries++
		}
	}

	for r.HasMoreMetadata() {
		meta, _ := r.NextMetadata()
		if err := volume.CheckMetadataName(meta.Name); err != nil {
			return fmt.Errorf("volume %s: %w", r.VolumeID(), err)
		}
		if err := w.writeEntry(zw, dir+"/"+meta.Name, meta.Data); err != nil {
			return err
		}
		stats.Metadata++
		stats.Entries++
	}

	stats.Volumes++
	return nil
}

func (w *Writer) create(zw *zip.Writer, name string) (io.Writer, error) {
	ew, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   w.opts.Compression.method(),
		Modified: time.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", name, err)
	}
	return ew, nil
}

func (w *Writer) writeEntry(zw *zip.Writer, name string, data []byte) error {
	ew, err := w.create(zw, name)
	if err != nil {
		return err
	}
	if _, err := ew.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}
