// Package archive reads and writes the gzip-compressed tar archives that
// hold scraped product data as JSON units.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ciscoinsights/device-insights/internal/logging"
	"github.com/ciscoinsights/device-insights/internal/metrics"
)

// errStopWalk signals an early, successful end of an archive walk.
var errStopWalk = errors.New("stop walking archive")

// Reader extracts JSON units from a tar.gz archive. It keeps a single
// file handle open across extractions and rewinds it for each pass, so
// repeated lookups never reopen the file. A Reader is safe for
// concurrent use; extractions serialize on the handle.
type Reader struct {
	path   string
	logger *zap.Logger

	mu   sync.Mutex
	file *os.File
}

// NewReader returns a reader for the archive at path. The file is opened
// lazily on first use.
func NewReader(path string, logger *zap.Logger) *Reader {
	return &Reader{path: path, logger: logging.WithComponent(logger, "archive")}
}

// Open eagerly opens and validates the archive. Extraction methods open
// lazily, so Open is only needed to surface availability errors up front.
func (r *Reader) Open() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ensureOpen()
}

// ensureOpen opens the archive file and validates its gzip header.
// The caller must hold r.mu.
func (r *Reader) ensureOpen() error {
	if r.file != nil {
		return nil
	}
	f, err := os.Open(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrArchiveNotFound, r.path)
		}
		return fmt.Errorf("failed to open archive %s: %w", r.path, err)
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("%w: %s: %v", ErrArchiveCorrupt, r.path, err)
	}
	gz.Close()
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return fmt.Errorf("failed to rewind archive %s: %w", r.path, err)
	}
	r.file = f
	return nil
}

// walk rewinds the archive and calls fn for every regular member in
// order. fn may return errStopWalk to end the walk early.
func (r *Reader) walk(fn func(hdr *tar.Header, tr *tar.Reader) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureOpen(); err != nil {
		return err
	}
	if _, err := r.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind archive %s: %w", r.path, err)
	}
	gz, err := gzip.NewReader(r.file)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrArchiveCorrupt, r.path, err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrArchiveCorrupt, r.path, err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if err := fn(hdr, tr); err != nil {
			if errors.Is(err, errStopWalk) {
				return nil
			}
			return err
		}
	}
}

// ExtractMember returns the raw bytes of the named member. A member that
// is not present is not an error: ExtractMember logs a warning and
// returns (nil, nil), so callers can treat absence as an empty result.
func (r *Reader) ExtractMember(name string) ([]byte, error) {
	want := path.Clean(name)
	var data []byte
	err := r.walk(func(hdr *tar.Header, tr *tar.Reader) error {
		if path.Clean(hdr.Name) != want {
			return nil
		}
		b, err := io.ReadAll(tr)
		if err != nil {
			return fmt.Errorf("%w: member %s: %v", ErrArchiveCorrupt, want, err)
		}
		data = b
		return errStopWalk
	})
	if err != nil {
		return nil, err
	}
	if data == nil {
		r.logger.Warn("archive member not found",
			zap.String("archive", r.path),
			zap.String("member", want))
		return nil, nil
	}
	return data, nil
}

// Close releases the underlying file handle. The reader reopens lazily
// on the next extraction, so Close is also how callers pick up a newly
// finalized archive at the same path.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	if err != nil {
		return fmt.Errorf("failed to close archive %s: %w", r.path, err)
	}
	return nil
}

// ExtractAll decodes every member whose name ends in suffix into T.
// Members that fail to decode are logged, counted, and skipped; the rest
// of the archive is still returned. Matching zero members is not an
// error.
func ExtractAll[T any](r *Reader, suffix string) ([]T, error) {
	var out []T
	err := r.walk(func(hdr *tar.Header, tr *tar.Reader) error {
		if !strings.HasSuffix(hdr.Name, suffix) {
			return nil
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return fmt.Errorf("%w: member %s: %v", ErrArchiveCorrupt, hdr.Name, err)
		}
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			r.logger.Warn("skipping archive member",
				zap.String("archive", r.path),
				zap.String("member", hdr.Name),
				zap.Error(fmt.Errorf("%w: %v", ErrMemberDecode, err)))
			metrics.ObserveMemberDecodeFailure()
			return nil
		}
		out = append(out, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
