package archive

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ciscoinsights/device-insights/internal/logging"
	"github.com/ciscoinsights/device-insights/internal/metrics"
)

// Builder stages JSON units on disk and packs them into a tar.gz
// archive. Finalize writes the archive next to its target path and
// renames it into place, so readers never observe a partial archive and
// a failed build leaves the previous archive untouched.
type Builder struct {
	stagingDir string
	targetPath string
	level      int
	logger     *zap.Logger

	mu         sync.Mutex
	finalizing bool
}

// NewBuilder returns a builder that stages units under stagingDir and
// finalizes them to targetPath. A zero level selects gzip.BestCompression.
func NewBuilder(stagingDir, targetPath string, level int, logger *zap.Logger) *Builder {
	if level == 0 {
		level = gzip.BestCompression
	}
	return &Builder{
		stagingDir: stagingDir,
		targetPath: targetPath,
		level:      level,
		logger:     logging.WithComponent(logger, "archive"),
	}
}

// Stage encodes v as JSON and stages it under the given unit path.
func (b *Builder) Stage(unit string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode unit %s: %w", unit, err)
	}
	return b.StageRaw(unit, data)
}

// StageRaw stages pre-encoded bytes under the given unit path. Unit
// paths are slash-separated and relative to the staging directory;
// anything escaping it is rejected. Units are written to a temp file and
// renamed, so a unit staged twice is replaced whole.
func (b *Builder) StageRaw(unit string, data []byte) error {
	full, err := b.unitPath(unit)
	if err != nil {
		return err
	}
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".unit-*")
	if err != nil {
		return fmt.Errorf("failed to create staging file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write staged unit %s: %w", unit, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close staged unit %s: %w", unit, err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to place staged unit %s: %w", unit, err)
	}
	return nil
}

// unitPath maps a slash-separated unit name to its staging location,
// rejecting absolute paths and traversal out of the staging directory.
func (b *Builder) unitPath(unit string) (string, error) {
	clean := path.Clean(unit)
	if clean == "." || clean == ".." || path.IsAbs(clean) ||
		strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("invalid unit path %q", unit)
	}
	full := filepath.Join(b.stagingDir, filepath.FromSlash(clean))
	base := filepath.Clean(b.stagingDir)
	if !strings.HasPrefix(full, base+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid unit path %q", unit)
	}
	return full, nil
}

// Finalize packs every staged unit into a tar.gz archive and atomically
// replaces the archive at the target path, then deletes the staging
// directory. A missing staging directory yields a valid empty archive.
// On failure the staging directory and any previous archive are left
// intact. Only one finalize may run at a time; a concurrent call fails
// with ErrArchiveBusy.
func (b *Builder) Finalize(ctx context.Context) (err error) {
	b.mu.Lock()
	if b.finalizing {
		b.mu.Unlock()
		return ErrArchiveBusy
	}
	b.finalizing = true
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.finalizing = false
		b.mu.Unlock()
	}()

	name := filepath.Base(b.targetPath)
	targetDir := filepath.Dir(b.targetPath)
	if err := os.MkdirAll(targetDir, 0o750); err != nil {
		metrics.ObserveArchiveBuild(name, "error", -1)
		return fmt.Errorf("failed to create archive directory: %w", err)
	}
	tmp, err := os.CreateTemp(targetDir, ".archive-*.tar.gz")
	if err != nil {
		metrics.ObserveArchiveBuild(name, "error", -1)
		return fmt.Errorf("failed to create archive temp file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
			metrics.ObserveArchiveBuild(name, "error", -1)
		}
	}()

	gz, err := gzip.NewWriterLevel(tmp, b.level)
	if err != nil {
		return fmt.Errorf("failed to init gzip writer: %w", err)
	}
	tw := tar.NewWriter(gz)

	members := 0
	err = filepath.WalkDir(b.stagingDir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if p == b.stagingDir && errors.Is(walkErr, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return walkErr
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if err := b.addMember(tw, p, d); err != nil {
			return err
		}
		members++
		return nil
	})
	if err != nil {
		tw.Close()
		gz.Close()
		return fmt.Errorf("failed to pack staged units: %w", err)
	}
	if err = tw.Close(); err != nil {
		gz.Close()
		return fmt.Errorf("failed to close tar stream: %w", err)
	}
	if err = gz.Close(); err != nil {
		return fmt.Errorf("failed to close gzip stream: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync archive temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close archive temp file: %w", err)
	}
	if err = os.Rename(tmp.Name(), b.targetPath); err != nil {
		return fmt.Errorf("failed to replace archive: %w", err)
	}

	metrics.ObserveArchiveBuild(name, "success", members)
	if rmErr := os.RemoveAll(b.stagingDir); rmErr != nil {
		b.logger.Warn("failed to remove staging directory",
			zap.String("dir", b.stagingDir),
			zap.Error(rmErr))
	}
	b.logger.Info("archive finalized",
		zap.String("path", b.targetPath),
		zap.Int("members", members))
	return nil
}

// addMember writes one staged file into the tar stream under its
// slash-separated path relative to the staging directory.
func (b *Builder) addMember(tw *tar.Writer, p string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(b.stagingDir, p)
	if err != nil {
		return err
	}
	hdr.Name = filepath.ToSlash(rel)
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	if _, err := io.Copy(tw, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
