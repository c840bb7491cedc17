package index

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ciscoinsights/device-insights/internal/archive"
	"github.com/ciscoinsights/device-insights/internal/logging"
)

// ErrNotReady reports that no snapshot has been built yet.
var ErrNotReady = errors.New("index not ready")

// Service owns the alert archive path and the current snapshot. The
// snapshot swaps in a single atomic store; a query that loads it once
// sees one fully consistent generation no matter what a concurrent
// refresh does.
type Service struct {
	archivePath string
	clock       Clock
	logger      *zap.Logger

	current atomic.Pointer[Index]
}

// NewService returns a service reading snapshots from the archive at
// archivePath. No snapshot exists until the first successful Refresh.
func NewService(archivePath string, clk Clock, logger *zap.Logger) *Service {
	return &Service{
		archivePath: archivePath,
		clock:       clk,
		logger:      logging.WithComponent(logger, "index"),
	}
}

// Name identifies the service to the refresh scheduler.
func (s *Service) Name() string { return "index" }

// Refresh builds a snapshot from the archive as it exists now and
// installs it. On failure the previous snapshot stays installed and the
// error is returned.
func (s *Service) Refresh(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r := archive.NewReader(s.archivePath, s.logger)
	defer r.Close()

	idx, err := Build(r, s.clock, s.logger)
	if err != nil {
		return fmt.Errorf("failed to rebuild index: %w", err)
	}
	s.current.Store(idx)
	return nil
}

// Snapshot returns the current snapshot, or ErrNotReady before the
// first successful refresh. Callers should load it once per query and
// run every lookup against that value.
func (s *Service) Snapshot() (*Index, error) {
	idx := s.current.Load()
	if idx == nil {
		return nil, ErrNotReady
	}
	return idx, nil
}
