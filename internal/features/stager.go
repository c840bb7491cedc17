package features

import (
	"context"
	"fmt"
	"sync"

	"github.com/ciscoinsights/device-insights/internal/archive"
)

// Stager accumulates the feature catalog into a staged archive build.
// Pair members hold hash lists; the features themselves are merged into
// one unique table staged at finalize. Safe for concurrent Add calls.
type Stager struct {
	builder *archive.Builder
	hasher  *Hasher

	mu        sync.Mutex
	unique    map[string]Feature
	platforms map[string][]Platform
	releases  map[string][]Release
}

// NewStager returns a stager writing through the given builder.
func NewStager(b *archive.Builder, h *Hasher) *Stager {
	return &Stager{
		builder:   b,
		hasher:    h,
		unique:    make(map[string]Feature),
		platforms: make(map[string][]Platform),
		releases:  make(map[string][]Release),
	}
}

// Add stages the hash list for one platform/release pair and merges its
// features into the unique table.
func (s *Stager) Add(platformID, releaseID int, feats []Feature) error {
	hashes := make([]string, 0, len(feats))
	s.mu.Lock()
	for _, f := range feats {
		h, err := s.hasher.Hash(f)
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("failed to hash feature %q: %w", f.Name, err)
		}
		s.unique[h] = f
		hashes = append(hashes, h)
	}
	s.mu.Unlock()
	return s.builder.Stage(pairMember(platformID, releaseID), hashes)
}

// SetPlatforms records the platform catalog for one platform type.
func (s *Stager) SetPlatforms(platformType string, platforms []Platform) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.platforms[platformType] = platforms
}

// SetReleases records the release catalog for one platform type.
func (s *Stager) SetReleases(platformType string, releases []Release) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releases[platformType] = releases
}

// Finalize stages the unique table and catalogs, then packs and swaps
// in the archive.
func (s *Stager) Finalize(ctx context.Context) error {
	s.mu.Lock()
	unique := s.unique
	platforms := s.platforms
	releases := s.releases
	s.mu.Unlock()

	if err := s.builder.Stage(uniqueFeaturesMember, unique); err != nil {
		return err
	}
	if err := s.builder.Stage(platformsMember, platforms); err != nil {
		return err
	}
	if err := s.builder.Stage(releasesMember, releases); err != nil {
		return err
	}
	return s.builder.Finalize(ctx)
}
