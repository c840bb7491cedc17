package features

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/ciscoinsights/device-insights/internal/archive"
	"github.com/ciscoinsights/device-insights/internal/logging"
	"github.com/ciscoinsights/device-insights/internal/metrics"
)

// Service serves feature lookups from the finalized feature archive.
// Decoded pair members live in a bounded LRU so hot platform/release
// pairs skip the archive walk; the cache and the unique table are
// dropped whenever the archive generation changes.
type Service struct {
	reader *archive.Reader
	logger *zap.Logger
	cache  *lru.Cache[string, []Feature]

	mu     sync.Mutex
	unique map[string]Feature
}

// NewService returns a service reading the feature archive at
// archivePath. A non-positive cacheSize falls back to 128 entries.
func NewService(archivePath string, cacheSize int, logger *zap.Logger) (*Service, error) {
	if cacheSize <= 0 {
		cacheSize = 128
	}
	cache, err := lru.NewWithEvict[string, []Feature](cacheSize, func(string, []Feature) {
		metrics.ObserveFeatureCache("evict")
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create feature cache: %w", err)
	}
	return &Service{
		reader: archive.NewReader(archivePath, logger),
		logger: logging.WithComponent(logger, "features"),
		cache:  cache,
	}, nil
}

// Name identifies the service to the refresh scheduler.
func (s *Service) Name() string { return "features" }

// Refresh reopens the archive and drops the cached generation, so the
// next lookup reads the latest finalized build.
func (s *Service) Refresh(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.reader.Close(); err != nil {
		return err
	}
	s.mu.Lock()
	s.unique = nil
	s.mu.Unlock()
	s.cache.Purge()
	return s.reader.Open()
}

// PlatformFeatures returns the features available on one
// platform/release pair. A pair the archive does not know is an empty
// result, not an error.
func (s *Service) PlatformFeatures(platformID, releaseID int) ([]Feature, error) {
	member := pairMember(platformID, releaseID)
	if feats, ok := s.cache.Get(member); ok {
		metrics.ObserveFeatureCache("hit")
		return feats, nil
	}
	metrics.ObserveFeatureCache("miss")

	unique, err := s.uniqueTable()
	if err != nil {
		return nil, err
	}
	data, err := s.reader.ExtractMember(member)
	if err != nil {
		return nil, err
	}
	if data == nil {
		feats := []Feature{}
		s.cache.Add(member, feats)
		return feats, nil
	}
	var hashes []string
	if err := json.Unmarshal(data, &hashes); err != nil {
		return nil, fmt.Errorf("failed to decode member %s: %w", member, err)
	}
	feats := make([]Feature, 0, len(hashes))
	for _, h := range hashes {
		f, ok := unique[h]
		if !ok {
			s.logger.Warn("unknown feature hash",
				zap.String("member", member),
				zap.String("hash", h))
			continue
		}
		feats = append(feats, f)
	}
	s.cache.Add(member, feats)
	return feats, nil
}

// Platforms returns the platform catalog for one platform type,
// optionally narrowed by a case-insensitive name substring. An empty
// platformType returns every type's catalog.
func (s *Service) Platforms(platformType, byName string) ([]Platform, error) {
	data, err := s.reader.ExtractMember(platformsMember)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return []Platform{}, nil
	}
	var catalogs map[string][]Platform
	if err := json.Unmarshal(data, &catalogs); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", platformsMember, err)
	}

	var platforms []Platform
	if platformType != "" {
		platforms = catalogs[platformType]
	} else {
		types := make([]string, 0, len(catalogs))
		for t := range catalogs {
			types = append(types, t)
		}
		sort.Strings(types)
		for _, t := range types {
			platforms = append(platforms, catalogs[t]...)
		}
	}
	if byName == "" {
		return platforms, nil
	}
	needle := strings.ToLower(byName)
	out := make([]Platform, 0)
	for _, p := range platforms {
		if strings.Contains(strings.ToLower(p.Name), needle) {
			out = append(out, p)
		}
	}
	return out, nil
}

// Releases returns the releases known for one platform.
func (s *Service) Releases(platformID int) ([]Release, error) {
	data, err := s.reader.ExtractMember(releasesMember)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return []Release{}, nil
	}
	var catalogs map[string][]Release
	if err := json.Unmarshal(data, &catalogs); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", releasesMember, err)
	}
	out := make([]Release, 0)
	for _, rels := range catalogs {
		for _, r := range rels {
			if r.PlatformID == platformID {
				out = append(out, r)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// uniqueTable lazily decodes the hash lookup table for the current
// archive generation. A generation without the table resolves every
// hash to nothing, mirroring how absent members read as empty.
func (s *Service) uniqueTable() (map[string]Feature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unique != nil {
		return s.unique, nil
	}
	data, err := s.reader.ExtractMember(uniqueFeaturesMember)
	if err != nil {
		return nil, err
	}
	unique := make(map[string]Feature)
	if data != nil {
		if err := json.Unmarshal(data, &unique); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", uniqueFeaturesMember, err)
		}
	}
	s.unique = unique
	return unique, nil
}
