package features

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ciscoinsights/device-insights/internal/logging"
)

// Job fetches the full feature catalog from the Feature Navigator and
// stages it into a fresh archive generation: platforms per type, then
// releases per platform, then the feature list of every
// platform/release pair.
type Job struct {
	client      *Client
	stager      *Stager
	concurrency int
	logger      *zap.Logger
}

// NewJob returns a job fanning out over the client with at most
// concurrency in-flight calls.
func NewJob(client *Client, stager *Stager, concurrency int, logger *zap.Logger) *Job {
	if concurrency <= 0 {
		concurrency = 5
	}
	return &Job{
		client:      client,
		stager:      stager,
		concurrency: concurrency,
		logger:      logging.WithComponent(logger, "features"),
	}
}

type pairKey struct {
	platformID int
	releaseID  int
}

// Run builds one archive generation. Catalog fetches abort the job on
// failure; pair fetches are collected and retried once, and pairs that
// fail twice are abandoned with a log line. The archive finalizes with
// whatever pairs succeeded.
func (j *Job) Run(ctx context.Context) error {
	platformsByType := make(map[string][]Platform, len(PlatformTypes))
	for _, ptype := range PlatformTypes {
		platforms, err := j.client.Platforms(ctx, ptype)
		if err != nil {
			return fmt.Errorf("failed to fetch %s platforms: %w", ptype, err)
		}
		platformsByType[ptype] = platforms
		j.stager.SetPlatforms(ptype, platforms)
	}

	var pairs []pairKey
	for _, ptype := range PlatformTypes {
		platforms := platformsByType[ptype]
		results := make([][]Release, len(platforms))
		var g errgroup.Group
		g.SetLimit(j.concurrency)
		for i, p := range platforms {
			i, p := i, p
			g.Go(func() error {
				rels, err := j.client.Releases(ctx, p.ID)
				if err != nil {
					return fmt.Errorf("platform %d: %w", p.ID, err)
				}
				results[i] = rels
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return fmt.Errorf("failed to fetch %s releases: %w", ptype, err)
		}

		var releases []Release
		for _, rels := range results {
			releases = append(releases, rels...)
		}
		j.stager.SetReleases(ptype, releases)
		for _, r := range releases {
			pairs = append(pairs, pairKey{platformID: r.PlatformID, releaseID: r.ID})
		}
	}

	failed := j.fetchPairs(ctx, pairs)
	if len(failed) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		j.logger.Info("retrying failed feature pairs", zap.Int("pairs", len(failed)))
		failed = j.fetchPairs(ctx, failed)
		for _, pk := range failed {
			j.logger.Error("feature pair abandoned",
				zap.Int("platform_id", pk.platformID),
				zap.Int("release_id", pk.releaseID))
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := j.stager.Finalize(ctx); err != nil {
		return fmt.Errorf("failed to finalize feature archive: %w", err)
	}
	j.logger.Info("feature archive built",
		zap.Int("pairs", len(pairs)),
		zap.Int("abandoned", len(failed)))
	return nil
}

// fetchPairs stages the feature list of every pair, returning the pairs
// that failed.
func (j *Job) fetchPairs(ctx context.Context, pairs []pairKey) []pairKey {
	var mu sync.Mutex
	var failed []pairKey

	var g errgroup.Group
	g.SetLimit(j.concurrency)
	for _, pk := range pairs {
		pk := pk
		g.Go(func() error {
			feats, err := j.client.Features(ctx, pk.platformID, pk.releaseID)
			if err == nil {
				err = j.stager.Add(pk.platformID, pk.releaseID, feats)
			}
			if err != nil {
				j.logger.Warn("feature pair fetch failed",
					zap.Int("platform_id", pk.platformID),
					zap.Int("release_id", pk.releaseID),
					zap.Error(err))
				mu.Lock()
				failed = append(failed, pk)
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()
	return failed
}
