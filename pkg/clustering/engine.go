// Package clustering partitions a record set into person entities by greedy,
// constrained agglomeration over blocking candidates.
//
// Seeds are taken in a fixed order (known-cluster members first, then by id),
// but which of two adjacent groups a borderline record joins still depends on
// which group is seeded first. That order dependence is inherent to greedy
// agglomerative clustering and is not corrected for.
package clustering

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/internal/tracing"
	"github.com/Ramsey-B/fern/internal/workpool"
	"github.com/Ramsey-B/fern/pkg/models"
)

// PairScorer scores two records on a 0..100 scale
type PairScorer interface {
	Score(a, b models.PersonRecord) float64
}

// CandidateSource returns the blocking candidates of an indexed record
type CandidateSource interface {
	CandidatesOf(id int) []int
}

// ProgressFunc receives the number of clustered records after every commit.
// Returning an error aborts the run with that error.
type ProgressFunc func(processed, total int) error

// Engine runs the clustering state machine
type Engine struct {
	cfg    Config
	link   linkFunc
	scorer PairScorer
	logger ectologger.Logger
}

// NewEngine validates cfg and creates an Engine
func NewEngine(cfg Config, scorer PairScorer, logger ectologger.Logger) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if scorer == nil {
		return nil, fmt.Errorf("clustering engine requires a scorer")
	}
	return &Engine{
		cfg:    cfg,
		link:   linkFuncFor(cfg.Linkage),
		scorer: scorer,
		logger: logger,
	}, nil
}

// Config returns the engine configuration
func (e *Engine) Config() Config {
	return e.cfg
}

// run is the mutable state of one Cluster call. Only the commit loop writes it.
type run struct {
	records   []models.PersonRecord
	known     models.KnownClusters
	source    CandidateSource
	clustered []bool
}

// Cluster partitions records. Every record ends up in exactly one cluster; a
// record without candidates becomes a singleton. Records sharing a known
// cluster are always emitted together.
func (e *Engine) Cluster(
	ctx context.Context,
	records []models.PersonRecord,
	source CandidateSource,
	known models.KnownClusters,
	progress ProgressFunc,
) ([]models.Cluster, error) {
	ctx, span := tracing.StartSpan(ctx, "clustering.Engine.Cluster")
	defer span.End()

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"records":   len(records),
		"linkage":   e.cfg.Linkage.String(),
		"cutoff":    e.cfg.Cutoff,
		"iteration": e.cfg.Iteration.String(),
	})

	if err := models.ValidateRecordSet(records); err != nil {
		return nil, err
	}
	if known == nil {
		known = models.KnownClusters{}
	}
	if err := known.Validate(len(records)); err != nil {
		return nil, err
	}

	start := time.Now()
	r := &run{
		records:   records,
		known:     known,
		source:    source,
		clustered: make([]bool, len(records)),
	}

	clusters := make([]models.Cluster, 0)
	processed := 0
	for _, seed := range seedOrder(len(records), known) {
		if r.clustered[seed] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		cluster, err := e.grow(ctx, r, seed)
		if err != nil {
			return nil, err
		}

		// commit: members leave the pool before the next seed is picked
		for _, id := range cluster {
			r.clustered[id] = true
		}
		clusters = append(clusters, cluster)
		processed += len(cluster)

		if len(cluster) > 1 {
			log.WithFields(map[string]any{"seed": seed, "size": len(cluster)}).Debug("Committed cluster")
		}

		if progress != nil {
			if err := progress(processed, len(records)); err != nil {
				return nil, fmt.Errorf("clustering aborted after %d of %d records: %w", processed, len(records), err)
			}
		}
	}

	log.WithFields(map[string]any{
		"clusters":    len(clusters),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Clustering complete")

	return clusters, nil
}

// seedOrder lists known-cluster members ascending, then every id ascending
func seedOrder(n int, known models.KnownClusters) []int {
	order := slices.Grow(known.IDs(), n)
	for id := 0; id < n; id++ {
		order = append(order, id)
	}
	return order
}

// grow seeds a cluster and expands it. It reads the pool but never mutates it.
func (e *Engine) grow(ctx context.Context, r *run, seed int) (models.Cluster, error) {
	members := make(map[int]struct{})
	cluster := make([]int, 0)
	add := func(id int) {
		if _, ok := members[id]; ok || r.clustered[id] {
			return
		}
		members[id] = struct{}{}
		cluster = append(cluster, id)
	}

	for _, id := range r.known.Group(seed) {
		add(id)
	}
	add(seed)

	for {
		pending := e.pendingCandidates(r, cluster, members)
		if len(pending) == 0 {
			break
		}

		// frozen snapshot: every candidate of this pass is scored against the same members
		snapshot := append([]int(nil), cluster...)
		scores, err := workpool.Map(ctx, len(pending), e.cfg.Workers, func(_ context.Context, i int) (float64, error) {
			candidate := r.records[pending[i]]
			return e.link(snapshot, func(m int) float64 {
				return e.scorer.Score(candidate, r.records[m])
			}), nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to score candidates of seed %d: %w", seed, err)
		}

		added := 0
		for i, id := range pending {
			if scores[i] < e.cfg.Cutoff {
				continue
			}
			if _, ok := members[id]; ok {
				// already pulled in with its known group
				continue
			}
			add(id)
			added++
			if e.cfg.AllowKnownClusterMerge {
				for _, kin := range r.known.Group(id) {
					add(kin)
				}
			}
		}

		if e.cfg.Iteration == IterationFast || added == 0 {
			break
		}
	}

	sort.Ints(cluster)
	return cluster, nil
}

// pendingCandidates returns, ascending, the unclustered candidates of every
// member that are not yet members. Records of other known clusters are left
// out unless merges are allowed.
func (e *Engine) pendingCandidates(r *run, cluster []int, members map[int]struct{}) []int {
	if r.source == nil {
		return nil
	}

	seen := make(map[int]struct{})
	pending := make([]int, 0)
	for _, m := range cluster {
		for _, c := range r.source.CandidatesOf(m) {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}

			if c < 0 || c >= len(r.records) || r.clustered[c] {
				continue
			}
			if _, ok := members[c]; ok {
				continue
			}
			if !e.cfg.AllowKnownClusterMerge && r.known.Has(c) {
				continue
			}
			pending = append(pending, c)
		}
	}
	sort.Ints(pending)
	return pending
}
