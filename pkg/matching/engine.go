// Package matching ranks, for every external (source) record, the most similar
// records of a target set.
package matching

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/internal/tracing"
	"github.com/Ramsey-B/fern/internal/workpool"
	"github.com/Ramsey-B/fern/pkg/blocking"
	"github.com/Ramsey-B/fern/pkg/models"
)

const (
	DefaultTopN             = 1
	DefaultMinScore         = 80
	DefaultBlockPrefixLen   = 2
	DefaultBlockBandDivisor = 4
)

// ConfigError rejects a matcher configuration at construction
type ConfigError struct {
	Field string
	Value string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid matching %s: %q", e.Field, e.Value)
}

// PairScorer scores two records on a 0..100 scale
type PairScorer interface {
	Score(a, b models.PersonRecord) float64
}

// ProgressFunc receives the number of matched source records. It is called
// from worker goroutines. Returning an error aborts the run with that error.
type ProgressFunc func(processed, total int) error

// Config is the immutable matcher configuration
type Config struct {
	// TopN bounds the ranked list kept per source record
	TopN     int
	MinScore float64
	// AllowDuplicateTargets keeps several sources on one target. When false
	// each target keeps only its best-scoring source.
	AllowDuplicateTargets bool
	Blocking              blocking.Options
	Workers               int
}

// DefaultConfig returns the best-match-only configuration
func DefaultConfig() Config {
	return Config{
		TopN:                  DefaultTopN,
		MinScore:              DefaultMinScore,
		AllowDuplicateTargets: true,
		Blocking: blocking.Options{
			PrefixLen:   DefaultBlockPrefixLen,
			BandDivisor: DefaultBlockBandDivisor,
		},
	}
}

func (c Config) validate() error {
	if c.TopN < 1 {
		return &ConfigError{Field: "top_n", Value: fmt.Sprint(c.TopN)}
	}
	if c.MinScore < 0 || c.MinScore > 100 {
		return &ConfigError{Field: "min_score", Value: fmt.Sprintf("%g", c.MinScore)}
	}
	return nil
}

// Engine matches source records against target records
type Engine struct {
	cfg    Config
	scorer PairScorer
	logger ectologger.Logger
}

// NewEngine validates cfg and creates an Engine
func NewEngine(cfg Config, scorer PairScorer, logger ectologger.Logger) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if scorer == nil {
		return nil, fmt.Errorf("matching engine requires a scorer")
	}
	if cfg.Blocking.Workers == 0 {
		cfg.Blocking.Workers = cfg.Workers
	}
	return &Engine{cfg: cfg, scorer: scorer, logger: logger}, nil
}

// Config returns the engine configuration
func (e *Engine) Config() Config {
	return e.cfg
}

// Match ranks targets for every source. The result is ordered by source id and,
// within a source, by descending score. A source without any target reaching
// MinScore gets one sentinel row (see models.NoMatchFor).
func (e *Engine) Match(
	ctx context.Context,
	sources, targets []models.PersonRecord,
	progress ProgressFunc,
) ([]models.MatchCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Engine.Match")
	defer span.End()

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"sources":   len(sources),
		"targets":   len(targets),
		"top_n":     e.cfg.TopN,
		"min_score": e.cfg.MinScore,
	})

	if err := models.ValidateRecordSet(sources); err != nil {
		return nil, fmt.Errorf("invalid source records: %w", err)
	}
	if err := models.ValidateRecordSet(targets); err != nil {
		return nil, fmt.Errorf("invalid target records: %w", err)
	}

	start := time.Now()
	blocker, err := blocking.NewBlocker(ctx, targets, e.cfg.Blocking)
	if err != nil {
		return nil, err
	}

	var processed atomic.Int64
	ranked, err := workpool.Map(ctx, len(sources), e.cfg.Workers, func(_ context.Context, i int) ([]models.MatchCandidate, error) {
		rows := e.rank(sources[i], targets, blocker)
		if progress != nil {
			if err := progress(int(processed.Add(1)), len(sources)); err != nil {
				return nil, fmt.Errorf("matching aborted at source %d: %w", sources[i].ID, err)
			}
		}
		return rows, nil
	})
	if err != nil {
		return nil, err
	}

	matches := make([]models.MatchCandidate, 0, len(sources)*e.cfg.TopN)
	for _, rows := range ranked {
		matches = append(matches, rows...)
	}

	if !e.cfg.AllowDuplicateTargets {
		matches = dedupeTargets(matches)
	}

	matched := 0
	for _, m := range matches {
		if m.Matched() {
			matched++
		}
	}
	log.WithFields(map[string]any{
		"matches":     matched,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Matching complete")

	return matches, nil
}

// rank keeps the TopN best candidates of one source, best first
func (e *Engine) rank(source models.PersonRecord, targets []models.PersonRecord, blocker *blocking.Blocker) []models.MatchCandidate {
	top := newTopN(e.cfg.TopN)
	for _, targetID := range blocker.Candidates(source) {
		score := e.scorer.Score(source, targets[targetID])
		if score < e.cfg.MinScore {
			continue
		}
		top.offer(score, targetID)
	}

	if top.len() == 0 {
		return []models.MatchCandidate{models.NoMatchFor(source.ID)}
	}

	rows := make([]models.MatchCandidate, 0, top.len())
	for _, entry := range top.entries {
		rows = append(rows, models.MatchCandidate{SourceID: source.ID, Score: entry.score, TargetID: entry.targetID})
	}
	return rows
}

// dedupeTargets keeps, per target, only the best-scoring row (smaller source id on ties).
// Sources left without any row get a sentinel.
func dedupeTargets(matches []models.MatchCandidate) []models.MatchCandidate {
	best := make(map[int]models.MatchCandidate)
	for _, m := range matches {
		if !m.Matched() {
			continue
		}
		current, ok := best[m.TargetID]
		if !ok || m.Score > current.Score || (m.Score == current.Score && m.SourceID < current.SourceID) {
			best[m.TargetID] = m
		}
	}

	kept := make([]models.MatchCandidate, 0, len(matches))
	hasRow := make(map[int]bool)
	sourceOrder := make([]int, 0)
	for _, m := range matches {
		if _, seen := hasRow[m.SourceID]; !seen {
			hasRow[m.SourceID] = false
			sourceOrder = append(sourceOrder, m.SourceID)
		}
		if m.Matched() && best[m.TargetID] == m {
			kept = append(kept, m)
			hasRow[m.SourceID] = true
		}
	}

	for _, sourceID := range sourceOrder {
		if !hasRow[sourceID] {
			kept = append(kept, models.NoMatchFor(sourceID))
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].SourceID < kept[j].SourceID
	})
	return kept
}
