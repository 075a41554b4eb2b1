package matching

import (
	"context"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/blocking"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
	"github.com/Ramsey-B/fern/pkg/similarity"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func person(id int, given, family, dob string) models.PersonRecord {
	return models.PersonRecord{
		ID:          id,
		GivenName:   normalizers.GivenName(given),
		FamilyName:  normalizers.FamilyName(family),
		DateOfBirth: normalizers.Date(dob),
	}
}

func newTestEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	scorer, err := similarity.NewScorer(similarity.DefaultOptions())
	require.NoError(t, err)
	engine, err := NewEngine(cfg, scorer, testLogger())
	require.NoError(t, err)
	return engine
}

func targets() []models.PersonRecord {
	return []models.PersonRecord{
		person(0, "Johann", "Schmidt", "19100305"),
		person(1, "Anna", "Kowalska", "19220101"),
		person(2, "Johann", "Schmitt", "19100306"),
		person(3, "Peter", "Novak", "19050505"),
	}
}

func TestMatch_IdenticalRecordScores100(t *testing.T) {
	engine := newTestEngine(t, DefaultConfig())

	sources := []models.PersonRecord{person(0, "Anna", "Kowalska", "19220101")}
	matches, err := engine.Match(context.Background(), sources, targets(), nil)
	require.NoError(t, err)

	require.Len(t, matches, 1)
	assert.Equal(t, 0, matches[0].SourceID)
	assert.Equal(t, 1, matches[0].TargetID)
	assert.InDelta(t, 100, matches[0].Score, 1e-9)
}

func TestMatch_SentinelWhenNothingReachesMinScore(t *testing.T) {
	engine := newTestEngine(t, DefaultConfig())

	sources := []models.PersonRecord{
		person(0, "Zacharias", "Oberhuber", "18800101"),
		person(1, "Johann", "Schmidt", "18000101"),
	}
	matches, err := engine.Match(context.Background(), sources, targets(), nil)
	require.NoError(t, err)

	assert.Equal(t, []models.MatchCandidate{models.NoMatchFor(0), models.NoMatchFor(1)}, matches)
	assert.False(t, matches[0].Matched())
}

func TestMatch_TopNRanksBestFirst(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TopN = 3
	cfg.MinScore = 50
	engine := newTestEngine(t, cfg)

	sources := []models.PersonRecord{person(0, "Johann", "Schmidt", "19100305")}
	matches, err := engine.Match(context.Background(), sources, targets(), nil)
	require.NoError(t, err)

	require.Len(t, matches, 2)
	assert.Equal(t, 0, matches[0].TargetID)
	assert.Equal(t, 2, matches[1].TargetID)
	assert.Greater(t, matches[0].Score, matches[1].Score)
}

func TestMatch_DuplicateTargetsResolvedToBestSource(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowDuplicateTargets = false
	engine := newTestEngine(t, cfg)

	tgt := []models.PersonRecord{person(0, "Johann", "Schmidt", "19100305")}
	sources := []models.PersonRecord{
		person(0, "Johann", "Schmitt", "19100305"),
		person(1, "Johann", "Schmidt", "19100305"),
		person(2, "Johann", "Schmidt", "19100305"),
	}

	matches, err := engine.Match(context.Background(), sources, tgt, nil)
	require.NoError(t, err)

	assert.Equal(t, []models.MatchCandidate{
		models.NoMatchFor(0),
		{SourceID: 1, Score: matches[1].Score, TargetID: 0},
		models.NoMatchFor(2),
	}, matches)
	assert.InDelta(t, 100, matches[1].Score, 1e-9)

	cfg.AllowDuplicateTargets = true
	engine = newTestEngine(t, cfg)
	matches, err = engine.Match(context.Background(), sources, tgt, nil)
	require.NoError(t, err)
	for _, m := range matches {
		assert.True(t, m.Matched())
	}
}

func TestMatch_ProgressAbort(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Workers = 1
	engine := newTestEngine(t, cfg)
	stop := errors.New("stop")

	sources := []models.PersonRecord{
		person(0, "Johann", "Schmidt", "19100305"),
		person(1, "Anna", "Kowalska", "19220101"),
	}
	_, err := engine.Match(context.Background(), sources, targets(), func(processed, total int) error {
		return stop
	})
	assert.ErrorIs(t, err, stop)
}

func TestMatch_RejectsMisnumberedRecords(t *testing.T) {
	engine := newTestEngine(t, DefaultConfig())

	_, err := engine.Match(context.Background(), []models.PersonRecord{{ID: 3}}, targets(), nil)
	assert.ErrorIs(t, err, models.ErrRecordIDMismatch)
}

func TestNewEngine_ConfigErrors(t *testing.T) {
	scorer, err := similarity.NewScorer(similarity.DefaultOptions())
	require.NoError(t, err)

	var cfgErr *ConfigError
	_, err = NewEngine(Config{TopN: 0, MinScore: 80}, scorer, testLogger())
	assert.ErrorAs(t, err, &cfgErr)

	_, err = NewEngine(Config{TopN: 1, MinScore: 120}, scorer, testLogger())
	assert.ErrorAs(t, err, &cfgErr)
}

func TestTopN(t *testing.T) {
	top := newTopN(2)
	top.offer(80, 5)
	top.offer(90, 7)
	top.offer(90, 3)
	top.offer(70, 1)

	assert.Equal(t, []rankedTarget{{score: 90, targetID: 3}, {score: 90, targetID: 7}}, top.entries)
}

func TestDefaultConfig_Blocking(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, blocking.Options{PrefixLen: 2, BandDivisor: 4}, cfg.Blocking)
}
