package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

type countingRunner struct {
	calls int
	err   error
}

func (r *countingRunner) ExecuteWrite(_ context.Context, _ neo4j.ManagedTransactionWork) (any, error) {
	r.calls++
	return nil, r.err
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestClusterRows(t *testing.T) {
	records := []models.PersonRecord{
		{ID: 0, GivenName: "johann", FamilyName: "muler", DateOfBirth: "19200101"},
		{ID: 1, GivenName: "anna", FamilyName: "schmit"},
		{ID: 2, GivenName: "iohan", FamilyName: "muler", DateOfBirth: "19200101"},
	}
	clusters := []models.Cluster{{0, 2}, {1}}

	rows := clusterRows(records, clusters)
	require.Len(t, rows, 2)

	first := rows[0].(map[string]any)
	assert.Equal(t, 0, first["entity_id"])
	assert.Equal(t, 2, first["size"])
	members := first["records"].([]any)
	require.Len(t, members, 2)
	assert.Equal(t, "iohan", members[1].(map[string]any)["given_name"])

	second := rows[1].(map[string]any)
	assert.Equal(t, 1, second["entity_id"])
	assert.Equal(t, 1, second["size"])
}

func TestMatchRows_SkipsSentinels(t *testing.T) {
	rows := matchRows([]models.MatchCandidate{
		{SourceID: 0, Score: 95, TargetID: 4},
		models.NoMatchFor(1),
		{SourceID: 2, Score: 81, TargetID: 4},
	})

	require.Len(t, rows, 2)
	assert.Equal(t, 2, rows[1].(map[string]any)["source_id"])
	assert.Equal(t, 81.0, rows[1].(map[string]any)["score"])
}

func TestEntityWriter_Batches(t *testing.T) {
	runner := &countingRunner{}
	w := NewEntityWriter(runner, testLogger())

	matches := make([]models.MatchCandidate, batchSize+1)
	for i := range matches {
		matches[i] = models.MatchCandidate{SourceID: i, Score: 90, TargetID: 0}
	}
	require.NoError(t, w.WriteMatches(context.Background(), "run", "a", "b", matches))
	assert.Equal(t, 2, runner.calls)

	runner.calls = 0
	require.NoError(t, w.WriteMatches(context.Background(), "run", "a", "b", []models.MatchCandidate{models.NoMatchFor(0)}))
	assert.Equal(t, 0, runner.calls)
}

func TestEntityWriter_Error(t *testing.T) {
	runner := &countingRunner{err: errors.New("bolt: connection reset")}
	w := NewEntityWriter(runner, testLogger())

	err := w.WriteClusters(context.Background(), "run", "archive", []models.PersonRecord{{ID: 0}}, []models.Cluster{{0}})
	assert.ErrorContains(t, err, "connection reset")
}
