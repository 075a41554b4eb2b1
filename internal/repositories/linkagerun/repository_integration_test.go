//go:build integration

package linkagerun

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/internal/testinfra"
	"github.com/Ramsey-B/fern/pkg/models"
)

func TestRepository_RunLifecycle(t *testing.T) {
	db := testinfra.Postgres(t)
	repo := NewRepository(db, testinfra.Logger())
	ctx := context.Background()

	run := &models.LinkageRun{
		ID:          uuid.NewString(),
		Kind:        models.RunKindClustering,
		Status:      models.RunStatusRunning,
		Dataset:     "archive",
		RecordCount: 3,
	}
	require.NoError(t, repo.Create(ctx, run))

	got, err := repo.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusRunning, got.Status)
	assert.Nil(t, got.CompletedAt)

	assignments := []models.EntityAssignment{
		{RunID: run.ID, RowIndex: 1, RowKey: "2|1", EntityID: 0},
		{RunID: run.ID, RowIndex: 0, RowKey: "1|1", EntityID: 0},
		{RunID: run.ID, RowIndex: 2, RowKey: "3|1", EntityID: 1},
	}
	require.NoError(t, repo.SaveAssignments(ctx, assignments))
	require.NoError(t, repo.Finish(ctx, run.ID, 2, nil))

	got, err = repo.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, got.Status)
	assert.Equal(t, 2, got.ResultCount)
	assert.NotNil(t, got.CompletedAt)

	stored, err := repo.ListAssignments(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, stored, 3)
	for i, a := range stored {
		assert.Equal(t, i, a.RowIndex)
	}
	assert.Equal(t, "1|1", stored[0].RowKey)
}

func TestRepository_Matches(t *testing.T) {
	db := testinfra.Postgres(t)
	repo := NewRepository(db, testinfra.Logger())
	ctx := context.Background()

	run := &models.LinkageRun{ID: uuid.NewString(), Kind: models.RunKindMatching, Status: models.RunStatusRunning}
	require.NoError(t, repo.Create(ctx, run))

	matches := []models.MatchCandidate{
		{SourceID: 0, TargetID: 4, Score: 97.5},
		models.NoMatchFor(1),
	}
	require.NoError(t, repo.SaveMatches(ctx, run.ID, matches))
	require.NoError(t, repo.Finish(ctx, run.ID, 1, errors.New("graph unavailable")))

	got, err := repo.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, "graph unavailable", *got.Error)

	stored, err := repo.ListMatches(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, matches, stored)
}

func TestRepository_GetUnknownRun(t *testing.T) {
	db := testinfra.Postgres(t)
	repo := NewRepository(db, testinfra.Logger())

	_, err := repo.Get(context.Background(), uuid.NewString())
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
}
