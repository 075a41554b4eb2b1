//go:build integration

package resolver_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/internal/repositories/linkagerun"
	"github.com/Ramsey-B/fern/internal/repositories/personrecord"
	"github.com/Ramsey-B/fern/internal/testinfra"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/resolver"
	"github.com/Ramsey-B/fern/pkg/runstatus"
)

func person(obj, given, family, dob string) models.Row {
	return models.Row{"lObjId": obj, "lCountId": "1", "strGName": given, "strLName": family, "strDoB": dob}
}

func TestService_StagedDataset(t *testing.T) {
	db := testinfra.Postgres(t)
	redisCfg := testinfra.Redis(t)
	logger := testinfra.Logger()
	ctx := context.Background()

	rdb, err := runstatus.Connect(ctx, redisCfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	rows := personrecord.NewRepository(db, logger)
	require.NoError(t, rows.Replace(ctx, "archive", []models.Row{
		person("1", "Johann", "Müller", "19200101"),
		person("2", "Johann", "Müller", "19200101"),
		person("3", "Anna", "Schmidt", "19150505"),
	}))

	service := resolver.NewService(resolver.DefaultOptions(), resolver.Dependencies{
		Runs:     linkagerun.NewRepository(db, logger),
		Rows:     rows,
		Progress: runstatus.NewStore(rdb, redisCfg, logger),
	}, logger)

	result, err := service.Cluster(ctx, resolver.ClusterRequest{Dataset: "archive"})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 1}, result.Labels)

	status, err := service.Status(ctx, result.RunID)
	require.NoError(t, err)
	require.NotNil(t, status.Run)
	require.NotNil(t, status.Progress)
	assert.Equal(t, models.RunStatusCompleted, status.Run.Status)
	assert.Equal(t, models.RunStatusCompleted, status.Progress.Status)
	assert.Equal(t, 2, status.Run.ResultCount)

	assignments, err := service.Assignments(ctx, result.RunID)
	require.NoError(t, err)
	require.Len(t, assignments, 3)
	assert.Equal(t, assignments[0].EntityID, assignments[1].EntityID)
	assert.NotEqual(t, assignments[0].EntityID, assignments[2].EntityID)
}
