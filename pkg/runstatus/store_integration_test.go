//go:build integration

package runstatus_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/internal/testinfra"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/runstatus"
)

func TestStore_Redis(t *testing.T) {
	cfg := testinfra.Redis(t)
	cfg.TTL = time.Minute
	ctx := context.Background()

	rdb, err := runstatus.Connect(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	store := runstatus.NewStore(rdb, cfg, testinfra.Logger())

	tracker, err := store.Track(ctx, "run-1", models.RunKindClustering, 10, time.Hour)
	require.NoError(t, err)
	require.NoError(t, tracker.Report(ctx, 10, 10))

	got, err := store.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 10, got.Processed)
	assert.Equal(t, models.RunStatusRunning, got.Status)

	require.NoError(t, tracker.Finish(ctx, errors.New("boom")))
	got, err = store.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, got.Status)
	assert.Equal(t, "boom", got.Error)

	ttl, err := rdb.TTL(ctx, runstatus.DefaultKeyPrefix+"run-1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	_, err = store.Get(ctx, "run-2")
	assert.ErrorIs(t, err, runstatus.ErrNotFound)
}
