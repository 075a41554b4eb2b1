package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/clustering"
	"github.com/Ramsey-B/fern/pkg/similarity"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "fern-api", cfg.AppName)
	assert.Equal(t, "max", cfg.ClusterLinkage)
	assert.Equal(t, 90.0, cfg.ClusterCutoff)
	assert.Equal(t, []string{"lObjId", "lCountId"}, cfg.GroupByCols)
	assert.Equal(t, time.Second, cfg.ProgressInterval)

	opts, err := cfg.ResolverOptions()
	require.NoError(t, err)
	assert.Equal(t, clustering.LinkageMax, opts.Clustering.Linkage)
	assert.Equal(t, clustering.IterationFast, opts.Clustering.Iteration)
	assert.Equal(t, 4, opts.Blocking.PrefixLen)
	assert.Equal(t, 2, opts.Blocking.BandDivisor)
	assert.Equal(t, 1, opts.Matching.TopN)
	assert.Equal(t, 80.0, opts.Matching.MinScore)
	assert.True(t, opts.Matching.AllowDuplicateTargets)
	assert.Equal(t, 2, opts.Matching.Blocking.PrefixLen)
	assert.Equal(t, 4, opts.Matching.Blocking.BandDivisor)
	assert.Equal(t, similarity.DateMatcherGraded, opts.Similarity.DateMatcher)
	assert.True(t, opts.Similarity.NonNamesOptional)
	assert.Equal(t, "strGName", opts.Columns.GivenName)
}

func TestLoad_EnvFileAndOverrides(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("CLUSTER_LINKAGE=average\nMATCH_TOP_N=3\n"), 0o600))
	t.Setenv("CLUSTER_ITERATION", "exhaustive")
	t.Setenv("GROUP_BY_COLS", "doc, page")
	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "authorization=Bearer x, tenant = a")
	t.Cleanup(func() {
		os.Unsetenv("CLUSTER_LINKAGE")
		os.Unsetenv("MATCH_TOP_N")
	})

	cfg, err := Load(envFile)
	require.NoError(t, err)

	opts, err := cfg.ResolverOptions()
	require.NoError(t, err)
	assert.Equal(t, clustering.LinkageAverage, opts.Clustering.Linkage)
	assert.Equal(t, clustering.IterationExhaustive, opts.Clustering.Iteration)
	assert.Equal(t, 3, opts.Matching.TopN)
	assert.Equal(t, []string{"doc", "page"}, opts.Columns.GroupBy)
	assert.Equal(t, map[string]string{"authorization": "Bearer x", "tenant": "a"}, cfg.Tracing().OTLP.Headers)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "linkage", key: "CLUSTER_LINKAGE", value: "complete"},
		{name: "cutoff", key: "CLUSTER_CUTOFF", value: "120"},
		{name: "top n", key: "MATCH_TOP_N", value: "0"},
		{name: "date matcher", key: "DATE_MATCHER", value: "exact"},
		{name: "prefix", key: "BLOCK_PREFIX_LEN", value: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
			assert.Error(t, err)
		})
	}
}
