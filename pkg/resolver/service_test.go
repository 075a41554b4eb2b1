package resolver

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/runstatus"
)

type fakeRuns struct {
	runs        map[string]*models.LinkageRun
	finished    map[string]error
	assignments []models.EntityAssignment
	matches     []models.MatchCandidate
	saveErr     error
}

func newFakeRuns() *fakeRuns {
	return &fakeRuns{runs: map[string]*models.LinkageRun{}, finished: map[string]error{}}
}

func (f *fakeRuns) Create(_ context.Context, run *models.LinkageRun) error {
	copied := *run
	f.runs[run.ID] = &copied
	return nil
}

func (f *fakeRuns) Finish(_ context.Context, id string, resultCount int, runErr error) error {
	f.finished[id] = runErr
	f.runs[id].ResultCount = resultCount
	f.runs[id].Status = models.RunStatusCompleted
	if runErr != nil {
		f.runs[id].Status = models.RunStatusFailed
	}
	return nil
}

func (f *fakeRuns) Get(_ context.Context, id string) (*models.LinkageRun, error) {
	run, ok := f.runs[id]
	if !ok {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "linkage run %s not found", id)
	}
	return run, nil
}

func (f *fakeRuns) SaveAssignments(_ context.Context, assignments []models.EntityAssignment) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.assignments = append(f.assignments, assignments...)
	return nil
}

func (f *fakeRuns) SaveMatches(_ context.Context, _ string, matches []models.MatchCandidate) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.matches = append(f.matches, matches...)
	return nil
}

func (f *fakeRuns) ListAssignments(_ context.Context, runID string) ([]models.EntityAssignment, error) {
	return ectolinq.Filter(f.assignments, func(a models.EntityAssignment) bool { return a.RunID == runID }), nil
}

func (f *fakeRuns) ListMatches(_ context.Context, _ string) ([]models.MatchCandidate, error) {
	return f.matches, nil
}

type fakeRows map[string][]models.Row

func (f fakeRows) List(_ context.Context, dataset string) ([]models.Row, error) {
	rows, ok := f[dataset]
	if !ok {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "dataset %s not found", dataset)
	}
	return rows, nil
}

type fakeEvents struct {
	resolved []*kafka.EntityResolvedEvent
	found    []*kafka.MatchFoundEvent
}

func (f *fakeEvents) PublishEntitiesResolved(_ context.Context, events []*kafka.EntityResolvedEvent) error {
	f.resolved = append(f.resolved, events...)
	return nil
}

func (f *fakeEvents) PublishMatchesFound(_ context.Context, events []*kafka.MatchFoundEvent) error {
	f.found = append(f.found, events...)
	return nil
}

type fakeGraph struct {
	clusters []models.Cluster
	matches  []models.MatchCandidate
}

func (f *fakeGraph) WriteClusters(_ context.Context, _, _ string, _ []models.PersonRecord, clusters []models.Cluster) error {
	f.clusters = clusters
	return nil
}

func (f *fakeGraph) WriteMatches(_ context.Context, _, _, _ string, matches []models.MatchCandidate) error {
	f.matches = matches
	return nil
}

type memoryBackend struct {
	mu     sync.Mutex
	values map[string]string
}

func (m *memoryBackend) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = string(value.([]byte))
	return redis.NewStatusResult("OK", nil)
}

func (m *memoryBackend) Get(_ context.Context, key string) *redis.StringCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func row(obj, given, family, dob string) models.Row {
	return models.Row{
		"lObjId":   obj,
		"lCountId": "1",
		"strGName": given,
		"strLName": family,
		"strDoB":   dob,
	}
}

func archiveRows() []models.Row {
	return []models.Row{
		row("1", "Johann", "Müller", "19200101"),
		row("2", "Johann", "Müller", "19200101"),
		row("3", "Anna", "Schmidt", "19150505"),
		row("1", "Johann", "Müller", ""),
	}
}

type harness struct {
	service *Service
	runs    *fakeRuns
	events  *fakeEvents
	graph   *fakeGraph
	store   *runstatus.Store
}

func newHarness(rows fakeRows) *harness {
	h := &harness{
		runs:   newFakeRuns(),
		events: &fakeEvents{},
		graph:  &fakeGraph{},
		store:  runstatus.NewStore(&memoryBackend{values: map[string]string{}}, runstatus.Config{}, testLogger()),
	}
	h.service = NewService(DefaultOptions(), Dependencies{
		Runs:     h.runs,
		Rows:     rows,
		Events:   h.events,
		Graph:    h.graph,
		Progress: h.store,
	}, testLogger())
	h.service.newID = func() string { return "run-1" }
	return h
}

func TestService_Cluster(t *testing.T) {
	h := newHarness(nil)
	ctx := context.Background()

	result, err := h.service.Cluster(ctx, ClusterRequest{Dataset: "archive", Rows: archiveRows()})
	require.NoError(t, err)

	assert.Equal(t, "run-1", result.RunID)
	assert.Equal(t, []int{0, 0, 1, 0}, result.Labels)
	require.Len(t, result.Clusters, 2)
	assert.ElementsMatch(t, []int{0, 1}, []int(result.Clusters[0]))
	assert.Equal(t, models.Cluster{2}, result.Clusters[1])

	require.Len(t, h.runs.assignments, 4)
	assert.Equal(t, 0, h.runs.assignments[3].EntityID)
	assert.Equal(t, "1|1", h.runs.assignments[3].RowKey)
	assert.NoError(t, h.runs.finished["run-1"])
	assert.Equal(t, 2, h.runs.runs["run-1"].ResultCount)
	assert.Equal(t, 3, h.runs.runs["run-1"].RecordCount)

	require.Len(t, h.events.resolved, 2)
	assert.Equal(t, []string{"3|1"}, h.events.resolved[1].RowKeys)
	assert.Len(t, h.graph.clusters, 2)

	status, err := h.service.Status(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, status.Run.Status)
	require.NotNil(t, status.Progress)
	assert.Equal(t, models.RunStatusCompleted, status.Progress.Status)
	assert.Equal(t, 3, status.Progress.Processed)
}

func TestService_ClusterLoadsDataset(t *testing.T) {
	h := newHarness(fakeRows{"archive": archiveRows()})

	result, err := h.service.Cluster(context.Background(), ClusterRequest{Dataset: "archive"})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 1, 0}, result.Labels)

	_, err = h.service.Cluster(context.Background(), ClusterRequest{Dataset: "missing"})
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
}

func TestService_ClusterWithoutStores(t *testing.T) {
	service := NewService(DefaultOptions(), Dependencies{}, testLogger())

	result, err := service.Cluster(context.Background(), ClusterRequest{Rows: archiveRows()})
	require.NoError(t, err)
	assert.Len(t, result.Clusters, 2)

	_, err = service.Cluster(context.Background(), ClusterRequest{Dataset: "archive"})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))

	_, err = service.Status(context.Background(), "run-1")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
}

func TestService_ClusterRejectsBadOptions(t *testing.T) {
	service := NewService(DefaultOptions(), Dependencies{}, testLogger())

	cfg := service.Options().Clustering
	cfg.Cutoff = 120
	_, err := service.Cluster(context.Background(), ClusterRequest{Rows: archiveRows(), Clustering: &cfg})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
}

func TestService_ClusterSinkFailure(t *testing.T) {
	h := newHarness(nil)
	h.runs.saveErr = errors.New("disk full")

	_, err := h.service.Cluster(context.Background(), ClusterRequest{Rows: archiveRows()})
	require.Error(t, err)
	assert.ErrorContains(t, err, "disk full")
	assert.Equal(t, models.RunStatusFailed, h.runs.runs["run-1"].Status)
	assert.Error(t, h.runs.finished["run-1"])
}

func TestService_Match(t *testing.T) {
	h := newHarness(nil)

	result, err := h.service.Match(context.Background(), MatchRequest{
		SourceDataset: "arrivals",
		TargetDataset: "archive",
		Sources: []models.Row{
			row("10", "Johann", "Müller", "19200101"),
			row("11", "Zbigniew", "Wrobel", "19011111"),
		},
		Targets: []models.Row{
			row("1", "Anna", "Schmidt", "19150505"),
			row("2", "Johann", "Müller", "19200101"),
		},
	})
	require.NoError(t, err)

	require.Len(t, result.Matches, 2)
	assert.Equal(t, 0, result.Matches[0].SourceID)
	assert.Equal(t, 1, result.Matches[0].TargetID)
	assert.InDelta(t, 100, result.Matches[0].Score, 1e-9)
	assert.Equal(t, models.NoMatchFor(1), result.Matches[1])

	assert.Len(t, h.runs.matches, 2)
	require.Len(t, h.events.found, 1)
	assert.Equal(t, 1, h.events.found[0].TargetID)
	assert.Len(t, h.graph.matches, 2)
	assert.Equal(t, 2, h.runs.runs["run-1"].ResultCount)
}

func TestService_Results(t *testing.T) {
	h := newHarness(nil)
	ctx := context.Background()

	_, err := h.service.Cluster(ctx, ClusterRequest{Rows: archiveRows()})
	require.NoError(t, err)

	assignments, err := h.service.Assignments(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, assignments, 4)

	_, err = h.service.Matches(ctx, "run-1")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))

	_, err = h.service.Assignments(ctx, "other")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))

	h.runs.runs["run-1"].Status = models.RunStatusRunning
	_, err = h.service.Assignments(ctx, "run-1")
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))
}
