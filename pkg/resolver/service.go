// Package resolver runs clustering and matching over raw rows and hands the
// results to the configured stores and publishers.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/internal/tracing"
	"github.com/Ramsey-B/fern/pkg/blocking"
	"github.com/Ramsey-B/fern/pkg/clustering"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/records"
	"github.com/Ramsey-B/fern/pkg/runstatus"
	"github.com/Ramsey-B/fern/pkg/similarity"
)

// RunRepository persists runs and their results
type RunRepository interface {
	Create(ctx context.Context, run *models.LinkageRun) error
	Finish(ctx context.Context, id string, resultCount int, runErr error) error
	Get(ctx context.Context, id string) (*models.LinkageRun, error)
	SaveAssignments(ctx context.Context, assignments []models.EntityAssignment) error
	SaveMatches(ctx context.Context, runID string, matches []models.MatchCandidate) error
	ListAssignments(ctx context.Context, runID string) ([]models.EntityAssignment, error)
	ListMatches(ctx context.Context, runID string) ([]models.MatchCandidate, error)
}

// RowSource loads the staged rows of a dataset
type RowSource interface {
	List(ctx context.Context, dataset string) ([]models.Row, error)
}

// EventPublisher announces resolved entities and found matches
type EventPublisher interface {
	PublishEntitiesResolved(ctx context.Context, events []*kafka.EntityResolvedEvent) error
	PublishMatchesFound(ctx context.Context, events []*kafka.MatchFoundEvent) error
}

// GraphWriter mirrors results into the entity graph
type GraphWriter interface {
	WriteClusters(ctx context.Context, runID, dataset string, records []models.PersonRecord, clusters []models.Cluster) error
	WriteMatches(ctx context.Context, runID, sourceDataset, targetDataset string, matches []models.MatchCandidate) error
}

// Dependencies are the optional collaborators of a Service. Nil members are skipped.
type Dependencies struct {
	Runs     RunRepository
	Rows     RowSource
	Events   EventPublisher
	Graph    GraphWriter
	Progress *runstatus.Store
}

// Options are the service-wide defaults of every run
type Options struct {
	Columns          records.Columns
	Similarity       similarity.Options
	Clustering       clustering.Config
	Blocking         blocking.Options
	Matching         matching.Config
	ProgressInterval time.Duration
}

// DefaultOptions returns the default columns and engine settings
func DefaultOptions() Options {
	return Options{
		Columns:          records.DefaultColumns(),
		Similarity:       similarity.DefaultOptions(),
		Clustering:       clustering.DefaultConfig(),
		Blocking:         blocking.DefaultOptions(),
		Matching:         matching.DefaultConfig(),
		ProgressInterval: time.Second,
	}
}

// Service orchestrates linkage runs
type Service struct {
	opts   Options
	deps   Dependencies
	logger ectologger.Logger
	newID  func() string
}

func NewService(opts Options, deps Dependencies, logger ectologger.Logger) *Service {
	return &Service{
		opts:   opts,
		deps:   deps,
		logger: logger,
		newID:  func() string { return uuid.New().String() },
	}
}

// Options returns the service defaults
func (s *Service) Options() Options {
	return s.opts
}

// ClusterRequest asks for one clustering run. Rows take precedence over Dataset;
// when Rows is empty the dataset's staged rows are loaded.
type ClusterRequest struct {
	Dataset    string
	Rows       []models.Row
	Columns    *records.Columns
	Similarity *similarity.Options
	Clustering *clustering.Config
	Blocking   *blocking.Options
}

// MatchRequest asks for one matching run of sources against targets
type MatchRequest struct {
	SourceDataset string
	TargetDataset string
	Sources       []models.Row
	Targets       []models.Row
	Columns       *records.Columns
	Similarity    *similarity.Options
	Matching      *matching.Config
}

// RunStatus combines the stored run with its live progress
type RunStatus struct {
	Run      *models.LinkageRun  `json:"run,omitempty"`
	Progress *models.RunProgress `json:"progress,omitempty"`
}

// Cluster resolves the rows of one dataset into entities. Labels in the result are
// per input row; clusters hold record ids after row grouping.
func (s *Service) Cluster(ctx context.Context, req ClusterRequest) (*models.ClusterResult, error) {
	ctx, span := tracing.StartSpan(ctx, "resolver.Service.Cluster")
	defer span.End()

	rows, err := s.rows(ctx, req.Dataset, req.Rows)
	if err != nil {
		return nil, err
	}
	set, err := records.Build(rows, pick(req.Columns, s.opts.Columns))
	if err != nil {
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid rows: %s", err.Error())
	}

	simOpts := pick(req.Similarity, s.opts.Similarity)
	clusterCfg := pick(req.Clustering, s.opts.Clustering)
	blockOpts := pick(req.Blocking, s.opts.Blocking)
	if blockOpts.Workers == 0 {
		blockOpts.Workers = clusterCfg.Workers
	}

	scorer, err := similarity.NewScorer(simOpts)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	engine, err := clustering.NewEngine(clusterCfg, scorer, s.logger)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	run := &models.LinkageRun{
		ID:          s.newID(),
		Kind:        models.RunKindClustering,
		Status:      models.RunStatusRunning,
		Dataset:     req.Dataset,
		Parameters:  parameters(map[string]any{"similarity": simOpts, "linkage": clusterCfg.Linkage.String(), "cutoff": clusterCfg.Cutoff, "iteration": clusterCfg.Iteration.String(), "allow_known_cluster_merge": clusterCfg.AllowKnownClusterMerge, "blocking": blockOpts}),
		RecordCount: len(set.Records),
	}

	result := &models.ClusterResult{RunID: run.ID}
	err = s.execute(ctx, run, len(set.Records), func(ctx context.Context, progress func(processed, total int) error) (int, error) {
		blocker, err := blocking.NewBlocker(ctx, set.Records, blockOpts)
		if err != nil {
			return 0, err
		}

		clusters, err := engine.Cluster(ctx, set.Records, blocker, set.Known, progress)
		if err != nil {
			return 0, err
		}
		if err := clustering.VerifyPartition(len(set.Records), clusters); err != nil {
			return 0, err
		}

		labels, err := set.RowLabels(clustering.Labels(len(set.Records), clusters))
		if err != nil {
			return 0, err
		}
		result.Labels = labels
		result.Clusters = clusters

		if err := s.publishClusters(ctx, run, set, clusters); err != nil {
			return 0, err
		}
		for _, c := range clusters {
			metrics.RecordCluster(len(c))
		}
		return len(clusters), nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Match ranks target records for every source record
func (s *Service) Match(ctx context.Context, req MatchRequest) (*models.MatchResult, error) {
	ctx, span := tracing.StartSpan(ctx, "resolver.Service.Match")
	defer span.End()

	sourceRows, err := s.rows(ctx, req.SourceDataset, req.Sources)
	if err != nil {
		return nil, err
	}
	targetRows, err := s.rows(ctx, req.TargetDataset, req.Targets)
	if err != nil {
		return nil, err
	}

	cols := pick(req.Columns, s.opts.Columns)
	sources, err := records.Build(sourceRows, cols)
	if err != nil {
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid source rows: %s", err.Error())
	}
	targets, err := records.Build(targetRows, cols)
	if err != nil {
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid target rows: %s", err.Error())
	}

	simOpts := pick(req.Similarity, s.opts.Similarity)
	matchCfg := pick(req.Matching, s.opts.Matching)

	scorer, err := similarity.NewScorer(simOpts)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	engine, err := matching.NewEngine(matchCfg, scorer, s.logger)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	run := &models.LinkageRun{
		ID:          s.newID(),
		Kind:        models.RunKindMatching,
		Status:      models.RunStatusRunning,
		Dataset:     req.SourceDataset,
		Parameters:  parameters(map[string]any{"similarity": simOpts, "top_n": matchCfg.TopN, "min_score": matchCfg.MinScore, "allow_duplicate_targets": matchCfg.AllowDuplicateTargets, "blocking": matchCfg.Blocking, "target_dataset": req.TargetDataset}),
		RecordCount: len(sources.Records),
	}

	result := &models.MatchResult{RunID: run.ID}
	err = s.execute(ctx, run, len(sources.Records), func(ctx context.Context, progress func(processed, total int) error) (int, error) {
		matches, err := engine.Match(ctx, sources.Records, targets.Records, progress)
		if err != nil {
			return 0, err
		}
		result.Matches = matches

		if err := s.publishMatches(ctx, run, req, matches); err != nil {
			return 0, err
		}
		for _, m := range matches {
			metrics.RecordMatch(m.Matched())
		}
		return len(matches), nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Status returns the stored run and its live progress
func (s *Service) Status(ctx context.Context, id string) (*RunStatus, error) {
	ctx, span := tracing.StartSpan(ctx, "resolver.Service.Status")
	defer span.End()

	status := &RunStatus{}
	if s.deps.Runs != nil {
		run, err := s.deps.Runs.Get(ctx, id)
		if err != nil && httperror.GetStatusCode(err) != http.StatusNotFound {
			return nil, err
		}
		status.Run = run
	}
	if s.deps.Progress != nil {
		progress, err := s.deps.Progress.Get(ctx, id)
		if err != nil && !errors.Is(err, runstatus.ErrNotFound) {
			s.logger.WithContext(ctx).WithError(err).WithField("run_id", id).Error("Failed to read run progress")
		}
		status.Progress = progress
	}

	if status.Run == nil && status.Progress == nil {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "linkage run %s not found", id)
	}
	return status, nil
}

// Assignments returns the stored row assignments of a completed clustering run
func (s *Service) Assignments(ctx context.Context, id string) ([]models.EntityAssignment, error) {
	ctx, span := tracing.StartSpan(ctx, "resolver.Service.Assignments")
	defer span.End()

	if _, err := s.completedRun(ctx, id, models.RunKindClustering); err != nil {
		return nil, err
	}
	return s.deps.Runs.ListAssignments(ctx, id)
}

// Matches returns the stored match table of a completed matching run
func (s *Service) Matches(ctx context.Context, id string) ([]models.MatchCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "resolver.Service.Matches")
	defer span.End()

	if _, err := s.completedRun(ctx, id, models.RunKindMatching); err != nil {
		return nil, err
	}
	return s.deps.Runs.ListMatches(ctx, id)
}

func (s *Service) completedRun(ctx context.Context, id string, kind models.RunKind) (*models.LinkageRun, error) {
	if s.deps.Runs == nil {
		return nil, httperror.NewHTTPError(http.StatusNotImplemented, "run results are not stored")
	}
	run, err := s.deps.Runs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if run.Kind != kind {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "linkage run %s is not a %s run", id, kind)
	}
	if run.Status != models.RunStatusCompleted {
		return nil, httperror.NewHTTPErrorf(http.StatusConflict, "linkage run %s is %s", id, run.Status)
	}
	return run, nil
}

type runFunc func(ctx context.Context, progress func(processed, total int) error) (int, error)

// execute records the run lifecycle around fn: run row, progress, metrics and the final status
func (s *Service) execute(ctx context.Context, run *models.LinkageRun, total int, fn runFunc) error {
	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"run_id":  run.ID,
		"kind":    run.Kind,
		"records": total,
	})
	started := time.Now()

	if s.deps.Runs != nil {
		if err := s.deps.Runs.Create(ctx, run); err != nil {
			return err
		}
	}

	var tracker *runstatus.Tracker
	if s.deps.Progress != nil {
		t, err := s.deps.Progress.Track(ctx, run.ID, run.Kind, total, s.opts.ProgressInterval)
		if err != nil {
			log.WithError(err).Error("Failed to start progress tracking")
		} else {
			tracker = t
		}
	}

	progress := func(processed, total int) error {
		if tracker == nil {
			return nil
		}
		if err := tracker.Report(ctx, processed, total); err != nil {
			log.WithError(err).Debug("Failed to report progress")
		}
		return nil
	}

	log.Info("Starting linkage run")
	resultCount, runErr := fn(ctx, progress)

	status := models.RunStatusCompleted
	if runErr != nil {
		status = models.RunStatusFailed
	}
	metrics.RecordRun(string(run.Kind), string(status), total, time.Since(started).Seconds())

	if tracker != nil {
		if err := tracker.Finish(ctx, runErr); err != nil {
			log.WithError(err).Error("Failed to store final progress")
		}
	}
	if s.deps.Runs != nil {
		if err := s.deps.Runs.Finish(context.WithoutCancel(ctx), run.ID, resultCount, runErr); err != nil && runErr == nil {
			return err
		}
	}

	if runErr != nil {
		log.WithError(runErr).Error("Linkage run failed")
		return runError(runErr)
	}

	log.WithFields(map[string]any{
		"results":     resultCount,
		"duration_ms": time.Since(started).Milliseconds(),
	}).Info("Linkage run complete")
	return nil
}

func (s *Service) publishClusters(ctx context.Context, run *models.LinkageRun, set *records.Set, clusters []models.Cluster) error {
	if s.deps.Runs != nil {
		assignments, err := set.Assignments(run.ID, clustering.Labels(len(set.Records), clusters))
		if err != nil {
			return err
		}
		if err := s.deps.Runs.SaveAssignments(ctx, assignments); err != nil {
			return err
		}
	}

	if s.deps.Events != nil {
		events := make([]*kafka.EntityResolvedEvent, len(clusters))
		for label, c := range clusters {
			events[label] = &kafka.EntityResolvedEvent{
				RunID:     run.ID,
				EntityID:  label,
				RecordIDs: c,
				RowKeys:   ectolinq.Map(c, func(id int) string { return set.GroupKeys[id] }),
			}
		}
		if err := s.deps.Events.PublishEntitiesResolved(ctx, events); err != nil {
			return err
		}
	}

	if s.deps.Graph != nil {
		if err := s.deps.Graph.WriteClusters(ctx, run.ID, run.Dataset, set.Records, clusters); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) publishMatches(ctx context.Context, run *models.LinkageRun, req MatchRequest, matches []models.MatchCandidate) error {
	if s.deps.Runs != nil {
		if err := s.deps.Runs.SaveMatches(ctx, run.ID, matches); err != nil {
			return err
		}
	}

	if s.deps.Events != nil {
		found := ectolinq.Filter(matches, func(m models.MatchCandidate) bool { return m.Matched() })
		events := ectolinq.Map(found, func(m models.MatchCandidate) *kafka.MatchFoundEvent {
			return &kafka.MatchFoundEvent{RunID: run.ID, SourceID: m.SourceID, TargetID: m.TargetID, Score: m.Score}
		})
		if err := s.deps.Events.PublishMatchesFound(ctx, events); err != nil {
			return err
		}
	}

	if s.deps.Graph != nil {
		if err := s.deps.Graph.WriteMatches(ctx, run.ID, req.SourceDataset, req.TargetDataset, matches); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) rows(ctx context.Context, dataset string, rows []models.Row) ([]models.Row, error) {
	if len(rows) > 0 {
		return rows, nil
	}
	if dataset == "" {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "rows or a dataset name are required")
	}
	if s.deps.Rows == nil {
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "dataset %s cannot be loaded without a record store", dataset)
	}
	return s.deps.Rows.List(ctx, dataset)
}

// runError keeps HTTP errors from sinks and maps engine errors to a status
func runError(err error) error {
	if httperror.IsHTTPError(err) {
		return err
	}

	var invariant *clustering.InvariantViolation
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return httperror.NewHTTPErrorf(http.StatusServiceUnavailable, "linkage run cancelled: %s", err.Error())
	case errors.Is(err, models.ErrRecordIDMismatch),
		errors.Is(err, models.ErrKnownClusterAsymmetric),
		errors.Is(err, models.ErrKnownClusterOutOfRange):
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.As(err, &invariant):
		return httperror.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return fmt.Errorf("linkage run failed: %w", err)
}

func pick[T any](override *T, fallback T) T {
	if override != nil {
		return *override
	}
	return fallback
}

func parameters(values map[string]any) string {
	data, err := json.Marshal(values)
	if err != nil {
		return "{}"
	}
	return string(data)
}
