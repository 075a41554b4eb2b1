package linkagerun

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"

	"github.com/Ramsey-B/fern/internal/database"
	"github.com/Ramsey-B/fern/internal/tracing"
	"github.com/Ramsey-B/fern/pkg/models"
)

const batchSize = 1000

var runColumns = []string{"id", "kind", "status", "dataset", "parameters", "record_count", "result_count", "error", "created_at", "completed_at"}

// Repository persists linkage runs and their results
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a linkage run repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// Create inserts a new run
func (r *Repository) Create(ctx context.Context, run *models.LinkageRun) error {
	ctx, span := tracing.StartSpan(ctx, "linkagerun.Repository.Create")
	defer span.End()

	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if run.Parameters == "" {
		run.Parameters = "{}"
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto("linkage_runs")
	ib.Cols(runColumns...)
	ib.Values(run.ID, run.Kind, run.Status, run.Dataset, run.Parameters, run.RecordCount, run.ResultCount, run.Error, run.CreatedAt, run.CompletedAt)

	query, args := ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("run_id", run.ID).Error("Failed to create linkage run")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create linkage run")
	}
	return nil
}

// Finish marks a run completed with resultCount results, or failed when runErr is set
func (r *Repository) Finish(ctx context.Context, id string, resultCount int, runErr error) error {
	ctx, span := tracing.StartSpan(ctx, "linkagerun.Repository.Finish")
	defer span.End()

	status := models.RunStatusCompleted
	var message *string
	if runErr != nil {
		status = models.RunStatusFailed
		msg := runErr.Error()
		message = &msg
	}

	ub := database.NewUpdateBuilder()
	ub.Update("linkage_runs")
	ub.Set(
		ub.Assign("status", status),
		ub.Assign("result_count", resultCount),
		ub.Assign("error", message),
		ub.Assign("completed_at", time.Now().UTC()),
	)
	ub.Where(ub.Equal("id", id))

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("run_id", id).Error("Failed to finish linkage run")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update linkage run")
	}
	return nil
}

// Get returns a run by id
func (r *Repository) Get(ctx context.Context, id string) (*models.LinkageRun, error) {
	ctx, span := tracing.StartSpan(ctx, "linkagerun.Repository.Get")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(runColumns...)
	sb.From("linkage_runs")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var run models.LinkageRun
	if err := r.db.GetContext(ctx, &run, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "linkage run %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithField("run_id", id).Error("Failed to get linkage run")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get linkage run")
	}
	return &run, nil
}

// SaveAssignments stores the entity label of every input row of a clustering run
func (r *Repository) SaveAssignments(ctx context.Context, assignments []models.EntityAssignment) error {
	ctx, span := tracing.StartSpan(ctx, "linkagerun.Repository.SaveAssignments")
	defer span.End()

	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		for start := 0; start < len(assignments); start += batchSize {
			end := min(start+batchSize, len(assignments))

			ib := database.NewInsertBuilder()
			ib.InsertInto("entity_assignments")
			ib.Cols("run_id", "row_index", "row_key", "entity_id")
			for _, a := range assignments[start:end] {
				ib.Values(a.RunID, a.RowIndex, a.RowKey, a.EntityID)
			}
			ib.OnConflictUpdate([]string{"run_id", "row_index"}, "row_key", "entity_id")

			query, args := ib.Build()
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("failed to insert assignments %d-%d: %w", start, end-1, err)
			}
		}
		return nil
	})
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to save entity assignments")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to save entity assignments")
	}

	r.logger.WithContext(ctx).WithField("count", len(assignments)).Debug("Saved entity assignments")
	return nil
}

// SaveMatches stores the match table of a matching run in output order
func (r *Repository) SaveMatches(ctx context.Context, runID string, matches []models.MatchCandidate) error {
	ctx, span := tracing.StartSpan(ctx, "linkagerun.Repository.SaveMatches")
	defer span.End()

	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		for start := 0; start < len(matches); start += batchSize {
			end := min(start+batchSize, len(matches))

			ib := database.NewInsertBuilder()
			ib.InsertInto("match_results")
			ib.Cols("run_id", "position", "source_id", "score", "target_id")
			for i := start; i < end; i++ {
				m := matches[i]
				ib.Values(runID, i, m.SourceID, m.Score, m.TargetID)
			}
			ib.OnConflictDoNothing()

			query, args := ib.Build()
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("failed to insert matches %d-%d: %w", start, end-1, err)
			}
		}
		return nil
	})
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("run_id", runID).Error("Failed to save match results")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to save match results")
	}
	return nil
}

// ListAssignments returns the row assignments of a clustering run ordered by row
func (r *Repository) ListAssignments(ctx context.Context, runID string) ([]models.EntityAssignment, error) {
	ctx, span := tracing.StartSpan(ctx, "linkagerun.Repository.ListAssignments")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("run_id", "row_index", "row_key", "entity_id")
	sb.From("entity_assignments")
	sb.Where(sb.Equal("run_id", runID))
	sb.OrderBy("row_index ASC")

	query, args := sb.Build()
	var assignments []models.EntityAssignment
	if err := r.db.SelectContext(ctx, &assignments, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("run_id", runID).Error("Failed to list entity assignments")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list entity assignments")
	}
	return assignments, nil
}

// ListMatches returns the match table of a matching run in output order
func (r *Repository) ListMatches(ctx context.Context, runID string) ([]models.MatchCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "linkagerun.Repository.ListMatches")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("source_id", "score", "target_id")
	sb.From("match_results")
	sb.Where(sb.Equal("run_id", runID))
	sb.OrderBy("position ASC")

	query, args := sb.Build()
	var matches []models.MatchCandidate
	if err := r.db.SelectContext(ctx, &matches, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("run_id", runID).Error("Failed to list match results")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list match results")
	}
	return matches, nil
}
