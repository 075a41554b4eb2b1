package personrecord

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"

	"github.com/Ramsey-B/fern/internal/database"
	"github.com/Ramsey-B/fern/internal/tracing"
	"github.com/Ramsey-B/fern/pkg/models"
)

// batchSize keeps each insert well below the Postgres bind parameter limit
const batchSize = 1000

type storedRow struct {
	RowIndex int    `db:"row_index"`
	Data     []byte `db:"data"`
}

// Repository stages raw person rows per dataset
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a person record repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// Replace stores rows as the full content of dataset, dropping any previous rows
func (r *Repository) Replace(ctx context.Context, dataset string, rows []models.Row) error {
	ctx, span := tracing.StartSpan(ctx, "personrecord.Repository.Replace")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{"dataset": dataset, "rows": len(rows)})

	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		del := database.NewDeleteBuilder()
		del.DeleteFrom("person_records")
		del.Where(del.Equal("dataset", dataset))
		query, args := del.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to clear dataset: %w", err)
		}

		for start := 0; start < len(rows); start += batchSize {
			end := min(start+batchSize, len(rows))

			ib := database.NewInsertBuilder()
			ib.InsertInto("person_records")
			ib.Cols("dataset", "row_index", "data")
			for i := start; i < end; i++ {
				data, err := json.Marshal(rows[i])
				if err != nil {
					return fmt.Errorf("failed to encode row %d: %w", i, err)
				}
				ib.Values(dataset, i, data)
			}

			query, args := ib.Build()
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("failed to insert rows %d-%d: %w", start, end-1, err)
			}
		}
		return nil
	})
	if err != nil {
		log.WithError(err).Error("Failed to store person records")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to store person records")
	}

	log.Debug("Stored person records")
	return nil
}

// List returns the rows of dataset in their original order
func (r *Repository) List(ctx context.Context, dataset string) ([]models.Row, error) {
	ctx, span := tracing.StartSpan(ctx, "personrecord.Repository.List")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("row_index", "data")
	sb.From("person_records")
	sb.Where(sb.Equal("dataset", dataset))
	sb.OrderBy("row_index ASC")

	query, args := sb.Build()
	var stored []storedRow
	if err := r.db.SelectContext(ctx, &stored, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("dataset", dataset).Error("Failed to list person records")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list person records")
	}

	if len(stored) == 0 {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "dataset %s not found", dataset)
	}

	rows := make([]models.Row, len(stored))
	for i, s := range stored {
		if err := json.Unmarshal(s.Data, &rows[i]); err != nil {
			return nil, fmt.Errorf("failed to decode row %d of %s: %w", s.RowIndex, dataset, err)
		}
	}
	return rows, nil
}
