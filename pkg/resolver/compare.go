package resolver

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"

	"github.com/Ramsey-B/fern/internal/tracing"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/records"
	"github.com/Ramsey-B/fern/pkg/similarity"
)

// CompareRequest scores one row against another
type CompareRequest struct {
	A          models.Row
	B          models.Row
	Columns    *records.Columns
	Similarity *similarity.Options
}

// Comparison holds both normalized records and every component of their score
type Comparison struct {
	A         models.PersonRecord  `json:"a"`
	B         models.PersonRecord  `json:"b"`
	Breakdown similarity.Breakdown `json:"breakdown"`
}

// Compare normalizes two rows and scores them. No run is recorded.
func (s *Service) Compare(ctx context.Context, req CompareRequest) (*Comparison, error) {
	_, span := tracing.StartSpan(ctx, "resolver.Service.Compare")
	defer span.End()

	cols := pick(req.Columns, s.opts.Columns)
	a, err := single(req.A, cols)
	if err != nil {
		return nil, err
	}
	b, err := single(req.B, cols)
	if err != nil {
		return nil, err
	}

	scorer, err := similarity.NewScorer(pick(req.Similarity, s.opts.Similarity))
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return &Comparison{A: a, B: b, Breakdown: scorer.Compare(a, b)}, nil
}

func single(row models.Row, cols records.Columns) (models.PersonRecord, error) {
	set, err := records.Build([]models.Row{row}, cols)
	if err != nil {
		return models.PersonRecord{}, httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid row: %s", err.Error())
	}
	return set.Records[0], nil
}
