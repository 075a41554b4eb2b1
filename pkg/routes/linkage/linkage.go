package linkage

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/internal/tracing"
	"github.com/Ramsey-B/fern/pkg/clustering"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/resolver"
	"github.com/Ramsey-B/fern/pkg/similarity"
)

var validate = validator.New()

// ScoringOptions override the service's similarity and blocking defaults
type ScoringOptions struct {
	NameOnly         *bool  `json:"name_only"`
	NonNamesOptional *bool  `json:"non_names_optional"`
	DateMatcher      string `json:"date_matcher" validate:"omitempty,oneof=graded parts"`
	BlockPrefixLen   *int   `json:"block_prefix_len" validate:"omitempty,min=1"`
	BlockBandDivisor *int   `json:"block_band_divisor" validate:"omitempty,min=1"`
}

type ClusterOptions struct {
	ScoringOptions
	Linkage                string   `json:"linkage" validate:"omitempty,oneof=single average max"`
	Cutoff                 *float64 `json:"cutoff" validate:"omitempty,min=0,max=100"`
	Iteration              string   `json:"iteration" validate:"omitempty,oneof=fast exhaustive"`
	AllowKnownClusterMerge *bool    `json:"allow_known_cluster_merge"`
}

type ClusterRequest struct {
	Dataset string           `json:"dataset"`
	Rows    []map[string]any `json:"rows" validate:"required_without=Dataset"`
	Options *ClusterOptions  `json:"options"`
}

type MatchOptions struct {
	ScoringOptions
	TopN                  *int     `json:"top_n" validate:"omitempty,min=1"`
	MinScore              *float64 `json:"min_score" validate:"omitempty,min=0,max=100"`
	AllowDuplicateTargets *bool    `json:"allow_duplicate_targets"`
}

type MatchRequest struct {
	SourceDataset string           `json:"source_dataset"`
	TargetDataset string           `json:"target_dataset"`
	Sources       []map[string]any `json:"sources" validate:"required_without=SourceDataset"`
	Targets       []map[string]any `json:"targets" validate:"required_without=TargetDataset"`
	Options       *MatchOptions    `json:"options"`
}

type CompareRequest struct {
	A       map[string]any  `json:"a" validate:"required"`
	B       map[string]any  `json:"b" validate:"required"`
	Options *ScoringOptions `json:"options"`
}

// Register registers linkage routes
func Register(g *echo.Group) {
	g.POST("/clusterings", Cluster)
	g.POST("/matchings", Match)
	g.POST("/comparisons", Compare)
	g.GET("/runs/:id", GetRun)
	g.GET("/runs/:id/assignments", GetAssignments)
	g.GET("/runs/:id/matches", GetMatches)
}

// Cluster runs clustering over the posted rows or a staged dataset
func Cluster(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "linkage_handler.Cluster")
	defer span.End()

	ctx, service, err := ectoinject.GetContext[*resolver.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	var req ClusterRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	run := resolver.ClusterRequest{Dataset: req.Dataset, Rows: toRows(req.Rows)}
	if req.Options != nil {
		defaults := service.Options()

		cfg := defaults.Clustering
		if req.Options.Linkage != "" {
			linkage, err := clustering.ParseLinkage(req.Options.Linkage)
			if err != nil {
				return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
			}
			cfg.Linkage = linkage
		}
		if req.Options.Iteration != "" {
			iteration, err := clustering.ParseIteration(req.Options.Iteration)
			if err != nil {
				return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
			}
			cfg.Iteration = iteration
		}
		if req.Options.Cutoff != nil {
			cfg.Cutoff = *req.Options.Cutoff
		}
		if req.Options.AllowKnownClusterMerge != nil {
			cfg.AllowKnownClusterMerge = *req.Options.AllowKnownClusterMerge
		}
		run.Clustering = &cfg

		simOpts := req.Options.similarity(defaults.Similarity)
		run.Similarity = &simOpts

		blockOpts := defaults.Blocking
		req.Options.applyBlocking(&blockOpts.PrefixLen, &blockOpts.BandDivisor)
		run.Blocking = &blockOpts
	}

	ctx, logger, _ := ectoinject.GetContext[ectologger.Logger](ctx)
	if logger != nil {
		logger.WithContext(ctx).WithFields(map[string]any{
			"dataset": req.Dataset,
			"rows":    len(run.Rows),
		}).Info("Received clustering request")
	}

	result, err := service.Cluster(ctx, run)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// Match ranks targets for every posted or staged source
func Match(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "linkage_handler.Match")
	defer span.End()

	ctx, service, err := ectoinject.GetContext[*resolver.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	var req MatchRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	run := resolver.MatchRequest{
		SourceDataset: req.SourceDataset,
		TargetDataset: req.TargetDataset,
		Sources:       toRows(req.Sources),
		Targets:       toRows(req.Targets),
	}
	if req.Options != nil {
		defaults := service.Options()

		cfg := defaults.Matching
		if req.Options.TopN != nil {
			cfg.TopN = *req.Options.TopN
		}
		if req.Options.MinScore != nil {
			cfg.MinScore = *req.Options.MinScore
		}
		if req.Options.AllowDuplicateTargets != nil {
			cfg.AllowDuplicateTargets = *req.Options.AllowDuplicateTargets
		}
		req.Options.applyBlocking(&cfg.Blocking.PrefixLen, &cfg.Blocking.BandDivisor)
		run.Matching = &cfg

		simOpts := req.Options.similarity(defaults.Similarity)
		run.Similarity = &simOpts
	}

	ctx, logger, _ := ectoinject.GetContext[ectologger.Logger](ctx)
	if logger != nil {
		logger.WithContext(ctx).WithFields(map[string]any{
			"source_dataset": req.SourceDataset,
			"target_dataset": req.TargetDataset,
			"sources":        len(run.Sources),
			"targets":        len(run.Targets),
		}).Info("Received matching request")
	}

	result, err := service.Match(ctx, run)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// Compare scores two posted rows and returns every score component
func Compare(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "linkage_handler.Compare")
	defer span.End()

	ctx, service, err := ectoinject.GetContext[*resolver.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	var req CompareRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	rows := toRows([]map[string]any{req.A, req.B})
	compare := resolver.CompareRequest{A: rows[0], B: rows[1]}
	if req.Options != nil {
		simOpts := req.Options.similarity(service.Options().Similarity)
		compare.Similarity = &simOpts
	}

	result, err := service.Compare(ctx, compare)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// GetRun returns the stored state and live progress of a run
func GetRun(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "linkage_handler.GetRun")
	defer span.End()

	ctx, service, err := ectoinject.GetContext[*resolver.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	id := c.Param("id")
	if id == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "id is required")
	}

	status, err := service.Status(ctx, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, status)
}

// GetAssignments returns the row assignments of a completed clustering run
func GetAssignments(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "linkage_handler.GetAssignments")
	defer span.End()

	ctx, service, err := ectoinject.GetContext[*resolver.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	assignments, err := service.Assignments(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"run_id": c.Param("id"), "assignments": assignments})
}

// GetMatches returns the match table of a completed matching run
func GetMatches(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "linkage_handler.GetMatches")
	defer span.End()

	ctx, service, err := ectoinject.GetContext[*resolver.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	matches, err := service.Matches(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, models.MatchResult{RunID: c.Param("id"), Matches: matches})
}

func (o ScoringOptions) similarity(defaults similarity.Options) similarity.Options {
	if o.NameOnly != nil {
		defaults.NameOnly = *o.NameOnly
	}
	if o.NonNamesOptional != nil {
		defaults.NonNamesOptional = *o.NonNamesOptional
	}
	if o.DateMatcher != "" {
		defaults.DateMatcher = similarity.DateMatcher(o.DateMatcher)
	}
	return defaults
}

func (o ScoringOptions) applyBlocking(prefixLen, bandDivisor *int) {
	if o.BlockPrefixLen != nil {
		*prefixLen = *o.BlockPrefixLen
	}
	if o.BlockBandDivisor != nil {
		*bandDivisor = *o.BlockBandDivisor
	}
}

// toRows stringifies JSON cell values. Numbers keep their shortest form, null becomes empty.
func toRows(raw []map[string]any) []models.Row {
	if len(raw) == 0 {
		return nil
	}
	rows := make([]models.Row, len(raw))
	for i, cells := range raw {
		row := make(models.Row, len(cells))
		for col, v := range cells {
			switch value := v.(type) {
			case nil:
				row[col] = ""
			case string:
				row[col] = value
			case float64:
				row[col] = strconv.FormatFloat(value, 'f', -1, 64)
			case bool:
				row[col] = strconv.FormatBool(value)
			default:
				row[col] = fmt.Sprint(value)
			}
		}
		rows[i] = row
	}
	return rows
}
