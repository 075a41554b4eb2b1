package linkage

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectoinject/ectocontainer"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/resolver"
)

// newServer mounts the linkage routes behind a fresh container. register fills the container.
func newServer(t *testing.T, register func(c ectocontainer.DIContainer, logger ectologger.Logger)) *echo.Echo {
	t.Helper()
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	e := echo.New()
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(middleware.Context())

	id := uuid.NewString()
	c, err := middleware.NewContainer(id)
	require.NoError(t, err)
	register(c, logger)

	Register(e.Group("/v1", middleware.Container(id)))
	return e
}

func newTestServer(t *testing.T) *echo.Echo {
	return newServer(t, func(c ectocontainer.DIContainer, logger ectologger.Logger) {
		service := resolver.NewService(resolver.DefaultOptions(), resolver.Dependencies{}, logger)
		require.NoError(t, ectoinject.RegisterInstance[*resolver.Service](c, service))
		require.NoError(t, ectoinject.RegisterInstance[ectologger.Logger](c, logger))
	})
}

func post(e *echo.Echo, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

const clusterBody = `{
	"rows": [
		{"lObjId": 1, "lCountId": 1, "strGName": "Johann", "strLName": "Müller", "strDoB": 19200101},
		{"lObjId": 2, "lCountId": 1, "strGName": "Johann", "strLName": "Müller", "strDoB": "19200101"},
		{"lObjId": 3, "lCountId": 1, "strGName": "Anna", "strLName": "Schmidt", "strDoB": null}
	],
	"options": {"linkage": "average", "cutoff": 85}
}`

func TestHandler_Cluster(t *testing.T) {
	e := newTestServer(t)

	rec := post(e, "/v1/clusterings", clusterBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result models.ClusterResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, []int{0, 0, 1}, result.Labels)
	assert.Len(t, result.Clusters, 2)
}

func TestHandler_ClusterValidation(t *testing.T) {
	e := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{name: "malformed", body: `{"rows": [`},
		{name: "no rows or dataset", body: `{}`},
		{name: "bad linkage", body: `{"rows": [{"strGName": "a", "strLName": "b"}], "options": {"linkage": "complete"}}`},
		{name: "cutoff out of range", body: `{"rows": [{"strGName": "a", "strLName": "b"}], "options": {"cutoff": 101}}`},
		{name: "bad date matcher", body: `{"rows": [{"strGName": "a", "strLName": "b"}], "options": {"date_matcher": "fuzzy"}}`},
		{name: "dataset without store", body: `{"dataset": "archive"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(e, "/v1/clusterings", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestHandler_Match(t *testing.T) {
	e := newTestServer(t)

	body := `{
		"sources": [
			{"lObjId": 10, "strGName": "Johann", "strLName": "Müller", "strDoB": "19200101"},
			{"lObjId": 11, "strGName": "Zbigniew", "strLName": "Wrobel"}
		],
		"targets": [
			{"lObjId": 1, "strGName": "Anna", "strLName": "Schmidt"},
			{"lObjId": 2, "strGName": "Johann", "strLName": "Müller", "strDoB": "19200101"}
		],
		"options": {"top_n": 2, "min_score": 80}
	}`
	rec := post(e, "/v1/matchings", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result models.MatchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Len(t, result.Matches, 2)
	assert.Equal(t, 1, result.Matches[0].TargetID)
	assert.False(t, result.Matches[1].Matched())

	rec = post(e, "/v1/matchings", `{"sources": [{"strGName": "a", "strLName": "b"}], "targets": [{"strGName": "a", "strLName": "b"}], "options": {"top_n": 0}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_GetRunNotFound(t *testing.T) {
	e := newTestServer(t)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs/unknown/matches", nil))
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestToRows(t *testing.T) {
	rows := toRows([]map[string]any{{"a": 19200101.0, "b": nil, "c": "x", "d": true, "e": 1.5}})
	assert.Equal(t, models.Row{"a": "19200101", "b": "", "c": "x", "d": "true", "e": "1.5"}, rows[0])
	assert.Nil(t, toRows(nil))
}

func TestHandler_Compare(t *testing.T) {
	e := newTestServer(t)

	rec := post(e, "/v1/comparisons", `{
		"a": {"strGName": "Johann", "strLName": "Müller", "strDoB": 19200101},
		"b": {"strGName": "Johann", "strLName": "Müller", "strDoB": "01.01.1920"},
		"options": {"name_only": true}
	}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result resolver.Comparison
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.InDelta(t, 100, result.Breakdown.Total, 0.001)
	assert.Equal(t, -1.0, result.Breakdown.DateOfBirth)

	rec = post(e, "/v1/comparisons", `{"a": {"strGName": "Johann"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_ServiceMissingFromContainer(t *testing.T) {
	e := newServer(t, func(ectocontainer.DIContainer, ectologger.Logger) {})

	rec := post(e, "/v1/clusterings", clusterBody)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "service unavailable")

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs/abc", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandler_LogsThroughContainerLogger(t *testing.T) {
	var (
		mu       sync.Mutex
		messages []string
	)
	logger := ectologger.NewEctoLogger(func(msg ectologger.EctoLogMessage) {
		mu.Lock()
		defer mu.Unlock()
		messages = append(messages, msg.Message)
	})
	e := newServer(t, func(c ectocontainer.DIContainer, _ ectologger.Logger) {
		service := resolver.NewService(resolver.DefaultOptions(), resolver.Dependencies{}, logger)
		require.NoError(t, ectoinject.RegisterInstance[*resolver.Service](c, service))
		require.NoError(t, ectoinject.RegisterInstance[ectologger.Logger](c, logger))
	})

	rec := post(e, "/v1/clusterings", clusterBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, messages, "Received clustering request")
}
