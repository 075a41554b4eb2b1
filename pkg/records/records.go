// Package records turns raw tabular rows into a normalized, indexed-ready
// record set and projects entity labels back onto the rows.
package records

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Gobusters/ectolinq"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
)

// ErrMissingNameColumn is returned when the given or family name column is not configured
var ErrMissingNameColumn = errors.New("given and family name columns are required")

// Columns names the source columns of each person attribute. Empty names are not read.
type Columns struct {
	GivenName   string   `json:"given_name_col"`
	FamilyName  string   `json:"family_name_col"`
	DateOfBirth string   `json:"dob_col"`
	Birthplace  string   `json:"birthplace_col"`
	ExternalID  string   `json:"external_id_col"`
	KnownKey    string   `json:"known_cluster_col"`
	GroupBy     []string `json:"group_by_cols"`
	BirthYear   string   `json:"birth_year_col"`
	BirthMonth  string   `json:"birth_month_col"`
	BirthDay    string   `json:"birth_day_col"`
}

// DefaultColumns returns the archive's column names
func DefaultColumns() Columns {
	return Columns{
		GivenName:   "strGName",
		FamilyName:  "strLName",
		DateOfBirth: "strDoB",
		Birthplace:  "strPoB",
		ExternalID:  "prisoner_number",
		KnownKey:    "TD_number",
		GroupBy:     []string{"lObjId", "lCountId"},
	}
}

// Set is a normalized record set built from rows
type Set struct {
	Records []models.PersonRecord
	Known   models.KnownClusters
	// RowRecord maps every input row to the id of the record it was folded into
	RowRecord []int
	// GroupKeys holds the group-by key of every record
	GroupKeys []string
}

type group struct {
	key     string
	given   []string
	family  []string
	dob     string
	place   string
	extID   string
	knownID string
}

// Build normalizes rows into a record set. Rows with the same group-by values
// become one record: distinct names are joined, the first known value of every
// other field wins. Records are numbered in order of first appearance.
func Build(rows []models.Row, cols Columns) (*Set, error) {
	if cols.GivenName == "" || cols.FamilyName == "" {
		return nil, ErrMissingNameColumn
	}

	groupCols := ectolinq.Filter(cols.GroupBy, func(c string) bool { return c != "" })

	set := &Set{RowRecord: make([]int, len(rows))}
	groups := make([]*group, 0, len(rows))
	byKey := make(map[string]int)

	for i, row := range rows {
		key := groupKey(row, groupCols, i)
		id, ok := byKey[key]
		if !ok {
			id = len(groups)
			byKey[key] = id
			groups = append(groups, &group{key: key})
		}
		set.RowRecord[i] = id
		groups[id].add(row, cols)
	}

	set.Records = make([]models.PersonRecord, len(groups))
	set.GroupKeys = make([]string, len(groups))
	knownKeys := make([]string, len(groups))
	for id, g := range groups {
		set.Records[id] = g.record(id)
		set.GroupKeys[id] = g.key
		knownKeys[id] = g.knownID
	}
	set.Known = models.KnownClustersFromKeys(knownKeys)

	return set, nil
}

// groupKey joins the group-by values of a row. Rows missing every group-by
// value are never merged.
func groupKey(row models.Row, cols []string, index int) string {
	values := ectolinq.Map(cols, func(c string) string { return strings.TrimSpace(row.Get(c)) })
	if len(values) == 0 || len(ectolinq.Filter(values, func(v string) bool { return !normalizers.IsEmpty(v) })) == 0 {
		return fmt.Sprintf("#%d", index)
	}
	return strings.Join(values, "|")
}

func (g *group) add(row models.Row, cols Columns) {
	g.given = appendDistinct(g.given, normalizers.GivenName(row.Get(cols.GivenName)))
	g.family = appendDistinct(g.family, normalizers.FamilyName(row.Get(cols.FamilyName)))

	dob := normalizers.Date(row.Get(cols.DateOfBirth))
	if dob == "" && (cols.BirthYear != "" || cols.BirthMonth != "" || cols.BirthDay != "") {
		dob = normalizers.ComposeDate(row.Get(cols.BirthYear), row.Get(cols.BirthMonth), row.Get(cols.BirthDay))
	}
	g.dob = firstKnown(g.dob, dob)
	g.place = firstKnown(g.place, normalizers.Place(row.Get(cols.Birthplace)))
	g.extID = firstKnown(g.extID, normalizers.Identifier(row.Get(cols.ExternalID)))
	g.knownID = firstKnown(g.knownID, normalizers.Key(row.Get(cols.KnownKey)))
}

func (g *group) record(id int) models.PersonRecord {
	return models.PersonRecord{
		ID:             id,
		GivenName:      strings.Join(g.given, " "),
		FamilyName:     strings.Join(g.family, " "),
		DateOfBirth:    g.dob,
		Birthplace:     g.place,
		ExternalNumber: g.extID,
	}
}

func appendDistinct(values []string, value string) []string {
	if value == "" || ectolinq.Contains(values, value) {
		return values
	}
	return append(values, value)
}

func firstKnown(current, candidate string) string {
	if current != "" {
		return current
	}
	return candidate
}

// RowLabels projects per-record labels onto the input rows
func (s *Set) RowLabels(recordLabels []int) ([]int, error) {
	if len(recordLabels) != len(s.Records) {
		return nil, fmt.Errorf("got %d labels for %d records", len(recordLabels), len(s.Records))
	}
	return ectolinq.Map(s.RowRecord, func(id int) int { return recordLabels[id] }), nil
}

// Assignments pairs every input row with its entity label
func (s *Set) Assignments(runID string, recordLabels []int) ([]models.EntityAssignment, error) {
	labels, err := s.RowLabels(recordLabels)
	if err != nil {
		return nil, err
	}

	assignments := make([]models.EntityAssignment, len(labels))
	for row, label := range labels {
		assignments[row] = models.EntityAssignment{
			RunID:    runID,
			RowIndex: row,
			RowKey:   s.GroupKeys[s.RowRecord[row]],
			EntityID: label,
		}
	}
	return assignments, nil
}
