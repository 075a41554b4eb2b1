package records

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

func TestBuild_NormalizesAndGroupsRows(t *testing.T) {
	rows := []models.Row{
		{"lObjId": "1", "lCountId": "1", "strGName": "Jürgen", "strLName": "Müller", "strDoB": "19100305", "TD_number": "77.0"},
		{"lObjId": "1", "lCountId": "1", "strGName": "Georg", "strLName": "Müller", "strPoB": "Warschau"},
		{"lObjId": "2", "lCountId": "1", "strGName": "Anna", "strLName": "Kowalska", "strDoB": "-1", "prisoner_number": "12345.0", "TD_number": "77"},
		{"strGName": "Karl", "strLName": "Schmidt"},
		{"strGName": "Karl", "strLName": "Schmidt"},
	}

	set, err := Build(rows, DefaultColumns())
	require.NoError(t, err)

	require.Len(t, set.Records, 4)
	assert.Equal(t, []int{0, 0, 1, 2, 3}, set.RowRecord)
	assert.NoError(t, models.ValidateRecordSet(set.Records))

	assert.Equal(t, models.PersonRecord{
		ID:          0,
		GivenName:   "iurgen georg",
		FamilyName:  "muler",
		DateOfBirth: "19100305",
		Birthplace:  "varschau",
	}, set.Records[0])

	assert.Equal(t, "", set.Records[1].DateOfBirth)
	assert.Equal(t, "12345", set.Records[1].ExternalNumber)
	assert.Equal(t, "kovalski", set.Records[1].FamilyName)

	// shared case number across documents
	assert.Equal(t, []int{0, 1}, set.Known.Group(0))
	assert.False(t, set.Known.Has(2))
}

func TestBuild_ComposesSplitDates(t *testing.T) {
	cols := DefaultColumns()
	cols.BirthYear = "year"
	cols.BirthMonth = "month"
	cols.BirthDay = "day"

	rows := []models.Row{
		{"strGName": "Anna", "strLName": "Nowak", "year": "1910", "month": "3", "day": "5"},
		{"strGName": "Anna", "strLName": "Nowak", "strDoB": "05.03.1910", "year": "1911"},
		{"strGName": "Anna", "strLName": "Nowak", "year": "0", "month": "0"},
	}

	set, err := Build(rows, cols)
	require.NoError(t, err)

	assert.Equal(t, "19100305", set.Records[0].DateOfBirth)
	assert.Equal(t, "05.03.1910", set.Records[1].DateOfBirth)
	assert.Equal(t, "", set.Records[2].DateOfBirth)
}

func TestBuild_RequiresNameColumns(t *testing.T) {
	_, err := Build(nil, Columns{GivenName: "strGName"})
	assert.ErrorIs(t, err, ErrMissingNameColumn)
}

func TestSet_RowLabelsAndAssignments(t *testing.T) {
	rows := []models.Row{
		{"lObjId": "9", "lCountId": "1", "strGName": "Anna", "strLName": "Nowak"},
		{"lObjId": "9", "lCountId": "1", "strGName": "Anna", "strLName": "Nowak"},
		{"lObjId": "10", "lCountId": "1", "strGName": "Karl", "strLName": "Nowak"},
	}
	set, err := Build(rows, DefaultColumns())
	require.NoError(t, err)

	labels, err := set.RowLabels([]int{4, 7})
	require.NoError(t, err)
	assert.Equal(t, []int{4, 4, 7}, labels)

	_, err = set.RowLabels([]int{1})
	assert.Error(t, err)

	assignments, err := set.Assignments("run-1", []int{4, 7})
	require.NoError(t, err)
	assert.Equal(t, models.EntityAssignment{RunID: "run-1", RowIndex: 2, RowKey: "10|1", EntityID: 7}, assignments[2])
}
