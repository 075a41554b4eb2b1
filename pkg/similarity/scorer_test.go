package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

func newTestScorer(t *testing.T, opts Options) *Scorer {
	t.Helper()
	s, err := NewScorer(opts)
	require.NoError(t, err)
	return s
}

func fullRecord() models.PersonRecord {
	return models.PersonRecord{
		GivenName:      "anna maria",
		FamilyName:     "schmit",
		DateOfBirth:    "19100305",
		Birthplace:     "varsav",
		ExternalNumber: "12345",
	}
}

func TestScorer_IdenticalRecordsScore100(t *testing.T) {
	s := newTestScorer(t, DefaultOptions())
	bd := s.Compare(fullRecord(), fullRecord())

	assert.InDelta(t, 100, bd.Primary, 1e-9)
	assert.InDelta(t, 100, bd.Secondary, 1e-9)
	assert.InDelta(t, 100, bd.Birthplace, 1e-9)
	assert.InDelta(t, 100, bd.Total, 1e-9)
}

func TestScorer_AbstentionDoesNotPenalize(t *testing.T) {
	s := newTestScorer(t, DefaultOptions())

	a := models.PersonRecord{GivenName: "anna", FamilyName: "schmit", DateOfBirth: "19100305"}
	b := models.PersonRecord{GivenName: "anna", FamilyName: "schmit"}

	bd := s.Compare(a, b)
	assert.Equal(t, Abstain, bd.DateOfBirth)
	assert.Equal(t, Abstain, bd.ExternalNumber)
	assert.Equal(t, Abstain, bd.Secondary)
	assert.Equal(t, Abstain, bd.Birthplace)
	assert.InDelta(t, 100, bd.Total, 1e-9)
}

func TestScorer_MissingSecondaryCountsWhenRequired(t *testing.T) {
	opts := DefaultOptions()
	opts.NonNamesOptional = false
	s := newTestScorer(t, opts)

	a := models.PersonRecord{GivenName: "anna", FamilyName: "schmit"}
	assert.InDelta(t, 200.0/3.0, s.Score(a, a), 1e-9)
}

func TestScorer_PrimaryAveragesPresentNames(t *testing.T) {
	s := newTestScorer(t, Options{NameOnly: true})

	a := models.PersonRecord{GivenName: "", FamilyName: "schmit"}
	b := models.PersonRecord{GivenName: "anna", FamilyName: "schmit"}
	assert.InDelta(t, 100, s.Score(a, b), 1e-9)

	c := models.PersonRecord{GivenName: "johann", FamilyName: "iohan"}
	d := models.PersonRecord{GivenName: "johann", FamilyName: "johann"}
	assert.InDelta(t, (100+100-100*3.0/11.0)/2, s.Score(c, d), 1e-9)

	assert.Equal(t, 0.0, s.Score(models.PersonRecord{}, models.PersonRecord{}))
}

func TestScorer_WeightCascade(t *testing.T) {
	s := newTestScorer(t, DefaultOptions())

	a := models.PersonRecord{GivenName: "anna", FamilyName: "schmit", DateOfBirth: "19100305", Birthplace: "abc"}
	b := models.PersonRecord{GivenName: "anna", FamilyName: "schmit", DateOfBirth: "19110305", Birthplace: "xyz"}

	// primary 100, secondary 96, birthplace 0
	expected := 3.0 / 4.0 * (2.0/3.0*100 + 1.0/3.0*96)
	assert.InDelta(t, expected, s.Score(a, b), 1e-9)
}

func TestScorer_NameOnlyIgnoresOtherFields(t *testing.T) {
	s := newTestScorer(t, Options{NameOnly: true})

	a := fullRecord()
	b := fullRecord()
	b.DateOfBirth = "18000101"
	b.Birthplace = "berlin"
	b.ExternalNumber = "99"

	assert.InDelta(t, 100, s.Score(a, b), 1e-9)
}

func TestScorer_SymmetricUnderFullData(t *testing.T) {
	s := newTestScorer(t, DefaultOptions())

	records := []models.PersonRecord{
		fullRecord(),
		{GivenName: "ana", FamilyName: "schmidt", DateOfBirth: "05.03.1910", Birthplace: "varsava", ExternalNumber: "12354"},
		{GivenName: "maria anna", FamilyName: "smit", DateOfBirth: "19100503", Birthplace: "krakau", ExternalNumber: "1"},
		{GivenName: "iosef", FamilyName: "novak", DateOfBirth: "19221212", Birthplace: "pilsen", ExternalNumber: "777"},
	}

	for _, a := range records {
		for _, b := range records {
			assert.InDelta(t, s.Score(a, b), s.Score(b, a), 1e-9)
			assert.GreaterOrEqual(t, s.Score(a, b), 0.0)
			assert.LessOrEqual(t, s.Score(a, b), 100.0)
		}
	}
}

func TestScorer_PartsDateMatcher(t *testing.T) {
	s := newTestScorer(t, Options{NonNamesOptional: true, DateMatcher: DateMatcherParts})

	a := models.PersonRecord{GivenName: "anna", FamilyName: "schmit", DateOfBirth: "05.03.1910"}
	b := models.PersonRecord{GivenName: "anna", FamilyName: "schmit", DateOfBirth: "05.04.1911"}

	assert.InDelta(t, 2.0/3.0*100+1.0/3.0*(100.0/3.0), s.Score(a, b), 1e-9)
}

func TestNewScorer_UnknownDateMatcher(t *testing.T) {
	_, err := NewScorer(Options{DateMatcher: "fuzzy"})
	assert.ErrorIs(t, err, ErrUnknownDateMatcher)
}
