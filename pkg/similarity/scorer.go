// Package similarity scores how compatible two person records are on a 0..100 scale.
//
// Every component may abstain (Abstain) when one side lacks the data to judge.
// Abstaining components are left out of the weighted combination instead of
// counting as a mismatch.
package similarity

import (
	"errors"
	"fmt"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
)

// Abstain is the component score meaning "insufficient data to judge"
const Abstain = -1.0

// DateMatcher selects the date comparison
type DateMatcher string

const (
	// DateMatcherGraded grades year, month and day differences
	DateMatcherGraded DateMatcher = "graded"
	// DateMatcherParts counts shared numeric date parts
	DateMatcherParts DateMatcher = "parts"
)

// ErrUnknownDateMatcher is returned for a date matcher name that is not supported
var ErrUnknownDateMatcher = errors.New("unknown date matcher")

// Options configures a Scorer
type Options struct {
	// NameOnly returns the primary name score and ignores every other field
	NameOnly bool `json:"name_only"`
	// NonNamesOptional lets the secondary component abstain when neither the
	// date nor the external number can be compared. When false it scores 0.
	NonNamesOptional bool        `json:"non_names_optional"`
	DateMatcher      DateMatcher `json:"date_matcher" validate:"omitempty,oneof=graded parts"`
}

// DefaultOptions returns the full-record scoring options
func DefaultOptions() Options {
	return Options{NonNamesOptional: true, DateMatcher: DateMatcherGraded}
}

// Breakdown holds every component of one comparison. Abstaining components are Abstain.
type Breakdown struct {
	GivenName      float64 `json:"given_name"`
	FamilyName     float64 `json:"family_name"`
	Primary        float64 `json:"primary"`
	DateOfBirth    float64 `json:"date_of_birth"`
	ExternalNumber float64 `json:"external_number"`
	Secondary      float64 `json:"secondary"`
	Birthplace     float64 `json:"birthplace"`
	Total          float64 `json:"total"`
}

// Scorer computes person similarity with fixed cascading weights
type Scorer struct {
	opts      Options
	dateScore func(a, b string) float64
}

// NewScorer creates a Scorer
func NewScorer(opts Options) (*Scorer, error) {
	s := &Scorer{opts: opts}
	switch opts.DateMatcher {
	case "", DateMatcherGraded:
		s.dateScore = DateSimilarity
	case DateMatcherParts:
		s.dateScore = PartsDateSimilarity
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDateMatcher, opts.DateMatcher)
	}
	return s, nil
}

// Options returns the scorer's options
func (s *Scorer) Options() Options {
	return s.opts
}

// Score returns the combined similarity of a and b in [0, 100]
func (s *Scorer) Score(a, b models.PersonRecord) float64 {
	return s.Compare(a, b).Total
}

// Compare scores a and b and returns every component
func (s *Scorer) Compare(a, b models.PersonRecord) Breakdown {
	bd := Breakdown{
		GivenName:      NameSimilarity(a.GivenName, b.GivenName),
		FamilyName:     NameSimilarity(a.FamilyName, b.FamilyName),
		DateOfBirth:    Abstain,
		ExternalNumber: Abstain,
		Secondary:      Abstain,
		Birthplace:     Abstain,
	}

	bd.Primary = mean(bd.GivenName, bd.FamilyName)
	if bd.Primary == Abstain {
		bd.Primary = 0
	}

	bd.Total = bd.Primary
	if s.opts.NameOnly {
		return bd
	}

	bd.ExternalNumber = FieldSimilarity(a.ExternalNumber, b.ExternalNumber)
	bd.DateOfBirth = s.dateScore(a.DateOfBirth, b.DateOfBirth)
	bd.Secondary = mean(bd.ExternalNumber, bd.DateOfBirth)
	if bd.Secondary == Abstain && !s.opts.NonNamesOptional {
		bd.Secondary = 0
	}

	bd.Birthplace = FieldSimilarity(a.Birthplace, b.Birthplace)

	if bd.Secondary != Abstain {
		bd.Total = 2.0/3.0*bd.Total + 1.0/3.0*bd.Secondary
	}
	if bd.Birthplace != Abstain {
		bd.Total = 3.0/4.0*bd.Total + 1.0/4.0*bd.Birthplace
	}
	return bd
}

// NameSimilarity is the token-set ratio of two names, abstaining when either is unknown
func NameSimilarity(a, b string) float64 {
	if normalizers.IsEmpty(a) || normalizers.IsEmpty(b) {
		return Abstain
	}
	return TokenSetRatio(a, b)
}

// FieldSimilarity is the ratio of two values, abstaining when either is unknown
func FieldSimilarity(a, b string) float64 {
	if normalizers.IsEmpty(a) || normalizers.IsEmpty(b) {
		return Abstain
	}
	return Ratio(a, b)
}

// mean averages the non-abstaining scores, or abstains when all do
func mean(scores ...float64) float64 {
	sum := 0.0
	n := 0
	for _, s := range scores {
		if s == Abstain {
			continue
		}
		sum += s
		n++
	}
	if n == 0 {
		return Abstain
	}
	return sum / float64(n)
}
