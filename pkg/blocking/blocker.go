package blocking

import (
	"context"
	"fmt"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Blocker holds the given-name and family-name indexes of one record set
type Blocker struct {
	Given  *Index
	Family *Index
}

// NewBlocker indexes the given and family names of records
func NewBlocker(ctx context.Context, records []models.PersonRecord, opts Options) (*Blocker, error) {
	givens := make([]string, len(records))
	families := make([]string, len(records))
	for i, r := range records {
		givens[i] = r.GivenName
		families[i] = r.FamilyName
	}

	given, err := Build(ctx, givens, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to build given name index: %w", err)
	}
	family, err := Build(ctx, families, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to build family name index: %w", err)
	}

	return &Blocker{Given: given, Family: family}, nil
}

// Candidates returns the ascending ids of indexed records sharing at least one
// given-name bucket and one family-name bucket with r. r may come from another
// record set. An empty result is a valid outcome.
func (b *Blocker) Candidates(r models.PersonRecord) []int {
	given := b.Given.Union(b.Given.Options().Keys(r.GivenName))
	if len(given) == 0 {
		return nil
	}
	family := b.Family.Union(b.Family.Options().Keys(r.FamilyName))
	return intersectSorted(given, family)
}

// CandidatesOf returns the candidates of an indexed record, using its stored keys
func (b *Blocker) CandidatesOf(id int) []int {
	given := b.Given.Union(b.Given.KeysOf(id))
	if len(given) == 0 {
		return nil
	}
	return intersectSorted(given, b.Family.Union(b.Family.KeysOf(id)))
}

func intersectSorted(a, c []int) []int {
	out := make([]int, 0, min(len(a), len(c)))
	i, j := 0, 0
	for i < len(a) && j < len(c) {
		switch {
		case a[i] == c[j]:
			out = append(out, a[i])
			i++
			j++
		case a[i] < c[j]:
			i++
		default:
			j++
		}
	}
	return out
}
