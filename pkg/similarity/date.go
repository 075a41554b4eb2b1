package similarity

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"

	"github.com/Ramsey-B/fern/pkg/normalizers"
)

var (
	compactDatePattern = regexp.MustCompile(`^(\d{4})(\d{2})(\d{2})\.?0?$`)
	dottedDatePattern  = regexp.MustCompile(`^(\d{2})\.(\d{2})\.(\d{4})$`)
	datePartPattern    = regexp.MustCompile(`[1-9]\d*`)
)

// ParseError reports a date value in neither YYYYMMDD nor DD.MM.YYYY form.
// It makes the date component abstain and never fails a comparison.
type ParseError struct {
	Value string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unrecognized date format %q", e.Value)
}

// Date is a parsed calendar date. A zero field is unknown.
type Date struct {
	Year  int
	Month int
	Day   int
}

// ParseDate parses YYYYMMDD (optionally followed by ".0") and DD.MM.YYYY
func ParseDate(s string) (Date, error) {
	if m := compactDatePattern.FindStringSubmatch(s); m != nil {
		return Date{Year: atoi(m[1]), Month: atoi(m[2]), Day: atoi(m[3])}, nil
	}
	if m := dottedDatePattern.FindStringSubmatch(s); m != nil {
		return Date{Year: atoi(m[3]), Month: atoi(m[2]), Day: atoi(m[1])}, nil
	}
	return Date{}, &ParseError{Value: s}
}

// the patterns only admit digits
func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// NumberDiff penalizes a difference exponentially: 100, 96, 76, 0 for 0, 1, 2, 3+ units
func NumberDiff(x, y int) float64 {
	diff := x - y
	if diff < 0 {
		diff = -diff
	}
	if diff > 3 {
		return 0
	}
	penalty := 1
	for i := 0; i < diff; i++ {
		penalty *= 5
	}
	return max(0, float64(100-(penalty-1)))
}

func fieldScore(x, y int) float64 {
	if x == 0 || y == 0 {
		return Abstain
	}
	return NumberDiff(x, y)
}

// DateSimilarity grades two dates field by field. Month and day are also
// compared swapped and the better ordering is kept. Each non-abstaining field
// subtracts its shortfall from 100. The result abstains when either date does
// not parse or every field is unknown.
func DateSimilarity(a, b string) float64 {
	da, errA := ParseDate(a)
	db, errB := ParseDate(b)
	if errA != nil || errB != nil {
		return Abstain
	}

	year := fieldScore(da.Year, db.Year)
	month := fieldScore(da.Month, db.Month)
	day := fieldScore(da.Day, db.Day)

	swappedMonth := fieldScore(da.Month, db.Day)
	swappedDay := fieldScore(da.Day, db.Month)
	if swappedMonth+swappedDay > month+day {
		month, day = swappedMonth, swappedDay
	}

	score := 100.0
	counted := 0
	for _, s := range []float64{year, month, day} {
		if s == Abstain {
			continue
		}
		score -= 100 - s
		counted++
	}
	if counted == 0 {
		return Abstain
	}
	return max(0, score)
}

// PartsDateSimilarity is the share of a's non-zero numeric parts that also
// occur in b, scaled to 0..100 and counting at most three parts.
func PartsDateSimilarity(a, b string) float64 {
	if normalizers.IsEmpty(a) || normalizers.IsEmpty(b) {
		return Abstain
	}

	partsA := datePartPattern.FindAllString(a, -1)
	partsB := datePartPattern.FindAllString(b, -1)

	shared := 0
	for _, part := range partsA {
		if slices.Contains(partsB, part) {
			shared++
		}
	}
	return float64(min(3, shared)) / 3 * 100
}
