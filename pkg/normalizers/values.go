package normalizers

import "strings"

// Date trims a raw date value and blanks unknown markers. Parsing happens at
// scoring time so unparseable values abstain instead of failing.
func Date(s string) string {
	if IsEmpty(s) {
		return ""
	}
	return strings.TrimSpace(s)
}

// Identifier normalizes prisoner numbers and similar identifiers. Numbers
// exported through float columns lose their trailing ".0".
func Identifier(s string) string {
	if IsEmpty(s) {
		return ""
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), ".0")
	if IsEmpty(s) {
		return ""
	}
	return s
}

// Key normalizes an authoritative grouping key such as a case number
func Key(s string) string {
	return Identifier(s)
}

// ComposeDate builds a YYYYMMDD date from split year, month and day values.
// Unknown parts are written as zeros; an entirely unknown date is "".
func ComposeDate(year, month, day string) string {
	y := datePart(year, 4)
	m := datePart(month, 2)
	d := datePart(day, 2)
	if y == "0000" && m == "00" && d == "00" {
		return ""
	}
	return y + m + d
}

func datePart(s string, width int) string {
	s = Identifier(s)
	digits := DigitsOnly(s)
	if digits == "" || len(digits) > width {
		return strings.Repeat("0", width)
	}
	return strings.Repeat("0", width-len(digits)) + digits
}
