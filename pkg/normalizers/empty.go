package normalizers

import "strings"

// emptyMarkers are source values that carry no information
var emptyMarkers = map[string]struct{}{
	"":          {},
	"-1":        {},
	"-1.0":      {},
	"None":      {},
	"NULL":      {},
	"unbekannt": {},
	"unbekant":  {},
	"-":         {},
	"0":         {},
	"0.0":       {},
	"NA":        {},
	"00":        {},
	"0000":      {},
	"00000000":  {},
}

// IsEmpty reports whether a raw value is blank or one of the archive's unknown markers
func IsEmpty(s string) bool {
	_, ok := emptyMarkers[strings.TrimSpace(s)]
	return ok
}
