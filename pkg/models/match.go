package models

// NoMatch is the score and target id of a sentinel match row
const NoMatch = -1

// MatchCandidate is one ranked match of a source record against a target record.
// A sentinel row (Score and TargetID both NoMatch) means no target reached the minimum score.
type MatchCandidate struct {
	SourceID int     `json:"source_id" db:"source_id"`
	Score    float64 `json:"score" db:"score"`
	TargetID int     `json:"target_id" db:"target_id"`
}

// NoMatchFor returns the sentinel row for a source record
func NoMatchFor(sourceID int) MatchCandidate {
	return MatchCandidate{SourceID: sourceID, Score: NoMatch, TargetID: NoMatch}
}

// Matched reports whether the row refers to a real target
func (m MatchCandidate) Matched() bool {
	return m.TargetID != NoMatch
}
