package clustering

import (
	"fmt"
	"strings"
)

// ConfigError rejects an engine configuration at construction
type ConfigError struct {
	Field string
	Value string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid clustering %s: %q", e.Field, e.Value)
}

// Linkage converts the pairwise scores between a candidate and a cluster into one score
type Linkage int

const (
	// LinkageSingle takes the best pairwise score. Most permissive.
	LinkageSingle Linkage = iota + 1
	// LinkageAverage takes the mean pairwise score
	LinkageAverage
	// LinkageMax takes the worst pairwise score: every member must be similar. Most conservative.
	LinkageMax
)

// ParseLinkage parses "single", "average" or "max"
func ParseLinkage(s string) (Linkage, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "single":
		return LinkageSingle, nil
	case "average":
		return LinkageAverage, nil
	case "max":
		return LinkageMax, nil
	default:
		return 0, &ConfigError{Field: "linkage", Value: s}
	}
}

func (l Linkage) String() string {
	switch l {
	case LinkageSingle:
		return "single"
	case LinkageAverage:
		return "average"
	case LinkageMax:
		return "max"
	default:
		return fmt.Sprintf("linkage(%d)", int(l))
	}
}

// Iteration selects how many expansion passes a cluster gets
type Iteration int

const (
	// IterationFast scores the pool once against the seed cluster
	IterationFast Iteration = iota + 1
	// IterationExhaustive repeats expansion until a pass adds nobody
	IterationExhaustive
)

// ParseIteration parses "fast" or "exhaustive"
func ParseIteration(s string) (Iteration, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fast":
		return IterationFast, nil
	case "exhaustive":
		return IterationExhaustive, nil
	default:
		return 0, &ConfigError{Field: "iteration", Value: s}
	}
}

func (i Iteration) String() string {
	switch i {
	case IterationFast:
		return "fast"
	case IterationExhaustive:
		return "exhaustive"
	default:
		return fmt.Sprintf("iteration(%d)", int(i))
	}
}

// Config is the immutable engine configuration
type Config struct {
	Linkage Linkage
	// Cutoff is the minimum linkage score, 0..100, for a candidate to join
	Cutoff    float64
	Iteration Iteration
	// AllowKnownClusterMerge lets a candidate from another known cluster join,
	// bringing its whole known group along
	AllowKnownClusterMerge bool
	Workers                int
}

// DefaultConfig returns max linkage at cutoff 90 with fast iteration
func DefaultConfig() Config {
	return Config{
		Linkage:   LinkageMax,
		Cutoff:    90,
		Iteration: IterationFast,
	}
}

func (c Config) validate() error {
	if c.Linkage < LinkageSingle || c.Linkage > LinkageMax {
		return &ConfigError{Field: "linkage", Value: c.Linkage.String()}
	}
	if c.Iteration < IterationFast || c.Iteration > IterationExhaustive {
		return &ConfigError{Field: "iteration", Value: c.Iteration.String()}
	}
	if c.Cutoff < 0 || c.Cutoff > 100 {
		return &ConfigError{Field: "cutoff", Value: fmt.Sprintf("%g", c.Cutoff)}
	}
	return nil
}
