package clustering

import (
	"fmt"

	"github.com/Ramsey-B/fern/pkg/models"
)

// InvariantViolation reports clusters that do not partition the record set.
// The engine never produces one; it exists so callers and tests can assert it.
type InvariantViolation struct {
	ID     int
	Reason string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("cluster invariant violated for record %d: %s", e.ID, e.Reason)
}

// VerifyPartition checks that every id in [0, n) appears in exactly one cluster
func VerifyPartition(n int, clusters []models.Cluster) error {
	owner := make([]int, n)
	for i := range owner {
		owner[i] = -1
	}

	for ci, cluster := range clusters {
		if len(cluster) == 0 {
			return &InvariantViolation{ID: -1, Reason: fmt.Sprintf("cluster %d is empty", ci)}
		}
		for _, id := range cluster {
			if id < 0 || id >= n {
				return &InvariantViolation{ID: id, Reason: "id outside the record set"}
			}
			if owner[id] != -1 {
				return &InvariantViolation{ID: id, Reason: fmt.Sprintf("in clusters %d and %d", owner[id], ci)}
			}
			owner[id] = ci
		}
	}

	for id, ci := range owner {
		if ci == -1 {
			return &InvariantViolation{ID: id, Reason: "not in any cluster"}
		}
	}
	return nil
}

// Labels returns the entity label of every record: the index of its cluster.
// Records missing from clusters get -1.
func Labels(n int, clusters []models.Cluster) []int {
	labels := make([]int, n)
	for i := range labels {
		labels[i] = -1
	}
	for ci, cluster := range clusters {
		for _, id := range cluster {
			if id >= 0 && id < n {
				labels[id] = ci
			}
		}
	}
	return labels
}
