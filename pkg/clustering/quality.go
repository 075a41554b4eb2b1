package clustering

import (
	"github.com/Ramsey-B/fern/pkg/models"
)

// Integrity is the cohesion of one cluster: the mean, over members, of each
// member's linkage against the rest of the cluster
type Integrity struct {
	Average float64 `json:"average"`
	Single  float64 `json:"single"`
}

// ClusterIntegrity measures how well every member of cluster fits the others.
// Singletons have full integrity.
func ClusterIntegrity(records []models.PersonRecord, cluster models.Cluster, scorer PairScorer) Integrity {
	if len(cluster) < 2 {
		return Integrity{Average: 100, Single: 100}
	}

	var avgSum, singleSum float64
	rest := make([]int, 0, len(cluster)-1)
	for i, id := range cluster {
		rest = rest[:0]
		rest = append(rest, cluster[:i]...)
		rest = append(rest, cluster[i+1:]...)

		member := records[id]
		pair := func(m int) float64 { return scorer.Score(member, records[m]) }
		avgSum += averageLink(rest, pair)
		singleSum += singleLink(rest, pair)
	}

	n := float64(len(cluster))
	return Integrity{Average: avgSum / n, Single: singleSum / n}
}

// Jaccard is the size of the intersection of a and b over the size of their union
func Jaccard(a, b models.Cluster) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}

	inA := make(map[int]struct{}, len(a))
	for _, id := range a {
		inA[id] = struct{}{}
	}

	union := len(inA)
	intersection := 0
	seen := make(map[int]struct{}, len(b))
	for _, id := range b {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := inA[id]; ok {
			intersection++
		} else {
			union++
		}
	}
	return float64(intersection) / float64(union)
}
