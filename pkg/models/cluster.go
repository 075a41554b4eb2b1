package models

import (
	"fmt"
	"sort"
)

// Cluster is an ordered set of record ids believed to denote one person
type Cluster []int

// KnownClusters maps a record id to every record id sharing an authoritative
// identifier with it (case number, prisoner number). Each list contains the
// id itself, and membership is symmetric.
type KnownClusters map[int][]int

// NewKnownClusters builds a symmetric, reflexive mapping from disjoint groups.
// Groups with fewer than two members are ignored.
func NewKnownClusters(groups [][]int) KnownClusters {
	known := make(KnownClusters)
	for _, group := range groups {
		members := uniqueSorted(group)
		if len(members) < 2 {
			continue
		}
		for _, id := range members {
			known[id] = members
		}
	}
	return known
}

// KnownClustersFromKeys groups record ids that share the same non-empty key.
// keys[i] is the key of record i.
func KnownClustersFromKeys(keys []string) KnownClusters {
	byKey := make(map[string][]int)
	order := make([]string, 0)
	for id, key := range keys {
		if key == "" {
			continue
		}
		if _, ok := byKey[key]; !ok {
			order = append(order, key)
		}
		byKey[key] = append(byKey[key], id)
	}

	groups := make([][]int, 0, len(order))
	for _, key := range order {
		groups = append(groups, byKey[key])
	}
	return NewKnownClusters(groups)
}

// Group returns the known group of id, or a single-member group when id has none
func (k KnownClusters) Group(id int) []int {
	if members, ok := k[id]; ok {
		return members
	}
	return []int{id}
}

// Has reports whether id belongs to any known cluster
func (k KnownClusters) Has(id int) bool {
	_, ok := k[id]
	return ok
}

// IDs returns every id that belongs to a known cluster, ascending
func (k KnownClusters) IDs() []int {
	ids := make([]int, 0, len(k))
	for id := range k {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Validate checks reflexivity, symmetry and that every id is below size
func (k KnownClusters) Validate(size int) error {
	for id, members := range k {
		if id < 0 || id >= size {
			return fmt.Errorf("id %d: %w", id, ErrKnownClusterOutOfRange)
		}
		self := false
		for _, other := range members {
			if other < 0 || other >= size {
				return fmt.Errorf("id %d: %w", other, ErrKnownClusterOutOfRange)
			}
			if other == id {
				self = true
				continue
			}
			if !contains(k[other], id) {
				return fmt.Errorf("%d lists %d but not the reverse: %w", id, other, ErrKnownClusterAsymmetric)
			}
		}
		if !self {
			return fmt.Errorf("%d is missing from its own group: %w", id, ErrKnownClusterAsymmetric)
		}
	}
	return nil
}

func contains(ids []int, id int) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func uniqueSorted(ids []int) []int {
	seen := make(map[int]struct{}, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}
