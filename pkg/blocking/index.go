// Package blocking builds the inverted bucket indexes that bound pairwise
// comparison to records sharing a coarse name key.
package blocking

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Ramsey-B/fern/internal/workpool"
)

const (
	DefaultPrefixLen   = 4
	DefaultBandDivisor = 2
)

// Key is the bucket of a sub-token: its first PrefixLen characters and its length band
type Key struct {
	Prefix string
	Band   int
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%d", k.Prefix, k.Band)
}

// Options controls key derivation. Smaller prefixes and larger band divisors
// widen recall and grow candidate sets.
type Options struct {
	PrefixLen   int `json:"prefix_len" validate:"min=1"`
	BandDivisor int `json:"band_divisor" validate:"min=1"`
	Workers     int `json:"-"`
}

// DefaultOptions returns the clustering blocking defaults
func DefaultOptions() Options {
	return Options{PrefixLen: DefaultPrefixLen, BandDivisor: DefaultBandDivisor}
}

func (o Options) withDefaults() Options {
	if o.PrefixLen <= 0 {
		o.PrefixLen = DefaultPrefixLen
	}
	if o.BandDivisor <= 0 {
		o.BandDivisor = DefaultBandDivisor
	}
	return o
}

// Keys returns the bucket keys of a normalized value. Sub-tokens shorter than
// PrefixLen characters are never indexed. Duplicate keys are returned once.
func (o Options) Keys(value string) []Key {
	o = o.withDefaults()
	tokens := strings.Fields(value)
	keys := make([]Key, 0, len(tokens))
	seen := make(map[Key]struct{}, len(tokens))
	for _, token := range tokens {
		chars := []rune(token)
		if len(chars) < o.PrefixLen {
			continue
		}
		key := Key{Prefix: string(chars[:o.PrefixLen]), Band: len(chars) / o.BandDivisor}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	return keys
}

// Index maps bucket keys to ascending record ids. It is immutable once built.
type Index struct {
	opts    Options
	buckets map[Key][]int
	keys    [][]Key
}

// Build indexes values, where values[i] is the normalized column value of record i.
// Keys are derived in parallel; the buckets are then frozen in a single pass.
func Build(ctx context.Context, values []string, opts Options) (*Index, error) {
	opts = opts.withDefaults()

	keys, err := workpool.Map(ctx, len(values), opts.Workers, func(_ context.Context, i int) ([]Key, error) {
		return opts.Keys(values[i]), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to derive bucket keys: %w", err)
	}

	// count first so every bucket is allocated once
	sizes := make(map[Key]int)
	for _, recordKeys := range keys {
		for _, k := range recordKeys {
			sizes[k]++
		}
	}

	arena := make([]int, 0, sumSizes(sizes))
	buckets := make(map[Key][]int, len(sizes))
	for id, recordKeys := range keys {
		for _, k := range recordKeys {
			bucket, ok := buckets[k]
			if !ok {
				start := len(arena)
				arena = arena[:start+sizes[k]]
				bucket = arena[start:start : start+sizes[k]]
			}
			buckets[k] = append(bucket, id)
		}
	}

	return &Index{opts: opts, buckets: buckets, keys: keys}, nil
}

func sumSizes(sizes map[Key]int) int {
	total := 0
	for _, n := range sizes {
		total += n
	}
	return total
}

// Lookup returns the ascending ids in a bucket. The slice must not be modified.
func (idx *Index) Lookup(k Key) []int {
	return idx.buckets[k]
}

// KeysOf returns the bucket keys of an indexed record
func (idx *Index) KeysOf(id int) []Key {
	if id < 0 || id >= len(idx.keys) {
		return nil
	}
	return idx.keys[id]
}

// Len returns the number of non-empty buckets
func (idx *Index) Len() int {
	return len(idx.buckets)
}

// Size returns the number of indexed values
func (idx *Index) Size() int {
	return len(idx.keys)
}

// Options returns the options the index was built with
func (idx *Index) Options() Options {
	return idx.opts
}

// Union returns the ascending, de-duplicated ids of every bucket named by keys
func (idx *Index) Union(keys []Key) []int {
	switch len(keys) {
	case 0:
		return nil
	case 1:
		return append([]int(nil), idx.buckets[keys[0]]...)
	}

	seen := make(map[int]struct{})
	ids := make([]int, 0)
	for _, k := range keys {
		for _, id := range idx.buckets[k] {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}
