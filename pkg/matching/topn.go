package matching

type rankedTarget struct {
	score    float64
	targetID int
}

// topN is a bounded list sorted by descending score, then ascending target id
type topN struct {
	capacity int
	entries  []rankedTarget
}

func newTopN(capacity int) *topN {
	return &topN{capacity: capacity, entries: make([]rankedTarget, 0, capacity+1)}
}

func (t *topN) len() int {
	return len(t.entries)
}

func (t *topN) offer(score float64, targetID int) {
	pos := len(t.entries)
	for i, e := range t.entries {
		if score > e.score || (score == e.score && targetID < e.targetID) {
			pos = i
			break
		}
	}
	if pos >= t.capacity {
		return
	}

	t.entries = append(t.entries, rankedTarget{})
	copy(t.entries[pos+1:], t.entries[pos:])
	t.entries[pos] = rankedTarget{score: score, targetID: targetID}

	if len(t.entries) > t.capacity {
		t.entries = t.entries[:t.capacity]
	}
}
