package clustering

// linkFunc scores a candidate against members, given its pairwise score with one member
type linkFunc func(members []int, pair func(member int) float64) float64

func linkFuncFor(l Linkage) linkFunc {
	switch l {
	case LinkageSingle:
		return singleLink
	case LinkageAverage:
		return averageLink
	default:
		return maxLink
	}
}

func singleLink(members []int, pair func(int) float64) float64 {
	best := 0.0
	for _, m := range members {
		best = max(best, pair(m))
		if best >= 100 {
			break
		}
	}
	return best
}

func averageLink(members []int, pair func(int) float64) float64 {
	if len(members) == 0 {
		return 0
	}
	sum := 0.0
	for _, m := range members {
		sum += pair(m)
	}
	return sum / float64(len(members))
}

func maxLink(members []int, pair func(int) float64) float64 {
	if len(members) == 0 {
		return 0
	}
	worst := 100.0
	for _, m := range members {
		worst = min(worst, pair(m))
		if worst <= 0 {
			break
		}
	}
	return worst
}
