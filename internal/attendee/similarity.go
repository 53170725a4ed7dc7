package attendee

// Ratio returns the Ratcliff/Obershelp similarity of a and b in [0, 1]:
// twice the number of matched characters over the total length. Matching
// blocks are found recursively around the longest common substring, taking
// the earliest candidate in a and then in b on ties.
func Ratio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}
	return 2 * float64(matchingChars(ra, rb)) / float64(total)
}

func matchingChars(a, b []rune) int {
	type span struct{ alo, ahi, blo, bhi int }

	matched := 0
	queue := []span{{0, len(a), 0, len(b)}}
	for len(queue) > 0 {
		s := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		i, j, k := longestMatch(a, b, s.alo, s.ahi, s.blo, s.bhi)
		if k == 0 {
			continue
		}
		matched += k
		if s.alo < i && s.blo < j {
			queue = append(queue, span{s.alo, i, s.blo, j})
		}
		if i+k < s.ahi && j+k < s.bhi {
			queue = append(queue, span{i + k, s.ahi, j + k, s.bhi})
		}
	}
	return matched
}

// longestMatch finds the longest common run of a[alo:ahi] and b[blo:bhi].
func longestMatch(a, b []rune, alo, ahi, blo, bhi int) (int, int, int) {
	bestI, bestJ, bestK := alo, blo, 0
	prev := make([]int, bhi-blo+1)
	curr := make([]int, bhi-blo+1)

	for i := alo; i < ahi; i++ {
		for j := blo; j < bhi; j++ {
			idx := j - blo + 1
			if a[i] != b[j] {
				curr[idx] = 0
				continue
			}
			curr[idx] = prev[idx-1] + 1
			k := curr[idx]
			start := i - k + 1
			if k > bestK {
				bestI, bestJ, bestK = start, j-k+1, k
			}
		}
		prev, curr = curr, prev
	}
	return bestI, bestJ, bestK
}
