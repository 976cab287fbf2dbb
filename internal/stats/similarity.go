// Package stats turns raw crawl results into deduplicated, ranked keyword
// statistics.
package stats

// Similarity returns a ratio in [0, 1] measuring how alike two titles are:
// 2*M / (len(a)+len(b)), where M is the total size of the longest matching
// blocks found by recursively locating the longest common contiguous run.
// Comparison is rune-based so multi-byte text is not penalized.
func Similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1.0
	}
	return 2.0 * float64(matchingSize(ra, rb)) / float64(total)
}

type span struct {
	alo, ahi, blo, bhi int
}

// matchingSize sums the sizes of all matching blocks between a and b.
func matchingSize(a, b []rune) int {
	b2j := make(map[rune][]int, len(b))
	for j, r := range b {
		b2j[r] = append(b2j[r], j)
	}

	matched := 0
	queue := []span{{0, len(a), 0, len(b)}}
	for len(queue) > 0 {
		s := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		i, j, k := longestMatch(a, b2j, s)
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

// longestMatch finds the longest run a[i:i+k] == b[j:j+k] inside the span,
// preferring the earliest starting position in a, then in b.
func longestMatch(a []rune, b2j map[rune][]int, s span) (besti, bestj, bestsize int) {
	besti, bestj = s.alo, s.blo
	j2len := make(map[int]int)
	for i := s.alo; i < s.ahi; i++ {
		newj2len := make(map[int]int)
		for _, j := range b2j[a[i]] {
			if j < s.blo {
				continue
			}
			if j >= s.bhi {
				break
			}
			k := j2len[j-1] + 1
			newj2len[j] = k
			if k > bestsize {
				besti, bestj, bestsize = i-k+1, j-k+1, k
			}
		}
		j2len = newj2len
	}
	return besti, bestj, bestsize
}
