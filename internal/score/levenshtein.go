// Package score measures how much a transformed text differs from a
// reference using normalized Levenshtein edit distance.
package score

// Distance returns the Levenshtein edit distance between a and b: the
// minimum number of single-rune insertions, deletions, and substitutions to
// transform one into the other. Two-row dynamic programming keeps memory at
// O(min side).
func Distance(a, b string) int {
	if a == b {
		return 0
	}
	ar := []rune(a)
	br := []rune(b)
	if len(ar) == 0 {
		return len(br)
	}
	if len(br) == 0 {
		return len(ar)
	}

	prev := make([]int, len(br)+1)
	curr := make([]int, len(br)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ar); i++ {
		curr[0] = i
		for j := 1; j <= len(br); j++ {
			cost := 1
			if ar[i-1] == br[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}

	return prev[len(br)]
}

// Similarity returns 1 - distance/max(len(a), len(b), 1), a symmetric score
// in [0,1]. Identical strings score 1.0; the max(...,1) guard makes the
// empty/empty case score 1.0 rather than dividing by zero.
func Similarity(a, b string) float64 {
	maxLen := len([]rune(a))
	if lb := len([]rune(b)); lb > maxLen {
		maxLen = lb
	}
	if maxLen < 1 {
		maxLen = 1
	}
	return 1 - float64(Distance(a, b))/float64(maxLen)
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
