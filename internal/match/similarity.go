package match

import "strings"

// levenshteinRatio returns 1 - editDistance/maxLen on runes, in [0, 1].
func levenshteinRatio(a, b string) float64 {
	ra := []rune(a)
	rb := []rune(b)
	if len(ra) == 0 && len(rb) == 0 {
		return 1.0
	}
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	dist := levenshtein(ra, rb)
	return 1.0 - float64(dist)/float64(maxLen)
}

func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
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

// jaroWinkler computes Jaro similarity with the Winkler common-prefix bonus
// (prefix capped at 4 runes, scaling factor 0.1).
func jaroWinkler(a, b string) float64 {
	ra := []rune(a)
	rb := []rune(b)
	j := jaro(ra, rb)
	if j == 0 {
		return 0
	}
	prefix := 0
	for prefix < len(ra) && prefix < len(rb) && prefix < 4 && ra[prefix] == rb[prefix] {
		prefix++
	}
	return j + float64(prefix)*0.1*(1.0-j)
}

func jaro(a, b []rune) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	window := maxInt(len(a), len(b))/2 - 1
	if window < 0 {
		window = 0
	}
	aMatched := make([]bool, len(a))
	bMatched := make([]bool, len(b))
	matches := 0
	for i, ar := range a {
		lo := i - window
		if lo < 0 {
			lo = 0
		}
		hi := i + window + 1
		if hi > len(b) {
			hi = len(b)
		}
		for j := lo; j < hi; j++ {
			if bMatched[j] || b[j] != ar {
				continue
			}
			aMatched[i] = true
			bMatched[j] = true
			matches++
			break
		}
	}
	if matches == 0 {
		return 0.0
	}
	transpositions := 0
	j := 0
	for i := range a {
		if !aMatched[i] {
			continue
		}
		for !bMatched[j] {
			j++
		}
		if a[i] != b[j] {
			transpositions++
		}
		j++
	}
	m := float64(matches)
	t := float64(transpositions) / 2.0
	return (m/float64(len(a)) + m/float64(len(b)) + (m-t)/m) / 3.0
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// tokenPairingSimilarity pairs each token of the shorter side with its best
// Levenshtein match on the other side, so swapped name order does not hurt
// the score. The sum of best pairings is divided by the larger token count.
func tokenPairingSimilarity(a, b string) float64 {
	ta := strings.Fields(a)
	tb := strings.Fields(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 1.0
	}
	if len(ta) == 0 || len(tb) == 0 {
		return 0.0
	}
	if len(ta) > len(tb) {
		ta, tb = tb, ta
	}
	used := make([]bool, len(tb))
	sum := 0.0
	for _, tok := range ta {
		best := -1.0
		bestIdx := -1
		for j, other := range tb {
			if used[j] {
				continue
			}
			if s := levenshteinRatio(tok, other); s > best {
				best = s
				bestIdx = j
			}
		}
		if bestIdx >= 0 {
			used[bestIdx] = true
			sum += best
		}
	}
	return sum / float64(len(tb))
}

// lcsRatio returns the longest common subsequence length over the longer
// input's length.
func lcsRatio(a, b string) float64 {
	ra := []rune(a)
	rb := []rune(b)
	if len(ra) == 0 && len(rb) == 0 {
		return 1.0
	}
	maxLen := maxInt(len(ra), len(rb))
	if maxLen == 0 {
		return 1.0
	}
	return float64(lcsLength(ra, rb)) / float64(maxLen)
}

func lcsLength(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
		for j := range curr {
			curr[j] = 0
		}
	}
	return prev[len(b)]
}

// NameSimilarity averages four complementary string metrics over already
// normalized names. Levenshtein and LCS reward overall shape, Jaro-Winkler
// rewards shared prefixes, and token pairing tolerates reordered tokens.
func NameSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0.0
	}
	return (levenshteinRatio(a, b) +
		jaroWinkler(a, b) +
		tokenPairingSimilarity(a, b) +
		lcsRatio(a, b)) / 4.0
}
