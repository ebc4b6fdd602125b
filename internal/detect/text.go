package detect

import "strings"

// Words splits text on whitespace into a set.
func Words(text string) map[string]struct{} {
	fields := strings.Fields(text)
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// TextDiffRatio is 1 - |common| / max(|w1|, |w2|).
func TextDiffRatio(w1, w2 map[string]struct{}) float64 {
	larger := max(len(w1), len(w2))
	if larger == 0 {
		return 0
	}
	small, big := w1, w2
	if len(small) > len(big) {
		small, big = big, small
	}
	common := 0
	for w := range small {
		if _, ok := big[w]; ok {
			common++
		}
	}
	return 1 - float64(common)/float64(larger)
}
