package entity

import "strings"

/*
trigrams splits a normalized string into padded three-grams the way
pg_trgm does, so fuzzy matching behaves like the trigram index the
relational layout specifies.
*/
func trigrams(s string) map[string]bool {
	s = Normalize(s)
	if s == "" {
		return nil
	}

	set := map[string]bool{}

	for _, word := range strings.Fields(s) {
		padded := "  " + word + " "

		for i := 0; i+3 <= len(padded); i++ {
			set[padded[i:i+3]] = true
		}
	}

	return set
}

/*
TrigramSimilarity returns the Jaccard similarity of the two strings'
trigram sets, in [0,1]. Identical normalized strings score 1.
*/
func TrigramSimilarity(a, b string) float64 {
	ta, tb := trigrams(a), trigrams(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	shared := 0

	for gram := range ta {
		if tb[gram] {
			shared++
		}
	}

	union := len(ta) + len(tb) - shared
	if union == 0 {
		return 0
	}

	return float64(shared) / float64(union)
}
