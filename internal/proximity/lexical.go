package proximity

import (
	"cmp"
	"math"
	"slices"
	"strings"

	"github.com/sells-group/voter-geo/internal/address"
	"github.com/sells-group/voter-geo/internal/voter"
)

// Lexical scores.
const (
	ScoreOther     = 1
	ScoreSubstring = 2
	ScoreExact     = 3
)

// RankLexical orders one ring without coordinates: exact street-name matches
// first, closest house number first among them, then partial street matches,
// then everything else. The order is total, so the same input always ranks
// the same way.
func RankLexical(query address.Parsed, records []voter.Record, ring int) []Result {
	qHouse, hasHouse := query.HouseNumber()

	out := make([]Result, len(records))
	for i, r := range records {
		res := newResult(r, ring)
		res.Score = streetScore(query.Street, res.street)
		res.houseGap = math.MaxInt
		if res.Score == ScoreExact && hasHouse && res.house >= 0 {
			res.houseGap = abs(res.house - qHouse)
		}
		out[i] = res
	}

	slices.SortFunc(out, func(a, b Result) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		if c := cmp.Compare(a.houseGap, b.houseGap); c != 0 {
			return c
		}
		return compareTieBreak(a, b)
	})
	return out
}

func streetScore(query, street string) int {
	if query == "" || street == "" {
		return ScoreOther
	}
	if query == street {
		return ScoreExact
	}
	if strings.Contains(street, query) || strings.Contains(query, street) {
		return ScoreSubstring
	}
	return ScoreOther
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
