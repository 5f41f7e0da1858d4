// Package reconcile repairs PDF-mangled composition codes and reconciles the
// compositions found in a document against the references its budget expects.
package reconcile

import (
	"sort"
	"strings"

	"github.com/FACorreiaa/orcamento-import/internal/domain/import/normalizer"
	"github.com/FACorreiaa/orcamento-import/pkg/money"
)

// Prefix match bounds.
const (
	RecoveryMaxMissing = 4
	AliasMaxMissing    = 1
	MinComparableLen   = 5
)

// UnitCostTolerance breaks ties between prefix candidates by unit cost.
var UnitCostTolerance = money.Tolerance{Abs: 0.02, Rel: 0.002}

// Key builds the raw identity key "{code}|{bank}".
func Key(code, bank string) string {
	return normalizer.CollapseWhitespace(code) + "|" + normalizer.CollapseWhitespace(bank)
}

// NormKey builds the comparison key of a code and bank.
func NormKey(code, bank string) string {
	return normalizer.NormCode(code) + "|" + normalizer.NormCode(bank)
}

// SplitKey splits a raw "{code}|{bank}" key.
func SplitKey(key string) (code, bank string) {
	key = normalizer.CollapseWhitespace(key)
	c, b, ok := strings.Cut(key, "|")
	if !ok {
		return key, ""
	}
	return strings.TrimSpace(c), strings.TrimSpace(b)
}

// PrefixMatch reports whether one normalized code is a prefix of the other,
// both are at least minLen long and their lengths differ by at most maxMissing.
func PrefixMatch(a, b string, maxMissing, minLen int) bool {
	a, b = normalizer.NormCode(a), normalizer.NormCode(b)
	if a == "" || b == "" {
		return false
	}
	if min(len(a), len(b)) < minLen {
		return false
	}
	if abs(len(a)-len(b)) > maxMissing {
		return false
	}
	return strings.HasPrefix(a, b) || strings.HasPrefix(b, a)
}

// BestPrefixCandidate picks the candidate closest in length to expected,
// preferring the longer one on equal distance. Callers pass candidates already
// filtered by PrefixMatch. A tie on both criteria yields no match: an
// ambiguous code is left unresolved rather than guessed.
func BestPrefixCandidate(expected string, candidates []string) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}

	type scored struct {
		diff, negLen int
		cand         string
	}

	expn := normalizer.NormCode(expected)
	all := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		cn := normalizer.NormCode(c)
		all = append(all, scored{
			diff:   abs(len(expn) - len(cn)),
			negLen: -max(len(expn), len(cn)),
			cand:   c,
		})
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].diff != all[j].diff {
			return all[i].diff < all[j].diff
		}
		if all[i].negLen != all[j].negLen {
			return all[i].negLen < all[j].negLen
		}
		return all[i].cand < all[j].cand
	})

	best := all[0]
	if len(all) > 1 && all[1].diff == best.diff && all[1].negLen == best.negLen {
		return "", false
	}
	return best.cand, true
}

// Close compares an expected unit cost with a detected one under
// UnitCostTolerance. Missing values never disqualify.
func Close(expected, detected *float64) bool {
	return UnitCostTolerance.CloseEnough(expected, detected)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
