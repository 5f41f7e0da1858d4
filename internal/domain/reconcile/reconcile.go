package reconcile

import (
	"sort"

	"github.com/FACorreiaa/orcamento-import/internal/domain/import/normalizer"
	"github.com/FACorreiaa/orcamento-import/internal/domain/validation"
)

// Detected is a principal composition found in the document.
type Detected struct {
	Code      string
	Bank      string
	UnitValue *float64
}

// RawKey is "{code}|{bank}" as read from the document.
func (d Detected) RawKey() string { return Key(d.Code, d.Bank) }

// ResolveAliases maps each orphan auxiliary key to the principal it most
// likely abbreviates or extends, within the same bank. Orphans that are
// principals themselves are skipped, as are ambiguous ones. Keys are raw
// "{code}|{bank}" strings; iteration is sorted so the result is stable.
func ResolveAliases(principalKeys, orphanKeys []string) map[string]string {
	principals := make(map[string]struct{}, len(principalKeys))
	byBank := make(map[string][]string)
	for _, k := range principalKeys {
		principals[k] = struct{}{}
		code, bank := SplitKey(k)
		nb := normalizer.NormCode(bank)
		byBank[nb] = append(byBank[nb], code)
	}
	for _, codes := range byBank {
		sort.Strings(codes)
	}

	orphans := append([]string(nil), orphanKeys...)
	sort.Strings(orphans)

	aliases := make(map[string]string)
	for _, key := range orphans {
		if _, ok := principals[key]; ok {
			continue
		}
		code, bank := SplitKey(key)

		var candidates []string
		for _, pc := range byBank[normalizer.NormCode(bank)] {
			if PrefixMatch(pc, code, AliasMaxMissing, MinComparableLen) {
				candidates = append(candidates, pc)
			}
		}
		if best, ok := BestPrefixCandidate(code, candidates); ok {
			aliases[key] = Key(best, bank)
		}
	}
	return aliases
}

// CrossReconcile compares expected references with detected principals and
// records unmatched references as missing and unexplained principals as extra.
// Prefix matches are accepted with a warning.
func CrossReconcile(refs []ExpectedReference, detected []Detected, report *validation.Report) {
	// Unique expected references, first occurrence wins.
	var expected []ExpectedReference
	expectedKeys := make(map[string]struct{})
	expectedByBank := make(map[string][]string)
	for _, r := range refs {
		if r.Code == "" || r.Bank == "" {
			continue
		}
		k := r.Key()
		if _, dup := expectedKeys[k]; dup {
			continue
		}
		expectedKeys[k] = struct{}{}
		expected = append(expected, r)
		nb := normalizer.NormCode(r.Bank)
		expectedByBank[nb] = append(expectedByBank[nb], r.Code)
	}

	dets := append([]Detected(nil), detected...)
	sort.SliceStable(dets, func(i, j int) bool { return dets[i].RawKey() < dets[j].RawKey() })

	detectedKeys := make(map[string]struct{}, len(dets))
	detectedByBank := make(map[string][]Detected)
	for _, d := range dets {
		detectedKeys[NormKey(d.Code, d.Bank)] = struct{}{}
		nb := normalizer.NormCode(d.Bank)
		detectedByBank[nb] = append(detectedByBank[nb], d)
	}

	for _, exp := range expected {
		if _, ok := detectedKeys[exp.Key()]; ok {
			continue
		}

		var candidates []Detected
		for _, d := range detectedByBank[normalizer.NormCode(exp.Bank)] {
			if PrefixMatch(exp.Code, d.Code, RecoveryMaxMissing, MinComparableLen) {
				candidates = append(candidates, d)
			}
		}

		best, ok := pickCandidate(exp, candidates)
		if !ok {
			report.AddMissing(exp.RawKey())
			continue
		}
		report.Warn("reconcile: prefix match accepted: expected '%s' ~ detected '%s'", exp.RawKey(), Key(best, exp.Bank))
	}

	for _, d := range dets {
		if _, ok := expectedKeys[NormKey(d.Code, d.Bank)]; ok {
			continue
		}
		explained := false
		for _, code := range expectedByBank[normalizer.NormCode(d.Bank)] {
			if PrefixMatch(d.Code, code, RecoveryMaxMissing, MinComparableLen) {
				explained = true
				break
			}
		}
		if !explained {
			report.AddExtra(d.RawKey())
		}
	}
}

// pickCandidate chooses among prefix candidates for exp. With several
// candidates, those whose unit value agrees with the expected cost without
// BDI are preferred before falling back to the length-based choice.
func pickCandidate(exp ExpectedReference, candidates []Detected) (string, bool) {
	switch len(candidates) {
	case 0:
		return "", false
	case 1:
		return candidates[0].Code, true
	}

	var agreeing, all []string
	for _, c := range candidates {
		all = append(all, c.Code)
		if Close(exp.CostWithoutBDI, c.UnitValue) {
			agreeing = append(agreeing, c.Code)
		}
	}
	if len(agreeing) > 0 {
		return BestPrefixCandidate(exp.Code, agreeing)
	}
	return BestPrefixCandidate(exp.Code, all)
}
