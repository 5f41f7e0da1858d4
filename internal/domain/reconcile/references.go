package reconcile

import (
	"github.com/FACorreiaa/orcamento-import/internal/domain/import/normalizer"
)

// ExpectedReference is a budget line item the composition section should
// detail. References are produced once by the budget pass and only read
// afterwards.
type ExpectedReference struct {
	Item           string   `json:"item"`
	Code           string   `json:"codigo"`
	Bank           string   `json:"banco"`
	CostWithoutBDI *float64 `json:"custo_sem_bdi"`
	CostWithBDI    *float64 `json:"custo_com_bdi"`
}

// RawKey is "{code}|{bank}" as read from the document.
func (r ExpectedReference) RawKey() string { return Key(r.Code, r.Bank) }

// Key is the normalized comparison key.
func (r ExpectedReference) Key() string { return NormKey(r.Code, r.Bank) }

// Index answers lookups over an immutable snapshot of expected references.
type Index struct {
	refs      []ExpectedReference
	byBank    map[string][]ExpectedReference
	itemByKey map[string]string
}

// NewIndex copies refs into a lookup index.
func NewIndex(refs []ExpectedReference) *Index {
	idx := &Index{
		refs:      append([]ExpectedReference(nil), refs...),
		byBank:    make(map[string][]ExpectedReference),
		itemByKey: make(map[string]string),
	}
	for _, r := range idx.refs {
		if r.Code == "" || r.Bank == "" {
			continue
		}
		bank := normalizer.NormCode(r.Bank)
		idx.byBank[bank] = append(idx.byBank[bank], r)
		if _, seen := idx.itemByKey[r.Key()]; !seen && r.Item != "" {
			idx.itemByKey[r.Key()] = r.Item
		}
	}
	return idx
}

// References returns the indexed references in their original order.
func (i *Index) References() []ExpectedReference {
	return i.refs
}

// Len returns the number of indexed references.
func (i *Index) Len() int {
	return len(i.refs)
}

// Recover finds the full expected code a truncated (or over-long) code
// stands for, among references of the same bank. It returns false when no
// reference is close enough or the best candidates tie.
func (i *Index) Recover(code, bank string) (string, bool) {
	exp := i.byBank[normalizer.NormCode(bank)]
	if len(exp) == 0 {
		return "", false
	}

	var candidates []string
	seen := make(map[string]struct{})
	for _, r := range exp {
		if _, dup := seen[r.Code]; dup {
			continue
		}
		if PrefixMatch(r.Code, code, RecoveryMaxMissing, MinComparableLen) {
			seen[r.Code] = struct{}{}
			candidates = append(candidates, r.Code)
		}
	}
	return BestPrefixCandidate(code, candidates)
}

// ItemFor returns the budget item number referencing code and bank, if any.
func (i *Index) ItemFor(code, bank string) string {
	return i.itemByKey[NormKey(code, bank)]
}
