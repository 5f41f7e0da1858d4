package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/FACorreiaa/orcamento-import/pkg/money"
)

// SourceConfig holds the parsing options of one pricing source (e.g. "sinapi").
type SourceConfig struct {
	ID           string             `json:"-"`
	Synthetic    SyntheticOptions   `json:"synthetic"`
	Sanitizer    SanitizerOptions   `json:"sanitizer"`
	Validation   ValidationOptions  `json:"validation"`
	Compositions CompositionOptions `json:"compositions"`
}

// SyntheticOptions drive line selection for the budget pass.
type SyntheticOptions struct {
	IgnoreMarkers  []string `json:"ignore_markers"`
	HeaderMarkers  []string `json:"header_markers"`
	HeaderPrefixes []string `json:"header_prefixes"`
	StopMarkers    []string `json:"stop_markers"`
	// Sources lists the bank names accepted in the "fonte" column.
	Sources []string `json:"sources"`
}

type SanitizerOptions struct {
	BreakBefore          []string `json:"break_before"`
	StripInlineFrom      []string `json:"strip_inline_from"`
	DropLinesIfContains  []string `json:"drop_lines_if_contains"`
	ToxicForContinuation []string `json:"toxic_for_continuation"`
}

type Tolerances struct {
	ItemAbs  float64 `json:"item_abs"`
	ItemRel  float64 `json:"item_rel"`
	GroupAbs float64 `json:"group_abs"`
	GroupRel float64 `json:"group_rel"`
}

type ValidationOptions struct {
	Tolerances             Tolerances `json:"tolerances"`
	AllowMissingGroupTotal bool       `json:"allow_missing_group_total"`
	MissingGroupTotalValue string     `json:"missing_group_total_value"`
	FailIfContaminatedText bool       `json:"fail_if_contaminated_text"`
	ReportAllGroupChecks   bool       `json:"report_all_group_checks"`
	Strict                 bool       `json:"strict"`
}

type CompositionOptions struct {
	SkipMarkers []string `json:"skip_markers"`
}

// DefaultSourceConfig returns the options used for anything a source file omits.
func DefaultSourceConfig() SourceConfig {
	return SourceConfig{
		Synthetic: SyntheticOptions{
			HeaderPrefixes: []string{"CUSTO UNITÁRIO", "ITEM CÓDIGO", "S/"},
			StopMarkers:    []string{"TOTAL SEM BDI", "TOTAL COM BDI"},
			Sources:        []string{"SINAPI", "Próprio"},
		},
		Validation: ValidationOptions{
			Tolerances: Tolerances{
				ItemAbs:  0.02,
				ItemRel:  0.0002,
				GroupAbs: 0.05,
				GroupRel: 0.0001,
			},
			AllowMissingGroupTotal: true,
			FailIfContaminatedText: true,
			Strict:                 true,
		},
		Compositions: CompositionOptions{
			SkipMarkers: []string{"ANEXO 3"},
		},
	}
}

// ItemTolerance is the tolerance for quant x unit == partial checks.
func (c SourceConfig) ItemTolerance() money.Tolerance {
	return money.Tolerance{Abs: c.Validation.Tolerances.ItemAbs, Rel: c.Validation.Tolerances.ItemRel}
}

// GroupTolerance is the tolerance for group total == sum(children) checks.
func (c SourceConfig) GroupTolerance() money.Tolerance {
	return money.Tolerance{Abs: c.Validation.Tolerances.GroupAbs, Rel: c.Validation.Tolerances.GroupRel}
}

// SourceStore is a read-only set of source configurations keyed by id.
// It is safe for concurrent use once loaded.
type SourceStore struct {
	sources map[string]SourceConfig
}

// LoadSources reads a JSON source configuration file.
func LoadSources(path string) (*SourceStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sources config: %w", err)
	}
	defer f.Close()

	store, err := ParseSources(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return store, nil
}

// ParseSources decodes a JSON object mapping source ids to their options.
// Every omitted option keeps its DefaultSourceConfig value.
func ParseSources(r io.Reader) (*SourceStore, error) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode sources config: %w", err)
	}

	store := &SourceStore{sources: make(map[string]SourceConfig, len(raw))}
	for id, msg := range raw {
		cfg := DefaultSourceConfig()
		if err := json.Unmarshal(msg, &cfg); err != nil {
			return nil, fmt.Errorf("source %q: %w", id, err)
		}
		cfg.ID = id
		store.sources[strings.ToLower(strings.TrimSpace(id))] = cfg
	}
	return store, nil
}

// NewSourceStore builds a store from in-memory configurations.
func NewSourceStore(cfgs ...SourceConfig) *SourceStore {
	store := &SourceStore{sources: make(map[string]SourceConfig, len(cfgs))}
	for _, c := range cfgs {
		store.sources[strings.ToLower(strings.TrimSpace(c.ID))] = c
	}
	return store
}

// Get returns the configuration for id, matched case-insensitively.
func (s *SourceStore) Get(id string) (SourceConfig, bool) {
	if s == nil {
		return SourceConfig{}, false
	}
	cfg, ok := s.sources[strings.ToLower(strings.TrimSpace(id))]
	return cfg, ok
}

// IDs returns the registered source ids in sorted order.
func (s *SourceStore) IDs() []string {
	ids := make([]string, 0, len(s.sources))
	for _, c := range s.sources {
		ids = append(ids, c.ID)
	}
	sort.Strings(ids)
	return ids
}
