package queryspec

import (
	"strconv"
	"strings"
)

const (
	MinLimit     = 1
	MaxLimit     = 500
	DefaultLimit = "500"
)

// Spec is a validated query specification. Every field, filter key, pivot and
// sort base field belongs to the allow-list it was built against, pivots are
// always selected as fields, and Fields, Pivots and Sorts hold no duplicates.
type Spec struct {
	Fields  []string          `json:"fields"`
	Filters map[string]string `json:"filters"`
	Pivots  []string          `json:"pivots"`
	Sorts   []string          `json:"sorts"`
	Limit   string            `json:"limit,omitempty"`
}

func Empty(limit string) Spec {
	return Spec{
		Fields:  []string{},
		Filters: map[string]string{},
		Pivots:  []string{},
		Sorts:   []string{},
		Limit:   limit,
	}
}

type AllowList struct {
	names map[string]struct{}
}

func NewAllowList(names []string) AllowList {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name != "" {
			set[name] = struct{}{}
		}
	}
	return AllowList{names: set}
}

func (a AllowList) Contains(name string) bool {
	_, ok := a.names[name]
	return ok
}

func (a AllowList) Len() int {
	return len(a.names)
}

// New builds a Spec from untrusted model output. Entries outside the allow-list
// are dropped and reported, never treated as errors.
func New(raw Raw, allowed AllowList) (Spec, []string) {
	spec := Empty("")
	var dropped []string

	keep := func(name string) bool {
		if allowed.Contains(name) {
			return true
		}
		dropped = append(dropped, name)
		return false
	}

	for _, name := range trimAll(append(append([]string{}, raw.FieldNames...), raw.Fields...)) {
		if keep(name) {
			spec.Fields = append(spec.Fields, name)
		}
	}
	for _, name := range trimAll(raw.Pivots) {
		if keep(name) {
			spec.Pivots = append(spec.Pivots, name)
			spec.Fields = append(spec.Fields, name)
		}
	}
	for _, sort := range trimAll(raw.Sorts) {
		if keep(SortField(sort)) {
			spec.Sorts = append(spec.Sorts, sort)
		}
	}
	for key, value := range raw.Filters {
		key = strings.TrimSpace(key)
		if key == "" || value == "" {
			continue
		}
		if keep(key) {
			spec.Filters[key] = value
		}
	}
	if limit, ok := NormalizeLimit(raw.Limit); ok {
		spec.Limit = limit
	}

	spec.Fields = dedupe(spec.Fields)
	spec.Pivots = dedupe(spec.Pivots)
	spec.Sorts = dedupe(spec.Sorts)
	return spec, dropped
}

// Merge folds other into s. Fields, sorts and pivots are concatenated and
// de-duplicated keeping the first occurrence, pivots are also selected as
// fields, filters from other overwrite duplicate keys and a non-empty limit
// from other wins.
func (s Spec) Merge(other Spec) Spec {
	merged := Spec{
		Fields:  concat(s.Fields, other.Fields, other.Pivots),
		Pivots:  concat(s.Pivots, other.Pivots),
		Sorts:   concat(s.Sorts, other.Sorts),
		Filters: make(map[string]string, len(s.Filters)+len(other.Filters)),
		Limit:   s.Limit,
	}
	for key, value := range s.Filters {
		merged.Filters[key] = value
	}
	for key, value := range other.Filters {
		merged.Filters[key] = value
	}
	if other.Limit != "" {
		merged.Limit = other.Limit
	}
	return merged
}

// WithoutPivots clears pivots while keeping the pivot fields selected.
func (s Spec) WithoutPivots() Spec {
	s.Pivots = []string{}
	return s
}

// WithPivots replaces pivots with the allowed subset of pivots.
func (s Spec) WithPivots(pivots []string, allowed AllowList) Spec {
	next := make([]string, 0, len(pivots))
	for _, pivot := range trimAll(pivots) {
		if allowed.Contains(pivot) {
			next = append(next, pivot)
		}
	}
	s.Pivots = dedupe(next)
	s.Fields = concat(s.Fields, s.Pivots)
	return s
}

func (s Spec) IsEmpty() bool {
	return len(s.Fields) == 0 && len(s.Filters) == 0 && len(s.Pivots) == 0 && len(s.Sorts) == 0
}

// Raw returns the spec in the shape the prompts ask the model to produce.
func (s Spec) Raw() Raw {
	return Raw{
		FieldNames: s.Fields,
		Filters:    s.Filters,
		Pivots:     s.Pivots,
		Sorts:      s.Sorts,
		Limit:      s.Limit,
	}
}

// SortField strips an optional direction suffix from a sort expression.
func SortField(sort string) string {
	fields := strings.Fields(sort)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// NormalizeLimit accepts an integer in [MinLimit, MaxLimit] and returns its
// canonical string form.
func NormalizeLimit(raw string) (string, bool) {
	trimmed := strings.Trim(strings.TrimSpace(raw), `"'`)
	if trimmed == "" {
		return "", false
	}
	value, err := strconv.Atoi(trimmed)
	if err != nil {
		return "", false
	}
	if value < MinLimit || value > MaxLimit {
		return "", false
	}
	return strconv.Itoa(value), true
}

func concat(lists ...[]string) []string {
	total := 0
	for _, list := range lists {
		total += len(list)
	}
	out := make([]string, 0, total)
	for _, list := range lists {
		out = append(out, list...)
	}
	return dedupe(out)
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value != "" {
			out = append(out, value)
		}
	}
	return out
}
