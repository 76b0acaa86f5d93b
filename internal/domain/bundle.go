package domain

import (
	"encoding/json"
	"sort"
)

// Bundle maps a fact category to the raw upstream payload for it.
type Bundle map[string]json.RawMessage

// Clone returns a deep copy so callers can mutate the result freely.
func (b Bundle) Clone() Bundle {
	if b == nil {
		return nil
	}
	out := make(Bundle, len(b))
	for k, v := range b {
		cp := make(json.RawMessage, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}

// Categories returns the category names present, sorted.
func (b Bundle) Categories() []string {
	out := make([]string, 0, len(b))
	for k := range b {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// BundleFromFacts assembles a bundle from stored fact rows.
func BundleFromFacts(facts []ProfileFact) Bundle {
	out := make(Bundle, len(facts))
	for _, f := range facts {
		out[f.Category] = json.RawMessage(f.Payload)
	}
	return out
}
