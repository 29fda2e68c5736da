package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Raw categorical attribute columns of the product collection that feed the
// buyer preference model.
const (
	AttrBaseColor = "base_color"
	AttrSeason    = "season"
	AttrUsage     = "usage"
	AttrGender    = "gender"
)

// TrackedAttributes lists the raw attribute columns in a fixed order.
var TrackedAttributes = []string{AttrBaseColor, AttrSeason, AttrUsage, AttrGender}

// Stored preference keys.
const (
	PrefColor  = "product_color"
	PrefSeason = "product_season"
	PrefUsage  = "product_usage"
	PrefGender = "product_gender"
)

// PreferenceKeys lists the stored preference attribute keys in a fixed order.
var PreferenceKeys = []string{PrefColor, PrefSeason, PrefUsage, PrefGender}

// NormalizeAttributeName maps a raw attribute column name to the key it is
// stored under in a preference record. Any name mentioning color or colour
// becomes product_color; everything else becomes product_<name>.
func NormalizeAttributeName(raw string) string {
	lower := strings.ToLower(raw)
	if strings.Contains(lower, "color") || strings.Contains(lower, "colour") {
		return PrefColor
	}
	return "product_" + raw
}

// AttributeCountMap counts how often each value of one attribute occurred.
type AttributeCountMap map[string]int

// CountValues builds an AttributeCountMap from observed values. Empty
// values are ignored.
func CountValues(values []string) AttributeCountMap {
	m := make(AttributeCountMap, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		m[v]++
	}
	return m
}

// Clone returns a copy of m.
func (m AttributeCountMap) Clone() AttributeCountMap {
	out := make(AttributeCountMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Add sums other into m value by value. Values present on only one side are
// kept unchanged.
func (m AttributeCountMap) Add(other AttributeCountMap) {
	for k, v := range other {
		m[k] += v
	}
}

// Dominant returns the value with the highest count. Values are visited in
// ascending lexicographic order and the first one reaching the maximum wins.
func (m AttributeCountMap) Dominant() (string, bool) {
	if len(m) == 0 {
		return "", false
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	best, bestCount := keys[0], m[keys[0]]
	for _, k := range keys[1:] {
		if m[k] > bestCount {
			best, bestCount = k, m[k]
		}
	}
	return best, true
}

// Encode serializes m for a string column of the preference collection.
func (m AttributeCountMap) Encode() (string, error) {
	if m == nil {
		m = AttributeCountMap{}
	}
	b, err := json.Marshal(map[string]int(m))
	if err != nil {
		return "", fmt.Errorf("failed to encode attribute counts: %w", err)
	}
	return string(b), nil
}

// DecodeAttributeCountMap parses a stored count map. It accepts the object
// form written by Encode as well as the older single-element list form
// ([{"red":"2"}]) whose counts were stored as strings. An empty string
// decodes to an empty map.
func DecodeAttributeCountMap(s string) (AttributeCountMap, error) {
	data := bytes.TrimSpace([]byte(s))
	if len(data) == 0 {
		return AttributeCountMap{}, nil
	}

	if data[0] == '[' {
		var list []map[string]json.RawMessage
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("failed to decode attribute counts: %w", err)
		}
		out := AttributeCountMap{}
		for _, obj := range list {
			if err := decodeCounts(obj, out); err != nil {
				return nil, err
			}
		}
		return out, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("failed to decode attribute counts: %w", err)
	}
	out := AttributeCountMap{}
	if err := decodeCounts(obj, out); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeCounts(obj map[string]json.RawMessage, into AttributeCountMap) error {
	for k, raw := range obj {
		var n int
		if err := json.Unmarshal(raw, &n); err == nil {
			into[k] += n
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return fmt.Errorf("attribute count for %q is neither number nor string", k)
		}
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return fmt.Errorf("attribute count for %q: %w", k, err)
		}
		into[k] += n
	}
	return nil
}

// AttributeCounts maps a preference key (product_color, ...) to its counts.
type AttributeCounts map[string]AttributeCountMap

// MergeAttributeCounts combines a stored preference with freshly observed
// counts. Both sides must already use normalized keys. Counts for a value
// seen on both sides are summed; everything else is carried over. Neither
// input is modified.
func MergeAttributeCounts(stored, fresh AttributeCounts) AttributeCounts {
	out := make(AttributeCounts, len(stored)+len(fresh))
	for attr, counts := range stored {
		out[attr] = counts.Clone()
	}
	for attr, counts := range fresh {
		existing, ok := out[attr]
		if !ok {
			out[attr] = counts.Clone()
			continue
		}
		existing.Add(counts)
	}
	return out
}

// UserPreferenceRecord is the single stored preference of one buyer.
type UserPreferenceRecord struct {
	BuyerID    string          `json:"buyer_id"`
	Attributes AttributeCounts `json:"attributes"`
	// Vector is the text embedding of the buyer's most recent purchase.
	Vector []float32 `json:"-"`
}

// HasAttributeData reports whether any attribute holds at least one value.
func (r *UserPreferenceRecord) HasAttributeData() bool {
	if r == nil {
		return false
	}
	for _, counts := range r.Attributes {
		if len(counts) > 0 {
			return true
		}
	}
	return false
}

// DominantValue pairs a preference key with its most frequent value.
type DominantValue struct {
	Attribute string `json:"attribute"`
	Value     string `json:"value"`
	Count     int    `json:"count"`
}

// DominantValues returns the dominant value of every non-empty attribute,
// ordered by attribute key.
func (r *UserPreferenceRecord) DominantValues() []DominantValue {
	if r == nil {
		return nil
	}
	attrs := make([]string, 0, len(r.Attributes))
	for attr := range r.Attributes {
		attrs = append(attrs, attr)
	}
	sort.Strings(attrs)

	var out []DominantValue
	for _, attr := range attrs {
		counts := r.Attributes[attr]
		if v, ok := counts.Dominant(); ok {
			out = append(out, DominantValue{Attribute: attr, Value: v, Count: counts[v]})
		}
	}
	return out
}
