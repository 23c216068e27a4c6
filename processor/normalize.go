package processor

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"tenderflow/models"
)

// PreferredLanguages is the resolution order applied to language-keyed TED
// fields. TED keys localized text by ISO 639-2 code.
var PreferredLanguages = []string{"eng", "fra", "deu", "spa", "ita"}

// ToSequence coerces any raw field value into an ordered sequence. Absent
// values become an empty sequence, arrays pass through untouched, and any
// other scalar becomes a single-element sequence. It never panics regardless
// of input shape.
func ToSequence(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	default:
		return []any{v}
	}
}

// ResolveLocalized picks a single representative value from a language-keyed
// mapping. Non-map values pass through unchanged. For maps the preferred
// languages are tried in order; the first present non-empty entry wins, with
// one-element sequences unwrapped to their scalar. When none of the preferred
// languages is present the map's first value by sorted key order is used, so
// resolution is deterministic. An empty map yields the N/A sentinel; this
// function never fails.
func ResolveLocalized(v any, langs []string) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	if len(langs) == 0 {
		langs = PreferredLanguages
	}
	for _, lang := range langs {
		if val, ok := m[lang]; ok {
			if u := unwrapOne(val); u != nil {
				return u
			}
		}
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if u := unwrapOne(m[k]); u != nil {
			return u
		}
	}
	return models.NA
}

// unwrapOne reduces a one-element sequence to its scalar and filters out
// empty values, returning nil when nothing usable remains.
func unwrapOne(v any) any {
	seq := ToSequence(v)
	switch len(seq) {
	case 0:
		return nil
	case 1:
		if s, ok := seq[0].(string); ok && strings.TrimSpace(s) == "" {
			return nil
		}
		return seq[0]
	default:
		return seq
	}
}

// asString renders a scalar field value as text, resolving localized maps
// first. Empty results collapse to the provided default.
func asString(v any, def string) string {
	v = ResolveLocalized(v, nil)
	switch t := v.(type) {
	case nil:
		return def
	case string:
		if strings.TrimSpace(t) == "" {
			return def
		}
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case []any:
		if len(t) > 0 {
			return asString(t[0], def)
		}
		return def
	default:
		return fmt.Sprintf("%v", t)
	}
}

// asFloat parses a numeric field value. The upstream API mixes JSON numbers
// and numeric strings (occasionally with grouping commas); anything else is
// reported as not-a-number rather than an error so a single bad value never
// sinks the notice.
func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(t, ",", ""))
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
