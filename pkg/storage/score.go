package storage

import (
	"math"
	"strconv"
	"time"
)

// CosineSimilarity calculates the cosine similarity between two vectors.
//
// Returns a value between -1.0 and 1.0, or 0.0 if the vectors have different
// dimensions or zero norm.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// ApplyDecay applies a decay formula to a raw similarity given a point payload.
//
// The decayed score is similarity * exp(-ln2 * age_days / half_life_days).
// Age derives from the CreatedAtField payload value when present, else the
// StoredAtField value. A missing or unparsable timestamp, or a non-positive
// half-life, leaves the similarity unweighted.
//
// Backends without native formula support call this from Query so decay stays
// a single query-side computation rather than a rescoring pass.
func ApplyDecay(f *DecayFormula, payload map[string]interface{}, similarity float64) float64 {
	if f == nil {
		return similarity
	}

	now := f.Now
	if now.IsZero() {
		now = time.Now()
	}

	ts, ok := payloadTime(payload, f.CreatedAtField)
	if !ok {
		ts, ok = payloadTime(payload, f.StoredAtField)
	}
	if !ok {
		return similarity
	}

	halfLife := payloadFloat(payload, f.HalfLifeField)
	if halfLife <= 0 {
		return similarity
	}

	ageDays := now.Sub(ts).Hours() / 24.0
	if ageDays < 0 {
		ageDays = 0
	}

	return similarity * math.Exp(-math.Ln2*ageDays/halfLife)
}

// MatchFilters reports whether a payload satisfies a group filter and a set of
// equality filters. A []string filter value matches any listed value.
func MatchFilters(payload map[string]interface{}, groupID string, filters map[string]interface{}) bool {
	if groupID != "" {
		if g, _ := payload["group_id"].(string); g != groupID {
			return false
		}
	}

	for field, want := range filters {
		got, ok := payload[field]
		if !ok {
			return false
		}
		switch w := want.(type) {
		case []string:
			matched := false
			gs, _ := got.(string)
			for _, candidate := range w {
				if gs == candidate {
					matched = true
					break
				}
			}
			if !matched {
				return false
			}
		default:
			if !payloadEqual(got, want) {
				return false
			}
		}
	}

	return true
}

// ComparePayloadValues compares two payload values for ordering.
//
// RFC3339 timestamps and numbers order naturally; everything else falls back
// to lexical ordering of the string form. Returns -1, 0, or 1.
func ComparePayloadValues(a, b interface{}) int {
	if ta, ok := asTime(a); ok {
		if tb, ok := asTime(b); ok {
			switch {
			case ta.Before(tb):
				return -1
			case ta.After(tb):
				return 1
			default:
				return 0
			}
		}
	}

	if fa, ok := asFloat(a); ok {
		if fb, ok := asFloat(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			default:
				return 0
			}
		}
	}

	sa, sb := stringify(a), stringify(b)
	switch {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	default:
		return 0
	}
}

func payloadTime(payload map[string]interface{}, field string) (time.Time, bool) {
	if field == "" {
		return time.Time{}, false
	}
	return asTime(payload[field])
}

func payloadFloat(payload map[string]interface{}, field string) float64 {
	if field == "" {
		return 0
	}
	f, _ := asFloat(payload[field])
	return f
}

func asTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed, true
		}
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func payloadEqual(got, want interface{}) bool {
	if gf, ok := asFloat(got); ok {
		if wf, ok := asFloat(want); ok {
			return gf == wf
		}
	}
	return stringify(got) == stringify(want)
}

func stringify(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case bool:
		return strconv.FormatBool(s)
	}
	if f, ok := asFloat(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return ""
}
