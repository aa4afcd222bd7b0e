package privacy

import "fmt"

// Redact returns a copy of the document with all PII removed. The input
// is never mutated.
//
// The traversal covers the tree shape encoding/json produces from
// arbitrary JSON: maps, slices, strings and scalars. Per key/value pair:
//
//   - hashed field name: the value becomes a deterministic digest via
//     HashValue, so equal inputs remain correlatable in audit output.
//   - sensitive field name: the value becomes MaskToken.
//   - any other string: every free-text rule is applied, substituting
//     MaskToken at each match.
//
// Non-string values under a sensitive or hashed field are coerced to
// their string representation first; a numeric national ID is just as
// sensitive as a quoted one. Redact is idempotent: masked tokens match
// no rule and already-hashed values are not re-hashed.
func (p *Policy) Redact(doc any) any {
	switch v := doc.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, val := range v {
			out[key] = p.redactField(key, val)
		}

		return out

	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = p.Redact(item)
		}

		return out

	case string:
		return p.RedactText(v)

	default:
		// Numbers, bools, nil: nothing to scan at this level.
		return v
	}
}

// RedactText applies every free-text rule to a string, substituting the
// mask token at each match.
func (p *Policy) RedactText(text string) string {
	for _, rule := range p.rules {
		text = rule.Pattern.ReplaceAllString(text, MaskToken)
	}

	return text
}

// redactField resolves the redaction mode for one key/value pair.
func (p *Policy) redactField(key string, value any) any {
	switch {
	case p.Hashed(key):
		s := stringify(value)
		if alreadyHashed(s) {
			return s
		}

		return HashValue(s)

	case p.Sensitive(key):
		if s, ok := value.(string); ok && s == MaskToken {
			return s
		}

		return MaskToken

	default:
		return p.Redact(value)
	}
}

// stringify coerces any scalar to its string form for hashing or
// masking. Maps and slices under a sensitive key are flattened too;
// the whole subtree is sensitive, not just its leaves.
func stringify(value any) string {
	if s, ok := value.(string); ok {
		return s
	}

	return fmt.Sprintf("%v", value)
}
