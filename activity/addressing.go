package activity

import "slices"

// Returns true if the address appears in the given addressing field ("to", "cc", etc).
func (o Object) AddressedTo(field, addr string) bool {
	return slices.Contains(o.Strings(field), addr)
}

// Returns the entries of an addressing field, including inline recipient objects. A single value is returned as a one-element list. The result is a new slice.
func (o Object) Addresses(field string) []any {
	switch v := o[field].(type) {
	case nil:
		return nil
	case []any:
		return slices.Clone(v)
	case []string:
		return normalize(v).([]any)
	default:
		return []any{v}
	}
}

// Returns list without any string entry equal to val. Other entries are kept, in order. Always returns a new slice.
func Without(list []any, val string) []any {
	out := make([]any, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok && s == val {
			continue
		}
		out = append(out, v)
	}
	return out
}

// Removes duplicate string entries, keeping the first occurrence of each. Non-string entries are kept as-is. Always returns a new slice.
func Dedupe(list []any) []any {
	out := make([]any, 0, len(list))
	seen := make(map[string]bool, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			if seen[s] {
				continue
			}
			seen[s] = true
		}
		out = append(out, v)
	}
	return out
}

// Returns a new slice with val in front of list.
func Prepend(val string, list []any) []any {
	out := make([]any, 0, len(list)+1)
	out = append(out, val)
	return append(out, list...)
}
