package cache

func cloneFields(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

// cloneValue deep-copies the container shapes a field can hold. Anything
// else is treated as an immutable scalar.
func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneFields(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(t))
		for i, e := range t {
			out[i] = cloneFields(e)
		}
		return out
	case []Key:
		return append([]Key(nil), t...)
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

// collectRefs appends every Key found inside v to dst.
func collectRefs(v any, dst []Key) []Key {
	switch t := v.(type) {
	case Key:
		dst = append(dst, t)
	case []Key:
		dst = append(dst, t...)
	case map[string]any:
		for _, e := range t {
			dst = collectRefs(e, dst)
		}
	case []any:
		for _, e := range t {
			dst = collectRefs(e, dst)
		}
	case []map[string]any:
		for _, e := range t {
			dst = collectRefs(e, dst)
		}
	}
	return dst
}
