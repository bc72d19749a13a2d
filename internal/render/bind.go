package render

import (
	"strings"
)

// Bind copies binding and replaces every unset value with placeholder.
// Unset means nil or a blank string, at any depth.
func Bind(binding Binding, placeholder string) Binding {
	out := make(Binding, len(binding))
	for k, v := range binding {
		out[k] = bindValue(v, placeholder)
	}
	return out
}

func bindValue(v any, placeholder string) any {
	switch t := v.(type) {
	case nil:
		return placeholder
	case string:
		if strings.TrimSpace(t) == "" {
			return placeholder
		}
		return t
	case Binding:
		return Bind(t, placeholder)
	case map[string]any:
		return map[string]any(Bind(t, placeholder))
	case []map[string]any:
		rows := make([]map[string]any, len(t))
		for i, row := range t {
			rows[i] = map[string]any(Bind(row, placeholder))
		}
		return rows
	case []any:
		items := make([]any, len(t))
		for i, item := range t {
			items[i] = bindValue(item, placeholder)
		}
		return items
	default:
		return v
	}
}
