package adapter

import (
	"strconv"

	"github.com/opsforge/confsync/internal/types"
)

func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func mapList(v any) []map[string]any {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(list))
	for _, entry := range list {
		if m, ok := asMap(entry); ok {
			out = append(out, m)
		}
	}
	return out
}

// str returns the first present key's value as a string. YAML decoders
// hand back ints and bools for unquoted scalars; those stringify.
func str(m map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		return scalar(v)
	}
	return ""
}

func scalar(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case bool:
		return strconv.FormatBool(s)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case float64:
		return strconv.FormatFloat(s, 'g', -1, 64)
	}
	return ""
}

func intOf(m map[string]any, keys ...string) int {
	for _, k := range keys {
		switch v := m[k].(type) {
		case int:
			return v
		case int64:
			return int(v)
		case float64:
			return int(v)
		case string:
			n, err := strconv.Atoi(v)
			if err == nil {
				return n
			}
		}
	}
	return 0
}

// nameList accepts both a plain string list and the export form of a list
// of {"name": ...} maps.
func nameList(raw any) []string {
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, entry := range list {
		switch v := entry.(type) {
		case string:
			out = append(out, v)
		case map[string]any:
			if n := str(v, "name", "template", "host"); n != "" {
				out = append(out, n)
			}
		}
	}
	return out
}

// nameOrString accepts a bare string or a {"name": ...} wrapper.
func nameOrString(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case map[string]any:
		return str(v, "name")
	}
	return ""
}

// keyOrString accepts a bare item key or a {"key": ...} wrapper.
func keyOrString(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case map[string]any:
		return str(v, "key", "key_")
	}
	return ""
}

func itemRef(raw any) *types.ItemRef {
	m, ok := asMap(raw)
	if !ok {
		return nil
	}
	ref := types.ItemRef{Host: str(m, "host"), Key: str(m, "key", "key_")}
	if ref.Host == "" && ref.Key == "" {
		return nil
	}
	return &ref
}

func known(keys ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

// extraOf collects the scalar fields the importer has no opinion about,
// so they survive a round trip through the store unmodified.
func extraOf(m map[string]any, knownKeys map[string]struct{}) map[string]string {
	var extra map[string]string
	for k, v := range m {
		if _, ok := knownKeys[k]; ok {
			continue
		}
		s := scalar(v)
		if s == "" {
			continue
		}
		if extra == nil {
			extra = map[string]string{}
		}
		extra[k] = s
	}
	return extra
}
