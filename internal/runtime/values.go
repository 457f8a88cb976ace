package runtime

import (
	"fmt"
	"sort"

	"github.com/risor-io/risor/object"
)

// ToObject converts plain Go values (strings, numbers, bools, slices, and
// string-keyed maps of those) into Risor objects.
func ToObject(v any) object.Object {
	switch v := v.(type) {
	case nil:
		return object.Nil
	case object.Object:
		return v
	case string:
		return object.NewString(v)
	case bool:
		return object.NewBool(v)
	case int:
		return object.NewInt(int64(v))
	case int64:
		return object.NewInt(v)
	case float64:
		return object.NewFloat(v)
	case []string:
		items := make([]object.Object, len(v))
		for i, s := range v {
			items[i] = object.NewString(s)
		}
		return object.NewList(items)
	case []any:
		items := make([]object.Object, len(v))
		for i, x := range v {
			items[i] = ToObject(x)
		}
		return object.NewList(items)
	case map[string]any:
		m := make(map[string]object.Object, len(v))
		for k, x := range v {
			m[k] = ToObject(x)
		}
		return object.NewMap(m)
	}
	return object.Errorf("unsupported value %T", v)
}

// MapValue unwraps a Risor map.
func MapValue(obj object.Object) (map[string]object.Object, error) {
	m, ok := obj.(*object.Map)
	if !ok {
		if obj == nil {
			return nil, fmt.Errorf("expected map, got nothing")
		}
		return nil, fmt.Errorf("expected map, got %s", obj.Type())
	}
	return m.Value(), nil
}

// GetString returns m[key] when it is a string, else "".
func GetString(m map[string]object.Object, key string) string {
	if s, ok := m[key].(*object.String); ok {
		return s.Value()
	}
	return ""
}

// GetStringList returns m[key] as a sorted list of strings. A missing key or
// nil yields an empty list; any other non-list value is an error.
func GetStringList(m map[string]object.Object, key string) ([]string, error) {
	v, ok := m[key]
	if !ok || v == nil || v == object.Nil {
		return nil, nil
	}
	list, ok := v.(*object.List)
	if !ok {
		return nil, fmt.Errorf("%s: expected list, got %s", key, v.Type())
	}
	var out []string
	for _, item := range list.Value() {
		s, ok := item.(*object.String)
		if !ok {
			return nil, fmt.Errorf("%s: expected string items, got %s", key, item.Type())
		}
		out = append(out, s.Value())
	}
	sort.Strings(out)
	return out, nil
}
