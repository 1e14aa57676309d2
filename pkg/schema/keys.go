package schema

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Mangle converts a label or annotation key the way the metering source
// reports it: the key is NFC normalized and every character outside
// [a-zA-Z0-9_] is replaced by an underscore.
func Mangle(key string) string {
	key = norm.NFC.String(key)
	var b strings.Builder
	b.Grow(len(key))
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// KeyMapping maps mangled keys back to the keys the user declared. Only keys
// that mangling actually changed are present.
type KeyMapping map[string]string

func NewKeyMapping(keys []string) KeyMapping {
	m := make(KeyMapping, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if mangled := Mangle(k); mangled != k {
			m[mangled] = k
		}
	}
	return m
}

// Original returns the declared key for mangled.
func (m KeyMapping) Original(mangled string) (string, bool) {
	orig, ok := m[mangled]
	return orig, ok
}

// Apply renames a dynamic column such as properties.labels.<mangled> to
// properties.labels.<original>. Other names are returned unchanged.
func (m KeyMapping) Apply(name string) string {
	for _, prefix := range []string{LabelsPrefix, AnnotationsPrefix} {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		if orig, ok := m[strings.TrimPrefix(name, prefix)]; ok {
			return prefix + orig
		}
	}
	return name
}

// ColumnMapping holds the KeyMapping of each dynamic column prefix.
type ColumnMapping map[string]KeyMapping

// Apply renames a dynamic column using the mapping of its own prefix only.
func (m ColumnMapping) Apply(name string) string {
	for prefix, km := range m {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		if orig, ok := km.Original(strings.TrimPrefix(name, prefix)); ok {
			return prefix + orig
		}
	}
	return name
}
