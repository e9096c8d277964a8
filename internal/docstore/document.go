package docstore

import (
	"fmt"
	"reflect"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// Document is one stored document as seen by a client.
type Document struct {
	ID         string
	Collection string
	Fields     map[string]any
	CreateTime time.Time
	UpdateTime time.Time
	// Version is the backend commit sequence that produced this state.
	Version int64
	// HasPendingWrites is set while a local write is not yet acknowledged.
	HasPendingWrites bool
}

// Path returns the full document path.
func (d Document) Path() string {
	return documentPath(d.Collection, d.ID)
}

// Decode copies the document fields into out, matching `doc` struct tags.
func (d Document) Decode(out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "doc",
		Result:  out,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
		),
	})
	if err != nil {
		return fmt.Errorf("building decoder: %w", err)
	}
	if err := decoder.Decode(d.Fields); err != nil {
		return fmt.Errorf("decoding %s: %w", d.Path(), err)
	}
	return nil
}

func (d Document) clone() Document {
	d.Fields = cloneFields(d.Fields)
	return d
}

type serverTimestamp struct{}

// ServerTimestamp returns a placeholder that the backend replaces with the
// commit time.
func ServerTimestamp() any {
	return serverTimestamp{}
}

// IsServerTimestamp reports whether v is the ServerTimestamp placeholder.
func IsServerTimestamp(v any) bool {
	_, ok := v.(serverTimestamp)
	return ok
}

func cloneFields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneFields(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), val...)
	default:
		return v
	}
}

// resolveTimestamps replaces ServerTimestamp placeholders with now.
func resolveTimestamps(fields map[string]any, now time.Time) {
	for k, v := range fields {
		switch val := v.(type) {
		case serverTimestamp:
			fields[k] = now
		case map[string]any:
			resolveTimestamps(val, now)
		}
	}
}

func mergeFields(dst, src map[string]any) {
	for k, v := range src {
		nested, ok := v.(map[string]any)
		existing, exists := dst[k].(map[string]any)
		if ok && exists {
			mergeFields(existing, nested)
			continue
		}
		dst[k] = cloneValue(v)
	}
}

func equalDocuments(a, b []Document) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !equalDocument(&a[i], &b[i]) {
			return false
		}
	}
	return true
}

func equalDocument(a, b *Document) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID &&
		a.Collection == b.Collection &&
		a.HasPendingWrites == b.HasPendingWrites &&
		equalValues(a.Fields, b.Fields)
}

func equalValues(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	switch va := a.(type) {
	case time.Time:
		vb, ok := b.(time.Time)
		return ok && va.Equal(vb)
	case map[string]any:
		vb, ok := b.(map[string]any)
		if !ok || len(va) != len(vb) {
			return false
		}
		for k, v := range va {
			other, exists := vb[k]
			if !exists || !equalValues(v, other) {
				return false
			}
		}
		return true
	}
	if la, ok := toList(a); ok {
		lb, ok := toList(b)
		if !ok || len(la) != len(lb) {
			return false
		}
		for i := range la {
			if !equalValues(la[i], lb[i]) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func toList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}
