package docstore

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Op is a field filter operator.
type Op string

const (
	OpEqual         Op = "=="
	OpArrayContains Op = "array-contains"
)

// Direction orders query results.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

func (d Direction) String() string {
	if d == Descending {
		return "desc"
	}
	return "asc"
}

// Filter is a single field predicate.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Where builds a Filter.
func Where(field string, op Op, value any) Filter {
	return Filter{Field: field, Op: op, Value: value}
}

// Matches reports whether fields satisfy the filter.
func (f Filter) Matches(fields map[string]any) bool {
	v, ok := fields[f.Field]
	if !ok {
		return false
	}
	switch f.Op {
	case OpEqual:
		return equalValues(v, f.Value)
	case OpArrayContains:
		list, ok := toList(v)
		if !ok {
			return false
		}
		for _, item := range list {
			if equalValues(item, f.Value) {
				return true
			}
		}
	}
	return false
}

// Query selects documents of one collection. Every Filter must match and, when
// AnyOf is not empty, at least one of AnyOf must match.
type Query struct {
	Collection string
	Filters    []Filter
	AnyOf      []Filter
	OrderBy    string
	Direction  Direction
}

// Validate checks the query can be evaluated.
func (q Query) Validate() error {
	if err := ValidateCollection(q.Collection); err != nil {
		return err
	}
	for _, f := range append(append([]Filter(nil), q.Filters...), q.AnyOf...) {
		if strings.TrimSpace(f.Field) == "" {
			return fmt.Errorf("%w: filter without field", ErrInvalidQuery)
		}
		switch f.Op {
		case OpEqual, OpArrayContains:
		default:
			return fmt.Errorf("%w: unsupported operator %q", ErrInvalidQuery, f.Op)
		}
	}
	return nil
}

// Matches reports whether doc belongs to the query result. Documents without
// the order field are excluded.
func (q Query) Matches(doc Document) bool {
	if doc.Collection != q.Collection {
		return false
	}
	for _, f := range q.Filters {
		if !f.Matches(doc.Fields) {
			return false
		}
	}
	if len(q.AnyOf) > 0 {
		matched := false
		for _, f := range q.AnyOf {
			if f.Matches(doc.Fields) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if q.OrderBy != "" {
		if _, ok := doc.Fields[q.OrderBy]; !ok {
			return false
		}
	}
	return true
}

// Apply filters and orders docs into a new slice.
func (q Query) Apply(docs []Document) []Document {
	out := make([]Document, 0, len(docs))
	for _, doc := range docs {
		if q.Matches(doc) {
			out = append(out, doc)
		}
	}
	q.sort(out)
	return out
}

// sort orders by OrderBy; ties, and queries without OrderBy, fall back to the
// document id in the same direction.
func (q Query) sort(docs []Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		c := 0
		if q.OrderBy != "" {
			c = compareValues(docs[i].Fields[q.OrderBy], docs[j].Fields[q.OrderBy])
		}
		if c == 0 {
			c = strings.Compare(docs[i].ID, docs[j].ID)
		}
		if q.Direction == Descending {
			return c > 0
		}
		return c < 0
	})
}

func (q Query) String() string {
	var b strings.Builder
	b.WriteString(q.Collection)
	for _, f := range q.Filters {
		fmt.Fprintf(&b, " where %s %s %v", f.Field, f.Op, f.Value)
	}
	if len(q.AnyOf) > 0 {
		parts := make([]string, len(q.AnyOf))
		for i, f := range q.AnyOf {
			parts[i] = fmt.Sprintf("%s %s %v", f.Field, f.Op, f.Value)
		}
		fmt.Fprintf(&b, " where (%s)", strings.Join(parts, " or "))
	}
	if q.OrderBy != "" {
		fmt.Fprintf(&b, " order by %s %s", q.OrderBy, q.Direction)
	}
	return b.String()
}

// typeRank orders values of different kinds: null, bool, number, time, string,
// then anything else.
func typeRank(v any) int {
	if v == nil {
		return 0
	}
	if _, ok := toFloat(v); ok {
		return 2
	}
	switch v.(type) {
	case bool:
		return 1
	case time.Time:
		return 3
	case string:
		return 4
	default:
		return 5
	}
}

func compareValues(a, b any) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch ra {
	case 1:
		ba, bb := a.(bool), b.(bool)
		switch {
		case ba == bb:
			return 0
		case !ba:
			return -1
		default:
			return 1
		}
	case 2:
		fa, _ := toFloat(a)
		fb, _ := toFloat(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	case 3:
		return a.(time.Time).Compare(b.(time.Time))
	case 4:
		return strings.Compare(a.(string), b.(string))
	}
	return 0
}
