package sqlbuilder

import (
	"bytes"
	"reflect"
	"sort"
	"strings"

	"github.com/BaSui01/lian/internal/pool"
	"github.com/BaSui01/lian/types"
)

// Operator is the comparison a leaf condition applies.
type Operator int

const (
	OpEq Operator = iota
	OpNe
	OpLike
	OpStartsWith
	OpEndsWith
	OpLt
	OpLte
	OpGt
	OpGte
	OpIn
	OpIsNull
	OpBetween

	opCount
)

var operatorNames = [opCount]string{
	OpEq:         "eq",
	OpNe:         "ne",
	OpLike:       "like",
	OpStartsWith: "startswith",
	OpEndsWith:   "endswith",
	OpLt:         "lt",
	OpLte:        "lte",
	OpGt:         "gt",
	OpGte:        "gte",
	OpIn:         "in",
	OpIsNull:     "is_null",
	OpBetween:    "between",
}

// suffixOperators holds the operators a "field__suffix" key may name.
// Equality has no suffix.
var suffixOperators = func() map[string]Operator {
	m := make(map[string]Operator, opCount-1)
	for op := OpNe; op < opCount; op++ {
		m[operatorNames[op]] = op
	}
	return m
}()

func (op Operator) String() string {
	if op < 0 || op >= opCount {
		return "unknown"
	}
	return operatorNames[op]
}

// ParseKey splits a condition key into its field and operator. Keys whose
// suffix is not a recognised operator are taken literally as equality.
func ParseKey(key string) (string, Operator) {
	idx := strings.LastIndex(key, "__")
	if idx <= 0 || strings.Contains(key[:idx], " ") {
		return key, OpEq
	}
	if op, ok := suffixOperators[key[idx+2:]]; ok {
		return key[:idx], op
	}
	return key, OpEq
}

// Relation joins the children of a Group.
type Relation string

const (
	And Relation = "AND"
	Or  Relation = "OR"
)

// Pair is one field → value entry of Values.
type Pair struct {
	Key   string
	Value any
}

// Values is an ordered field → value mapping. As a condition it is the
// conjunction of its entries; as statement input its order is the column
// order.
type Values []Pair

// M converts a map to Values with keys in sorted order.
func M(m map[string]any) Values {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	v := make(Values, 0, len(keys))
	for _, k := range keys {
		v = append(v, Pair{Key: k, Value: m[k]})
	}
	return v
}

// Keys returns the keys in order.
func (v Values) Keys() []string {
	keys := make([]string, len(v))
	for i, p := range v {
		keys[i] = p.Key
	}
	return keys
}

// Vals returns the values in key order.
func (v Values) Vals() []any {
	vals := make([]any, len(v))
	for i, p := range v {
		vals[i] = p.Value
	}
	return vals
}

// Set returns a copy of v with key set to value, replacing an existing entry
// in place.
func (v Values) Set(key string, value any) Values {
	out := make(Values, len(v), len(v)+1)
	copy(out, v)
	for i := range out {
		if out[i].Key == key {
			out[i].Value = value
			return out
		}
	}
	return append(out, Pair{Key: key, Value: value})
}

// Get returns the value stored under key.
func (v Values) Get(key string) (any, bool) {
	for _, p := range v {
		if p.Key == key {
			return p.Value, true
		}
	}
	return nil, false
}

func (v Values) compile() (Node, error) {
	g := &Group{Relation: And, Children: make([]Node, 0, len(v))}
	for _, p := range v {
		g.Children = append(g.Children, leafFromKey(p.Key, p.Value))
	}
	return g, nil
}

func leafFromKey(key string, value any) *Leaf {
	field, op := ParseKey(key)
	if isNull(value) {
		return &Leaf{Field: field, Op: OpIsNull, Value: true}
	}
	return &Leaf{Field: field, Op: op, Value: value}
}

// Expr is a structured condition expression. Values, Cond, AllOf, AnyOf and
// Not build one.
type Expr interface {
	compile() (Node, error)
}

// Cond builds a single comparison with an explicit operator.
func Cond(field string, op Operator, value any) Expr {
	return &Leaf{Field: field, Op: op, Value: value}
}

type combination struct {
	relation Relation
	negated  bool
	exprs    []Expr
}

// AllOf joins exprs with AND.
func AllOf(exprs ...Expr) Expr {
	return &combination{relation: And, exprs: exprs}
}

// AnyOf joins exprs with OR.
func AnyOf(exprs ...Expr) Expr {
	return &combination{relation: Or, exprs: exprs}
}

// Not negates expr.
func Not(expr Expr) Expr {
	switch e := expr.(type) {
	case *combination:
		c := *e
		c.negated = !c.negated
		return &c
	case Values:
		c := &combination{relation: And, negated: true, exprs: make([]Expr, 0, len(e))}
		for _, p := range e {
			c.exprs = append(c.exprs, leafFromKey(p.Key, p.Value))
		}
		return c
	case nil:
		return &combination{relation: And, negated: true}
	}
	return &combination{relation: And, negated: true, exprs: []Expr{expr}}
}

func (c *combination) compile() (Node, error) {
	g := &Group{Relation: c.relation, Negated: c.negated, Children: make([]Node, 0, len(c.exprs))}
	for _, e := range c.exprs {
		n, err := compileExpr(e)
		if err != nil {
			return nil, err
		}
		g.Children = append(g.Children, collapse(n))
	}
	return g, nil
}

// collapse unwraps a nested single-child group; its parentheses add nothing.
func collapse(n Node) Node {
	if g, ok := n.(*Group); ok && !g.Negated && len(g.Children) == 1 {
		return g.Children[0]
	}
	return n
}

func compileExpr(e Expr) (Node, error) {
	if e == nil || (reflect.ValueOf(e).Kind() == reflect.Pointer && reflect.ValueOf(e).IsNil()) {
		return &Group{Relation: And}, nil
	}
	return e.compile()
}

// Node is a compiled condition tree.
type Node interface {
	render(b *bytes.Buffer) error
}

// Leaf is a single comparison.
type Leaf struct {
	Field string
	Op    Operator
	Value any
}

func (l *Leaf) compile() (Node, error) {
	if isNull(l.Value) {
		return &Leaf{Field: l.Field, Op: OpIsNull, Value: true}, nil
	}
	return l, nil
}

// Group is a boolean combination of child nodes.
type Group struct {
	Relation Relation
	Negated  bool
	Children []Node
}

// Compile turns expr into a condition tree. A nil expr yields an empty tree.
func Compile(expr Expr) (Node, error) {
	return compileExpr(expr)
}

// Render renders a condition tree as a boolean SQL expression.
func Render(n Node) (string, error) {
	return pool.Render(func(b *bytes.Buffer) error {
		return n.render(b)
	})
}

// ToSQL compiles and renders expr. An empty expression renders as 1.
func ToSQL(expr Expr) (string, error) {
	n, err := Compile(expr)
	if err != nil {
		return "", err
	}
	return Render(n)
}

func (g *Group) render(b *bytes.Buffer) error {
	if len(g.Children) == 0 {
		if g.Negated {
			b.WriteByte('0')
		} else {
			b.WriteByte('1')
		}
		return nil
	}
	if g.Relation != And && g.Relation != Or {
		return types.Errorf(types.ErrInvalidArgument, "unknown relation %q", g.Relation)
	}
	if g.Negated {
		b.WriteString("NOT ")
	}
	b.WriteByte('(')
	for i, c := range g.Children {
		if i > 0 {
			b.WriteByte(' ')
			b.WriteString(string(g.Relation))
			b.WriteByte(' ')
		}
		if err := c.render(b); err != nil {
			return err
		}
	}
	b.WriteByte(')')
	return nil
}

func (l *Leaf) render(b *bytes.Buffer) error {
	if l.Op < 0 || l.Op >= opCount {
		return types.Errorf(types.ErrInvalidArgument, "unknown operator %d for field %q", l.Op, l.Field)
	}
	if l.Field == "" {
		return types.NewError(types.ErrInvalidArgument, "condition field must not be empty")
	}
	if isNull(l.Value) {
		writeIdentifier(b, l.Field)
		b.WriteString(" IS NULL")
		return nil
	}
	return leafRenderers[l.Op](b, l.Field, l.Value)
}

type leafRenderer func(b *bytes.Buffer, field string, value any) error

var leafRenderers = [opCount]leafRenderer{
	OpEq:         compare("="),
	OpNe:         compare("!="),
	OpLike:       like("%", "%"),
	OpStartsWith: like("", "%"),
	OpEndsWith:   like("%", ""),
	OpLt:         compare("<"),
	OpLte:        compare("<="),
	OpGt:         compare(">"),
	OpGte:        compare(">="),
	OpIn:         renderIn,
	OpIsNull:     renderIsNull,
	OpBetween:    renderBetween,
}

func compare(sym string) leafRenderer {
	return func(b *bytes.Buffer, field string, value any) error {
		writeIdentifier(b, field)
		b.WriteByte(' ')
		b.WriteString(sym)
		b.WriteByte(' ')
		return writeLiteral(b, value)
	}
}

func like(prefix, suffix string) leafRenderer {
	return func(b *bytes.Buffer, field string, value any) error {
		s, ok := stringValue(value)
		if !ok {
			return types.Errorf(types.ErrInvalidArgument, "pattern match on %q needs a string, got %T", field, value)
		}
		writeIdentifier(b, field)
		b.WriteString(" LIKE '")
		b.WriteString(prefix)
		writeEscaped(b, s)
		b.WriteString(suffix)
		b.WriteByte('\'')
		return nil
	}
}

func stringValue(v any) (string, bool) {
	if s, ok := v.(string); ok {
		return s, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.String {
		return rv.String(), true
	}
	return "", false
}

func renderIn(b *bytes.Buffer, field string, value any) error {
	if !isSequence(value) {
		return types.Errorf(types.ErrInvalidArgument, "IN on %q needs a sequence, got %T", field, value)
	}
	writeIdentifier(b, field)
	b.WriteString(" IN ")
	return writeLiteral(b, value)
}

func renderIsNull(b *bytes.Buffer, field string, value any) error {
	writeIdentifier(b, field)
	if truthy(value) {
		b.WriteString(" IS NULL")
	} else {
		b.WriteString(" IS NOT NULL")
	}
	return nil
}

func renderBetween(b *bytes.Buffer, field string, value any) error {
	if !isSequence(value) {
		return types.Errorf(types.ErrInvalidArgument, "BETWEEN on %q needs 2 values, got %T", field, value)
	}
	rv := reflect.ValueOf(value)
	if rv.Len() != 2 {
		return types.Errorf(types.ErrInvalidArgument, "BETWEEN on %q needs 2 values, got %d", field, rv.Len())
	}
	writeIdentifier(b, field)
	b.WriteString(" BETWEEN ")
	if err := writeReflectElem(b, rv.Index(0)); err != nil {
		return err
	}
	b.WriteString(" AND ")
	return writeReflectElem(b, rv.Index(1))
}

func isSequence(v any) bool {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return false
	}
	return rv.Type().Elem().Kind() != reflect.Uint8
}

// isNull reports whether v renders as SQL NULL: nil, a nil pointer, map or
// []byte, or a nil Valuer. Other nil slices are empty sequences.
func isNull(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map:
		return rv.IsNil()
	case reflect.Slice:
		return rv.Type().Elem().Kind() == reflect.Uint8 && rv.IsNil()
	}
	return false
}

// truthy follows the usual notion of an "empty" value: false, zero, empty
// string and empty sequence are falsy.
func truthy(v any) bool {
	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool()
	case reflect.String, reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() > 0
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}
