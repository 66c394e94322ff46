package sqlbuilder

import (
	"bytes"
	"strings"

	"github.com/BaSui01/lian/types"
)

// Aggregate functions a projected field may name as "FUNC:column".
var aggregateFuncs = map[string]struct{}{
	"SUM": {},
	"MAX": {},
	"MIN": {},
}

// Set operators an update key may name as "OP:column".
const setOpAdd = "ADD"

// Field is one entry of a select projection.
type Field struct {
	expr    string
	alias   string
	aliased bool
}

// Col projects expr. "SUM:x", "MAX:x" and "MIN:x" project an aggregate and
// "*x" projects DISTINCT x.
func Col(expr string) Field {
	return Field{expr: expr}
}

// Cols projects each expr.
func Cols(exprs ...string) []Field {
	fields := make([]Field, len(exprs))
	for i, e := range exprs {
		fields[i] = Col(e)
	}
	return fields
}

// As projects expr under alias.
func As(expr, alias string) Field {
	return Field{expr: expr, alias: alias, aliased: true}
}

func (f Field) render(b *bytes.Buffer) error {
	if f.expr == "" {
		return types.NewError(types.ErrInvalidArgument, "field expression must be a non-empty string")
	}
	if f.aliased && f.alias == "" {
		return types.Errorf(types.ErrInvalidArgument, "alias for %q must be a non-empty string", f.expr)
	}
	if err := writeFieldExpr(b, f.expr); err != nil {
		return err
	}
	if f.aliased {
		b.WriteString(" AS ")
		writeIdentifier(b, f.alias)
	}
	return nil
}

func writeFieldExpr(b *bytes.Buffer, expr string) error {
	if fn, col, ok := strings.Cut(expr, ":"); ok && col != "" {
		if _, known := aggregateFuncs[fn]; known {
			b.WriteString(fn)
			b.WriteByte('(')
			writeIdentifier(b, col)
			b.WriteByte(')')
			return nil
		}
	}
	if col, ok := strings.CutPrefix(expr, "*"); ok {
		if col == "" {
			return types.NewError(types.ErrInvalidArgument, "DISTINCT marker needs a column name")
		}
		b.WriteString("DISTINCT ")
		writeIdentifier(b, col)
		return nil
	}
	writeIdentifier(b, expr)
	return nil
}

func writeProjection(b *bytes.Buffer, fields []Field) error {
	if len(fields) == 0 {
		b.WriteByte('*')
		return nil
	}
	for i, f := range fields {
		if i > 0 {
			b.WriteString(", ")
		}
		if err := f.render(b); err != nil {
			return err
		}
	}
	return nil
}

func writeColumnList(b *bytes.Buffer, names []string) error {
	for i, n := range names {
		if n == "" {
			return types.NewError(types.ErrInvalidArgument, "column name must not be empty")
		}
		if i > 0 {
			b.WriteString(", ")
		}
		writeIdentifier(b, n)
	}
	return nil
}

func writeValueList(b *bytes.Buffer, vals []any) error {
	for i, v := range vals {
		if i > 0 {
			b.WriteString(", ")
		}
		if err := writeLiteral(b, v); err != nil {
			return err
		}
	}
	return nil
}

// writeAssignments renders SET assignments. A key "ADD:x" increments x by
// the value instead of assigning it.
func writeAssignments(b *bytes.Buffer, set Values) error {
	if len(set) == 0 {
		return types.NewError(types.ErrInvalidArgument, "no columns to assign")
	}
	for i, p := range set {
		if i > 0 {
			b.WriteString(", ")
		}
		col := p.Key
		add := false
		if op, rest, ok := strings.Cut(p.Key, ":"); ok && op == setOpAdd && rest != "" {
			col, add = rest, true
		}
		if col == "" {
			return types.NewError(types.ErrInvalidArgument, "column name must not be empty")
		}
		writeIdentifier(b, col)
		b.WriteString(" = ")
		if add {
			writeIdentifier(b, col)
			b.WriteString(" + ")
		}
		if err := writeLiteral(b, p.Value); err != nil {
			return err
		}
	}
	return nil
}
