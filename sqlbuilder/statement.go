package sqlbuilder

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/BaSui01/lian/internal/pool"
	"github.com/BaSui01/lian/types"
)

// Table builds statements against one table, optionally schema-qualified.
// Building never touches a database.
type Table struct {
	Name     string
	Database string
}

// NewTable returns a builder for database.name. An empty database leaves the
// table unqualified.
func NewTable(name, database string) Table {
	return Table{Name: name, Database: database}
}

// QualifiedName returns the quoted table reference.
func (t Table) QualifiedName() string {
	var b bytes.Buffer
	t.writeName(&b)
	return b.String()
}

func (t Table) writeName(b *bytes.Buffer) {
	if t.Database != "" {
		writeIdentifier(b, t.Database)
		b.WriteByte('.')
	}
	writeIdentifier(b, t.Name)
}

func (t Table) build(fn func(b *bytes.Buffer) error) (string, error) {
	if t.Name == "" {
		return "", types.NewError(types.ErrInvalidArgument, "table name must not be empty")
	}
	return pool.Render(fn)
}

func writeWhere(b *bytes.Buffer, expr Expr) error {
	n, err := Compile(expr)
	if err != nil {
		return err
	}
	return n.render(b)
}

// =============================================================================
// SELECT
// =============================================================================

type selectQuery struct {
	fields    []Field
	defaults  []Field
	where     Expr
	whereRaw  string
	limit     int
	hasLimit  bool
	offset    int
	hasOffset bool
	orderBy   []string
	groupBy   []string
}

// SelectOption configures a select statement.
type SelectOption func(*selectQuery)

// Fields sets the projection. No fields selects *.
func Fields(fields ...Field) SelectOption {
	return func(q *selectQuery) { q.fields = append(q.fields, fields...) }
}

// DefaultFields sets the projection used when no Fields option is given.
func DefaultFields(fields ...Field) SelectOption {
	return func(q *selectQuery) { q.defaults = fields }
}

// Columns projects the named columns.
func Columns(names ...string) SelectOption {
	return Fields(Cols(names...)...)
}

// Where sets the condition.
func Where(expr Expr) SelectOption {
	return func(q *selectQuery) { q.where = expr }
}

// WhereRaw sets a pre-rendered condition, taking precedence over Where.
// The text is used verbatim.
func WhereRaw(sql string) SelectOption {
	return func(q *selectQuery) { q.whereRaw = sql }
}

// maxLimit is the largest row count MySQL accepts, used when only an offset
// is given.
const maxLimit = "18446744073709551615"

// Limit caps the number of rows.
func Limit(n int) SelectOption {
	return func(q *selectQuery) { q.limit, q.hasLimit = n, true }
}

// Offset skips rows.
func Offset(n int) SelectOption {
	return func(q *selectQuery) { q.offset, q.hasOffset = n, true }
}

// OrderBy sorts by keys; a leading "-" sorts descending.
func OrderBy(keys ...string) SelectOption {
	return func(q *selectQuery) { q.orderBy = append(q.orderBy, keys...) }
}

// GroupBy groups by the named columns.
func GroupBy(names ...string) SelectOption {
	return func(q *selectQuery) { q.groupBy = append(q.groupBy, names...) }
}

// Select renders a SELECT statement.
func (t Table) Select(opts ...SelectOption) (string, error) {
	q := &selectQuery{}
	for _, opt := range opts {
		opt(q)
	}
	if q.hasLimit && q.limit < 0 {
		return "", types.Errorf(types.ErrInvalidArgument, "limit must not be negative, got %d", q.limit)
	}
	if q.hasOffset && q.offset < 0 {
		return "", types.Errorf(types.ErrInvalidArgument, "offset must not be negative, got %d", q.offset)
	}

	return t.build(func(b *bytes.Buffer) error {
		b.WriteString("SELECT ")
		fields := q.fields
		if len(fields) == 0 {
			fields = q.defaults
		}
		if err := writeProjection(b, fields); err != nil {
			return err
		}
		b.WriteString(" FROM ")
		t.writeName(b)
		b.WriteString(" WHERE ")
		if q.whereRaw != "" {
			b.WriteString(q.whereRaw)
		} else if err := writeWhere(b, q.where); err != nil {
			return err
		}

		if len(q.groupBy) > 0 {
			b.WriteString(" GROUP BY ")
			if err := writeColumnList(b, q.groupBy); err != nil {
				return err
			}
		}

		if len(q.orderBy) > 0 {
			b.WriteString(" ORDER BY ")
			for i, key := range q.orderBy {
				if i > 0 {
					b.WriteString(", ")
				}
				col, desc := strings.CutPrefix(key, "-")
				if col == "" {
					return types.Errorf(types.ErrInvalidArgument, "invalid order key %q", key)
				}
				writeIdentifier(b, col)
				if desc {
					b.WriteString(" DESC")
				}
			}
		}

		switch {
		case q.hasLimit:
			b.WriteString(" LIMIT ")
			b.WriteString(strconv.Itoa(q.limit))
		case q.hasOffset:
			// MySQL has no OFFSET without LIMIT
			b.WriteString(" LIMIT ")
			b.WriteString(maxLimit)
		}
		if q.hasOffset {
			b.WriteString(" OFFSET ")
			b.WriteString(strconv.Itoa(q.offset))
		}
		return nil
	})
}

// =============================================================================
// INSERT
// =============================================================================

// InsertMode selects the insert statement form.
type InsertMode int

const (
	// ModeInsert renders INSERT INTO, with ON DUPLICATE KEY UPDATE when an
	// update set is given.
	ModeInsert InsertMode = iota
	// ModeReplace renders REPLACE INTO.
	ModeReplace
	// ModeInsertNotExists inserts only when no row matches the guard.
	ModeInsertNotExists
)

func (m InsertMode) String() string {
	switch m {
	case ModeInsert:
		return "insert"
	case ModeReplace:
		return "replace"
	case ModeInsertNotExists:
		return "insert-not-exists"
	}
	return "unknown"
}

type insertQuery struct {
	mode   InsertMode
	update Values
	guard  Expr
}

// InsertOption configures an insert statement.
type InsertOption func(*insertQuery)

// WithMode selects the insert form.
func WithMode(m InsertMode) InsertOption {
	return func(q *insertQuery) { q.mode = m }
}

// OnDuplicateKeyUpdate sets the assignments applied when the row exists.
// Only ModeInsert uses it.
func OnDuplicateKeyUpdate(set Values) InsertOption {
	return func(q *insertQuery) { q.update = set }
}

// Guard sets the condition that must match no row for ModeInsertNotExists.
func Guard(expr Expr) InsertOption {
	return func(q *insertQuery) { q.guard = expr }
}

// Insert renders an insert of values; the keys become the column list.
func (t Table) Insert(values Values, opts ...InsertOption) (string, error) {
	return t.InsertRow(values.Keys(), values.Vals(), opts...)
}

// InsertRow renders an insert of a positional row matched against fields.
func (t Table) InsertRow(fields []string, row []any, opts ...InsertOption) (string, error) {
	if len(row) != len(fields) {
		return "", types.Errorf(types.ErrInvalidArgument, "%d values for %d fields", len(row), len(fields))
	}
	return t.InsertMany(fields, [][]any{row}, opts...)
}

// InsertMany renders a multi-row insert. ModeInsertNotExists takes exactly
// one row.
func (t Table) InsertMany(fields []string, rows [][]any, opts ...InsertOption) (string, error) {
	q := &insertQuery{}
	for _, opt := range opts {
		opt(q)
	}
	if len(fields) == 0 {
		return "", types.NewError(types.ErrInvalidArgument, "insert needs at least one field")
	}
	if len(rows) == 0 {
		return "", types.NewError(types.ErrInvalidArgument, "insert needs at least one row")
	}
	for i, row := range rows {
		if len(row) != len(fields) {
			return "", types.Errorf(types.ErrInvalidArgument, "row %d: %d values for %d fields", i, len(row), len(fields))
		}
	}

	switch q.mode {
	case ModeInsert, ModeReplace:
	case ModeInsertNotExists:
		guard, err := Compile(q.guard)
		if err != nil {
			return "", err
		}
		if g, ok := guard.(*Group); ok && len(g.Children) == 0 {
			return "", types.NewError(types.ErrConfiguration, "insert-not-exists mode needs guard conditions")
		}
		if len(rows) != 1 {
			return "", types.Errorf(types.ErrInvalidArgument, "insert-not-exists takes one row, got %d", len(rows))
		}
	default:
		return "", types.Errorf(types.ErrInvalidArgument, "unknown insert mode %d", int(q.mode))
	}

	return t.build(func(b *bytes.Buffer) error {
		if q.mode == ModeReplace {
			b.WriteString("REPLACE INTO ")
		} else {
			b.WriteString("INSERT INTO ")
		}
		t.writeName(b)
		b.WriteString(" (")
		if err := writeColumnList(b, fields); err != nil {
			return err
		}
		b.WriteByte(')')

		if q.mode == ModeInsertNotExists {
			return t.writeNotExists(b, fields, rows[0], q.guard)
		}

		b.WriteString(" VALUES ")
		for i, row := range rows {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteByte('(')
			if err := writeValueList(b, row); err != nil {
				return err
			}
			b.WriteByte(')')
		}

		if q.mode == ModeInsert && len(q.update) > 0 {
			b.WriteString(" ON DUPLICATE KEY UPDATE ")
			return writeAssignments(b, q.update)
		}
		return nil
	})
}

// writeNotExists renders the INSERT ... SELECT guarded by NOT EXISTS. Each
// derived column is aliased after its target field so repeated literals do
// not collide.
func (t Table) writeNotExists(b *bytes.Buffer, fields []string, row []any, guard Expr) error {
	b.WriteString(" SELECT * FROM (SELECT ")
	for i, v := range row {
		if i > 0 {
			b.WriteString(", ")
		}
		if err := writeLiteral(b, v); err != nil {
			return err
		}
		b.WriteString(" AS ")
		writeIdentifier(b, fields[i])
	}
	b.WriteString(") AS tmp WHERE NOT EXISTS (SELECT 1 FROM ")
	t.writeName(b)
	b.WriteString(" WHERE ")
	if err := writeWhere(b, guard); err != nil {
		return err
	}
	b.WriteString(") LIMIT 1")
	return nil
}

// =============================================================================
// UPDATE / DELETE / COUNT
// =============================================================================

// Update renders an UPDATE assigning set to the rows matching where.
func (t Table) Update(set Values, where Expr) (string, error) {
	return t.build(func(b *bytes.Buffer) error {
		b.WriteString("UPDATE ")
		t.writeName(b)
		b.WriteString(" SET ")
		if err := writeAssignments(b, set); err != nil {
			return err
		}
		b.WriteString(" WHERE ")
		return writeWhere(b, where)
	})
}

// Delete renders a DELETE of the rows matching where.
func (t Table) Delete(where Expr) (string, error) {
	return t.build(func(b *bytes.Buffer) error {
		b.WriteString("DELETE FROM ")
		t.writeName(b)
		b.WriteString(" WHERE ")
		return writeWhere(b, where)
	})
}

// CountColumn is the column name a Count statement yields.
const CountColumn = "COUNT(1)"

// Count renders a SELECT COUNT(1) over the rows matching where.
func (t Table) Count(where Expr) (string, error) {
	return t.build(func(b *bytes.Buffer) error {
		b.WriteString("SELECT COUNT(1) FROM ")
		t.writeName(b)
		b.WriteString(" WHERE ")
		return writeWhere(b, where)
	})
}
