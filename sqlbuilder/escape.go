package sqlbuilder

import (
	"bytes"
	"database/sql/driver"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BaSui01/lian/internal/pool"
	"github.com/BaSui01/lian/types"
)

// emptySequence stands in for an empty literal list. "x IN (NULL)" never
// matches, whereas "IN ()" is a syntax error.
const emptySequence = "(NULL)"

var (
	timeType     = reflect.TypeOf(time.Time{})
	durationType = reflect.TypeOf(time.Duration(0))
)

// QuoteIdentifier wraps name in backticks. Embedded backticks are doubled,
// which is the only escape MySQL recognises inside a quoted identifier.
func QuoteIdentifier(name string) string {
	var b bytes.Buffer
	b.Grow(len(name) + 2)
	writeIdentifier(&b, name)
	return b.String()
}

func writeIdentifier(b *bytes.Buffer, name string) {
	b.WriteByte('`')
	for i := 0; i < len(name); i++ {
		if name[i] == '`' {
			b.WriteByte('`')
		}
		b.WriteByte(name[i])
	}
	b.WriteByte('`')
}

// EscapeString escapes s for use inside a single-quoted MySQL string literal
// using backslash escapes. The quotes themselves are not added.
func EscapeString(s string) string {
	var b bytes.Buffer
	b.Grow(len(s))
	writeEscaped(&b, s)
	return b.String()
}

func writeEscaped(b *bytes.Buffer, s string) {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '\x00':
			b.WriteString(`\0`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\x1a':
			b.WriteString(`\Z`)
		case '\'':
			b.WriteString(`\'`)
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		default:
			b.WriteByte(c)
		}
	}
}

// Literal renders v as SQL literal text. Slices and arrays (other than
// []byte) render as a parenthesised list suitable for IN.
func Literal(v any) (string, error) {
	return pool.Render(func(b *bytes.Buffer) error {
		return writeLiteral(b, v)
	})
}

func writeLiteral(b *bytes.Buffer, v any) error {
	switch x := v.(type) {
	case nil:
		b.WriteString("NULL")
		return nil
	case string:
		b.WriteByte('\'')
		writeEscaped(b, x)
		b.WriteByte('\'')
		return nil
	case []byte:
		if x == nil {
			b.WriteString("NULL")
			return nil
		}
		b.WriteString("_binary'")
		writeEscaped(b, string(x))
		b.WriteByte('\'')
		return nil
	case bool:
		if x {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
		return nil
	case int:
		b.WriteString(strconv.FormatInt(int64(x), 10))
		return nil
	case int64:
		b.WriteString(strconv.FormatInt(x, 10))
		return nil
	case float64:
		return writeFloat(b, x, 64)
	case time.Time:
		writeDatetime(b, x)
		return nil
	case time.Duration:
		writeDuration(b, x)
		return nil
	case driver.Valuer:
		if rv := reflect.ValueOf(x); rv.Kind() == reflect.Pointer && rv.IsNil() {
			b.WriteString("NULL")
			return nil
		}
		dv, err := x.Value()
		if err != nil {
			return types.NewError(types.ErrInvalidInput, "valuer failed").WithCause(err)
		}
		if _, again := dv.(driver.Valuer); again {
			return types.Errorf(types.ErrInvalidInput, "valuer %T returned another valuer", v)
		}
		return writeLiteral(b, dv)
	}
	return writeReflect(b, reflect.ValueOf(v))
}

func writeReflect(b *bytes.Buffer, rv reflect.Value) error {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			b.WriteString("NULL")
			return nil
		}
		return writeReflectElem(b, rv.Elem())
	case reflect.String:
		return writeLiteral(b, rv.String())
	case reflect.Bool:
		return writeLiteral(b, rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if rv.Type() == durationType {
			writeDuration(b, time.Duration(rv.Int()))
			return nil
		}
		b.WriteString(strconv.FormatInt(rv.Int(), 10))
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		b.WriteString(strconv.FormatUint(rv.Uint(), 10))
		return nil
	case reflect.Float32:
		return writeFloat(b, rv.Float(), 32)
	case reflect.Float64:
		return writeFloat(b, rv.Float(), 64)
	case reflect.Struct:
		if rv.Type().ConvertibleTo(timeType) {
			writeDatetime(b, rv.Convert(timeType).Interface().(time.Time))
			return nil
		}
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			if rv.Kind() == reflect.Slice && rv.IsNil() {
				b.WriteString("NULL")
				return nil
			}
			buf := make([]byte, rv.Len())
			reflect.Copy(reflect.ValueOf(buf), rv)
			return writeLiteral(b, buf)
		}
		return writeSequence(b, rv)
	}
	return types.Errorf(types.ErrInvalidInput, "cannot escape value of type %s", rv.Type())
}

func writeSequence(b *bytes.Buffer, rv reflect.Value) error {
	if rv.Len() == 0 {
		b.WriteString(emptySequence)
		return nil
	}
	b.WriteByte('(')
	for i := 0; i < rv.Len(); i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		if err := writeReflectElem(b, rv.Index(i)); err != nil {
			return err
		}
	}
	b.WriteByte(')')
	return nil
}

func writeReflectElem(b *bytes.Buffer, ev reflect.Value) error {
	if ev.Kind() == reflect.Interface {
		if ev.IsNil() {
			b.WriteString("NULL")
			return nil
		}
		return writeLiteral(b, ev.Elem().Interface())
	}
	if ev.CanInterface() {
		return writeLiteral(b, ev.Interface())
	}
	return writeReflect(b, ev)
}

func writeFloat(b *bytes.Buffer, f float64, bitSize int) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return types.Errorf(types.ErrInvalidInput, "cannot escape non-finite float %v", f)
	}
	s := strconv.FormatFloat(f, 'g', -1, bitSize)
	b.WriteString(s)
	if !strings.ContainsAny(s, "eE") {
		b.WriteString("e0")
	}
	return nil
}

func writeDatetime(b *bytes.Buffer, t time.Time) {
	b.WriteByte('\'')
	b.WriteString(t.Format("2006-01-02 15:04:05"))
	if us := t.Nanosecond() / int(time.Microsecond); us != 0 {
		b.WriteByte('.')
		b.WriteString(leftPad(strconv.Itoa(us), 6))
	}
	b.WriteByte('\'')
}

func writeDuration(b *bytes.Buffer, d time.Duration) {
	b.WriteByte('\'')
	if d < 0 {
		b.WriteByte('-')
		d = -d
	}
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute
	seconds := d / time.Second
	d -= seconds * time.Second
	b.WriteString(leftPad(strconv.FormatInt(int64(hours), 10), 2))
	b.WriteByte(':')
	b.WriteString(leftPad(strconv.FormatInt(int64(minutes), 10), 2))
	b.WriteByte(':')
	b.WriteString(leftPad(strconv.FormatInt(int64(seconds), 10), 2))
	if us := d / time.Microsecond; us != 0 {
		b.WriteByte('.')
		b.WriteString(leftPad(strconv.FormatInt(int64(us), 10), 6))
	}
	b.WriteByte('\'')
}

func leftPad(s string, width int) string {
	for len(s) < width {
		s = "0" + s
	}
	return s
}
