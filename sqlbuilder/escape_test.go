package sqlbuilder

import (
	"database/sql"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/BaSui01/lian/types"
)

// =============================================================================
// 🧪 转义器测试
// =============================================================================

func TestQuoteIdentifier(t *testing.T) {
	assert.Equal(t, "`name`", QuoteIdentifier("name"))
	assert.Equal(t, "`a``b`", QuoteIdentifier("a`b"))
	assert.Equal(t, "``", QuoteIdentifier(""))
}

func TestEscapeString(t *testing.T) {
	assert.Equal(t, `it\'s`, EscapeString("it's"))
	assert.Equal(t, `a\\b`, EscapeString(`a\b`))
	assert.Equal(t, `\0\n\r\Z\"`, EscapeString("\x00\n\r\x1a\""))
	assert.Equal(t, "plain", EscapeString("plain"))
}

type level int32

type stamp time.Time

func TestLiteral(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	var nilPtr *int
	seven := 7

	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, "NULL"},
		{"string", "bob", "'bob'"},
		{"injection", "x' OR '1'='1", `'x\' OR \'1\'=\'1'`},
		{"bytes", []byte("ab"), "_binary'ab'"},
		{"nil bytes", []byte(nil), "NULL"},
		{"true", true, "1"},
		{"false", false, "0"},
		{"int", 42, "42"},
		{"negative int64", int64(-3), "-3"},
		{"int32", int32(7), "7"},
		{"uint8", uint8(200), "200"},
		{"named int", level(3), "3"},
		{"float", 1.5, "1.5e0"},
		{"float exponent", 1e21, "1e+21"},
		{"float32", float32(0.25), "0.25e0"},
		{"datetime", ts, "'2024-01-02 03:04:05'"},
		{"datetime micros", ts.Add(1500 * time.Microsecond), "'2024-01-02 03:04:05.001500'"},
		{"named time", stamp(ts), "'2024-01-02 03:04:05'"},
		{"duration", 90*time.Minute + 1500*time.Millisecond, "'01:30:01.500000'"},
		{"negative duration", -2 * time.Second, "'-00:00:02'"},
		{"pointer", &seven, "7"},
		{"nil pointer", nilPtr, "NULL"},
		{"null string", sql.NullString{}, "NULL"},
		{"valid null int", sql.NullInt64{Int64: 5, Valid: true}, "5"},
		{"strings", []string{"a", "b"}, "('a', 'b')"},
		{"mixed", []any{1, "x", nil}, "(1, 'x', NULL)"},
		{"array", [2]int{1, 2}, "(1, 2)"},
		{"empty sequence", []int{}, "(NULL)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Literal(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLiteral_Rejects(t *testing.T) {
	tests := []struct {
		name string
		in   any
	}{
		{"struct", struct{ A int }{1}},
		{"map", map[string]int{"a": 1}},
		{"nan", math.NaN()},
		{"inf", math.Inf(1)},
		{"func", func() {}},
		{"nested bad element", []any{1, struct{}{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Literal(tt.in)
			require.Error(t, err)
			assert.True(t, types.IsCode(err, types.ErrInvalidInput))
		})
	}
}

// unescape reverses writeEscaped.
func unescape(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 == len(s) {
			b.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case '0':
			b.WriteByte(0)
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 'Z':
			b.WriteByte('\x1a')
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// unescapedQuote reports whether s holds a single quote not preceded by an
// escaping backslash.
func unescapedQuote(s string) bool {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '\'':
			return true
		}
	}
	return false
}

func TestProperty_Literal_StringCannotBreakQuoting(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		s := rapid.String().Draw(rt, "s")

		lit, err := Literal(s)
		require.NoError(rt, err)
		require.GreaterOrEqual(rt, len(lit), 2)
		assert.Equal(rt, byte('\''), lit[0])
		assert.Equal(rt, byte('\''), lit[len(lit)-1])

		inner := lit[1 : len(lit)-1]
		assert.False(rt, unescapedQuote(inner), "literal %q terminates early", lit)
		assert.Equal(rt, s, unescape(inner))
	})
}

func TestProperty_QuoteIdentifier_RoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		name := rapid.String().Draw(rt, "name")

		quoted := QuoteIdentifier(name)
		require.True(rt, strings.HasPrefix(quoted, "`"))
		require.True(rt, strings.HasSuffix(quoted, "`"))

		inner := quoted[1 : len(quoted)-1]
		assert.Equal(rt, name, strings.ReplaceAll(inner, "``", "`"))
		assert.Equal(rt, 2*strings.Count(name, "`"), strings.Count(inner, "`"))
	})
}
