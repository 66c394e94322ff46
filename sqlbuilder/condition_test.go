package sqlbuilder

import (
	"database/sql"
	"fmt"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/lian/types"
)

// =============================================================================
// 🧪 条件编译器测试
// =============================================================================

func TestParseKey(t *testing.T) {
	tests := []struct {
		key   string
		field string
		op    Operator
	}{
		{"age", "age", OpEq},
		{"age__gt", "age", OpGt},
		{"age__gte", "age", OpGte},
		{"name__like", "name", OpLike},
		{"id__in", "id", OpIn},
		{"deleted__is_null", "deleted", OpIsNull},
		{"a__b__lt", "a__b", OpLt},
		{"age__foo", "age__foo", OpEq},
		{"__gt", "__gt", OpEq},
		{"my field__gt", "my field__gt", OpEq},
		{"age__eq", "age__eq", OpEq},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			field, op := ParseKey(tt.key)
			assert.Equal(t, tt.field, field)
			assert.Equal(t, tt.op, op)
		})
	}
}

func TestOperator_String(t *testing.T) {
	assert.Equal(t, "between", OpBetween.String())
	assert.Equal(t, "unknown", Operator(99).String())
}

func TestToSQL_Leaves(t *testing.T) {
	tests := []struct {
		name string
		expr Expr
		want string
	}{
		{"equals", Values{{"a", 1}}, "(`a` = 1)"},
		{"not equals", Values{{"a__ne", 1}}, "(`a` != 1)"},
		{"like", Values{{"name__like", "bob"}}, "(`name` LIKE '%bob%')"},
		{"startswith", Values{{"name__startswith", "bob"}}, "(`name` LIKE 'bob%')"},
		{"endswith", Values{{"name__endswith", "bob"}}, "(`name` LIKE '%bob')"},
		{"like escaped", Values{{"name__like", "o'b"}}, `(` + "`name`" + ` LIKE '%o\'b%')`},
		{"lt", Values{{"a__lt", 1}}, "(`a` < 1)"},
		{"lte", Values{{"a__lte", 1}}, "(`a` <= 1)"},
		{"gt", Values{{"a__gt", 1}}, "(`a` > 1)"},
		{"gte", Values{{"a__gte", 1}}, "(`a` >= 1)"},
		{"in", Values{{"a__in", []int{1, 2}}}, "(`a` IN (1, 2))"},
		{"empty in", Values{{"a__in", []int{}}}, "(`a` IN (NULL))"},
		{"is null", Values{{"a__is_null", true}}, "(`a` IS NULL)"},
		{"is not null", Values{{"a__is_null", false}}, "(`a` IS NOT NULL)"},
		{"between", Values{{"a__between", []int{1, 5}}}, "(`a` BETWEEN 1 AND 5)"},
		{"nil value", Values{{"a", nil}}, "(`a` IS NULL)"},
		{"nil with suffix", Values{{"a__gt", nil}}, "(`a` IS NULL)"},
		{"unknown suffix", Values{{"a__foo", 1}}, "(`a__foo` = 1)"},
		{"string value", Values{{"name", "bob"}}, "(`name` = 'bob')"},
		{"cond", Cond("a", OpGt, 3), "`a` > 3"},
		{"cond nil", Cond("a", OpLt, nil), "`a` IS NULL"},
		{"cond is null nil", Cond("a", OpIsNull, nil), "`a` IS NULL"},
		{"is null nil", Values{{"a__is_null", nil}}, "(`a` IS NULL)"},
		{"typed nil pointer", Values{{"a", (*int)(nil)}}, "(`a` IS NULL)"},
		{"typed nil with suffix", Values{{"a__gt", (*int)(nil)}}, "(`a` IS NULL)"},
		{"nil map", Values{{"a", map[string]int(nil)}}, "(`a` IS NULL)"},
		{"nil bytes", Values{{"a", []byte(nil)}}, "(`a` IS NULL)"},
		{"nil valuer", Cond("a", OpEq, (*sql.NullString)(nil)), "`a` IS NULL"},
		{"nil slice in", Values{{"a__in", []int(nil)}}, "(`a` IN (NULL))"},
		{"not typed nil", Not(Values{{"a", (*string)(nil)}}), "NOT (`a` IS NULL)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToSQL(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToSQL_Combinations(t *testing.T) {
	tests := []struct {
		name string
		expr Expr
		want string
	}{
		{"nil", nil, "1"},
		{"empty values", Values{}, "1"},
		{"empty all", AllOf(), "1"},
		{"negated empty", Not(nil), "0"},
		{"negated empty any", Not(AnyOf()), "0"},
		{"values conjunction", Values{{"a", 1}, {"b", 2}}, "(`a` = 1 AND `b` = 2)"},
		{
			"all of collapses single children",
			AllOf(Values{{"a__in", []int{1, 2}}}, Values{{"b", nil}}),
			"(`a` IN (1, 2) AND `b` IS NULL)",
		},
		{"any of", AnyOf(Values{{"a", 1}}, Values{{"b", 2}}), "(`a` = 1 OR `b` = 2)"},
		{
			"nested",
			AllOf(Values{{"a", 1}}, AnyOf(Values{{"b", 2}}, Values{{"c", 3}})),
			"(`a` = 1 AND (`b` = 2 OR `c` = 3))",
		},
		{
			"nested multi-entry values keep parentheses",
			AnyOf(Values{{"a", 1}, {"b", 2}}, Values{{"c", 3}}),
			"((`a` = 1 AND `b` = 2) OR `c` = 3)",
		},
		{"not values", Not(Values{{"a", 1}}), "NOT (`a` = 1)"},
		{"not values pair", Not(Values{{"a", 1}, {"b", 2}}), "NOT (`a` = 1 AND `b` = 2)"},
		{"not any", Not(AnyOf(Values{{"a", 1}}, Values{{"b", 2}})), "NOT (`a` = 1 OR `b` = 2)"},
		{"double not", Not(Not(AllOf(Values{{"a", 1}}))), "(`a` = 1)"},
		{"not cond", Not(Cond("a", OpEq, 1)), "NOT (`a` = 1)"},
		{
			"negated child keeps its group",
			AllOf(Values{{"a", 1}}, Not(Values{{"b", 2}})),
			"(`a` = 1 AND NOT (`b` = 2))",
		},
		{"nil child", AllOf(Values{{"a", 1}}, nil), "(`a` = 1 AND 1)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToSQL(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToSQL_InvalidArguments(t *testing.T) {
	tests := []struct {
		name string
		expr Expr
	}{
		{"between one value", Values{{"a__between", []int{1}}}},
		{"between three values", Values{{"a__between", []int{1, 2, 3}}}},
		{"between scalar", Values{{"a__between", 1}}},
		{"in scalar", Values{{"a__in", 1}}},
		{"like non-string", Values{{"a__like", 1}}},
		{"empty field", Cond("", OpEq, 1)},
		{"unknown operator", Cond("a", Operator(42), 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ToSQL(tt.expr)
			require.Error(t, err)
			assert.True(t, types.IsCode(err, types.ErrInvalidArgument), "got %v", err)
		})
	}
}

func TestCompile_Tree(t *testing.T) {
	n, err := Compile(AnyOf(Values{{"a__gt", 1}}, Values{{"b", nil}}))
	require.NoError(t, err)

	g, ok := n.(*Group)
	require.True(t, ok)
	assert.Equal(t, Or, g.Relation)
	assert.False(t, g.Negated)
	require.Len(t, g.Children, 2)
	assert.Equal(t, &Leaf{Field: "a", Op: OpGt, Value: 1}, g.Children[0])
	assert.Equal(t, &Leaf{Field: "b", Op: OpIsNull, Value: true}, g.Children[1])

	s, err := Render(n)
	require.NoError(t, err)
	assert.Equal(t, "(`a` > 1 OR `b` IS NULL)", s)
}

func TestValues_Helpers(t *testing.T) {
	v := M(map[string]any{"b": 2, "a": 1, "c": 3})
	assert.Equal(t, []string{"a", "b", "c"}, v.Keys())
	assert.Equal(t, []any{1, 2, 3}, v.Vals())

	v2 := v.Set("b", 20).Set("d", 4)
	assert.Equal(t, []string{"a", "b", "c", "d"}, v2.Keys())
	got, ok := v2.Get("b")
	assert.True(t, ok)
	assert.Equal(t, 20, got)

	// 原值不受影响
	got, _ = v.Get("b")
	assert.Equal(t, 2, got)
	_, ok = v.Get("d")
	assert.False(t, ok)
}

func TestProperty_Between_RejectsWrongArity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("between needs exactly two values", prop.ForAll(
		func(vals []int) bool {
			_, err := ToSQL(Values{{"a__between", vals}})
			return types.IsCode(err, types.ErrInvalidArgument)
		},
		gen.SliceOf(gen.Int()).SuchThat(func(v []int) bool { return len(v) != 2 }),
	))

	properties.TestingRun(t)
}

func TestProperty_Combination_RelationFollowsConstructor(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	build := func(n int) ([]Expr, []string) {
		exprs := make([]Expr, n)
		parts := make([]string, n)
		for i := 0; i < n; i++ {
			exprs[i] = Values{{fmt.Sprintf("k%d", i), i}}
			parts[i] = fmt.Sprintf("`k%d` = %d", i, i)
		}
		return exprs, parts
	}

	properties.Property("all of joins with AND", prop.ForAll(
		func(n int) bool {
			exprs, parts := build(n)
			got, err := ToSQL(AllOf(exprs...))
			return err == nil && got == "("+strings.Join(parts, " AND ")+")"
		},
		gen.IntRange(1, 12),
	))

	properties.Property("any of joins with OR", prop.ForAll(
		func(n int) bool {
			exprs, parts := build(n)
			got, err := ToSQL(AnyOf(exprs...))
			return err == nil && got == "("+strings.Join(parts, " OR ")+")"
		},
		gen.IntRange(1, 12),
	))

	properties.Property("not prefixes the rendering", prop.ForAll(
		func(n int) bool {
			exprs, parts := build(n)
			got, err := ToSQL(Not(AnyOf(exprs...)))
			return err == nil && got == "NOT ("+strings.Join(parts, " OR ")+")"
		},
		gen.IntRange(1, 12),
	))

	properties.TestingRun(t)
}
