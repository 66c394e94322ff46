package orm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/lian/config"
	"github.com/BaSui01/lian/internal/database"
	"github.com/BaSui01/lian/types"
)

// stubExecutor 记录语句，不访问数据库
type stubExecutor struct {
	cfg     config.DatabaseConfig
	cfgErr  error
	queries []string
	result  *database.Result
}

func (s *stubExecutor) Execute(_ context.Context, query string, _ ...database.ExecOption) (*database.Result, error) {
	s.queries = append(s.queries, query)
	return s.result, nil
}

func (s *stubExecutor) Query(_ context.Context, query string, _ ...database.ExecOption) (*database.Result, error) {
	s.queries = append(s.queries, query)
	return s.result, nil
}

func (s *stubExecutor) Config(string) (config.DatabaseConfig, error) {
	return s.cfg, s.cfgErr
}

type UserProfile struct{}

func TestTableName(t *testing.T) {
	tests := map[string]string{
		"UserProfile": "user_profile",
		"user":        "user",
		"Order":       "order",
		"APIKey":      "a_p_i_key",
		"Item2":       "item2",
		"":            "",
	}
	for in, want := range tests {
		assert.Equal(t, want, TableName(in), in)
	}

	assert.Equal(t, "user_profile", TableNameOf(UserProfile{}))
	assert.Equal(t, "user_profile", TableNameOf(&UserProfile{}))
	assert.Equal(t, "", TableNameOf(nil))
}

func TestNewFor(t *testing.T) {
	m := NewFor[UserProfile](&stubExecutor{})
	assert.Equal(t, "user_profile", m.Table())
	assert.Equal(t, "", m.Database())
}

func TestModel_Schema(t *testing.T) {
	exec := &stubExecutor{cfg: config.DatabaseConfig{Name: "default", Database: "app"}}

	full, err := New(exec, "users").FullTableName()
	require.NoError(t, err)
	assert.Equal(t, "app.users", full)

	full, err = New(exec, "users", WithSchema("archive")).FullTableName()
	require.NoError(t, err)
	assert.Equal(t, "archive.users", full)
}

func TestModel_SchemaMissing(t *testing.T) {
	exec := &stubExecutor{cfg: config.DatabaseConfig{Name: "default"}}

	_, err := New(exec, "users").Find(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrConfiguration))
	assert.Empty(t, exec.queries)
}

func TestModel_SchemaNotInitialized(t *testing.T) {
	exec := &stubExecutor{cfgErr: types.NewError(types.ErrNotInitialized, "connection pool need initialize")}

	_, err := New(exec, "users").Get(context.Background(), 1)
	assert.True(t, types.IsCode(err, types.ErrNotInitialized))
}

func TestModel_RenderedStatements(t *testing.T) {
	ctx := context.Background()
	exec := &stubExecutor{
		cfg:    config.DatabaseConfig{Name: "default", Database: "app"},
		result: &database.Result{Rows: []database.Row{{Columns: []string{"COUNT(1)"}, Values: []any{int64(4)}}}, RowCount: 1},
	}
	users := New(exec, "users", WithPK("uid"))

	n, err := users.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	_, err = users.Get(ctx, 9)
	require.NoError(t, err)

	_, err = users.Update(ctx, nil, nil)
	assert.Error(t, err, "empty SET is rejected by the builder")

	assert.Equal(t, []string{
		"SELECT COUNT(1) FROM `app`.`users` WHERE 1",
		"SELECT * FROM `app`.`users` WHERE (`uid` = 9)",
	}, exec.queries)
}

func TestToInt64(t *testing.T) {
	for _, v := range []any{int64(3), 3, int32(3), uint64(3), float64(3), "3", []byte("3")} {
		n, err := toInt64(v)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
	}
	_, err := toInt64(struct{}{})
	assert.Error(t, err)
}
