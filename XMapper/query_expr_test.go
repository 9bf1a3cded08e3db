// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XMapper

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueryExpr(t *testing.T) {
	t.Run("Where", func(t *testing.T) {
		tests := []struct {
			expr     string
			args     []any
			where    string
			expected map[string]any
		}{
			{"Age > {0}", []any{18}, "age > @C0", map[string]any{"C0": 18}},
			{"Age >= {0} && Age <= {1}", []any{18, 30}, "age >= @C0 AND age <= @C1", map[string]any{"C0": 18, "C1": 30}},
			{"Name == {0} || Name != {1}", []any{"a", "b"}, "(name = @C0 OR name <> @C1)", map[string]any{"C0": "a", "C1": "b"}},
			{"Age > {0} && Name == {1} || Name == {2} && State == {3}", []any{1, "a", "b", 2}, "age > @C0 AND (name = @C1 OR name = @C2) AND state = @C3", nil},
			{"Name contains {0}", []any{"x"}, "name LIKE @C0", map[string]any{"C0": "%x%"}},
			{"Name startswith {0}", []any{"x"}, "name LIKE @C0", map[string]any{"C0": "x%"}},
			{"Name endswith {0}", []any{"x"}, "name LIKE @C0", map[string]any{"C0": "%x"}},
			{"Name like {0}", []any{"x_"}, "name LIKE @C0", map[string]any{"C0": "x_"}},
			{"Name isnull {0}", []any{true}, "name IS NULL", nil},
			{"Name isnull {0}", []any{false}, "name IS NOT NULL", nil},
			{"ID in {0}", []any{[]int{1, 2}}, "id IN (@C0_0,@C0_1)", map[string]any{"C0_0": 1, "C0_1": 2}},
			{"ID notin {0}", []any{[]int{}}, "1 = 1", nil},
			{"Age > {1} && Name == {0}", []any{"a", 1}, "age > @C0 AND name = @C1", map[string]any{"C0": 1, "C1": "a"}},
			{"Meta.Address.City == {0}", []any{"Paris"}, "city = @C0", map[string]any{"C0": "Paris"}},
			{"(Age > {0})", []any{1}, "(age > @C0)", map[string]any{"C0": 1}},
			{"Age > {0} && (Name == {1} || State == {2})", []any{1, "a", 2}, "age > @C0 AND (name = @C1 OR state = @C2)", nil},
			{"Age > {0} && !(Name == {1} || Name == {2})", []any{1, "a", "b"}, "age > @C0 AND NOT (name = @C1 OR name = @C2)", map[string]any{"C2": "b"}},
			{"!(Age > {0})", []any{1}, "NOT (age > @C0)", nil},
			{"(Age > {0} && Name == {1}) || (Age < {2} && State == {3})", []any{1, "a", 9, 2}, "((age > @C0 AND name = @C1) OR (age < @C2 AND state = @C3))", map[string]any{"C2": 9}},
			{"Age > {0} && (Name == {1} || (State == {2} && ID in {3}))", []any{1, "a", 2, []int{5}}, "age > @C0 AND (name = @C1 OR (state = @C2 AND id IN (@C3_0)))", map[string]any{"C3_0": 5}},
			{"Age > {0} && ( Name isnull {1} )", []any{1, true}, "age > @C0 AND (name IS NULL)", nil},
		}
		for _, test := range tests {
			t.Run(test.expr, func(t *testing.T) {
				m := newUserMapping()
				q := NewQuery(m)
				assert.NoError(t, q.Where(test.expr, test.args...), "表达式 %v 应当解析成功。", test.expr)

				stmt, err := NewCompiler(nil).Select(m, q, MultipleRows)
				assert.NoError(t, err, "表达式 %v 应当编译成功。", test.expr)
				assert.Equal(t, test.where, stmt.Where, "表达式 %v 的 WHERE 子句应当一致。", test.expr)
				for name, value := range test.expected {
					p, ok := stmt.Param(name)
					assert.True(t, ok, "参数 %v 应当存在。", name)
					assert.Equal(t, value, p.Value, "参数 %v 的值应当一致。", name)
				}
			})
		}
	})

	t.Run("Limit", func(t *testing.T) {
		m := newUserMapping()
		q := NewQuery(m)
		assert.NoError(t, q.Where("Age > {0} && limit {1}", 18, 10), "带 limit 的表达式应当解析成功。")
		stmt, err := NewCompiler(nil).Select(m, q, MultipleRows)
		assert.NoError(t, err)
		assert.Equal(t, " LIMIT @MaxResults", stmt.Limit, "limit 应当设置最大返回行数。")
		p, _ := stmt.Param("MaxResults")
		assert.Equal(t, 10, p.Value, "最大返回行数应当为 10。")
	})

	t.Run("Invalid", func(t *testing.T) {
		tests := []struct {
			name string
			expr string
			args []any
		}{
			{"ArgCount", "Age > {0}", []any{}},
			{"Operator", "Age ~ {0}", []any{1}},
			{"LeftBracket", "(Age > {0}", []any{1}},
			{"RightBracket", "Age > {0})", []any{1}},
			{"EmptyBrackets", "Age > {0} && ()", []any{1}},
			{"NotWithoutBracket", "! Age > {0}", []any{1}},
			{"DoubleNot", "! !(Age > {0})", []any{1}},
			{"MissingConnector", "(Age > {0}) (Name == {1})", []any{1, "a"}},
			{"LimitInBrackets", "(Age > {0} && limit {1})", []any{1, 10}},
			{"Incomplete", "Age > {0} &&", []any{1}},
			{"Connector", "Age > {0} and Name == {1}", []any{1, "a"}},
			{"Parameter", "Age > 0 {0}", []any{1}},
			{"IsNullArg", "Name isnull {0}", []any{"yes"}},
			{"LimitArg", "limit {0}", []any{"10"}},
			{"IndexRange", "Age > {3}", []any{1}},
		}
		for _, test := range tests {
			t.Run(test.name, func(t *testing.T) {
				q := NewQuery(newUserMapping())
				err := q.Where(test.expr, test.args...)
				var qerr *InvalidQueryError
				assert.True(t, errors.As(err, &qerr), "无效的表达式 %v 应当返回 *InvalidQueryError。", test.expr)
			})
		}
	})

	t.Run("Atomic", func(t *testing.T) {
		q := NewQuery(newUserMapping())
		assert.Error(t, q.Where("Age > {0} && (Unknown == {1})", 1, 2))
		assert.Empty(t, q.Predicates(), "解析失败时不应当添加任何条件。")
	})

	t.Run("UnmappedKey", func(t *testing.T) {
		q := NewQuery(newUserMapping())
		var merr *MappingError
		assert.True(t, errors.As(q.Where("Unknown == {0}", 1), &merr), "未映射的键应当返回 *MappingError。")
	})

	t.Run("Concurrent", func(t *testing.T) {
		wg := sync.WaitGroup{}
		for range 100 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				q := NewQuery(newUserMapping())
				assert.NoError(t, q.Where("Age > {0} || Name == {1}", 1, "a"))
				assert.Len(t, q.Predicates(), 2, "并发解析的条件数量应当为 2。")
			}()
		}
		wg.Wait()
	})
}
