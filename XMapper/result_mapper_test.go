// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XMapper

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

// testCursor 是内存中的结果集游标，支持多个结果集。
type testCursor struct {
	columns [][]string
	rows    [][][]any
	set     int
	row     int
}

func newTestCursor(columns []string, rows ...[]any) *testCursor {
	return &testCursor{columns: [][]string{columns}, rows: [][][]any{rows}, row: -1}
}

func (c *testCursor) withResultSet(columns []string, rows ...[]any) *testCursor {
	c.columns = append(c.columns, columns)
	c.rows = append(c.rows, rows)
	return c
}

func (c *testCursor) Columns() ([]string, error) { return c.columns[c.set], nil }

func (c *testCursor) Next() bool {
	c.row++
	return c.row < len(c.rows[c.set])
}

func (c *testCursor) Scan(dest ...any) error {
	values := c.rows[c.set][c.row]
	if len(dest) != len(values) {
		return errors.New("column count mismatch")
	}
	for i, d := range dest {
		*(d.(*any)) = values[i]
	}
	return nil
}

func (c *testCursor) Err() error { return nil }

func (c *testCursor) NextResultSet() bool {
	if c.set+1 >= len(c.rows) {
		return false
	}
	c.set++
	c.row = -1
	return true
}

func TestResultMapper(t *testing.T) {
	t.Run("Single", func(t *testing.T) {
		m := newUserMapping()
		cursor := newTestCursor([]string{"ID", "NAME", "City", "extra"}, []any{int64(1), []byte("a"), "Paris", 1})
		single, err := mapSingle(m, cursor, NotFoundNil)
		assert.NoError(t, err, "映射单行应当成功。")
		user := single.(*testUser)
		assert.Equal(t, int64(1), user.ID, "ID 应当为 1。")
		assert.Equal(t, "a", user.Name, "列名应当大小写不敏感地匹配。")
		assert.Equal(t, "Paris", user.Meta.Address.City, "嵌套成员应当被赋值。")
		assert.Equal(t, 0, user.Age, "结果集中没有的列应当保持默认值。")
	})

	t.Run("NotFound", func(t *testing.T) {
		m := newUserMapping()
		single, err := mapSingle(m, newTestCursor([]string{"id"}), NotFoundNil)
		assert.NoError(t, err)
		assert.Nil(t, single, "策略为 NotFoundNil 时未找到应当返回 nil。")

		single, err = mapSingle(m, newTestCursor([]string{"id"}), NotFoundDefault)
		assert.NoError(t, err)
		assert.IsType(t, &testUser{}, single, "策略为 NotFoundDefault 时未找到应当返回默认实例。")
	})

	t.Run("List", func(t *testing.T) {
		m := newSimpleMapping()
		cursor := newTestCursor([]string{"id", "name"},
			[]any{int64(1), "a"},
			[]any{int64(2), nil},
			[]any{int64(3), "c"})
		list, err := mapList(m, cursor)
		assert.NoError(t, err, "映射多行应当成功。")
		assert.Len(t, list, 3, "结果数量应当为 3。")
		assert.Equal(t, &testSimple{Id: 2}, list[1], "空值应当写入为零值。")

		list, err = mapList(m, newTestCursor([]string{"id", "name"}))
		assert.NoError(t, err)
		assert.NotNil(t, list, "空结果应当返回空列表而不是 nil。")
		assert.Empty(t, list, "空结果的列表应当为空。")
	})

	t.Run("Alias", func(t *testing.T) {
		m := newSimpleMapping()
		m.Columns()[1].WithAlias("caption")
		list, err := mapList(m, newTestCursor([]string{"Name", "caption"}, []any{"wrong", "right"}))
		assert.NoError(t, err)
		assert.Equal(t, "right", list[0].(*testSimple).Name, "存在别名时应当按别名匹配结果列。")
	})

	t.Run("AssignmentError", func(t *testing.T) {
		m := newUserMapping()
		_, err := mapList(m, newTestCursor([]string{"age"}, []any{"not a number"}))
		var aerr *MemberAssignmentError
		assert.True(t, errors.As(err, &aerr), "无法写入的值应当返回 *MemberAssignmentError。")
	})

	t.Run("Scalar", func(t *testing.T) {
		value, err := mapScalar(newTestCursor([]string{"c"}, []any{int64(7)}), reflect.TypeFor[int64]())
		assert.NoError(t, err)
		assert.Equal(t, int64(7), value, "标量应当为 7。")

		value, err = mapScalar(newTestCursor([]string{"c"}), reflect.TypeFor[int64]())
		assert.NoError(t, err)
		assert.Equal(t, int64(0), value, "没有数据行时应当返回零值。")

		list, err := mapScalarList(newTestCursor([]string{"c"}, []any{[]byte("a")}, []any{"b"}), reflect.TypeFor[string]())
		assert.NoError(t, err)
		assert.Equal(t, []any{"a", "b"}, list, "标量列表应当按行读取首列。")
	})

	t.Run("Total", func(t *testing.T) {
		cursor := newTestCursor([]string{"id"}, []any{int64(1)}).withResultSet([]string{"COUNT(*)"}, []any{int64(42)})
		_, err := mapScalarList(cursor, reflect.TypeFor[int64]())
		assert.NoError(t, err)
		total, err := readTotal(cursor)
		assert.NoError(t, err)
		assert.Equal(t, int64(42), *total, "总行数应当从下一个结果集中读取。")

		total, err = readTotal(newTestCursor([]string{"id"}))
		assert.NoError(t, err)
		assert.Nil(t, total, "不存在下一个结果集时总行数应当为 nil。")
	})

	t.Run("Coerce", func(t *testing.T) {
		now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
		tests := []struct {
			name     string
			value    any
			typ      reflect.Type
			expected any
		}{
			{"Same", int64(5), reflect.TypeFor[int64](), int64(5)},
			{"Widen", int64(5), reflect.TypeFor[int32](), int32(5)},
			{"Overflow", int64(300), reflect.TypeFor[int8](), int8(0)},
			{"TextInt", []byte("12"), reflect.TypeFor[int64](), int64(12)},
			{"TextFloat", "1.5", reflect.TypeFor[float64](), 1.5},
			{"IntFloat", int64(2), reflect.TypeFor[float64](), 2.0},
			{"TextString", []byte("s"), reflect.TypeFor[string](), "s"},
			{"IntBool", int64(1), reflect.TypeFor[bool](), true},
			{"TextDecimal", []byte("3.25"), reflect.TypeFor[decimal.Decimal](), decimal.RequireFromString("3.25")},
			{"TextTime", "2025-03-01 08:00:00", reflect.TypeFor[time.Time](), now},
			{"Nil", nil, reflect.TypeFor[int64](), int64(0)},
			{"MismatchString", "abc", reflect.TypeFor[int64](), int64(0)},
			{"MismatchInt", int64(1), reflect.TypeFor[string](), ""},
			{"Unsigned", int64(3), reflect.TypeFor[uint16](), uint16(3)},
			{"Negative", int64(-3), reflect.TypeFor[uint16](), uint16(0)},
		}
		for _, test := range tests {
			t.Run(test.name, func(t *testing.T) {
				actual := coerceScalar(test.value, test.typ)
				if d, ok := test.expected.(decimal.Decimal); ok {
					assert.True(t, d.Equal(actual.(decimal.Decimal)), "定点小数应当相等。")
					return
				}
				assert.Equal(t, test.expected, actual, "转换结果应当一致。")
			})
		}

		pointer := coerceScalar(int64(4), reflect.TypeFor[*int64]())
		assert.Equal(t, int64(4), *(pointer.(*int64)), "指针类型应当指向转换后的值。")
	})

	t.Run("Pages", func(t *testing.T) {
		total := int64(11)
		result := &Result{Total: &total}
		assert.Equal(t, int64(3), result.Pages(5), "总页数应当向上取整。")
		assert.Equal(t, int64(0), result.Pages(0), "每页行数无效时总页数应当为 0。")
		assert.Equal(t, int64(0), (&Result{}).Pages(5), "未返回总行数时总页数应当为 0。")
	})
}
