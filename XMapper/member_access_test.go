// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XMapper

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

// testUpperConverter 在数据库中以大写存储字符串。
type testUpperConverter struct{}

func (testUpperConverter) FromDb(value any, target reflect.Type) (any, error) {
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("unexpected %T", value)
	}
	return strings.ToLower(s), nil
}

func (testUpperConverter) ToDb(value any) (any, error) {
	return strings.ToUpper(fmt.Sprint(value)), nil
}

func mustPath(t *testing.T, path string) MemberPath {
	p, err := ResolvePath(reflect.TypeFor[testUser](), path)
	assert.NoError(t, err, "成员路径 %v 应当可以解析。", path)
	return p
}

func TestMemberAccess(t *testing.T) {
	t.Run("ResolvePath", func(t *testing.T) {
		p := mustPath(t, "Meta.Address.City")
		assert.Equal(t, "Meta.Address.City", p.String(), "成员路径的字符串表示应当一致。")
		assert.Equal(t, "City", p.Terminal().Name, "末端成员应当为 City。")
		assert.Equal(t, reflect.TypeFor[testAddress](), p.Terminal().Owner, "末端成员的所属类型应当为 testAddress。")

		_, err := ResolvePath(reflect.TypeFor[testUser](), "")
		assert.Error(t, err, "空路径应当解析失败。")
		_, err = ResolvePath(reflect.TypeFor[testTagged](), "hidden")
		assert.Error(t, err, "不可导出的成员应当解析失败。")
	})

	t.Run("NestedRoundTrip", func(t *testing.T) {
		user := &testUser{}
		path := mustPath(t, "Meta.Address.City")
		assert.NoError(t, SetValue(path, "Paris", user, nil), "写入嵌套成员应当成功。")
		assert.NotNil(t, user.Meta, "写入时应当分配中间节点 Meta。")
		assert.NotNil(t, user.Meta.Address, "写入时应当分配中间节点 Address。")

		value, ok := GetValue(path, user)
		assert.True(t, ok, "读取已分配的嵌套成员应当成功。")
		assert.Equal(t, "Paris", value, "读取的值应当与写入的值一致。")
	})

	t.Run("GetNilIntermediate", func(t *testing.T) {
		user := &testUser{}
		value, ok := GetValue(mustPath(t, "Meta.Guid"), user)
		assert.False(t, ok, "中间节点为空时读取应当返回 false。")
		assert.Nil(t, value, "中间节点为空时读取的值应当为 nil。")
		assert.Nil(t, user.Meta, "读取不应当分配中间节点。")

		value, ok = GetValue(mustPath(t, "Score"), user)
		assert.True(t, ok, "末端成员为空指针时读取应当返回 true。")
		assert.Nil(t, value, "末端成员为空指针时读取的值应当为 nil。")
	})

	t.Run("AbsentNoAllocate", func(t *testing.T) {
		user := &testUser{}
		assert.NoError(t, SetValue(mustPath(t, "Meta.Guid"), nil, user, nil), "写入空值应当成功。")
		assert.Nil(t, user.Meta, "写入空值时不应当分配末端成员的直接父节点。")

		assert.NoError(t, SetValue(mustPath(t, "Meta.Address.City"), nil, user, nil), "写入空值应当成功。")
		assert.NotNil(t, user.Meta, "非直接父节点的中间节点应当被分配。")
		assert.Nil(t, user.Meta.Address, "写入空值时不应当分配末端成员的直接父节点。")
	})

	t.Run("Assign", func(t *testing.T) {
		score := 9.5
		tests := []struct {
			name     string
			path     string
			value    any
			expected func(u *testUser) any
			want     any
		}{
			{"Enum", "State", int64(2), func(u *testUser) any { return u.State }, testStateClosed},
			{"IntFromText", "Age", []byte("18"), func(u *testUser) any { return u.Age }, 18},
			{"StringFromBytes", "Name", []byte("bytes"), func(u *testUser) any { return u.Name }, "bytes"},
			{"StringFromInt", "Name", int64(42), func(u *testUser) any { return u.Name }, "42"},
			{"Nullable", "Score", 9.5, func(u *testUser) any { return u.Score }, &score},
			{"NullableFromNil", "Score", nil, func(u *testUser) any { return u.Score }, (*float64)(nil)},
			{"DateFromTime", "Created", time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), func(u *testUser) any { return u.Created }, civil.Date{Year: 2025, Month: 3, Day: 1}},
			{"DateFromText", "Created", "2025-03-01", func(u *testUser) any { return u.Created }, civil.Date{Year: 2025, Month: 3, Day: 1}},
			{"IDFromInt", "ID", 7, func(u *testUser) any { return u.ID }, int64(7)},
		}
		for _, test := range tests {
			t.Run(test.name, func(t *testing.T) {
				user := &testUser{Name: "origin", Age: 1}
				assert.NoError(t, SetValue(mustPath(t, test.path), test.value, user, nil), "写入 %v 应当成功。", test.path)
				assert.Equal(t, test.want, test.expected(user), "写入 %v 后的值应当一致。", test.path)
			})
		}
	})

	t.Run("Decimal", func(t *testing.T) {
		user := &testUser{}
		assert.NoError(t, SetValue(mustPath(t, "Amount"), []byte("12.50"), user, nil), "文本应当通过 Scanner 写入定点小数。")
		assert.True(t, decimal.RequireFromString("12.5").Equal(user.Amount), "写入的定点小数应当为 12.5。")
	})

	t.Run("Converter", func(t *testing.T) {
		user := &testUser{}
		path := mustPath(t, "Name")
		assert.NoError(t, SetValue(path, "HELLO", user, testUpperConverter{}), "通过转换器写入应当成功。")
		assert.Equal(t, "hello", user.Name, "转换器的输出应当直接写入成员。")

		err := SetValue(path, 1, user, testUpperConverter{})
		var aerr *MemberAssignmentError
		assert.True(t, errors.As(err, &aerr), "转换器的错误应当包装为 *MemberAssignmentError。")
		assert.Equal(t, "Name", aerr.Member, "错误应当携带成员路径。")
	})

	t.Run("AssignmentError", func(t *testing.T) {
		tests := []struct {
			name  string
			path  string
			value any
			root  any
		}{
			{"NotNumber", "Age", "abc", &testUser{}},
			{"BadDate", "Created", "not a date", &testUser{}},
			{"Incompatible", "Age", struct{}{}, &testUser{}},
			{"NonPointerRoot", "Age", 1, testUser{}},
			{"NilRoot", "Age", 1, (*testUser)(nil)},
		}
		for _, test := range tests {
			t.Run(test.name, func(t *testing.T) {
				err := SetValue(mustPath(t, test.path), test.value, test.root, nil)
				var aerr *MemberAssignmentError
				assert.True(t, errors.As(err, &aerr), "无法写入时应当返回 *MemberAssignmentError。")
				assert.Equal(t, test.path, aerr.Member, "错误应当携带成员路径。")
			})
		}
	})

	t.Run("Overflow", func(t *testing.T) {
		type small struct{ Value int8 }
		p, err := ResolvePath(reflect.TypeFor[small](), "Value")
		assert.NoError(t, err)
		assert.Error(t, SetValue(p, int64(300), &small{}, nil), "超出范围的整数应当写入失败。")
		s := &small{}
		assert.NoError(t, SetValue(p, int64(-3), s, nil))
		assert.Equal(t, int8(-3), s.Value, "范围内的整数应当写入成功。")
	})

	t.Run("Clock", func(t *testing.T) {
		type clock struct {
			At       civil.Time
			Duration time.Duration
		}
		c := &clock{}
		at, _ := ResolvePath(reflect.TypeFor[clock](), "At")
		dur, _ := ResolvePath(reflect.TypeFor[clock](), "Duration")
		assert.NoError(t, SetValue(at, 90*time.Minute, c, nil), "时长应当可以写入仅时间类型。")
		assert.Equal(t, civil.Time{Hour: 1, Minute: 30}, c.At, "写入的仅时间应当为 01:30。")
		assert.NoError(t, SetValue(dur, civil.Time{Hour: 2}, c, nil), "仅时间类型应当可以写入时长。")
		assert.Equal(t, 2*time.Hour, c.Duration, "写入的时长应当为 2 小时。")
	})
}
