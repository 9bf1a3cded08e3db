// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XMapper

import (
	"errors"
	"reflect"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

// testState 是测试用的枚举。
type testState int

const (
	testStateNone testState = iota
	testStateActive
	testStateClosed
)

type testAddress struct {
	City string
	Zip  *string
}

type testMeta struct {
	Guid    string
	Address *testAddress
}

// testUser 是测试用的实体，包含嵌套成员、枚举及可空成员。
type testUser struct {
	ID      int64
	Name    string
	Age     int
	State   testState
	Score   *float64
	Meta    *testMeta
	Created civil.Date
	Amount  decimal.Decimal
}

// testSimple 对应 T 表的最小映射：ID（自增主键）及 Name。
type testSimple struct {
	Id   int64
	Name string
}

func newSimpleMapping() *Mapping {
	m := NewMapping[testSimple]().DeclareTable("T")
	m.DeclarePrimaryKey("Id", "ID")
	m.DeclareColumn("Name", "Name")
	return m
}

func newUserMapping() *Mapping {
	m := NewMapping[testUser]().DeclareTable("T_User")
	m.DeclarePrimaryKey("ID", "id")
	m.DeclareColumn("Name", "name")
	m.DeclareColumn("Age", "age")
	m.DeclareColumn("State", "state")
	m.DeclareColumn("Score", "score")
	m.DeclareColumn("Meta.Guid", "guid")
	m.DeclareColumn("Meta.Address.City", "city")
	m.DeclareColumn("Created", "created").AsReadOnly()
	return m
}

func TestMappingInfo(t *testing.T) {
	t.Run("Declare", func(t *testing.T) {
		m := newUserMapping()
		assert.Equal(t, reflect.TypeFor[testUser](), m.Type(), "映射的目标类型应当为 testUser。")
		assert.Equal(t, "T_User", m.Table(), "映射的数据表应当为 T_User。")
		assert.Len(t, m.Columns(), 8, "映射的列数量应当为 8。")

		keys := m.PrimaryKeys()
		assert.Len(t, keys, 1, "映射的主键数量应当为 1。")
		assert.Equal(t, "id", keys[0].Name, "主键列名应当为 id。")
		assert.True(t, keys[0].Identity, "DeclarePrimaryKey 声明的主键默认应当为数据库生成。")
		assert.Equal(t, keys[0], m.Identity(), "Identity 应当返回自增主键。")

		city, ok := m.Column("Meta.Address.City")
		assert.True(t, ok, "嵌套成员路径应当可以查找到列。")
		assert.Equal(t, "city", city.Name, "嵌套成员的列名应当为 city。")
		assert.Len(t, city.Path, 3, "嵌套成员路径的长度应当为 3。")
		assert.Equal(t, DbString, city.Type, "字符串成员应当推断为 DbString。")

		state, _ := m.Column("State")
		assert.Equal(t, DbInt64, state.Type, "枚举成员应当按底层类型推断为 DbInt64。")

		score, _ := m.Column("Score")
		assert.Equal(t, DbDouble, score.Type, "可空的浮点成员应当推断为 DbDouble。")

		created, _ := m.Column("Created")
		assert.True(t, created.ReadOnly, "Created 应当为只读列。")
		assert.Equal(t, DbDate, created.Type, "civil.Date 成员应当推断为 DbDate。")
	})

	t.Run("DefaultColumnName", func(t *testing.T) {
		m := NewMapping[testSimple]().DeclareTable("T")
		c := m.DeclareColumn("Name", "")
		assert.Equal(t, "Name", c.Name, "未指定列名时应当使用成员名称。")
	})

	t.Run("InvalidDeclare", func(t *testing.T) {
		tests := []struct {
			name string
			fn   func()
		}{
			{"UnknownMember", func() { NewMapping[testUser]().DeclareColumn("Unknown", "x") }},
			{"UnknownNested", func() { NewMapping[testUser]().DeclareColumn("Meta.Unknown", "x") }},
			{"NotStruct", func() { NewMapping[testUser]().DeclareColumn("Name.Length", "x") }},
			{"Duplicated", func() {
				m := NewMapping[testUser]()
				m.DeclareColumn("Name", "a")
				m.DeclareColumn("Name", "b")
			}},
			{"NonStructType", func() { NewMapping[int]() }},
		}
		for _, test := range tests {
			t.Run(test.name, func(t *testing.T) {
				defer func() {
					r := recover()
					assert.NotNil(t, r, "无效的声明应当触发 panic。")
					_, ok := r.(*MappingError)
					assert.True(t, ok, "panic 的值应当为 *MappingError。")
				}()
				test.fn()
			})
		}
	})

	t.Run("Resolve", func(t *testing.T) {
		m := newUserMapping()
		c, err := m.Resolve("Name")
		assert.NoError(t, err, "已映射的成员路径应当可以解析。")
		assert.Equal(t, "name", c.Name, "解析的列名应当为 name。")

		_, err = m.Resolve("Meta")
		var merr *MappingError
		assert.True(t, errors.As(err, &merr), "未映射的成员路径应当返回 *MappingError。")
		assert.Equal(t, "Meta", merr.Member, "错误应当携带成员路径。")
	})

	t.Run("Validate", func(t *testing.T) {
		m := NewMapping[testSimple]()
		assert.Error(t, m.Validate(), "未声明数据表的映射应当校验失败。")
		m.DeclareTable("T")
		assert.NoError(t, m.Validate(), "已声明数据表的映射应当校验通过。")
		assert.Error(t, m.validateKeys(), "未声明主键的映射应当校验失败。")
	})

	t.Run("Source", func(t *testing.T) {
		m := NewMapping[testSimple]().DeclareSource("Main", "Replica")
		primary, readOnly := m.Source()
		assert.Equal(t, "Main", primary, "数据源别名应当为 Main。")
		assert.Equal(t, "Replica", readOnly, "只读数据源别名应当为 Replica。")
	})

	t.Run("Modifiers", func(t *testing.T) {
		m := NewMapping[testSimple]().DeclareTable("T")
		c := m.DeclarePrimaryKey("Id", "ID").AsAssigned().WithAlias("Key").WithLength(8).WithType(DbInt32)
		assert.False(t, c.Identity, "AsAssigned 应当取消数据库生成标记。")
		assert.Equal(t, "Key", c.ResultName(), "存在别名时结果名称应当为别名。")
		assert.Equal(t, 8, c.Length, "列长度应当为 8。")
		assert.Equal(t, DbInt32, c.Type, "显式设置的类型应当为 DbInt32。")
		assert.Nil(t, m.Identity(), "不存在自增主键时 Identity 应当返回 nil。")
	})

	t.Run("NewInstance", func(t *testing.T) {
		m := NewMapping[testCtorEntity]()
		inst := m.newInstance().Interface().(*testCtorEntity)
		assert.Equal(t, "ctor", inst.Name, "创建实例时应当调用 Ctor。")
	})
}

type testCtorEntity struct {
	Name string
}

func (e *testCtorEntity) Ctor(obj any) {
	obj.(*testCtorEntity).Name = "ctor"
}

func TestMappingType(t *testing.T) {
	tests := []struct {
		name     string
		typ      reflect.Type
		expected DbType
	}{
		{"Bool", reflect.TypeFor[bool](), DbBool},
		{"Int8", reflect.TypeFor[int8](), DbByte},
		{"Int16", reflect.TypeFor[int16](), DbInt16},
		{"Int32", reflect.TypeFor[int32](), DbInt32},
		{"Int", reflect.TypeFor[int](), DbInt64},
		{"Float32", reflect.TypeFor[float32](), DbFloat},
		{"Float64", reflect.TypeFor[*float64](), DbDouble},
		{"String", reflect.TypeFor[string](), DbString},
		{"Bytes", reflect.TypeFor[[]byte](), DbBinary},
		{"Time", reflect.TypeFor[*civil.DateTime](), DbDateTime},
		{"Clock", reflect.TypeFor[civil.Time](), DbTime},
		{"Decimal", reflect.TypeFor[decimal.Decimal](), DbDecimal},
		{"Enum", reflect.TypeFor[testState](), DbInt64},
		{"Struct", reflect.TypeFor[testMeta](), DbUnknown},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, InferDbType(test.typ), "%v 的推断类型应当为 %v。", test.typ, test.expected)
		})
	}
	assert.Equal(t, "Int64", DbInt64.String(), "DbInt64 的名称应当为 Int64。")
	assert.True(t, isScalarType(reflect.TypeFor[decimal.Decimal]()), "decimal.Decimal 应当作为单列值映射。")
	assert.False(t, isScalarType(reflect.TypeFor[*testMeta]()), "结构体指针应当作为嵌套成员展开。")
}
