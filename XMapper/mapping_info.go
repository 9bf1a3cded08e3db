// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XMapper

import (
	"reflect"
	"strings"

	"github.com/eframework-org/GO.UTIL/XLog"
	"github.com/eframework-org/GO.UTIL/XString"
)

// FetchHook 是查询语句的生命周期回调，可以在执行前检查或追加 SELECT/FROM 子句。
type FetchHook func(mapping *Mapping, stmt *Statement)

// EventHook 是保存或删除语句执行后的生命周期回调。
type EventHook func(mapping *Mapping)

// Column 描述了一个成员与数据列的映射关系。
type Column struct {
	Name       string     // 列名
	Alias      string     // 列别名，非空时 SELECT 输出 "列名 AS 别名"
	Path       MemberPath // 成员路径
	PrimaryKey bool       // 是否为主键
	Identity   bool       // 是否由数据库生成（自增），否则由调用方赋值
	ReadOnly   bool       // 是否只读，只读列不参与 INSERT/UPDATE
	Type       DbType     // 语义数据库类型
	Length     int        // 长度
	Converter  Converter  // 值转换器
}

// ResultName 返回结果集中用于匹配该列的名称（别名优先）。
func (c *Column) ResultName() string {
	if c.Alias != "" {
		return c.Alias
	}
	return c.Name
}

// WithType 显式设置语义数据库类型。
func (c *Column) WithType(t DbType) *Column { c.Type = t; return c }

// WithLength 设置列长度。
func (c *Column) WithLength(n int) *Column { c.Length = n; return c }

// WithAlias 设置列别名。
func (c *Column) WithAlias(alias string) *Column { c.Alias = alias; return c }

// WithConverter 设置值转换器。
func (c *Column) WithConverter(cv Converter) *Column { c.Converter = cv; return c }

// AsReadOnly 标记为只读列。
func (c *Column) AsReadOnly() *Column { c.ReadOnly = true; return c }

// AsIdentity 标记为数据库生成的列。
func (c *Column) AsIdentity() *Column { c.Identity = true; return c }

// AsAssigned 标记为调用方赋值的列。
func (c *Column) AsAssigned() *Column { c.Identity = false; return c }

// Mapping 描述了一个类型与数据表之间的映射关系。
// Mapping 在注册至缓存后应当被视为只读。
type Mapping struct {
	target        reflect.Type
	table         string
	alias         string
	readOnlyAlias string
	columns       []*Column
	byPath        map[string]*Column
	preFetch      []FetchHook
	postFetch     []FetchHook
	postSave      []EventHook
	postDelete    []EventHook
}

// NewMapping 创建类型 T 的映射定义。
func NewMapping[T any]() *Mapping {
	return NewMappingOf(reflect.TypeFor[T]())
}

// NewMappingOf 创建指定类型的映射定义，类型必须是结构体或结构体指针。
func NewMappingOf(t reflect.Type) *Mapping {
	if t == nil {
		err := newMappingError("<nil>", "", "nil target type")
		XLog.Error("XMapper.NewMapping: %v", err)
		panic(err)
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		err := newMappingError(t.String(), "", "target type must be a struct")
		XLog.Error("XMapper.NewMapping: %v", err)
		panic(err)
	}
	return &Mapping{target: t, byPath: make(map[string]*Column)}
}

// Type 返回映射的目标类型。
func (m *Mapping) Type() reflect.Type { return m.target }

// Table 返回数据表或数据源表达式。
func (m *Mapping) Table() string { return m.table }

// Source 返回数据源别名及只读数据源别名。
func (m *Mapping) Source() (primary string, readOnly string) { return m.alias, m.readOnlyAlias }

// DeclareTable 设置数据表或数据源表达式（支持字面的 JOIN 或表值函数调用）。
func (m *Mapping) DeclareTable(name string) *Mapping {
	m.table = name
	return m
}

// DeclareSource 设置数据源别名，可选地指定只读数据源别名。
func (m *Mapping) DeclareSource(alias string, readOnly ...string) *Mapping {
	m.alias = alias
	if len(readOnly) > 0 {
		m.readOnlyAlias = readOnly[0]
	}
	return m
}

// DeclarePrimaryKey 声明主键列，默认为数据库生成（Identity）。
func (m *Mapping) DeclarePrimaryKey(path string, column string) *Column {
	c := m.declare(path, column)
	c.PrimaryKey = true
	c.Identity = true
	return c
}

// DeclareColumn 声明普通列。
func (m *Mapping) DeclareColumn(path string, column string) *Column {
	return m.declare(path, column)
}

func (m *Mapping) declare(path string, column string) *Column {
	mpath, err := ResolvePath(m.target, path)
	if err != nil {
		merr := newMappingError(m.target.String(), path, "%v", err)
		XLog.Error("XMapper.Mapping.Declare(%v): %v", m.target, merr)
		panic(merr)
	}
	key := mpath.String()
	if _, ok := m.byPath[key]; ok {
		merr := newMappingError(m.target.String(), key, "duplicated declaration")
		XLog.Error("XMapper.Mapping.Declare(%v): %v", m.target, merr)
		panic(merr)
	}
	if XString.IsEmpty(column) {
		column = mpath.Terminal().Name
	}
	c := &Column{Name: column, Path: mpath, Type: InferDbType(mpath.Terminal().Type)}
	m.columns = append(m.columns, c)
	m.byPath[key] = c
	return c
}

// Columns 返回所有列，按声明顺序排列。
func (m *Mapping) Columns() []*Column { return m.columns }

// PrimaryKeys 返回所有主键列，按声明顺序排列。
func (m *Mapping) PrimaryKeys() []*Column {
	var keys []*Column
	for _, c := range m.columns {
		if c.PrimaryKey {
			keys = append(keys, c)
		}
	}
	return keys
}

// Identity 返回第一个数据库生成的主键列，不存在时返回 nil。
func (m *Mapping) Identity() *Column {
	for _, c := range m.columns {
		if c.PrimaryKey && c.Identity {
			return c
		}
	}
	return nil
}

// Column 根据完整的成员路径查找列。
func (m *Mapping) Column(path string) (*Column, bool) {
	c, ok := m.byPath[strings.TrimSpace(path)]
	return c, ok
}

// Resolve 根据完整的成员路径查找列，无法解析时返回 *MappingError。
func (m *Mapping) Resolve(path string) (*Column, error) {
	if c, ok := m.Column(path); ok {
		return c, nil
	}
	return nil, newMappingError(m.target.String(), path, "member path was not mapped")
}

// Validate 校验映射能否用于生成语句（非自定义语句）。
func (m *Mapping) Validate() error {
	if XString.IsEmpty(m.table) {
		return newMappingError(m.target.String(), "", "no table")
	}
	return nil
}

// validateKeys 校验映射是否声明了主键。
func (m *Mapping) validateKeys() error {
	if len(m.PrimaryKeys()) == 0 {
		return newMappingError(m.target.String(), "", "no primary key")
	}
	return nil
}

// OnPreFetch 注册查询前回调，按注册顺序执行。
func (m *Mapping) OnPreFetch(hook FetchHook) *Mapping {
	m.preFetch = append(m.preFetch, hook)
	return m
}

// OnPostFetch 注册查询后回调，按注册顺序执行。
func (m *Mapping) OnPostFetch(hook FetchHook) *Mapping {
	m.postFetch = append(m.postFetch, hook)
	return m
}

// OnPostSave 注册保存后回调，按注册顺序执行。
func (m *Mapping) OnPostSave(hook EventHook) *Mapping {
	m.postSave = append(m.postSave, hook)
	return m
}

// OnPostDelete 注册删除后回调，按注册顺序执行。
func (m *Mapping) OnPostDelete(hook EventHook) *Mapping {
	m.postDelete = append(m.postDelete, hook)
	return m
}

// newInstance 创建目标类型的默认实例，返回指针。
func (m *Mapping) newInstance() reflect.Value {
	ptr := reflect.New(m.target)
	if ctor, ok := ptr.Interface().(interface{ Ctor(obj any) }); ok {
		ctor.Ctor(ptr.Interface())
	}
	return ptr
}
