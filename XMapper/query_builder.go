// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XMapper

import (
	"reflect"

	"github.com/eframework-org/GO.UTIL/XString"
)

// Comparison 定义了条件的比较操作符。
type Comparison int

const (
	OpEquals         Comparison = iota // =
	OpNotEquals                        // <>
	OpLess                             // <
	OpLessOrEqual                      // <=
	OpGreater                          // >
	OpGreaterOrEqual                   // >=
	OpLike                             // LIKE，值原样绑定
	OpContains                         // LIKE '%v%'
	OpStartsWith                       // LIKE 'v%'
	OpEndsWith                         // LIKE '%v'
	OpIn                               // IN (...)
	OpNotIn                            // NOT IN (...)
)

var comparisonSymbols = [...]string{
	OpEquals:         "=",
	OpNotEquals:      "<>",
	OpLess:           "<",
	OpLessOrEqual:    "<=",
	OpGreater:        ">",
	OpGreaterOrEqual: ">=",
	OpLike:           "LIKE",
	OpContains:       "LIKE",
	OpStartsWith:     "LIKE",
	OpEndsWith:       "LIKE",
	OpIn:             "IN",
	OpNotIn:          "NOT IN",
}

func (c Comparison) String() string {
	if c >= 0 && int(c) < len(comparisonSymbols) {
		return comparisonSymbols[c]
	}
	return "?"
}

// Connect 定义了条件与其后一个条件之间的连接方式。
type Connect int

const (
	ConnectAnd         Connect = iota // AND
	ConnectOr                         // OR，开启或延续一个括号分组
	ConnectOrUngrouped                // OR，不开启括号分组
)

// Direction 定义了排序方向。
type Direction int

const (
	Asc Direction = iota
	Desc
)

func (d Direction) String() string {
	if d == Desc {
		return "DESC"
	}
	return "ASC"
}

// Predicate 是一个 WHERE 条件，Raw 非空时为原始 SQL 片段。
type Predicate struct {
	Raw        string       // 原始 SQL 片段
	Column     *Column      // 条件列
	Type       DbType       // 参数类型
	Value      any          // 比较值
	Comparison Comparison   // 比较操作符
	Connect    Connect      // 与后一个条件的连接方式
	Group      []*Predicate // 嵌套的条件分组，非空时忽略其他字段
	Not        bool         // 是否对条件或分组取反
}

// Order 是一个排序项。
type Order struct {
	Column    *Column
	Direction Direction
}

// Parameter 是一个命名参数，名称不包含 @ 前缀。
type Parameter struct {
	Name     string // 参数名称
	Value    any    // 参数值
	Type     DbType // 语义数据库类型
	Length   int    // 长度
	TypeName string // 用户定义类型名称（表值参数或数组参数）
}

// Query 收集针对一个映射的过滤、排序、分页及参数。
// Query 在每次调用时构建，执行后即可丢弃。
type Query struct {
	mapping    *Mapping
	predicates []*Predicate
	orders     []*Order
	sql        string
	paging     bool
	rowCount   int
	pageIndex  int
	maxResults int
	params     []*Parameter
	readOnly   bool
}

// NewQuery 创建针对指定映射的查询。
func NewQuery(mapping *Mapping) *Query {
	return &Query{mapping: mapping}
}

// Mapping 返回查询所属的映射。
func (q *Query) Mapping() *Mapping { return q.mapping }

// Predicates 返回所有条件。
func (q *Query) Predicates() []*Predicate { return q.predicates }

// Orders 返回所有排序项。
func (q *Query) Orders() []*Order { return q.orders }

// Parameters 返回所有显式添加的参数。
func (q *Query) Parameters() []*Parameter { return q.params }

// Add 添加一个条件，path 必须与已映射列的完整成员路径一致，connect 默认为 ConnectAnd。
func (q *Query) Add(path string, value any, op Comparison, connect ...Connect) error {
	var c Connect
	if len(connect) > 0 {
		c = connect[0]
	}
	p, err := q.predicate(path, value, op, c)
	if err != nil {
		return err
	}
	q.predicates = append(q.predicates, p)
	return nil
}

// predicate 按成员路径创建条件。
func (q *Query) predicate(path string, value any, op Comparison, connect Connect) (*Predicate, error) {
	c, err := q.mapping.Resolve(path)
	if err != nil {
		return nil, err
	}
	return &Predicate{Column: c, Type: c.Type, Value: value, Comparison: op, Connect: connect}, nil
}

// AddGroup 将 group 的条件作为一个括号分组添加，not 为 true 时对分组取反。
// group 必须使用相同的映射创建，其参数一并合入当前查询。
func (q *Query) AddGroup(group *Query, not bool, connect ...Connect) error {
	if group == nil || group.mapping != q.mapping {
		return &InvalidQueryError{Reason: "group must be built on the same mapping"}
	}
	p := &Predicate{Group: append([]*Predicate{}, group.predicates...), Not: not}
	if len(connect) > 0 {
		p.Connect = connect[0]
	}
	q.predicates = append(q.predicates, p)
	q.params = append(q.params, group.params...)
	return nil
}

// AddEquals 添加一个相等条件。
func (q *Query) AddEquals(path string, value any, connect ...Connect) error {
	return q.Add(path, value, OpEquals, connect...)
}

// AddRaw 添加一个原始 SQL 条件，该条件不参与参数推断。
func (q *Query) AddRaw(sql string, connect ...Connect) *Query {
	p := &Predicate{Raw: sql}
	if len(connect) > 0 {
		p.Connect = connect[0]
	}
	q.predicates = append(q.predicates, p)
	return q
}

// AddOrder 添加排序项，多次调用按调用顺序追加。
func (q *Query) AddOrder(path string, direction Direction) error {
	c, err := q.mapping.Resolve(path)
	if err != nil {
		return err
	}
	q.orders = append(q.orders, &Order{Column: c, Direction: direction})
	return nil
}

// SetPaging 设置分页，pageIndex 从 0 开始，同时请求总行数。
func (q *Query) SetPaging(rowCount int, pageIndex int) *Query {
	q.paging = true
	q.rowCount = rowCount
	q.pageIndex = max(pageIndex, 0)
	return q
}

// Paging 返回分页设置。
func (q *Query) Paging() (enabled bool, rowCount int, pageIndex int) {
	return q.paging, q.rowCount, q.pageIndex
}

// SetMaxResults 限制返回的最大行数，不产生分页语义。
func (q *Query) SetMaxResults(n int) *Query {
	q.maxResults = n
	return q
}

// SetSql 设置原始 SQL，将覆盖生成的 SELECT 语句。
func (q *Query) SetSql(sql string) *Query {
	q.sql = sql
	return q
}

// Sql 返回原始 SQL。
func (q *Query) Sql() string { return q.sql }

// SetReadOnly 将查询路由至只读数据源。
func (q *Query) SetReadOnly() *Query {
	q.readOnly = true
	return q
}

// ReadOnly 返回查询是否路由至只读数据源。
func (q *Query) ReadOnly() bool { return q.readOnly }

// AddParameter 添加命名参数，未指定类型时按值的运行时类型推断。
// 若需按声明类型推断，请使用 Param。
func (q *Query) AddParameter(name string, value any, t ...DbType) *Query {
	p := &Parameter{Name: trimParamName(name), Value: value}
	if len(t) > 0 {
		p.Type = t[0]
	} else {
		p.Type = InferDbType(reflect.TypeOf(value))
	}
	q.params = append(q.params, p)
	return q
}

// AddTableParameter 添加结构化参数（表值参数或数组参数），typeName 为数据库中的用户定义类型名称。
func (q *Query) AddTableParameter(name string, value any, typeName string) *Query {
	q.params = append(q.params, &Parameter{Name: trimParamName(name), Value: value, Type: DbStructured, TypeName: typeName})
	return q
}

// Param 添加命名参数，类型由调用处声明的类型 V 推断（而非运行时的值）。
func Param[V any](q *Query, name string, value V) *Query {
	q.params = append(q.params, &Parameter{Name: trimParamName(name), Value: value, Type: InferDbType(reflect.TypeFor[V]())})
	return q
}

func trimParamName(name string) string {
	if XString.StartsWith(name, "@") {
		return name[1:]
	}
	return name
}
