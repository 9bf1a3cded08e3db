// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XMapper

import (
	"reflect"
	"strings"
)

// DmlKind 定义了语句的操作类型。
type DmlKind int

const (
	DmlSelect DmlKind = iota
	DmlInsert
	DmlUpdate
	DmlDelete
	DmlUpsert
	DmlCustom
)

var dmlKindNames = [...]string{
	DmlSelect: "Select",
	DmlInsert: "Insert",
	DmlUpdate: "Update",
	DmlDelete: "Delete",
	DmlUpsert: "Upsert",
	DmlCustom: "Custom",
}

func (k DmlKind) String() string {
	if k >= 0 && int(k) < len(dmlKindNames) {
		return dmlKindNames[k]
	}
	return "Unknown"
}

// Cardinality 定义了语句结果的行数。
type Cardinality int

const (
	SingleRow    Cardinality = iota // 单行
	MultipleRows                    // 多行
	NoRows                          // 无结果行
)

// Target 定义了结果的目标类型，在构建查询时由调用方决定。
type Target int

const (
	TargetEntity Target = iota // 映射的实体
	TargetScalar               // 首列标量
	TargetNone                 // 无结果
)

// OutputMode 定义了插入语句返回生成标识的方式。
type OutputMode int

const (
	OutputNone         OutputMode = iota // 不返回标识
	OutputScalar                         // 语句以结果集返回标识（RETURNING）
	OutputLastInsertID                   // 执行后读取驱动的 LastInsertId
	OutputInsertedID                     // 仅在影响行数为 1（新插入）时读取 LastInsertId，否则返回 -1
	OutputProbe                          // 执行前探测主键是否存在，存在时返回 -1，否则读取 RETURNING 的标识
)

// Statement 是编译后的语句，包含各子句及参数列表。
// 子句中的参数以 @名称 表示，执行时由方言绑定为驱动的占位符。
type Statement struct {
	Kind        DmlKind      // 操作类型
	Cardinality Cardinality  // 结果行数
	Target      Target       // 结果目标
	ScalarType  reflect.Type // 标量结果的类型
	Mapping     *Mapping     // 所属映射
	ReadOnly    bool         // 是否路由至只读数据源

	Select     string // SELECT 列表
	From       string // FROM 子句
	Where      string // WHERE 子句（不含 WHERE 前缀）
	OrderBy    string // ORDER BY 子句（不含 ORDER BY 前缀）
	Limit      string // 行数限制（单行、分页或最大行数）
	InsertInto string // INSERT INTO 的表及列清单
	Values     string // VALUES 列表
	Set        string // UPDATE 的 SET 列表
	Conflict   string // 冲突处理子句
	Output     string // 输出子句
	Custom     string // 自定义语句

	Count      bool       // 是否需要附加计数语句
	OutputMode OutputMode // 标识的返回方式
	Probe      string     // 执行前的探测语句

	Params []*Parameter // 参数列表
}

// SQL 按当前的子句渲染语句文本。
// 查询前回调可以修改 Select、From 等子句，渲染发生在回调之后。
func (s *Statement) SQL() string {
	var sb strings.Builder
	switch s.Kind {
	case DmlCustom:
		return s.Custom
	case DmlSelect:
		sb.WriteString("SELECT ")
		sb.WriteString(s.Select)
		sb.WriteString(" FROM ")
		sb.WriteString(s.From)
		s.writeWhere(&sb)
		if s.OrderBy != "" {
			sb.WriteString(" ORDER BY ")
			sb.WriteString(s.OrderBy)
		}
		sb.WriteString(s.Limit)
	case DmlInsert, DmlUpsert:
		sb.WriteString("INSERT INTO ")
		sb.WriteString(s.InsertInto)
		sb.WriteString(" VALUES (")
		sb.WriteString(s.Values)
		sb.WriteString(")")
		sb.WriteString(s.Conflict)
		sb.WriteString(s.Output)
	case DmlUpdate:
		sb.WriteString("UPDATE ")
		sb.WriteString(s.From)
		sb.WriteString(" SET ")
		sb.WriteString(s.Set)
		s.writeWhere(&sb)
	case DmlDelete:
		sb.WriteString("DELETE FROM ")
		sb.WriteString(s.From)
		s.writeWhere(&sb)
	}
	return sb.String()
}

// CountSQL 返回统计相同 FROM/WHERE 条件下总行数的语句，忽略排序及分页。
func (s *Statement) CountSQL() string {
	var sb strings.Builder
	sb.WriteString("SELECT COUNT(*) FROM ")
	sb.WriteString(s.From)
	s.writeWhere(&sb)
	return sb.String()
}

func (s *Statement) writeWhere(sb *strings.Builder) {
	if s.Where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(s.Where)
	}
}

// Param 根据名称查找参数。
func (s *Statement) Param(name string) (*Parameter, bool) {
	name = trimParamName(name)
	for _, p := range s.Params {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}

func (s *Statement) addParam(name string, value any, t DbType) string {
	s.Params = append(s.Params, &Parameter{Name: name, Value: value, Type: t})
	return "@" + name
}
