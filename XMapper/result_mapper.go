// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XMapper

import (
	"database/sql"
	"reflect"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// rowCursor 是结果集游标的最小接口，*sql.Rows 实现了该接口。
type rowCursor interface {
	Columns() ([]string, error)
	Next() bool
	Scan(dest ...any) error
	Err() error
	NextResultSet() bool
}

// rowPlan 记录了映射的每一列在结果集中的索引，-1 表示结果集中没有匹配的列。
type rowPlan struct {
	mapping *Mapping
	width   int
	index   []int
}

// newRowPlan 按列名（大小写不敏感）匹配映射的列，首个匹配的结果列生效。
func newRowPlan(mapping *Mapping, columns []string) *rowPlan {
	plan := &rowPlan{mapping: mapping, width: len(columns), index: make([]int, len(mapping.Columns()))}
	for i, col := range mapping.Columns() {
		plan.index[i] = -1
		name := col.ResultName()
		for j, rc := range columns {
			if strings.EqualFold(rc, name) {
				plan.index[i] = j
				break
			}
		}
	}
	return plan
}

// scan 读取当前行并赋值至新的实例，返回目标类型的指针。
func (p *rowPlan) scan(cursor rowCursor) (any, error) {
	raw := make([]any, p.width)
	dest := make([]any, p.width)
	for i := range raw {
		dest[i] = &raw[i]
	}
	if err := cursor.Scan(dest...); err != nil {
		return nil, err
	}

	inst := p.mapping.newInstance()
	root := inst.Interface()
	for i, col := range p.mapping.Columns() {
		idx := p.index[i]
		if idx < 0 {
			continue
		}
		if err := SetValue(col.Path, raw[idx], root, col.Converter); err != nil {
			return nil, err
		}
	}
	return root, nil
}

// mapSingle 读取首行并映射为实例；没有数据行时按策略返回 nil 或默认实例。
func mapSingle(mapping *Mapping, cursor rowCursor, policy NotFoundPolicy) (any, error) {
	columns, err := cursor.Columns()
	if err != nil {
		return nil, err
	}
	if !cursor.Next() {
		if err := cursor.Err(); err != nil {
			return nil, err
		}
		if policy == NotFoundDefault {
			return mapping.newInstance().Interface(), nil
		}
		return nil, nil
	}
	return newRowPlan(mapping, columns).scan(cursor)
}

// mapList 读取当前结果集的所有行并映射为实例列表，空列表是合法的结果。
func mapList(mapping *Mapping, cursor rowCursor) ([]any, error) {
	columns, err := cursor.Columns()
	if err != nil {
		return nil, err
	}
	plan := newRowPlan(mapping, columns)
	list := make([]any, 0)
	for cursor.Next() {
		item, err := plan.scan(cursor)
		if err != nil {
			return nil, err
		}
		list = append(list, item)
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

// mapScalar 读取首行的首列，没有数据行时返回零值。
func mapScalar(cursor rowCursor, t reflect.Type) (any, error) {
	if !cursor.Next() {
		if err := cursor.Err(); err != nil {
			return nil, err
		}
		return zeroOf(t), nil
	}
	value, err := scanFirst(cursor)
	if err != nil {
		return nil, err
	}
	return coerceScalar(value, t), nil
}

// mapScalarList 读取每一行的首列。
func mapScalarList(cursor rowCursor, t reflect.Type) ([]any, error) {
	list := make([]any, 0)
	for cursor.Next() {
		value, err := scanFirst(cursor)
		if err != nil {
			return nil, err
		}
		list = append(list, coerceScalar(value, t))
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

// readTotal 从下一个结果集中读取整数类型的总行数，不存在时返回 nil。
func readTotal(cursor rowCursor) (*int64, error) {
	if !cursor.NextResultSet() {
		return nil, cursor.Err()
	}
	if !cursor.Next() {
		return nil, cursor.Err()
	}
	value, err := scanFirst(cursor)
	if err != nil {
		return nil, err
	}
	total, err := asInt64(value)
	if err != nil {
		return nil, err
	}
	return &total, nil
}

func scanFirst(cursor rowCursor) (any, error) {
	columns, err := cursor.Columns()
	if err != nil {
		return nil, err
	}
	raw := make([]any, max(len(columns), 1))
	dest := make([]any, len(raw))
	for i := range raw {
		dest[i] = &raw[i]
	}
	if err := cursor.Scan(dest...); err != nil {
		return nil, err
	}
	return raw[0], nil
}

func zeroOf(t reflect.Type) any {
	if t == nil {
		return nil
	}
	return reflect.Zero(t).Interface()
}

// coerceScalar 将首列的值转换为请求的类型。
// 运行时类型一致、数值可无损放宽或文本可解析为目标类型时视为匹配，否则返回目标类型的零值。
func coerceScalar(value any, t reflect.Type) any {
	if t == nil {
		return value
	}
	if value == nil {
		return zeroOf(t)
	}
	if t.Kind() == reflect.Ptr {
		inner := coerceScalar(value, t.Elem())
		ptr := reflect.New(t.Elem())
		ptr.Elem().Set(reflect.ValueOf(inner))
		return ptr.Interface()
	}

	src := reflect.ValueOf(value)
	if src.Type() == t {
		return value
	}
	if t == typeDecimal {
		switch v := value.(type) {
		case []byte:
			if d, err := decimal.NewFromString(string(v)); err == nil {
				return d
			}
		case string:
			if d, err := decimal.NewFromString(v); err == nil {
				return d
			}
		case int64:
			return decimal.NewFromInt(v)
		case float64:
			return decimal.NewFromFloat(v)
		}
		return zeroOf(t)
	}

	text, isText := "", false
	switch v := value.(type) {
	case []byte:
		text, isText = string(v), true
	case string:
		text, isText = v, true
	}

	dst := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.String:
		if isText {
			dst.SetString(text)
			return dst.Interface()
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if isText {
			if n, err := strconv.ParseInt(text, 10, 64); err == nil && !dst.OverflowInt(n) {
				dst.SetInt(n)
				return dst.Interface()
			}
			break
		}
		switch src.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if !dst.OverflowInt(src.Int()) {
				dst.SetInt(src.Int())
				return dst.Interface()
			}
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if isText {
			if n, err := strconv.ParseUint(text, 10, 64); err == nil && !dst.OverflowUint(n) {
				dst.SetUint(n)
				return dst.Interface()
			}
			break
		}
		switch src.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if src.Int() >= 0 && !dst.OverflowUint(uint64(src.Int())) {
				dst.SetUint(uint64(src.Int()))
				return dst.Interface()
			}
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			if !dst.OverflowUint(src.Uint()) {
				dst.SetUint(src.Uint())
				return dst.Interface()
			}
		}
	case reflect.Float32, reflect.Float64:
		if isText {
			if f, err := strconv.ParseFloat(text, 64); err == nil {
				dst.SetFloat(f)
				return dst.Interface()
			}
			break
		}
		switch src.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			dst.SetFloat(float64(src.Int()))
			return dst.Interface()
		case reflect.Float32, reflect.Float64:
			dst.SetFloat(src.Float())
			return dst.Interface()
		}
	case reflect.Bool:
		if src.Kind() == reflect.Int64 {
			dst.SetBool(src.Int() != 0)
			return dst.Interface()
		}
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 && isText {
			dst.SetBytes([]byte(text))
			return dst.Interface()
		}
	}
	if t == typeTime && isText {
		if tm, err := parseTime(text); err == nil {
			return tm
		}
	}
	return zeroOf(t)
}

var _ rowCursor = (*sql.Rows)(nil)
