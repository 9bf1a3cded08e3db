// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XMapper

import (
	"fmt"
	"reflect"
	"strings"
)

// compileWhere 将条件编译为 WHERE 子句（不含 WHERE 前缀），参数名为 C{i} 及 C{i}_{j}，
// i 为条件按深度优先顺序的序号。
//
// 连接符描述当前条件与后一个条件的关系：两个条件之间的连接文本取前一个条件的连接符；
// 当条件的连接符为 ConnectOr 且当前不在分组内时，在该条件前开启括号；
// 分组内连接符为 ConnectAnd 的条件输出后关闭括号；扫描结束时若分组仍未关闭，则在末尾关闭。
// ConnectOrUngrouped 的连接文本与 ConnectOr 相同，但不会开启分组。
func compileWhere(stmt *Statement, predicates []*Predicate) error {
	index := 0
	where, _, err := compileGroup(stmt, predicates, &index)
	if err != nil {
		return err
	}
	stmt.Where = where
	return nil
}

// compileGroup 按连接符编译同一层级的条件，wrapped 表示结果是否整体位于一个括号分组内。
func compileGroup(stmt *Statement, predicates []*Predicate, index *int) (where string, wrapped bool, err error) {
	if len(predicates) == 0 {
		return "", false, nil
	}

	var sb strings.Builder
	open := false
	groups, openAt, closeAt := 0, -1, -1
	for i, p := range predicates {
		if i > 0 {
			if predicates[i-1].Connect == ConnectAnd {
				sb.WriteString(" AND ")
			} else {
				sb.WriteString(" OR ")
			}
		}
		if !open && p.Connect == ConnectOr {
			sb.WriteString("(")
			open = true
			groups++
			openAt = i
		}
		fragment, err := compilePredicate(stmt, index, p)
		if err != nil {
			return "", false, err
		}
		sb.WriteString(fragment)
		if open && p.Connect == ConnectAnd {
			sb.WriteString(")")
			open = false
			closeAt = i
		}
	}
	if open {
		sb.WriteString(")")
		closeAt = len(predicates) - 1
	}
	wrapped = groups == 1 && openAt == 0 && closeAt == len(predicates)-1
	return sb.String(), wrapped, nil
}

// compilePredicate 编译单个条件或嵌套的条件分组，Not 为 true 时对结果取反。
func compilePredicate(stmt *Statement, index *int, p *Predicate) (string, error) {
	if p.Group != nil {
		inner, wrapped, err := compileGroup(stmt, p.Group, index)
		if err != nil {
			return "", err
		}
		if inner == "" {
			inner = "1 = 1"
		}
		fragment := inner
		if !wrapped {
			fragment = "(" + inner + ")"
		}
		if p.Not {
			fragment = "NOT " + fragment
		}
		return fragment, nil
	}

	fragment, err := compileCondition(stmt, *index, p)
	*index++
	if err != nil {
		return "", err
	}
	if p.Not {
		fragment = "NOT (" + fragment + ")"
	}
	return fragment, nil
}

// compileCondition 编译单个条件。
func compileCondition(stmt *Statement, index int, p *Predicate) (string, error) {
	if p.Raw != "" {
		return p.Raw, nil
	}
	if p.Column == nil {
		return "", &InvalidQueryError{Reason: fmt.Sprintf("predicate %v has neither column nor raw sql", index)}
	}

	column := p.Column.Name
	name := fmt.Sprintf("C%d", index)
	value := p.Value
	if p.Column.Converter != nil && p.Comparison != OpIn && p.Comparison != OpNotIn && !isAbsent(value) {
		cv, err := p.Column.Converter.ToDb(value)
		if err != nil {
			return "", &InvalidQueryError{Column: column, Reason: err.Error()}
		}
		value = cv
	}

	switch p.Comparison {
	case OpEquals:
		if isAbsent(value) {
			return column + " IS NULL", nil
		}
	case OpNotEquals:
		if isAbsent(value) {
			return column + " IS NOT NULL", nil
		}
	case OpIn, OpNotIn:
		return compileIn(stmt, name, p)
	case OpContains:
		value = "%" + fmt.Sprint(value) + "%"
	case OpStartsWith:
		value = fmt.Sprint(value) + "%"
	case OpEndsWith:
		value = "%" + fmt.Sprint(value)
	}
	return column + " " + p.Comparison.String() + " " + stmt.addParam(name, value, p.Type), nil
}

// compileIn 编译 IN/NOT IN 条件，空集合的 IN 编译为恒假条件 1 = 0，空集合的 NOT IN 编译为恒真条件 1 = 1。
func compileIn(stmt *Statement, name string, p *Predicate) (string, error) {
	column := p.Column.Name
	var items []any
	if !isAbsent(p.Value) {
		rv := reflect.ValueOf(p.Value)
		for rv.Kind() == reflect.Ptr {
			rv = rv.Elem()
		}
		if (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) || rv.Type().Elem().Kind() == reflect.Uint8 {
			return "", &InvalidQueryError{Column: column, Reason: fmt.Sprintf("operator %v expects an enumerable value but got %T", p.Comparison, p.Value)}
		}
		items = make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
	}

	if len(items) == 0 {
		if p.Comparison == OpNotIn {
			return "1 = 1", nil
		}
		return "1 = 0", nil
	}

	names := make([]string, len(items))
	for j, item := range items {
		if p.Column.Converter != nil {
			cv, err := p.Column.Converter.ToDb(item)
			if err != nil {
				return "", &InvalidQueryError{Column: column, Reason: err.Error()}
			}
			item = cv
		}
		names[j] = stmt.addParam(fmt.Sprintf("%v_%d", name, j), item, p.Type)
	}
	return column + " " + p.Comparison.String() + " (" + strings.Join(names, ",") + ")", nil
}
