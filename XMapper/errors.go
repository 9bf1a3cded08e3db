// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XMapper

import (
	"fmt"
)

// MappingError 表示映射元数据无效或不完整，如未声明数据表、成员路径无法解析、缺少主键等。
type MappingError struct {
	Type   string // 映射的目标类型
	Member string // 相关的成员路径，可能为空
	Reason string // 错误原因
}

func (e *MappingError) Error() string {
	if e.Member != "" {
		return fmt.Sprintf("XMapper: mapping of %v: member %v: %v", e.Type, e.Member, e.Reason)
	}
	return fmt.Sprintf("XMapper: mapping of %v: %v", e.Type, e.Reason)
}

// MemberAssignmentError 表示无法将数值写入已解析的成员路径。
type MemberAssignmentError struct {
	Member    string // 成员路径
	ValueType string // 尝试写入的数值的运行时类型
	Err       error  // 底层的转换或赋值错误
}

func (e *MemberAssignmentError) Error() string {
	return fmt.Sprintf("XMapper: assign value of %v to member %v failed: %v", e.ValueType, e.Member, e.Err)
}

func (e *MemberAssignmentError) Unwrap() error { return e.Err }

// InvalidQueryError 表示查询条件无法被编译，如 In 操作符的值不可枚举。
type InvalidQueryError struct {
	Column string
	Reason string
}

func (e *InvalidQueryError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("XMapper: invalid query on column %v: %v", e.Column, e.Reason)
	}
	return fmt.Sprintf("XMapper: invalid query: %v", e.Reason)
}

// StatementError 是无法被识别的驱动错误的通用包装，携带执行的语句及参数用于诊断。
type StatementError struct {
	SQL    string // 执行的语句
	Params string // 绑定的参数
	Err    error  // 驱动错误
}

func (e *StatementError) Error() string {
	return fmt.Sprintf("XMapper: execute statement failed: %v, sql: %v, params: %v", e.Err, e.SQL, e.Params)
}

func (e *StatementError) Unwrap() error { return e.Err }

// ConstraintViolationError 表示语句违反了数据库约束（外键、非空、检查等）。
type ConstraintViolationError struct {
	Constraint string // 约束名称，驱动未提供时为空
	SQL        string
	Params     string
	Err        error
}

func (e *ConstraintViolationError) Error() string {
	return fmt.Sprintf("XMapper: constraint %v violated: %v, sql: %v", e.Constraint, e.Err, e.SQL)
}

func (e *ConstraintViolationError) Unwrap() error { return e.Err }

// UniqueConstraintViolationError 表示违反了唯一约束（含主键）。
type UniqueConstraintViolationError struct {
	ConstraintViolationError
}

func (e *UniqueConstraintViolationError) Error() string {
	return fmt.Sprintf("XMapper: unique constraint %v violated: %v, sql: %v", e.Constraint, e.Err, e.SQL)
}

// Unwrap 返回内嵌的约束错误，使 errors.As 可以匹配 *ConstraintViolationError。
func (e *UniqueConstraintViolationError) Unwrap() error { return &e.ConstraintViolationError }

// UniqueIndexViolationError 表示违反了唯一索引。
type UniqueIndexViolationError struct {
	ConstraintViolationError
}

func (e *UniqueIndexViolationError) Error() string {
	return fmt.Sprintf("XMapper: unique index %v violated: %v, sql: %v", e.Constraint, e.Err, e.SQL)
}

func (e *UniqueIndexViolationError) Unwrap() error { return &e.ConstraintViolationError }

// newMappingError 创建映射错误。
func newMappingError(typeName, member, format string, args ...any) *MappingError {
	return &MappingError{Type: typeName, Member: member, Reason: fmt.Sprintf(format, args...)}
}
