// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XMapper

import (
	"context"
	"errors"
	"fmt"
	"reflect"
)

// Repository 是类型 T 的数据仓库，提供了常用的数据操作。
type Repository[T any] struct {
	executor *Executor
	mapping  *Mapping
}

// NewRepository 创建类型 T 的数据仓库，executor 为空时使用共享的执行器。
func NewRepository[T any](executor *Executor) (*Repository[T], error) {
	if executor == nil {
		executor = Shared()
	}
	if executor == nil {
		return nil, errors.New("XMapper: executor is nil, call Init first")
	}
	mapping, err := MappingOf[T]()
	if err != nil {
		return nil, err
	}
	return &Repository[T]{executor: executor, mapping: mapping}, nil
}

// Mapping 返回映射。
func (r *Repository[T]) Mapping() *Mapping { return r.mapping }

// Executor 返回执行器。
func (r *Repository[T]) Executor() *Executor { return r.executor }

// Query 创建针对该仓库映射的查询。
func (r *Repository[T]) Query() *Query { return NewQuery(r.mapping) }

// Get 按主键值读取数据，keys 的顺序与主键的声明顺序一致。
// 未找到时按执行器的策略返回 nil 或默认实例。
func (r *Repository[T]) Get(ctx context.Context, keys ...any) (*T, error) {
	if err := r.mapping.validateKeys(); err != nil {
		return nil, err
	}
	pks := r.mapping.PrimaryKeys()
	if len(keys) != len(pks) {
		return nil, &InvalidQueryError{Reason: fmt.Sprintf("expects %v key value(s) but got %v", len(pks), len(keys))}
	}
	query := r.Query()
	for i, pk := range pks {
		if err := query.AddEquals(pk.Path.String(), keys[i]); err != nil {
			return nil, err
		}
	}
	return r.GetBy(ctx, query)
}

// GetBy 按查询读取首行数据。
func (r *Repository[T]) GetBy(ctx context.Context, query *Query) (*T, error) {
	compiler, err := r.executor.Compiler(r.mapping)
	if err != nil {
		return nil, err
	}
	stmt, err := compiler.Select(r.mapping, query, SingleRow)
	if err != nil {
		return nil, err
	}
	result, err := r.executor.Execute(ctx, stmt)
	if err != nil {
		return nil, err
	}
	if result.Single == nil {
		return nil, nil
	}
	return result.Single.(*T), nil
}

// List 按查询读取数据列表，query 为空时读取所有数据。
func (r *Repository[T]) List(ctx context.Context, query *Query) ([]*T, error) {
	result, err := r.list(ctx, query)
	if err != nil {
		return nil, err
	}
	return toTyped[T](result.List), nil
}

// Page 按查询读取分页数据，pageIndex 从 0 开始。
func (r *Repository[T]) Page(ctx context.Context, query *Query, rowCount int, pageIndex int) (*Page[T], error) {
	if rowCount <= 0 {
		return nil, &InvalidQueryError{Reason: fmt.Sprintf("invalid row count %v", rowCount)}
	}
	if query == nil {
		query = r.Query()
	}
	query.SetPaging(rowCount, pageIndex)
	result, err := r.list(ctx, query)
	if err != nil {
		return nil, err
	}
	page := &Page[T]{Items: toTyped[T](result.List), RowCount: rowCount, PageIndex: max(pageIndex, 0)}
	if result.Total != nil {
		page.Total = *result.Total
		page.Pages = result.Pages(rowCount)
	}
	return page, nil
}

func (r *Repository[T]) list(ctx context.Context, query *Query) (*Result, error) {
	compiler, err := r.executor.Compiler(r.mapping)
	if err != nil {
		return nil, err
	}
	stmt, err := compiler.Select(r.mapping, query, MultipleRows)
	if err != nil {
		return nil, err
	}
	return r.executor.Execute(ctx, stmt)
}

// Count 按查询统计数据行数。
func (r *Repository[T]) Count(ctx context.Context, query *Query) (int64, error) {
	return r.aggregate(ctx, query, "COUNT(*)")
}

// Max 返回指定列的最大值，path 为成员路径。
func (r *Repository[T]) Max(ctx context.Context, path string, query *Query) (int64, error) {
	col, err := r.mapping.Resolve(path)
	if err != nil {
		return 0, err
	}
	return r.aggregate(ctx, query, "MAX("+col.Name+")")
}

// Min 返回指定列的最小值，path 为成员路径。
func (r *Repository[T]) Min(ctx context.Context, path string, query *Query) (int64, error) {
	col, err := r.mapping.Resolve(path)
	if err != nil {
		return 0, err
	}
	return r.aggregate(ctx, query, "MIN("+col.Name+")")
}

func (r *Repository[T]) aggregate(ctx context.Context, query *Query, expr string) (int64, error) {
	compiler, err := r.executor.Compiler(r.mapping)
	if err != nil {
		return 0, err
	}
	stmt, err := compiler.Scalar(r.mapping, query, expr, reflect.TypeFor[int64]())
	if err != nil {
		return 0, err
	}
	result, err := r.executor.Execute(ctx, stmt)
	if err != nil {
		return 0, err
	}
	return result.Single.(int64), nil
}

// Insert 插入数据，数据库生成的标识将写回实体。
func (r *Repository[T]) Insert(ctx context.Context, entity *T) (int64, error) {
	compiler, err := r.executor.Compiler(r.mapping)
	if err != nil {
		return 0, err
	}
	stmt, err := compiler.Insert(r.mapping, entity, false)
	if err != nil {
		return 0, err
	}
	return r.save(ctx, stmt, entity)
}

// InsertRange 批量插入数据，返回插入的行数，数据库生成的标识不会写回实体。
func (r *Repository[T]) InsertRange(ctx context.Context, entities []*T) (int64, error) {
	items := make([]any, len(entities))
	for i, entity := range entities {
		items[i] = entity
	}
	return r.executor.BulkInsert(ctx, r.mapping, items, false)
}

// Update 按主键更新数据，返回影响的行数。
func (r *Repository[T]) Update(ctx context.Context, entity *T) (int64, error) {
	compiler, err := r.executor.Compiler(r.mapping)
	if err != nil {
		return 0, err
	}
	stmt, err := compiler.Update(r.mapping, entity, nil)
	if err != nil {
		return 0, err
	}
	result, err := r.executor.Execute(ctx, stmt)
	if err != nil {
		return 0, err
	}
	return result.Affected, nil
}

// Upsert 按主键插入或更新数据，新插入时返回生成的标识并写回实体，更新时返回 -1。
func (r *Repository[T]) Upsert(ctx context.Context, entity *T) (int64, error) {
	compiler, err := r.executor.Compiler(r.mapping)
	if err != nil {
		return 0, err
	}
	stmt, err := compiler.Upsert(r.mapping, entity)
	if err != nil {
		return 0, err
	}
	return r.save(ctx, stmt, entity)
}

func (r *Repository[T]) save(ctx context.Context, stmt *Statement, entity *T) (int64, error) {
	result, err := r.executor.Execute(ctx, stmt)
	if err != nil {
		return 0, err
	}
	if identity := r.mapping.Identity(); identity != nil && result.Identity > 0 {
		if err := SetValue(identity.Path, result.Identity, entity, identity.Converter); err != nil {
			return 0, err
		}
	}
	return result.Identity, nil
}

// Delete 按主键删除数据，返回影响的行数。
func (r *Repository[T]) Delete(ctx context.Context, entity *T) (int64, error) {
	if entity == nil {
		return 0, newMappingError(r.mapping.Type().String(), "", "nil entity")
	}
	return r.delete(ctx, entity, nil)
}

// DeleteWhere 按查询删除数据，query 为空或没有条件时返回 *MappingError。
func (r *Repository[T]) DeleteWhere(ctx context.Context, query *Query) (int64, error) {
	return r.delete(ctx, nil, query)
}

// DeleteAll 删除所有数据，返回影响的行数。
func (r *Repository[T]) DeleteAll(ctx context.Context) (int64, error) {
	compiler, err := r.executor.Compiler(r.mapping)
	if err != nil {
		return 0, err
	}
	stmt, err := compiler.DeleteAll(r.mapping)
	if err != nil {
		return 0, err
	}
	result, err := r.executor.Execute(ctx, stmt)
	if err != nil {
		return 0, err
	}
	return result.Affected, nil
}

func (r *Repository[T]) delete(ctx context.Context, entity *T, query *Query) (int64, error) {
	compiler, err := r.executor.Compiler(r.mapping)
	if err != nil {
		return 0, err
	}
	var target any
	if entity != nil {
		target = entity
	}
	stmt, err := compiler.Delete(r.mapping, target, query)
	if err != nil {
		return 0, err
	}
	result, err := r.executor.Execute(ctx, stmt)
	if err != nil {
		return 0, err
	}
	return result.Affected, nil
}

// Truncate 清空数据表。
func (r *Repository[T]) Truncate(ctx context.Context) error {
	if err := r.mapping.Validate(); err != nil {
		return err
	}
	source, err := r.executor.Source(r.mapping)
	if err != nil {
		return err
	}
	stmt := NewCompiler(source.Dialect).Custom(r.mapping, source.Dialect.Truncate(r.mapping.Table()), NoRows, TargetNone)
	_, err = r.executor.Execute(ctx, stmt)
	return err
}

// Exec 在仓库的数据源上执行自定义语句，返回影响的行数。
func (r *Repository[T]) Exec(ctx context.Context, sql string, params ...*Parameter) (int64, error) {
	compiler, err := r.executor.Compiler(r.mapping)
	if err != nil {
		return 0, err
	}
	result, err := r.executor.Execute(ctx, compiler.Custom(r.mapping, sql, NoRows, TargetNone, params...))
	if err != nil {
		return 0, err
	}
	return result.Affected, nil
}

// WriteAsync 将插入或更新语句提交至当前 goroutine 对应的延迟提交队列。
func (r *Repository[T]) WriteAsync(entities ...*T) error {
	compiler, err := r.executor.Compiler(r.mapping)
	if err != nil {
		return err
	}
	statements := make([]*Statement, 0, len(entities))
	for _, entity := range entities {
		stmt, err := compiler.Upsert(r.mapping, entity)
		if err != nil {
			return err
		}
		statements = append(statements, stmt)
	}
	return r.executor.Submit(statements...)
}

func toTyped[T any](list []any) []*T {
	items := make([]*T, len(list))
	for i, item := range list {
		items[i] = item.(*T)
	}
	return items
}
