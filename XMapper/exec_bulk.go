// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XMapper

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/eframework-org/GO.UTIL/XLog"
	"github.com/eframework-org/GO.UTIL/XTime"
)

// BulkSchema 是批量插入的数据表结构，由映射推导。
type BulkSchema struct {
	Table   string    // 数据表
	Columns []*Column // 列，按映射的声明顺序排列
}

// DeriveBulkSchema 由映射推导批量插入的数据表结构。
// 只读列被排除，数据库生成的列仅在 keepIdentity 时保留。
func DeriveBulkSchema(mapping *Mapping, keepIdentity bool) (*BulkSchema, error) {
	if err := mapping.Validate(); err != nil {
		return nil, err
	}
	schema := &BulkSchema{Table: mapping.Table()}
	for _, col := range mapping.Columns() {
		if col.ReadOnly || (col.Identity && !keepIdentity) {
			continue
		}
		schema.Columns = append(schema.Columns, col)
	}
	if len(schema.Columns) == 0 {
		return nil, newMappingError(mapping.Type().String(), "", "no insertable column")
	}
	return schema, nil
}

// Row 读取实体在结构中各列的值。
func (s *BulkSchema) Row(entity any) ([]any, error) {
	row := make([]any, len(s.Columns))
	for i, col := range s.Columns {
		value, err := entityValue(col, entity)
		if err != nil {
			return nil, err
		}
		row[i] = value
	}
	return row, nil
}

// BulkInsert 批量插入实体，返回插入的行数。
// 数据表结构在每次调用时推导一次；若上下文携带事务（WithTx），则在该事务中执行，
// 否则在新的连接上开启事务执行，失败时回滚。
func (e *Executor) BulkInsert(ctx context.Context, mapping *Mapping, entities []any, keepIdentity bool) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	schema, err := DeriveBulkSchema(mapping, keepIdentity)
	if err != nil {
		return 0, err
	}
	rows := make([][]any, len(entities))
	for i, entity := range entities {
		if err := checkEntity(mapping, entity); err != nil {
			return 0, err
		}
		if rows[i], err = schema.Row(entity); err != nil {
			return 0, err
		}
	}
	if len(rows) == 0 {
		return 0, nil
	}

	source, err := e.Source(mapping)
	if err != nil {
		return 0, err
	}
	if e.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
	}

	startTime := XTime.GetMicrosecond()
	count, err := e.bulk(ctx, source, schema, rows)
	cost := float64(XTime.GetMicrosecond()-startTime) / 1e3
	statementCounter.WithLabelValues("Bulk").Inc()
	if err != nil {
		statementErrors.WithLabelValues("Bulk").Inc()
		err = e.translate(ctx, source, err, "BULK INSERT "+schema.Table, fmt.Sprintf("%v row(s)", len(rows)))
		XLog.Error("XMapper.BulkInsert(%v): [Cost:%.2fms] insert %v row(s) failed: %v", schema.Table, cost, len(rows), err)
		return 0, err
	}
	bulkCounter.Add(float64(count))
	XLog.Notice("XMapper.BulkInsert(%v): [Cost:%.2fms] inserted %v row(s).", schema.Table, cost, count)

	for _, hook := range mapping.postSave {
		hook(mapping)
	}
	return count, nil
}

func (e *Executor) bulk(ctx context.Context, source *Source, schema *BulkSchema, rows [][]any) (int64, error) {
	if tx := txFrom(ctx); tx != nil {
		return source.Dialect.BulkInsert(ctx, tx, schema, rows)
	}

	conn, err := source.DB.Conn(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	count, err := source.Dialect.BulkInsert(ctx, tx, schema, rows)
	if err != nil {
		if rerr := tx.Rollback(); rerr != nil && rerr != sql.ErrTxDone {
			XLog.Error("XMapper.BulkInsert(%v): rollback failed: %v", schema.Table, rerr)
		}
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return count, nil
}
