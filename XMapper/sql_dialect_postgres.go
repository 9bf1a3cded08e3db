// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XMapper

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const (
	pgUniqueViolation     = "23505"
	pgNotNullViolation    = "23502"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
	pgExclusionViolation  = "23P01"
)

type postgresDialect struct {
	limitDialect
}

// NewPostgresDialect 创建 PostgreSQL 方言。
// 结构化参数以数组形式绑定（pq.Array），并按用户定义类型名称进行类型转换。
func NewPostgresDialect() Dialect { return &postgresDialect{} }

func (d *postgresDialect) Name() string { return "postgres" }

func (d *postgresDialect) Bind(query string, params []*Parameter) (string, []any, error) {
	bound, args, err := bindNamed(query, params, func(_ int, p *Parameter) (string, any, error) {
		if p.Type == DbStructured || p.TypeName != "" {
			if p.TypeName != "" {
				return "?::" + p.TypeName, pq.Array(p.Value), nil
			}
			return "?", pq.Array(p.Value), nil
		}
		return "?", bindValue(p), nil
	})
	if err != nil {
		return "", nil, err
	}
	if len(args) == 0 {
		return bound, args, nil
	}
	return sqlx.Rebind(sqlx.DOLLAR, bound), args, nil
}

func (d *postgresDialect) InsertOutput(stmt *Statement, identity *Column) {
	returningOutput(stmt, identity)
}

// Upsert 使用 ON CONFLICT DO UPDATE，并通过系统列 xmax 区分插入（xmax = 0）与更新。
func (d *postgresDialect) Upsert(stmt *Statement, keys []*Column, _ []string, assigns []*Column, identity *Column) {
	stmt.Conflict = " ON CONFLICT (" + columnNames(keys) + ") DO UPDATE SET " + conflictAssigns(keys, assigns, "EXCLUDED")
	if identity == nil {
		stmt.Output = ""
		stmt.OutputMode = OutputNone
		return
	}
	stmt.Output = " RETURNING CASE WHEN xmax = 0 THEN " + identity.Name + " ELSE -1 END"
	stmt.OutputMode = OutputScalar
}

func (d *postgresDialect) MultipleResultSets() bool { return false }

func (d *postgresDialect) Truncate(table string) string { return "TRUNCATE TABLE " + table }

func (d *postgresDialect) TranslateError(err error, query string, params string) error {
	var perr *pq.Error
	if errors.As(err, &perr) {
		base := ConstraintViolationError{Constraint: perr.Constraint, SQL: query, Params: params, Err: err}
		switch string(perr.Code) {
		case pgUniqueViolation:
			if strings.HasSuffix(perr.Constraint, "_key") || strings.HasSuffix(perr.Constraint, "_pkey") {
				return &UniqueConstraintViolationError{ConstraintViolationError: base}
			}
			return &UniqueIndexViolationError{ConstraintViolationError: base}
		case pgNotNullViolation, pgForeignKeyViolation, pgCheckViolation, pgExclusionViolation:
			return &base
		}
	}
	return &StatementError{SQL: query, Params: params, Err: err}
}

// BulkInsert 使用 COPY FROM STDIN 批量传输数据行。
func (d *postgresDialect) BulkInsert(ctx context.Context, tx *sql.Tx, schema *BulkSchema, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	names := make([]string, len(schema.Columns))
	for i, c := range schema.Columns {
		names[i] = c.Name
	}
	var copyIn string
	if i := strings.Index(schema.Table, "."); i > 0 {
		copyIn = pq.CopyInSchema(schema.Table[:i], schema.Table[i+1:], names...)
	} else {
		copyIn = pq.CopyIn(schema.Table, names...)
	}

	stmt, err := tx.PrepareContext(ctx, copyIn)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, row := range rows {
		args := make([]any, len(row))
		for j, value := range row {
			args[j] = bindValue(&Parameter{Value: value, Type: schema.Columns[j].Type})
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, err
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}
