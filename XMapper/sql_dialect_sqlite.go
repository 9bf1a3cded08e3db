// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XMapper

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/mattn/go-sqlite3"
)

// sqliteMaxParams 是单条语句的最大占位符数量（SQLITE_MAX_VARIABLE_NUMBER）。
const sqliteMaxParams = 32766

type sqliteDialect struct {
	limitDialect
}

// NewSQLiteDialect 创建 SQLite 方言。
func NewSQLiteDialect() Dialect { return &sqliteDialect{} }

func (d *sqliteDialect) Name() string { return "sqlite3" }

func (d *sqliteDialect) Bind(query string, params []*Parameter) (string, []any, error) {
	return bindNamed(query, params, func(_ int, p *Parameter) (string, any, error) {
		if p.Type == DbStructured || p.TypeName != "" {
			return "", nil, &InvalidQueryError{Reason: "structured parameter " + p.Name + " is not supported by sqlite3"}
		}
		return "?", bindValue(p), nil
	})
}

func (d *sqliteDialect) InsertOutput(stmt *Statement, identity *Column) {
	returningOutput(stmt, identity)
}

// Upsert 使用 ON CONFLICT DO UPDATE，执行前通过探测语句判断主键是否已存在。
func (d *sqliteDialect) Upsert(stmt *Statement, keys []*Column, keyRefs []string, assigns []*Column, identity *Column) {
	stmt.Conflict = " ON CONFLICT(" + columnNames(keys) + ") DO UPDATE SET " + conflictAssigns(keys, assigns, "excluded")
	if identity == nil {
		stmt.Output = ""
		stmt.OutputMode = OutputNone
		return
	}
	stmt.Output = " RETURNING " + identity.Name
	stmt.OutputMode = OutputProbe
	conds := make([]string, len(keys))
	for i, k := range keys {
		conds[i] = k.Name + " = " + keyRefs[i]
	}
	stmt.Probe = "SELECT COUNT(*) FROM " + stmt.From + " WHERE " + strings.Join(conds, " AND ")
}

func (d *sqliteDialect) MultipleResultSets() bool { return false }

func (d *sqliteDialect) Truncate(table string) string { return "DELETE FROM " + table }

func (d *sqliteDialect) TranslateError(err error, query string, params string) error {
	var serr sqlite3.Error
	if errors.As(err, &serr) && serr.Code == sqlite3.ErrConstraint {
		base := ConstraintViolationError{Constraint: sqliteConstraintName(serr.Error()), SQL: query, Params: params, Err: err}
		switch serr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return &UniqueConstraintViolationError{ConstraintViolationError: base}
		}
		return &base
	}
	return &StatementError{SQL: query, Params: params, Err: err}
}

// sqliteConstraintName 从形如 "UNIQUE constraint failed: T.Name" 的消息中提取约束的列。
func sqliteConstraintName(message string) string {
	if i := strings.Index(message, "failed: "); i >= 0 {
		return message[i+len("failed: "):]
	}
	return ""
}

func (d *sqliteDialect) BulkInsert(ctx context.Context, tx *sql.Tx, schema *BulkSchema, rows [][]any) (int64, error) {
	return bulkInsertRows(ctx, tx, schema, rows, sqliteMaxParams)
}
