// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XMapper

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

const (
	mysqlDupEntry                = 1062
	mysqlBadNull                 = 1048
	mysqlNoReferencedRow         = 1216
	mysqlRowIsReferenced         = 1217
	mysqlRowIsReferenced2        = 1451
	mysqlNoReferencedRow2        = 1452
	mysqlCheckConstraintViolated = 3819

	// mysqlMaxParams 是单条语句的最大占位符数量。
	mysqlMaxParams = 65535
)

type mysqlDialect struct {
	limitDialect
	multiStatements bool
}

// NewMySQLDialect 创建 MySQL 方言，multiStatements 对应连接参数 multiStatements=true，
// 开启时分页的计数语句将与查询语句在一次执行中返回。
func NewMySQLDialect(multiStatements bool) Dialect {
	return &mysqlDialect{multiStatements: multiStatements}
}

func (d *mysqlDialect) Name() string { return "mysql" }

func (d *mysqlDialect) Bind(query string, params []*Parameter) (string, []any, error) {
	return bindNamed(query, params, func(_ int, p *Parameter) (string, any, error) {
		if p.Type == DbStructured || p.TypeName != "" {
			return "", nil, &InvalidQueryError{Reason: "structured parameter " + p.Name + " is not supported by mysql"}
		}
		return "?", bindValue(p), nil
	})
}

func (d *mysqlDialect) InsertOutput(stmt *Statement, identity *Column) {
	stmt.Output = ""
	if identity == nil {
		stmt.OutputMode = OutputNone
		return
	}
	stmt.OutputMode = OutputLastInsertID
}

func (d *mysqlDialect) Upsert(stmt *Statement, keys []*Column, _ []string, assigns []*Column, identity *Column) {
	targets := assigns
	if len(targets) == 0 {
		targets = keys[:1]
	}
	parts := make([]string, len(targets))
	for i, c := range targets {
		parts[i] = c.Name + " = VALUES(" + c.Name + ")"
	}
	stmt.Conflict = " ON DUPLICATE KEY UPDATE " + strings.Join(parts, ", ")
	stmt.Output = ""
	if identity == nil {
		stmt.OutputMode = OutputNone
		return
	}
	stmt.OutputMode = OutputInsertedID
}

func (d *mysqlDialect) MultipleResultSets() bool { return d.multiStatements }

func (d *mysqlDialect) Truncate(table string) string { return "TRUNCATE TABLE " + table }

func (d *mysqlDialect) TranslateError(err error, query string, params string) error {
	var merr *mysql.MySQLError
	if errors.As(err, &merr) {
		base := ConstraintViolationError{SQL: query, Params: params, Err: err}
		switch merr.Number {
		case mysqlDupEntry:
			base.Constraint = mysqlDuplicateKey(merr.Message)
			return &UniqueIndexViolationError{ConstraintViolationError: base}
		case mysqlBadNull, mysqlNoReferencedRow, mysqlRowIsReferenced,
			mysqlRowIsReferenced2, mysqlNoReferencedRow2, mysqlCheckConstraintViolated:
			return &base
		}
	}
	return &StatementError{SQL: query, Params: params, Err: err}
}

// mysqlDuplicateKey 从形如 "Duplicate entry 'x' for key 'name'" 的消息中提取索引名称。
func mysqlDuplicateKey(message string) string {
	const marker = "for key '"
	i := strings.LastIndex(message, marker)
	if i < 0 {
		return ""
	}
	rest := message[i+len(marker):]
	if j := strings.Index(rest, "'"); j >= 0 {
		return rest[:j]
	}
	return rest
}

func (d *mysqlDialect) BulkInsert(ctx context.Context, tx *sql.Tx, schema *BulkSchema, rows [][]any) (int64, error) {
	return bulkInsertRows(ctx, tx, schema, rows, mysqlMaxParams)
}
