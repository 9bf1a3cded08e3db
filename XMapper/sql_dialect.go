// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XMapper

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/go-sql-driver/mysql"
)

// Dialect 描述了不同数据库之间的语法及行为差异。
type Dialect interface {
	// Name 返回方言名称，与 database/sql 的驱动名称一致。
	Name() string

	// Bind 将语句中的 @名称 参数替换为驱动的占位符，返回替换后的语句及按占位符顺序排列的参数值。
	Bind(query string, params []*Parameter) (string, []any, error)

	// SingleRow 返回仅获取首行的限制子句。
	SingleRow() string

	// Paging 返回分页限制子句，参数为行数及偏移的参数引用。
	Paging(rowCount string, offset string) string

	// MaxResults 返回最大行数限制子句。
	MaxResults(n string) string

	// InsertOutput 设置插入语句返回生成标识的输出子句及方式。
	InsertOutput(stmt *Statement, identity *Column)

	// Upsert 设置以主键为冲突键的插入或更新子句，keyRefs 为主键值的参数引用，assigns 为冲突时需要更新的列。
	Upsert(stmt *Statement, keys []*Column, keyRefs []string, assigns []*Column, identity *Column)

	// MultipleResultSets 返回是否支持在一次执行中返回多个结果集。
	MultipleResultSets() bool

	// Truncate 返回清空数据表的语句。
	Truncate(table string) string

	// TranslateError 将驱动错误转换为约束错误，无法识别时返回 *StatementError。
	TranslateError(err error, query string, params string) error

	// BulkInsert 在事务中批量插入数据行，返回插入的行数。
	BulkInsert(ctx context.Context, tx *sql.Tx, schema *BulkSchema, rows [][]any) (int64, error)
}

// DialectFor 根据驱动名称及连接地址创建方言。
func DialectFor(driver string, addr string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "mysql":
		multi := false
		if addr != "" {
			cfg, err := mysql.ParseDSN(addr)
			if err != nil {
				return nil, err
			}
			multi = cfg.MultiStatements
		}
		return NewMySQLDialect(multi), nil
	case "sqlite3", "sqlite":
		return NewSQLiteDialect(), nil
	case "postgres", "postgresql", "pq":
		return NewPostgresDialect(), nil
	}
	return nil, fmt.Errorf("unsupported driver: %v", driver)
}

// placeholderFunc 返回第 n 个（从 0 开始）参数的占位符。
type placeholderFunc func(n int, p *Parameter) (string, any, error)

// bindNamed 将语句中出现在参数列表内的 @名称 替换为占位符。
// 单引号字符串、双引号及反引号标识符内的文本，以及 @@ 开头的系统变量保持不变；
// 同一参数多次出现时，每次出现都会产生一个占位符。
func bindNamed(query string, params []*Parameter, placeholder placeholderFunc) (string, []any, error) {
	if len(params) == 0 {
		return query, nil, nil
	}
	lookup := make(map[string]*Parameter, len(params))
	for _, p := range params {
		lookup[strings.ToLower(p.Name)] = p
	}

	var sb strings.Builder
	sb.Grow(len(query))
	args := make([]any, 0, len(params))
	var quote byte
	for i := 0; i < len(query); i++ {
		ch := query[i]
		if quote != 0 {
			sb.WriteByte(ch)
			if ch == quote {
				quote = 0
			}
			continue
		}
		switch ch {
		case '\'', '"', '`':
			quote = ch
			sb.WriteByte(ch)
			continue
		case '@':
			if i+1 < len(query) && query[i+1] == '@' {
				sb.WriteString("@@")
				i++
				continue
			}
			j := i + 1
			for j < len(query) && isIdentChar(query[j]) {
				j++
			}
			if p, ok := lookup[strings.ToLower(query[i+1:j])]; ok {
				text, value, err := placeholder(len(args), p)
				if err != nil {
					return "", nil, err
				}
				sb.WriteString(text)
				args = append(args, value)
				i = j - 1
				continue
			}
		}
		sb.WriteByte(ch)
	}
	return sb.String(), args, nil
}

func isIdentChar(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9')
}

// bindValue 将参数值转换为驱动可接受的值。
func bindValue(p *Parameter) any {
	switch v := p.Value.(type) {
	case civil.Date:
		return v.String()
	case civil.Time:
		return v.String()
	case civil.DateTime:
		return v.String()
	case *civil.Date:
		if v == nil {
			return nil
		}
		return v.String()
	case *civil.Time:
		if v == nil {
			return nil
		}
		return v.String()
	case *civil.DateTime:
		if v == nil {
			return nil
		}
		return v.String()
	}
	return p.Value
}

// limitDialect 是基于 LIMIT/OFFSET 语法的方言的公共部分。
type limitDialect struct{}

func (limitDialect) SingleRow() string { return " LIMIT 1" }

func (limitDialect) Paging(rowCount string, offset string) string {
	return " LIMIT " + rowCount + " OFFSET " + offset
}

func (limitDialect) MaxResults(n string) string { return " LIMIT " + n }

// returningOutput 设置 RETURNING 形式的标识输出。
func returningOutput(stmt *Statement, identity *Column) {
	if identity == nil {
		stmt.Output = ""
		stmt.OutputMode = OutputNone
		return
	}
	stmt.Output = " RETURNING " + identity.Name
	stmt.OutputMode = OutputScalar
}

// conflictAssigns 生成 ON CONFLICT 的更新列表，excluded 为引用新值的伪表名称。
func conflictAssigns(keys []*Column, assigns []*Column, excluded string) string {
	targets := assigns
	if len(targets) == 0 {
		targets = keys[:1]
	}
	parts := make([]string, len(targets))
	for i, c := range targets {
		parts[i] = c.Name + " = " + excluded + "." + c.Name
	}
	return strings.Join(parts, ", ")
}

func columnNames(columns []*Column) string {
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.Name
	}
	return strings.Join(names, ",")
}

// bulkInsertRows 以多行 INSERT 语句分块插入，单条语句的占位符数量不超过 maxParams。
func bulkInsertRows(ctx context.Context, tx *sql.Tx, schema *BulkSchema, rows [][]any, maxParams int) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	width := len(schema.Columns)
	chunk := max(maxParams/max(width, 1), 1)
	head := "INSERT INTO " + schema.Table + " (" + columnNames(schema.Columns) + ") VALUES "
	group := "(" + strings.TrimSuffix(strings.Repeat("?,", width), ",") + ")"

	var total int64
	for start := 0; start < len(rows); start += chunk {
		end := min(start+chunk, len(rows))
		var sb strings.Builder
		sb.WriteString(head)
		args := make([]any, 0, (end-start)*width)
		for i := start; i < end; i++ {
			if i > start {
				sb.WriteString(",")
			}
			sb.WriteString(group)
			for j, value := range rows[i] {
				args = append(args, bindValue(&Parameter{Value: value, Type: schema.Columns[j].Type}))
			}
		}
		result, err := tx.ExecContext(ctx, sb.String(), args...)
		if err != nil {
			return total, err
		}
		if n, err := result.RowsAffected(); err == nil {
			total += n
		}
	}
	return total, nil
}
