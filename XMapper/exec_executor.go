// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XMapper

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/eframework-org/GO.UTIL/XLog"
	"github.com/eframework-org/GO.UTIL/XObject"
	"github.com/eframework-org/GO.UTIL/XTime"
)

// sqlRunner 是执行语句的连接或事务，*sql.Conn 及 *sql.Tx 实现了该接口。
type sqlRunner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Executor 执行编译后的语句，按结果行数及目标分发至结果映射。
// Executor 可以被多个 goroutine 并发使用。
type Executor struct {
	resolver Resolver
	config   *Config
	queue    *Queue
}

// NewExecutor 创建执行器，config 为空时使用默认配置。
func NewExecutor(resolver Resolver, config ...*Config) *Executor {
	e := &Executor{resolver: resolver}
	if len(config) > 0 && config[0] != nil {
		e.config = config[0]
	} else {
		e.config = NewConfig()
	}
	return e
}

// Config 返回执行器的配置。
func (e *Executor) Config() *Config { return e.config }

// Source 返回映射的数据源。
func (e *Executor) Source(mapping *Mapping) (*Source, error) {
	if e.resolver == nil {
		return nil, errors.New("XMapper: executor has no resolver")
	}
	return e.resolver.Resolve(mapping)
}

// Compiler 返回与映射的数据源方言一致的编译器。
func (e *Executor) Compiler(mapping *Mapping) (*Compiler, error) {
	source, err := e.Source(mapping)
	if err != nil {
		return nil, err
	}
	return NewCompiler(source.Dialect), nil
}

// Execute 执行语句。
// 连接（或上下文中的事务）在返回前释放；取消或超时以上下文的原始错误返回，不会被包装；
// 驱动错误经方言转换为约束错误或 *StatementError。
func (e *Executor) Execute(ctx context.Context, stmt *Statement) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if e.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
	}

	source, err := e.Source(stmt.Mapping)
	if err != nil {
		return nil, err
	}

	mapping := stmt.Mapping
	if mapping != nil && stmt.Kind == DmlSelect && stmt.Target == TargetEntity {
		for _, hook := range mapping.preFetch {
			hook(mapping, stmt)
		}
	}

	multi := stmt.Count && source.Dialect.MultipleResultSets()
	text := stmt.SQL()
	if multi {
		text += ";\n" + stmt.CountSQL()
	}
	query, args, err := source.Dialect.Bind(text, stmt.Params)
	if err != nil {
		return nil, err
	}
	dump := dumpParams(stmt.Params)

	e.log(&LogEntry{Stage: LogBefore, Kind: stmt.Kind, SQL: query, Params: dump})
	startTime := XTime.GetMicrosecond()

	result, err := e.run(ctx, source, stmt, query, args, multi)

	cost := time.Duration(XTime.GetMicrosecond()-startTime) * time.Microsecond
	kind := stmt.Kind.String()
	statementCounter.WithLabelValues(kind).Inc()
	statementDuration.WithLabelValues(kind).Observe(cost.Seconds())
	if err != nil {
		statementErrors.WithLabelValues(kind).Inc()
		err = e.translate(ctx, source, err, query, dump)
	}
	e.log(&LogEntry{Stage: LogAfter, Kind: stmt.Kind, SQL: query, Params: dump, Cost: cost, Err: err})
	if err != nil {
		return nil, err
	}

	if mapping != nil {
		switch stmt.Kind {
		case DmlSelect:
			if stmt.Target == TargetEntity {
				for _, hook := range mapping.postFetch {
					hook(mapping, stmt)
				}
			}
		case DmlInsert, DmlUpdate, DmlUpsert:
			for _, hook := range mapping.postSave {
				hook(mapping)
			}
		case DmlDelete:
			for _, hook := range mapping.postDelete {
				hook(mapping)
			}
		}
	}
	return result, nil
}

// run 获取连接并执行语句，连接在返回前释放。
func (e *Executor) run(ctx context.Context, source *Source, stmt *Statement, query string, args []any, multi bool) (*Result, error) {
	if tx := txFrom(ctx); tx != nil {
		return e.dispatch(ctx, tx, source, stmt, query, args, multi)
	}
	conn, err := source.pick(stmt.ReadOnly).Conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return e.dispatch(ctx, conn, source, stmt, query, args, multi)
}

// dispatch 按结果行数及目标执行语句。
func (e *Executor) dispatch(ctx context.Context, runner sqlRunner, source *Source, stmt *Statement, query string, args []any, multi bool) (*Result, error) {
	switch stmt.OutputMode {
	case OutputProbe:
		return e.probe(ctx, runner, source, stmt, query, args)
	case OutputScalar:
		return e.returning(ctx, runner, query, args)
	}

	if stmt.Cardinality == NoRows {
		res, err := runner.ExecContext(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		result := &Result{Kind: ResultNone}
		result.Affected, _ = res.RowsAffected()
		switch stmt.OutputMode {
		case OutputLastInsertID:
			if result.Identity, err = res.LastInsertId(); err != nil {
				return nil, err
			}
		case OutputInsertedID:
			if result.Affected == 1 {
				if result.Identity, err = res.LastInsertId(); err != nil {
					return nil, err
				}
			} else {
				result.Identity = -1
			}
		}
		return result, nil
	}

	rows, err := runner.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if stmt.Cardinality == SingleRow {
		var single any
		if stmt.Target == TargetScalar {
			single, err = mapScalar(rows, stmt.ScalarType)
		} else {
			single, err = mapSingle(stmt.Mapping, rows, e.config.NotFound)
		}
		if err != nil {
			return nil, err
		}
		return &Result{Kind: ResultSingle, Single: single}, nil
	}

	result := &Result{Kind: ResultList}
	if stmt.Target == TargetScalar {
		result.List, err = mapScalarList(rows, stmt.ScalarType)
	} else {
		result.List, err = mapList(stmt.Mapping, rows)
	}
	if err != nil {
		return nil, err
	}
	result.Affected = int64(len(result.List))

	if stmt.Count {
		if multi {
			if result.Total, err = readTotal(rows); err != nil {
				return nil, err
			}
		} else {
			rows.Close()
			if result.Total, err = e.count(ctx, runner, source, stmt); err != nil {
				return nil, err
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// count 在同一连接上执行计数语句。
func (e *Executor) count(ctx context.Context, runner sqlRunner, source *Source, stmt *Statement) (*int64, error) {
	query, args, err := source.Dialect.Bind(stmt.CountSQL(), stmt.Params)
	if err != nil {
		return nil, err
	}
	total, err := queryInt64(ctx, runner, query, args)
	if err != nil {
		return nil, err
	}
	return &total, nil
}

// returning 执行以结果集返回标识的插入语句。
func (e *Executor) returning(ctx context.Context, runner sqlRunner, query string, args []any) (*Result, error) {
	identity, err := queryInt64(ctx, runner, query, args)
	if err != nil {
		return nil, err
	}
	affected := int64(1)
	return &Result{Kind: ResultNone, Identity: identity, Affected: affected}, nil
}

// probe 先探测主键是否存在，再执行插入或更新语句；主键已存在时标识为 -1。
func (e *Executor) probe(ctx context.Context, runner sqlRunner, source *Source, stmt *Statement, query string, args []any) (*Result, error) {
	probeQuery, probeArgs, err := source.Dialect.Bind(stmt.Probe, stmt.Params)
	if err != nil {
		return nil, err
	}
	existed, err := queryInt64(ctx, runner, probeQuery, probeArgs)
	if err != nil {
		return nil, err
	}
	result, err := e.returning(ctx, runner, query, args)
	if err != nil {
		return nil, err
	}
	if existed > 0 {
		result.Identity = -1
	}
	return result, nil
}

func queryInt64(ctx context.Context, runner sqlRunner, query string, args []any) (int64, error) {
	rows, err := runner.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return 0, err
		}
		return 0, sql.ErrNoRows
	}
	var value any
	if err := rows.Scan(&value); err != nil {
		return 0, err
	}
	if value == nil {
		return 0, rows.Err()
	}
	n, err := asInt64(value)
	if err != nil {
		return 0, err
	}
	return n, rows.Err()
}

// translate 转换执行错误：取消及超时原样返回，映射及赋值错误原样返回，其余交由方言转换。
func (e *Executor) translate(ctx context.Context, source *Source, err error, query string, params string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}
	var merr *MappingError
	var aerr *MemberAssignmentError
	var qerr *InvalidQueryError
	if errors.As(err, &merr) || errors.As(err, &aerr) || errors.As(err, &qerr) {
		return err
	}
	return source.Dialect.TranslateError(err, query, params)
}

// log 调用日志回调，回调中的 panic 会被恢复并记录。
func (e *Executor) log(entry *LogEntry) {
	if entry.Stage == LogAfter {
		if entry.Err != nil {
			XLog.Error("XMapper.Execute: [%v] [Cost:%.2fms] %v, params: %v, err: %v", entry.Kind, float64(entry.Cost.Microseconds())/1e3, entry.SQL, entry.Params, entry.Err)
		} else if XLog.Able(XLog.LevelInfo) {
			XLog.Info("XMapper.Execute: [%v] [Cost:%.2fms] %v", entry.Kind, float64(entry.Cost.Microseconds())/1e3, entry.SQL)
		}
	}
	hook := e.config.LogHook
	if hook == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			XLog.Error("XMapper.Execute: log hook panic: %v", r)
		}
	}()
	hook(entry)
}

// dumpParams 返回参数的 JSON 表示，用于日志及诊断。
func dumpParams(params []*Parameter) string {
	if len(params) == 0 {
		return "{}"
	}
	values := make(map[string]any, len(params))
	for _, p := range params {
		values[p.Name] = p.Value
	}
	dump, err := XObject.ToJson(values)
	if err != nil {
		return fmt.Sprintf("%v", values)
	}
	return dump
}
