// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XMapper

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/beego/beego/v2/client/orm"
	"github.com/eframework-org/GO.UTIL/XCollect"
	"github.com/eframework-org/GO.UTIL/XLog"
	"github.com/eframework-org/GO.UTIL/XPrefs"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	prefsSourcePrefix   = "Mapper/Source/"
	prefsSourceAddr     = "Addr"
	prefsSourcePool     = "Pool"
	prefsSourceConn     = "Conn"
	prefsSourceReadOnly = "ReadOnly"
)

// Source 是一个数据源，包含主库及可选的只读库连接。
type Source struct {
	Alias    string  // 数据源别名
	Dialect  Dialect // 方言
	DB       *sql.DB // 主库
	ReadOnly *sql.DB // 只读库，为空时使用主库
}

// NewSource 创建数据源。
func NewSource(alias string, db *sql.DB, dialect Dialect) *Source {
	return &Source{Alias: alias, DB: db, Dialect: dialect}
}

// WithReadOnly 设置只读库连接。
func (s *Source) WithReadOnly(db *sql.DB) *Source {
	s.ReadOnly = db
	return s
}

// pick 按路由选择连接。
func (s *Source) pick(readOnly bool) *sql.DB {
	if readOnly && s.ReadOnly != nil {
		return s.ReadOnly
	}
	return s.DB
}

// Resolver 为映射解析数据源。mapping 为空时返回默认数据源。
type Resolver interface {
	Resolve(mapping *Mapping) (*Source, error)
}

// Registry 是基于别名的数据源注册表，连接由 beego/orm 的数据库注册表创建及持有。
type Registry struct {
	sources      *XCollect.Map
	replicas     *XCollect.Map
	defaultAlias string
}

// NewRegistry 创建数据源注册表。
func NewRegistry() *Registry {
	return &Registry{sources: XCollect.NewMap(), replicas: XCollect.NewMap()}
}

// Add 添加数据源，首个添加的数据源将作为默认数据源。
func (r *Registry) Add(source *Source) *Registry {
	r.sources.Delete(source.Alias)
	r.sources.LoadOrStore(source.Alias, source)
	if r.defaultAlias == "" {
		r.defaultAlias = source.Alias
	}
	return r
}

// SetDefault 设置默认数据源别名。
func (r *Registry) SetDefault(alias string) *Registry {
	r.defaultAlias = alias
	return r
}

// SetReplica 设置数据源的只读副本别名。
func (r *Registry) SetReplica(alias string, replica string) *Registry {
	r.replicas.Delete(alias)
	r.replicas.LoadOrStore(alias, replica)
	return r
}

// Count 返回已注册的数据源数量。
func (r *Registry) Count() int {
	count := 0
	r.sources.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}

// Register 通过 beego/orm 注册数据库并添加数据源，pool 为最大空闲连接数，conn 为最大打开连接数。
func (r *Registry) Register(driver string, alias string, addr string, pool int, conn int) error {
	dialect, err := DialectFor(driver, addr)
	if err != nil {
		return err
	}
	if _, ok := r.sources.Load(alias); ok {
		return fmt.Errorf("XMapper: source %v has already been registered", alias)
	}

	// beego/orm 不支持注销别名，已注册的别名复用其连接。
	db, err := orm.GetDB(alias)
	if err != nil {
		var options []orm.DBOption
		if pool > 0 {
			options = append(options, orm.MaxIdleConnections(pool))
		}
		if conn > 0 {
			options = append(options, orm.MaxOpenConnections(conn))
		}
		if err := orm.RegisterDataBase(alias, dialect.Name(), addr, options...); err != nil {
			return err
		}
		if db, err = orm.GetDB(alias); err != nil {
			return err
		}
	} else {
		if pool > 0 {
			db.SetMaxIdleConns(pool)
		}
		if conn > 0 {
			db.SetMaxOpenConns(conn)
		}
		XLog.Notice("XMapper.Registry.Register: reuse database of %v.", alias)
	}
	r.Add(NewSource(alias, db, dialect))
	return nil
}

// Setup 按偏好设置注册数据源，键的格式为 Mapper/Source/<Type>/<Alias>。
func (r *Registry) Setup(prefs XPrefs.IBase) {
	if prefs == nil {
		XLog.Panic("XMapper.Registry.Setup: prefs is nil.")
		return
	}

	for _, key := range prefs.Keys() {
		if !strings.HasPrefix(key, prefsSourcePrefix) {
			continue
		}
		parts := strings.Split(key, "/")
		if len(parts) < 4 {
			XLog.Panic("XMapper.Registry.Setup: invalid prefs key %v.", key)
			return
		}

		driver := strings.ToLower(parts[2])
		alias := parts[3]

		if base, ok := prefs.Get(key).(XPrefs.IBase); ok && base != nil {
			addr := base.GetString(prefsSourceAddr)
			pool := base.GetInt(prefsSourcePool)
			conn := base.GetInt(prefsSourceConn)
			if err := r.Register(driver, alias, addr, pool, conn); err != nil {
				XLog.Panic("XMapper.Registry.Setup: register source %v failed, err: %v", alias, err)
				return
			}
			if replica := base.GetString(prefsSourceReadOnly); replica != "" {
				r.SetReplica(alias, replica)
			}
			XLog.Notice("XMapper.Registry.Setup: source %v of %v has been registered.", alias, driver)
		} else {
			XLog.Error("XMapper.Registry.Setup: invalid config for %v", key)
			continue
		}
	}
}

// Resolve 解析映射的数据源：映射声明的别名优先，否则使用默认数据源；
// 只读库优先使用映射声明的只读别名，其次使用数据源配置的只读副本。
func (r *Registry) Resolve(mapping *Mapping) (*Source, error) {
	alias, readOnly := "", ""
	if mapping != nil {
		alias, readOnly = mapping.Source()
	}
	if alias == "" {
		alias = r.defaultAlias
	}
	value, ok := r.sources.Load(alias)
	if !ok {
		return nil, fmt.Errorf("XMapper: source %v was not registered", alias)
	}
	source := value.(*Source)

	if readOnly == "" {
		if replica, ok := r.replicas.Load(alias); ok {
			readOnly = replica.(string)
		}
	}
	if readOnly == "" || readOnly == alias {
		return source, nil
	}
	replica, ok := r.sources.Load(readOnly)
	if !ok {
		return nil, fmt.Errorf("XMapper: read-only source %v was not registered", readOnly)
	}
	return &Source{Alias: source.Alias, Dialect: source.Dialect, DB: source.DB, ReadOnly: replica.(*Source).DB}, nil
}

type txKey struct{}

// WithTx 返回携带事务的上下文，执行器及批量插入将在该事务中执行，而不会打开绕过该事务的连接。
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// txFrom 返回上下文中的事务。
func txFrom(ctx context.Context) *sql.Tx {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return nil
}
