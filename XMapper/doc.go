// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

/*
XMapper 是一个轻量的对象与关系数据映射器，将类型映射至数据表，将查询编译为参数化的 SQL 语句，并将结果集映射回对象。

功能特性

  - 映射定义：支持显式注册、结构体标签及约定三种方式声明类型与数据表的映射关系
  - 查询构建：支持成员路径条件、表达式条件、排序、分页及原始 SQL
  - 语句编译：支持 MySQL、PostgreSQL、SQLite3 方言，生成参数化的 SQL 语句
  - 语句执行：支持单行、多行、标量及分页结果的映射，支持事务上下文及只读库路由
  - 批量写入：支持批量插入及基于 goroutine 的延迟提交队列

使用手册

1. 多源配置

配置说明：
  - 配置键名：Mapper/Source/<数据库类型>/<数据源别名>
  - 支持 MySQL、PostgreSQL、SQLite3
  - 配置参数：
  - Addr：数据源地址
  - Pool：最大空闲连接数
  - Conn：最大打开连接数
  - ReadOnly：只读副本的数据源别名（可选）
  - 其他配置：
  - Mapper/Default：默认数据源别名，未配置时使用首个注册的数据源
  - Mapper/NotFound：单行查询未找到数据时的策略，可选 Nil 或 Default
  - Mapper/Timeout：语句执行超时（秒）
  - Mapper/Queue/Count：延迟提交队列的数量，默认为 CPU 核心数
  - Mapper/Queue/Batch：单个延迟提交队列的容量
  - Mapper/Queue/Signal：队列线程是否监听 SIGTERM/SIGINT，默认为 false；
    开启后进程收到信号时队列会处理剩余的批次并退出，同时信号不再触发默认的终止行为

配置示例：

	{
	    "Mapper/Default": "Main",
	    "Mapper/Timeout": 30,
	    "Mapper/Source/MySQL/Main": {
	        "Addr": "root:123456@tcp(127.0.0.1:3306)/dbname?charset=utf8mb4&loc=Local&multiStatements=true",
	        "Pool": 1,
	        "Conn": 10,
	        "ReadOnly": "Replica"
	    },
	    "Mapper/Source/MySQL/Replica": {
	        "Addr": "root:123456@tcp(127.0.0.2:3306)/dbname?charset=utf8mb4&loc=Local",
	        "Pool": 1,
	        "Conn": 10
	    },
	    "Mapper/Source/SQLite3/Local": {
	        "Addr": "file:data.db?cache=shared&mode=rwc",
	        "Pool": 1,
	        "Conn": 1
	    }
	}

初始化及关闭：

	executor := XMapper.Init(XPrefs.Asset())
	defer XMapper.Close()

2. 映射定义

2.1 结构体标签

实现 TableName 的类型按 orm 标签解析列映射，标签支持 column、pk、auto、assigned、readonly、alias、size、inline 及 -：

	type User struct {
	    ID      int64     `orm:"column(id);pk"`
	    Name    string    `orm:"column(name);size(64)"`
	    Created time.Time `orm:"column(created);readonly"`
	    Address Address   `orm:"inline"` // 展开为 Address.City 等嵌套成员路径
	}

	func (u *User) TableName() string { return "user" }
	func (u *User) AliasName() string { return "Main" } // 可选

2.2 显式注册

	mapping := XMapper.NewMapping[Order]().DeclareTable("orders")
	mapping.DeclarePrimaryKey("ID", "id")
	mapping.DeclareColumn("Customer.Name", "customer_name")
	mapping.DeclareColumn("State", "state").WithConverter(stateConverter)
	XMapper.Register(mapping)

2.3 约定

	func (o *Order) DefineMapping(mapping *XMapper.Mapping) {
	    mapping.DeclareTable("orders")
	    mapping.DeclarePrimaryKey("ID", "id")
	}

3. 查询构建

	query := XMapper.NewQuery(mapping)
	query.Add("Name", "test", XMapper.OpStartsWith)
	query.AddEquals("State", 1, XMapper.ConnectOr)
	query.AddOrder("ID", XMapper.Desc)

	// 表达式条件，|| 连接的条件项组成一个括号分组，! 对其后的括号取反
	query.Where("Age > {0} && Name == {1} || Name isnull {2}", 18, "test", true)
	query.Where("Age > {0} && !(State == {1} || Name startswith {2})", 18, 2, "t")
	query.Where("ID in {0} && limit {1}", []int{1, 2, 3}, 10)

	// 原始 SQL
	query.SetSql("SELECT id, name FROM user WHERE name = @name")
	XMapper.Param(query, "name", "test")

4. 数据仓库

	repo, _ := XMapper.NewRepository[User](executor)
	user, _ := repo.Get(ctx, 1)
	users, _ := repo.List(ctx, query)
	page, _ := repo.Page(ctx, query, 20, 0) // page.Total、page.Pages
	count, _ := repo.Count(ctx, nil)
	id, _ := repo.Insert(ctx, user)         // 生成的标识写回 user.ID
	affected, _ := repo.Update(ctx, user)
	id, _ = repo.Upsert(ctx, user)          // 更新时返回 -1
	rows, _ := repo.InsertRange(ctx, users) // 批量插入

事务：

	tx, _ := db.BeginTx(ctx, nil)
	ctx = XMapper.WithTx(ctx, tx)
	repo.Insert(ctx, user) // 在 tx 中执行
	tx.Commit()

5. 延迟提交

写语句按 goroutine ID 路由至固定的队列，同一 goroutine 提交的语句按提交顺序执行：

	repo.WriteAsync(user)
	executor.Flush()   // 等待当前 goroutine 对应的队列
	executor.Flush(-1) // 等待所有队列

注意事项：
1. 单行查询未找到数据时按 Mapper/NotFound 返回 nil 或默认实例
2. 取消或超时以上下文的原始错误返回
3. 唯一约束冲突返回 *UniqueConstraintViolationError 或 *UniqueIndexViolationError
4. 语句日志可通过 Config.LogHook 获取，回调中的 panic 不会中断语句的执行

更多信息请参考模块文档。
*/
package XMapper
