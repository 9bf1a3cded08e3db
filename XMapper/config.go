// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XMapper

import (
	"strings"
	"sync"
	"time"

	"github.com/eframework-org/GO.UTIL/XLog"
	"github.com/eframework-org/GO.UTIL/XPrefs"
)

const (
	// prefsDefault 定义了默认数据源别名的偏好设置键。
	prefsDefault = "Mapper/Default"

	// prefsNotFound 定义了单行查询未找到数据时的策略的偏好设置键，可选 Nil 或 Default。
	prefsNotFound = "Mapper/NotFound"

	// prefsTimeout 定义了语句执行超时（秒）的偏好设置键。
	prefsTimeout = "Mapper/Timeout"
)

// NotFoundPolicy 定义了单行查询未找到数据时的返回策略。
type NotFoundPolicy int

const (
	NotFoundNil     NotFoundPolicy = iota // 返回 nil
	NotFoundDefault                       // 返回默认构造的实例
)

// LogStage 定义了日志回调的阶段。
type LogStage int

const (
	LogBefore LogStage = iota // 执行前
	LogAfter                  // 执行后
)

// LogEntry 是日志回调的参数。
type LogEntry struct {
	Stage  LogStage      // 阶段
	Kind   DmlKind       // 操作类型
	SQL    string        // 绑定后的语句
	Params string        // 参数的 JSON 表示
	Cost   time.Duration // 执行耗时，仅执行后有效
	Err    error         // 执行错误，仅执行后有效
}

// LogHook 是语句日志的回调，回调中的 panic 会被恢复，不会中断语句的执行。
type LogHook func(entry *LogEntry)

// Config 是执行器的配置。
type Config struct {
	NotFound      NotFoundPolicy // 单行查询未找到数据时的策略
	LogHook       LogHook        // 语句日志回调
	Timeout       time.Duration  // 语句执行超时，0 表示不限制
	DefaultSource string         // 默认数据源别名
	QueueCount    int            // 延迟提交队列的数量
	QueueBatch    int            // 单个延迟提交队列的容量
	QueueSignal   bool           // 队列线程是否在收到 SIGTERM/SIGINT 时退出
}

// NewConfig 创建默认配置。
func NewConfig() *Config {
	return &Config{QueueCount: defaultQueueCount(), QueueBatch: defaultQueueBatch}
}

// ParseConfig 从偏好设置中读取配置。
func ParseConfig(prefs XPrefs.IBase) *Config {
	config := NewConfig()
	if prefs == nil {
		return config
	}
	config.DefaultSource = prefs.GetString(prefsDefault)
	switch strings.ToLower(prefs.GetString(prefsNotFound)) {
	case "default":
		config.NotFound = NotFoundDefault
	case "", "nil":
		config.NotFound = NotFoundNil
	default:
		XLog.Warn("XMapper.ParseConfig: invalid not found policy %v, fallback to Nil.", prefs.GetString(prefsNotFound))
	}
	if seconds := prefs.GetInt(prefsTimeout, 0); seconds > 0 {
		config.Timeout = time.Duration(seconds) * time.Second
	}
	config.QueueCount = prefs.GetInt(prefsQueueCount, config.QueueCount)
	config.QueueBatch = prefs.GetInt(prefsQueueBatch, config.QueueBatch)
	config.QueueSignal = prefs.GetBool(prefsQueueSignal, false)
	if config.QueueCount <= 0 {
		config.QueueCount = defaultQueueCount()
	}
	if config.QueueBatch <= 0 {
		config.QueueBatch = defaultQueueBatch
	}
	return config
}

var (
	sharedMutex    sync.Mutex
	sharedExecutor *Executor
)

// Init 按偏好设置注册数据源并创建共享的执行器，重复调用会先关闭已有的执行器。
// 数据源配置无效时会触发 panic。
func Init(prefs XPrefs.IBase) *Executor {
	if prefs == nil {
		XLog.Panic("XMapper.Init: prefs is nil.")
		return nil
	}

	sharedMutex.Lock()
	defer sharedMutex.Unlock()

	if sharedExecutor != nil {
		sharedExecutor.Close()
		sharedExecutor = nil
	}

	config := ParseConfig(prefs)
	registry := NewRegistry()
	registry.Setup(prefs)
	if config.DefaultSource != "" {
		registry.SetDefault(config.DefaultSource)
	}

	sharedExecutor = NewExecutor(registry, config)
	sharedExecutor.StartQueue()
	XLog.Notice("XMapper.Init: executor has been initialized with %v source(s).", registry.Count())
	return sharedExecutor
}

// Shared 返回共享的执行器，未调用 Init 时返回 nil。
func Shared() *Executor {
	sharedMutex.Lock()
	defer sharedMutex.Unlock()
	return sharedExecutor
}

// Close 关闭共享的执行器，等待延迟提交队列处理完成。
func Close() {
	sharedMutex.Lock()
	defer sharedMutex.Unlock()
	if sharedExecutor != nil {
		sharedExecutor.Close()
		sharedExecutor = nil
		XLog.Notice("XMapper.Close: executor has been closed.")
	}
}
