// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XMapper

import (
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/petermattis/goid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func newQueueServer() *fakeServer {
	return newFakeServer(func(string) (*fakeReply, error) { return &fakeReply{affected: 1}, nil })
}

func newDeleteStatements(t *testing.T, n int) []*Statement {
	m := newSimpleMapping()
	compiler := NewCompiler(nil)
	statements := make([]*Statement, n)
	for i := range n {
		stmt, err := compiler.Delete(m, &testSimple{Id: int64(i + 1)}, nil)
		assert.NoError(t, err)
		statements[i] = stmt
	}
	return statements
}

func TestExecQueue(t *testing.T) {
	t.Run("SubmitAndFlush", func(t *testing.T) {
		server := newQueueServer()
		exec := newFakeExecutor(server, NewMySQLDialect(false))
		queue := NewQueue(exec, 2, 16)
		defer queue.Close()

		gid := goid.Get()
		queueID := queue.queueID(gid)
		beforeTotal := testutil.ToFloat64(queueCounter)
		beforeQueue := testutil.ToFloat64(queueCounters.WithLabelValues(strconv.Itoa(queueID)))

		var order []int64
		var mu sync.Mutex
		err := queue.Submit(newDeleteStatements(t, 3), func(stmt *Statement, result *Result, err error) {
			assert.NoError(t, err, "队列中的语句应当执行成功。")
			assert.Equal(t, int64(1), result.Affected, "影响的行数应当为 1。")
			p, _ := stmt.Param("C0")
			mu.Lock()
			order = append(order, p.Value.(int64))
			mu.Unlock()
		}, gid)
		assert.NoError(t, err, "提交语句应当成功。")

		queue.Flush(gid)
		mu.Lock()
		assert.Equal(t, []int64{1, 2, 3}, order, "同一批次的语句应当按提交顺序执行。")
		mu.Unlock()
		assert.Len(t, server.Calls(), 3, "应当执行 3 条语句。")
		assert.Equal(t, beforeTotal+3, testutil.ToFloat64(queueCounter), "已执行的语句计数应当增加 3。")
		assert.Equal(t, beforeQueue+3, testutil.ToFloat64(queueCounters.WithLabelValues(strconv.Itoa(queueID))), "队列的语句计数应当增加 3。")
	})

	t.Run("FlushAll", func(t *testing.T) {
		server := newQueueServer()
		queue := NewQueue(newFakeExecutor(server, NewMySQLDialect(false)), 4, 16)
		defer queue.Close()

		var executed int32
		callback := func(*Statement, *Result, error) { atomic.AddInt32(&executed, 1) }
		var wg sync.WaitGroup
		for i := range 8 {
			wg.Add(1)
			go func(gid int64) {
				defer wg.Done()
				assert.NoError(t, queue.Submit(newDeleteStatements(t, 2), callback, gid))
			}(int64(i))
		}
		wg.Wait()

		queue.Flush(-1)
		assert.Equal(t, int32(16), atomic.LoadInt32(&executed), "刷新所有队列后所有语句应当已执行。")
	})

	t.Run("Routing", func(t *testing.T) {
		queue := NewQueue(newFakeExecutor(newQueueServer(), NewMySQLDialect(false)), 3, 16)
		defer queue.Close()
		assert.Equal(t, 3, queue.Count(), "队列数量应当为 3。")
		assert.Equal(t, queue.queueID(7), queue.queueID(7), "相同的 goroutine ID 应当路由至同一个队列。")
		assert.Equal(t, 1, queue.queueID(4), "队列索引应当为 goroutine ID 对队列数量取模。")
		assert.Equal(t, 0, queue.queueID(-1), "负数的 goroutine ID 应当路由至首个队列。")
	})

	t.Run("ExecuteError", func(t *testing.T) {
		server := newFakeServer(func(string) (*fakeReply, error) { return nil, errors.New("broken") })
		queue := NewQueue(newFakeExecutor(server, NewMySQLDialect(false)), 1, 16)
		defer queue.Close()

		var failed int32
		err := queue.Submit(newDeleteStatements(t, 2), func(stmt *Statement, result *Result, err error) {
			var serr *StatementError
			if errors.As(err, &serr) && result == nil {
				atomic.AddInt32(&failed, 1)
			}
		}, 0)
		assert.NoError(t, err)
		queue.Flush(0)
		assert.Equal(t, int32(2), atomic.LoadInt32(&failed), "执行失败的语句应当通过回调返回错误，且不中断后续语句。")
	})

	t.Run("Full", func(t *testing.T) {
		block := make(chan struct{})
		server := newFakeServer(func(string) (*fakeReply, error) {
			<-block
			return &fakeReply{affected: 1}, nil
		})
		queue := NewQueue(newFakeExecutor(server, NewMySQLDialect(false)), 1, 1)

		assert.NoError(t, queue.Submit(newDeleteStatements(t, 1), nil, 0), "首个批次应当被队列线程取出。")
		var err error
		for range 3 {
			if err = queue.Submit(newDeleteStatements(t, 1), nil, 0); err != nil {
				break
			}
		}
		assert.ErrorIs(t, err, ErrQueueFull, "队列已满时应当返回 ErrQueueFull。")
		close(block)
		queue.Close()
	})

	t.Run("Close", func(t *testing.T) {
		server := newQueueServer()
		queue := NewQueue(newFakeExecutor(server, NewMySQLDialect(false)), 2, 16)
		assert.NoError(t, queue.Submit(newDeleteStatements(t, 2), nil, 1))
		queue.Close()
		assert.Len(t, server.Calls(), 2, "关闭队列前应当执行完剩余的语句。")
		assert.ErrorIs(t, queue.Submit(newDeleteStatements(t, 1), nil, 1), ErrQueueClosed, "关闭后提交应当返回 ErrQueueClosed。")
		queue.Flush(-1)
		queue.Close()
	})

	t.Run("Signal", func(t *testing.T) {
		queue := NewQueue(newFakeExecutor(newQueueServer(), NewMySQLDialect(false)), 2, 16)
		assert.False(t, queue.signal, "默认不应当监听进程信号。")
		queue.Close()
		assert.ErrorIs(t, queue.Submit(newDeleteStatements(t, 1), nil), ErrQueueClosed, "未监听信号的队列应当可以正常关闭。")

		config := NewConfig()
		config.QueueSignal = true
		queue = NewQueue(newFakeExecutor(newQueueServer(), NewMySQLDialect(false), config), 2, 16)
		assert.True(t, queue.signal, "配置开启时应当监听进程信号。")
		queue.Close()
		assert.ErrorIs(t, queue.Submit(newDeleteStatements(t, 1), nil), ErrQueueClosed, "监听信号的队列应当可以正常关闭。")
	})

	t.Run("Executor", func(t *testing.T) {
		server := newQueueServer()
		config := NewConfig()
		config.QueueCount = 2
		config.QueueBatch = 16
		exec := newFakeExecutor(server, NewMySQLDialect(false), config)
		assert.Nil(t, exec.Queue(), "队列在启动前应当为 nil。")
		assert.ErrorIs(t, exec.Submit(newDeleteStatements(t, 1)...), ErrQueueClosed, "队列未启动时提交应当返回 ErrQueueClosed。")

		queue := exec.StartQueue()
		assert.Same(t, queue, exec.StartQueue(), "重复启动应当返回同一个队列。")
		assert.Equal(t, 2, queue.Count(), "队列数量应当与配置一致。")

		assert.NoError(t, exec.Submit(newDeleteStatements(t, 2)...))
		exec.Flush()
		assert.Len(t, server.Calls(), 2, "刷新后当前 goroutine 提交的语句应当已执行。")
		exec.Close()
	})
}
