// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XMapper

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/eframework-org/GO.UTIL/XLog"
	"github.com/eframework-org/GO.UTIL/XLoom"
	"github.com/eframework-org/GO.UTIL/XString"
	"github.com/eframework-org/GO.UTIL/XTime"
	"github.com/illumitacit/gostd/quit"
	"github.com/petermattis/goid"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// prefsQueueCount 定义了延迟提交队列的数量的偏好设置键。
	prefsQueueCount = "Mapper/Queue/Count"

	// prefsQueueBatch 定义了单个延迟提交队列的最大容量的偏好设置键。
	prefsQueueBatch = "Mapper/Queue/Batch"

	// prefsQueueSignal 定义了队列线程是否监听 SIGTERM/SIGINT 信号的偏好设置键。
	prefsQueueSignal = "Mapper/Queue/Signal"

	// defaultQueueBatch 是单个队列的默认容量。
	defaultQueueBatch = 100000
)

// defaultQueueCount 返回默认的队列数量，即 CPU 核心数。
func defaultQueueCount() int { return runtime.NumCPU() }

var (
	// ErrQueueClosed 表示延迟提交队列未启动或已关闭。
	ErrQueueClosed = errors.New("XMapper: queue is closed")

	// ErrQueueFull 表示延迟提交队列已满，批次被丢弃。
	ErrQueueFull = errors.New("XMapper: queue is full")
)

// queueBatch 是一批待执行的语句，同一批次的语句按顺序执行。
type queueBatch struct {
	tag        *XLog.LogTag                                     // 日志标签，用于追踪批次处理
	stime      int                                              // 批次创建时间（微秒）
	statements []*Statement                                     // 待执行的语句
	callback   func(stmt *Statement, result *Result, err error) // 执行回调
}

// reset 重置批次对象的状态，在批次被放回对象池前调用。
func (qb *queueBatch) reset() {
	qb.tag = nil
	qb.stime = 0
	qb.statements = nil
	qb.callback = nil
}

// batchPool 是批次对象的对象池。
var batchPool = sync.Pool{
	New: func() any {
		obj := new(queueBatch)
		obj.reset()
		return obj
	},
}

// Queue 是延迟提交队列，写语句按 goroutine ID 路由至固定的队列，
// 同一 goroutine 提交的语句按提交顺序执行。
type Queue struct {
	executor  *Executor
	count     int
	batch     int
	signal    bool
	queues    []chan *queueBatch
	setupSig  []chan os.Signal
	flushWait []chan *sync.WaitGroup
	closeWait sync.WaitGroup
	flushSig  int32
	closeSig  int32
	gauges    []prometheus.Gauge
	counters  []prometheus.Counter
}

// NewQueue 创建并启动延迟提交队列，count 为队列数量，batch 为单个队列的容量。
func NewQueue(executor *Executor, count int, batch int) *Queue {
	if count <= 0 {
		count = defaultQueueCount()
	}
	if batch <= 0 {
		batch = defaultQueueBatch
	}
	q := &Queue{executor: executor, count: count, batch: batch, signal: executor != nil && executor.config.QueueSignal}
	q.queues = make([]chan *queueBatch, count)
	q.setupSig = make([]chan os.Signal, count)
	q.flushWait = make([]chan *sync.WaitGroup, count)
	q.gauges = make([]prometheus.Gauge, count)
	q.counters = make([]prometheus.Counter, count)
	for i := range count {
		q.queues[i] = make(chan *queueBatch, batch)
		q.setupSig[i] = make(chan os.Signal, 1)
		q.flushWait[i] = make(chan *sync.WaitGroup, 1)
		q.gauges[i] = queueGauges.WithLabelValues(strconv.Itoa(i))
		q.counters[i] = queueCounters.WithLabelValues(strconv.Itoa(i))
	}

	// 启动队列线程
	wg := sync.WaitGroup{}
	for i := range count {
		wg.Add(1)
		XLoom.RunAsyncT2(func(queueID int, doneOnce *sync.Once) {
			setupSig := q.setupSig[queueID]
			if q.signal {
				signal.Notify(setupSig, syscall.SIGTERM, syscall.SIGINT)
			}

			quit.GetWaiter().Add(1)
			q.closeWait.Add(1)
			doneOnce.Do(func() { // 确保只调用一次，否则recover后会重复调用
				wg.Done()
			})

			flushSig := q.flushWait[queueID]
			queue := q.queues[queueID]

			defer func() {
				// 处理剩余的批次
				for len(queue) > 0 {
					q.push(queueID, <-queue)
				}
				quit.GetWaiter().Done()
				q.closeWait.Done()
			}()

			for {
				select {
				case batch := <-queue:
					if batch == nil {
						return
					}
					q.push(queueID, batch)
				case fwg := <-flushSig:
					for len(queue) > 0 {
						q.push(queueID, <-queue)
					}
					fwg.Done()
				case sig, ok := <-setupSig:
					if ok {
						XLog.Notice("XMapper.Queue.Setup(%v): receive signal of %v.", queueID, sig.String())
					} else {
						XLog.Notice("XMapper.Queue.Setup(%v): channel of signal is closed.", queueID)
					}
					return
				case <-quit.GetQuitChannel():
					XLog.Notice("XMapper.Queue.Setup(%v): receive signal of QUIT.", queueID)
					return
				}
			}
		}, i, &sync.Once{}, true)
	}
	wg.Wait()

	XLog.Notice("XMapper.Queue.Setup: count of queue is %v, capacity of queue is %v.", count, batch)
	return q
}

// Count 返回队列数量。
func (q *Queue) Count() int { return q.count }

// queueID 返回 goroutine ID 对应的队列索引，相同的 goroutine ID 会被分配到同一个队列。
func (q *Queue) queueID(gid int64) int {
	return max(int(gid%int64(q.count)), 0)
}

// Submit 提交一批语句，gid 为 goroutine ID，未指定时使用当前 goroutine ID。
// callback 可为空，在每条语句执行后于队列线程中调用。
func (q *Queue) Submit(statements []*Statement, callback func(stmt *Statement, result *Result, err error), gid ...int64) error {
	if atomic.LoadInt32(&q.closeSig) > 0 {
		return ErrQueueClosed
	}
	if len(statements) == 0 {
		return nil
	}

	var ggid int64
	if len(gid) > 0 {
		ggid = gid[0]
	} else {
		ggid = goid.Get()
	}

	batch := batchPool.Get().(*queueBatch)
	batch.stime = XTime.GetMicrosecond()
	batch.statements = statements
	batch.callback = callback
	if tag := XLog.Tag(); tag != nil { // 保持和提交方一致的日志标签
		batch.tag = tag.Clone()
		batch.tag.Set("Go", XString.ToString(int(ggid)))
	}

	queueID := q.queueID(ggid)
	select {
	case q.queues[queueID] <- batch:
		q.gauges[queueID].Add(float64(len(statements)))
		queueGauge.Add(float64(len(statements)))
		return nil
	default:
		XLog.Error("XMapper.Queue.Submit: too many statements to commit.")
		batch.reset()
		batchPool.Put(batch)
		return ErrQueueFull
	}
}

// push 执行批次中的语句。
func (q *Queue) push(queueID int, batch *queueBatch) {
	if batch.tag != nil {
		XLog.Watch(batch.tag)
	}
	waitTime := XTime.GetMicrosecond() - batch.stime
	nowTime := XTime.GetMicrosecond()

	for _, stmt := range batch.statements {
		result, err := q.execute(stmt)
		if batch.callback != nil {
			batch.callback(stmt, result, err)
		}
		q.gauges[queueID].Dec()
		queueGauge.Dec()
		q.counters[queueID].Inc()
		queueCounter.Inc()
	}

	costTime := XTime.GetMicrosecond() - nowTime
	XLog.Notice("XMapper.Queue.Push: [Finish] [Cost:%.2fms] [Wait:%.2fms] pushed %v statement(s).",
		float64(costTime)/1e3,
		float64(waitTime)/1e3,
		len(batch.statements))

	if batch.tag != nil {
		XLog.Defer()
	}

	batch.reset()
	batchPool.Put(batch)
}

// execute 执行单条语句，panic 会被恢复并作为错误返回。
func (q *Queue) execute(stmt *Statement) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			XLog.Critical("XMapper.Queue.Push: execute %v panic: %v", stmt.Kind, r)
			err = fmt.Errorf("%v", r)
		}
	}()
	result, err = q.executor.Execute(context.Background(), stmt)
	if err != nil {
		XLog.Error("XMapper.Queue.Push: execute %v failed: %v", stmt.Kind, err)
	}
	return
}

// Flush 等待指定的队列执行完成。
// gid 参数为 goroutine ID，若未指定，则使用当前 goroutine ID，
// 若 gid 为 -1，则表示等待所有的队列执行完成。
func (q *Queue) Flush(gid ...int64) {
	if atomic.LoadInt32(&q.closeSig) != 0 {
		return
	}
	var ggid int64
	if len(gid) > 0 {
		ggid = gid[0]
	} else {
		ggid = goid.Get()
	}
	if ggid == -1 {
		if atomic.CompareAndSwapInt32(&q.flushSig, 0, 1) {
			for index := range q.queues {
				q.flushOne(index)
			}
			atomic.CompareAndSwapInt32(&q.flushSig, 1, 0)
			XLog.Notice("XMapper.Queue.Flush: batches of all queue has been flushed.")
		}
		return
	}
	q.flushOne(q.queueID(ggid))
}

func (q *Queue) flushOne(queueID int) {
	sig := q.flushWait[queueID]
	if sig == nil {
		return
	}
	wg := &sync.WaitGroup{}
	wg.Add(1)
	sig <- wg
	wg.Wait()
	XLog.Notice("XMapper.Queue.Flush: batches of queue-%v has been flushed.", queueID)
}

// Close 关闭所有的队列并等待未完成的批次执行完成。
func (q *Queue) Close() {
	if atomic.CompareAndSwapInt32(&q.closeSig, 0, 1) {
		for _, sig := range q.setupSig {
			signal.Stop(sig)
			close(sig)
		}
		q.closeWait.Wait()
	}
}

// StartQueue 按配置启动执行器的延迟提交队列，已启动时不做任何操作。
func (e *Executor) StartQueue() *Queue {
	if e.queue == nil {
		e.queue = NewQueue(e, e.config.QueueCount, e.config.QueueBatch)
	}
	return e.queue
}

// Queue 返回执行器的延迟提交队列，未启动时返回 nil。
func (e *Executor) Queue() *Queue { return e.queue }

// Submit 将语句提交至当前 goroutine 对应的延迟提交队列。
func (e *Executor) Submit(statements ...*Statement) error {
	if e.queue == nil {
		return ErrQueueClosed
	}
	return e.queue.Submit(statements, nil, goid.Get())
}

// Flush 等待延迟提交队列执行完成，参数同 Queue.Flush。
func (e *Executor) Flush(gid ...int64) {
	if e.queue != nil {
		if len(gid) == 0 {
			gid = []int64{goid.Get()}
		}
		e.queue.Flush(gid...)
	}
}

// Close 关闭执行器的延迟提交队列。
func (e *Executor) Close() {
	if e.queue != nil {
		e.queue.Close()
	}
}
