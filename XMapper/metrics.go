// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XMapper

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// statementCounter 统计已执行的语句数量，按操作类型区分。
	statementCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xmapper_statement_total",
		Help: "The total number of executed statements.",
	}, []string{"kind"})

	// statementErrors 统计执行失败的语句数量，按操作类型区分。
	statementErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xmapper_statement_error_total",
		Help: "The total number of failed statements.",
	}, []string{"kind"})

	// statementDuration 统计语句的执行耗时（秒）。
	statementDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "xmapper_statement_duration_seconds",
		Help:    "The duration of executed statements in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	}, []string{"kind"})

	// bulkCounter 统计批量插入的数据行数量。
	bulkCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "xmapper_bulk_rows_total",
		Help: "The total number of rows inserted by bulk insert.",
	})

	// queueGauge 统计所有延迟提交队列中等待执行的语句数量。
	queueGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "xmapper_queue_pending",
		Help: "The number of statements waiting in all queues.",
	})

	// queueGauges 统计指定延迟提交队列中等待执行的语句数量。
	queueGauges = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "xmapper_queue_pending_by_queue",
		Help: "The number of statements waiting in the queue.",
	}, []string{"queue"})

	// queueCounter 统计所有延迟提交队列已执行的语句数量。
	queueCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "xmapper_queue_committed_total",
		Help: "The total number of statements committed by all queues.",
	})

	// queueCounters 统计指定延迟提交队列已执行的语句数量。
	queueCounters = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xmapper_queue_committed_by_queue_total",
		Help: "The total number of statements committed by the queue.",
	}, []string{"queue"})
)

func init() {
	prometheus.MustRegister(
		statementCounter,
		statementErrors,
		statementDuration,
		bulkCounter,
		queueGauge,
		queueGauges,
		queueCounter,
		queueCounters,
	)
}
