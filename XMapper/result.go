// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XMapper

// ResultKind 定义了结果的类型。
type ResultKind int

const (
	ResultNone   ResultKind = iota // 无结果
	ResultSingle                   // 单个实例或标量
	ResultList                     // 实例或标量列表
)

// Result 是语句执行的结果，由调用方持有。
type Result struct {
	Kind     ResultKind // 结果类型
	Single   any        // 单个结果，实体为目标类型的指针，未找到且策略为 NotFoundNil 时为 nil
	List     []any      // 结果列表，实体为目标类型的指针
	Total    *int64     // 分页查询的总行数，未请求或未返回时为 nil
	Affected int64      // 影响的行数
	Identity int64      // 插入时生成的标识，更新时为 -1
}

// Pages 返回按 rowCount 计算的总页数，未返回总行数时返回 0。
func (r *Result) Pages(rowCount int) int64 {
	if r.Total == nil || rowCount <= 0 {
		return 0
	}
	n := int64(rowCount)
	return (*r.Total + n - 1) / n
}

// Page 是分页查询的结果。
type Page[T any] struct {
	Items     []*T  // 当前页的数据
	Total     int64 // 总行数
	Pages     int64 // 总页数
	RowCount  int   // 每页行数
	PageIndex int   // 页索引（从 0 开始）
}
