// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XMapper

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/eframework-org/GO.UTIL/XCollect"
)

var expressionOperators = map[string]Comparison{
	">":          OpGreater,
	">=":         OpGreaterOrEqual,
	"<":          OpLess,
	"<=":         OpLessOrEqual,
	"==":         OpEquals,
	"!=":         OpNotEquals,
	"like":       OpLike,
	"contains":   OpContains,
	"startswith": OpStartsWith,
	"endswith":   OpEndsWith,
	"in":         OpIn,
	"notin":      OpNotIn,
}

// expressionTerm 是表达式中的一个条件项或括号分组。
type expressionTerm struct {
	key     string           // 成员路径或 limit
	op      Comparison       // 比较操作符
	isnull  bool             // 是否为 isnull 操作符
	arg     int              // 参数索引
	connect Connect          // 与后一个条件项的连接方式
	group   []expressionTerm // 括号内的条件项
	not     bool             // 是否对括号分组取反
}

// expressionCache 缓存已解析的表达式。
var expressionCache = XCollect.NewMap()

// Where 按表达式添加条件，如 "Id > {0} && (Name == {1} || Name isnull {2})"。
//
// 支持的操作符：>、>=、<、<=、==、!=、like、contains、startswith、endswith、in、notin、isnull；
// 连接符 && 与 ||，括号外 || 连接的条件项组成一个括号分组，如 "a && b || c && d" 生成 a AND (b OR c) AND d；
// 括号可嵌套，! 对其后的括号分组取反，如 "a && !(b || c)" 生成 a AND NOT (b OR c)；
// 特殊键 limit 设置最大返回行数，仅可出现在括号外。
func (q *Query) Where(expr string, args ...any) error {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil
	}
	if count := strings.Count(expr, "{"); count != len(args) {
		return &InvalidQueryError{Reason: fmt.Sprintf("expression '%v' expects %v argument(s) but got %v", expr, count, len(args))}
	}

	terms, err := parseExpression(expr)
	if err != nil {
		return err
	}
	predicates, err := q.buildPredicates(terms, args, true)
	if err != nil {
		return err
	}
	q.predicates = append(q.predicates, predicates...)
	return nil
}

// buildPredicates 将条件项转换为条件，top 表示是否位于括号外。
func (q *Query) buildPredicates(terms []expressionTerm, args []any, top bool) ([]*Predicate, error) {
	var predicates []*Predicate
	for _, term := range terms {
		if term.group != nil {
			group, err := q.buildPredicates(term.group, args, false)
			if err != nil {
				return nil, err
			}
			predicates = append(predicates, &Predicate{Group: group, Not: term.not, Connect: term.connect})
			continue
		}
		if term.arg >= len(args) {
			return nil, &InvalidQueryError{Reason: fmt.Sprintf("parameter index %v exceeds argument count %v", term.arg, len(args))}
		}
		value := args[term.arg]
		if strings.EqualFold(term.key, "limit") {
			if !top {
				return nil, &InvalidQueryError{Reason: "limit is not allowed in brackets"}
			}
			n, ok := value.(int)
			if !ok {
				return nil, &InvalidQueryError{Reason: fmt.Sprintf("limit expects int but got %T", value)}
			}
			q.SetMaxResults(n)
			continue
		}
		op := term.op
		if term.isnull {
			isnull, ok := value.(bool)
			if !ok {
				return nil, &InvalidQueryError{Column: term.key, Reason: fmt.Sprintf("isnull expects bool but got %T", value)}
			}
			value = nil
			op = OpEquals
			if !isnull {
				op = OpNotEquals
			}
		}
		p, err := q.predicate(term.key, value, op, term.connect)
		if err != nil {
			return nil, err
		}
		predicates = append(predicates, p)
	}
	return predicates, nil
}

// parseExpression 解析表达式为条件项，解析结果按表达式缓存。
func parseExpression(expr string) ([]expressionTerm, error) {
	if cached, ok := expressionCache.Load(expr); ok {
		return cached.([]expressionTerm), nil
	}

	tokens := strings.Fields(strings.NewReplacer("(", " ( ", ")", " ) ").Replace(expr))
	lrIndex, err := bracketIndex(tokens)
	if err != nil {
		return nil, &InvalidQueryError{Reason: fmt.Sprintf("%v in expression '%v'", err, expr)}
	}
	terms, err := parseTerms(tokens, lrIndex, 0, len(tokens))
	if err != nil {
		if qerr, ok := err.(*InvalidQueryError); ok && qerr.Column == "" {
			qerr.Reason = fmt.Sprintf("%v in expression '%v'", qerr.Reason, expr)
		}
		return nil, err
	}

	expressionCache.LoadOrStore(expr, terms)
	return terms, nil
}

// bracketIndex 返回左括号与其匹配的右括号的索引映射。
func bracketIndex(tokens []string) (map[int]int, error) {
	var lefts []int
	lrIndex := make(map[int]int)
	for i, token := range tokens {
		switch token {
		case "(":
			lefts = append(lefts, i)
		case ")":
			if len(lefts) == 0 {
				return nil, fmt.Errorf("unmatched right bracket")
			}
			lrIndex[lefts[len(lefts)-1]] = i
			lefts = lefts[:len(lefts)-1]
		}
	}
	if len(lefts) > 0 {
		return nil, fmt.Errorf("unmatched left bracket")
	}
	return lrIndex, nil
}

// parseTerms 解析 tokens[from:to] 中的条件项，括号内的条件项递归解析。
func parseTerms(tokens []string, lrIndex map[int]int, from, to int) ([]expressionTerm, error) {
	var terms []expressionTerm
	var term expressionTerm
	not := false
	state := 0 // 0: 期望键，1: 期望操作符，2: 期望参数，3: 期望连接符
	for i := from; i < to; i++ {
		token := tokens[i]
		switch state {
		case 0:
			switch token {
			case "!":
				if not || i+1 >= to || tokens[i+1] != "(" {
					return nil, &InvalidQueryError{Reason: "'!' must be followed by a bracket"}
				}
				not = true
				continue
			case "(":
				right := lrIndex[i]
				if right == i+1 {
					return nil, &InvalidQueryError{Reason: "empty brackets"}
				}
				group, err := parseTerms(tokens, lrIndex, i+1, right)
				if err != nil {
					return nil, err
				}
				terms = append(terms, expressionTerm{group: group, not: not})
				not = false
				i = right
				state = 3
				continue
			case "&&", "||", ")":
				return nil, &InvalidQueryError{Reason: fmt.Sprintf("unexpected token '%v'", token)}
			}
			term = expressionTerm{key: token}
			if strings.EqualFold(token, "limit") {
				state = 2
			} else {
				state = 1
			}
		case 1:
			lower := strings.ToLower(token)
			if lower == "isnull" {
				term.isnull = true
			} else if op, ok := expressionOperators[lower]; ok {
				term.op = op
			} else {
				return nil, &InvalidQueryError{Column: term.key, Reason: fmt.Sprintf("unidentified operator '%v'", token)}
			}
			state = 2
		case 2:
			if !strings.HasPrefix(token, "{") || !strings.HasSuffix(token, "}") {
				return nil, &InvalidQueryError{Column: term.key, Reason: fmt.Sprintf("expects parameter but got '%v'", token)}
			}
			idx, err := strconv.Atoi(token[1 : len(token)-1])
			if err != nil || idx < 0 {
				return nil, &InvalidQueryError{Column: term.key, Reason: fmt.Sprintf("invalid parameter index '%v'", token)}
			}
			term.arg = idx
			terms = append(terms, term)
			state = 3
		case 3:
			switch token {
			case "&&":
				terms[len(terms)-1].connect = ConnectAnd
			case "||":
				terms[len(terms)-1].connect = ConnectOr
			default:
				return nil, &InvalidQueryError{Reason: fmt.Sprintf("expects && or || but got '%v'", token)}
			}
			state = 0
		}
	}
	if state != 3 {
		return nil, &InvalidQueryError{Reason: "incomplete expression"}
	}
	return terms, nil
}
