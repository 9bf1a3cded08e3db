// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XMapper

import (
	"fmt"
	"reflect"
	"strings"
)

// Member 描述了成员路径中的一个节点。
type Member struct {
	Name  string       // 字段名称
	Index int          // 字段在所属结构体中的索引
	Type  reflect.Type // 字段的声明类型
	Owner reflect.Type // 所属结构体类型
}

// MemberPath 是从根实例到叶子值的有序成员链，最深的成员位于末尾。
type MemberPath []Member

// String 返回以点号连接的成员路径，如 Meta.Identification.Guid。
func (p MemberPath) String() string {
	names := make([]string, len(p))
	for i, m := range p {
		names[i] = m.Name
	}
	return strings.Join(names, ".")
}

// Terminal 返回路径末端的成员。
func (p MemberPath) Terminal() Member {
	return p[len(p)-1]
}

// ResolvePath 在 root 类型上解析以点号分隔的成员路径。
// 中间节点必须是结构体或结构体指针，所有字段必须是可导出的。
func ResolvePath(root reflect.Type, path string) (MemberPath, error) {
	if root == nil {
		return nil, fmt.Errorf("nil root type")
	}
	for root.Kind() == reflect.Ptr {
		root = root.Elem()
	}
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("empty member path")
	}

	names := strings.Split(path, ".")
	result := make(MemberPath, 0, len(names))
	owner := root
	for i, name := range names {
		if owner.Kind() != reflect.Struct {
			return nil, fmt.Errorf("member %v of %v is not a struct", strings.Join(names[:i], "."), root)
		}
		field, ok := owner.FieldByName(name)
		if !ok || len(field.Index) != 1 {
			return nil, fmt.Errorf("member %v was not found in %v", name, owner)
		}
		if !field.IsExported() {
			return nil, fmt.Errorf("member %v of %v is unexported", name, owner)
		}
		result = append(result, Member{Name: name, Index: field.Index[0], Type: field.Type, Owner: owner})

		next := field.Type
		for next.Kind() == reflect.Ptr {
			next = next.Elem()
		}
		owner = next
	}
	return result, nil
}
