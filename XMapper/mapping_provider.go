// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XMapper

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/eframework-org/GO.UTIL/XCollect"
	"github.com/eframework-org/GO.UTIL/XLog"
)

// IMappingTable 是声明式映射（注解）的接口，实现该接口的类型将按 orm 结构体标签解析列映射。
type IMappingTable interface {
	// TableName 返回数据表名称。
	TableName() string
}

// IMappingSource 是可选的数据源声明接口。
type IMappingSource interface {
	// AliasName 返回数据源别名。
	AliasName() string
}

// IMappingDefine 是约定式映射的接口，类型通过该方法显式声明映射关系。
type IMappingDefine interface {
	DefineMapping(mapping *Mapping)
}

// mappingCache 是按类型索引的映射缓存。
var mappingCache = XCollect.NewMap()

// mappingRegistry 是显式注册的映射。
var mappingRegistry = XCollect.NewMap()

// Register 显式注册映射，优先级高于注解及约定。
// 注册会清除该类型已缓存的映射。
func Register(mapping *Mapping) {
	if mapping == nil {
		XLog.Panic("XMapper.Register: nil mapping.")
		return
	}
	mappingRegistry.Delete(mapping.Type())
	mappingRegistry.LoadOrStore(mapping.Type(), mapping)
	mappingCache.Delete(mapping.Type())
}

// MappingOf 返回类型 T 的映射。
func MappingOf[T any]() (*Mapping, error) {
	return MappingFor(reflect.TypeFor[T]())
}

// MappingFor 返回指定类型的映射。
// 解析顺序为：显式注册、注解（TableName 及 orm 标签）、约定（DefineMapping）。
// 首次解析成功的映射将被缓存，并发解析同一类型时只会有一个结果被保留。
func MappingFor(t reflect.Type) (*Mapping, error) {
	if t == nil {
		return nil, newMappingError("<nil>", "", "nil target type")
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if value, ok := mappingCache.Load(t); ok {
		return value.(*Mapping), nil
	}

	mapping, err := resolveMapping(t)
	if err != nil {
		return nil, err
	}
	actual, _ := mappingCache.LoadOrStore(t, mapping)
	return actual.(*Mapping), nil
}

// ResetMappings 清除所有已缓存及显式注册的映射。
func ResetMappings() {
	mappingCache.Range(func(key, _ any) bool {
		mappingCache.Delete(key)
		return true
	})
	mappingRegistry.Range(func(key, _ any) bool {
		mappingRegistry.Delete(key)
		return true
	})
}

func resolveMapping(t reflect.Type) (mapping *Mapping, err error) {
	if value, ok := mappingRegistry.Load(t); ok {
		return value.(*Mapping), nil
	}
	if t.Kind() != reflect.Struct {
		return nil, newMappingError(t.String(), "", "target type must be a struct")
	}

	// 声明期的误用以 panic 报告，此处统一转换为错误返回。
	defer func() {
		if r := recover(); r != nil {
			if merr, ok := r.(*MappingError); ok {
				mapping, err = nil, merr
				return
			}
			panic(r)
		}
	}()

	ptr := reflect.New(t).Interface()
	if table, ok := ptr.(IMappingTable); ok {
		mapping = NewMappingOf(t).DeclareTable(table.TableName())
		if source, ok := ptr.(IMappingSource); ok {
			mapping.DeclareSource(source.AliasName())
		}
		declareTags(mapping, t, "")
		if len(mapping.PrimaryKeys()) == 0 {
			declareConventionKey(mapping)
		}
		return mapping, nil
	}
	if define, ok := ptr.(IMappingDefine); ok {
		mapping = NewMappingOf(t)
		define.DefineMapping(mapping)
		return mapping, nil
	}
	return nil, newMappingError(t.String(), "", "no mapping was registered, annotated or defined")
}

// columnTag 是 orm 标签解析后的结果。
type columnTag struct {
	skip     bool
	inline   bool
	pk       bool
	auto     bool
	assigned bool
	readonly bool
	column   string
	alias    string
	size     int
}

// parseColumnTag 解析形如 `orm:"column(name);pk;auto;size(32)"` 的标签。
func parseColumnTag(tag string) columnTag {
	var ct columnTag
	if tag == "-" {
		ct.skip = true
		return ct
	}
	for _, part := range strings.Split(tag, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, arg := part, ""
		if i := strings.Index(part, "("); i > 0 && strings.HasSuffix(part, ")") {
			name, arg = part[:i], part[i+1:len(part)-1]
		}
		switch strings.ToLower(name) {
		case "-":
			ct.skip = true
		case "inline":
			ct.inline = true
		case "pk":
			ct.pk = true
		case "auto":
			ct.auto = true
		case "assigned":
			ct.assigned = true
		case "readonly":
			ct.readonly = true
		case "column":
			ct.column = arg
		case "alias":
			ct.alias = arg
		case "size":
			ct.size, _ = strconv.Atoi(arg)
		}
	}
	return ct
}

// declareTags 按结构体标签递归声明列，匿名或标记 inline 的结构体字段将被展开为嵌套成员路径。
func declareTags(mapping *Mapping, t reflect.Type, prefix string) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		tag := parseColumnTag(field.Tag.Get("orm"))
		if tag.skip {
			continue
		}
		path := prefix + field.Name

		if !isScalarType(field.Type) {
			ft := field.Type
			for ft.Kind() == reflect.Ptr {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct && (field.Anonymous || tag.inline) {
				declareTags(mapping, ft, path+".")
			}
			continue
		}

		var c *Column
		if tag.pk {
			c = mapping.DeclarePrimaryKey(path, tag.column)
			if tag.assigned {
				c.AsAssigned()
			}
		} else {
			c = mapping.DeclareColumn(path, tag.column)
			if tag.auto {
				c.AsIdentity()
			}
		}
		if tag.readonly {
			c.AsReadOnly()
		}
		if tag.alias != "" {
			c.WithAlias(tag.alias)
		}
		if tag.size > 0 {
			c.WithLength(tag.size)
		}
	}
}

// declareConventionKey 在未显式声明主键时，将名为 Id 的整数列视为自增主键。
func declareConventionKey(mapping *Mapping) {
	for _, c := range mapping.Columns() {
		if len(c.Path) != 1 || !strings.EqualFold(c.Path[0].Name, "Id") {
			continue
		}
		switch c.Type {
		case DbInt16, DbInt32, DbInt64:
			c.PrimaryKey = true
			c.Identity = true
		}
		return
	}
}
