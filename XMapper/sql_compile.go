// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XMapper

import (
	"fmt"
	"reflect"
	"strings"
)

const (
	pagingRowCountParam = "PagingRowCount"
	pagingOffsetParam   = "PagingOffset"
	maxResultsParam     = "MaxResults"
)

// Compiler 将操作类型、映射、查询及实体编译为语句。
// 编译过程是同步的，不涉及任何 I/O，编译错误在执行前返回。
type Compiler struct {
	dialect Dialect
}

// NewCompiler 创建编译器，dialect 为空时使用 MySQL 方言。
func NewCompiler(dialect Dialect) *Compiler {
	if dialect == nil {
		dialect = NewMySQLDialect(false)
	}
	return &Compiler{dialect: dialect}
}

// Dialect 返回编译器使用的方言。
func (c *Compiler) Dialect() Dialect { return c.dialect }

// Compile 按操作类型编译语句。
// Select 使用 query 及 cardinality；Insert 使用 entity 及 identityInsert；
// Update、Delete 使用 entity 的主键值或 query 的条件；Upsert 使用 entity；Custom 使用 query 的原始 SQL。
func (c *Compiler) Compile(kind DmlKind, cardinality Cardinality, mapping *Mapping, query *Query, entity any, identityInsert bool) (*Statement, error) {
	switch kind {
	case DmlSelect:
		return c.Select(mapping, query, cardinality)
	case DmlInsert:
		return c.Insert(mapping, entity, identityInsert)
	case DmlUpdate:
		return c.Update(mapping, entity, query)
	case DmlUpsert:
		return c.Upsert(mapping, entity)
	case DmlDelete:
		return c.Delete(mapping, entity, query)
	case DmlCustom:
		if query == nil {
			return nil, &InvalidQueryError{Reason: "custom statement requires a query with sql"}
		}
		target := TargetEntity
		if cardinality == NoRows {
			target = TargetNone
		}
		return c.Custom(mapping, query.sql, cardinality, target, query.params...), nil
	}
	return nil, &InvalidQueryError{Reason: fmt.Sprintf("unsupported dml kind %v", kind)}
}

// Select 编译查询语句。若 query 设置了原始 SQL，则编译为自定义语句并跳过数据表校验。
func (c *Compiler) Select(mapping *Mapping, query *Query, cardinality Cardinality) (*Statement, error) {
	if query == nil {
		query = NewQuery(mapping)
	}
	if query.sql != "" {
		stmt := c.Custom(mapping, query.sql, cardinality, TargetEntity, query.params...)
		stmt.ReadOnly = query.readOnly
		return stmt, nil
	}
	if err := mapping.Validate(); err != nil {
		return nil, err
	}

	stmt := &Statement{
		Kind:        DmlSelect,
		Cardinality: cardinality,
		Target:      TargetEntity,
		Mapping:     mapping,
		ReadOnly:    query.readOnly,
		Select:      selectList(mapping),
		From:        mapping.Table(),
	}
	if err := compileWhere(stmt, query.predicates); err != nil {
		return nil, err
	}
	stmt.OrderBy = orderList(query.orders)

	switch {
	case cardinality == SingleRow:
		stmt.Limit = c.dialect.SingleRow()
	case query.paging:
		rowCount := stmt.addParam(pagingRowCountParam, query.rowCount, DbInt32)
		offset := stmt.addParam(pagingOffsetParam, query.rowCount*query.pageIndex, DbInt32)
		stmt.Limit = c.dialect.Paging(rowCount, offset)
		stmt.Count = true
	case query.maxResults > 0:
		stmt.Limit = c.dialect.MaxResults(stmt.addParam(maxResultsParam, query.maxResults, DbInt32))
	}
	stmt.Params = append(stmt.Params, query.params...)
	return stmt, nil
}

// Scalar 编译返回单个标量的查询语句，如 COUNT(*)、MAX(列)。
func (c *Compiler) Scalar(mapping *Mapping, query *Query, expr string, scalarType reflect.Type) (*Statement, error) {
	if query == nil {
		query = NewQuery(mapping)
	}
	if err := mapping.Validate(); err != nil {
		return nil, err
	}
	stmt := &Statement{
		Kind:        DmlSelect,
		Cardinality: SingleRow,
		Target:      TargetScalar,
		ScalarType:  scalarType,
		Mapping:     mapping,
		ReadOnly:    query.readOnly,
		Select:      expr,
		From:        mapping.Table(),
	}
	if err := compileWhere(stmt, query.predicates); err != nil {
		return nil, err
	}
	stmt.Params = append(stmt.Params, query.params...)
	return stmt, nil
}

// Insert 编译插入语句。列清单排除只读列，除非指定 identityInsert，否则排除数据库生成的列；
// 未指定 identityInsert 时，输出子句请求返回生成的标识。
func (c *Compiler) Insert(mapping *Mapping, entity any, identityInsert bool) (*Statement, error) {
	if err := mapping.Validate(); err != nil {
		return nil, err
	}
	if err := checkEntity(mapping, entity); err != nil {
		return nil, err
	}

	stmt := &Statement{Kind: DmlInsert, Cardinality: NoRows, Target: TargetNone, Mapping: mapping, From: mapping.Table()}
	var columns []*Column
	for _, col := range mapping.Columns() {
		if col.ReadOnly || (col.Identity && !identityInsert) {
			continue
		}
		columns = append(columns, col)
	}
	if _, err := c.insertValues(stmt, columns, entity); err != nil {
		return nil, err
	}

	var identity *Column
	if !identityInsert {
		identity = mapping.Identity()
	}
	c.dialect.InsertOutput(stmt, identity)
	if stmt.OutputMode == OutputScalar {
		stmt.Cardinality = SingleRow
		stmt.Target = TargetScalar
		stmt.ScalarType = reflect.TypeFor[int64]()
	}
	return stmt, nil
}

// Update 编译更新语句。SET 子句排除主键及只读列；
// WHERE 子句优先使用 query 的条件，否则使用实体的主键值。
func (c *Compiler) Update(mapping *Mapping, entity any, query *Query) (*Statement, error) {
	if err := mapping.Validate(); err != nil {
		return nil, err
	}
	if err := checkEntity(mapping, entity); err != nil {
		return nil, err
	}

	stmt := &Statement{Kind: DmlUpdate, Cardinality: NoRows, Target: TargetNone, Mapping: mapping, From: mapping.Table()}
	var sets []string
	for _, col := range mapping.Columns() {
		if col.PrimaryKey || col.ReadOnly {
			continue
		}
		value, err := entityValue(col, entity)
		if err != nil {
			return nil, err
		}
		ref := stmt.addParam(fmt.Sprintf("S%d", len(sets)), value, col.Type)
		sets = append(sets, col.Name+" = "+ref)
	}
	if len(sets) == 0 {
		return nil, newMappingError(mapping.Type().String(), "", "no updatable column")
	}
	stmt.Set = strings.Join(sets, ", ")

	if err := c.entityWhere(stmt, mapping, entity, query); err != nil {
		return nil, err
	}
	return stmt, nil
}

// Upsert 编译以主键为冲突键的插入或更新语句。
// 新插入时返回生成的标识，更新时返回 -1；若数据库生成的主键尚未赋值，则编译为插入语句。
func (c *Compiler) Upsert(mapping *Mapping, entity any) (*Statement, error) {
	if err := mapping.Validate(); err != nil {
		return nil, err
	}
	if err := mapping.validateKeys(); err != nil {
		return nil, err
	}
	if err := checkEntity(mapping, entity); err != nil {
		return nil, err
	}

	identity := mapping.Identity()
	keys := mapping.PrimaryKeys()
	if identity != nil {
		unassigned := true
		for _, key := range keys {
			value, err := entityValue(key, entity)
			if err != nil {
				return nil, err
			}
			if !isZeroValue(value) {
				unassigned = false
				break
			}
		}
		if unassigned {
			stmt, err := c.Insert(mapping, entity, false)
			if err != nil {
				return nil, err
			}
			stmt.Kind = DmlUpsert
			return stmt, nil
		}
	}

	stmt := &Statement{Kind: DmlUpsert, Cardinality: NoRows, Target: TargetNone, Mapping: mapping, From: mapping.Table()}
	var columns, assigns []*Column
	for _, col := range mapping.Columns() {
		if col.ReadOnly {
			continue
		}
		columns = append(columns, col)
		if !col.PrimaryKey {
			assigns = append(assigns, col)
		}
	}
	refs, err := c.insertValues(stmt, columns, entity)
	if err != nil {
		return nil, err
	}
	keyRefs := make([]string, len(keys))
	for i, key := range keys {
		keyRefs[i] = refs[key]
	}
	c.dialect.Upsert(stmt, keys, keyRefs, assigns, identity)
	if stmt.OutputMode == OutputScalar || stmt.OutputMode == OutputProbe {
		stmt.Cardinality = SingleRow
		stmt.Target = TargetScalar
		stmt.ScalarType = reflect.TypeFor[int64]()
	}
	return stmt, nil
}

// Delete 编译删除语句。WHERE 子句优先使用 query 的条件，否则使用实体的主键值；
// 二者均未提供时返回 *MappingError，删除所有数据行需使用 DeleteAll。
func (c *Compiler) Delete(mapping *Mapping, entity any, query *Query) (*Statement, error) {
	if err := mapping.Validate(); err != nil {
		return nil, err
	}
	if entity == nil && (query == nil || len(query.predicates) == 0) {
		return nil, newMappingError(mapping.Type().String(), "", "delete requires an entity or predicates")
	}
	stmt := &Statement{Kind: DmlDelete, Cardinality: NoRows, Target: TargetNone, Mapping: mapping, From: mapping.Table()}
	if entity != nil {
		if err := checkEntity(mapping, entity); err != nil {
			return nil, err
		}
	}
	if err := c.entityWhere(stmt, mapping, entity, query); err != nil {
		return nil, err
	}
	return stmt, nil
}

// DeleteAll 编译不带条件的删除语句，删除数据表的所有数据行。
func (c *Compiler) DeleteAll(mapping *Mapping) (*Statement, error) {
	if err := mapping.Validate(); err != nil {
		return nil, err
	}
	return &Statement{Kind: DmlDelete, Cardinality: NoRows, Target: TargetNone, Mapping: mapping, From: mapping.Table()}, nil
}

// Custom 编译自定义语句，不校验数据表。
func (c *Compiler) Custom(mapping *Mapping, sql string, cardinality Cardinality, target Target, params ...*Parameter) *Statement {
	return &Statement{
		Kind:        DmlCustom,
		Cardinality: cardinality,
		Target:      target,
		Mapping:     mapping,
		Custom:      sql,
		Params:      append([]*Parameter(nil), params...),
	}
}

// insertValues 生成 INSERT INTO 的列清单及 VALUES 列表，返回各列的参数引用。
func (c *Compiler) insertValues(stmt *Statement, columns []*Column, entity any) (map[*Column]string, error) {
	refs := make(map[*Column]string, len(columns))
	values := make([]string, len(columns))
	for i, col := range columns {
		value, err := entityValue(col, entity)
		if err != nil {
			return nil, err
		}
		refs[col] = stmt.addParam(fmt.Sprintf("V%d", i), value, col.Type)
		values[i] = refs[col]
	}
	stmt.InsertInto = stmt.From + " (" + columnNames(columns) + ")"
	stmt.Values = strings.Join(values, ",")
	return refs, nil
}

// entityWhere 生成更新或删除的 WHERE 子句。
func (c *Compiler) entityWhere(stmt *Statement, mapping *Mapping, entity any, query *Query) error {
	if query != nil && len(query.predicates) > 0 {
		if err := compileWhere(stmt, query.predicates); err != nil {
			return err
		}
		stmt.Params = append(stmt.Params, query.params...)
		return nil
	}
	if err := mapping.validateKeys(); err != nil {
		return err
	}
	if entity == nil {
		return newMappingError(mapping.Type().String(), "", "entity is required to build the primary key predicate")
	}
	keys := mapping.PrimaryKeys()
	predicates := make([]*Predicate, len(keys))
	for i, key := range keys {
		value, err := entityValue(key, entity)
		if err != nil {
			return err
		}
		predicates[i] = &Predicate{Column: key, Type: key.Type, Value: value, Comparison: OpEquals}
	}
	return compileWhere(stmt, predicates)
}

// selectList 生成 SELECT 列表。
func selectList(mapping *Mapping) string {
	parts := make([]string, len(mapping.Columns()))
	for i, col := range mapping.Columns() {
		if col.Alias != "" {
			parts[i] = col.Name + " AS " + col.Alias
		} else {
			parts[i] = col.Name
		}
	}
	return strings.Join(parts, ",")
}

// orderList 生成 ORDER BY 列表。
func orderList(orders []*Order) string {
	if len(orders) == 0 {
		return ""
	}
	parts := make([]string, len(orders))
	for i, o := range orders {
		parts[i] = o.Column.Name + " " + o.Direction.String()
	}
	return strings.Join(parts, ",")
}

// checkEntity 校验实体是否为映射的目标类型或其指针。
func checkEntity(mapping *Mapping, entity any) error {
	if entity == nil {
		return newMappingError(mapping.Type().String(), "", "nil entity")
	}
	t := reflect.TypeOf(entity)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t != mapping.Type() {
		return newMappingError(mapping.Type().String(), "", "entity type %v mismatches", t)
	}
	return nil
}

// entityValue 读取实体的列值，存在转换器时转换为数据库的值。
func entityValue(col *Column, entity any) (any, error) {
	value, ok := GetValue(col.Path, entity)
	if !ok {
		value = nil
	}
	if col.Converter != nil {
		cv, err := col.Converter.ToDb(value)
		if err != nil {
			return nil, &MemberAssignmentError{Member: col.Path.String(), ValueType: fmt.Sprintf("%T", value), Err: err}
		}
		return cv, nil
	}
	return value, nil
}

func isZeroValue(value any) bool {
	if isAbsent(value) {
		return true
	}
	return reflect.ValueOf(value).IsZero()
}
