// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XMapper

import (
	"database/sql"
	"reflect"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// DbType 定义了列或参数的语义数据库类型。
type DbType int

const (
	DbUnknown    DbType = iota // 未知类型，由驱动自行推断
	DbBool                     // 布尔
	DbByte                     // 8 位整数
	DbInt16                    // 16 位整数
	DbInt32                    // 32 位整数
	DbInt64                    // 64 位整数
	DbFloat                    // 单精度浮点
	DbDouble                   // 双精度浮点
	DbDecimal                  // 定点小数
	DbString                   // 字符串
	DbBinary                   // 二进制
	DbDateTime                 // 日期时间
	DbDate                     // 仅日期
	DbTime                     // 仅时间
	DbStructured               // 结构化参数（表值参数、数组参数）
)

var dbTypeNames = [...]string{
	DbUnknown:    "Unknown",
	DbBool:       "Bool",
	DbByte:       "Byte",
	DbInt16:      "Int16",
	DbInt32:      "Int32",
	DbInt64:      "Int64",
	DbFloat:      "Float",
	DbDouble:     "Double",
	DbDecimal:    "Decimal",
	DbString:     "String",
	DbBinary:     "Binary",
	DbDateTime:   "DateTime",
	DbDate:       "Date",
	DbTime:       "Time",
	DbStructured: "Structured",
}

func (t DbType) String() string {
	if t >= 0 && int(t) < len(dbTypeNames) {
		return dbTypeNames[t]
	}
	return "Unknown"
}

var (
	typeTime     = reflect.TypeOf(time.Time{})
	typeDuration = reflect.TypeOf(time.Duration(0))
	typeDate     = reflect.TypeOf(civil.Date{})
	typeClock    = reflect.TypeOf(civil.Time{})
	typeDateTime = reflect.TypeOf(civil.DateTime{})
	typeDecimal  = reflect.TypeOf(decimal.Decimal{})
	typeBytes    = reflect.TypeOf([]byte(nil))
	typeRawBytes = reflect.TypeOf(sql.RawBytes(nil))
	typeScanner  = reflect.TypeOf((*sql.Scanner)(nil)).Elem()
)

// InferDbType 根据声明类型推断语义数据库类型。
// 指针（可空）类型会被解包，具名整数（枚举）按其底层类型推断。
func InferDbType(t reflect.Type) DbType {
	if t == nil {
		return DbUnknown
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	switch t {
	case typeTime, typeDateTime:
		return DbDateTime
	case typeDuration, typeClock:
		return DbTime
	case typeDate:
		return DbDate
	case typeDecimal:
		return DbDecimal
	case typeBytes, typeRawBytes:
		return DbBinary
	}

	switch t.Kind() {
	case reflect.Bool:
		return DbBool
	case reflect.Int8, reflect.Uint8:
		return DbByte
	case reflect.Int16, reflect.Uint16:
		return DbInt16
	case reflect.Int32, reflect.Uint32:
		return DbInt32
	case reflect.Int, reflect.Int64, reflect.Uint, reflect.Uint64:
		return DbInt64
	case reflect.Float32:
		return DbFloat
	case reflect.Float64:
		return DbDouble
	case reflect.String:
		return DbString
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return DbBinary
		}
	}
	return DbUnknown
}

// isScalarType 判断类型是否应作为单列值映射，而不是作为嵌套成员展开。
func isScalarType(t reflect.Type) bool {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if InferDbType(t) != DbUnknown {
		return true
	}
	return reflect.PointerTo(t).Implements(typeScanner)
}
