// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XMapper

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"reflect"
	"strconv"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Converter 是可插拔的列值转换器。
// FromDb 在内置转换之前执行，其输出将直接赋值给成员，不再经过内置转换。
// ToDb 在生成参数时执行。
type Converter interface {
	FromDb(value any, target reflect.Type) (any, error)
	ToDb(value any) (any, error)
}

// GetValue 沿成员路径读取 root 的值。
// 若中间节点为空（nil 指针），返回 (nil, false)，读取不会分配中间节点。
func GetValue(path MemberPath, root any) (any, bool) {
	v := reflect.ValueOf(root)
	for _, m := range path {
		for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
			if v.IsNil() {
				return nil, false
			}
			v = v.Elem()
		}
		if v.Kind() != reflect.Struct {
			return nil, false
		}
		v = v.Field(m.Index)
	}
	if v.Kind() == reflect.Ptr && v.IsNil() {
		return nil, true
	}
	return v.Interface(), true
}

// SetValue 沿成员路径写入 value，root 必须是结构体指针。
// 中间节点为空时会分配默认实例并挂载至父节点后继续；但若写入的值为空且该节点是末端成员的直接父节点，
// 则不会分配，写入被丢弃。
func SetValue(path MemberPath, value any, root any, converter Converter) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &MemberAssignmentError{Member: path.String(), ValueType: fmt.Sprintf("%T", value), Err: fmt.Errorf("%v", r)}
		}
	}()

	v := reflect.ValueOf(root)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return &MemberAssignmentError{Member: path.String(), ValueType: fmt.Sprintf("%T", value), Err: fmt.Errorf("root must be a non-nil pointer")}
	}
	absent := isAbsent(value)
	v = v.Elem()
	for i, m := range path[:len(path)-1] {
		node := v.Field(m.Index)
		if node.Kind() == reflect.Ptr {
			if node.IsNil() {
				if absent && i == len(path)-2 {
					return nil
				}
				node.Set(reflect.New(node.Type().Elem()))
			}
			node = node.Elem()
		}
		v = node
	}

	dst := v.Field(path.Terminal().Index)
	if converter != nil {
		cv, cerr := converter.FromDb(value, dst.Type())
		if cerr != nil {
			return &MemberAssignmentError{Member: path.String(), ValueType: fmt.Sprintf("%T", value), Err: cerr}
		}
		if cv == nil {
			dst.Set(reflect.Zero(dst.Type()))
			return nil
		}
		rv := reflect.ValueOf(cv)
		if !rv.Type().AssignableTo(dst.Type()) {
			return &MemberAssignmentError{Member: path.String(), ValueType: fmt.Sprintf("%T", cv), Err: fmt.Errorf("converter output is not assignable to %v", dst.Type())}
		}
		dst.Set(rv)
		return nil
	}

	if aerr := assign(dst, value); aerr != nil {
		return &MemberAssignmentError{Member: path.String(), ValueType: fmt.Sprintf("%T", value), Err: aerr}
	}
	return nil
}

// isAbsent 判断值是否表示数据库空值。
func isAbsent(value any) bool {
	if value == nil {
		return true
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice:
		return rv.IsNil()
	}
	if valuer, ok := value.(interface{ IsNull() bool }); ok {
		return valuer.IsNull()
	}
	// sql.NullString、decimal.NullDecimal 等可空类型的 Valid 为 false 时 Value 返回 nil。
	if valuer, ok := value.(driver.Valuer); ok {
		if v, err := valuer.Value(); err == nil && v == nil {
			return true
		}
	}
	return false
}

// assign 将数据库返回的值转换并写入 dst。
func assign(dst reflect.Value, value any) error {
	if isAbsent(value) {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}

	dt := dst.Type()

	// 可空类型：解包至底层存储类型。
	if dt.Kind() == reflect.Ptr {
		elem := reflect.New(dt.Elem())
		if err := assign(elem.Elem(), value); err != nil {
			return err
		}
		dst.Set(elem)
		return nil
	}

	src := reflect.ValueOf(value)
	if src.Type() == dt {
		dst.Set(src)
		return nil
	}

	if dst.CanAddr() {
		if scanner, ok := dst.Addr().Interface().(sql.Scanner); ok {
			return scanner.Scan(value)
		}
	}

	switch dt {
	case typeDate:
		return assignDate(dst, value)
	case typeClock:
		return assignClock(dst, value)
	case typeDateTime:
		if t, ok := value.(time.Time); ok {
			dst.Set(reflect.ValueOf(civil.DateTimeOf(t)))
			return nil
		}
		s, ok := asString(value)
		if !ok {
			return fmt.Errorf("cannot convert %T to civil.DateTime", value)
		}
		d, err := civil.ParseDateTime(s)
		if err != nil {
			return err
		}
		dst.Set(reflect.ValueOf(d))
		return nil
	case typeTime:
		s, ok := asString(value)
		if !ok {
			return fmt.Errorf("cannot convert %T to time.Time", value)
		}
		t, err := parseTime(s)
		if err != nil {
			return err
		}
		dst.Set(reflect.ValueOf(t))
		return nil
	case typeDuration:
		switch nv := value.(type) {
		case civil.Time:
			dst.SetInt(int64(clockDuration(nv)))
			return nil
		case time.Time:
			dst.SetInt(int64(clockDuration(civil.TimeOf(nv))))
			return nil
		}
	}

	switch dt.Kind() {
	case reflect.String:
		if s, ok := asString(value); ok {
			dst.SetString(s)
			return nil
		}
		switch src.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
			reflect.Float32, reflect.Float64, reflect.Bool:
			dst.SetString(fmt.Sprint(value))
			return nil
		}
	case reflect.Bool:
		switch nv := value.(type) {
		case bool:
			dst.SetBool(nv)
			return nil
		case int64:
			dst.SetBool(nv != 0)
			return nil
		}
		if s, ok := asString(value); ok {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return err
			}
			dst.SetBool(b)
			return nil
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 具名整数（枚举）按底层序数赋值。
		n, err := asInt64(value)
		if err != nil {
			return err
		}
		if dst.OverflowInt(n) {
			return fmt.Errorf("value %v overflows %v", n, dt)
		}
		dst.SetInt(n)
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := asInt64(value)
		if err != nil {
			return err
		}
		if n < 0 || dst.OverflowUint(uint64(n)) {
			return fmt.Errorf("value %v overflows %v", n, dt)
		}
		dst.SetUint(uint64(n))
		return nil
	case reflect.Float32, reflect.Float64:
		f, err := asFloat64(value)
		if err != nil {
			return err
		}
		dst.SetFloat(f)
		return nil
	case reflect.Slice:
		if dt.Elem().Kind() == reflect.Uint8 {
			switch nv := value.(type) {
			case []byte:
				dst.SetBytes(append([]byte(nil), nv...))
				return nil
			case string:
				dst.SetBytes([]byte(nv))
				return nil
			}
		}
	}

	if src.Type().AssignableTo(dt) {
		dst.Set(src)
		return nil
	}
	if src.Type().ConvertibleTo(dt) {
		dst.Set(src.Convert(dt))
		return nil
	}
	return fmt.Errorf("cannot convert %T to %v", value, dt)
}

// assignDate 将时间戳或文本转换为仅日期类型。
func assignDate(dst reflect.Value, value any) error {
	switch nv := value.(type) {
	case time.Time:
		dst.Set(reflect.ValueOf(civil.DateOf(nv)))
		return nil
	case civil.DateTime:
		dst.Set(reflect.ValueOf(nv.Date))
		return nil
	}
	s, ok := asString(value)
	if !ok {
		return fmt.Errorf("cannot convert %T to civil.Date", value)
	}
	if len(s) > 10 {
		t, err := parseTime(s)
		if err != nil {
			return err
		}
		dst.Set(reflect.ValueOf(civil.DateOf(t)))
		return nil
	}
	d, err := civil.ParseDate(s)
	if err != nil {
		return err
	}
	dst.Set(reflect.ValueOf(d))
	return nil
}

// assignClock 将时间戳、时长或文本转换为仅时间类型。
func assignClock(dst reflect.Value, value any) error {
	switch nv := value.(type) {
	case time.Time:
		dst.Set(reflect.ValueOf(civil.TimeOf(nv)))
		return nil
	case time.Duration:
		dst.Set(reflect.ValueOf(durationClock(nv)))
		return nil
	case civil.DateTime:
		dst.Set(reflect.ValueOf(nv.Time))
		return nil
	}
	s, ok := asString(value)
	if !ok {
		return fmt.Errorf("cannot convert %T to civil.Time", value)
	}
	t, err := civil.ParseTime(s)
	if err != nil {
		return err
	}
	dst.Set(reflect.ValueOf(t))
	return nil
}

// durationClock 将一天内的时长转换为仅时间类型。
func durationClock(d time.Duration) civil.Time {
	d = d % (24 * time.Hour)
	if d < 0 {
		d += 24 * time.Hour
	}
	return civil.Time{
		Hour:       int(d / time.Hour),
		Minute:     int(d % time.Hour / time.Minute),
		Second:     int(d % time.Minute / time.Second),
		Nanosecond: int(d % time.Second),
	}
}

// clockDuration 将仅时间类型转换为一天内的时长。
func clockDuration(t civil.Time) time.Duration {
	return time.Duration(t.Hour)*time.Hour +
		time.Duration(t.Minute)*time.Minute +
		time.Duration(t.Second)*time.Second +
		time.Duration(t.Nanosecond)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as time", s)
}

func asString(value any) (string, bool) {
	switch nv := value.(type) {
	case string:
		return nv, true
	case []byte:
		return string(nv), true
	case fmt.Stringer:
		return nv.String(), true
	}
	return "", false
}

func asInt64(value any) (int64, error) {
	switch nv := value.(type) {
	case int64:
		return nv, nil
	case bool:
		if nv {
			return 1, nil
		}
		return 0, nil
	case decimal.Decimal:
		return nv.IntPart(), nil
	case []byte:
		return strconv.ParseInt(string(nv), 10, 64)
	case string:
		return strconv.ParseInt(nv, 10, 64)
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return int64(rv.Float()), nil
	}
	return 0, fmt.Errorf("cannot convert %T to integer", value)
}

func asFloat64(value any) (float64, error) {
	switch nv := value.(type) {
	case float64:
		return nv, nil
	case decimal.Decimal:
		f, _ := nv.Float64()
		return f, nil
	case []byte:
		return strconv.ParseFloat(string(nv), 64)
	case string:
		return strconv.ParseFloat(nv, 64)
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	}
	return 0, fmt.Errorf("cannot convert %T to float", value)
}
