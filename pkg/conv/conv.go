// Package conv 读取构建器的 options（map[string]any）。
//
// 同一个选项可能来自 YAML（int / float64）或环境变量（总是字符串），
// 这里的取值函数对两种来源一视同仁，取不到或无法转换时返回默认值。
package conv

import (
	"strconv"
	"strings"
	"time"
)

// ToFloat64 把数值或数值字符串转为 float64；bool 视为 1/0。
func ToFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case int32:
		return float64(val), true
	case uint64:
		return float64(val), true
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	}
	return 0, false
}

func lookup(m map[string]any, key string) (any, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m[key]
	return v, ok && v != nil
}

// ConfigGet 按 key 取 T，类型不符时返回 defaultVal（不做转换）。
func ConfigGet[T any](m map[string]any, key string, defaultVal T) T {
	v, ok := lookup(m, key)
	if !ok {
		return defaultVal
	}
	if t, ok := v.(T); ok {
		return t
	}
	return defaultVal
}

// ConfigGetInt64 取整数，小数部分截断
func ConfigGetInt64(m map[string]any, key string, defaultVal int64) int64 {
	v, ok := lookup(m, key)
	if !ok {
		return defaultVal
	}
	if s, isStr := v.(string); isStr {
		if n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			return n
		}
	}
	if f, ok := ToFloat64(v); ok {
		return int64(f)
	}
	return defaultVal
}

// ConfigGetDuration 取时长："30s" 按 time.ParseDuration 解析，数字视为秒。
func ConfigGetDuration(m map[string]any, key string, defaultVal time.Duration) time.Duration {
	v, ok := lookup(m, key)
	if !ok {
		return defaultVal
	}
	switch val := v.(type) {
	case time.Duration:
		return val
	case string:
		if d, err := time.ParseDuration(strings.TrimSpace(val)); err == nil {
			return d
		}
	}
	if f, ok := ToFloat64(v); ok {
		return time.Duration(f * float64(time.Second))
	}
	return defaultVal
}
