package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONMap 可直接映射到 jsonb 列的通用键值结构
// 纯数据结构,不依赖任何internal包
type JSONMap map[string]interface{}

// Value 实现 driver.Valuer
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan 实现 sql.Scanner
func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("JSONMap 不支持的扫描类型: %T", value)
	}

	return json.Unmarshal(data, m)
}

// StringArray 以 JSON 形式持久化的字符串数组列
// 在 postgres 与 sqlite 下行为一致,便于测试环境复用
type StringArray []string

// Value 实现 driver.Valuer
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	data, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan 实现 sql.Scanner
func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = nil
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("StringArray 不支持的扫描类型: %T", value)
	}

	return json.Unmarshal(data, a)
}
