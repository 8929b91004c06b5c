package utils

import (
	"encoding/json"

	"gorm.io/datatypes"
)

// StringPtr 返回字符串的指针，空字符串返回 nil
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// StringValue 解引用字符串指针，nil 返回空串
func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// MapToJSON 将字符串 map 转为 datatypes.JSON，空 map 返回 "{}"
func MapToJSON(m map[string]string) datatypes.JSON {
	if len(m) == 0 {
		return datatypes.JSON("{}")
	}
	b, err := json.Marshal(m)
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(b)
}

// JSONToMap 将 datatypes.JSON 解析为字符串 map，解析失败返回空 map
func JSONToMap(j datatypes.JSON) map[string]string {
	out := map[string]string{}
	if len(j) == 0 {
		return out
	}
	_ = json.Unmarshal(j, &out)
	return out
}
