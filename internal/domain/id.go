package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// NormalizeID flatten the various shapes lesson and course ids arrive in
// (plain strings, numbers, decoded JSON objects carrying an "_id" or "id"
// field) into a canonical string. Unknown shapes yield "".
func NormalizeID(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case map[string]interface{}:
		if id, ok := v["_id"]; ok {
			return NormalizeID(id)
		}
		if id, ok := v["id"]; ok {
			return NormalizeID(id)
		}
		return ""
	case fmt.Stringer:
		return v.String()
	default:
		return ""
	}
}
