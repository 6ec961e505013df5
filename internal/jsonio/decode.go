package jsonio

import (
	"strconv"

	"github.com/kolkov/hvmcheck/internal/values"
)

// decodeValue renders an interned handle as a plain JSON-able Go
// value: bool/int64/string for scalars, []interface{} for lists/sets,
// map[string]interface{} for dicts (by interned key, decoded
// recursively), and the raw offset path ([]int64) for addresses. Used
// throughout the report encoder so nothing downstream needs access to
// the value engine itself.
func decodeValue(engine *values.Engine, h values.H) interface{} {
	if h == values.Nil {
		return nil
	}
	v := engine.Get(h)
	switch v.Kind {
	case values.KindNil:
		return nil
	case values.KindBool:
		return v.Bool
	case values.KindInt:
		return v.Int
	case values.KindString:
		return v.Str
	case values.KindAddress:
		return v.Address
	case values.KindList:
		out := make([]interface{}, len(v.Elems))
		for i, e := range v.Elems {
			out[i] = decodeValue(engine, e)
		}
		return out
	case values.KindSet:
		out := make([]interface{}, len(v.Elems))
		for i, e := range v.Elems {
			out[i] = decodeValue(engine, e)
		}
		return out
	case values.KindDict:
		out := make(map[string]interface{}, len(v.Entries)/2)
		for i := 0; i+1 < len(v.Entries); i += 2 {
			out[decodeKey(engine, v.Entries[i])] = decodeValue(engine, v.Entries[i+1])
		}
		return out
	default:
		return nil
	}
}

// decodeKey stringifies a dict key for use as a JSON object key: JSON
// objects only admit string keys, so a non-string interned key (e.g.
// an integer) is rendered via its decoded value's default formatting.
func decodeKey(engine *values.Engine, h values.H) string {
	v := engine.Get(h)
	if v.Kind == values.KindString {
		return v.Str
	}
	return toKeyString(decodeValue(engine, h))
}

func toKeyString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return "?"
	}
}
