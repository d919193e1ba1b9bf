package qdrant

import (
	"github.com/qdrant/go-client/qdrant"
)

// FromValueMap converts a Qdrant payload into plain Go values, the inverse of
// qdrant.TryValueMap for the types it produces.
func FromValueMap(m map[string]*qdrant.Value) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = fromValue(v)
	}
	return out
}

func fromValue(v *qdrant.Value) any {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_StructValue:
		return FromValueMap(kind.StructValue.GetFields())
	case *qdrant.Value_ListValue:
		values := kind.ListValue.GetValues()
		items := make([]any, 0, len(values))
		for _, item := range values {
			items = append(items, fromValue(item))
		}
		return items
	default:
		return nil
	}
}
