package vectorstore

import (
	"fmt"
	"sort"

	chroma "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/qdrant/go-client/qdrant"
)

// Filters are exact-match predicates: a document matches when, for every
// key, its metadata value equals the filter value.

// sortedKeys returns the filter keys in a stable order so that requests
// built from the same filter are identical.
func sortedKeys(filter Metadata) []string {
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// chromaWhere translates filter to a Chroma where clause. A single key is
// sent as-is; several keys are combined with $and since Chroma rejects
// multi-key where objects.
func chromaWhere(filter Metadata) (chroma.WhereClause, error) {
	if len(filter) == 0 {
		return nil, nil
	}
	filter = filter.Normalize()
	clauses := make([]chroma.WhereClause, 0, len(filter))
	for _, key := range sortedKeys(filter) {
		switch v := filter[key].(type) {
		case string:
			clauses = append(clauses, chroma.EqString(key, v))
		case int64:
			clauses = append(clauses, chroma.EqInt(key, int(v)))
		case bool:
			clauses = append(clauses, chroma.EqBool(key, v))
		case float64:
			if v == float64(int64(v)) {
				clauses = append(clauses, chroma.EqInt(key, int(v)))
			} else {
				clauses = append(clauses, chroma.EqFloat(key, float32(v)))
			}
		default:
			return nil, fmt.Errorf("filter %q: unsupported value type %T", key, v)
		}
	}
	if len(clauses) == 1 {
		return clauses[0], nil
	}
	return chroma.And(clauses...), nil
}

// qdrantFilter translates filter to Qdrant Must conditions.
// Floats and nested values cannot be matched exactly and are rejected.
func qdrantFilter(filter Metadata) (*qdrant.Filter, error) {
	if len(filter) == 0 {
		return nil, nil
	}
	filter = filter.Normalize()
	conditions := make([]*qdrant.Condition, 0, len(filter))
	for _, key := range sortedKeys(filter) {
		var match *qdrant.Match
		switch v := filter[key].(type) {
		case string:
			match = &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: v}}
		case int64:
			match = &qdrant.Match{MatchValue: &qdrant.Match_Integer{Integer: v}}
		case bool:
			match = &qdrant.Match{MatchValue: &qdrant.Match_Boolean{Boolean: v}}
		case float64:
			if v != float64(int64(v)) {
				return nil, fmt.Errorf("filter %q: exact match on non-integer number %v is not supported", key, v)
			}
			match = &qdrant.Match{MatchValue: &qdrant.Match_Integer{Integer: int64(v)}}
		default:
			return nil, fmt.Errorf("filter %q: unsupported value type %T", key, v)
		}
		conditions = append(conditions, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{Key: key, Match: match},
			},
		})
	}
	return &qdrant.Filter{Must: conditions}, nil
}

// chromemWhere translates filter to chromem's string equality map.
func chromemWhere(filter Metadata) map[string]string {
	if len(filter) == 0 {
		return nil
	}
	where := make(map[string]string, len(filter))
	for k, v := range filter {
		where[k] = scalarString(v)
	}
	return where
}
