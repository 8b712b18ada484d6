package graph

import (
	"fmt"
	"reflect"
	"sort"
)

// Reducer merges one node's update for a field into the current value.
// Reducers must be pure: same (current, update) always produces the same
// result. The scheduler feeds them contributions in canonical node-name
// order, so merged state is reproducible regardless of which goroutine
// finished first.
type Reducer func(current, update any) (any, error)

// Contribution is one node's partial update, tagged with the node name
// that defines its position in the canonical merge order.
type Contribution struct {
	Node   string
	Update map[string]any
}

// Schema binds state fields to reducers. Fields without a registered
// reducer merge by overwrite.
type Schema struct {
	reducers map[string]Reducer
}

// NewSchema creates a schema with no registered reducers.
func NewSchema() *Schema {
	return &Schema{
		reducers: make(map[string]Reducer),
	}
}

// RegisterReducer binds a reducer to a field name and returns the schema
// for chaining.
func (s *Schema) RegisterReducer(field string, reducer Reducer) *Schema {
	s.reducers[field] = reducer
	return s
}

// Apply merges the contributions into the current state, field by field.
// Contributions must already be in canonical order; within one
// contribution fields are applied in sorted order so the result never
// depends on map iteration. Fields absent from every contribution are
// unchanged. The input state is not mutated.
//
// A failing reducer aborts the whole merge with a ReducerError; callers
// must discard the partial result.
func (s *Schema) Apply(current map[string]any, contribs []Contribution) (map[string]any, error) {
	result := cloneState(current)
	if result == nil {
		result = make(map[string]any)
	}

	for _, contrib := range contribs {
		fields := make([]string, 0, len(contrib.Update))
		for f := range contrib.Update {
			fields = append(fields, f)
		}
		sort.Strings(fields)

		for _, f := range fields {
			reducer := s.reducers[f]
			if reducer == nil {
				reducer = OverwriteReducer
			}
			merged, err := reducer(result[f], contrib.Update[f])
			if err != nil {
				return nil, &ReducerError{Field: f, Cause: err}
			}
			result[f] = merged
		}
	}

	return result, nil
}

// Common reducers.

// OverwriteReducer replaces the current value with the update. Under the
// canonical merge order this means the lexicographically last contributing
// node wins.
func OverwriteReducer(current, update any) (any, error) {
	return update, nil
}

// AppendReducer concatenates the update onto the current slice. A slice
// update appends all its elements; a scalar update appends one. When the
// element types differ the result widens to []any.
func AppendReducer(current, update any) (any, error) {
	if current == nil {
		newVal := reflect.ValueOf(update)
		if newVal.Kind() == reflect.Slice {
			return update, nil
		}
		sliceType := reflect.SliceOf(reflect.TypeOf(update))
		slice := reflect.MakeSlice(sliceType, 0, 1)
		slice = reflect.Append(slice, newVal)
		return slice.Interface(), nil
	}

	currVal := reflect.ValueOf(current)
	newVal := reflect.ValueOf(update)

	if currVal.Kind() != reflect.Slice {
		return nil, fmt.Errorf("current value is %T, not a slice", current)
	}

	if newVal.Kind() == reflect.Slice {
		if currVal.Type().Elem() != newVal.Type().Elem() {
			result := make([]any, 0, currVal.Len()+newVal.Len())
			for i := 0; i < currVal.Len(); i++ {
				result = append(result, currVal.Index(i).Interface())
			}
			for i := 0; i < newVal.Len(); i++ {
				result = append(result, newVal.Index(i).Interface())
			}
			return result, nil
		}
		return reflect.AppendSlice(currVal, newVal).Interface(), nil
	}

	if currVal.Type().Elem() != newVal.Type() {
		result := make([]any, 0, currVal.Len()+1)
		for i := 0; i < currVal.Len(); i++ {
			result = append(result, currVal.Index(i).Interface())
		}
		return append(result, update), nil
	}
	return reflect.Append(currVal, newVal).Interface(), nil
}

// MergeReducer merges mappings key-wise and recursively; leaf collisions
// resolve by overwrite. Non-map inputs are rejected.
func MergeReducer(current, update any) (any, error) {
	if current == nil {
		if m, ok := update.(map[string]any); ok {
			return cloneState(m), nil
		}
		return nil, fmt.Errorf("update value is %T, not a map", update)
	}

	currMap, ok := current.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("current value is %T, not a map", current)
	}
	updMap, ok := update.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("update value is %T, not a map", update)
	}

	return mergeMaps(currMap, updMap), nil
}

func mergeMaps(current, update map[string]any) map[string]any {
	result := cloneState(current)
	for k, v := range update {
		if currChild, ok := result[k].(map[string]any); ok {
			if updChild, ok := v.(map[string]any); ok {
				result[k] = mergeMaps(currChild, updChild)
				continue
			}
		}
		result[k] = cloneValue(v)
	}
	return result
}

// SumReducer adds numeric contributions. Two integers stay integral;
// any float widens the result to float64. Everything else is an error.
func SumReducer(current, update any) (any, error) {
	if current == nil {
		current = 0
	}

	ca, cf, cok := asNumber(current)
	ua, uf, uok := asNumber(update)
	if !cok {
		return nil, fmt.Errorf("current value %v (%T) is not numeric", current, current)
	}
	if !uok {
		return nil, fmt.Errorf("update value %v (%T) is not numeric", update, update)
	}

	if cf || uf {
		return toFloat(current) + toFloat(update), nil
	}
	if _, isInt := current.(int); isInt {
		if _, isInt := update.(int); isInt {
			return int(ca + ua), nil
		}
	}
	return ca + ua, nil
}

// asNumber reports the integral value, whether v is a float, and whether
// v is numeric at all.
func asNumber(v any) (i int64, isFloat bool, ok bool) {
	switch n := v.(type) {
	case int:
		return int64(n), false, true
	case int32:
		return int64(n), false, true
	case int64:
		return n, false, true
	case float32:
		return int64(n), true, true
	case float64:
		return int64(n), true, true
	default:
		return 0, false, false
	}
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	case float64:
		return n
	}
	return 0
}
