package graph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaApplyCanonicalOrder(t *testing.T) {
	t.Parallel()

	schema := NewSchema()
	schema.RegisterReducer("log", AppendReducer)

	// Contributions arrive already sorted by node name; append must
	// preserve that order, and overwrite must let the last writer win.
	current := map[string]any{"log": []any{"init"}, "winner": "none"}
	contribs := []Contribution{
		{Node: "alpha", Update: map[string]any{"log": "from_alpha", "winner": "alpha"}},
		{Node: "beta", Update: map[string]any{"log": "from_beta", "winner": "beta"}},
	}

	result, err := schema.Apply(current, contribs)
	require.NoError(t, err)

	assert.Equal(t, []any{"init", "from_alpha", "from_beta"}, result["log"])
	assert.Equal(t, "beta", result["winner"])

	// The input state must not have been touched.
	assert.Equal(t, []any{"init"}, current["log"])
	assert.Equal(t, "none", current["winner"])
}

func TestSchemaApplyUntouchedFields(t *testing.T) {
	t.Parallel()

	schema := NewSchema()
	current := map[string]any{"keep": 42, "x": 0}

	result, err := schema.Apply(current, []Contribution{
		{Node: "a", Update: map[string]any{"x": 1}},
	})
	require.NoError(t, err)

	assert.Equal(t, 42, result["keep"])
	assert.Equal(t, 1, result["x"])
}

func TestSchemaApplyReducerError(t *testing.T) {
	t.Parallel()

	schema := NewSchema()
	schema.RegisterReducer("count", SumReducer)

	_, err := schema.Apply(map[string]any{"count": 1}, []Contribution{
		{Node: "b", Update: map[string]any{"count": "oops"}},
	})

	var re *ReducerError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "count", re.Field)
}

func TestOverwriteReducer(t *testing.T) {
	t.Parallel()

	got, err := OverwriteReducer("old", "new")
	require.NoError(t, err)
	assert.Equal(t, "new", got)
}

func TestAppendReducer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		current any
		update  any
		want    any
		wantErr bool
	}{
		{"scalar onto nil", nil, "a", []string{"a"}, false},
		{"slice onto nil", nil, []string{"a", "b"}, []string{"a", "b"}, false},
		{"scalar onto slice", []string{"a"}, "b", []string{"a", "b"}, false},
		{"slice onto slice", []string{"a"}, []string{"b", "c"}, []string{"a", "b", "c"}, false},
		{"mixed element types widen", []string{"a"}, 1, []any{"a", 1}, false},
		{"mixed slices widen", []string{"a"}, []int{1}, []any{"a", 1}, false},
		{"non-slice current", 7, "x", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := AppendReducer(tt.current, tt.update)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMergeReducer(t *testing.T) {
	t.Parallel()

	current := map[string]any{
		"a": 1,
		"nested": map[string]any{
			"x": "keep",
			"y": "old",
		},
	}
	update := map[string]any{
		"b": 2,
		"nested": map[string]any{
			"y": "new",
			"z": "add",
		},
	}

	got, err := MergeReducer(current, update)
	require.NoError(t, err)

	want := map[string]any{
		"a": 1,
		"b": 2,
		"nested": map[string]any{
			"x": "keep",
			"y": "new",
			"z": "add",
		},
	}
	assert.Equal(t, want, got)

	// Leaf collision with a non-map overwrites the whole subtree.
	got, err = MergeReducer(map[string]any{"nested": map[string]any{"x": 1}}, map[string]any{"nested": "flat"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"nested": "flat"}, got)

	_, err = MergeReducer("scalar", map[string]any{})
	assert.Error(t, err)
}

func TestSumReducer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		current any
		update  any
		want    any
		wantErr bool
	}{
		{"int plus int", 1, 2, 3, false},
		{"nil counts as zero", nil, 5, 5, false},
		{"float widens", 1, 2.5, 3.5, false},
		{"both float", 1.5, 2.5, 4.0, false},
		{"int64 stays integral", int64(1), int64(2), int64(3), false},
		{"string is rejected", 1, "oops", nil, true},
		{"non-numeric current", "bad", 1, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := SumReducer(tt.current, tt.update)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
