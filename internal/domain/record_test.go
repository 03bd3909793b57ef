package domain

import (
	"math"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_Missing(t *testing.T) {
	rec := Record{
		"present": 1.5,
		"null":    nil,
		"nan":     math.NaN(),
		"inf":     math.Inf(1),
		"text":    "CA",
	}

	assert.False(t, rec.Missing("present"))
	assert.True(t, rec.Missing("null"))
	assert.True(t, rec.Missing("nan"))
	assert.True(t, rec.Missing("inf"))
	assert.True(t, rec.Missing("absent"))
	assert.False(t, rec.Missing("text"))
}

func TestRecord_Float(t *testing.T) {
	rec := Record{"a": 3, "b": "4.5", "c": json.Number("7"), "d": "abc", "e": true, "f": nil}

	tests := []struct {
		name    string
		col     string
		want    float64
		ok      bool
		wantErr bool
	}{
		{"int", "a", 3, true, false},
		{"numeric string", "b", 4.5, true, false},
		{"json number", "c", 7, true, false},
		{"non-numeric string", "d", 0, false, true},
		{"bool", "e", 0, false, true},
		{"null", "f", 0, false, false},
		{"absent", "g", 0, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := rec.Float(tt.col)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrNotNumeric)
				assert.Contains(t, err.Error(), tt.col)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 1e-12)
			}
		})
	}
}

func TestRecord_String(t *testing.T) {
	rec := Record{"state": "CA", "code": 6.0, "empty": "", "null": nil}

	s, ok := rec.String("state")
	assert.True(t, ok)
	assert.Equal(t, "CA", s)

	s, ok = rec.String("code")
	assert.True(t, ok)
	assert.Equal(t, "6", s)

	_, ok = rec.String("empty")
	assert.False(t, ok)

	_, ok = rec.String("null")
	assert.False(t, ok)
}

func TestRecord_Finite(t *testing.T) {
	rec := Record{"a": math.NaN(), "b": math.Inf(-1), "c": 2.0, "d": "x"}
	rec.Finite()

	assert.Nil(t, rec["a"])
	assert.Nil(t, rec["b"])
	assert.Equal(t, 2.0, rec["c"])
	assert.Equal(t, "x", rec["d"])
}

func TestRecord_CloneIsIndependent(t *testing.T) {
	rec := Record{"a": 1.0}
	clone := rec.Clone()
	clone["a"] = 2.0

	assert.Equal(t, 1.0, rec["a"])
}

func TestInferSchema(t *testing.T) {
	records := []Record{
		{"state": "CA", "county": "Butte", "prefire_fuel": nil, "fire_type": nil},
		{"state": "OR", "county": "Lane", "prefire_fuel": 12.0, "fire_type": "WF", "latitude": 44.0},
	}

	schema := InferSchema(records, []string{"state", "county"})

	assert.Equal(t, []string{"state", "county", "fire_type", "prefire_fuel", "latitude"}, schema.Names())

	kind, ok := schema.Kind("fire_type")
	require.True(t, ok)
	assert.Equal(t, KindString, kind)

	kind, _ = schema.Kind("prefire_fuel")
	assert.Equal(t, KindNumeric, kind)

	kind, _ = schema.Kind("state")
	assert.Equal(t, KindString, kind)

	assert.False(t, schema.Has("duration"))
}
