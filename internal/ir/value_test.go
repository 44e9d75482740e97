package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseObject(t *testing.T) {
	obj, err := ParseObject([]byte(`{"draft":"x","count":3,"ok":true,"none":null,"list":[1,"a"]}`))
	require.NoError(t, err)

	assert.Equal(t, String("x"), obj["draft"])
	assert.Equal(t, Int(3), obj["count"])
	assert.Equal(t, Bool(true), obj["ok"])
	assert.Equal(t, Null{}, obj["none"])
	assert.Equal(t, List{Int(1), String("a")}, obj["list"])
}

func TestParseObject_Empty(t *testing.T) {
	obj, err := ParseObject(nil)
	require.NoError(t, err)
	assert.Equal(t, Object{}, obj)
}

func TestParseObject_RejectsFloats(t *testing.T) {
	_, err := ParseObject([]byte(`{"n":1.5}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floats")
}

func TestParseObject_RejectsNonObject(t *testing.T) {
	_, err := ParseObject([]byte(`[1,2]`))
	assert.Error(t, err)
}

func TestParseObject_LargeInt(t *testing.T) {
	obj, err := ParseObject([]byte(`{"n":9007199254740993}`))
	require.NoError(t, err)
	assert.Equal(t, Int(9007199254740993), obj["n"])
}

func TestObjectJSONRoundTrip(t *testing.T) {
	in := Object{"b": String("x"), "a": List{Int(1), Bool(false)}}

	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Equal(t, `{"a":[1,false],"b":"x"}`, string(data))

	var out Object
	require.NoError(t, json.Unmarshal(data, &out))
	assert.True(t, Equal(in, out))
}

func TestObjectClone_Independent(t *testing.T) {
	orig := Object{"nested": Object{"k": String("v")}, "list": List{Int(1)}}
	clone := orig.Clone()

	clone["nested"].(Object)["k"] = String("changed")
	clone["list"].(List)[0] = Int(99)

	assert.Equal(t, String("v"), orig["nested"].(Object)["k"])
	assert.Equal(t, Int(1), orig["list"].(List)[0])
}

func TestFromAnyToAny(t *testing.T) {
	v, err := FromAny(map[string]any{"s": "x", "n": 2, "b": true, "l": []any{"y"}})
	require.NoError(t, err)

	back := ToAny(v).(map[string]any)
	assert.Equal(t, "x", back["s"])
	assert.Equal(t, int64(2), back["n"])
	assert.Equal(t, true, back["b"])
	assert.Equal(t, []any{"y"}, back["l"])

	_, err = FromAny(map[string]any{"f": 1.25})
	assert.Error(t, err)
}

func TestObjectStr(t *testing.T) {
	obj := Object{"draft": String("hi"), "n": Int(1)}
	assert.Equal(t, "hi", obj.Str("draft"))
	assert.Equal(t, "", obj.Str("n"))
	assert.Equal(t, "", obj.Str("missing"))
}
