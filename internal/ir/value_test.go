package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueSealed(t *testing.T) {
	var _ Value = Null{}
	var _ Value = String("")
	var _ Value = Int(0)
	var _ Value = Bool(false)
	var _ Value = Array{}
	var _ Value = Object{}
}

func TestObjectSortedKeys(t *testing.T) {
	obj := Object{"c": Int(1), "a": Int(2), "b": Int(3)}
	assert.Equal(t, []string{"a", "b", "c"}, obj.SortedKeys())
	assert.Empty(t, Object{}.SortedKeys())
}

func TestCompareUTF16(t *testing.T) {
	assert.Equal(t, 0, compareUTF16("abc", "abc"))
	assert.Equal(t, -1, compareUTF16("ab", "abc"))
	assert.Equal(t, 1, compareUTF16("b", "abc"))
	// Surrogate pair (0xD83D) sorts before U+FF61 in UTF-16 but after in UTF-8.
	assert.Equal(t, -1, compareUTF16("\U0001F600", "\uff61"))
}

func TestObjectCloneIsDeep(t *testing.T) {
	orig := Object{
		"nested": Object{"n": Int(1)},
		"list":   Array{Object{"x": Int(1)}},
	}
	clone := orig.Clone()

	clone["nested"].(Object)["n"] = Int(99)
	clone["list"].(Array)[0].(Object)["x"] = Int(99)
	clone["added"] = Bool(true)

	n, _ := orig["nested"].(Object).Int("n")
	assert.Equal(t, int64(1), n)
	x, _ := orig["list"].(Array)[0].(Object).Int("x")
	assert.Equal(t, int64(1), x)
	assert.NotContains(t, orig, "added")
	assert.Nil(t, Object(nil).Clone())
}

func TestObjectAccessors(t *testing.T) {
	obj := Object{"n": Int(3), "s": String("x"), "o": Object{}}

	n, ok := obj.Int("n")
	assert.True(t, ok)
	assert.Equal(t, int64(3), n)

	_, ok = obj.Int("s")
	assert.False(t, ok)

	s, ok := obj.String("s")
	assert.True(t, ok)
	assert.Equal(t, "x", s)

	_, ok = obj.Object("o")
	assert.True(t, ok)

	assert.Nil(t, Object(nil).Get("missing"))
}

func TestUnmarshalRejectsFloats(t *testing.T) {
	for _, input := range []string{`1.5`, `{"a":2.0}`, `[1e3]`} {
		_, err := UnmarshalValue([]byte(input))
		assert.Error(t, err, input)
	}
}

func TestUnmarshalValueRoundTrip(t *testing.T) {
	input := `{"a":[1,"two",true,null],"b":{"c":-7}}`
	v, err := UnmarshalValue([]byte(input))
	require.NoError(t, err)

	out, err := MarshalValue(v)
	require.NoError(t, err)
	assert.JSONEq(t, input, string(out))
}

func TestObjectUnmarshalJSONNull(t *testing.T) {
	var obj Object
	require.NoError(t, json.Unmarshal([]byte(`null`), &obj))
	assert.Nil(t, obj)

	require.Error(t, json.Unmarshal([]byte(`[1]`), &obj))
}

func TestFromGoAndToGo(t *testing.T) {
	v, err := FromGo(map[string]any{"n": 5, "list": []any{"x", false}})
	require.NoError(t, err)
	assert.Equal(t, Object{"n": Int(5), "list": Array{String("x"), Bool(false)}}, v)

	back := ToGo(v)
	assert.Equal(t, map[string]any{"n": int64(5), "list": []any{"x", false}}, back)

	_, err = FromGo(2.5)
	assert.Error(t, err)
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(Object{"a": Int(1)}, Object{"a": Int(1)}))
	assert.False(t, Equal(Object{"a": Int(1)}, Object{"a": Int(2)}))
	assert.True(t, Equal(nil, Null{}))
}
