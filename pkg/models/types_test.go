package models

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringList_Scan(t *testing.T) {
	tests := []struct {
		name string
		src  any
		want StringList
	}{
		{name: "nil", src: nil, want: nil},
		{name: "empty array", src: "{}", want: StringList{}},
		{name: "text", src: `{a.jpg,"b c.jpg"}`, want: StringList{"a.jpg", "b c.jpg"}},
		{name: "bytes", src: []byte(`{ramen,noodles}`), want: StringList{"ramen", "noodles"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s StringList
			require.NoError(t, s.Scan(tt.src))
			assert.Equal(t, tt.want, s)
		})
	}

	var s StringList
	assert.Error(t, s.Scan(42))
}

func TestStringList_Value(t *testing.T) {
	v, err := StringList(nil).Value()
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = StringList{"a", "b c"}.Value()
	require.NoError(t, err)
	assert.Equal(t, `{"a","b c"}`, v)
}

func TestJSONMap_Scan(t *testing.T) {
	var j JSONMap
	require.NoError(t, j.Scan([]byte(`{"thumb":"t.jpg","sizes":[1,2]}`)))
	assert.Equal(t, "t.jpg", j["thumb"])

	require.NoError(t, j.Scan(nil))
	assert.Nil(t, j)

	require.NoError(t, j.Scan(""))
	assert.Nil(t, j)

	assert.Error(t, j.Scan(3.5))
}

func TestEnrichedPost_JSON(t *testing.T) {
	posts := NewEnrichedPosts([]Post{{ID: "p1", AuthorID: "u1"}, {ID: "p2", AuthorID: "u2"}})
	require.Len(t, posts, 2)
	posts[0].Author = &Profile{ID: "u1", Username: "ann"}

	data, err := json.Marshal(posts[0])
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "p1", decoded["id"])
	assert.Equal(t, "u1", decoded["author_id"])
	assert.Contains(t, decoded, "place")
	assert.Nil(t, decoded["place"], "missing relation renders as null")
	assert.Equal(t, "ann", decoded["author"].(map[string]any)["username"])

	assert.Equal(t, "p2", posts[1].ID)
	assert.Nil(t, posts[1].Author)
}
