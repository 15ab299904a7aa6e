package batch

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestKeyOf_NormalizesDriverValues(t *testing.T) {
	want := Key("7")
	for _, v := range []any{7, int32(7), int64(7), uint64(7), "7", []byte("7"), Key("7")} {
		got, ok := KeyOf(v)
		assert.True(t, ok, "%T", v)
		assert.Equal(t, want, got, "%T", v)
	}

	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	got, ok := KeyOf(id)
	assert.True(t, ok)
	assert.Equal(t, Key(id.String()), got)
}

func TestKeyOf_RejectsMissingValues(t *testing.T) {
	for _, v := range []any{nil, "", []byte{}} {
		_, ok := KeyOf(v)
		assert.False(t, ok, "%#v", v)
	}
}

func TestKeyIndex(t *testing.T) {
	rows := []ResultRow{
		{Owner: "2", Key: "20"},
		{Owner: "1", Key: "10"},
		{Owner: "2", Key: "21"},
		{Owner: "2", Key: "22"},
	}
	idx := BuildKeyIndex(rows, func(r ResultRow) Key { return r.Owner })

	assert.Equal(t, 2, idx.Len())
	assert.Equal(t, []Key{"2", "1"}, idx.Keys())
	assert.Len(t, idx.Lookup("1"), 1)

	var keys []Key
	for _, row := range idx.Lookup("2") {
		keys = append(keys, row.Key)
	}
	assert.Equal(t, []Key{"20", "21", "22"}, keys, "arrival order within a key is preserved")

	missing := idx.Lookup("3")
	assert.NotNil(t, missing)
	assert.Empty(t, missing)
}

func TestKeyIndex_Empty(t *testing.T) {
	idx := BuildKeyIndex(nil, func(r ResultRow) Key { return r.Owner })
	assert.Equal(t, 0, idx.Len())
	assert.Empty(t, idx.Lookup("1"))
}

func TestChunkValues(t *testing.T) {
	values := []any{1, 2, 3, 4, 5, 6, 7}

	chunks := chunkValues(values, 3)
	assert.Equal(t, [][]any{{1, 2, 3}, {4, 5, 6}, {7}}, chunks)

	assert.Len(t, chunkValues(values, 0), 1)
	assert.Len(t, chunkValues(values, 7), 1)
	assert.Len(t, chunkValues(values, 1), 7)
}
