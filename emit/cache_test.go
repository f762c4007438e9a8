package emit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emberjit/ir"
)

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	img := &ir.Image{
		StackSize:    4,
		Instructions: []ir.Instruction{{Op: ir.EncodeOp(ir.OpAdd, ir.CondEQ)}},
		Constants:    []uint32{1, 2, 3},
	}
	hash := HashSource([]byte("fn foo() {}"))

	data, err := Serialize(img, hash)
	require.NoError(t, err)

	gotImg, gotHash, err := Deserialize(data)
	require.NoError(t, err)
	assert.Equal(t, hash, gotHash)
	assert.Equal(t, img.StackSize, gotImg.StackSize)
	assert.Len(t, gotImg.Instructions, 1)
	assert.Len(t, gotImg.Constants, 3)
}

func TestDeserializeRejectsBadMagic(t *testing.T) {
	_, _, err := Deserialize([]byte{0, 0, 0, 0, 0, 0, 0, 0})
	require.Error(t, err)
}

func TestSaveLoadClearCache(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	img := &ir.Image{StackSize: 4, Instructions: []ir.Instruction{{Op: ir.EncodeOp(ir.OpAdd, ir.CondEQ)}}}
	hash := HashSource([]byte("source v1"))

	require.NoError(t, SaveToCache("demo", img, hash))

	loaded, err := LoadFromCache("demo", hash)
	require.NoError(t, err)
	assert.Equal(t, img.StackSize, loaded.StackSize)

	_, err = LoadFromCache("demo", HashSource([]byte("source v2")))
	assert.Error(t, err, "expected stale cache error for changed source hash")

	count, _, err := GetCacheStats()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, ClearCache())

	_, err = LoadFromCache("demo", hash)
	assert.Error(t, err, "expected error loading from cleared cache")
}
