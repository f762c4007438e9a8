package ir

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestImageEncodeDecodeRoundTrip(t *testing.T) {
	img := &Image{
		StackSize: 12,
		Instructions: []Instruction{
			{Op: EncodeOp(OpAdd, CondEQ), Dst: uint32(EncodeOperand(SymTmp, 0)), Src1: uint32(EncodeOperand(SymRel, 0)), Src2: uint32(EncodeOperand(SymRel, 4))},
			{Op: EncodeOp(OpJmp, CondEQ), Dst: 0, Src1: 0, Src2: 0},
		},
		Constants: []uint32{1, 2, 3},
	}

	var buf bytes.Buffer
	require.NoError(t, img.Encode(&buf))

	got, err := Decode(&buf)
	require.NoError(t, err)

	require.Equal(t, img.StackSize, got.StackSize)
	require.Equal(t, img.Instructions, got.Instructions)
	require.Equal(t, img.Constants, got.Constants)
}

func TestImageEmptyConstants(t *testing.T) {
	img := &Image{StackSize: 0, Instructions: nil, Constants: nil}

	var buf bytes.Buffer
	require.NoError(t, img.Encode(&buf))

	got, err := Decode(&buf)
	require.NoError(t, err)
	require.Empty(t, got.Instructions)
	require.Empty(t, got.Constants)
}

func TestStackWords(t *testing.T) {
	tests := []struct {
		stackSize uint32
		want      int
	}{
		{0, 0},
		{1, 1},
		{4, 1},
		{5, 2},
		{32, 8},
	}
	for _, tt := range tests {
		img := &Image{StackSize: tt.stackSize}
		require.Equal(t, tt.want, img.StackWords(), "StackWords(%d)", tt.stackSize)
	}
}
