package ir

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Image is the fully decoded, immutable form of a bytecode blob: the
// declared stack size, the instruction array, and the constant pool.
// Once produced by Decode (or by emit.Assemble) it is never mutated,
// and may be shared read-only across many interpreter instances.
type Image struct {
	StackSize    uint32
	Instructions []Instruction
	Constants    []uint32
}

// StackWords is the number of 32-bit words the interpreter must
// allocate for its private stack: ceil(StackSize / 4).
func (img *Image) StackWords() int {
	return int((img.StackSize + 3) / 4)
}

// Decode reads a bytecode image from its host-endian wire format (§6).
// The format is not cross-platform: it is read with the host's native
// byte order, matching the non-portable, ephemeral-artefact framing of
// the layout it implements.
func Decode(r io.Reader) (*Image, error) {
	var stackSize uint32
	if err := binary.Read(r, binary.NativeEndian, &stackSize); err != nil {
		return nil, fmt.Errorf("ir: read stack size: %w", err)
	}

	var instrCount uint32
	if err := binary.Read(r, binary.NativeEndian, &instrCount); err != nil {
		return nil, fmt.Errorf("ir: read instruction count: %w", err)
	}

	instrs := make([]Instruction, instrCount)
	for i := range instrs {
		if err := binary.Read(r, binary.NativeEndian, &instrs[i]); err != nil {
			return nil, fmt.Errorf("ir: read instruction %d: %w", i, err)
		}
	}

	var constCount uint32
	if err := binary.Read(r, binary.NativeEndian, &constCount); err != nil {
		return nil, fmt.Errorf("ir: read constant count: %w", err)
	}

	consts := make([]uint32, constCount)
	if constCount > 0 {
		if err := binary.Read(r, binary.NativeEndian, &consts); err != nil {
			return nil, fmt.Errorf("ir: read constants: %w", err)
		}
	}

	return &Image{StackSize: stackSize, Instructions: instrs, Constants: consts}, nil
}

// Encode writes the image to its host-endian wire format (§6).
func (img *Image) Encode(w io.Writer) error {
	if err := binary.Write(w, binary.NativeEndian, img.StackSize); err != nil {
		return fmt.Errorf("ir: write stack size: %w", err)
	}
	if err := binary.Write(w, binary.NativeEndian, uint32(len(img.Instructions))); err != nil {
		return fmt.Errorf("ir: write instruction count: %w", err)
	}
	for i, instr := range img.Instructions {
		if err := binary.Write(w, binary.NativeEndian, instr); err != nil {
			return fmt.Errorf("ir: write instruction %d: %w", i, err)
		}
	}
	if err := binary.Write(w, binary.NativeEndian, uint32(len(img.Constants))); err != nil {
		return fmt.Errorf("ir: write constant count: %w", err)
	}
	if len(img.Constants) > 0 {
		if err := binary.Write(w, binary.NativeEndian, img.Constants); err != nil {
			return fmt.Errorf("ir: write constants: %w", err)
		}
	}
	return nil
}
