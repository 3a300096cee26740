package bytecode

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrMalformed is returned when an instruction stream cannot be decoded:
// truncated operands, undefined opcodes, inconsistent switch tables or
// control transfers that leave the stream.
var ErrMalformed = errors.New("malformed instruction stream")

// BeU1 reads the unsigned byte at i.
func BeU1(code []byte, i int) int {
	return int(code[i])
}

// BeU2 reads the big-endian unsigned 16-bit value at i.
func BeU2(code []byte, i int) int {
	return int(binary.BigEndian.Uint16(code[i:]))
}

// BeS2 reads the big-endian signed 16-bit value at i.
func BeS2(code []byte, i int) int {
	return int(int16(binary.BigEndian.Uint16(code[i:])))
}

// BeS4 reads the big-endian signed 32-bit value at i.
func BeS4(code []byte, i int) int {
	return int(int32(binary.BigEndian.Uint32(code[i:])))
}

// LengthOf returns the length in bytes of the instruction starting at bci,
// including the operands of variable-length forms. The whole instruction is
// guaranteed to lie inside code when the error is nil.
func LengthOf(code []byte, bci int) (int, error) {
	if bci < 0 || bci >= len(code) {
		return 0, fmt.Errorf("%w: bci %d outside code of length %d", ErrMalformed, bci, len(code))
	}
	op := code[bci]
	var length int
	switch op {
	case TABLESWITCH, LOOKUPSWITCH:
		sw, err := NewSwitch(code, bci)
		if err != nil {
			return 0, err
		}
		return sw.Size(), nil
	case WIDE:
		if bci+1 >= len(code) {
			return 0, fmt.Errorf("%w: truncated wide at bci %d", ErrMalformed, bci)
		}
		widened := code[bci+1]
		switch {
		case widened == IINC:
			length = 6
		case widened == RET, IsLoad(widened), IsStore(widened):
			length = 4
		default:
			return 0, fmt.Errorf("%w: wide %s at bci %d", ErrMalformed, Name(widened), bci)
		}
	default:
		length = opcodes[op].length
		if length == 0 {
			return 0, fmt.Errorf("%w: undefined opcode 0x%02x at bci %d", ErrMalformed, op, bci)
		}
	}
	if bci+length > len(code) {
		return 0, fmt.Errorf("%w: truncated %s at bci %d", ErrMalformed, Name(op), bci)
	}
	return length, nil
}
