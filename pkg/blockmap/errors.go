package blockmap

import (
	"errors"

	"github.com/l3aro/go-blockmap/pkg/bytecode"
)

var (
	// ErrMalformedCode is returned when the instruction stream cannot be
	// decoded or a control transfer leaves it.
	ErrMalformedCode = bytecode.ErrMalformed

	// ErrFellOffEnd is returned when the last block of the stream does not
	// end with a control transfer.
	ErrFellOffEnd = errors.New("fell off end of code, should end with successor list")

	// ErrUnexpectedStore is returned when an opcode classified as a store
	// has no store semantics.
	ErrUnexpectedStore = errors.New("unexpected store opcode")

	// ErrAlreadyBuilt is returned when Build is called more than once.
	ErrAlreadyBuilt = errors.New("block map already built")

	// ErrCleanedUp is returned when Build is called after Cleanup.
	ErrCleanedUp = errors.New("block map cleaned up")
)
