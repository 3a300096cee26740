package blockmap

import (
	"fmt"
	"strings"
)

// BlockFlag is a property of a block set by the pass that discovers it.
// Flags are never cleared.
type BlockFlag uint8

const (
	StandardEntry   BlockFlag = 1 << iota // method entry at bci 0
	ExceptionEntry                        // entry point of an exception handler
	SubroutineEntry                       // target of jsr or jsr_w
	LoopHeader                            // target of a back edge
)

var flagNames = []struct {
	flag BlockFlag
	name string
}{
	{StandardEntry, "standard_entry"},
	{ExceptionEntry, "exception_entry"},
	{SubroutineEntry, "subroutine_entry"},
	{LoopHeader, "loop_header"},
}

// Names returns the names of the set flags in declaration order.
func (f BlockFlag) Names() []string {
	var names []string
	for _, fn := range flagNames {
		if f&fn.flag != 0 {
			names = append(names, fn.name)
		}
	}
	return names
}

func (f BlockFlag) String() string {
	return strings.Join(f.Names(), "|")
}

// NoDepthFirstNumber is the depth-first number of a block that the
// numbering pass did not reach.
const NoDepthFirstNumber = -1

// Block is a basic block placeholder identified by the bci it starts at.
type Block struct {
	bci   int
	id    int
	dfn   int
	flags BlockFlag
}

// BCI returns the index of the first instruction of the block.
func (b *Block) BCI() int { return b.bci }

// ID returns the block id, assigned in creation order.
func (b *Block) ID() int { return b.id }

// DepthFirstNumber returns the reverse postorder number of the block, or
// NoDepthFirstNumber if it is unreachable or the map is not built yet.
func (b *Block) DepthFirstNumber() int { return b.dfn }

// Flags returns all flags set on the block.
func (b *Block) Flags() BlockFlag { return b.flags }

// Has reports whether flag is set on the block.
func (b *Block) Has(flag BlockFlag) bool { return b.flags&flag != 0 }

// IsLoopHeader reports whether a back edge targets the block.
func (b *Block) IsLoopHeader() bool { return b.Has(LoopHeader) }

func (b *Block) String() string {
	return fmt.Sprintf("B%d@%d", b.id, b.bci)
}
