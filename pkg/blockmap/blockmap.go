// Package blockmap builds a conservative control flow graph over the
// bytecode of a single method.
//
// The builder makes two linear passes and one traversal. The first pass
// scans the instructions, creating a block at every branch target and a
// successor list at every control transfer. The second pass walks the block
// starts in address order, moves each successor list from the instruction
// that produced it to the block that contains it, adds fall-through edges and
// records which exception handlers cover each block. A depth-first traversal
// then assigns reverse postorder numbers and detects loop headers, and an
// optional pass over the blocks inside loops collects the local variables
// stored in loops.
//
// Consider:
//
//	public static int test(int arg1, int arg2) {
//	    int x = 0;
//	    while (arg2 > 0) {
//	        if (arg1 > 0) {
//	            x += 1;
//	        } else if (arg1 < 0) {
//	            x -= 1;
//	        }
//	    }
//	    return x;
//	}
//
// which javac translates to:
//
//	 0: iconst_0
//	 1: istore_2
//	 2: goto 22
//	 5: iload_0
//	 6: ifle 15
//	 9: iinc 2, 1
//	12: goto 22
//	15: iload_0
//	16: ifge 22
//	19: iinc 2, -1
//	22: iload_1
//	23: ifgt 5
//	26: iload_2
//	27: ireturn
//
// The map has seven blocks starting at 0, 5, 9, 15, 19, 22 and 26. After
// scanning, successor lists are held at 2, 6, 12, 16, 23 and 27; after
// relocation they are held at the block starts, with a synthesized
// fall-through edge from 19 to 22. Numbering with a first block id of 1
// yields the depth-first numbers 2, 4, 7, 5, 6, 3, 8, and block 22 is the
// only loop header. It appears four times in the loop block list, once for
// each back edge reaching it.
package blockmap

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"

	"github.com/l3aro/go-blockmap/internal/log"
	"github.com/l3aro/go-blockmap/pkg/bytecode"
)

// Method provides the bytecode and exception table of the method to map.
type Method interface {
	Code() []byte
	MaxLocals() int
	// ExceptionHandlers returns the exception table in declaration order.
	ExceptionHandlers() []bytecode.ExceptionHandler
	// IsObjectInit reports whether the method is the root constructor,
	// java.lang.Object.<init>.
	IsObjectInit() bool
}

// none is the successor list of an instruction that ends control flow. It is
// distinct from nil, which means "no successor list".
var none = []int{}

// BlockMap maps bytecode indexes to blocks and holds the conservative CFG.
type BlockMap struct {
	code []byte

	// blockMap holds the block starting at each bci, nil elsewhere.
	blockMap []*Block
	// blocks holds every block, indexed by id minus firstBlock.
	blocks []*Block
	// successorMap holds successor lists as indexes into blocks. During
	// scanning a list is keyed by the bci of the instruction that produced
	// it, after relocation by the bci of the block it ends.
	successorMap [][]int
	// loopBlocks lists blocks inside loops, once per loop traversal that
	// reached them.
	loopBlocks    []int
	exceptionMap  *exceptionMap
	storesInLoops *bitset.BitSet
	maxLocals     int

	firstBlock int
	// blockNum is the next block id to allocate.
	blockNum int

	registerFinalizers bool
	logger             log.Logger

	built   bool
	cleaned bool
}

// Option configures a BlockMap.
type Option func(*BlockMap)

// WithFirstBlockID sets the id of the first block created. Ids of later
// blocks follow consecutively.
func WithFirstBlockID(id int) Option {
	return func(m *BlockMap) {
		m.firstBlock = id
	}
}

// WithFinalizerRegistration treats the return instructions of
// java.lang.Object.<init> as trapping, because they register finalizers.
func WithFinalizerRegistration(enabled bool) Option {
	return func(m *BlockMap) {
		m.registerFinalizers = enabled
	}
}

// WithLogger sets the logger used to report build phases.
func WithLogger(logger log.Logger) Option {
	return func(m *BlockMap) {
		m.logger = logger
	}
}

// New creates a block map for method. Nothing is computed until Build.
func New(method Method, opts ...Option) *BlockMap {
	code := method.Code()
	maxLocals := max(method.MaxLocals(), 0)
	m := &BlockMap{
		code:          code,
		blockMap:      make([]*Block, len(code)),
		successorMap:  make([][]int, len(code)),
		storesInLoops: bitset.New(uint(maxLocals)),
		maxLocals:     maxLocals,
		logger:        log.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.blockNum = m.firstBlock

	if handlers := method.ExceptionHandlers(); len(handlers) > 0 {
		m.exceptionMap = newExceptionMap(m, handlers, m.registerFinalizers && method.IsObjectInit())
	}
	return m
}

// AddEntrypoint starts a block at bci and marks it with flag.
func (m *BlockMap) AddEntrypoint(bci int, flag BlockFlag) error {
	b, err := m.blockAt(bci)
	if err != nil {
		return err
	}
	b.flags |= flag
	return nil
}

// Get returns the block starting at bci, or nil if there is none.
func (m *BlockMap) Get(bci int) *Block {
	if bci < 0 || bci >= len(m.blockMap) {
		return nil
	}
	return m.blockMap[bci]
}

// makeBlock returns the block starting at bci, creating it if needed. bci must
// lie inside the code.
func (m *BlockMap) makeBlock(bci int) *Block {
	b := m.blockMap[bci]
	if b == nil {
		b = &Block{bci: bci, id: m.blockNum, dfn: NoDepthFirstNumber}
		m.blockNum++
		m.blockMap[bci] = b
		m.blocks = append(m.blocks, b)
	}
	return b
}

// blockAt is makeBlock with a range check on bci.
func (m *BlockMap) blockAt(bci int) (*Block, error) {
	if bci < 0 || bci >= len(m.code) {
		return nil, fmt.Errorf("%w: bci %d outside code of length %d", ErrMalformedCode, bci, len(m.code))
	}
	return m.makeBlock(bci), nil
}

func (m *BlockMap) index(b *Block) int {
	return b.id - m.firstBlock
}

func (m *BlockMap) resolve(indexes []int) []*Block {
	if len(indexes) == 0 {
		return nil
	}
	blocks := make([]*Block, len(indexes))
	for i, idx := range indexes {
		blocks[i] = m.blocks[idx]
	}
	return blocks
}

// Successors returns a conservative approximation of the successors of
// block. It returns nil for a block that ends control flow and after
// Cleanup.
func (m *BlockMap) Successors(block *Block) []*Block {
	if m.successorMap == nil || block == nil {
		return nil
	}
	return m.resolve(m.successorMap[block.bci])
}

// Handlers returns the exception handler blocks covering a potentially
// trapping instruction of block, in the order they were attached. It
// returns nil if there are none and after Cleanup.
func (m *BlockMap) Handlers(block *Block) []*Block {
	if m.exceptionMap == nil || block == nil {
		return nil
	}
	return m.resolve(m.exceptionMap.handlers(block))
}

// LoopBlocks returns the blocks inside loops. A block appears once for each
// loop traversal that reached it. It returns nil after Cleanup.
func (m *BlockMap) LoopBlocks() []*Block {
	return m.resolve(m.loopBlocks)
}

// Blocks returns all blocks in id order. The slice must not be modified.
func (m *BlockMap) Blocks() []*Block {
	return m.blocks
}

// Build scans the bytecode, builds the CFG and numbers the blocks. If
// computeStoresInLoops is false, every local is assumed to be stored in a
// loop, which saves a pass at the cost of more phis downstream. A BlockMap
// whose Build failed must be discarded.
func (m *BlockMap) Build(computeStoresInLoops bool) error {
	switch {
	case m.cleaned:
		return ErrCleanedUp
	case m.built:
		return ErrAlreadyBuilt
	case len(m.code) == 0:
		return fmt.Errorf("%w: empty code", ErrMalformedCode)
	}

	if m.exceptionMap != nil {
		if err := m.exceptionMap.setHandlerEntrypoints(); err != nil {
			return err
		}
	}
	if err := m.iterateOverBytecodes(); err != nil {
		return err
	}
	if err := m.moveSuccessorLists(); err != nil {
		return err
	}
	m.computeBlockNumbers()
	handlers := 0
	if m.exceptionMap != nil {
		handlers = len(m.exceptionMap.allHandlers)
	}
	m.logger.Debug("numbered blocks", "blocks", m.NumberOfBlocks(), "loop_blocks", len(m.loopBlocks), "handlers", handlers)

	if computeStoresInLoops {
		// another pass, but fewer phis and ultimately better code
		if err := m.processLoopBlocks(); err != nil {
			return err
		}
	} else {
		for i := 0; i < m.maxLocals; i++ {
			m.storesInLoops.Set(uint(i))
		}
	}
	m.logger.Debug("computed stores in loops", "locals", m.maxLocals, "stored", m.storesInLoops.Count())

	m.built = true
	return nil
}

// Cleanup discards the CFG edges, the loop block list and the exception
// handler data, keeping only the block mapping and the stores in loops.
// Afterwards Successors, Handlers and LoopBlocks return nil.
func (m *BlockMap) Cleanup() {
	m.successorMap = nil
	m.loopBlocks = nil
	m.exceptionMap = nil
	m.cleaned = true
}

// NumberOfBlocks returns the number of blocks created.
func (m *BlockMap) NumberOfBlocks() int {
	return m.blockNum - m.firstBlock
}

// NumberOfBytes returns the length of the bytecode.
func (m *BlockMap) NumberOfBytes() int {
	return len(m.code)
}

// StoresInLoops returns the set of local variable slots that may be stored
// inside a loop.
func (m *BlockMap) StoresInLoops() *bitset.BitSet {
	return m.storesInLoops
}

func (m *BlockMap) addLoopBlock(b *Block) {
	m.loopBlocks = append(m.loopBlocks, m.index(b))
}
