package blockmap

import "github.com/bits-and-blooms/bitset"

// frame is the traversal state of a block whose children are being visited.
type frame struct {
	block    *Block
	succ     []int
	handlers []int
	next     int
	inLoop   bool
}

// nextChild returns the next successor or exception handler to visit.
func (f *frame) nextChild() (int, bool) {
	if f.next < len(f.succ) {
		f.next++
		return f.succ[f.next-1], true
	}
	if h := f.next - len(f.succ); h < len(f.handlers) {
		f.next++
		return f.handlers[h], true
	}
	return 0, false
}

// computeBlockNumbers assigns reverse postorder numbers with a depth-first
// traversal from the entry block, following successors and then exception
// handlers. Numbers count down from the block id counter, so the block
// finished last gets the smallest. A block reached again while it is still on
// the traversal stack is a loop header. Every block from which a loop header
// is reachable without leaving the loop is added to the loop block list.
//
// The traversal keeps an explicit stack so that deeply nested code cannot
// exhaust the goroutine stack.
func (m *BlockMap) computeBlockNumbers() {
	numBlocks := uint(m.NumberOfBlocks())
	visited := bitset.New(numBlocks)
	active := bitset.New(numBlocks)
	dfn := m.blockNum
	var stack []frame

	// enter starts the traversal of b. For a block already visited it
	// returns done and whether the block is in a loop.
	enter := func(b *Block) (inLoop, done bool) {
		i := uint(m.index(b))
		if visited.Test(i) {
			if active.Test(i) {
				// reached via a backward branch
				b.flags |= LoopHeader
				m.addLoopBlock(b)
				return true, true
			}
			return b.IsLoopHeader(), true
		}
		visited.Set(i)
		active.Set(i)
		var handlers []int
		if m.exceptionMap != nil {
			handlers = m.exceptionMap.handlers(b)
		}
		stack = append(stack, frame{block: b, succ: m.successorMap[b.bci], handlers: handlers})
		return false, false
	}

	enter(m.Get(0))
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if child, ok := top.nextChild(); ok {
			if inLoop, done := enter(m.blocks[child]); done && inLoop {
				top.inLoop = true
			}
			continue
		}

		b, inLoop := top.block, top.inLoop
		stack = stack[:len(stack)-1]
		active.Clear(uint(m.index(b)))
		b.dfn = dfn
		dfn--
		if inLoop {
			m.addLoopBlock(b)
			if len(stack) > 0 {
				stack[len(stack)-1].inLoop = true
			}
		}
	}
}
