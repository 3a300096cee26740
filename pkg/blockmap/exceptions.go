package blockmap

import (
	"slices"

	"github.com/bits-and-blooms/bitset"

	"github.com/l3aro/go-blockmap/pkg/bytecode"
)

// exceptionMap tracks exception handlers while scanning the bytecode and
// building the CFG. Methods with handlers are much rarer than methods
// without, so it is only created when the method declares some.
type exceptionMap struct {
	m            *BlockMap
	canTrap      *bitset.BitSet
	isObjectInit bool
	allHandlers  []bytecode.ExceptionHandler
	// handlerMap holds, per block index, the handler block indexes in the
	// order they were attached.
	handlerMap map[int][]int
}

func newExceptionMap(m *BlockMap, handlers []bytecode.ExceptionHandler, isObjectInit bool) *exceptionMap {
	return &exceptionMap{
		m:            m,
		canTrap:      bitset.New(uint(len(m.code))),
		isObjectInit: isObjectInit,
		allHandlers:  handlers,
		handlerMap:   make(map[int][]int),
	}
}

func (e *exceptionMap) setCanTrap(bci int) {
	e.canTrap.Set(uint(bci))
}

// setHandlerEntrypoints starts a block at every handler and marks it as an
// exception entry.
func (e *exceptionMap) setHandlerEntrypoints() error {
	for _, h := range e.allHandlers {
		if err := e.m.AddEntrypoint(h.HandlerBCI, ExceptionEntry); err != nil {
			return err
		}
	}
	return nil
}

// addHandlers attaches to block every handler covering the instruction at
// bci, if it can trap. The search stops at the first catch-all handler,
// which masks later handlers for this bci.
func (e *exceptionMap) addHandlers(block *Block, bci int) {
	if !e.canTrap.Test(uint(bci)) {
		return
	}
	// TODO: sort handlers by start and end to avoid the linear scan per trapping bci
	for _, h := range e.allHandlers {
		if h.Covers(bci) {
			e.addHandler(block, e.m.Get(h.HandlerBCI))
			if h.IsCatchAll() {
				break
			}
		}
	}
}

func (e *exceptionMap) addHandler(block, handler *Block) {
	key := e.m.index(block)
	idx := e.m.index(handler)
	if set := e.handlerMap[key]; !slices.Contains(set, idx) {
		e.handlerMap[key] = append(set, idx)
	}
}

func (e *exceptionMap) handlers(block *Block) []int {
	return e.handlerMap[e.m.index(block)]
}
