package blockmap

import "fmt"

// moveSuccessorLists moves successor lists from the instructions that
// created them to the blocks they end. A block that runs into the start of
// another block without a control transfer (because something jumps into
// the middle of straight-line code) gets a fall-through successor. Exception
// handlers are attached to blocks in the same pass.
func (m *BlockMap) moveSuccessorLists() error {
	current := m.Get(0)
	exceptionMap := m.exceptionMap

	for bci, next := range m.blockMap {
		if next != nil && next != current {
			if current != nil {
				m.successorMap[current.bci] = []int{m.index(next)}
			}
			current = next
		}
		if exceptionMap != nil && current != nil {
			exceptionMap.addHandlers(current, bci)
		}
		if succ := m.successorMap[bci]; succ != nil {
			// lists of unreachable code that no block starts are dropped
			m.successorMap[bci] = nil
			if current != nil {
				m.successorMap[current.bci] = succ
				current = nil
			}
		}
	}
	if current != nil {
		return fmt.Errorf("%w: block %s", ErrFellOffEnd, current)
	}
	return nil
}
