package blockmap

import (
	"fmt"

	"github.com/l3aro/go-blockmap/pkg/bytecode"
)

// processLoopBlocks marks every local stored by an instruction of a block
// inside a loop. Blocks listed more than once are scanned again, which only
// sets the same bits.
func (m *BlockMap) processLoopBlocks() error {
	code := m.code
	for _, idx := range m.loopBlocks {
		bci := m.blocks[idx].bci
		for {
			length, err := bytecode.LengthOf(code, bci)
			if err != nil {
				return err
			}
			switch op := code[bci]; {
			case op == bytecode.WIDE:
				m.processWideStore(code[bci+1], bytecode.BeU2(code, bci+2))
			case bytecode.IsStore(op):
				if err := m.processStore(op, bci); err != nil {
					return err
				}
			}
			bci += length
			if bci >= len(code) || m.blockMap[bci] != nil {
				// reached the next block
				break
			}
		}
	}
	return nil
}

func (m *BlockMap) processWideStore(op byte, local int) {
	switch op {
	case bytecode.IINC, bytecode.ISTORE, bytecode.FSTORE, bytecode.ASTORE:
		m.storeOne(local)
	case bytecode.LSTORE, bytecode.DSTORE:
		m.storeTwo(local)
	}
}

func (m *BlockMap) processStore(op byte, bci int) error {
	code := m.code
	switch op {
	case bytecode.IINC, bytecode.ISTORE, bytecode.FSTORE, bytecode.ASTORE:
		m.storeOne(bytecode.BeU1(code, bci+1))
	case bytecode.LSTORE, bytecode.DSTORE:
		m.storeTwo(bytecode.BeU1(code, bci+1))
	case bytecode.ISTORE_0, bytecode.ISTORE_1, bytecode.ISTORE_2, bytecode.ISTORE_3:
		m.storeOne(int(op - bytecode.ISTORE_0))
	case bytecode.FSTORE_0, bytecode.FSTORE_1, bytecode.FSTORE_2, bytecode.FSTORE_3:
		m.storeOne(int(op - bytecode.FSTORE_0))
	case bytecode.ASTORE_0, bytecode.ASTORE_1, bytecode.ASTORE_2, bytecode.ASTORE_3:
		m.storeOne(int(op - bytecode.ASTORE_0))
	case bytecode.LSTORE_0, bytecode.LSTORE_1, bytecode.LSTORE_2, bytecode.LSTORE_3:
		m.storeTwo(int(op - bytecode.LSTORE_0))
	case bytecode.DSTORE_0, bytecode.DSTORE_1, bytecode.DSTORE_2, bytecode.DSTORE_3:
		m.storeTwo(int(op - bytecode.DSTORE_0))
	default:
		return fmt.Errorf("%w: %s at bci %d", ErrUnexpectedStore, bytecode.Name(op), bci)
	}
	return nil
}

func (m *BlockMap) storeOne(local int) {
	m.storesInLoops.Set(uint(local))
}

// storeTwo marks a long or double local, which occupies two slots.
func (m *BlockMap) storeTwo(local int) {
	m.storesInLoops.Set(uint(local))
	m.storesInLoops.Set(uint(local + 1))
}
