package blockmap

import (
	"fmt"

	"github.com/l3aro/go-blockmap/pkg/bytecode"
)

// iterateOverBytecodes scans the bytecode top to bottom. It starts a block at
// every branch target and records a successor list for every instruction
// that ends a block (gotos, ifs, switches, throw, jsr, returns, ret).
func (m *BlockMap) iterateOverBytecodes() error {
	code := m.code
	exceptionMap := m.exceptionMap
	m.makeBlock(0).flags |= StandardEntry

	for bci := 0; bci < len(code); {
		length, err := bytecode.LengthOf(code, bci)
		if err != nil {
			return err
		}

		switch op := code[bci]; op {
		case bytecode.ATHROW:
			if exceptionMap != nil {
				exceptionMap.setCanTrap(bci)
			}
			m.successorMap[bci] = none

		case bytecode.IRETURN, bytecode.LRETURN, bytecode.FRETURN,
			bytecode.DRETURN, bytecode.ARETURN, bytecode.RETURN:
			if exceptionMap != nil && exceptionMap.isObjectInit {
				exceptionMap.setCanTrap(bci)
			}
			m.successorMap[bci] = none

		case bytecode.RET:
			m.successorMap[bci] = none

		case bytecode.IFEQ, bytecode.IFNE, bytecode.IFLT, bytecode.IFGE, bytecode.IFGT, bytecode.IFLE,
			bytecode.IF_ICMPEQ, bytecode.IF_ICMPNE, bytecode.IF_ICMPLT,
			bytecode.IF_ICMPGE, bytecode.IF_ICMPGT, bytecode.IF_ICMPLE,
			bytecode.IF_ACMPEQ, bytecode.IF_ACMPNE, bytecode.IFNULL, bytecode.IFNONNULL:
			err = m.succ(bci, bci+length, bci+bytecode.BeS2(code, bci+1))

		case bytecode.GOTO:
			err = m.succ(bci, bci+bytecode.BeS2(code, bci+1))

		case bytecode.GOTO_W:
			err = m.succ(bci, bci+bytecode.BeS4(code, bci+1))

		case bytecode.JSR, bytecode.JSR_W:
			target := bci + bytecode.BeS2(code, bci+1)
			if op == bytecode.JSR_W {
				target = bci + bytecode.BeS4(code, bci+1)
			}
			if err = m.succ(bci, bci+length, target); err == nil {
				m.blockMap[target].flags |= SubroutineEntry
			}

		case bytecode.TABLESWITCH, bytecode.LOOKUPSWITCH:
			var sw bytecode.Switch
			if sw, err = bytecode.NewSwitch(code, bci); err == nil {
				err = m.makeSwitchSuccessors(bci, sw)
			}

		case bytecode.WIDE:
			// the widened instruction is a load, store, iinc or ret

		default:
			if exceptionMap != nil && bytecode.CanTrap(op) {
				exceptionMap.setCanTrap(bci)
			}
		}
		if err != nil {
			return err
		}
		bci += length
	}
	return nil
}

// succ records the successor list of the instruction at bci, creating a
// block at each target.
func (m *BlockMap) succ(bci int, targets ...int) error {
	list := make([]int, len(targets))
	for i, target := range targets {
		b, err := m.blockAt(target)
		if err != nil {
			return fmt.Errorf("control transfer at bci %d: %w", bci, err)
		}
		list[i] = m.index(b)
	}
	m.successorMap[bci] = list
	return nil
}

// makeSwitchSuccessors records one successor per case, in case order,
// followed by the default target.
func (m *BlockMap) makeSwitchSuccessors(bci int, sw bytecode.Switch) error {
	n := sw.NumberOfCases()
	targets := make([]int, n+1)
	for i := 0; i < n; i++ {
		targets[i] = sw.TargetAt(i)
	}
	targets[n] = sw.DefaultTarget()
	return m.succ(bci, targets...)
}
