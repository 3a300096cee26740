package bytecode

import "fmt"

// Switch decodes a tableswitch or lookupswitch instruction. Targets are
// absolute bytecode indexes.
type Switch interface {
	// NumberOfCases returns the number of non-default cases.
	NumberOfCases() int
	// KeyAt returns the match value of case i.
	KeyAt(i int) int
	// TargetAt returns the branch target of case i.
	TargetAt(i int) int
	// DefaultTarget returns the branch target taken when no case matches.
	DefaultTarget() int
	// Size returns the length of the whole instruction, padding included.
	Size() int
}

// NewSwitch decodes the switch instruction at bci.
func NewSwitch(code []byte, bci int) (Switch, error) {
	if bci < 0 || bci >= len(code) {
		return nil, fmt.Errorf("%w: bci %d outside code of length %d", ErrMalformed, bci, len(code))
	}
	// operands start at the next 4-byte boundary relative to the method start
	aligned := (bci + 4) &^ 3
	switch code[bci] {
	case TABLESWITCH:
		if aligned+12 > len(code) {
			return nil, fmt.Errorf("%w: truncated tableswitch at bci %d", ErrMalformed, bci)
		}
		low, high := BeS4(code, aligned+4), BeS4(code, aligned+8)
		n := int64(high) - int64(low) + 1
		if n < 0 || int64(aligned)+12+4*n > int64(len(code)) {
			return nil, fmt.Errorf("%w: tableswitch at bci %d has bad range [%d, %d]", ErrMalformed, bci, low, high)
		}
		return &TableSwitch{code: code, bci: bci, aligned: aligned, low: low, n: int(n)}, nil
	case LOOKUPSWITCH:
		if aligned+8 > len(code) {
			return nil, fmt.Errorf("%w: truncated lookupswitch at bci %d", ErrMalformed, bci)
		}
		n := int64(BeS4(code, aligned+4))
		if n < 0 || int64(aligned)+8+8*n > int64(len(code)) {
			return nil, fmt.Errorf("%w: lookupswitch at bci %d has bad pair count %d", ErrMalformed, bci, n)
		}
		return &LookupSwitch{code: code, bci: bci, aligned: aligned, n: int(n)}, nil
	}
	return nil, fmt.Errorf("%w: %s at bci %d is not a switch", ErrMalformed, Name(code[bci]), bci)
}

// TableSwitch is a dense switch over the key range [low, low+n).
type TableSwitch struct {
	code    []byte
	bci     int
	aligned int
	low     int
	n       int
}

func (s *TableSwitch) NumberOfCases() int { return s.n }
func (s *TableSwitch) KeyAt(i int) int    { return s.low + i }
func (s *TableSwitch) TargetAt(i int) int { return s.bci + BeS4(s.code, s.aligned+12+4*i) }
func (s *TableSwitch) DefaultTarget() int { return s.bci + BeS4(s.code, s.aligned) }
func (s *TableSwitch) Size() int          { return s.aligned + 12 + 4*s.n - s.bci }

// LookupSwitch is a sparse switch over n (key, target) pairs.
type LookupSwitch struct {
	code    []byte
	bci     int
	aligned int
	n       int
}

func (s *LookupSwitch) NumberOfCases() int { return s.n }
func (s *LookupSwitch) KeyAt(i int) int    { return BeS4(s.code, s.aligned+8+8*i) }
func (s *LookupSwitch) TargetAt(i int) int { return s.bci + BeS4(s.code, s.aligned+12+8*i) }
func (s *LookupSwitch) DefaultTarget() int { return s.bci + BeS4(s.code, s.aligned) }
func (s *LookupSwitch) Size() int          { return s.aligned + 8 + 8*s.n - s.bci }

var (
	_ Switch = (*TableSwitch)(nil)
	_ Switch = (*LookupSwitch)(nil)
)
