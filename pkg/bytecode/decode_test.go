package bytecode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpcodeTable(t *testing.T) {
	tests := []struct {
		op     byte
		name   string
		length int
		trap   bool
		store  bool
	}{
		{NOP, "nop", 1, false, false},
		{BIPUSH, "bipush", 2, false, false},
		{ILOAD_3, "iload_3", 1, false, false},
		{ALOAD_0, "aload_0", 1, false, false},
		{ISTORE_2, "istore_2", 1, false, true},
		{DSTORE, "dstore", 2, false, true},
		{ASTORE_3, "astore_3", 1, false, true},
		{IINC, "iinc", 3, false, true},
		{IALOAD, "iaload", 1, true, false},
		{SASTORE, "sastore", 1, true, false},
		{IDIV, "idiv", 1, true, false},
		{FDIV, "fdiv", 1, false, false},
		{LXOR, "lxor", 1, false, false},
		{I2S, "i2s", 1, false, false},
		{IF_ACMPNE, "if_acmpne", 3, false, false},
		{INVOKEINTERFACE, "invokeinterface", 5, true, false},
		{ATHROW, "athrow", 1, true, false},
		{RETURN, "return", 1, false, false},
		{GOTO_W, "goto_w", 5, false, false},
		{JSR_W, "jsr_w", 5, false, false},
		{TABLESWITCH, "tableswitch", 0, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, Name(tt.op))
			assert.Equal(t, tt.length, FixedLength(tt.op))
			assert.Equal(t, tt.trap, CanTrap(tt.op))
			assert.Equal(t, tt.store, IsStore(tt.op))
		})
	}

	assert.False(t, IsDefined(0xca))
	assert.Equal(t, "<illegal>", Name(0xff))
}

func TestLengthOf(t *testing.T) {
	tests := []struct {
		name    string
		code    []byte
		bci     int
		want    int
		wantErr bool
	}{
		{"fixed", []byte{SIPUSH, 0, 1}, 0, 3, false},
		{"wide iload", []byte{WIDE, ILOAD, 1, 0}, 0, 4, false},
		{"wide iinc", []byte{WIDE, IINC, 0, 1, 0, 5}, 0, 6, false},
		{"wide of non-local opcode", []byte{WIDE, IADD, 0, 0}, 0, 0, true},
		{"truncated operand", []byte{GOTO, 0}, 0, 0, true},
		{"undefined opcode", []byte{0xcb}, 0, 0, true},
		{"out of range", []byte{NOP}, 1, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LengthOf(tt.code, tt.bci)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrMalformed)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTableSwitch(t *testing.T) {
	// nop; tableswitch (2 bytes padding) default=+30 low=1 high=3 targets +20 +24 +28
	code := []byte{
		NOP, TABLESWITCH, 0, 0,
		0, 0, 0, 30,
		0, 0, 0, 1,
		0, 0, 0, 3,
		0, 0, 0, 20,
		0, 0, 0, 24,
		0, 0, 0, 28,
	}
	sw, err := NewSwitch(code, 1)
	require.NoError(t, err)

	assert.Equal(t, 3, sw.NumberOfCases())
	assert.Equal(t, 2, sw.KeyAt(1))
	assert.Equal(t, []int{21, 25, 29}, []int{sw.TargetAt(0), sw.TargetAt(1), sw.TargetAt(2)})
	assert.Equal(t, 31, sw.DefaultTarget())
	assert.Equal(t, 27, sw.Size())

	length, err := LengthOf(code, 1)
	require.NoError(t, err)
	assert.Equal(t, 27, length)
}

func TestLookupSwitch(t *testing.T) {
	// lookupswitch (3 bytes padding) default=+12 npairs=1 {7: +8}
	code := []byte{
		LOOKUPSWITCH, 0, 0, 0,
		0, 0, 0, 12,
		0, 0, 0, 1,
		0, 0, 0, 7,
		0, 0, 0, 8,
	}
	sw, err := NewSwitch(code, 0)
	require.NoError(t, err)

	assert.Equal(t, 1, sw.NumberOfCases())
	assert.Equal(t, 7, sw.KeyAt(0))
	assert.Equal(t, 8, sw.TargetAt(0))
	assert.Equal(t, 12, sw.DefaultTarget())
	assert.Equal(t, 20, sw.Size())
}

func TestNewSwitchRejectsBadTables(t *testing.T) {
	tests := []struct {
		name string
		code []byte
	}{
		{"inverted range", []byte{TABLESWITCH, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 5, 0, 0, 0, 1}},
		{"truncated targets", []byte{TABLESWITCH, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1}},
		{"negative pairs", []byte{LOOKUPSWITCH, 0, 0, 0, 0, 0, 0, 0, 0xff, 0xff, 0xff, 0xff}},
		{"not a switch", []byte{NOP}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSwitch(tt.code, 0)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestBranchOffsets(t *testing.T) {
	code := []byte{GOTO, 0xff, 0xfd, GOTO_W, 0, 0, 1, 0}
	assert.Equal(t, -3, BeS2(code, 1))
	assert.Equal(t, 256, BeS4(code, 4))
	assert.Equal(t, 0xfffd, BeU2(code, 1))
	assert.Equal(t, 0xa7, BeU1(code, 0))
}

func TestExceptionHandler(t *testing.T) {
	h := ExceptionHandler{StartBCI: 2, EndBCI: 8, HandlerBCI: 10}
	assert.True(t, h.IsCatchAll())
	assert.True(t, h.Covers(2))
	assert.False(t, h.Covers(8))

	h.CatchType = "java/lang/Exception"
	assert.False(t, h.IsCatchAll())
}
