package blockmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bc "github.com/l3aro/go-blockmap/pkg/bytecode"
)

type testMethod struct {
	code       []byte
	maxLocals  int
	handlers   []bc.ExceptionHandler
	objectInit bool
}

func (m *testMethod) Code() []byte                             { return m.code }
func (m *testMethod) MaxLocals() int                           { return m.maxLocals }
func (m *testMethod) ExceptionHandlers() []bc.ExceptionHandler { return m.handlers }
func (m *testMethod) IsObjectInit() bool                       { return m.objectInit }

// whileLoop is javac's lowering of the loop in the package documentation.
var whileLoop = []byte{
	bc.ICONST_0,          // 0
	bc.ISTORE_2,          // 1
	bc.GOTO, 0x00, 0x14, // 2: goto 22
	bc.ILOAD_0,          // 5
	bc.IFLE, 0x00, 0x09, // 6: ifle 15
	bc.IINC, 0x02, 0x01, // 9: iinc 2, 1
	bc.GOTO, 0x00, 0x0a, // 12: goto 22
	bc.ILOAD_0,          // 15
	bc.IFGE, 0x00, 0x06, // 16: ifge 22
	bc.IINC, 0x02, 0xff, // 19: iinc 2, -1
	bc.ILOAD_1,          // 22
	bc.IFGT, 0xff, 0xee, // 23: ifgt 5
	bc.ILOAD_2,          // 26
	bc.IRETURN,          // 27
}

func mustBuild(t *testing.T, method Method, computeStores bool, opts ...Option) *BlockMap {
	t.Helper()
	m := New(method, opts...)
	require.NoError(t, m.Build(computeStores))
	return m
}

func mustBlockAt(t *testing.T, m *BlockMap, bci int) *Block {
	t.Helper()
	b := m.Get(bci)
	require.NotNil(t, b, "no block at bci %d", bci)
	return b
}

func bcis(blocks []*Block) []int {
	out := make([]int, len(blocks))
	for i, b := range blocks {
		out[i] = b.BCI()
	}
	return out
}

func TestBuild_WhileLoop(t *testing.T) {
	m := mustBuild(t, &testMethod{code: whileLoop, maxLocals: 3}, true, WithFirstBlockID(1))

	require.Equal(t, 7, m.NumberOfBlocks())
	assert.Equal(t, len(whileLoop), m.NumberOfBytes())

	starts := []int{0, 5, 9, 15, 19, 22, 26}
	for bci := range whileLoop {
		assert.Equal(t, contains(starts, bci), m.Get(bci) != nil, "block at bci %d", bci)
	}

	tests := []struct {
		bci  int
		succ []int
		dfn  int
	}{
		{0, []int{22}, 2},
		{5, []int{9, 15}, 4},
		{9, []int{22}, 7},
		{15, []int{19, 22}, 5},
		{19, []int{22}, 6},
		{22, []int{26, 5}, 3},
		{26, []int{}, 8},
	}
	for _, tt := range tests {
		b := mustBlockAt(t, m, tt.bci)
		assert.Equal(t, tt.succ, bcis(m.Successors(b)), "successors of %s", b)
		assert.Equal(t, tt.dfn, b.DepthFirstNumber(), "dfn of %s", b)
		assert.Equal(t, tt.bci == 22, b.IsLoopHeader(), "loop header %s", b)
	}

	entry := mustBlockAt(t, m, 0)
	assert.True(t, entry.Has(StandardEntry))
	assert.Equal(t, 1, entry.ID())

	loop := bcis(m.LoopBlocks())
	assert.Equal(t, 4, count(loop, 22))
	assert.ElementsMatch(t, []int{22, 9, 22, 19, 22, 15, 5, 22, 0}, loop)

	stores := m.StoresInLoops()
	assert.True(t, stores.Test(2))
	assert.False(t, stores.Test(0))
	assert.False(t, stores.Test(1))
}

func TestBuild_ReversePostorder(t *testing.T) {
	m := mustBuild(t, &testMethod{code: whileLoop, maxLocals: 3}, false)

	seen := make(map[int]bool)
	for _, b := range m.Blocks() {
		dfn := b.DepthFirstNumber()
		require.NotEqual(t, NoDepthFirstNumber, dfn)
		assert.False(t, seen[dfn], "duplicate dfn %d", dfn)
		seen[dfn] = true

		// every forward edge goes to a higher number
		for _, s := range m.Successors(b) {
			if !s.IsLoopHeader() {
				assert.Greater(t, s.DepthFirstNumber(), dfn, "%s -> %s", b, s)
			}
		}
	}
	assert.Equal(t, 1, m.Get(0).DepthFirstNumber())
}

func TestBuild_StoresInLoopsDisabled(t *testing.T) {
	m := mustBuild(t, &testMethod{code: whileLoop, maxLocals: 3}, false)

	assert.Equal(t, uint(3), m.StoresInLoops().Count())
	for i := uint(0); i < 3; i++ {
		assert.True(t, m.StoresInLoops().Test(i))
	}
}

func TestBuild_TableSwitch(t *testing.T) {
	code := []byte{
		bc.ILOAD_0,             // 0
		bc.TABLESWITCH, 0, 0,   // 1, padded to 4
		0, 0, 0, 33, // default -> 34
		0, 0, 0, 0, // low
		0, 0, 0, 2, // high
		0, 0, 0, 27, // 0 -> 28
		0, 0, 0, 29, // 1 -> 30
		0, 0, 0, 31, // 2 -> 32
		bc.ICONST_1, bc.IRETURN, // 28
		bc.ICONST_2, bc.IRETURN, // 30
		bc.ICONST_3, bc.IRETURN, // 32
		bc.ICONST_0, bc.IRETURN, // 34
	}
	m := mustBuild(t, &testMethod{code: code, maxLocals: 1}, true)

	require.Equal(t, 5, m.NumberOfBlocks())
	succ := m.Successors(mustBlockAt(t, m, 0))
	require.Len(t, succ, 4)
	assert.Equal(t, []int{28, 30, 32, 34}, bcis(succ))
}

func TestBuild_LookupSwitch(t *testing.T) {
	code := []byte{
		bc.ILOAD_0,              // 0
		bc.LOOKUPSWITCH, 0, 0,   // 1, padded to 4
		0, 0, 0, 27, // default -> 28
		0, 0, 0, 2, // npairs
		0, 0, 0, 10, 0, 0, 0, 29, // 10 -> 30
		0, 0, 0, 20, 0, 0, 0, 27, // 20 -> 28
		bc.ICONST_0, bc.IRETURN, // 28
		bc.ICONST_1, bc.IRETURN, // 30
	}
	m := mustBuild(t, &testMethod{code: code, maxLocals: 1}, true)

	assert.Equal(t, []int{30, 28, 28}, bcis(m.Successors(mustBlockAt(t, m, 0))))
}

func TestBuild_CatchAllHandler(t *testing.T) {
	code := []byte{
		bc.ALOAD_0,                // 0
		bc.INVOKEVIRTUAL, 0, 2,    // 1
		bc.RETURN,                 // 4
		bc.ASTORE_1,               // 5: handler
		bc.ALOAD_1,                // 6
		bc.ATHROW,                 // 7
	}
	method := &testMethod{
		code:      code,
		maxLocals: 2,
		handlers:  []bc.ExceptionHandler{{StartBCI: 0, EndBCI: 8, HandlerBCI: 5}},
	}
	m := mustBuild(t, method, true)

	require.Equal(t, 2, m.NumberOfBlocks())
	handler := mustBlockAt(t, m, 5)
	assert.True(t, handler.Has(ExceptionEntry))
	assert.False(t, handler.Has(StandardEntry))

	assert.Equal(t, []*Block{handler}, m.Handlers(mustBlockAt(t, m, 0)))
	assert.Equal(t, []*Block{handler}, m.Handlers(handler))
	assert.NotEqual(t, NoDepthFirstNumber, handler.DepthFirstNumber())
	assert.Empty(t, m.Successors(mustBlockAt(t, m, 0)))
}

func TestBuild_HandlerOrder(t *testing.T) {
	// 0: invokestatic, 3: return, 4: handler A, 6: handler B
	code := []byte{
		bc.INVOKESTATIC, 0, 1,
		bc.RETURN,
		bc.ASTORE_0, bc.RETURN,
		bc.ASTORE_0, bc.RETURN,
	}
	tests := []struct {
		name     string
		handlers []bc.ExceptionHandler
		want     []int
	}{
		{
			name: "typed then catch-all",
			handlers: []bc.ExceptionHandler{
				{StartBCI: 0, EndBCI: 3, HandlerBCI: 4, CatchType: "java/io/IOException"},
				{StartBCI: 0, EndBCI: 3, HandlerBCI: 6},
			},
			want: []int{4, 6},
		},
		{
			name: "catch-all masks later handlers",
			handlers: []bc.ExceptionHandler{
				{StartBCI: 0, EndBCI: 3, HandlerBCI: 6},
				{StartBCI: 0, EndBCI: 3, HandlerBCI: 4, CatchType: "java/io/IOException"},
			},
			want: []int{6},
		},
		{
			name: "range excludes instruction",
			handlers: []bc.ExceptionHandler{
				{StartBCI: 3, EndBCI: 4, HandlerBCI: 4},
			},
			want: []int{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := mustBuild(t, &testMethod{code: code, maxLocals: 1, handlers: tt.handlers}, true)
			assert.Equal(t, tt.want, bcis(m.Handlers(mustBlockAt(t, m, 0))))
			for _, h := range tt.handlers {
				assert.True(t, mustBlockAt(t, m, h.HandlerBCI).Has(ExceptionEntry))
			}
		})
	}
}

func TestBuild_FinalizerRegistration(t *testing.T) {
	code := []byte{
		bc.ALOAD_0,  // 0
		bc.RETURN,   // 1
		bc.ASTORE_1, // 2: handler
		bc.ALOAD_1,
		bc.ATHROW,
	}
	newMethod := func() *testMethod {
		return &testMethod{
			code:       code,
			maxLocals:  2,
			handlers:   []bc.ExceptionHandler{{StartBCI: 0, EndBCI: 2, HandlerBCI: 2}},
			objectInit: true,
		}
	}

	m := mustBuild(t, newMethod(), true)
	assert.Empty(t, m.Handlers(mustBlockAt(t, m, 0)))

	m = mustBuild(t, newMethod(), true, WithFinalizerRegistration(true))
	assert.Equal(t, []int{2}, bcis(m.Handlers(mustBlockAt(t, m, 0))))
}

func TestBuild_SingleReturn(t *testing.T) {
	m := mustBuild(t, &testMethod{code: []byte{bc.RETURN}}, true)

	require.Equal(t, 1, m.NumberOfBlocks())
	b := mustBlockAt(t, m, 0)
	assert.Empty(t, m.Successors(b))
	assert.Empty(t, m.LoopBlocks())
	assert.Equal(t, 1, b.DepthFirstNumber())
	assert.Equal(t, StandardEntry, b.Flags())
}

func TestBuild_Subroutine(t *testing.T) {
	code := []byte{
		bc.JSR, 0x00, 0x04, // 0: jsr 4
		bc.RETURN,          // 3
		bc.ASTORE_1,        // 4
		bc.RET, 0x01,       // 5
	}
	m := mustBuild(t, &testMethod{code: code, maxLocals: 2}, true)

	require.Equal(t, 3, m.NumberOfBlocks())
	sub := mustBlockAt(t, m, 4)
	assert.True(t, sub.Has(SubroutineEntry))
	assert.Equal(t, []int{3, 4}, bcis(m.Successors(mustBlockAt(t, m, 0))))
	assert.Empty(t, m.Successors(sub))
}

func TestBuild_UnreachableCode(t *testing.T) {
	code := []byte{
		bc.GOTO, 0x00, 0x06, // 0: goto 6
		bc.GOTO, 0x00, 0x00, // 3: goto 3, never reached
		bc.RETURN,           // 6
	}
	m := mustBuild(t, &testMethod{code: code}, true, WithFirstBlockID(10))

	dead := mustBlockAt(t, m, 3)
	assert.Equal(t, NoDepthFirstNumber, dead.DepthFirstNumber())
	assert.False(t, dead.IsLoopHeader())
	assert.Equal(t, 12, m.Get(0).DepthFirstNumber())
	assert.Equal(t, 13, m.Get(6).DepthFirstNumber())
}

func TestBuild_DropsListsOutsideBlocks(t *testing.T) {
	code := []byte{
		bc.RETURN,           // 0
		bc.GOTO, 0xff, 0xff, // 1: goto 0, no block starts here
	}
	m := mustBuild(t, &testMethod{code: code}, true)

	require.Equal(t, 1, m.NumberOfBlocks())
	assert.Empty(t, m.Successors(m.Get(0)))
	assert.Nil(t, m.successorMap[1])
}

func TestBuild_FallThroughEdge(t *testing.T) {
	code := []byte{
		bc.ICONST_0,         // 0
		bc.ISTORE_0,         // 1
		bc.ILOAD_0,          // 2: loop header, reached by fall-through
		bc.IFEQ, 0xff, 0xff, // 3: ifeq 2
		bc.RETURN,           // 6
	}
	m := mustBuild(t, &testMethod{code: code, maxLocals: 1}, true)

	assert.Equal(t, []int{2}, bcis(m.Successors(mustBlockAt(t, m, 0))))
	assert.Equal(t, []int{6, 2}, bcis(m.Successors(mustBlockAt(t, m, 2))))
	assert.True(t, m.Get(2).IsLoopHeader())
}

func TestBuild_LoopStores(t *testing.T) {
	code := []byte{
		bc.ISTORE_3,                                 // 0
		bc.LSTORE_1,                                 // 1: loop header
		bc.WIDE, bc.LSTORE, 0x00, 0x05,              // 2
		bc.WIDE, bc.IINC, 0x01, 0x2c, 0x00, 0x01,    // 6: iinc 300, 1
		bc.GOTO, 0xff, 0xf5,                         // 12: goto 1
	}
	m := mustBuild(t, &testMethod{code: code, maxLocals: 301}, true)

	require.True(t, m.Get(1).IsLoopHeader())
	stores := m.StoresInLoops()
	for _, slot := range []uint{1, 2, 5, 6, 300} {
		assert.True(t, stores.Test(slot), "slot %d", slot)
	}
	// the entry block leads into the loop and is scanned as well
	assert.True(t, stores.Test(3))
	assert.False(t, stores.Test(0))
	assert.False(t, stores.Test(4))
	assert.False(t, stores.Test(7))
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name     string
		code     []byte
		handlers []bc.ExceptionHandler
		want     error
	}{
		{"empty code", nil, nil, ErrMalformedCode},
		{"falls off end", []byte{bc.ICONST_0, bc.POP}, nil, ErrFellOffEnd},
		{"branch past end", []byte{bc.GOTO, 0x00, 0x10}, nil, ErrMalformedCode},
		{"branch before start", []byte{bc.NOP, bc.GOTO, 0xff, 0xf0}, nil, ErrMalformedCode},
		{"truncated operand", []byte{bc.NOP, bc.GOTO, 0x00}, nil, ErrMalformedCode},
		{"undefined opcode", []byte{0xcb, bc.RETURN}, nil, ErrMalformedCode},
		{
			"handler outside code",
			[]byte{bc.RETURN},
			[]bc.ExceptionHandler{{StartBCI: 0, EndBCI: 1, HandlerBCI: 4}},
			ErrMalformedCode,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(&testMethod{code: tt.code, handlers: tt.handlers})
			assert.ErrorIs(t, m.Build(true), tt.want)
		})
	}
}

func TestBuild_Lifecycle(t *testing.T) {
	m := mustBuild(t, &testMethod{code: whileLoop, maxLocals: 3}, true)
	assert.ErrorIs(t, m.Build(true), ErrAlreadyBuilt)

	header := m.Get(22)
	require.NotEmpty(t, m.Successors(header))

	m.Cleanup()
	assert.Nil(t, m.Successors(header))
	assert.Nil(t, m.Handlers(header))
	assert.Nil(t, m.LoopBlocks())
	assert.Same(t, header, m.Get(22))
	assert.Equal(t, 7, m.NumberOfBlocks())
	assert.True(t, m.StoresInLoops().Test(2))
	assert.ErrorIs(t, m.Build(true), ErrCleanedUp)
}

func TestAddEntrypoint(t *testing.T) {
	m := New(&testMethod{code: whileLoop, maxLocals: 3})
	require.NoError(t, m.AddEntrypoint(26, ExceptionEntry))
	assert.ErrorIs(t, m.AddEntrypoint(len(whileLoop), ExceptionEntry), ErrMalformedCode)
	require.NoError(t, m.Build(true))

	b := mustBlockAt(t, m, 26)
	assert.Equal(t, 0, b.ID())
	assert.True(t, b.Has(ExceptionEntry))
	assert.Equal(t, "B0@26", b.String())
}

func TestBlockFlag_String(t *testing.T) {
	assert.Equal(t, "", BlockFlag(0).String())
	assert.Equal(t, "standard_entry|loop_header", (StandardEntry | LoopHeader).String())
	assert.Equal(t, []string{"exception_entry", "subroutine_entry"}, (ExceptionEntry | SubroutineEntry).Names())
}

func contains(s []int, v int) bool {
	return count(s, v) > 0
}

func count(s []int, v int) int {
	n := 0
	for _, x := range s {
		if x == v {
			n++
		}
	}
	return n
}
