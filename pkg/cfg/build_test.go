package cfg

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-blockmap/pkg/blockmap"
	bc "github.com/l3aro/go-blockmap/pkg/bytecode"
)

type method struct {
	code      []byte
	maxLocals int
	handlers  []bc.ExceptionHandler
}

func (m method) Code() []byte                             { return m.code }
func (m method) MaxLocals() int                           { return m.maxLocals }
func (m method) ExceptionHandlers() []bc.ExceptionHandler { return m.handlers }
func (m method) IsObjectInit() bool                       { return false }

var whileLoop = []byte{
	bc.ICONST_0, bc.ISTORE_2,
	bc.GOTO, 0x00, 0x14,
	bc.ILOAD_0, bc.IFLE, 0x00, 0x09,
	bc.IINC, 0x02, 0x01,
	bc.GOTO, 0x00, 0x0a,
	bc.ILOAD_0, bc.IFGE, 0x00, 0x06,
	bc.IINC, 0x02, 0xff,
	bc.ILOAD_1, bc.IFGT, 0xff, 0xee,
	bc.ILOAD_2, bc.IRETURN,
}

func build(t *testing.T, m method) *blockmap.BlockMap {
	t.Helper()
	bm := blockmap.New(m)
	require.NoError(t, bm.Build(true))
	return bm
}

func TestFromBlockMap_WhileLoop(t *testing.T) {
	info := FromBlockMap("test(II)I", build(t, method{code: whileLoop, maxLocals: 3}))

	assert.Equal(t, "test(II)I", info.FunctionName)
	assert.Equal(t, 28, info.CodeLength)
	assert.Equal(t, "B0", info.EntryBlockID)
	assert.Equal(t, []string{"B0", "B6", "B2", "B3", "B4", "B1", "B5"}, info.Order)
	assert.Len(t, info.Blocks, 7)
	assert.Len(t, info.Edges, 9)
	assert.Equal(t, 3, info.BackEdges())
	assert.Equal(t, 4, info.CyclomaticComplexity)
	assert.Equal(t, []string{"B1"}, info.LoopHeaderIDs)
	assert.Equal(t, []string{"B5"}, info.ExitBlockIDs)
	assert.Equal(t, []int{2}, info.StoresInLoops)

	tests := []struct {
		id     string
		typ    BlockType
		start  int
		end    int
		succ   []string
		preds  []string
		dfn    int
	}{
		{"B0", BlockTypeEntry, 0, 5, []string{"B1"}, []string{}, 1},
		{"B6", BlockTypePlain, 5, 9, []string{"B2", "B3"}, []string{"B1"}, 3},
		{"B1", BlockTypeLoopHeader, 22, 26, []string{"B5", "B6"}, []string{"B0", "B2", "B3", "B4"}, 2},
		{"B4", BlockTypePlain, 19, 22, []string{"B1"}, []string{"B3"}, 5},
		{"B5", BlockTypeExit, 26, 28, []string{}, []string{"B1"}, 7},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			b, ok := info.Blocks[tt.id]
			require.True(t, ok)
			assert.Equal(t, tt.typ, b.Type)
			assert.Equal(t, tt.start, b.StartBCI)
			assert.Equal(t, tt.end, b.EndBCI)
			assert.Equal(t, tt.succ, b.Successors)
			assert.ElementsMatch(t, tt.preds, b.Predecessors)
			assert.Equal(t, tt.dfn, b.DepthFirstNumber)
		})
	}

	assert.Contains(t, info.Edges, CFGEdge{SourceID: "B2", TargetID: "B1", EdgeType: EdgeTypeBackEdge})
	assert.Contains(t, info.Edges, CFGEdge{SourceID: "B0", TargetID: "B1", EdgeType: EdgeTypeSuccessor})
	assert.Contains(t, info.Edges, CFGEdge{SourceID: "B1", TargetID: "B6", EdgeType: EdgeTypeSuccessor})
}

func TestFromBlockMap_Handlers(t *testing.T) {
	code := []byte{
		bc.ALOAD_0, bc.INVOKEVIRTUAL, 0, 2, bc.RETURN,
		bc.ASTORE_1, bc.RETURN,
	}
	info := FromBlockMap("run()V", build(t, method{
		code:      code,
		maxLocals: 2,
		handlers:  []bc.ExceptionHandler{{StartBCI: 0, EndBCI: 5, HandlerBCI: 5}},
	}))

	handler := info.Blocks["B1"]
	assert.Equal(t, BlockTypeHandler, handler.Type)
	assert.Equal(t, []string{"exception_entry"}, handler.Flags)
	assert.Equal(t, []string{"B0"}, handler.Predecessors)
	assert.Equal(t, []string{"B1"}, info.Blocks["B0"].Handlers)
	assert.Equal(t, []CFGEdge{{SourceID: "B0", TargetID: "B1", EdgeType: EdgeTypeException}}, info.Edges)
	assert.ElementsMatch(t, []string{"B0", "B1"}, info.ExitBlockIDs)
	assert.Empty(t, info.StoresInLoops)
}

func TestFromBlockMap_DeadBlock(t *testing.T) {
	code := []byte{
		bc.GOTO, 0x00, 0x06,
		bc.GOTO, 0x00, 0x00,
		bc.RETURN,
	}
	info := FromBlockMap("dead()V", build(t, method{code: code}))

	dead := info.Blocks["B2"]
	assert.Equal(t, 3, dead.StartBCI)
	assert.Equal(t, BlockTypeDead, dead.Type)
	assert.Equal(t, blockmap.NoDepthFirstNumber, dead.DepthFirstNumber)
	assert.Equal(t, 0, info.BackEdges())
}

func TestCFGInfo_JSON(t *testing.T) {
	info := FromBlockMap("test(II)I", build(t, method{code: whileLoop, maxLocals: 3}))

	data, err := json.Marshal(info)
	require.NoError(t, err)

	var decoded CFGInfo
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, *info, decoded)
}
