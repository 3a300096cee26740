package cfg

import (
	"fmt"
	"slices"

	"github.com/l3aro/go-blockmap/pkg/blockmap"
)

// BlockID returns the CFG identifier of a block.
func BlockID(b *blockmap.Block) string {
	return fmt.Sprintf("B%d", b.ID())
}

// FromBlockMap converts a built block map into a CFGInfo. It must be called
// before the block map is cleaned up.
func FromBlockMap(name string, bm *blockmap.BlockMap) *CFGInfo {
	blocks := slices.Clone(bm.Blocks())
	slices.SortFunc(blocks, func(a, b *blockmap.Block) int { return a.BCI() - b.BCI() })

	info := &CFGInfo{
		FunctionName:  name,
		CodeLength:    bm.NumberOfBytes(),
		Blocks:        make(map[string]CFGBlock, len(blocks)),
		Order:         make([]string, 0, len(blocks)),
		Edges:         make([]CFGEdge, 0),
		ExitBlockIDs:  make([]string, 0),
		StoresInLoops: make([]int, 0),
	}
	if entry := bm.Get(0); entry != nil {
		info.EntryBlockID = BlockID(entry)
	}

	preds := make(map[string][]string)
	for i, b := range blocks {
		id := BlockID(b)
		end := bm.NumberOfBytes()
		if i+1 < len(blocks) {
			end = blocks[i+1].BCI()
		}
		block := CFGBlock{
			ID:               id,
			Type:             blockType(bm, b),
			Flags:            b.Flags().Names(),
			StartBCI:         b.BCI(),
			EndBCI:           end,
			DepthFirstNumber: b.DepthFirstNumber(),
			Successors:       make([]string, 0),
		}

		for _, s := range bm.Successors(b) {
			sid := BlockID(s)
			block.Successors = append(block.Successors, sid)
			info.Edges = append(info.Edges, CFGEdge{SourceID: id, TargetID: sid, EdgeType: successorEdgeType(b, s)})
			preds[sid] = appendUnique(preds[sid], id)
		}
		for _, h := range bm.Handlers(b) {
			hid := BlockID(h)
			block.Handlers = append(block.Handlers, hid)
			info.Edges = append(info.Edges, CFGEdge{SourceID: id, TargetID: hid, EdgeType: EdgeTypeException})
			preds[hid] = appendUnique(preds[hid], id)
		}

		if len(block.Successors) == 0 {
			info.ExitBlockIDs = append(info.ExitBlockIDs, id)
		}
		if b.IsLoopHeader() {
			info.LoopHeaderIDs = append(info.LoopHeaderIDs, id)
		}
		info.Blocks[id] = block
		info.Order = append(info.Order, id)
	}

	for id, block := range info.Blocks {
		block.Predecessors = preds[id]
		if block.Predecessors == nil {
			block.Predecessors = make([]string, 0)
		}
		info.Blocks[id] = block
	}

	for slot, ok := bm.StoresInLoops().NextSet(0); ok; slot, ok = bm.StoresInLoops().NextSet(slot + 1) {
		info.StoresInLoops = append(info.StoresInLoops, int(slot))
	}

	info.CyclomaticComplexity = max(len(info.Edges)-len(info.Blocks)+2, 1)
	return info
}

// blockType picks the most specific type for a block. A handler or
// subroutine entry that also heads a loop is reported by its entry kind.
func blockType(bm *blockmap.BlockMap, b *blockmap.Block) BlockType {
	switch {
	case b.Has(blockmap.StandardEntry):
		return BlockTypeEntry
	case b.Has(blockmap.ExceptionEntry):
		return BlockTypeHandler
	case b.Has(blockmap.SubroutineEntry):
		return BlockTypeSubroutine
	case b.DepthFirstNumber() == blockmap.NoDepthFirstNumber:
		return BlockTypeDead
	case b.IsLoopHeader():
		return BlockTypeLoopHeader
	case len(bm.Successors(b)) == 0:
		return BlockTypeExit
	}
	return BlockTypePlain
}

// successorEdgeType classifies an edge as a back edge when it reaches a
// loop header numbered no later than its source.
func successorEdgeType(from, to *blockmap.Block) EdgeType {
	if to.IsLoopHeader() && from.DepthFirstNumber() != blockmap.NoDepthFirstNumber &&
		to.DepthFirstNumber() <= from.DepthFirstNumber() {
		return EdgeTypeBackEdge
	}
	return EdgeTypeSuccessor
}

func appendUnique(s []string, v string) []string {
	if slices.Contains(s, v) {
		return s
	}
	return append(s, v)
}
