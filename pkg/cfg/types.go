// Package cfg defines data structures for representing Control Flow Graphs (CFGs).
// It provides types for blocks, edges, and the complete CFG information of a
// method, derived from a built block map.
package cfg

// BlockType represents the type of a CFG block.
type BlockType string

const (
	BlockTypeEntry      BlockType = "entry"       // Method entry point
	BlockTypeHandler    BlockType = "handler"     // Exception handler entry
	BlockTypeSubroutine BlockType = "subroutine"  // jsr target
	BlockTypeLoopHeader BlockType = "loop_header" // Target of a back edge
	BlockTypeExit       BlockType = "exit"        // Ends with return, throw or ret
	BlockTypePlain      BlockType = "plain"       // Regular straight-line code
	BlockTypeDead       BlockType = "dead"        // Not reachable from the entry
)

// EdgeType represents the type of a CFG edge.
type EdgeType string

const (
	EdgeTypeSuccessor EdgeType = "successor" // Branch, switch case or fall-through
	EdgeTypeBackEdge  EdgeType = "back_edge" // Successor edge closing a loop
	EdgeTypeException EdgeType = "exception" // Trap to a covering handler
)

// CFGBlock represents a basic block in the Control Flow Graph.
// A block covers the bytecode from StartBCI up to EndBCI, exclusive.
type CFGBlock struct {
	ID               string    `json:"id" msgpack:"id"`                                 // Unique identifier for the block
	Type             BlockType `json:"type" msgpack:"type"`                             // Dominant kind of block
	Flags            []string  `json:"flags,omitempty" msgpack:"flags,omitempty"`       // All block flags
	StartBCI         int       `json:"start_bci" msgpack:"start_bci"`                   // First bytecode index
	EndBCI           int       `json:"end_bci" msgpack:"end_bci"`                       // Bytecode index past the block
	DepthFirstNumber int       `json:"depth_first_number" msgpack:"depth_first_number"` // Reverse postorder number, -1 if unreachable
	Successors       []string  `json:"successors" msgpack:"successors"`                 // IDs of normal successors, in order
	Handlers         []string  `json:"handlers,omitempty" msgpack:"handlers,omitempty"` // IDs of covering exception handlers
	Predecessors     []string  `json:"predecessors" msgpack:"predecessors"`             // IDs of blocks that can precede this block
}

// CFGEdge represents a directed edge between two CFG blocks.
type CFGEdge struct {
	SourceID string   `json:"source_id" msgpack:"source_id"` // ID of the source block
	TargetID string   `json:"target_id" msgpack:"target_id"` // ID of the target block
	EdgeType EdgeType `json:"edge_type" msgpack:"edge_type"` // Type of edge
}

// CFGInfo represents the complete Control Flow Graph for a method.
type CFGInfo struct {
	FunctionName         string              `json:"function_name" msgpack:"function_name"`                 // Name of the method
	CodeLength           int                 `json:"code_length" msgpack:"code_length"`                     // Length of the bytecode
	Blocks               map[string]CFGBlock `json:"blocks" msgpack:"blocks"`                               // Map of block ID to block
	Order                []string            `json:"order" msgpack:"order"`                                 // Block IDs by start bci
	Edges                []CFGEdge           `json:"edges" msgpack:"edges"`                                 // List of edges in the graph
	EntryBlockID         string              `json:"entry_block_id" msgpack:"entry_block_id"`               // ID of the entry block
	ExitBlockIDs         []string            `json:"exit_block_ids" msgpack:"exit_block_ids"`               // IDs of exit blocks
	LoopHeaderIDs        []string            `json:"loop_header_ids" msgpack:"loop_header_ids"`             // IDs of loop headers
	StoresInLoops        []int               `json:"stores_in_loops" msgpack:"stores_in_loops"`             // Local slots stored inside loops
	CyclomaticComplexity int                 `json:"cyclomatic_complexity" msgpack:"cyclomatic_complexity"` // Cyclomatic complexity of the method
}

// BackEdges returns the number of back edges.
func (c *CFGInfo) BackEdges() int {
	n := 0
	for _, e := range c.Edges {
		if e.EdgeType == EdgeTypeBackEdge {
			n++
		}
	}
	return n
}
