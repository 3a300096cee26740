package commands

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-blockmap/internal/analyzer"
	bc "github.com/l3aro/go-blockmap/pkg/bytecode"
	"github.com/l3aro/go-blockmap/pkg/classfile"
)

func TestSummarize(t *testing.T) {
	b := classfile.NewBuilder("demo/Once", "java/lang/Object")
	b.AddMethod(0x0009, "id", "(I)I", 1, []byte{bc.ILOAD_0, bc.IRETURN})
	b.AddMethod(0x0009, "bad", "()V", 0, []byte{bc.NOP})
	c, err := classfile.Parse(b.Bytes())
	require.NoError(t, err)

	a := analyzer.New(analyzer.Options{ComputeStoresInLoops: true, CacheSize: 4})
	methods, err := a.AnalyzeClass(c, "")
	require.NoError(t, err)

	summaries := summarize([]analyzer.FileResult{
		{Path: "demo/Once.class", Class: c.Name, Methods: methods},
		{Path: "Broken.class", Err: errors.New("truncated")},
	})
	require.Len(t, summaries, 2)

	once := summaries[0]
	require.Len(t, once.Methods, 2)
	assert.Equal(t, methodSummary{
		Class:                "demo/Once",
		Method:               "id(I)I",
		Blocks:               1,
		Edges:                0,
		LoopHeaders:          0,
		StoresInLoops:        []int{},
		CyclomaticComplexity: 1,
	}, once.Methods[0])
	assert.Equal(t, "bad()V", once.Methods[1].Method)
	assert.Contains(t, once.Methods[1].Error, "fell off end")

	assert.Equal(t, "truncated", summaries[1].Error)
	assert.Empty(t, summaries[1].Methods)
}
