package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-blockmap/internal/analyzer"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan [dir]",
	Short: "Summarize the CFGs of every class file under a directory",
	Long: `Walks a directory tree for .class files, honouring .blockmapignore files, and builds
the CFG of every method. Prints one line per method with its block, edge and loop counts.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := "."
		if len(args) > 0 {
			root = args[0]
		}

		opts, err := buildOptions(cmd)
		if err != nil {
			return err
		}
		opts.Workers, _ = cmd.Flags().GetInt("workers")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		a := newAnalyzer(opts)
		results, err := a.AnalyzeDir(ctx, root)
		saveCache(a, opts)
		if err != nil {
			return err
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			return printScanJSON(results)
		}
		return printScanTable(results)
	},
}

type methodSummary struct {
	Class                string `json:"class"`
	Method               string `json:"method"`
	Blocks               int    `json:"blocks"`
	Edges                int    `json:"edges"`
	BackEdges            int    `json:"back_edges"`
	LoopHeaders          int    `json:"loop_headers"`
	StoresInLoops        []int  `json:"stores_in_loops"`
	CyclomaticComplexity int    `json:"cyclomatic_complexity"`
	Cached               bool   `json:"cached"`
	Error                string `json:"error,omitempty"`
}

type fileSummary struct {
	Path    string          `json:"path"`
	Error   string          `json:"error,omitempty"`
	Methods []methodSummary `json:"methods,omitempty"`
}

func summarize(results []analyzer.FileResult) []fileSummary {
	summaries := make([]fileSummary, 0, len(results))
	for _, r := range results {
		s := fileSummary{Path: r.Path}
		if r.Err != nil {
			s.Error = r.Err.Error()
		}
		for _, m := range r.Methods {
			ms := methodSummary{Class: r.Class, Method: m.Method.Signature(), Cached: m.Cached}
			if m.Err != nil {
				ms.Error = m.Err.Error()
			} else {
				ms.Blocks = len(m.CFG.Blocks)
				ms.Edges = len(m.CFG.Edges)
				ms.BackEdges = m.CFG.BackEdges()
				ms.LoopHeaders = len(m.CFG.LoopHeaderIDs)
				ms.StoresInLoops = m.CFG.StoresInLoops
				ms.CyclomaticComplexity = m.CFG.CyclomaticComplexity
			}
			s.Methods = append(s.Methods, ms)
		}
		summaries = append(summaries, s)
	}
	return summaries
}

func printScanJSON(results []analyzer.FileResult) error {
	data, err := json.MarshalIndent(summarize(results), "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func printScanTable(results []analyzer.FileResult) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "METHOD\tBLOCKS\tEDGES\tLOOPS\tCC\tSTORES IN LOOPS")

	methods, failed := 0, 0
	for _, f := range summarize(results) {
		if f.Error != "" {
			fmt.Fprintf(w, "%s\terror: %s\t\t\t\t\n", f.Path, f.Error)
			failed++
			continue
		}
		for _, m := range f.Methods {
			methods++
			name := m.Class + "." + m.Method
			if m.Error != "" {
				fmt.Fprintf(w, "%s\terror: %s\t\t\t\t\n", name, m.Error)
				failed++
				continue
			}
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%v\n", name, m.Blocks, m.Edges, m.LoopHeaders, m.CyclomaticComplexity, m.StoresInLoops)
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("\n%d class files, %d methods, %d failures\n", len(results), methods, failed)
	return nil
}

func init() {
	scanCmd.Flags().BoolP("json", "j", false, "Output as JSON")
	scanCmd.Flags().Int("workers", 0, "Class files analyzed concurrently (0 = one per CPU)")
	addBuildFlags(scanCmd)
	RootCmd.AddCommand(scanCmd)
}
