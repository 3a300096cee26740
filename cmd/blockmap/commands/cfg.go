// Package commands provides the CLI commands for the blockmap tool.
package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-blockmap/internal/analyzer"
	"github.com/l3aro/go-blockmap/pkg/cfg"
)

// cfgCmd represents the cfg command
var cfgCmd = &cobra.Command{
	Use:   "cfg <file.class> [method]",
	Short: "Build the control flow graph of class file methods",
	Long: `Builds the Control Flow Graph (CFG) of every method with code in a class file,
or only of the methods whose name or signature (e.g. "run()V") matches the second argument.
Outputs blocks, edges, loop headers, locals stored in loops and cyclomatic complexity.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		filePath := args[0]
		methodName := ""
		if len(args) > 1 {
			methodName = args[1]
		}

		info, err := os.Stat(filePath)
		if err != nil {
			return fmt.Errorf("stat file: %w", err)
		}
		if info.IsDir() {
			return fmt.Errorf("path is a directory, expected a class file: %s (use scan)", filePath)
		}
		if !strings.HasSuffix(filePath, ".class") {
			return fmt.Errorf("unsupported file type: %s (only .class files supported)", filePath)
		}

		opts, err := buildOptions(cmd)
		if err != nil {
			return err
		}
		a := newAnalyzer(opts)
		result, err := a.AnalyzeFile(filePath, methodName)
		if err != nil {
			return fmt.Errorf("analyzing %s: %w", filePath, err)
		}
		saveCache(a, opts)

		var infos []*cfg.CFGInfo
		for _, m := range result.Methods {
			if m.Err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", m.Err)
				continue
			}
			infos = append(infos, m.CFG)
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			var v any = infos
			if len(infos) == 1 {
				v = infos[0]
			}
			data, err := json.MarshalIndent(v, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling JSON: %w", err)
			}
			fmt.Println(string(data))
		} else {
			for i, info := range infos {
				if i > 0 {
					fmt.Println()
				}
				printCFGInfo(result.Class, info)
			}
		}

		if failed := result.Failed(); failed > 0 {
			return fmt.Errorf("%d of %d methods failed", failed, len(result.Methods))
		}
		return nil
	},
}

// buildOptions returns the analyzer options from the configuration and the
// build flags of cmd.
func buildOptions(cmd *cobra.Command) (analyzer.Options, error) {
	opts := analyzer.OptionsFromConfig(appConfig)

	flags := cmd.Flags()
	if flags.Changed("first-block") {
		opts.FirstBlockID, _ = flags.GetInt("first-block")
		if opts.FirstBlockID < 0 {
			return opts, fmt.Errorf("--first-block must be >= 0, got %d", opts.FirstBlockID)
		}
	}
	if noStores, _ := flags.GetBool("no-loop-stores"); noStores {
		opts.ComputeStoresInLoops = false
	}
	if flags.Changed("finalizers") {
		opts.RegisterFinalizers, _ = flags.GetBool("finalizers")
	}
	return opts, nil
}

// addBuildFlags registers the flags read by buildOptions.
func addBuildFlags(cmd *cobra.Command) {
	cmd.Flags().Int("first-block", 0, "Id of the first block of each method")
	cmd.Flags().Bool("no-loop-stores", false, "Skip the loop-store analysis and report every local as stored in a loop")
	cmd.Flags().Bool("finalizers", false, "Treat the returns of java.lang.Object.<init> as trapping")
}

// printCFGInfo prints CFG information in human-readable format.
func printCFGInfo(className string, info *cfg.CFGInfo) {
	fmt.Printf("=== CFG for method: %s.%s ===\n", className, info.FunctionName)
	fmt.Printf("Code Length: %d\n", info.CodeLength)
	fmt.Printf("Cyclomatic Complexity: %d\n", info.CyclomaticComplexity)
	fmt.Printf("Entry Block: %s\n", info.EntryBlockID)
	fmt.Printf("Exit Blocks: %v\n", info.ExitBlockIDs)
	fmt.Printf("Loop Headers: %v\n", info.LoopHeaderIDs)
	fmt.Printf("Stores In Loops: %v\n", info.StoresInLoops)

	fmt.Printf("\nBlocks (%d):\n", len(info.Blocks))
	for _, id := range info.Order {
		block := info.Blocks[id]
		fmt.Printf("  %s (%s, bci %d-%d, dfn %d)", id, block.Type, block.StartBCI, block.EndBCI, block.DepthFirstNumber)
		if len(block.Flags) > 0 {
			fmt.Printf(" [%s]", strings.Join(block.Flags, ", "))
		}
		fmt.Println()
		if len(block.Handlers) > 0 {
			fmt.Printf("    handlers: %s\n", strings.Join(block.Handlers, ", "))
		}
	}

	fmt.Printf("\nEdges (%d):\n", len(info.Edges))
	for _, edge := range info.Edges {
		fmt.Printf("  %s --%s--> %s\n", edge.SourceID, edge.EdgeType, edge.TargetID)
	}
}

func init() {
	cfgCmd.Flags().BoolP("json", "j", false, "Output as JSON")
	addBuildFlags(cfgCmd)
	RootCmd.AddCommand(cfgCmd)
}
