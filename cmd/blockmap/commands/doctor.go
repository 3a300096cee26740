package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-blockmap/internal/config"
	"github.com/l3aro/go-blockmap/internal/healthcheck"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run health checks on configuration and cache",
	Long: `Checks which configuration file is in effect, validates it and verifies
that the result cache can be read.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := healthcheck.Check(appConfig, "", effectiveConfigPath())
		if err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}

		displayDoctorResult(result)

		if !result.OK() {
			return fmt.Errorf("health check failed: cache is not readable")
		}
		return nil
	},
}

// effectiveConfigPath returns the highest priority config file that exists,
// or "" when only defaults and environment variables apply.
func effectiveConfigPath() string {
	projectConfigPath := config.ProjectConfigFilePath()
	if fileExists(projectConfigPath) {
		return projectConfigPath
	}
	if home, err := os.UserHomeDir(); err == nil {
		globalConfigPath := filepath.Join(home, ".blockmap", "config.yaml")
		if fileExists(globalConfigPath) {
			return globalConfigPath
		}
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

func displayDoctorResult(result *healthcheck.HealthCheckResult) {
	if result.EffectivePath == "" {
		fmt.Println("Using config: defaults (run 'blockmap init' to create a configuration file)")
	} else {
		fmt.Printf("Using config: %s (%s)\n", result.EffectivePath, result.EffectiveScope)
	}

	fmt.Printf("\nBuild options:\n")
	fmt.Printf("  First block id: %d\n", appConfig.FirstBlockID)
	fmt.Printf("  Compute stores in loops: %t\n", appConfig.ComputeStoresInLoops)
	fmt.Printf("  Register finalizers: %t\n", appConfig.RegisterFinalizers)

	fmt.Println("\nCache:")
	if result.Cache.Path != "" {
		fmt.Printf("  Path: %s\n", result.Cache.Path)
	}
	fmt.Printf("  Status: %s %s\n", formatStatusIcon(result.Cache.Status), result.Cache.Status)
	if result.Cache.Status == "ready" {
		fmt.Printf("  Entries: %d (%d bytes)\n", result.Cache.Entries, result.Cache.Bytes)
	}
	if result.Cache.Error != "" {
		fmt.Printf("  Error: %s\n", result.Cache.Error)
	}
}

func formatStatusIcon(status string) string {
	switch status {
	case "ready", "empty", "disabled":
		return "✓"
	case "stale":
		return "◐"
	case "error":
		return "✗"
	default:
		return "?"
	}
}

func init() {
	RootCmd.AddCommand(doctorCmd)
}
