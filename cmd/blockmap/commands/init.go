package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/l3aro/go-blockmap/internal/config"
	"github.com/l3aro/go-blockmap/internal/healthcheck"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize blockmap configuration interactively",
	Long: `Guides you through setting up blockmap configuration step by step.
Creates a config file with the CFG build options, cache and logging settings.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInit()
	},
}

func runInit() error {
	defaults := config.DefaultConfig()

	// === SECTION 1: Build options ===
	firstBlock := strconv.Itoa(defaults.FirstBlockID)
	computeStores := defaults.ComputeStoresInLoops
	registerFinalizers := defaults.RegisterFinalizers

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("First block id").
				Description("Id given to the first block of every method").
				Placeholder("0").
				Validate(func(s string) error {
					n, err := strconv.Atoi(s)
					if err != nil || n < 0 {
						return fmt.Errorf("enter a non-negative integer")
					}
					return nil
				}).
				Value(&firstBlock),
			huh.NewConfirm().
				Title("Compute locals stored in loops?").
				Description("When disabled every local is reported as stored in a loop").
				Value(&computeStores),
			huh.NewConfirm().
				Title("Register finalizers?").
				Description("Treat the returns of java.lang.Object.<init> as trapping").
				Value(&registerFinalizers),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	// === SECTION 2: Cache and logging ===
	useCache := true
	logLevel := defaults.LogLevel
	jsonLogs := defaults.JSONLogs

	form = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Cache results?").
				Description(fmt.Sprintf("Persist built CFGs to %s", defaults.CacheFile)).
				Affirmative("Yes").
				Negative("No").
				Value(&useCache),
			huh.NewSelect[string]().
				Title("Log level").
				Options(
					huh.NewOption("Debug", "debug"),
					huh.NewOption("Info", "info"),
					huh.NewOption("Warn", "warn"),
					huh.NewOption("Error", "error"),
				).
				Value(&logLevel),
			huh.NewConfirm().
				Title("Write logs as JSON?").
				Value(&jsonLogs),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	// === SECTION 3: Config Location ===
	var saveLocationChoice string
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Save Configuration").
				Description("Where to save the configuration file?").
				Options(
					huh.NewOption("Project (./.blockmap/config.yaml)", "project"),
					huh.NewOption("Global (~/.blockmap/config.yaml)", "global"),
				).
				Value(&saveLocationChoice),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	configPath := config.ProjectConfigFilePath()
	if saveLocationChoice == "global" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("getting home directory: %w", err)
		}
		configPath = filepath.Join(home, ".blockmap", "config.yaml")
	}

	// Check if config already exists
	if _, err := os.Stat(configPath); err == nil {
		var overwrite bool
		form = huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title("Config file exists").
					Description(fmt.Sprintf("Overwrite existing config at %s?", configPath)).
					Affirmative("Overwrite").
					Negative("Cancel").
					Value(&overwrite),
			),
		)
		if err := form.Run(); err != nil {
			return fmt.Errorf("interactive prompt failed: %w", err)
		}
		if !overwrite {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	// === Build config struct ===
	cfg := config.DefaultConfig()
	cfg.FirstBlockID, _ = strconv.Atoi(firstBlock)
	cfg.ComputeStoresInLoops = computeStores
	cfg.RegisterFinalizers = registerFinalizers
	if !useCache {
		cfg.CacheFile = ""
	}
	cfg.LogLevel = logLevel
	cfg.JSONLogs = jsonLogs

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	fmt.Println("\n=== Configuration Preview ===")
	fmt.Printf("Config path: %s\n", configPath)
	fmt.Printf("First block id: %d\n", cfg.FirstBlockID)
	fmt.Printf("Compute stores in loops: %t\n", cfg.ComputeStoresInLoops)
	fmt.Printf("Register finalizers: %t\n", cfg.RegisterFinalizers)
	if cfg.CacheFile == "" {
		fmt.Println("Cache: disabled")
	} else {
		fmt.Printf("Cache: %s (%d entries)\n", cfg.CacheFile, cfg.CacheSize)
	}
	fmt.Printf("Log level: %s (json: %t)\n", cfg.LogLevel, cfg.JSONLogs)
	fmt.Println("================================")

	if err := cfg.Save(configPath); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	fmt.Printf("Configuration saved to: %s\n", configPath)

	// === SECTION 4: Health Check ===
	fmt.Println("\n=== Running Health Check ===")

	loadedCfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("loading saved config: %w", err)
	}
	result, err := healthcheck.Check(loadedCfg, configPath, effectiveConfigPath())
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	fmt.Printf("\nConfig Scope: %s\n", result.SavedScope)
	if result.SavedScope == "global" {
		fmt.Printf("Config Path: %s\n", configPath)
	} else {
		absPath, _ := filepath.Abs(configPath)
		fmt.Printf("Config Path: %s\n", absPath)
	}
	if result.EffectivePath != configPath {
		fmt.Printf("Note: %s takes precedence over the saved file\n", result.EffectivePath)
	}
	fmt.Printf("Cache Status: %s\n", result.Cache.Status)
	if result.Cache.Error != "" {
		fmt.Printf("  Error: %s\n", result.Cache.Error)
	}

	fmt.Println("\n=== Initialization Complete ===")
	return nil
}

func init() {
	RootCmd.AddCommand(initCmd)
}
