// Package main implements the blockmap CLI.
// It builds control flow graphs for the methods of JVM class files.
package main

import (
	"os"

	"github.com/l3aro/go-blockmap/cmd/blockmap/commands"
)

var (
	version   = "dev"
	buildTime = ""
)

func main() {
	commands.RootCmd.Version = version
	if buildTime != "" {
		commands.RootCmd.Version += " (built " + buildTime + ")"
	}
	commands.RootCmd.SetVersionTemplate(`blockmap version {{.Version}}
`)

	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
