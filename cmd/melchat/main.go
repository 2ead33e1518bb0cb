package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Waaajid/chatbotwiteditrequests/internal/config"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
                 _       _           _
  _ __ ___   ___| | ___ | |__   __ _| |_
 | '_ ' _ \ / _ \ |/ __|| '_ \ / _' | __|
 | | | | | |  __/ | (__ | | | | (_| | |_
 |_| |_| |_|\___|_|\___||_| |_|\__,_|\__|

  Chat-driven crisis exercise MEL editor

  Usage: melchat serve          start the web editor
         melchat <command> [options]
         melchat --help

  MCP server mode requires piped input.`)
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before touching config
	if isHelpOrVersion() {
		app := newCLIApp("", nil)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: could not determine home directory: %v\n", err)
		os.Exit(1)
	}
	baseDir := filepath.Join(homeDir, config.DirName)

	cwd, err := os.Getwd()
	if err != nil {
		cwd = baseDir
	}
	cfg, err := config.LoadWithRepo(baseDir, cwd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		os.Exit(1)
	}
	config.ApplyEnv(cfg, os.Getenv)

	args := os.Args
	// No args with piped stdin → MCP server, so MCP clients can launch the bare binary
	if len(args) < 2 {
		args = append(args, "mcp")
	}

	app := newCLIApp(baseDir, cfg)
	if err := app.Run(args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
