package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"time"

	_ "github.com/mattjoyce/hookd/internal/handlers"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	// --- NOUNS ---
	case "registry":
		return runRegistryNoun(args)
	case "config":
		return runConfigNoun(args)

	// --- VERBS ---
	case "dispatch":
		if hasHelpFlag(args) {
			printDispatchHelp()
			return 0
		}
		return runDispatch(args)
	case "handlers":
		return runHandlers(args)
	case "journal":
		return runJournal(args)
	case "serve":
		return runServe(args)
	case "doctor":
		return runConfigCheck(args)
	case "version", "--version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: hookd version [--json]")
		return 1
	}

	info := currentVersionInfo()

	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("hookd %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}
	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	commit := strings.TrimSpace(gitCommit)
	if commit == "" || commit == "unknown" {
		commit = readBuildSetting("vcs.revision")
	}
	if commit != "" {
		if len(commit) > 12 {
			commit = commit[:12]
		}
		info.Commit = commit
	}

	built := strings.TrimSpace(buildDate)
	if built == "" || built == "unknown" {
		built = readBuildSetting("vcs.time")
	}
	if t, err := time.Parse(time.RFC3339Nano, built); err == nil {
		info.BuildTime = t.UTC().Format(time.RFC3339)
	}

	return info
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return strings.TrimSpace(setting.Value)
		}
	}
	return ""
}

func printUsage() {
	fmt.Print(`hookd - lifecycle hook dispatcher

Usage:
  hookd <command> [flags]
  hookd <noun> <action> [flags]

Commands:
  dispatch          Run the handlers registered for one event
  handlers          List handlers compiled into this binary
  journal           Show recent handler executions
  serve             Start the HTTP trigger in the foreground
  version           Show version information

Registry Commands:
  registry show     Show the ordered handlers for an entity
  registry import   Copy handlers: from config into the state database
  registry list     List stored registrations with their ids
  registry add      Store one registration in the state database
  registry deactivate  Hide a stored registration by id

Config Commands:
  config check      Validate configuration against compiled handlers
  config lock       Authorize current files (update integrity hashes)

Use 'hookd <command> --help' for flags.
`)
}

func printDispatchHelp() {
	fmt.Print(`Usage: hookd dispatch --entity NAME --context KIND [flags]

Runs every handler registered for (entity, context) in order, inside one
unit of work. Records are read from --records (a JSON array of objects, or
"-" for stdin); the possibly modified records are printed on success.

Flags:
  --config PATH    Configuration file or directory
  --entity NAME    Entity name (required)
  --context KIND   before_create, before_update, before_delete, after_create,
                   after_update, after_delete or after_restore (required)
  --records FILE   JSON records passed to handlers

Example:
  echo '[{"total": 10}]' | hookd dispatch --entity Order --context before_create --records -
`)
}

// --- NOUN DISPATCHERS ---

func runRegistryNoun(args []string) int {
	if len(args) < 1 {
		printRegistryNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printRegistryNounHelp(os.Stdout)
		return 0
	}

	action, actionArgs := args[0], args[1:]
	switch action {
	case "show":
		return runRegistryShow(actionArgs)
	case "import":
		return runRegistryImport(actionArgs)
	case "list":
		return runRegistryList(actionArgs)
	case "add":
		return runRegistryAdd(actionArgs)
	case "deactivate":
		return runRegistryDeactivate(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown registry action: %s\n", action)
		return 1
	}
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action, actionArgs := args[0], args[1:]
	switch action {
	case "check":
		return runConfigCheck(actionArgs)
	case "lock":
		return runConfigLock(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, a := range args {
		if a == "--help" || a == "-h" {
			return true
		}
	}
	return false
}

func printRegistryNounHelp(w *os.File) {
	fmt.Fprint(w, `Usage: hookd registry <show|import|list|add|deactivate> [flags]

  show --entity NAME [--json]   Ordered handlers per context, with wiring status
  import [--dry-run]            Replace stored registrations with config handlers:
  list [--json]                 Stored registrations, active and inactive
  add --entity NAME --context KIND --order N --handler ID
                                Append one stored registration
  deactivate --id N             Stop serving a stored registration
`)
}

func printConfigNounHelp(w *os.File) {
	fmt.Fprint(w, `Usage: hookd config <check|lock> [flags]

  check [--json]          Validate configuration and handler wiring
  lock [--dry-run] [-v]   Write .checksums for every file in the include tree
`)
}
