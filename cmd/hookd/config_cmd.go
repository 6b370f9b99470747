package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/mattjoyce/hookd/internal/config"
	"github.com/mattjoyce/hookd/internal/doctor"
)

// runConfigCheck exits 0 when valid, 2 when valid with warnings and 1 on
// errors.
func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	ctx := context.Background()
	e, err := openEnv(ctx, *configPath, false)
	if err != nil {
		if *jsonOut {
			out, _ := doctor.FormatJSON(&doctor.Result{
				Valid:  false,
				Errors: []doctor.Issue{{Category: "config", Message: err.Error()}},
			})
			fmt.Println(out)
		} else {
			fmt.Fprintf(os.Stderr, "Configuration invalid: %v\n", err)
		}
		return 1
	}
	defer e.Close()

	regs, err := e.registrations(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read registrations: %v\n", err)
		return 1
	}

	result := doctor.New(e.cfg, regs, e.catalog).Validate()
	if *jsonOut {
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Println(out)
	} else {
		fmt.Print(doctor.FormatHuman(result))
	}

	switch {
	case !result.Valid:
		return 1
	case len(result.Warnings) > 0:
		return 2
	default:
		return 0
	}
}

func runConfigLock(args []string) int {
	var configPath string
	var verbose, verboseShort, dryRun bool

	fs := flag.NewFlagSet("lock", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration file or directory")
	fs.BoolVar(&verbose, "verbose", false, "Verbose output")
	fs.BoolVar(&verboseShort, "v", false, "Verbose output")
	fs.BoolVar(&dryRun, "dry-run", false, "Dry run")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	if configPath == "" {
		discovered, err := config.DiscoverConfigDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to discover config: %v\n", err)
			return 1
		}
		configPath = discovered
	}

	reports, err := config.Lock(configPath, dryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to lock config: %v\n", err)
		return 1
	}

	if verbose || verboseShort {
		for _, report := range reports {
			fmt.Printf("Processing directory: %s\n", report.ConfigDir)
			for _, file := range report.Files {
				fmt.Printf("  HASH %s: %s\n", file.Filename, file.Hash)
			}
			if dryRun {
				fmt.Printf("  DRY-RUN .checksums: %s (not written)\n", report.ChecksumPath)
			} else {
				fmt.Printf("  WROTE .checksums: %s\n", report.ChecksumPath)
			}
		}
	}

	if dryRun {
		fmt.Printf("Dry run completed for %d directory/ies (no files written):\n", len(reports))
	} else {
		fmt.Printf("Successfully locked configuration in %d directory/ies:\n", len(reports))
	}
	for _, report := range reports {
		fmt.Printf("  - %s\n", report.ConfigDir)
	}
	return 0
}
