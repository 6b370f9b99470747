package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattjoyce/hookd/internal/catalog"
	"github.com/mattjoyce/hookd/internal/config"
	"github.com/mattjoyce/hookd/internal/hook"
	"github.com/mattjoyce/hookd/internal/inspect"
	"github.com/mattjoyce/hookd/internal/registry"
)

func runDispatch(args []string) int {
	fs := flag.NewFlagSet("dispatch", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	entity := fs.String("entity", "", "Entity name")
	kindArg := fs.String("context", "", "Lifecycle context")
	recordsPath := fs.String("records", "", "JSON array of records (file path or - for stdin)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	if strings.TrimSpace(*entity) == "" || *kindArg == "" {
		fmt.Fprintln(os.Stderr, "Error: --entity and --context are required")
		return 1
	}
	kind, err := hook.ParseKind(*kindArg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	records, err := readRecords(*recordsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	ctx := context.Background()
	e, err := openEnv(ctx, *configPath, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	defer e.Close()

	uow := e.dispatcher().Begin()
	if err := uow.Dispatch(ctx, *entity, kind, records); err != nil {
		fmt.Fprintf(os.Stderr, "Dispatch failed (unit of work %s): %v\n", uow.ID(), err)
		return 1
	}

	ran := uow.History()
	fmt.Fprintf(os.Stderr, "Dispatched %s/%s: %d handler(s), unit of work %s\n", *entity, kind, len(ran), uow.ID())
	if records != nil {
		data, err := json.MarshalIndent(records, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render records: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
	}
	return 0
}

func readRecords(path string) ([]hook.Record, error) {
	if path == "" {
		return nil, nil
	}

	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}

	var records []hook.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("records must be a JSON array of objects: %w", err)
	}
	return records, nil
}

func runRegistryShow(args []string) int {
	fs := flag.NewFlagSet("registry show", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	entity := fs.String("entity", "", "Entity name (default: all entities)")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	ctx := context.Background()
	e, err := openEnv(ctx, *configPath, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	defer e.Close()

	entities := []string{*entity}
	if *entity == "" {
		entities, err = e.entities(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to list entities: %v\n", err)
			return 1
		}
	}

	reports := make([]inspect.RegistryReport, 0, len(entities))
	for _, name := range entities {
		reg, err := registry.Build(ctx, e.source, name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		reports = append(reports, inspect.BuildRegistryReport(reg, e.catalog))
	}

	if *jsonOut {
		out, err := inspect.JSON(reports)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Println(out)
		return 0
	}

	theme := inspect.DefaultTheme()
	for _, r := range reports {
		fmt.Print(inspect.RenderRegistry(r, theme))
	}
	if len(reports) == 0 {
		fmt.Println("No handlers registered.")
	}
	return 0
}

func (e *env) entities(ctx context.Context) ([]string, error) {
	if e.cfg.Source == config.SourceSQLite {
		return e.store.Entities(ctx)
	}
	return e.cfg.Entities(), nil
}

func runRegistryImport(args []string) int {
	fs := flag.NewFlagSet("registry import", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	dryRun := fs.Bool("dry-run", false, "Validate without writing")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	ctx := context.Background()
	e, err := openEnv(ctx, *configPath, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	defer e.Close()

	regs := e.cfg.Handlers
	if *dryRun {
		fmt.Printf("Dry run: %d registration(s) across %d entity/ies would be imported into %s\n",
			len(regs), len(e.cfg.Entities()), e.cfg.State.Path)
		return 0
	}
	if err := e.store.Replace(ctx, regs); err != nil {
		fmt.Fprintf(os.Stderr, "Import failed: %v\n", err)
		return 1
	}
	fmt.Printf("Imported %d registration(s) into %s\n", len(regs), e.cfg.State.Path)
	return 0
}

func runHandlers(args []string) int {
	fs := flag.NewFlagSet("handlers", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	type handlerInfo struct {
		ID       string   `json:"id"`
		Contexts []string `json:"contexts"`
	}

	cat := catalog.Default()
	infos := make([]handlerInfo, 0, cat.Len())
	for _, id := range cat.IDs() {
		h, err := cat.Resolve(id)
		if err != nil {
			continue
		}
		info := handlerInfo{ID: id, Contexts: []string{}}
		for _, k := range hook.Kinds() {
			if h.Supports(k) {
				info.Contexts = append(info.Contexts, k.String())
			}
		}
		infos = append(infos, info)
	}

	if *jsonOut {
		out, err := inspect.JSON(infos)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Println(out)
		return 0
	}
	for _, info := range infos {
		fmt.Printf("%-20s %s\n", info.ID, strings.Join(info.Contexts, ","))
	}
	return 0
}

func runJournal(args []string) int {
	fs := flag.NewFlagSet("journal", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	limit := fs.Int("limit", 20, "Maximum entries to show")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	ctx := context.Background()
	e, err := openEnv(ctx, *configPath, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	defer e.Close()

	entries, err := e.journal.Recent(ctx, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read journal: %v\n", err)
		return 1
	}

	if *jsonOut {
		out, err := inspect.JSON(entries)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Println(out)
		return 0
	}
	fmt.Print(inspect.RenderJournal(entries, inspect.DefaultTheme()))
	return 0
}

func runRegistryAdd(args []string) int {
	fs := flag.NewFlagSet("registry add", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	entity := fs.String("entity", "", "Entity name")
	kindArg := fs.String("context", "", "Lifecycle context")
	order := fs.Float64("order", 0, "Execution order (ascending)")
	handlerID := fs.String("handler", "", "Handler ID")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	kind, err := hook.ParseKind(*kindArg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	ctx := context.Background()
	e, err := openEnv(ctx, *configPath, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	defer e.Close()

	reg := registry.Registration{Entity: *entity, Context: kind, Order: *order, HandlerID: *handlerID}
	id, err := e.store.Add(ctx, reg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Add failed: %v\n", err)
		return 1
	}
	fmt.Printf("Added registration %d: %s/%s %s (order %g)\n", id, reg.Entity, reg.Context, reg.HandlerID, reg.Order)
	if !e.catalog.Has(reg.HandlerID) {
		fmt.Fprintf(os.Stderr, "Warning: handler %q is not compiled into this binary\n", reg.HandlerID)
	}
	if e.cfg.Source != config.SourceSQLite {
		fmt.Fprintln(os.Stderr, "Note: source is config; stored registrations are used only with 'source: sqlite'")
	}
	return 0
}

func runRegistryDeactivate(args []string) int {
	fs := flag.NewFlagSet("registry deactivate", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	id := fs.Int64("id", 0, "Registration id (see 'hookd registry list')")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if *id <= 0 {
		fmt.Fprintln(os.Stderr, "Error: --id is required")
		return 1
	}

	ctx := context.Background()
	e, err := openEnv(ctx, *configPath, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	defer e.Close()

	if err := e.store.Deactivate(ctx, *id); err != nil {
		fmt.Fprintf(os.Stderr, "Deactivate failed: %v\n", err)
		return 1
	}
	fmt.Printf("Deactivated registration %d\n", *id)
	return 0
}

func runRegistryList(args []string) int {
	fs := flag.NewFlagSet("registry list", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	ctx := context.Background()
	e, err := openEnv(ctx, *configPath, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	defer e.Close()

	rows, err := e.store.All(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read registrations: %v\n", err)
		return 1
	}

	if *jsonOut {
		out, err := inspect.JSON(rows)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Println(out)
		return 0
	}
	if len(rows) == 0 {
		fmt.Println("No stored registrations.")
		return 0
	}
	for _, r := range rows {
		state := "active"
		if !r.Active {
			state = "inactive"
		}
		fmt.Printf("%4d  %-12s %-14s %8g  %-20s %s\n", r.ID, r.Entity, r.Context, r.Order, r.HandlerID, state)
	}
	return 0
}
