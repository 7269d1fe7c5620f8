package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/daaku/ghwebhook/internal/delivery"
	"github.com/daaku/ghwebhook/internal/storage"
	"github.com/daaku/ghwebhook/internal/tui"
)

const defaultStatePath = "./data/deliveries.db"

func runDeliveriesNoun(args []string) int {
	if len(args) < 1 {
		printDeliveriesHelp()
		return 1
	}

	action, actionArgs := args[0], args[1:]
	switch action {
	case "list":
		return runDeliveriesList(actionArgs)
	case "show":
		return runDeliveriesShow(actionArgs)
	case "prune":
		return runDeliveriesPrune(actionArgs)
	case "watch":
		return runDeliveriesWatch(actionArgs)
	case "help", "--help", "-h":
		printDeliveriesHelp()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown deliveries action: %s\n", action)
		printDeliveriesHelp()
		return 1
	}
}

func printDeliveriesHelp() {
	fmt.Fprintln(os.Stderr, "Usage: ghwebhook deliveries <list|show|prune|watch> --state <db> [flags]")
}

// openStore opens an existing delivery log. It never creates one.
func openStore(ctx context.Context, path string) (*delivery.Store, *sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, nil, fmt.Errorf("delivery log %s: %w", path, err)
	}
	db, err := storage.OpenSQLite(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	return delivery.New(db), db, nil
}

func runDeliveriesList(args []string) int {
	fs := flag.NewFlagSet("deliveries list", flag.ContinueOnError)
	statePath := fs.String("state", defaultStatePath, "Path to the delivery log")
	limit := fs.Int("limit", 50, "Maximum deliveries to show")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	ctx := context.Background()
	store, db, err := openStore(ctx, *statePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer db.Close()

	records, err := store.List(ctx, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Println(tui.RenderTable(records))
	return 0
}

func runDeliveriesShow(args []string) int {
	fs := flag.NewFlagSet("deliveries show", flag.ContinueOnError)
	statePath := fs.String("state", defaultStatePath, "Path to the delivery log")
	id := fs.String("id", "", "GitHub delivery ID")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *id == "" {
		fmt.Fprintln(os.Stderr, "Usage: ghwebhook deliveries show --state <db> --id <delivery-id>")
		return 1
	}

	ctx := context.Background()
	store, db, err := openStore(ctx, *statePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer db.Close()

	rec, err := store.Get(ctx, *id)
	if errors.Is(err, delivery.ErrNotFound) {
		fmt.Fprintf(os.Stderr, "Delivery %s not found\n", *id)
		return 1
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Printf("delivery_id: %s\n", rec.DeliveryID)
	fmt.Printf("endpoint:    %s\n", rec.Endpoint)
	fmt.Printf("event:       %s\n", rec.Event)
	fmt.Printf("action:      %s\n", rec.Action)
	fmt.Printf("hook_id:     %s\n", rec.HookID)
	fmt.Printf("body_size:   %d\n", rec.BodySize)
	fmt.Printf("body_blake3: %s\n", rec.BodyDigest)
	fmt.Printf("received_at: %s\n", rec.ReceivedAt.Format(time.RFC3339))
	return 0
}

func runDeliveriesPrune(args []string) int {
	fs := flag.NewFlagSet("deliveries prune", flag.ContinueOnError)
	statePath := fs.String("state", defaultStatePath, "Path to the delivery log")
	olderThan := fs.Duration("older-than", 30*24*time.Hour, "Remove deliveries older than this")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *olderThan <= 0 {
		fmt.Fprintln(os.Stderr, "--older-than must be positive")
		return 1
	}

	ctx := context.Background()
	store, db, err := openStore(ctx, *statePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer db.Close()

	n, err := store.Prune(ctx, time.Now().Add(-*olderThan))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Printf("Removed %d deliveries.\n", n)
	return 0
}

func runDeliveriesWatch(args []string) int {
	fs := flag.NewFlagSet("deliveries watch", flag.ContinueOnError)
	statePath := fs.String("state", defaultStatePath, "Path to the delivery log")
	limit := fs.Int("limit", 50, "Maximum deliveries to show")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	store, db, err := openStore(context.Background(), *statePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer db.Close()

	p := tea.NewProgram(tui.NewDeliveries(store, *limit))
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}
