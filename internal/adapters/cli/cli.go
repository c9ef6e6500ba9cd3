package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"

	"invoice-reconciler/internal/app"
	"invoice-reconciler/internal/core"
)

// Run executes a one-shot CLI command and exits.
// args is os.Args[1:]; the first element is the subcommand name.
func Run(ctx context.Context, svc app.ApplicationService, args []string) {
	if len(args) == 0 {
		usage()
	}

	switch args[0] {
	case "list", "ls":
		drafts, err := svc.ListDrafts(ctx)
		if err != nil {
			log.Fatalf("list drafts: %v", err)
		}
		for _, d := range drafts {
			attached := " "
			if d.HasAttachment {
				attached = "*"
			}
			fmt.Printf("%s %5d  %-14s %-28s %12s\n", attached, d.ID, d.Name, d.PartnerName, d.AmountTotal)
		}

	case "analyze", "a":
		if len(args) < 2 {
			log.Fatal("Usage: app analyze <draft-id>")
		}
		draftID := mustInt(args[1])
		state, err := svc.StartSession(ctx, draftID)
		if err != nil {
			log.Fatalf("start session: %v", err)
		}
		state, err = svc.Analyze(ctx, state.SessionID)
		if err != nil {
			log.Fatalf("analyze: %v", err)
		}
		printState(state)

	case "status", "st":
		if len(args) < 2 {
			log.Fatal("Usage: app status <session-id>")
		}
		state, err := svc.ResumeSession(ctx, args[1])
		if err != nil {
			log.Fatalf("status: %v", err)
		}
		printState(state)

	case "proceed":
		if len(args) < 2 {
			log.Fatal("Usage: app proceed <session-id>")
		}
		state, err := svc.Proceed(ctx, args[1])
		if err != nil {
			log.Fatalf("proceed: %v", err)
		}
		printState(state)

	case "apply":
		if len(args) < 2 {
			log.Fatal("Usage: app apply <session-id>")
		}
		state, err := svc.ApplyCorrections(ctx, args[1])
		if err != nil {
			log.Fatalf("apply: %v", err)
		}
		printState(state)

	case "resolve":
		// resolve <session-id> <item> <product-id>: select and add in one go.
		if len(args) < 4 {
			log.Fatal("Usage: app resolve <session-id> <item> <product-id>")
		}
		item := mustInt(args[2])
		productID := mustInt(args[3])
		if _, err := svc.SelectProduct(ctx, args[1], item, productID); err != nil {
			log.Fatalf("select product: %v", err)
		}
		state, err := svc.AddMissingProduct(ctx, args[1], item)
		if err != nil {
			log.Fatalf("add missing product: %v", err)
		}
		printState(state)

	case "cancel":
		if len(args) < 2 {
			log.Fatal("Usage: app cancel <session-id>")
		}
		if err := svc.Cancel(ctx, args[1]); err != nil {
			log.Fatalf("cancel: %v", err)
		}
		fmt.Println("Session cancelled.")

	default:
		usage()
	}
}

func printState(state *core.ValidationState) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(state)
}

func mustInt(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("not a number: %q", s)
	}
	return v
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: app <command>

Commands:
  list                                     list draft invoices
  analyze <draft-id>                       open a session and run an analysis pass
  status <session-id>                      show (or resume) a session
  proceed <session-id>                     leave review: resolver or auto-apply
  apply <session-id>                       apply auto-corrections
  resolve <session-id> <item> <product-id> pick a product and add the line
  cancel <session-id>                      discard a session`)
	os.Exit(1)
}
