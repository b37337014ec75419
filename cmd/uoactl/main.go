// Command uoactl is the operator's diagnostic and recovery utility:
// "audit" diffs one account's broker-reported positions against the
// locally-persisted open trade rows, and "reconcile" forces the Position
// Manager's startup reconciliation for one account without restarting the
// whole process. Adapted from scripts/audit_positions (AuditBrokerPositions
// + PrintAuditReport) and scripts/reset_positions (broker-positions-as-
// ground-truth), generalized from options strangles to single-leg equity
// shares and from a JSON snapshot file to the Postgres-backed trade log.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/uoa-systems/flowwatch/internal/broker"
	"github.com/uoa-systems/flowwatch/internal/config"
	"github.com/uoa-systems/flowwatch/internal/position"
	"github.com/uoa-systems/flowwatch/internal/storage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	account := flag.String("account", "A", "account to operate on: A or B")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: uoactl [-config path] [-account A|B] <audit|reconcile>")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	acctCfg := cfg.AccountA
	if *account == "B" {
		acctCfg = cfg.AccountB
	}

	store, err := storage.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("storage open failed: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client := broker.NewRESTClient(acctCfg.BaseURL, acctCfg.APIKey, acctCfg.AccountID)

	switch flag.Arg(0) {
	case "audit":
		runAudit(ctx, client, store, *account)
	case "reconcile":
		runReconcile(ctx, cfg, client, store, *account)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q (want audit or reconcile)\n", flag.Arg(0))
		os.Exit(2)
	}
}

// runAudit prints broker positions, local open trade rows, and the set
// difference between the two — the same three-way comparison the Position
// Manager's SyncOnStartup performs, surfaced for a human to read.
func runAudit(ctx context.Context, client *broker.RESTClient, store *storage.Store, account string) {
	brokerPositions, err := client.GetPositionsCtx(ctx)
	if err != nil {
		log.Fatalf("fetch broker positions failed: %v", err)
	}
	localRows, err := store.LoadOpenTradeRecords(ctx, account)
	if err != nil {
		log.Fatalf("load local open trades failed: %v", err)
	}

	brokerBySymbol := make(map[string]broker.Position, len(brokerPositions))
	for _, p := range brokerPositions {
		brokerBySymbol[p.Symbol] = p
	}
	localBySymbol := make(map[string]struct{}, len(localRows))
	for _, r := range localRows {
		localBySymbol[r.Symbol] = struct{}{}
	}

	fmt.Printf("=== AUDIT: account %s ===\n", account)
	fmt.Printf("broker positions: %d, local open rows: %d\n\n", len(brokerPositions), len(localRows))

	var onlyBroker, onlyLocal []string
	for symbol := range brokerBySymbol {
		if _, ok := localBySymbol[symbol]; !ok {
			onlyBroker = append(onlyBroker, symbol)
		}
	}
	for symbol := range localBySymbol {
		if _, ok := brokerBySymbol[symbol]; !ok {
			onlyLocal = append(onlyLocal, symbol)
		}
	}
	sort.Strings(onlyBroker)
	sort.Strings(onlyLocal)

	if len(onlyBroker) == 0 && len(onlyLocal) == 0 {
		fmt.Println("no discrepancies: every broker position has a matching open row")
		return
	}
	if len(onlyBroker) > 0 {
		fmt.Println("at broker but not tracked locally (orphan position, needs adoption or manual close):")
		for _, s := range onlyBroker {
			p := brokerBySymbol[s]
			fmt.Printf("  %-8s shares=%d cost_basis=%.2f\n", s, p.Shares, p.CostBasis)
		}
	}
	if len(onlyLocal) > 0 {
		fmt.Println("tracked locally but not at broker (already closed out-of-band):")
		for _, s := range onlyLocal {
			fmt.Printf("  %-8s\n", s)
		}
	}
}

// runReconcile forces the same three-way reconciliation SyncOnStartup runs
// at boot, without restarting uoabot. regime/sector are left nil: a manual
// reconcile never opens a new position, so neither is exercised.
func runReconcile(ctx context.Context, cfg *config.Config, client *broker.RESTClient, store *storage.Store, account string) {
	acctCfg := cfg.AccountA
	if account == "B" {
		acctCfg = cfg.AccountB
	}

	mgr := position.New(
		position.Config{
			Account:             account,
			MaxConcurrent:       acctCfg.MaxConcurrent,
			PositionNotionalCap: acctCfg.PositionNotionalCap,
			PositionPct:         acctCfg.PositionPct,
		},
		client, store, nil, nil, nil, log.Default(),
	)

	fmt.Printf("reconciling account %s against broker...\n", account)
	if err := mgr.SyncOnStartup(ctx); err != nil {
		log.Fatalf("reconcile failed: %v", err)
	}
	fmt.Printf("done: %d position(s) now active\n", mgr.Count())
}
