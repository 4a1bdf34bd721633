// Command ledgerctl runs operator tasks against the ledger store: lineage index
// rebuilds, seal and chain verification, and signing API tokens.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	appledger "github.com/firmledger/backend/internal/application/ledger"
	"github.com/firmledger/backend/internal/domain/ledger"
	"github.com/firmledger/backend/internal/infrastructure/auth"
	"github.com/firmledger/backend/internal/infrastructure/config"
	"github.com/firmledger/backend/internal/infrastructure/logger"
	"github.com/firmledger/backend/internal/infrastructure/persistence"
	"github.com/google/uuid"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	var (
		tenant   string
		clientID string
		subject  string
		ttl      time.Duration
		logLevel string
	)
	flag.StringVarP(&tenant, "tenant", "t", "", "Firm (tenant) UUID")
	flag.StringVar(&clientID, "client", "", "Client id; narrows an issued token to that client's portal")
	flag.StringVar(&subject, "subject", "ledgerctl", "Token subject")
	flag.DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	flag.StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	log, err := logger.New(&logger.Config{Level: logLevel, Format: "console", Output: "stderr"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = log.Sync()
	}()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}
	tenantID, err := uuid.Parse(tenant)
	if err != nil {
		log.Fatal("A valid --tenant is required", zap.String("tenant", tenant))
	}

	if args[0] == "token" {
		token, expires, err := auth.NewJWTService(cfg.JWT).IssueToken(auth.IssueTokenInput{
			TenantID: tenantID,
			ClientID: clientID,
			Subject:  subject,
			TTL:      ttl,
		})
		if err != nil {
			log.Fatal("Failed to issue token", zap.Error(err))
		}
		printJSON(map[string]any{"token": token, "expires_at": expires})
		return
	}

	db, err := persistence.NewDatabase(&cfg.Database, persistence.Options{Logger: log})
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	retrier := persistence.NewBackoffRetrier(persistence.DefaultRetryConfig(), log)
	svcCfg := appledger.ServiceConfig{
		Scope:  persistence.NewGormTransactionScope(db.DB, retrier),
		Logger: log,
	}
	ctx := context.Background()

	switch args[0] {
	case "rebuild":
		result, err := appledger.NewLineageService(svcCfg).Rebuild(ctx, tenantID)
		if err != nil {
			log.Fatal("Lineage rebuild failed", zap.Error(err))
		}
		printJSON(result)

	case "verify":
		if len(args) < 2 {
			log.Fatal("Invoice id required. Usage: ledgerctl --tenant <uuid> verify <invoice-id>")
		}
		if !verifyInvoice(ctx, svcCfg, tenantID, args[1], log) {
			os.Exit(2)
		}

	default:
		log.Error("Unknown command", zap.String("command", args[0]))
		printUsage()
		os.Exit(1)
	}
}

// verifyInvoice checks the seal, the adjustment chain and the lineage of one invoice
// and prints the findings. It reports whether every check passed.
func verifyInvoice(ctx context.Context, svcCfg appledger.ServiceConfig, tenantID uuid.UUID, invoiceID string, log *zap.Logger) bool {
	seal, err := appledger.NewInvoiceService(svcCfg).VerifyInvoiceSeal(ctx, tenantID, invoiceID)
	if err != nil {
		log.Fatal("Seal verification failed", zap.Error(err))
	}
	chain, err := appledger.NewAdjustmentService(svcCfg).VerifyAdjustmentChain(ctx, tenantID, invoiceID)
	if err != nil {
		log.Fatal("Chain verification failed", zap.Error(err))
	}
	graph, err := appledger.NewLineageService(svcCfg).Trace(ctx, tenantID, invoiceID)
	var inconsistent *ledger.LineageInconsistencyError
	if err != nil && !errors.As(err, &inconsistent) {
		log.Fatal("Lineage trace failed", zap.Error(err))
	}

	report := map[string]any{"seal": seal, "adjustments": chain}
	if graph != nil {
		report["lineage"] = map[string]any{"consistent": graph.Consistent, "faults": graph.Faults}
	}
	printJSON(report)
	return (!seal.Sealed || seal.Valid) && chain.Valid && err == nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func printUsage() {
	fmt.Println(`Ledger operator tool

Usage:
  ledgerctl --tenant <uuid> [flags] <command> [arguments]

Commands:
  rebuild               Derive the firm's lineage index again from its records
  verify <invoice-id>   Check invoice seal, adjustment chain and lineage
  token                 Sign an API token for the firm (or one client with --client)

Flags:
  -t, --tenant string   Firm (tenant) UUID
      --client string   Client id for a portal token
      --subject string  Token subject (default: ledgerctl)
      --ttl duration    Token lifetime (default: 1h)
      --log-level       Log level (default: warn)`)
}
