// Command keyctl manages dashboard API keys directly against the database.
//
//	keyctl issue -owner user_42 -label ci -ttl 720h
//	keyctl list -owner user_42
//	keyctl revoke -owner user_42 -id <uuid>
//	keyctl purge -owner user_42
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/ncecere/insights_dashboard/internal/apikeys"
	"github.com/ncecere/insights_dashboard/internal/auth"
	"github.com/ncecere/insights_dashboard/internal/config"
	"github.com/ncecere/insights_dashboard/internal/database"
	"github.com/ncecere/insights_dashboard/internal/logging"
)

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	cmd, args := os.Args[1], os.Args[2:]

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	configFile := fs.String("config", "", "path to dashboard config file")
	owner := fs.String("owner", "", "key owner")
	label := fs.String("label", "", "label for a new key")
	ttl := fs.Duration("ttl", 0, "lifetime of a new key (0 uses the configured default)")
	id := fs.String("id", "", "key id to revoke")
	_ = fs.Parse(args)

	ctx := context.Background()
	cfg, err := config.Load(config.Options{ConfigFile: *configFile})
	if err != nil {
		logging.Fatal().Err(err).Msg("load config")
	}
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	svc := apikeys.NewService(apikeys.NewPostgresStore(pool), auth.NewKeyCodec(cfg.APIKeys.Prefix), apikeys.Options{
		DefaultTTL: cfg.APIKeys.DefaultTTL,
	})

	switch cmd {
	case "issue":
		opts := apikeys.IssueOptions{Label: *label}
		if *ttl > 0 {
			exp := time.Now().Add(*ttl)
			opts.ExpiresAt = &exp
		}
		issued, err := svc.Issue(ctx, *owner, opts)
		if err != nil {
			logging.Fatal().Err(err).Msg("issue key")
		}
		fmt.Printf("id=%s\nsecret=%s\n", issued.Record.ID, issued.Secret)
	case "list":
		records, err := svc.List(ctx, *owner)
		if err != nil {
			logging.Fatal().Err(err).Msg("list keys")
		}
		printRecords(records)
	case "revoke":
		if err := svc.Revoke(ctx, *owner, *id); err != nil {
			logging.Fatal().Err(err).Msg("revoke key")
		}
	case "purge":
		n, err := svc.DeleteByOwner(ctx, *owner)
		if err != nil {
			logging.Fatal().Err(err).Msg("purge keys")
		}
		fmt.Printf("deleted=%d\n", n)
	default:
		usage()
	}
}

func printRecords(records []apikeys.Record) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tLABEL\tCREATED\tLAST USED\tEXPIRES\tREVOKED")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%t\n",
			r.ID, deref(r.Label), r.CreatedAt.Format(time.RFC3339), formatTime(r.LastUsedAt), formatTime(r.ExpiresAt), r.Revoked)
	}
	_ = w.Flush()
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(time.RFC3339)
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: keyctl <issue|list|revoke|purge> -owner <id> [-label l] [-ttl d] [-id uuid] [-config file]")
	os.Exit(2)
}
