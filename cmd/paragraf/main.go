// Command paragraf is the admin tool for the Lovdata lookup service:
// it syncs the bulk datasets, reports sync state, and runs ad-hoc
// lookups and searches against the local store.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/khjohns/paragraf"
	"github.com/khjohns/paragraf/ingest"
	"github.com/khjohns/paragraf/query"
)

const usage = `Usage: paragraf <command> [flags]

Commands:
  sync      Download and index the Lovdata datasets
  status    Show sync state (always exits 0)
  backfill  Embed sections missing embeddings
  lookup    Look up a document or section: paragraf lookup <id> [section]
  search    Search the corpus: paragraf search <query...>
  aliases   List the built-in aliases
`

func main() {
	os.Exit(run())
}

func run() int {
	godotenv.Load()

	flags := flag.NewFlagSet("paragraf", flag.ExitOnError)
	verbose := flags.BoolP("verbose", "v", false, "enable debug logging")
	force := flags.BoolP("force", "f", false, "sync: force re-download")
	limit := flags.Int("limit", 10, "search: max hits / backfill: max sections")
	maxTokens := flags.Int("max-tokens", 0, "lookup: token budget for section bodies")
	flags.Usage = func() { fmt.Fprint(os.Stderr, usage); flags.PrintDefaults() }

	if len(os.Args) < 2 {
		flags.Usage()
		return 1
	}
	command := os.Args[1]
	flags.Parse(os.Args[2:])
	args := flags.Args()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := paragraf.New(ctx, paragraf.FromEnv())
	if err != nil {
		slog.Error("starting service", "error", err)
		return 1
	}
	defer svc.Close()

	switch command {
	case "sync":
		return cmdSync(ctx, svc, *force)
	case "status":
		cmdStatus(ctx, svc)
		return 0
	case "backfill":
		return cmdBackfill(ctx, svc, *limit)
	case "lookup":
		if len(args) == 0 {
			fmt.Fprintln(os.Stderr, "lookup needs a document id")
			return 1
		}
		section := ""
		if len(args) > 1 {
			section = args[1]
		}
		fmt.Println(svc.Lookup(ctx, args[0], section, *maxTokens))
		return exitFor(ctx)
	case "search":
		if len(args) == 0 {
			fmt.Fprintln(os.Stderr, "search needs a query")
			return 1
		}
		fmt.Println(svc.Search(ctx, strings.Join(args, " "), query.SearchParams{Limit: *limit}))
		return exitFor(ctx)
	case "aliases":
		fmt.Println(svc.ListAliases())
		return 0
	default:
		flags.Usage()
		return 1
	}
}

func cmdSync(ctx context.Context, svc *paragraf.Service, force bool) int {
	results := svc.Sync(ctx, force)

	failed := false
	for _, dataset := range ingest.Datasets {
		res := results[dataset]
		switch {
		case errors.Is(res.Err, context.Canceled):
			color.Yellow("  %s: avbrutt", dataset)
		case res.Err != nil:
			color.Red("  %s: FAILED (%v)", dataset, res.Err)
			failed = true
		case res.UpToDate:
			color.Green("  %s: %d dokumenter (allerede oppdatert)", dataset, res.Docs)
		default:
			color.Green("  %s: %d dokumenter", dataset, res.Docs)
			if res.Skipped > 0 {
				color.Yellow("  %s: %d oppføringer hoppet over", dataset, res.Skipped)
			}
		}
	}
	if ctx.Err() != nil {
		return 130
	}
	if failed {
		return 1
	}
	return 0
}

func cmdStatus(ctx context.Context, svc *paragraf.Service) {
	fmt.Printf("Backend: %s\n", svc.Backend())

	status, err := svc.SyncStatus(ctx)
	if err != nil {
		color.Red("Kunne ikke lese synkroniseringsstatus: %v", err)
		return
	}
	if len(status) == 0 {
		fmt.Println("Ikke synkronisert. Kjør: paragraf sync")
		return
	}
	for _, dataset := range ingest.Datasets {
		meta, ok := status[dataset]
		if !ok {
			fmt.Printf("\n%s: ikke synkronisert\n", dataset)
			continue
		}
		fmt.Printf("\n%s:\n", dataset)
		fmt.Printf("  Sist synkronisert: %s\n", meta.SyncedAt.Format("2006-01-02 15:04 MST"))
		fmt.Printf("  Kildetidspunkt:    %s\n", meta.LastModified.Format("2006-01-02 15:04 MST"))
		fmt.Printf("  Dokumenter:        %d\n", meta.FileCount)
	}

	if cov, err := ingest.EmbeddingCoverage(ctx, svc.Store()); err == nil {
		fmt.Printf("\nEmbeddinger: %s\n", cov)
	}
}

func cmdBackfill(ctx context.Context, svc *paragraf.Service, limit int) int {
	n, err := svc.BackfillEmbeddings(ctx, limit)
	if errors.Is(err, context.Canceled) {
		color.Yellow("Avbrutt etter %d embeddinger", n)
		return 130
	}
	if err != nil {
		color.Red("Backfill feilet etter %d embeddinger: %v", n, err)
		return 1
	}
	color.Green("Embeddet %d paragrafer", n)
	return 0
}

func exitFor(ctx context.Context) int {
	if ctx.Err() != nil {
		return 130
	}
	return 0
}
