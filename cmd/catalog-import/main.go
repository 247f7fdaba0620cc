// Command catalog-import loads gzip-compressed JSON-lines product feeds.
//
// Slugs already in the database are loaded into a bloom filter. Feed
// records that miss the filter are new and bulk-inserted with COPY; hits
// may be false positives and are upserted individually.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/storage/postgres"
)

const (
	bloomMinCapacity = 100_000
	bloomFPR         = 0.001
	copyBatch        = 5_000
)

func main() {
	var (
		dataDir     string
		databaseURL string
		dryRun      bool
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing *.jsonl.gz feeds (ignored when files are given)")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.BoolVar(&dryRun, "dry-run", false, "scan feeds and report without writing")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	files := flag.Args()
	if len(files) == 0 {
		matches, err := filepath.Glob(filepath.Join(dataDir, "*.jsonl.gz"))
		if err != nil {
			slog.Error("list feeds", slog.String("error", err.Error()))
			os.Exit(1)
		}
		files = matches
	}
	if len(files) == 0 {
		slog.Error("no feed files found")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, files, dryRun); err != nil {
		slog.Error("catalog import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog import completed successfully")
}

func run(ctx context.Context, databaseURL string, files []string, dryRun bool) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	repo := postgres.NewCatalogRepository(pool)

	// Pass 1: existing slugs into a bloom filter.
	var slugs []string
	if err := repo.Slugs(ctx, func(slug string) { slugs = append(slugs, slug) }); err != nil {
		return errors.Wrap(err, "load slugs")
	}
	filter := bloom.NewWithEstimates(uint(max(len(slugs)*2, bloomMinCapacity)), bloomFPR)
	for _, s := range slugs {
		filter.AddString(s)
	}
	slog.Info("pass 1 complete", slog.Int("existing_slugs", len(slugs)))

	// Pass 2: scan feeds concurrently.
	p := newPlan(filter)
	g, gctx := errgroup.WithContext(ctx)
	for _, f := range files {
		g.Go(func() error { return scanFile(gctx, f, p) })
	}
	if err := g.Wait(); err != nil {
		return errors.Wrap(err, "scan feeds")
	}

	slog.Info("pass 2 complete",
		slog.Int("new", len(p.fresh)),
		slog.Int("possible_updates", len(p.maybe)),
		slog.Int("invalid", p.invalid),
		slog.Int("duplicates", p.duplicates),
	)
	if dryRun {
		return nil
	}

	categories, err := repo.EnsureCategories(ctx, p.categoryList())
	if err != nil {
		return errors.Wrap(err, "ensure categories")
	}

	var copied int64
	for start := 0; start < len(p.fresh); start += copyBatch {
		end := min(start+copyBatch, len(p.fresh))
		n, err := repo.CopyProducts(ctx, p.fresh[start:end], categories)
		if err != nil {
			return errors.Wrapf(err, "copy batch at %d", start)
		}
		copied += n
		slog.Info("copy progress", slog.Int64("copied", copied), slog.Int("total", len(p.fresh)))
	}

	for i, prod := range p.maybe {
		if err := repo.UpsertProduct(ctx, prod, categories); err != nil {
			return errors.Wrap(err, "upsert product")
		}
		if (i+1)%1000 == 0 || i+1 == len(p.maybe) {
			slog.Info("upsert progress", slog.Int("written", i+1), slog.Int("total", len(p.maybe)))
		}
	}

	return nil
}
