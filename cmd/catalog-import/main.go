// Command catalog-import loads gzipped JSONL product feeds into the
// catalog. Feeds from multiple suppliers may overlap; each SKU is imported
// once, first feed wins. Feeds are validated concurrently before any write
// so a malformed file aborts the import without touching the database.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/voltstore/storefront/internal/domain/product"
	"github.com/voltstore/storefront/internal/storage/postgres"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	progressEvery = 100_000
)

// feedEntry is one line of a supplier feed.
type feedEntry struct {
	Name      string          `json:"name"`
	SKU       string          `json:"sku"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
	ImagePath string          `json:"image_path"`
}

func (e *feedEntry) validate() error {
	switch {
	case e.SKU == "":
		return errors.New("missing sku")
	case e.Name == "":
		return errors.New("missing name")
	case e.Price.IsNegative():
		return errors.New("negative price")
	case e.Stock < 0:
		return errors.New("negative stock")
	}
	return nil
}

func main() {
	var (
		dataDir     string
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing *.jsonl.gz product feeds")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL); err != nil {
		slog.Error("catalog import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog import completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.jsonl.gz"))
	if err != nil {
		return errors.Wrap(err, "list feed files")
	}
	if len(files) == 0 {
		return errors.Errorf("no *.jsonl.gz feeds in %s", dataDir)
	}

	// Pass 1: validate every feed concurrently.
	slog.Info("pass 1: validating feeds", slog.Int("files", len(files)))

	if err := validateFeeds(ctx, files); err != nil {
		return errors.Wrap(err, "validate feeds")
	}

	// Pass 2: import sequentially, deduplicating SKUs across feeds.
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	return importFeeds(ctx, postgres.NewProductRepository(pool), files)
}

// validateFeeds parses every feed line in parallel without writing
// anything, so format errors surface before the import starts.
func validateFeeds(ctx context.Context, files []string) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, f := range files {
		g.Go(validateFeed(ctx, f))
	}
	return g.Wait()
}

func validateFeed(ctx context.Context, path string) func() error {
	return func() error {
		var count uint64
		if err := streamFeed(ctx, path, func(line int, e *feedEntry) error {
			if err := e.validate(); err != nil {
				return errors.Wrapf(err, "line %d", line)
			}
			count++
			if count%progressEvery == 0 {
				slog.Info("pass 1 progress", slog.String("feed", filepath.Base(path)), slog.Uint64("entries", count))
			}
			return nil
		}); err != nil {
			return errors.Wrapf(err, "feed %s", filepath.Base(path))
		}

		slog.Info("pass 1 complete", slog.String("feed", filepath.Base(path)), slog.Uint64("entries", count))
		return nil
	}
}

// importFeeds streams each feed in order and upserts products. A bloom
// filter tracks SKUs already imported this run; a positive hit only costs
// a skipped duplicate, never a lost product.
func importFeeds(ctx context.Context, products *postgres.ProductRepository, files []string) error {
	seen := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
	var imported, skipped int

	for _, path := range files {
		slog.Info("importing feed", slog.String("feed", filepath.Base(path)))

		if err := streamFeed(ctx, path, func(line int, e *feedEntry) error {
			if seen.TestString(e.SKU) {
				skipped++
				return nil
			}
			seen.AddString(e.SKU)

			p := product.Product{
				Name:      e.Name,
				SKU:       e.SKU,
				Price:     e.Price,
				Stock:     e.Stock,
				ImagePath: e.ImagePath,
				IsActive:  true,
			}
			if err := products.Upsert(ctx, &p); err != nil {
				return errors.Wrapf(err, "line %d", line)
			}

			imported++
			if imported%progressEvery == 0 {
				slog.Info("import progress", slog.Int("imported", imported), slog.Int("skipped", skipped))
			}
			return nil
		}); err != nil {
			return errors.Wrapf(err, "import feed %s", filepath.Base(path))
		}
	}

	slog.Info("import done", slog.Int("imported", imported), slog.Int("skipped", skipped))
	return nil
}

// streamFeed opens a gzip-compressed JSONL file and calls fn for each
// decoded line.
func streamFeed(ctx context.Context, path string, fn func(line int, e *feedEntry) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<20)
	line := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}

		var e feedEntry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return errors.Wrapf(err, "parse line %d", line)
		}
		if err := fn(line, &e); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}
