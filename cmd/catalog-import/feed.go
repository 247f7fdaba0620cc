package main

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"

	"github.com/xenking/storefront/internal/storage/postgres"
)

const maxLineSize = 1 << 20

// plan is the outcome of scanning all feeds.
type plan struct {
	mu sync.Mutex
	// existing holds slugs already stored; a hit may be a false positive.
	existing *bloom.BloomFilter
	seen     map[string]struct{}

	// fresh products are certainly new and go through COPY.
	fresh []postgres.CatalogProduct
	// maybe products might exist and are upserted one by one.
	maybe      []postgres.CatalogProduct
	categories map[string]struct{}
	invalid    int
	duplicates int
}

func newPlan(existing *bloom.BloomFilter) *plan {
	return &plan{
		existing:   existing,
		seen:       map[string]struct{}{},
		categories: map[string]struct{}{},
	}
}

func (p *plan) add(prod postgres.CatalogProduct) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.seen[prod.Slug]; ok {
		p.duplicates++
		return
	}
	p.seen[prod.Slug] = struct{}{}
	p.categories[prod.Category] = struct{}{}
	if p.existing.TestString(prod.Slug) {
		p.maybe = append(p.maybe, prod)
		return
	}
	p.fresh = append(p.fresh, prod)
}

func (p *plan) reject() {
	p.mu.Lock()
	p.invalid++
	p.mu.Unlock()
}

func (p *plan) categoryList() []postgres.CatalogCategory {
	out := make([]postgres.CatalogCategory, 0, len(p.categories))
	for name := range p.categories {
		out = append(out, postgres.CatalogCategory{Name: name})
	}
	return out
}

// parseLine decodes and validates one feed record.
func parseLine(line []byte) (postgres.CatalogProduct, error) {
	var prod postgres.CatalogProduct
	if err := json.Unmarshal(line, &prod); err != nil {
		return prod, errors.Wrap(err, "decode")
	}
	prod.Slug = strings.ToLower(strings.TrimSpace(prod.Slug))
	prod.Name = strings.TrimSpace(prod.Name)
	prod.Category = strings.TrimSpace(prod.Category)
	switch {
	case prod.Slug == "":
		return prod, errors.New("slug is required")
	case prod.Name == "":
		return prod, errors.New("name is required")
	case prod.Category == "":
		return prod, errors.New("category is required")
	case !prod.Price.IsPositive():
		return prod, errors.New("price must be positive")
	case prod.DiscountPrice.Valid && (prod.DiscountPrice.Decimal.IsNegative() || prod.DiscountPrice.Decimal.GreaterThan(prod.Price)):
		return prod, errors.New("discount price must be between zero and price")
	case prod.StockQuantity < 0:
		return prod, errors.New("stock quantity must not be negative")
	}
	return prod, nil
}

// scanFeed reads a gzip'd JSON-lines feed into p.
func scanFeed(ctx context.Context, r io.Reader, name string, p *plan) error {
	gz, err := pgzip.NewReader(r)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", name)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	var lineNo int
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		lineNo++
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		prod, err := parseLine(line)
		if err != nil {
			slog.Warn("skipping record",
				slog.String("file", name),
				slog.Int("line", lineNo),
				slog.String("error", err.Error()),
			)
			p.reject()
			continue
		}
		p.add(prod)
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", name)
	}
	slog.Info("feed scanned", slog.String("file", name), slog.Int("lines", lineNo))
	return nil
}

func scanFile(ctx context.Context, path string, p *plan) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()
	return scanFeed(ctx, f, path, p)
}
