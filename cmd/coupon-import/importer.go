package main

import (
	"bufio"
	"context"
	"math/bits"
	"os"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shopprime/storefront/internal/domain/coupon"
)

const (
	minCodeLen    = 4
	maxCodeLen    = 20
	maxFiles      = bits.UintSize
	progressEvery = 1_000_000
)

type options struct {
	// MinFiles is how many feeds must list a code before it is imported.
	MinFiles int
	// Capacity and FPR size the per-feed bloom filters.
	Capacity uint
	FPR      float64
	Workers  int
	// Template is copied for every imported code.
	Template coupon.Coupon
}

type importer struct {
	lg   *zap.Logger
	repo coupon.Repository
	opts options
}

func newImporter(lg *zap.Logger, repo coupon.Repository, opts options) (*importer, error) {
	if opts.MinFiles < 1 {
		opts.MinFiles = 1
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Capacity == 0 {
		opts.Capacity = 1_000_000
	}
	if opts.FPR <= 0 || opts.FPR >= 1 {
		opts.FPR = 0.001
	}
	probe := opts.Template
	probe.Code = "PROBE"
	if err := probe.Validate(); err != nil {
		return nil, errors.Wrap(err, "coupon rule")
	}
	return &importer{lg: lg, repo: repo, opts: opts}, nil
}

// Import selects the codes and creates a coupon for each. It returns the
// number of coupons written.
func (i *importer) Import(ctx context.Context, files []string) (int, error) {
	if len(files) > maxFiles {
		return 0, errors.Errorf("at most %d feeds supported, got %d", maxFiles, len(files))
	}
	if i.opts.MinFiles > len(files) {
		return 0, errors.Errorf("min files %d exceeds feed count %d", i.opts.MinFiles, len(files))
	}

	var filters []*bloom.BloomFilter
	if i.opts.MinFiles > 1 {
		i.lg.Info("Pass 1: building bloom filters", zap.Int("files", len(files)))
		var err error
		if filters, err = i.buildFilters(ctx, files); err != nil {
			return 0, errors.Wrap(err, "build bloom filters")
		}
	}

	i.lg.Info("Pass 2: selecting codes", zap.Int("min_files", i.opts.MinFiles))
	codes, err := i.selectCodes(ctx, files, filters)
	if err != nil {
		return 0, errors.Wrap(err, "select codes")
	}
	i.lg.Info("Codes selected", zap.Int("count", len(codes)))

	if err := i.write(ctx, codes); err != nil {
		return 0, errors.Wrap(err, "write coupons")
	}
	return len(codes), nil
}

// buildFilters creates one bloom filter per feed, concurrently.
func (i *importer) buildFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for idx, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(i.opts.Capacity, i.opts.FPR)
			var count uint64
			if err := streamGzFile(ctx, path, func(code string) {
				filter.AddString(code)
				count++
				if count%progressEvery == 0 {
					i.lg.Info("Pass 1 progress", zap.Int("file", idx+1), zap.Uint64("codes", count))
				}
			}); err != nil {
				return errors.Wrapf(err, "build filter for %s", path)
			}
			i.lg.Info("Pass 1 complete", zap.Int("file", idx+1), zap.Uint64("codes", count))
			filters[idx] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// selectCodes re-reads every feed and records, per code, a bitmask of the
// feeds it was actually seen in. The bloom filters only decide which codes
// are worth remembering, so the final count is exact.
func (i *importer) selectCodes(ctx context.Context, files []string, filters []*bloom.BloomFilter) ([]string, error) {
	seen := make([]map[string]uint, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for idx, path := range files {
		g.Go(func() error {
			found := make(map[string]uint)
			bit := uint(1) << uint(idx)
			if err := streamGzFile(ctx, path, func(code string) {
				if i.candidate(idx, code, filters) {
					found[code] |= bit
				}
			}); err != nil {
				return errors.Wrapf(err, "scan %s", path)
			}
			i.lg.Info("Pass 2 complete", zap.Int("file", idx+1), zap.Int("candidates", len(found)))
			seen[idx] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]uint)
	for _, found := range seen {
		for code, mask := range found {
			merged[code] |= mask
		}
	}
	var codes []string
	for code, mask := range merged {
		if bits.OnesCount(mask) >= i.opts.MinFiles {
			codes = append(codes, code)
		}
	}
	return codes, nil
}

// candidate reports whether enough other feeds may contain code.
func (i *importer) candidate(idx int, code string, filters []*bloom.BloomFilter) bool {
	need := i.opts.MinFiles - 1
	for j, f := range filters {
		if need == 0 {
			break
		}
		if j != idx && f.TestString(code) {
			need--
		}
	}
	return need == 0
}

func (i *importer) write(ctx context.Context, codes []string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(i.opts.Workers)
	for n, code := range codes {
		g.Go(func() error {
			c := i.opts.Template
			c.Code = code
			if c.UsageLimit != nil {
				limit := *c.UsageLimit
				c.UsageLimit = &limit
			}
			if err := i.repo.Create(ctx, &c); err != nil {
				return errors.Wrapf(err, "create coupon %s", code)
			}
			if (n+1)%1000 == 0 {
				i.lg.Info("Write progress", zap.Int("written", n+1), zap.Int("total", len(codes)))
			}
			return nil
		})
	}
	return g.Wait()
}

// streamGzFile calls fn for every well-formed code in a gzip file. Codes are
// normalized the way the coupon ledger stores them.
func streamGzFile(ctx context.Context, path string, fn func(code string)) error {
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
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if code, ok := parseCode(scanner.Text()); ok {
			fn(code)
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}

func parseCode(line string) (string, bool) {
	code := coupon.NormalizeCode(line)
	if len(code) < minCodeLen || len(code) > maxCodeLen {
		return "", false
	}
	for _, r := range code {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", false
		}
	}
	return code, true
}
