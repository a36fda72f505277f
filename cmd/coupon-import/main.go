// Command coupon-import loads promo codes from gzip-compressed partner feeds
// (one code per line) and creates a coupon for every code listed in at least
// --min-files feeds. All imported coupons share the discount rule given by
// flags.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/shopprime/storefront/internal/app"
	"github.com/shopprime/storefront/internal/domain/coupon"
)

func main() {
	var (
		opts       options
		ruleType   string
		ruleValue  string
		minOrder   string
		validFor   time.Duration
		usageLimit int
	)
	flag.IntVar(&opts.MinFiles, "min-files", 2, "number of feeds a code must appear in")
	flag.UintVar(&opts.Capacity, "bloom-capacity", 10_000_000, "expected codes per feed")
	flag.Float64Var(&opts.FPR, "bloom-fpr", 0.001, "bloom filter false positive rate")
	flag.IntVar(&opts.Workers, "workers", 8, "concurrent coupon writes")
	flag.StringVar(&ruleType, "type", string(coupon.DiscountPercentage), "discount type: percentage or flat")
	flag.StringVar(&ruleValue, "value", "10", "discount value")
	flag.StringVar(&minOrder, "min-order", "0", "minimum order value")
	flag.DurationVar(&validFor, "valid-for", 30*24*time.Hour, "coupon lifetime from now")
	flag.IntVar(&usageLimit, "usage-limit", 0, "redemptions per coupon, 0 for unlimited")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	tmpl := coupon.Coupon{
		DiscountType: coupon.DiscountType(ruleType),
		ExpiresAt:    time.Now().UTC().Add(validFor),
		Active:       true,
	}
	if usageLimit > 0 {
		tmpl.UsageLimit = &usageLimit
	}
	if tmpl.DiscountValue, err = decimal.NewFromString(ruleValue); err != nil {
		lg.Fatal("Invalid --value", zap.Error(err))
	}
	if tmpl.MinOrderValue, err = decimal.NewFromString(minOrder); err != nil {
		lg.Fatal("Invalid --min-order", zap.Error(err))
	}
	opts.Template = tmpl

	if err := run(ctx, lg, flag.Args(), opts); err != nil {
		lg.Error("Coupon import failed", zap.Error(err))
		os.Exit(1)
	}
	lg.Info("Coupon import completed")
}

func run(ctx context.Context, lg *zap.Logger, files []string, opts options) error {
	if len(files) == 0 {
		return errors.New("no feed files given")
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	cfg, err := app.LoadToolConfig()
	if err != nil {
		return err
	}
	store, err := app.OpenStorage(ctx, lg, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	imp, err := newImporter(lg, store.Coupons, opts)
	if err != nil {
		return err
	}
	n, err := imp.Import(ctx, files)
	if err != nil {
		return err
	}
	lg.Info("Imported coupons", zap.Int("count", n))
	return nil
}
