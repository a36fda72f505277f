// Command seed-db fills the configured storage with a demo catalog, the
// launch coupons and an admin API key.
package main

import (
	"context"
	_ "embed"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/shopprime/storefront/internal/app"
	"github.com/shopprime/storefront/internal/domain/auth"
	"github.com/shopprime/storefront/internal/domain/coupon"
	"github.com/shopprime/storefront/internal/domain/product"
)

//go:embed products.json
var defaultProducts []byte

func main() {
	var (
		productsFile string
		apiKey       string
	)
	flag.StringVar(&productsFile, "products-file", "", "path to a products JSON file (embedded catalog when empty)")
	flag.StringVar(&apiKey, "api-key", os.Getenv("SHOP_SEED_API_KEY"), "admin API key to seed (or SHOP_SEED_API_KEY env)")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, productsFile, apiKey); err != nil {
		lg.Error("Seed failed", zap.Error(err))
		os.Exit(1)
	}
	lg.Info("Seed completed")
}

func run(ctx context.Context, lg *zap.Logger, productsFile, apiKey string) error {
	if apiKey == "" {
		return errors.New("API key is required: set --api-key or SHOP_SEED_API_KEY")
	}
	cfg, err := app.LoadToolConfig()
	if err != nil {
		return err
	}

	data := defaultProducts
	if productsFile != "" {
		if data, err = os.ReadFile(productsFile); err != nil {
			return errors.Wrap(err, "read products file")
		}
	}
	products, err := decodeProducts(data)
	if err != nil {
		return errors.Wrap(err, "decode products")
	}

	store, err := app.OpenStorage(ctx, lg, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := seedProducts(ctx, lg, store.Products, products); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedCoupons(ctx, lg, store.Coupons, time.Now().UTC()); err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	if err := seedAPIKey(ctx, lg, store.APIKeys, apiKey, []byte(cfg.Auth.APIKeyPepper)); err != nil {
		return errors.Wrap(err, "seed api key")
	}
	return nil
}

// decodeProducts reads a JSON array of products. Amounts are decimal
// strings or numbers; unknown fields are skipped.
func decodeProducts(data []byte) ([]product.Product, error) {
	var out []product.Product
	err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		var p product.Product
		if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			var err error
			switch string(key) {
			case "id":
				p.ID, err = d.Str()
			case "name":
				p.Name, err = d.Str()
			case "description":
				p.Description, err = d.Str()
			case "category":
				p.Category, err = d.Str()
			case "brand":
				p.Brand, err = d.Str()
			case "price":
				p.Price, err = decodeAmount(d)
			case "discountPrice":
				var v decimal.Decimal
				if v, err = decodeAmount(d); err == nil {
					p.DiscountPrice = decimal.NewNullDecimal(v)
				}
			case "stock":
				p.Stock, err = d.Int()
			default:
				err = d.Skip()
			}
			if err != nil {
				return errors.Wrapf(err, "field %q", key)
			}
			return nil
		}); err != nil {
			return err
		}
		if err := p.Validate(); err != nil {
			return errors.Wrapf(err, "product %q", p.ID)
		}
		out = append(out, p)
		return nil
	})
	return out, err
}

func decodeAmount(d *jx.Decoder) (decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		raw = s
	default:
		n, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, err
		}
		raw = n.String()
	}
	return decimal.NewFromString(raw)
}

func seedProducts(ctx context.Context, lg *zap.Logger, repo product.Repository, products []product.Product) error {
	lg.Info("Upserting products", zap.Int("count", len(products)))
	for i := range products {
		p := &products[i]
		if err := repo.Create(ctx, p); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}
		lg.Info("Upserted product", zap.String("id", p.ID), zap.String("name", p.Name))
	}
	return nil
}

// launchCoupons are the coupons every fresh deployment starts with.
func launchCoupons(now time.Time) []coupon.Coupon {
	return []coupon.Coupon{
		{
			Code:          "WELCOME10",
			DiscountType:  coupon.DiscountPercentage,
			DiscountValue: decimal.NewFromInt(10),
			MinOrderValue: decimal.NewFromInt(1000),
			ExpiresAt:     now.AddDate(0, 0, 30),
			Active:        true,
		},
		{
			Code:          "FLAT500",
			DiscountType:  coupon.DiscountFlat,
			DiscountValue: decimal.NewFromInt(500),
			MinOrderValue: decimal.NewFromInt(5000),
			ExpiresAt:     now.AddDate(0, 0, 15),
			Active:        true,
		},
	}
}

func seedCoupons(ctx context.Context, lg *zap.Logger, repo coupon.Repository, now time.Time) error {
	for _, c := range launchCoupons(now) {
		if err := repo.Create(ctx, &c); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", c.Code)
		}
		lg.Info("Upserted coupon",
			zap.String("code", c.Code),
			zap.String("type", string(c.DiscountType)),
			zap.Time("expires_at", c.ExpiresAt),
		)
	}
	return nil
}

func seedAPIKey(ctx context.Context, lg *zap.Logger, repo auth.Repository, key string, pepper []byte) error {
	if err := repo.Upsert(ctx, auth.APIKeyInfo{
		ID:      "default",
		KeyHash: auth.HashKey(pepper, key),
		Name:    "Default admin key",
		Scopes:  []string{auth.ScopeAdmin},
	}); err != nil {
		return errors.Wrap(err, "upsert default API key")
	}
	lg.Info("Upserted API key", zap.String("id", "default"))
	return nil
}
