package app

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/shopprime/storefront/internal/domain/auth"
	"github.com/shopprime/storefront/internal/domain/cart"
	"github.com/shopprime/storefront/internal/domain/coupon"
	"github.com/shopprime/storefront/internal/domain/order"
	"github.com/shopprime/storefront/internal/domain/product"
	"github.com/shopprime/storefront/internal/domain/review"
	"github.com/shopprime/storefront/internal/domain/wishlist"
	"github.com/shopprime/storefront/internal/storage/memory"
	"github.com/shopprime/storefront/internal/storage/mongodb"
	"github.com/shopprime/storefront/internal/storage/postgres"
	"github.com/shopprime/storefront/pkg/health"
)

// Storage is the set of repositories of one driver.
type Storage struct {
	Products product.Repository
	Coupons  coupon.Repository
	Carts    cart.Repository
	Orders   order.Repository
	APIKeys  auth.Repository
	Reviews  review.Repository
	Wishlist wishlist.Repository
	// Tx is nil for drivers without transactions.
	Tx    order.Transactor
	Ping  health.CheckFunc
	Close func()
}

// OpenStorage connects the configured driver, prepares its schema and
// returns its repositories. Callers must call Close.
func OpenStorage(ctx context.Context, lg *zap.Logger, cfg *Config) (*Storage, error) {
	switch cfg.Storage {
	case DriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "create db pool")
		}
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, errors.Wrap(err, "run migrations")
		}
		return &Storage{
			Products: postgres.NewProductRepository(pool),
			Coupons:  postgres.NewCouponRepository(pool),
			Carts:    postgres.NewCartRepository(pool),
			Orders:   postgres.NewOrderRepository(pool),
			APIKeys:  postgres.NewAPIKeyRepository(pool),
			Reviews:  postgres.NewReviewRepository(pool),
			Wishlist: postgres.NewWishlistRepository(pool),
			Tx:       postgres.NewTransactor(pool),
			Ping:     health.PingCheck(pool.Ping),
			Close:    pool.Close,
		}, nil

	case DriverMongo:
		client, err := mongodb.Connect(ctx, cfg.Mongo.URI)
		if err != nil {
			return nil, errors.Wrap(err, "connect mongo")
		}
		db := client.Database(cfg.Mongo.Database)
		if err := mongodb.EnsureIndexes(ctx, db); err != nil {
			_ = client.Disconnect(ctx)
			return nil, errors.Wrap(err, "ensure indexes")
		}
		return &Storage{
			Products: mongodb.NewProductRepository(db),
			Coupons:  mongodb.NewCouponRepository(db),
			Carts:    mongodb.NewCartRepository(db),
			Orders:   mongodb.NewOrderRepository(db),
			APIKeys:  mongodb.NewAPIKeyRepository(db),
			Reviews:  mongodb.NewReviewRepository(db),
			Wishlist: mongodb.NewWishlistRepository(db),
			Tx:       mongodb.NewTransactor(client),
			Ping: health.PingCheck(func(ctx context.Context) error {
				return client.Ping(ctx, readpref.Primary())
			}),
			Close: func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := client.Disconnect(ctx); err != nil {
					lg.Warn("Disconnect mongo", zap.Error(err))
				}
			},
		}, nil

	case DriverMemory:
		lg.Warn("Using in-memory storage, data is lost on restart")
		s := memory.New()
		return &Storage{
			Products: s.Products,
			Coupons:  s.Coupons,
			Carts:    s.Carts,
			Orders:   s.Orders,
			APIKeys:  s.APIKeys,
			Reviews:  s.Reviews,
			Wishlist: s.Wishlists,
			Ping:     func(context.Context) error { return nil },
			Close:    func() {},
		}, nil
	}
	return nil, errors.Errorf("unknown storage driver %q", cfg.Storage)
}
