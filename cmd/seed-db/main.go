// Command seed-db prepares a fresh database: runs migrations, loads the
// product catalog from a JSON file, creates the admin and demo customer
// accounts, and prints ready-to-use bearer tokens for them.
package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/voltstore/storefront/internal/auth"
	"github.com/voltstore/storefront/internal/domain/product"
	"github.com/voltstore/storefront/internal/storage/postgres"
)

type productJSON struct {
	Name      string          `json:"name"`
	SKU       string          `json:"sku"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
	ImagePath string          `json:"image_path"`
}

func main() {
	var (
		databaseURL   string
		productsFile  string
		adminEmail    string
		adminName     string
		customerEmail string
		customerName  string
		authSecret    string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&adminEmail, "admin-email", "admin@example.com", "admin account email")
	flag.StringVar(&adminName, "admin-name", "Admin", "admin account name")
	flag.StringVar(&customerEmail, "customer-email", "customer@example.com", "demo customer email (empty to skip)")
	flag.StringVar(&customerName, "customer-name", "Customer", "demo customer name")
	flag.StringVar(&authSecret, "auth-secret", "", "HMAC secret for bearer tokens (or STORE_AUTH_SECRET env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if authSecret == "" {
		authSecret = os.Getenv("STORE_AUTH_SECRET")
	}
	if authSecret == "" {
		slog.Error("auth secret is required: set --auth-secret or STORE_AUTH_SECRET")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, adminName, adminEmail, customerName, customerEmail, authSecret); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, adminName, adminEmail, customerName, customerEmail, authSecret string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, postgres.NewProductRepository(pool), productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	users := postgres.NewUserStore(pool)
	verifier := auth.NewTokenVerifier([]byte(authSecret))

	if err := seedAccount(ctx, users, verifier, adminName, adminEmail, auth.RoleAdmin); err != nil {
		return errors.Wrap(err, "seed admin")
	}
	if customerEmail != "" {
		if err := seedAccount(ctx, users, verifier, customerName, customerEmail, auth.RoleUser); err != nil {
			return errors.Wrap(err, "seed customer")
		}
	}

	return nil
}

func seedProducts(ctx context.Context, products *postgres.ProductRepository, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var entries []productJSON
	if err := json.Unmarshal(data, &entries); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(entries)))

	for _, e := range entries {
		p := product.Product{
			Name:      e.Name,
			SKU:       e.SKU,
			Price:     e.Price,
			Stock:     e.Stock,
			ImagePath: e.ImagePath,
			IsActive:  true,
		}
		if err := products.Upsert(ctx, &p); err != nil {
			return errors.Wrapf(err, "upsert product %s", e.SKU)
		}

		slog.Info("upserted product", slog.String("sku", e.SKU), slog.String("name", e.Name))
	}

	return nil
}

func seedAccount(ctx context.Context, users *postgres.UserStore, verifier *auth.TokenVerifier, name, email string, role auth.Role) error {
	slog.Info("seeding account", slog.String("email", email), slog.String("role", string(role)))

	// The API authenticates with signed tokens, not passwords; the stored
	// hash only marks the row as seeded.
	sum := sha256.Sum256([]byte(email))
	id, err := users.Upsert(ctx, name, email, hex.EncodeToString(sum[:]), string(role))
	if err != nil {
		return errors.Wrap(err, "upsert user")
	}

	token := verifier.Sign(auth.Principal{UserID: id, Role: role}, time.Now().AddDate(1, 0, 0))

	slog.Info("account ready",
		slog.Int64("user_id", id),
		slog.String("role", string(role)),
		slog.String("token", token))

	return nil
}
