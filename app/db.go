package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/samuelogboye/cv-forge-api/app/config"

	_ "github.com/lib/pq"
)

var db *sql.DB

// ErrStoreUnavailable marks transient persistence failures. Webhook
// processing that hits it is still acknowledged to Stripe and picked up by
// the reconciliation sweep instead.
var ErrStoreUnavailable = errors.New("store unavailable")

// MustInitDB initializes the global db and panics/logs fatally on error.
func MustInitDB() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s",
		cfg.DB.Username,
		cfg.DB.Password,
		cfg.DB.URL,
		cfg.DB.Port,
		cfg.DB.Name,
	)

	d, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("sql.Open: %v", err)
	}

	if err := d.Ping(); err != nil {
		log.Fatalf("db.Ping: %v", err)
	}

	log.Println("Connected to Postgres")
	db = d
}

// SetDB swaps the package database handle. Used by tests to install a mock.
func SetDB(d *sql.DB) { db = d }

// countDocuments counts a user's live documents. Soft-deleted rows do not
// count against the plan limit.
func countDocuments(ctx context.Context, userID string) (int, error) {
	if db == nil {
		return 0, ErrStoreUnavailable
	}
	var n int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM documents
		WHERE user_id = $1
		  AND deleted_at IS NULL;
	`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

// getUserContact returns email and name for Stripe customer creation.
func getUserContact(ctx context.Context, userID string) (email, name string, err error) {
	if db == nil {
		return "", "", ErrStoreUnavailable
	}
	var e, n sql.NullString
	err = db.QueryRowContext(ctx, `
		SELECT email, name
		FROM users
		WHERE auth0_sub = $1;
	`, userID).Scan(&e, &n)
	if err != nil {
		return "", "", err
	}
	return e.String, n.String, nil
}
