package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// sqliteRepository is the single-node store. The pool holds one connection, so
// every transaction, and with it every read-modify-write, runs alone.
type sqliteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens the database file at path, applies the embedded
// migrations and returns the repository.
func NewSQLiteStore(ctx context.Context, path string) (CartRepository, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := runSQLiteMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &sqliteRepository{db: db, now: time.Now}, nil
}

// runSQLiteMigrations migrates on the repository's own connection; closing
// the migrate instance would close db, so it is left open.
func runSQLiteMigrations(db *sql.DB) error {
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}
	source, err := iofs.New(migrationsFS, "migrations/sqlite")
	if err != nil {
		return fmt.Errorf("could not create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	return nil
}

const sqliteSelect = `SELECT id, items, version, created_at, updated_at FROM carts WHERE user_id = ?`

func (r *sqliteRepository) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	return scanSQLiteCart(r.db.QueryRowContext(ctx, sqliteSelect, userID), userID)
}

func (r *sqliteRepository) Update(ctx context.Context, userID string, mode Mode, fn MutateFunc) (cart *domain.Cart, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	found := true
	cart, err = scanSQLiteCart(tx.QueryRowContext(ctx, sqliteSelect, userID), userID)
	switch {
	case errors.Is(err, domain.ErrCartNotFound) && mode == CreateIfAbsent:
		found = false
		cart = domain.NewCart(userID, r.now())
		cart.ID = uuid.NewString()
	case err != nil:
		return nil, err
	}

	if err = fn(cart); err != nil {
		return nil, err
	}
	cart.Version++
	cart.UpdatedAt = r.now()

	items, err := json.Marshal(cart.Items)
	if err != nil {
		return nil, fmt.Errorf("failed to encode items: %w", err)
	}

	if found {
		_, err = tx.ExecContext(ctx,
			`UPDATE carts SET items = ?, version = ?, updated_at = ? WHERE user_id = ?`,
			string(items), cart.Version, cart.UpdatedAt.UnixNano(), userID)
	} else {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO carts (user_id, id, items, version, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
			userID, cart.ID, string(items), cart.Version, cart.CreatedAt.UnixNano(), cart.UpdatedAt.UnixNano())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to save cart: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit cart: %w", err)
	}
	return cart, nil
}

func (r *sqliteRepository) DeleteCart(ctx context.Context, userID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM carts WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}
	if n == 0 {
		return domain.ErrCartNotFound
	}
	return nil
}

func (r *sqliteRepository) Close(context.Context) error {
	return r.db.Close()
}

func scanSQLiteCart(row *sql.Row, userID string) (*domain.Cart, error) {
	cart := &domain.Cart{UserID: userID}
	var items string
	var createdAt, updatedAt int64
	err := row.Scan(&cart.ID, &items, &cart.Version, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	cart.CreatedAt = time.Unix(0, createdAt).UTC()
	cart.UpdatedAt = time.Unix(0, updatedAt).UTC()
	if cart.Items, err = decodeItems([]byte(items)); err != nil {
		return nil, err
	}
	return cart, nil
}
