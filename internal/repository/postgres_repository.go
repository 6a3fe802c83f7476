package repository

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

//go:embed migrations
var migrationsFS embed.FS

var errCreateRace = errors.New("cart created concurrently")

// postgresRepository keeps one row per user with the ordered items as JSONB.
// Update holds a row lock for the whole read-modify-write.
type postgresRepository struct {
	db          *sql.DB
	maxAttempts int
	now         func() time.Time
}

func NewPostgresRepository(db *sql.DB) CartRepository {
	return &postgresRepository{
		db:          db,
		maxAttempts: defaultMaxAttempts,
		now:         time.Now,
	}
}

// OpenPostgres opens and pings the database.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	return db, nil
}

// RunMigrations applies the embedded migrations on a dedicated connection.
func RunMigrations(ctx context.Context, dsn string) (uint, error) {
	db, err := OpenPostgres(ctx, dsn)
	if err != nil {
		return 0, fmt.Errorf("open db for migrations: %w", err)
	}
	defer db.Close()

	sourceDriver, err := iofs.New(migrationsFS, "migrations/postgres")
	if err != nil {
		return 0, fmt.Errorf("create migration source: %w", err)
	}
	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return 0, fmt.Errorf("create migration db driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return 0, fmt.Errorf("create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("run migrations: %w", err)
	}
	version, _, err := m.Version()
	if err != nil {
		return 0, fmt.Errorf("read migration version: %w", err)
	}
	return version, nil
}

// NewPostgresStore migrates the schema and returns a repository on a fresh pool.
func NewPostgresStore(ctx context.Context, dsn string) (CartRepository, error) {
	if _, err := RunMigrations(ctx, dsn); err != nil {
		return nil, err
	}
	db, err := OpenPostgres(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return NewPostgresRepository(db), nil
}

func (r *postgresRepository) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	const query = `SELECT id, items, version, created_at, updated_at FROM carts WHERE user_id = $1`

	cart, err := scanCart(r.db.QueryRowContext(ctx, query, userID), userID)
	if err != nil {
		return nil, err
	}
	return cart, nil
}

func (r *postgresRepository) Update(ctx context.Context, userID string, mode Mode, fn MutateFunc) (*domain.Cart, error) {
	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		cart, err := r.updateOnce(ctx, userID, mode, fn)
		if errors.Is(err, errCreateRace) {
			continue
		}
		return cart, err
	}
	return nil, domain.ErrConcurrentModification
}

func (r *postgresRepository) updateOnce(ctx context.Context, userID string, mode Mode, fn MutateFunc) (cart *domain.Cart, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const lockQuery = `SELECT id, items, version, created_at, updated_at FROM carts WHERE user_id = $1 FOR UPDATE`

	found := true
	cart, err = scanCart(tx.QueryRowContext(ctx, lockQuery, userID), userID)
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
		const updateSQL = `UPDATE carts SET items = $2, version = $3, updated_at = $4 WHERE user_id = $1`
		if _, err = tx.ExecContext(ctx, updateSQL, userID, string(items), cart.Version, cart.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to update cart: %w", err)
		}
	} else {
		const insertSQL = `
INSERT INTO carts (user_id, id, items, version, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (user_id) DO NOTHING`
		var res sql.Result
		res, err = tx.ExecContext(ctx, insertSQL, userID, cart.ID, string(items), cart.Version, cart.CreatedAt, cart.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to create cart: %w", err)
		}
		var n int64
		if n, err = res.RowsAffected(); err != nil {
			return nil, fmt.Errorf("failed to create cart: %w", err)
		}
		if n == 0 {
			err = errCreateRace
			return nil, err
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit cart: %w", err)
	}
	return cart, nil
}

func (r *postgresRepository) DeleteCart(ctx context.Context, userID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM carts WHERE user_id = $1`, userID)
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

func (r *postgresRepository) Close(context.Context) error {
	return r.db.Close()
}

func scanCart(row *sql.Row, userID string) (*domain.Cart, error) {
	cart := &domain.Cart{UserID: userID}
	var items []byte
	err := row.Scan(&cart.ID, &items, &cart.Version, &cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	if cart.Items, err = decodeItems(items); err != nil {
		return nil, err
	}
	return cart, nil
}

func decodeItems(raw []byte) ([]domain.LineItem, error) {
	var items []domain.LineItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("failed to decode items: %w", err)
	}
	if items == nil {
		items = []domain.LineItem{}
	}
	return items, nil
}
