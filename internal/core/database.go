// AngelaMos | 2026
// database.go

package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/carterperez-dev/rti-cashflowops/internal/config"
)

const (
	pingTimeout    = 5 * time.Second
	connectBackoff = time.Second
)

type Database struct {
	DB *sqlx.DB
}

// NewDatabase opens the pgx pool and retries the first ping up to
// cfg.ConnectAttempts times with a doubling delay, so the API can start
// alongside a Postgres container that is still booting.
func NewDatabase(
	ctx context.Context,
	cfg config.DatabaseConfig,
) (*Database, error) {
	db, err := sqlx.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(jitteredDuration(cfg.ConnMaxLifetime))
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	d := NewDatabaseFromDB(db)
	if err := d.waitReady(ctx, max(cfg.ConnectAttempts, 1), connectBackoff); err != nil {
		_ = db.Close() //nolint:errcheck // cleanup on connection failure
		return nil, err
	}

	return d, nil
}

// NewDatabaseFromDB wraps an already opened handle.
func NewDatabaseFromDB(db *sqlx.DB) *Database {
	return &Database{DB: db}
}

func (d *Database) waitReady(ctx context.Context, attempts int, backoff time.Duration) error {
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = d.Ping(ctx); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}

		slog.WarnContext(ctx, "database not ready",
			"attempt", attempt,
			"retry_in", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return fmt.Errorf("connect to database after %d attempts: %w", attempts, err)
}

func (d *Database) Close() error {
	if d.DB == nil {
		return nil
	}
	return d.DB.Close()
}

func (d *Database) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := d.DB.PingContext(pingCtx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

func (d *Database) Stats() sql.DBStats {
	return d.DB.Stats()
}

// Migrate applies the embedded schema migrations.
func (d *Database) Migrate(ctx context.Context) error {
	return Migrate(ctx, d.DB.DB)
}

// pgInvalidText is raised when a parameter cannot be cast to the column
// type, such as a malformed uuid bound to WHERE id = $1.
const pgInvalidText = "22P02"

// LookupError maps both ways a lookup by id can miss onto ErrNotFound: no
// matching row, or an id Postgres refuses to parse. Other errors pass
// through unchanged.
func LookupError(err error) error {
	var pgErr *pgconn.PgError
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case errors.As(err, &pgErr) && pgErr.Code == pgInvalidText:
		return ErrNotFound
	}
	return err
}

// DBTX is satisfied by *sqlx.DB and *sqlx.Tx.
type DBTX interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

// jitteredDuration spreads pool connection recycling by up to a seventh of
// base so connections opened together do not expire together.
func jitteredDuration(base time.Duration) time.Duration {
	if base < 7 {
		return base
	}
	//nolint:gosec // G404: pool jitter
	return base + time.Duration(rand.Int64N(int64(base/7)))
}
