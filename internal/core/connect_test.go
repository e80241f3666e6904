// AngelaMos | 2026
// connect_test.go

package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/rti-cashflowops/internal/config"
)

func TestNewRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	r, err := NewRedis(context.Background(), config.RedisConfig{
		URL:      "redis://" + mr.Addr(),
		PoolSize: 3,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	assert.Equal(t, 3, r.Client.Options().PoolSize)
	assert.NoError(t, r.Ping(context.Background()))
	assert.NotNil(t, r.PoolStats())

	mr.Close()
	assert.Error(t, r.Ping(context.Background()))
}

func TestNewRedis_BadURL(t *testing.T) {
	_, err := NewRedis(context.Background(), config.RedisConfig{URL: "://nope"})
	assert.ErrorContains(t, err, "parse redis url")
}

func TestDatabase_WaitReadyRetries(t *testing.T) {
	raw, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	d := NewDatabaseFromDB(sqlx.NewDb(raw, "pgx"))
	t.Cleanup(func() { _ = d.Close() })

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	mock.ExpectPing()

	require.NoError(t, d.waitReady(context.Background(), 3, time.Millisecond))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabase_WaitReadyGivesUp(t *testing.T) {
	raw, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	d := NewDatabaseFromDB(sqlx.NewDb(raw, "pgx"))
	t.Cleanup(func() { _ = d.Close() })

	mock.ExpectPing().WillReturnError(errors.New("refused"))
	mock.ExpectPing().WillReturnError(errors.New("refused"))

	err = d.waitReady(context.Background(), 2, time.Millisecond)
	assert.ErrorContains(t, err, "after 2 attempts")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJitteredDuration(t *testing.T) {
	assert.Equal(t, time.Duration(3), jitteredDuration(3))

	base := time.Hour
	for range 20 {
		got := jitteredDuration(base)
		assert.GreaterOrEqual(t, got, base)
		assert.Less(t, got, base+base/7)
	}
}

func TestLookupError(t *testing.T) {
	assert.ErrorIs(t, LookupError(sql.ErrNoRows), ErrNotFound)
	assert.ErrorIs(t, LookupError(fmt.Errorf("scan: %w", sql.ErrNoRows)), ErrNotFound)
	assert.ErrorIs(t, LookupError(&pgconn.PgError{Code: "22P02"}), ErrNotFound)

	conflict := &pgconn.PgError{Code: "23505"}
	assert.Same(t, conflict, LookupError(conflict))

	down := errors.New("connection reset")
	assert.Equal(t, down, LookupError(down))
}
