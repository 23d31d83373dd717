package test

import (
	"context"
	"database/sql/driver"
	"path/filepath"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/integralist/go-findroot/find"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// DefaultCtxKey is the transaction context key used across store tests.
var DefaultCtxKey any = "testTxKey"

// InitPostgresContainer initializes a local Postgres instance using
// Testcontainers, with the delivery calendar schema applied.
func InitPostgresContainer(ctx context.Context) (*postgres.PostgresContainer, error) {
	root, _ := find.Repo()
	return postgres.Run(ctx,
		"docker.io/postgres:16-alpine",
		postgres.WithInitScripts(
			filepath.Join(root.Path, "sql/postgres/000001_delivery_calendar.up.sql"),
		),
		postgres.WithDatabase("dbname"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(5*time.Second)),
	)
}

func GenerateAnyArgsSlice(n int) []driver.Value {
	var result []driver.Value = make([]driver.Value, n)
	for i := 0; i < n; i++ {
		result[i] = sqlmock.AnyArg()
	}
	return result
}

func MockUnlockedOutboxLock(mock sqlmock.Sqlmock, relayId uuid.UUID) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "locked", "locked_by", "locked_at", "locked_until", "version"}).
		AddRow(1, false, relayId, nil, nil, 1)
	mock.ExpectQuery("SELECT .+ FROM outbox_lock WHERE id=1").WillReturnRows(rows)
	return rows
}

func MockLockedOutboxLock(mock sqlmock.Sqlmock, relayId uuid.UUID) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "locked", "locked_by", "locked_at", "locked_until", "version"}).
		AddRow(1, true, relayId, time.Now(), time.Now().Add(time.Minute), 1)
	mock.ExpectQuery("SELECT .+ FROM outbox_lock WHERE id=1").WillReturnRows(rows)
	return rows
}

func MockPendingOutboxRows(mock sqlmock.Sqlmock) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "event_kind", "payload", "occurred_at", "processed_at"}).
		AddRow(uuid.New(), "CalendarCreated", []byte(`{}`), time.Now(), nil).
		AddRow(uuid.New(), "AddressAdded", []byte(`{}`), time.Now(), nil)
	mock.ExpectQuery("SELECT .+ FROM outbox WHERE processed_at IS NULL.+").WillReturnRows(rows)
	return rows
}
