// Package testutil starts throwaway PostgreSQL instances for integration
// and end-to-end tests.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/userhub/apiserver/config"
	"github.com/userhub/apiserver/internal/db"
)

const (
	postgresImage = "postgres:16-alpine"
	testDBName    = "userhub_test"
	testDBUser    = "test"
	testDBPass    = "test"
)

// Postgres is a running, migrated database container.
type Postgres struct {
	Config    config.DatabaseConfig
	container *postgres.PostgresContainer
}

// StartPostgres runs a container and applies every migration. Callers own
// the returned instance and must Terminate it.
func StartPostgres(ctx context.Context) (*Postgres, error) {
	container, err := postgres.Run(ctx, postgresImage,
		postgres.WithDatabase(testDBName),
		postgres.WithUsername(testDBUser),
		postgres.WithPassword(testDBPass),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("start postgres container: %w", err)
	}
	pg := &Postgres{container: container}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = pg.Terminate(ctx)
		return nil, fmt.Errorf("get connection string: %w", err)
	}
	cfg, err := databaseConfig(connStr)
	if err != nil {
		_ = pg.Terminate(ctx)
		return nil, err
	}
	pg.Config = cfg

	if err := db.MigrateUp(db.DSN(cfg)); err != nil {
		_ = pg.Terminate(ctx)
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return pg, nil
}

// Terminate stops and removes the container.
func (p *Postgres) Terminate(ctx context.Context) error {
	return p.container.Terminate(ctx)
}

// Open returns a pool on the container database.
func (p *Postgres) Open(ctx context.Context) (*sql.DB, error) {
	return db.Open(ctx, p.Config)
}

// SetupTestDB starts a migrated database for the duration of t.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	pg, err := StartPostgres(ctx)
	if err != nil {
		t.Fatalf("setup test db: %v", err)
	}
	t.Cleanup(func() {
		if err := pg.Terminate(ctx); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	conn, err := pg.Open(ctx)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return conn
}

// TruncateUsers empties the users table between tests sharing a container.
func TruncateUsers(t *testing.T, conn *sql.DB) {
	t.Helper()
	if _, err := conn.Exec("TRUNCATE TABLE users"); err != nil {
		t.Fatalf("truncate users: %v", err)
	}
}

func databaseConfig(connStr string) (config.DatabaseConfig, error) {
	u, err := url.Parse(connStr)
	if err != nil {
		return config.DatabaseConfig{}, fmt.Errorf("parse connection string: %w", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		return config.DatabaseConfig{}, fmt.Errorf("parse port %q: %w", u.Port(), err)
	}
	password, _ := u.User.Password()
	return config.DatabaseConfig{
		Host:         u.Hostname(),
		Port:         port,
		User:         u.User.Username(),
		Password:     password,
		DBName:       testDBName,
		MaxOpenConns: 10,
		MaxIdleConns: 2,
	}, nil
}
