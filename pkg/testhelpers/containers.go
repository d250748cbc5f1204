package testhelpers

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/nivaasika/nivaasika-engine/pkg/database"
)

// PostgresImage is the stock image integration tests run against.
const PostgresImage = "postgres:16-alpine"

// EngineDB holds a migrated database shared by every integration test in a run.
type EngineDB struct {
	Container testcontainers.Container
	DB        *database.DB
	ConnStr   string
}

var (
	sharedEngineDB     *EngineDB
	sharedEngineDBOnce sync.Once
	sharedEngineDBErr  error
)

// GetEngineDB returns the shared PostgreSQL container with migrations
// applied. The container is created once and reused across tests.
func GetEngineDB(t *testing.T) *EngineDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedEngineDBOnce.Do(func() {
		sharedEngineDB, sharedEngineDBErr = setupEngineDB()
	})
	if sharedEngineDBErr != nil {
		t.Fatalf("Failed to setup engine database: %v", sharedEngineDBErr)
	}
	return sharedEngineDB
}

func setupEngineDB() (*EngineDB, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        PostgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "nivaasika_test",
			"POSTGRES_USER":     "nivaasika",
			"POSTGRES_PASSWORD": "test_password",
		},
		// The entrypoint restarts the server once after init.
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	connStr := fmt.Sprintf("postgres://nivaasika:test_password@%s:%s/nivaasika_test?sslmode=disable",
		host, port.Port())

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            connStr,
		MaxConnections: 5,
	}, zap.NewNop())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to engine database: %w", err)
	}

	sqlDB, err := database.OpenSQL(connStr)
	if err != nil {
		return nil, err
	}
	defer sqlDB.Close()

	if err := database.RunMigrations(sqlDB, zap.NewNop()); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &EngineDB{Container: container, DB: db, ConnStr: connStr}, nil
}

// ScopedContext returns a context carrying a pooled connection and its cleanup.
func (e *EngineDB) ScopedContext(t *testing.T) (context.Context, func()) {
	t.Helper()
	ctx, cleanup, err := e.DB.WithScope(context.Background())
	if err != nil {
		t.Fatalf("failed to acquire scope: %v", err)
	}
	return ctx, cleanup
}

// Truncate empties the inspection tables. Improvement rules are left as seeded.
func (e *EngineDB) Truncate(t *testing.T) {
	t.Helper()
	_, err := e.DB.Pool.Exec(context.Background(),
		`TRUNCATE inspection_summaries, property_improvements, inspection_findings, properties`)
	if err != nil {
		t.Fatalf("failed to truncate tables: %v", err)
	}
}
