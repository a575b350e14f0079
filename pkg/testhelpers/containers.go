// Package testhelpers provides shared containers for lemur-engine integration tests.
package testhelpers

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/lemur-data/lemur-engine/pkg/database"
)

const (
	// PostgresImage is the stock PostgreSQL image used for store tests.
	PostgresImage = "postgres:16-alpine"
	// RedisImage is the Redis image used for cache tests.
	RedisImage = "redis:7-alpine"
)

// TestDB holds a shared test database container and connection pool.
type TestDB struct {
	Container testcontainers.Container
	Pool      *pgxpool.Pool
	ConnStr   string
}

var (
	sharedTestDB     *TestDB
	sharedTestDBOnce sync.Once
	sharedTestDBErr  error
)

// GetTestDB returns a shared PostgreSQL container for integration tests.
// The container is created once and reused across all tests in the run.
func GetTestDB(t *testing.T) *TestDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedTestDBOnce.Do(func() {
		sharedTestDB, sharedTestDBErr = setupTestDB()
	})

	if sharedTestDBErr != nil {
		t.Fatalf("Failed to setup test database: %v", sharedTestDBErr)
	}

	return sharedTestDB
}

func setupTestDB() (*TestDB, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        PostgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "lemur_test",
			"POSTGRES_USER":     "lemur",
			"POSTGRES_PASSWORD": "test_password",
		},
		// Postgres logs readiness twice: once for the init server, once for the real one.
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

	endpoint, err := container.PortEndpoint(ctx, "5432/tcp", "")
	if err != nil {
		return nil, fmt.Errorf("failed to get container endpoint: %w", err)
	}

	connStr := fmt.Sprintf("postgres://lemur:test_password@%s/lemur_test?sslmode=disable", endpoint)

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection with retry
	for i := 0; i < 10; i++ {
		if err := pool.Ping(ctx); err == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}

	return &TestDB{
		Container: container,
		Pool:      pool,
		ConnStr:   connStr,
	}, nil
}

// EngineDB holds the engine database connection with migrations applied.
// Use this for testing repositories and services against a real database.
type EngineDB struct {
	DB      *database.DB
	ConnStr string
}

var (
	sharedEngineDB     *EngineDB
	sharedEngineDBOnce sync.Once
	sharedEngineDBErr  error
)

// GetEngineDB returns a shared engine database for integration tests.
// The database has migrations applied and is reused across all tests.
func GetEngineDB(t *testing.T) *EngineDB {
	t.Helper()

	testDB := GetTestDB(t)

	sharedEngineDBOnce.Do(func() {
		sharedEngineDB, sharedEngineDBErr = setupEngineDB(testDB)
	})

	if sharedEngineDBErr != nil {
		t.Fatalf("Failed to setup engine database: %v", sharedEngineDBErr)
	}

	return sharedEngineDB
}

func setupEngineDB(testDB *TestDB) (*EngineDB, error) {
	ctx := context.Background()

	if err := database.Migrate(testDB.ConnStr, zap.NewNop()); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            testDB.ConnStr,
		MaxConnections: 5,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to engine database: %w", err)
	}

	return &EngineDB{
		DB:      db,
		ConnStr: testDB.ConnStr,
	}, nil
}

var (
	sharedRedis     *redis.Client
	sharedRedisOnce sync.Once
	sharedRedisErr  error
)

// GetTestRedis returns a client for a shared Redis container.
// The database is flushed before it is handed out.
func GetTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedRedisOnce.Do(func() {
		sharedRedis, sharedRedisErr = setupRedis()
	})

	if sharedRedisErr != nil {
		t.Fatalf("Failed to setup test redis: %v", sharedRedisErr)
	}

	if err := sharedRedis.FlushDB(context.Background()).Err(); err != nil {
		t.Fatalf("Failed to flush test redis: %v", err)
	}
	return sharedRedis
}

func setupRedis() (*redis.Client, error) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        RedisImage,
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start redis container: %w", err)
	}

	endpoint, err := container.PortEndpoint(ctx, "6379/tcp", "")
	if err != nil {
		return nil, fmt.Errorf("failed to get redis endpoint: %w", err)
	}

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}
