// Package testutil sets up the external services integration tests need.
// Each helper skips the calling test when its service is not configured.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/johndosdos/paychat/internal/database"
)

func ProjectRoot() string {
	_, file, _, _ := runtime.Caller(0)
	root := filepath.Join(filepath.Dir(file), "../../")
	return root
}

// LoadEnv reads the project's .env file if there is one.
func LoadEnv() {
	_ = godotenv.Load(filepath.Join(ProjectRoot(), ".env"))
}

// DbInit connects to TEST_DB_URL, resets the schema and migrates it up. The
// schema is reset again when the test finishes.
func DbInit(t testing.TB) *pgxpool.Pool {
	t.Helper()
	LoadEnv()

	testURL := os.Getenv("TEST_DB_URL")
	if testURL == "" {
		t.Skip("TEST_DB_URL environment variable is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := database.Connect(ctx, testURL)
	if err != nil {
		t.Fatalf("could not connect to the postgresql database: %v", err)
	}

	if err := database.Reset(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("database.Reset() error = %+v", err)
	}
	if err := database.Migrate(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("database.Migrate() error = %+v", err)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := database.Reset(ctx, pool); err != nil {
			t.Errorf("database.Reset() error = %+v", err)
		}
		pool.Close()
	})

	return pool
}

// RedisInit connects to TEST_REDIS_URL and flushes the selected database on
// cleanup.
func RedisInit(t testing.TB) *redis.Client {
	t.Helper()
	LoadEnv()

	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL environment variable is not set")
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("invalid TEST_REDIS_URL: %v", err)
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("failed to connect to redis: %v", err)
	}

	t.Cleanup(func() {
		_ = client.FlushDB(context.Background()).Err()
		_ = client.Close()
	})

	return client
}
