// Package dbtest opens opt-in integration databases for package tests.
//
// Postgres tests need PARLEY_TEST_DATABASE_URL and MongoDB tests need
// PARLEY_TEST_MONGO_URL. Outside CI an unreachable server skips the test.
package dbtest

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"parley/cmd/identity/ids"
	"parley/cmd/internal/migrations"
)

// MigratedPostgres creates a throwaway schema, runs the embedded migrations in
// it and returns a pool whose search_path points at it. Both are removed on cleanup.
func MigratedPostgres(t testing.TB) (*pgxpool.Pool, string) {
	t.Helper()

	raw := strings.TrimSpace(os.Getenv("PARLEY_TEST_DATABASE_URL"))
	if raw == "" {
		t.Skip("integration test skipped: PARLEY_TEST_DATABASE_URL is not set")
	}
	schema := "parley_it_" + suffix(t)

	cfg, err := pgxpool.ParseConfig(raw)
	if err != nil {
		t.Fatalf("parse PARLEY_TEST_DATABASE_URL: %v", err)
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schema

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		if ShouldSkip(err) {
			t.Skipf("integration test skipped: Postgres unreachable: %v", err)
		}
		t.Fatalf("ping: %v", err)
	}

	quoted := pgx.Identifier{schema}.Sanitize()
	if _, err := pool.Exec(ctx, `CREATE SCHEMA `+quoted); err != nil {
		pool.Close()
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = pool.Exec(ctx, `DROP SCHEMA IF EXISTS `+quoted+` CASCADE`)
		pool.Close()
	})

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()
	if _, err := migrations.Up(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return pool, schema
}

// MongoDatabase returns a throwaway database dropped on cleanup.
func MongoDatabase(t testing.TB) *mongo.Database {
	t.Helper()

	raw := strings.TrimSpace(os.Getenv("PARLEY_TEST_MONGO_URL"))
	if raw == "" {
		t.Skip("integration test skipped: PARLEY_TEST_MONGO_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(raw).SetServerSelectionTimeout(3*time.Second))
	if err != nil {
		t.Fatalf("connect mongo: %v", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		if ShouldSkip(err) {
			t.Skipf("integration test skipped: MongoDB unreachable: %v", err)
		}
		t.Fatalf("ping mongo: %v", err)
	}

	db := client.Database("parley_it_" + suffix(t))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = db.Drop(ctx)
		_ = client.Disconnect(ctx)
	})
	return db
}

// ShouldSkip reports whether err means the server is unreachable. In CI it
// always returns false so a misconfigured pipeline fails loudly.
func ShouldSkip(err error) bool {
	if err == nil || os.Getenv("CI") != "" {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "dial tcp") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "server selection")
}

func suffix(t testing.TB) string {
	id, err := ids.NewULID(time.Now().UTC())
	if err != nil {
		t.Fatalf("ulid: %v", err)
	}
	return strings.ToLower(id)
}
