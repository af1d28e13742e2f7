package identity

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Integration tests are opt-in and require PARLEY_TEST_MONGO_URL.

func TestMongoStore_Contract(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		db := mustOpenTestMongo(t)

		s, err := NewMongoStore(db, "")
		if err != nil {
			t.Fatalf("NewMongoStore: %v", err)
		}
		if err := s.EnsureIndexes(testCtx(t)); err != nil {
			t.Fatalf("EnsureIndexes: %v", err)
		}
		return s
	})
}

func TestMongoConflictField(t *testing.T) {
	cases := map[string]string{
		`E11000 duplicate key error collection: p.accounts index: uq_accounts_email_norm dup key`:    "email",
		`E11000 duplicate key error collection: p.accounts index: uq_accounts_username_norm dup key`: "username",
		`E11000 duplicate key error collection: p.accounts index: _id_ dup key`:                      "unique",
	}
	for msg, want := range cases {
		if got := mongoConflictField(stringError(msg)); got != want {
			t.Fatalf("%q: got %q want %q", msg, got, want)
		}
	}
}

type stringError string

func (e stringError) Error() string { return string(e) }

func mustOpenTestMongo(t *testing.T) *mongo.Database {
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
		if shouldSkipIntegration(err) {
			t.Skipf("integration test skipped: MongoDB unreachable (PARLEY_TEST_MONGO_URL set): %v", err)
		}
		t.Fatalf("ping mongo: %v", err)
	}

	db := client.Database("parley_it_" + uniqueSuffix(t))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = db.Drop(ctx)
		_ = client.Disconnect(ctx)
	})
	return db
}
