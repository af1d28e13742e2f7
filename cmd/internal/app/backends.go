package app

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"parley/cmd/identity"
	"parley/cmd/internal/auth/revocation"
	"parley/cmd/internal/chat"
)

const revocationSweepEvery = time.Minute

// readinessCheck is one dependency probed by /readyz.
type readinessCheck struct {
	name string
	ping func(ctx context.Context) error
}

// backends owns every store connection the app opened.
type backends struct {
	accounts identity.Store
	messages chat.Store
	revoked  revocation.Store

	pool       *pgxpool.Pool
	mongo      *mongo.Client
	redis      *redis.Client
	memRevoked *revocation.MemoryStore

	checks []readinessCheck
}

// openBackends selects the account/message store by cfg.StoreDriver and the
// revocation store by cfg.RedisURL. On error everything opened so far is closed.
func openBackends(ctx context.Context, cfg Config, log Logger) (_ *backends, err error) {
	b := &backends{}
	defer func() {
		if err != nil {
			_ = b.Close(context.Background())
		}
	}()

	switch cfg.StoreDriver {
	case StorePostgres:
		if err := b.openPostgres(ctx, cfg, log); err != nil {
			return nil, err
		}
	case StoreMongo:
		if err := b.openMongo(ctx, cfg, log); err != nil {
			return nil, err
		}
	case StoreMemory, "":
		log.Info("store.memory", "note", "accounts and messages are lost on restart")
		b.accounts = identity.NewMemoryStore()
		b.messages = chat.NewMemoryStore()
	default:
		return nil, errors.New("unknown store driver: " + cfg.StoreDriver)
	}

	if cfg.RedisURL != "" {
		client, err := NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		b.redis = client
		rs, err := revocation.NewRedisStore(client)
		if err != nil {
			return nil, err
		}
		b.revoked = rs
		b.checks = append(b.checks, readinessCheck{name: "redis", ping: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}})
		log.Info("revocation.redis")
	} else {
		b.memRevoked = revocation.NewMemoryStore(revocationSweepEvery)
		b.revoked = b.memRevoked
		log.Info("revocation.memory")
	}

	return b, nil
}

func (b *backends) openPostgres(ctx context.Context, cfg Config, log Logger) error {
	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return err
	}
	b.pool = pool

	n, err := MigrateDB(ctx, pool, cfg.DBSchema)
	if err != nil {
		return err
	}
	log.Info("db.migrated", "schema", cfg.DBSchema, "applied", n)

	accounts, err := identity.NewPostgresStore(pool, identity.WithSchema(cfg.DBSchema))
	if err != nil {
		return err
	}
	messages, err := chat.NewPostgresStore(pool, chat.WithSchema(cfg.DBSchema))
	if err != nil {
		return err
	}
	b.accounts, b.messages = accounts, messages
	b.checks = append(b.checks, readinessCheck{name: "postgres", ping: func(ctx context.Context) error {
		return PingDB(ctx, pool, 2*time.Second)
	}})
	log.Info("store.postgres", "schema", cfg.DBSchema)
	return nil
}

func (b *backends) openMongo(ctx context.Context, cfg Config, log Logger) error {
	client, err := NewMongoClient(ctx, cfg.MongoURL)
	if err != nil {
		return err
	}
	b.mongo = client
	db := client.Database(cfg.MongoDatabase)

	accounts, err := identity.NewMongoStore(db, identity.DefaultAccountsCollection)
	if err != nil {
		return err
	}
	if err := accounts.EnsureIndexes(ctx); err != nil {
		return err
	}
	messages, err := chat.NewMongoStore(db, chat.DefaultMessagesCollection)
	if err != nil {
		return err
	}
	if err := messages.EnsureIndexes(ctx); err != nil {
		return err
	}
	b.accounts, b.messages = accounts, messages
	b.checks = append(b.checks, readinessCheck{name: "mongo", ping: func(ctx context.Context) error {
		return client.Ping(ctx, nil)
	}})
	log.Info("store.mongo", "database", cfg.MongoDatabase)
	return nil
}

// Close releases every opened connection and joins their errors.
func (b *backends) Close(ctx context.Context) error {
	var errs []error
	if b.memRevoked != nil {
		b.memRevoked.Close()
	}
	if b.redis != nil {
		errs = append(errs, b.redis.Close())
	}
	if b.mongo != nil {
		errs = append(errs, b.mongo.Disconnect(ctx))
	}
	if b.pool != nil {
		b.pool.Close()
	}
	return errors.Join(errs...)
}
