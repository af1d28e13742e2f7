package app

import (
	"errors"
	"fmt"

	"parley/cmd/identity"
	"parley/cmd/security/token"
)

// ValidateSecurityConfig enforces the startup policy: a signing secret of at
// least token.MinSecretBytes and a store driver with its connection settings.
func ValidateSecurityConfig(cfg Config) error {
	if _, err := token.ParseSecret(cfg.JWTSecret, token.MinSecretBytes); err != nil {
		switch {
		case errors.Is(err, token.ErrSecretMissing):
			return fmt.Errorf("security policy: %s is missing", token.SecretEnvKey)
		default:
			return fmt.Errorf("security policy: %s is too short (min %d bytes)", token.SecretEnvKey, token.MinSecretBytes)
		}
	}

	switch cfg.StoreDriver {
	case StoreMemory:
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return errors.New("config: PARLEY_STORE_DRIVER=postgres requires PARLEY_DATABASE_URL")
		}
		if !identity.PgIdentIsValid(cfg.DBSchema) {
			return fmt.Errorf("config: invalid PARLEY_DB_SCHEMA %q", cfg.DBSchema)
		}
	case StoreMongo:
		if cfg.MongoURL == "" {
			return errors.New("config: PARLEY_STORE_DRIVER=mongo requires PARLEY_MONGO_URL")
		}
	default:
		return fmt.Errorf("config: unknown PARLEY_STORE_DRIVER %q", cfg.StoreDriver)
	}
	return nil
}
