// Package config assembles the reconciliation engine's collaborators from
// CLI flag values.
package config

import (
	"time"

	"github.com/WilsonNous/NousCard/internal/lock"
	"github.com/WilsonNous/NousCard/internal/matcher"
	"github.com/WilsonNous/NousCard/internal/repository"
	"github.com/WilsonNous/NousCard/pkg/errors"
	"github.com/WilsonNous/NousCard/pkg/logger"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// CreateMatcherConfig creates a matcher configuration with the specified tolerances
func CreateMatcherConfig(epsilon float64, toleranceDays int) *matcher.Config {
	config := matcher.DefaultConfig()
	config.Epsilon = decimal.NewFromFloat(epsilon)
	config.ToleranceDays = toleranceDays
	return config
}

// CreateLogger creates the CLI logger, verbose switching to debug level
func CreateLogger(verbose bool) (logger.Logger, error) {
	config := logger.DefaultConfig()
	if verbose {
		config = logger.DebugConfig()
	}

	log, err := logger.NewLogger(config)
	if err != nil {
		return nil, errors.ConfigurationError("logger", config, err)
	}
	return log, nil
}

// BuildRepository opens the MySQL-backed repository for the given DSN
func BuildRepository(dsn string) (repository.Repository, error) {
	repo, err := repository.NewGormRepository(dsn)
	if err != nil {
		return nil, errors.PersistenceFailure("open database", err).
			WithSuggestion("Check the DSN and that the database is reachable")
	}
	return repo, nil
}

// BuildLocker selects the tenant locker: Redis-backed when an address is
// given, in-process otherwise.
func BuildLocker(redisAddr string, ttl time.Duration) (lock.TenantLocker, error) {
	if redisAddr == "" {
		return lock.NewLocalLocker(), nil
	}

	client := redis.NewClient(&redis.Options{Addr: redisAddr})
	return lock.NewRedisLocker(client, ttl), nil
}

// LockTTL resolves the tenant lock TTL: an explicit value wins, otherwise
// the run budget plus margin so a crashed run releases the tenant on its
// own.
func LockTTL(explicit, budget time.Duration) time.Duration {
	if explicit > 0 {
		return explicit
	}
	return budget + 5*time.Second
}
