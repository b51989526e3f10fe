package repository

import (
	"github.com/flexprice/invoicer/internal/cache"
	"github.com/flexprice/invoicer/internal/clickhouse"
	"github.com/flexprice/invoicer/internal/domain/account"
	"github.com/flexprice/invoicer/internal/domain/billing"
	"github.com/flexprice/invoicer/internal/domain/invoice"
	"github.com/flexprice/invoicer/internal/domain/usage"
	"github.com/flexprice/invoicer/internal/logger"
	"github.com/flexprice/invoicer/internal/postgres"
	clickhouseRepo "github.com/flexprice/invoicer/internal/repository/clickhouse"
	postgresRepo "github.com/flexprice/invoicer/internal/repository/postgres"
)

type RepositoryType string

const (
	PostgresRepo   RepositoryType = "postgres"
	ClickHouseRepo RepositoryType = "clickhouse"
)

func NewUsageRepository(store *clickhouse.ClickHouseStore, logger *logger.Logger) usage.Repository {
	return clickhouseRepo.NewUsageRepository(store, logger)
}

func NewInvoiceRepository(db *postgres.DB, logger *logger.Logger) invoice.Repository {
	return postgresRepo.NewInvoiceRepository(db, logger)
}

func NewBillingEventRepository(db *postgres.DB, logger *logger.Logger) billing.Repository {
	return postgresRepo.NewBillingEventRepository(db, logger)
}

// NewAccountRepository returns the postgres repository behind the account cache
func NewAccountRepository(db *postgres.DB, c *cache.InMemoryCache, logger *logger.Logger) account.Repository {
	return NewCachedAccountRepository(postgresRepo.NewAccountRepository(db, logger), c)
}
