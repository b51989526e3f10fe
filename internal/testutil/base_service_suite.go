package testutil

import (
	"context"
	"time"

	"github.com/flexprice/invoicer/internal/cache"
	"github.com/flexprice/invoicer/internal/config"
	"github.com/flexprice/invoicer/internal/domain/account"
	"github.com/flexprice/invoicer/internal/domain/billing"
	"github.com/flexprice/invoicer/internal/domain/invoice"
	"github.com/flexprice/invoicer/internal/domain/usage"
	"github.com/flexprice/invoicer/internal/logger"
	"github.com/flexprice/invoicer/internal/metrics"
	"github.com/flexprice/invoicer/internal/postgres"
	"github.com/flexprice/invoicer/internal/sentry"
	"github.com/flexprice/invoicer/internal/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"
)

// Stores holds all the repository interfaces for testing
type Stores struct {
	InvoiceRepo      invoice.Repository
	BillingEventRepo billing.Repository
	AccountRepo      account.Repository
	UsageRepo        usage.Repository
}

// BaseServiceTestSuite provides common functionality for all service test suites
type BaseServiceTestSuite struct {
	suite.Suite
	ctx      context.Context
	stores   Stores
	pubsub   *InMemoryPubSub
	db       postgres.IClient
	cache    *cache.InMemoryCache
	metrics  *metrics.Metrics
	registry *prometheus.Registry
	sentry   *sentry.Service
	logger   *logger.Logger
	config   *config.Configuration
	now      time.Time
}

// SetupSuite is called once before running the tests in the suite
func (s *BaseServiceTestSuite) SetupSuite() {
	s.config = config.GetDefaultConfig()

	var err error
	s.logger, err = logger.NewLogger(s.config)
	if err != nil {
		s.T().Fatalf("failed to create logger: %v", err)
	}
	s.sentry = sentry.NewSentryService(s.config, s.logger)
}

// SetupTest is called before each test
func (s *BaseServiceTestSuite) SetupTest() {
	s.ctx = SetupContext()
	s.setupStores()
	s.now = time.Now().UTC()
}

// TearDownTest is called after each test
func (s *BaseServiceTestSuite) TearDownTest() {
	s.ClearStores()
}

func (s *BaseServiceTestSuite) setupStores() {
	invoices := NewInMemoryInvoiceStore()
	events := NewInMemoryBillingEventStore()
	accounts := NewInMemoryAccountStore()
	usages := NewInMemoryUsageStore()

	s.stores = Stores{
		InvoiceRepo:      invoices,
		BillingEventRepo: events,
		AccountRepo:      accounts,
		UsageRepo:        usages,
	}
	s.db = NewMockPostgresClient(s.logger, invoices, events, accounts, usages)
	s.pubsub = NewInMemoryPubSub()
	s.cache = cache.NewInMemoryCache(s.config)
	s.registry = prometheus.NewRegistry()
	s.metrics = metrics.New(s.registry)
}

func (s *BaseServiceTestSuite) ClearStores() {
	s.stores.InvoiceRepo.(*InMemoryInvoiceStore).Clear()
	s.stores.BillingEventRepo.(*InMemoryBillingEventStore).Clear()
	s.stores.AccountRepo.(*InMemoryAccountStore).Clear()
	s.stores.UsageRepo.(*InMemoryUsageStore).Clear()
	s.pubsub.ClearMessages()
	s.cache.Flush(s.ctx)
}

// GetContext returns the test context
func (s *BaseServiceTestSuite) GetContext() context.Context {
	return s.ctx
}

// GetConfig returns the test configuration
func (s *BaseServiceTestSuite) GetConfig() *config.Configuration {
	return s.config
}

// GetStores returns all test repositories
func (s *BaseServiceTestSuite) GetStores() Stores {
	return s.stores
}

// GetPubSub returns the recording pubsub
func (s *BaseServiceTestSuite) GetPubSub() *InMemoryPubSub {
	return s.pubsub
}

// GetDB returns the test database client
func (s *BaseServiceTestSuite) GetDB() postgres.IClient {
	return s.db
}

func (s *BaseServiceTestSuite) GetCache() *cache.InMemoryCache {
	return s.cache
}

func (s *BaseServiceTestSuite) GetMetrics() *metrics.Metrics {
	return s.metrics
}

func (s *BaseServiceTestSuite) GetRegistry() *prometheus.Registry {
	return s.registry
}

func (s *BaseServiceTestSuite) GetSentry() *sentry.Service {
	return s.sentry
}

// GetLogger returns the test logger
func (s *BaseServiceTestSuite) GetLogger() *logger.Logger {
	return s.logger
}

// GetNow returns the current test time
func (s *BaseServiceTestSuite) GetNow() time.Time {
	return s.now.UTC()
}

// GetUUID returns a new UUID string
func (s *BaseServiceTestSuite) GetUUID() string {
	return types.GenerateUUID()
}
