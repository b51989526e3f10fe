package service

import (
	"time"

	"github.com/flexprice/invoicer/internal/config"
	"github.com/flexprice/invoicer/internal/domain/account"
	"github.com/flexprice/invoicer/internal/domain/billing"
	"github.com/flexprice/invoicer/internal/domain/invoice"
	"github.com/flexprice/invoicer/internal/domain/usage"
	"github.com/flexprice/invoicer/internal/logger"
	"github.com/flexprice/invoicer/internal/metrics"
	"github.com/flexprice/invoicer/internal/notification"
	"github.com/flexprice/invoicer/internal/postgres"
	"github.com/flexprice/invoicer/internal/sentry"
)

// ServiceParams holds common dependencies for services
type ServiceParams struct {
	Logger  *logger.Logger
	Config  *config.Configuration
	DB      postgres.IClient
	Sentry  *sentry.Service
	Metrics *metrics.Metrics

	// Repositories
	InvoiceRepo      invoice.Repository
	BillingEventRepo billing.Repository
	AccountRepo      account.Repository
	UsageRepo        usage.Repository

	// Publishers
	Notifications *notification.Publisher

	// Now is the clock invoice dates come from
	Now func() time.Time
}

// Common service params
func NewServiceParams(
	logger *logger.Logger,
	config *config.Configuration,
	db postgres.IClient,
	sentry *sentry.Service,
	metrics *metrics.Metrics,
	invoiceRepo invoice.Repository,
	billingEventRepo billing.Repository,
	accountRepo account.Repository,
	usageRepo usage.Repository,
	notifications *notification.Publisher,
) ServiceParams {
	return ServiceParams{
		Logger:           logger,
		Config:           config,
		DB:               db,
		Sentry:           sentry,
		Metrics:          metrics,
		InvoiceRepo:      invoiceRepo,
		BillingEventRepo: billingEventRepo,
		AccountRepo:      accountRepo,
		UsageRepo:        usageRepo,
		Notifications:    notifications,
		Now:              func() time.Time { return time.Now().UTC() },
	}
}

func (p ServiceParams) today() time.Time {
	if p.Now == nil {
		return time.Now().UTC()
	}
	return p.Now().UTC()
}
