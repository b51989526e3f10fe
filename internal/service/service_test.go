package service

import (
	"encoding/json"
	"time"

	"github.com/flexprice/invoicer/internal/config"
	"github.com/flexprice/invoicer/internal/domain/account"
	"github.com/flexprice/invoicer/internal/domain/billing"
	"github.com/flexprice/invoicer/internal/domain/invoice"
	"github.com/flexprice/invoicer/internal/notification"
	"github.com/flexprice/invoicer/internal/testutil"
	"github.com/flexprice/invoicer/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// serviceSuite wires the services on the in-memory stores with a fixed clock
type serviceSuite struct {
	testutil.BaseServiceTestSuite
	now    time.Time
	config *config.Configuration
	params ServiceParams
}

func (s *serviceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()

	cfg := *s.GetConfig()
	s.config = &cfg
	s.now = types.Date(2024, 1, 1)

	stores := s.GetStores()
	s.params = ServiceParams{
		Logger:           s.GetLogger(),
		Config:           s.config,
		DB:               s.GetDB(),
		Sentry:           s.GetSentry(),
		Metrics:          s.GetMetrics(),
		InvoiceRepo:      stores.InvoiceRepo,
		BillingEventRepo: stores.BillingEventRepo,
		AccountRepo:      stores.AccountRepo,
		UsageRepo:        stores.UsageRepo,
		Notifications:    notification.NewPublisher(s.GetPubSub(), s.config, s.GetLogger()),
		Now:              func() time.Time { return s.now },
	}
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func (s *serviceSuite) assertAmount(expected string, actual decimal.Decimal) {
	s.True(dec(expected).Equal(actual), "expected %s, got %s", expected, actual)
}

func (s *serviceSuite) createAccount(id string, mutate ...func(a *account.Account)) *account.Account {
	acc := &account.Account{ID: id, Currency: "USD"}
	for _, fn := range mutate {
		fn(acc)
	}
	s.Require().NoError(s.GetStores().AccountRepo.Create(s.GetContext(), acc))
	return acc
}

func monthlyEvent(accountID, sub string, seq int64, day time.Time, transition types.TransitionType, price string) *billing.Event {
	e := &billing.Event{
		SubscriptionID:    sub,
		BundleID:          "bundle_" + sub,
		AccountID:         accountID,
		EffectiveDate:     day,
		PlanName:          "pro",
		PhaseName:         "evergreen",
		Currency:          "USD",
		BillingPeriod:     types.BILLING_PERIOD_MONTHLY,
		BillCycleDayLocal: 1,
		BillingMode:       types.BillingModeInAdvance,
		TransitionType:    transition,
		SequenceNumber:    seq,
	}
	if price != "" {
		e.RecurringPrice = lo.ToPtr(dec(price))
	}
	return e
}

func (s *serviceSuite) appendEvents(events ...*billing.Event) {
	s.Require().NoError(s.GetStores().BillingEventRepo.Append(s.GetContext(), events))
}

func (s *serviceSuite) invoices(accountID string) []*invoice.Invoice {
	out, err := s.GetStores().InvoiceRepo.ListByAccount(s.GetContext(), accountID, nil)
	s.Require().NoError(err)
	return out
}

func (s *serviceSuite) nextBillings() []*notification.NextBilling {
	var out []*notification.NextBilling
	for _, msg := range s.GetPubSub().GetMessages(s.config.Notification.Topic) {
		var n notification.NextBilling
		s.Require().NoError(json.Unmarshal(msg.Payload, &n))
		out = append(out, &n)
	}
	return out
}

// counterValue sums the counters of the family whose labels match
func (s *serviceSuite) counterValue(name string, labels map[string]string) float64 {
	families, err := s.GetRegistry().Gather()
	s.Require().NoError(err)

	total := 0.0
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, m := range family.GetMetric() {
			values := make(map[string]string)
			for _, pair := range m.GetLabel() {
				values[pair.GetName()] = pair.GetValue()
			}
			matched := true
			for k, v := range labels {
				if values[k] != v {
					matched = false
					break
				}
			}
			if matched {
				total += m.GetCounter().GetValue()
			}
		}
	}
	return total
}

func (s *serviceSuite) runRequests() []*notification.InvoiceRunRequest {
	var out []*notification.InvoiceRunRequest
	for _, msg := range s.GetPubSub().GetMessages(s.config.BillRun.Topic) {
		var req notification.InvoiceRunRequest
		s.Require().NoError(json.Unmarshal(msg.Payload, &req))
		out = append(out, &req)
	}
	return out
}
