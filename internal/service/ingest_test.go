package service

import (
	"encoding/json"
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/flexprice/invoicer/internal/domain/billing"
	"github.com/flexprice/invoicer/internal/domain/usage"
	ierr "github.com/flexprice/invoicer/internal/errors"
	"github.com/flexprice/invoicer/internal/types"
	"github.com/stretchr/testify/suite"
)

type IngestServiceSuite struct {
	serviceSuite
	service *ingestService
}

func TestIngestService(t *testing.T) {
	suite.Run(t, new(IngestServiceSuite))
}

func (s *IngestServiceSuite) SetupTest() {
	s.serviceSuite.SetupTest()
	s.service = NewIngestService(s.params).(*ingestService)
	s.now = types.Date(2024, 1, 5)
}

func (s *IngestServiceSuite) TestAppendBillingEventsRequestsRuns() {
	events := []*billing.Event{
		monthlyEvent("acc_2", "sub_2", 1, types.Date(2024, 1, 1), types.TransitionTypeCreate, "10"),
		monthlyEvent("acc_1", "sub_1", 1, types.Date(2024, 1, 1), types.TransitionTypeCreate, "10"),
		monthlyEvent("acc_1", "sub_1", 2, types.Date(2024, 1, 3), types.TransitionTypeChange, "20"),
	}
	s.Require().NoError(s.service.AppendBillingEvents(s.GetContext(), events))

	stored, err := s.GetStores().BillingEventRepo.GetEventsForAccount(s.GetContext(), "acc_1")
	s.Require().NoError(err)
	s.Len(stored, 2)

	requests := s.runRequests()
	s.Require().Len(requests, 2)
	s.Equal("acc_1", requests[0].AccountID)
	s.Equal("acc_2", requests[1].AccountID)
	s.True(types.Date(2024, 1, 5).Equal(requests[0].TargetDate))

	// a redelivered batch is absorbed
	s.Require().NoError(s.service.AppendBillingEvents(s.GetContext(), events))
	stored, err = s.GetStores().BillingEventRepo.GetEventsForAccount(s.GetContext(), "acc_1")
	s.Require().NoError(err)
	s.Len(stored, 2)
}

func (s *IngestServiceSuite) TestAppendBillingEventsValidation() {
	event := monthlyEvent("", "sub_1", 1, types.Date(2024, 1, 1), types.TransitionTypeCreate, "10")

	err := s.service.AppendBillingEvents(s.GetContext(), []*billing.Event{event})
	s.Require().Error(err)
	s.True(ierr.IsValidation(err))
	s.Empty(s.runRequests())

	s.NoError(s.service.AppendBillingEvents(s.GetContext(), nil))
}

func (s *IngestServiceSuite) TestRecordUsage() {
	record := func(id string, amount string) *usage.RawUsage {
		return &usage.RawUsage{
			TrackingID:     id,
			AccountID:      "acc_1",
			SubscriptionID: "sub_1",
			UnitType:       "call",
			RecordDate:     types.Date(2024, 1, 2),
			Amount:         dec(amount),
		}
	}

	tests := []struct {
		name    string
		records []*usage.RawUsage
		wantErr bool
	}{
		{name: "valid", records: []*usage.RawUsage{record("t1", "5"), record("t2", "0")}},
		{name: "negative amount", records: []*usage.RawUsage{record("t3", "-1")}, wantErr: true},
		{name: "missing tracking id", records: []*usage.RawUsage{record("", "1")}, wantErr: true},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			err := s.service.RecordUsage(s.GetContext(), tt.records)
			if tt.wantErr {
				s.Require().Error(err)
				s.True(ierr.IsValidation(err))
				return
			}
			s.Require().NoError(err)
		})
	}

	raw, err := s.GetStores().UsageRepo.GetRawUsage(s.GetContext(), &usage.Window{
		AccountID:       "acc_1",
		SubscriptionIDs: []string{"sub_1"},
		StartDate:       types.Date(2024, 1, 1),
		EndDate:         types.Date(2024, 2, 1),
	})
	s.Require().NoError(err)
	s.Len(raw, 2)
}

func (s *IngestServiceSuite) TestHandlersDecodePayloads() {
	events := []*billing.Event{
		monthlyEvent("acc_1", "sub_1", 1, types.Date(2024, 1, 1), types.TransitionTypeCreate, "10"),
	}
	payload, err := json.Marshal(events)
	s.Require().NoError(err)
	s.Require().NoError(s.service.handleBillingEvents(message.NewMessage("m1", payload)))
	s.Len(s.runRequests(), 1)

	records := []*usage.RawUsage{{
		TrackingID:     "t1",
		AccountID:      "acc_1",
		SubscriptionID: "sub_1",
		UnitType:       "call",
		RecordDate:     types.Date(2024, 1, 2),
		Amount:         dec("3"),
	}}
	payload, err = json.Marshal(records)
	s.Require().NoError(err)
	s.Require().NoError(s.service.handleRawUsage(message.NewMessage("m2", payload)))

	err = s.service.handleRawUsage(message.NewMessage("m3", []byte("{not json")))
	s.Require().Error(err)
	s.True(ierr.IsValidation(err))
}
