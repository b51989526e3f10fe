package service

import (
	"strings"
	"testing"

	ierr "github.com/flexprice/invoicer/internal/errors"
	"github.com/stretchr/testify/suite"
)

type AccountServiceSuite struct {
	serviceSuite
	service AccountService
}

func TestAccountService(t *testing.T) {
	suite.Run(t, new(AccountServiceSuite))
}

func (s *AccountServiceSuite) SetupTest() {
	s.serviceSuite.SetupTest()
	s.service = NewAccountService(s.params)
}

func (s *AccountServiceSuite) TestCreateAccount() {
	tests := []struct {
		name    string
		req     *CreateAccountRequest
		wantErr bool
	}{
		{name: "lowercase currency", req: &CreateAccountRequest{ExternalID: "cus_1", Currency: "usd"}},
		{name: "draft invoices", req: &CreateAccountRequest{Currency: "EUR", AutoInvoiceDraft: true}},
		{name: "missing currency", req: &CreateAccountRequest{ExternalID: "cus_2"}, wantErr: true},
		{name: "bad currency", req: &CreateAccountRequest{Currency: "dollars"}, wantErr: true},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			acc, err := s.service.CreateAccount(s.GetContext(), tt.req)
			if tt.wantErr {
				s.Require().Error(err)
				s.True(ierr.IsValidation(err))
				return
			}
			s.Require().NoError(err)
			s.True(strings.HasPrefix(acc.ID, "acc_"))
			s.Equal(strings.ToUpper(tt.req.Currency), acc.Currency)
			s.Equal(tt.req.AutoInvoiceDraft, acc.AutoInvoiceDraft)

			got, err := s.service.GetAccount(s.GetContext(), acc.ID)
			s.Require().NoError(err)
			s.Equal(acc.ID, got.ID)
		})
	}
}

func (s *AccountServiceSuite) TestSubscriptionAutoInvoiceOff() {
	acc, err := s.service.CreateAccount(s.GetContext(), &CreateAccountRequest{Currency: "USD"})
	s.Require().NoError(err)

	s.Require().NoError(s.service.SetSubscriptionAutoInvoiceOff(s.GetContext(), acc.ID, "sub_1", true))
	got, err := s.service.GetAccount(s.GetContext(), acc.ID)
	s.Require().NoError(err)
	s.True(got.Flags().SubscriptionsAutoInvoiceOff["sub_1"])

	s.Require().NoError(s.service.SetSubscriptionAutoInvoiceOff(s.GetContext(), acc.ID, "sub_1", false))
	got, err = s.service.GetAccount(s.GetContext(), acc.ID)
	s.Require().NoError(err)
	s.False(got.Flags().SubscriptionsAutoInvoiceOff["sub_1"])

	_, err = s.service.GetAccount(s.GetContext(), "acc_missing")
	s.Require().Error(err)
	s.True(ierr.IsNotFound(err))
}
