package service

import (
	"testing"

	"github.com/flexprice/invoicer/internal/domain/invoice"
	ierr "github.com/flexprice/invoicer/internal/errors"
	"github.com/flexprice/invoicer/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type LedgerServiceSuite struct {
	serviceSuite
	service LedgerService
}

func TestLedgerService(t *testing.T) {
	suite.Run(t, new(LedgerServiceSuite))
}

func (s *LedgerServiceSuite) SetupTest() {
	s.serviceSuite.SetupTest()
	s.service = NewLedgerService(s.params)
	s.createAccount("acc_1")
}

func (s *LedgerServiceSuite) charge(amount string) *invoice.Invoice {
	inv, err := s.service.InsertExternalCharges(s.GetContext(), &ExternalChargesRequest{
		AccountID: "acc_1",
		Currency:  "USD",
		Charges:   []ExternalCharge{{Amount: dec(amount), Description: "setup"}},
	})
	s.Require().NoError(err)
	return inv
}

func (s *LedgerServiceSuite) credit(amount string, invoiceID *string) *invoice.Invoice {
	inv, err := s.service.InsertCredit(s.GetContext(), &InsertCreditRequest{
		AccountID:   "acc_1",
		InvoiceID:   invoiceID,
		Amount:      dec(amount),
		Currency:    "USD",
		Description: "goodwill",
	})
	s.Require().NoError(err)
	return inv
}

func (s *LedgerServiceSuite) pay(invoiceID, amount string) *invoice.Invoice {
	inv, err := s.service.RecordPayment(s.GetContext(), &PaymentRequest{
		AccountID: "acc_1",
		InvoiceID: invoiceID,
		Amount:    dec(amount),
	})
	s.Require().NoError(err)
	return inv
}

func (s *LedgerServiceSuite) assertAccount(balance, cba string) {
	b, err := s.service.GetAccountBalance(s.GetContext(), "acc_1")
	s.Require().NoError(err)
	s.assertAmount(balance, b)

	c, err := s.service.GetAccountCBA(s.GetContext(), "acc_1")
	s.Require().NoError(err)
	s.assertAmount(cba, c)
}

func itemsOfType(inv *invoice.Invoice, t types.InvoiceItemType) []*invoice.InvoiceItem {
	return lo.Filter(inv.Items, func(item *invoice.InvoiceItem, _ int) bool {
		return item.Type == t
	})
}

func (s *LedgerServiceSuite) TestCreditOnNewInvoice() {
	inv := s.credit("5", nil)

	s.Equal(types.InvoiceStatusCommitted, inv.Status)
	s.Len(itemsOfType(inv, types.InvoiceItemTypeCreditAdj), 1)
	s.Len(itemsOfType(inv, types.InvoiceItemTypeCBAAdj), 1)
	s.assertAmount("0", inv.Balance())
	s.assertAccount("-5", "5")
	s.Equal(1.0, s.counterValue("invoicer_ledger_operations_total", map[string]string{"operation": "insert_credit", "outcome": "ok"}))
}

func (s *LedgerServiceSuite) TestCreditIsConsumedByLaterCharge() {
	s.credit("5", nil)
	inv := s.charge("8")

	s.assertAmount("3", inv.Balance())
	s.assertAmount("-5", inv.CBAAmount())
	s.assertAccount("3", "0")
}

func (s *LedgerServiceSuite) TestCreditOnExistingInvoice() {
	tests := []struct {
		name           string
		credit         string
		balance        string
		accountBalance string
		cba            string
	}{
		{name: "partial", credit: "4", balance: "6", accountBalance: "6", cba: "0"},
		{name: "exact", credit: "10", balance: "0", accountBalance: "0", cba: "0"},
		{name: "exceeding grants the rest", credit: "15", balance: "0", accountBalance: "-5", cba: "5"},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.ClearStores()
			s.createAccount("acc_1")

			target := s.charge("10")
			inv := s.credit(tt.credit, lo.ToPtr(target.ID))

			s.Equal(target.ID, inv.ID)
			s.assertAmount(tt.balance, inv.Balance())
			s.assertAccount(tt.accountBalance, tt.cba)
		})
	}
}

func (s *LedgerServiceSuite) TestCreditValidation() {
	target := s.charge("10")

	tests := []struct {
		name    string
		req     *InsertCreditRequest
		checkFn func(error) bool
	}{
		{
			name:    "zero amount",
			req:     &InsertCreditRequest{AccountID: "acc_1", Amount: decimal.Zero, Currency: "USD"},
			checkFn: ierr.IsValidation,
		},
		{
			name:    "currency mismatch",
			req:     &InsertCreditRequest{AccountID: "acc_1", Amount: dec("5"), Currency: "EUR"},
			checkFn: ierr.IsValidation,
		},
		{
			name:    "unknown invoice",
			req:     &InsertCreditRequest{AccountID: "acc_1", InvoiceID: lo.ToPtr("inv_missing"), Amount: dec("5"), Currency: "USD"},
			checkFn: ierr.IsNotFound,
		},
		{
			name:    "unknown account",
			req:     &InsertCreditRequest{AccountID: "acc_missing", InvoiceID: lo.ToPtr(target.ID), Amount: dec("5"), Currency: "USD"},
			checkFn: ierr.IsNotFound,
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.service.InsertCredit(s.GetContext(), tt.req)
			s.Require().Error(err)
			s.True(tt.checkFn(err), err.Error())
		})
	}
	s.assertAccount("10", "0")
}

func (s *LedgerServiceSuite) TestDeleteCBAWouldBeNegative() {
	inv := s.credit("5", nil)
	grant := itemsOfType(inv, types.InvoiceItemTypeCBAAdj)[0]

	_, err := s.service.DeleteCBA(s.GetContext(), &DeleteCBARequest{
		AccountID: "acc_1",
		InvoiceID: inv.ID,
		ItemID:    grant.ID,
	})
	s.Require().Error(err)
	s.True(ierr.IsInvoiceWouldBeNegative(err))

	stored, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), inv.ID)
	s.Require().NoError(err)
	s.Len(stored.Items, 2)
	s.assertAccount("-5", "5")
}

func (s *LedgerServiceSuite) TestDeleteCBAUnwindsConsumedCredit() {
	first := s.charge("10")
	first = s.pay(first.ID, "15")
	s.assertAmount("0", first.Balance())
	s.assertAccount("-5", "5")

	second := s.charge("5")
	s.assertAmount("0", second.Balance())
	s.assertAccount("0", "0")

	first, err := s.service.RecordRefund(s.GetContext(), &PaymentRequest{AccountID: "acc_1", InvoiceID: first.ID, Amount: dec("5")})
	s.Require().NoError(err)
	s.assertAmount("5", first.Balance())

	grant := itemsOfType(first, types.InvoiceItemTypeCBAAdj)[0]
	first, err = s.service.DeleteCBA(s.GetContext(), &DeleteCBARequest{
		AccountID: "acc_1",
		InvoiceID: first.ID,
		ItemID:    grant.ID,
	})
	s.Require().NoError(err)
	s.assertAmount("0", first.Balance())

	second, err = s.GetStores().InvoiceRepo.Get(s.GetContext(), second.ID)
	s.Require().NoError(err)
	s.assertAmount("5", second.Balance())
	s.assertAccount("5", "0")

	// the grant is gone for good
	_, err = s.service.DeleteCBA(s.GetContext(), &DeleteCBARequest{
		AccountID: "acc_1",
		InvoiceID: first.ID,
		ItemID:    grant.ID,
	})
	s.Require().Error(err)
	s.True(ierr.IsInvalidOperation(err))
}

func (s *LedgerServiceSuite) TestDeleteCBARejectsOtherItems() {
	inv := s.charge("10")

	_, err := s.service.DeleteCBA(s.GetContext(), &DeleteCBARequest{
		AccountID: "acc_1",
		InvoiceID: inv.ID,
		ItemID:    inv.Items[0].ID,
	})
	s.Require().Error(err)
	s.True(ierr.IsValidation(err))
}

func (s *LedgerServiceSuite) TestAdjustInvoiceItem() {
	inv := s.charge("10")
	item := inv.Items[0]

	inv, err := s.service.AdjustInvoiceItem(s.GetContext(), &AdjustItemRequest{
		AccountID: "acc_1",
		InvoiceID: inv.ID,
		ItemID:    item.ID,
		Amount:    lo.ToPtr(dec("4")),
	})
	s.Require().NoError(err)
	s.assertAmount("6", inv.Balance())

	// no amount adjusts what is left
	inv, err = s.service.AdjustInvoiceItem(s.GetContext(), &AdjustItemRequest{
		AccountID: "acc_1",
		InvoiceID: inv.ID,
		ItemID:    item.ID,
	})
	s.Require().NoError(err)
	s.assertAmount("0", inv.Balance())

	adjustments := itemsOfType(inv, types.InvoiceItemTypeItemAdj)
	s.Require().Len(adjustments, 2)
	s.assertAmount("-6", adjustments[1].Amount)
	s.Equal(item.ID, adjustments[1].GetLinkedItemID())

	_, err = s.service.AdjustInvoiceItem(s.GetContext(), &AdjustItemRequest{
		AccountID: "acc_1",
		InvoiceID: inv.ID,
		ItemID:    item.ID,
	})
	s.Require().Error(err)
	s.True(ierr.IsInvalidOperation(err))
}

func (s *LedgerServiceSuite) TestAdjustIsCappedByRemainingAmount() {
	inv := s.charge("10")

	inv, err := s.service.AdjustInvoiceItem(s.GetContext(), &AdjustItemRequest{
		AccountID: "acc_1",
		InvoiceID: inv.ID,
		ItemID:    inv.Items[0].ID,
		Amount:    lo.ToPtr(dec("100")),
	})
	s.Require().NoError(err)
	s.assertAmount("-10", itemsOfType(inv, types.InvoiceItemTypeItemAdj)[0].Amount)
	s.assertAccount("0", "0")
}

func (s *LedgerServiceSuite) TestAdjustPaidInvoiceGrantsCredit() {
	inv := s.charge("10")
	inv = s.pay(inv.ID, "10")

	inv, err := s.service.AdjustInvoiceItem(s.GetContext(), &AdjustItemRequest{
		AccountID: "acc_1",
		InvoiceID: inv.ID,
		ItemID:    inv.Items[0].ID,
	})
	s.Require().NoError(err)
	s.assertAmount("0", inv.Balance())
	s.assertAccount("-10", "10")
}

func (s *LedgerServiceSuite) TestAdjustUnknownItem() {
	inv := s.charge("10")
	other := s.charge("3")

	tests := []struct {
		name      string
		invoiceID string
		itemID    string
	}{
		{name: "missing item", invoiceID: inv.ID, itemID: "inv_item_missing"},
		{name: "item of another invoice", invoiceID: inv.ID, itemID: other.Items[0].ID},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.service.AdjustInvoiceItem(s.GetContext(), &AdjustItemRequest{
				AccountID: "acc_1",
				InvoiceID: tt.invoiceID,
				ItemID:    tt.itemID,
			})
			s.Require().Error(err)
			s.True(ierr.IsNotFound(err))
		})
	}
}

func (s *LedgerServiceSuite) TestOverpaymentIsSpentOnNextInvoice() {
	first := s.charge("10")
	s.pay(first.ID, "12")
	s.assertAccount("-2", "2")

	second := s.charge("5")
	s.assertAmount("3", second.Balance())
	s.assertAccount("3", "0")
}

func (s *LedgerServiceSuite) TestRefundExceedingPaidAmount() {
	inv := s.charge("10")
	s.pay(inv.ID, "4")

	_, err := s.service.RecordRefund(s.GetContext(), &PaymentRequest{AccountID: "acc_1", InvoiceID: inv.ID, Amount: dec("5")})
	s.Require().Error(err)
	s.True(ierr.IsValidation(err))
	s.assertAccount("6", "0")
}

func (s *LedgerServiceSuite) TestDraftInvoiceLifecycle() {
	s.credit("4", nil)

	day := types.ToDate(s.now)
	draft := invoice.NewInvoice("acc_1", "USD", day, day, types.InvoiceStatusDraft)
	draft.AddItems(invoice.NewExternalCharge(day, dec("10"), "USD", "setup", nil))
	s.Require().NoError(s.GetStores().InvoiceRepo.Create(s.GetContext(), draft))

	// drafts neither consume credit nor accept payments
	s.assertAccount("-4", "4")
	_, err := s.service.RecordPayment(s.GetContext(), &PaymentRequest{AccountID: "acc_1", InvoiceID: draft.ID, Amount: dec("1")})
	s.Require().Error(err)
	s.True(ierr.IsInvalidOperation(err))

	committed, err := s.service.CommitInvoice(s.GetContext(), "acc_1", draft.ID)
	s.Require().NoError(err)
	s.Equal(types.InvoiceStatusCommitted, committed.Status)
	s.assertAmount("6", committed.Balance())
	s.assertAccount("6", "0")

	_, err = s.service.CommitInvoice(s.GetContext(), "acc_1", draft.ID)
	s.Require().Error(err)
	s.True(ierr.IsInvalidOperation(err))
}

func (s *LedgerServiceSuite) TestInvoiceOfAnotherAccount() {
	s.createAccount("acc_2")
	inv := s.charge("10")

	_, err := s.service.RecordPayment(s.GetContext(), &PaymentRequest{AccountID: "acc_2", InvoiceID: inv.ID, Amount: dec("1")})
	s.Require().Error(err)
	s.True(ierr.IsNotFound(err))
	s.Equal(1.0, s.counterValue("invoicer_ledger_operations_total", map[string]string{"operation": "payment", "outcome": "error"}))
}

func (s *LedgerServiceSuite) TestExternalChargesValidation() {
	_, err := s.service.InsertExternalCharges(s.GetContext(), &ExternalChargesRequest{
		AccountID: "acc_1",
		Currency:  "USD",
	})
	s.Require().Error(err)
	s.True(ierr.IsValidation(err))

	_, err = s.service.InsertExternalCharges(s.GetContext(), &ExternalChargesRequest{
		AccountID: "acc_1",
		Currency:  "USD",
		Charges:   []ExternalCharge{{Amount: dec("-1"), Description: "bad"}},
	})
	s.Require().Error(err)
	s.True(ierr.IsValidation(err))
}
