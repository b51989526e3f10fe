package service

import (
	"context"
	"strings"

	"github.com/flexprice/invoicer/internal/domain/account"
	"github.com/flexprice/invoicer/internal/types"
)

type AccountService interface {
	CreateAccount(ctx context.Context, req *CreateAccountRequest) (*account.Account, error)
	GetAccount(ctx context.Context, id string) (*account.Account, error)
	// SetSubscriptionAutoInvoiceOff excludes a subscription from, or puts it
	// back into, invoice generation
	SetSubscriptionAutoInvoiceOff(ctx context.Context, accountID, subscriptionID string, off bool) error
}

type accountService struct {
	ServiceParams
}

func NewAccountService(params ServiceParams) AccountService {
	return &accountService{ServiceParams: params}
}

func (s *accountService) CreateAccount(ctx context.Context, req *CreateAccountRequest) (*account.Account, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	acc := &account.Account{
		ID:               types.GenerateUUIDWithPrefix(types.UUID_PREFIX_ACCOUNT),
		ExternalID:       req.ExternalID,
		Currency:         strings.ToUpper(req.Currency),
		AutoInvoiceOff:   req.AutoInvoiceOff,
		AutoInvoiceDraft: req.AutoInvoiceDraft,
	}
	if err := s.AccountRepo.Create(ctx, acc); err != nil {
		return nil, err
	}

	s.Logger.Infow("created account",
		"account_id", acc.ID,
		"external_id", acc.ExternalID,
		"currency", acc.Currency,
	)
	return acc, nil
}

func (s *accountService) GetAccount(ctx context.Context, id string) (*account.Account, error) {
	return s.AccountRepo.Get(ctx, id)
}

func (s *accountService) SetSubscriptionAutoInvoiceOff(ctx context.Context, accountID, subscriptionID string, off bool) error {
	return s.DB.WithTx(ctx, func(ctx context.Context) error {
		if err := s.AccountRepo.LockForInvoicing(ctx, accountID); err != nil {
			return err
		}
		return s.AccountRepo.SetSubscriptionAutoInvoiceOff(ctx, accountID, subscriptionID, off)
	})
}
