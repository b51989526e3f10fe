package types

import (
	ierr "github.com/flexprice/invoicer/internal/errors"
	"github.com/samber/lo"
)

// InvoiceItemType discriminates the invoice item variants.
type InvoiceItemType string

const (
	InvoiceItemTypeFixed          InvoiceItemType = "FIXED"
	InvoiceItemTypeRecurring      InvoiceItemType = "RECURRING"
	InvoiceItemTypeUsage          InvoiceItemType = "USAGE"
	InvoiceItemTypeRepairAdj      InvoiceItemType = "REPAIR_ADJ"
	InvoiceItemTypeItemAdj        InvoiceItemType = "ITEM_ADJ"
	InvoiceItemTypeCBAAdj         InvoiceItemType = "CBA_ADJ"
	InvoiceItemTypeCreditAdj      InvoiceItemType = "CREDIT_ADJ"
	InvoiceItemTypeExternalCharge InvoiceItemType = "EXTERNAL_CHARGE"
)

func (t InvoiceItemType) Validate() error {
	allowed := []InvoiceItemType{
		InvoiceItemTypeFixed,
		InvoiceItemTypeRecurring,
		InvoiceItemTypeUsage,
		InvoiceItemTypeRepairAdj,
		InvoiceItemTypeItemAdj,
		InvoiceItemTypeCBAAdj,
		InvoiceItemTypeCreditAdj,
		InvoiceItemTypeExternalCharge,
	}
	if !lo.Contains(allowed, t) {
		return ierr.NewError("invalid invoice item type").
			WithHint("Please provide a valid invoice item type").
			WithReportableDetails(map[string]any{
				"allowed": allowed,
				"type":    t,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// RequiresLink reports whether the variant must point at the item it corrects.
func (t InvoiceItemType) RequiresLink() bool {
	return t == InvoiceItemTypeRepairAdj || t == InvoiceItemTypeItemAdj
}

// IsCharge reports whether the variant bills a subscription for service.
func (t InvoiceItemType) IsCharge() bool {
	return t == InvoiceItemTypeFixed || t == InvoiceItemTypeRecurring || t == InvoiceItemTypeUsage
}

// InvoiceStatus is the lifecycle state of an invoice.
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "DRAFT"
	InvoiceStatusCommitted InvoiceStatus = "COMMITTED"
)

func (s InvoiceStatus) Validate() error {
	allowed := []InvoiceStatus{InvoiceStatusDraft, InvoiceStatusCommitted}
	if !lo.Contains(allowed, s) {
		return ierr.NewError("invalid invoice status").
			WithHint("Invoice status must be DRAFT or COMMITTED").
			WithReportableDetails(map[string]any{
				"allowed": allowed,
				"status":  s,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}
