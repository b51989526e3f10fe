package types

import (
	"context"
)

// ContextKey is a type for the keys of values stored in the context
type ContextKey string

const (
	CtxRequestID ContextKey = "ctx_request_id"
	CtxAccountID ContextKey = "ctx_account_id"
	CtxBillRunID ContextKey = "ctx_bill_run_id"
)

func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(CtxRequestID).(string); ok {
		return requestID
	}
	return ""
}

func GetAccountID(ctx context.Context) string {
	if accountID, ok := ctx.Value(CtxAccountID).(string); ok {
		return accountID
	}
	return ""
}

func GetBillRunID(ctx context.Context) string {
	if runID, ok := ctx.Value(CtxBillRunID).(string); ok {
		return runID
	}
	return ""
}

// SetRequestID sets the request ID in the context
func SetRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, CtxRequestID, requestID)
}

// SetAccountID scopes the context to the account being invoiced
func SetAccountID(ctx context.Context, accountID string) context.Context {
	return context.WithValue(ctx, CtxAccountID, accountID)
}

// SetBillRunID tags the context with the bill-run it belongs to
func SetBillRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, CtxBillRunID, runID)
}
