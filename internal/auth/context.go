package auth

import "context"

type ctxKey struct{}

// WithAccountID stores the authenticated account on the context.
func WithAccountID(ctx context.Context, accountID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, accountID)
}

// AccountIDFromContext returns the authenticated account, if any.
func AccountIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	accountID, ok := ctx.Value(ctxKey{}).(string)
	return accountID, ok && accountID != ""
}
