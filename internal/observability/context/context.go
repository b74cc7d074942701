// Package obscontext carries request-scoped correlation identifiers.
package obscontext

import "context"

type requestIDKey struct{}
type operatorKey struct{}

// WithRequestID stores the request id on the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestIDFromContext returns the request id, or "" when absent.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// WithOperator stores the acting operator identifier on the context.
func WithOperator(ctx context.Context, operator string) context.Context {
	if operator == "" {
		return ctx
	}
	return context.WithValue(ctx, operatorKey{}, operator)
}

// OperatorFromContext returns the operator identifier, or "" when absent.
func OperatorFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(operatorKey{}).(string); ok {
		return v
	}
	return ""
}
