// ABOUTME: Operator identity carried through control-surface handlers
// ABOUTME: Provides WithOperator/OperatorFromContext for propagating it via context

package auth

import "context"

// Operator is the authenticated caller of the control surface.
type Operator struct {
	Subject   string
	Anonymous bool
}

type operatorKey struct{}

// WithOperator returns a new context carrying op.
func WithOperator(ctx context.Context, op *Operator) context.Context {
	return context.WithValue(ctx, operatorKey{}, op)
}

// OperatorFromContext returns the operator in ctx, or nil.
func OperatorFromContext(ctx context.Context) *Operator {
	op, _ := ctx.Value(operatorKey{}).(*Operator)
	return op
}
