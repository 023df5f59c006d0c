package rest

import "context"

type ctxKeyOperatorID struct{}
type ctxKeyOperatorRole struct{}

type OperatorContext struct {
	OperatorID string
	Role       string
}

func withOperator(ctx context.Context, o OperatorContext) context.Context {
	ctx = context.WithValue(ctx, ctxKeyOperatorID{}, o.OperatorID)
	ctx = context.WithValue(ctx, ctxKeyOperatorRole{}, o.Role)
	return ctx
}

func GetOperator(ctx context.Context) (OperatorContext, bool) {
	id, ok := ctx.Value(ctxKeyOperatorID{}).(string)
	if !ok || id == "" {
		return OperatorContext{}, false
	}
	role, _ := ctx.Value(ctxKeyOperatorRole{}).(string)

	return OperatorContext{OperatorID: id, Role: role}, true
}
