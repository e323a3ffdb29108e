package actorctx

import "context"

type ctxKey struct{}

// WithUserID records the authenticated caller on ctx so layers below HTTP can log it.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

func UserIDFrom(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxKey{}).(string)

	return v, ok && v != ""
}
