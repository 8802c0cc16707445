package correlation

import (
	"context"

	"github.com/oklog/ulid/v2"
)

// Header carries the correlation id on HTTP requests and responses.
const Header = "X-Request-Id"

type ctxKey struct{}

// FromContext returns the correlation id stored on ctx, or "".
func FromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// WithID stores id on ctx. Empty ids leave ctx untouched.
func WithID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, id)
}

// Ensure returns ctx carrying a correlation id, minting a ulid when none is set.
// Background refresh runs start here so every segment refreshed in one pass logs the same id.
func Ensure(ctx context.Context) (context.Context, string) {
	if id := FromContext(ctx); id != "" {
		return ctx, id
	}
	id := ulid.Make().String()
	return WithID(ctx, id), id
}
