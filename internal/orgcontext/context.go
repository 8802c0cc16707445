package orgcontext

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
)

// OrgContextKey is the request context key for the owning organization ID.
type OrgContextKey struct{}

// WithOrgID stores the org ID in the context.
func WithOrgID(ctx context.Context, orgID snowflake.ID) context.Context {
	return context.WithValue(ctx, OrgContextKey{}, orgID)
}

// OrgIDFromContext returns the org ID from context, if set.
func OrgIDFromContext(ctx context.Context) (snowflake.ID, bool) {
	if ctx == nil {
		return 0, false
	}

	switch typed := ctx.Value(OrgContextKey{}).(type) {
	case snowflake.ID:
		return typed, typed != 0
	case int64:
		return snowflake.ID(typed), typed != 0
	case string:
		parsed, err := snowflake.ParseString(strings.TrimSpace(typed))
		if err == nil && parsed != 0 {
			return parsed, true
		}
	}
	return 0, false
}
