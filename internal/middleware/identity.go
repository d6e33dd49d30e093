package middleware

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/social-media-api/internal/model"
)

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p model.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the authenticated principal of the request, if any.
func PrincipalFrom(ctx context.Context) (model.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(model.Principal)
	if !ok || !p.Authenticated {
		return model.Principal{}, false
	}
	return p, true
}

// userID names the caller for rate limit keys, "anon" when unauthenticated.
func userID(c echo.Context) string {
	if p, ok := PrincipalFrom(c.Request().Context()); ok {
		return p.Username
	}
	return "anon"
}
