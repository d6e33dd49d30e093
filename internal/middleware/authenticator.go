package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/social-media-api/internal/service"
)

// Response headers carrying tokens that were rotated while serving the
// request. Clients replace their stored tokens when they are present.
const (
	HeaderAccessToken  = "X-Access-Token"
	HeaderRefreshToken = "X-Refresh-Token"
)

// RequestValidator is the part of the auth service the authenticator needs.
type RequestValidator interface {
	ValidateRequest(ctx context.Context, accessToken string) (service.Validation, error)
}

// Authenticator resolves an "Authorization: Bearer" header into a principal
// on the request context. Requests without a bearer header pass through
// unauthenticated; an invalid token is answered with 401 right away.
func Authenticator(v RequestValidator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				return next(c)
			}

			ctx := c.Request().Context()
			res, err := v.ValidateRequest(ctx, raw)
			if err != nil {
				ev := zerolog.Ctx(ctx).Info()
				if !service.IsAuthFailure(err) {
					ev = zerolog.Ctx(ctx).Error().Err(err)
				}
				ev.Str("reason", string(service.Reason(err))).
					Str("path", c.Request().URL.Path).
					Msg("bearer token rejected")
				return JSONError(c, http.StatusUnauthorized, "unauthorized")
			}

			if res.Rotated != nil {
				h := c.Response().Header()
				h.Set(HeaderAccessToken, res.Rotated.AccessToken)
				if res.Rotated.RefreshToken != "" {
					h.Set(HeaderRefreshToken, res.Rotated.RefreshToken)
				}
			}
			c.SetRequest(c.Request().WithContext(WithPrincipal(ctx, res.Principal)))
			return next(c)
		}
	}
}

// bearerToken extracts the credentials of a Bearer authorization header.
// The scheme is matched case-insensitively.
func bearerToken(header string) (string, bool) {
	scheme, rest, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	return strings.TrimSpace(rest), true
}

// RequireAuth rejects requests that carry no authenticated principal.
func RequireAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, ok := PrincipalFrom(c.Request().Context()); !ok {
				return JSONError(c, http.StatusUnauthorized, "authentication required")
			}
			return next(c)
		}
	}
}
