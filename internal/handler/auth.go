package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/social-media-api/internal/middleware"
	"github.com/iliyamo/social-media-api/internal/model"
	"github.com/iliyamo/social-media-api/internal/repository"
	"github.com/iliyamo/social-media-api/internal/service"
)

// TokenService is the lifecycle API the auth endpoints drive.
type TokenService interface {
	Login(ctx context.Context, username, password string) (model.TokenPair, error)
	RefreshAccess(ctx context.Context, refreshToken string) (model.TokenPair, error)
	Rotate(ctx context.Context, refreshToken string) (model.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) bool
}

// UserRegistrar creates accounts.
type UserRegistrar interface {
	Create(ctx context.Context, username, email, password string, cost int) (uint64, error)
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Tokens     TokenService
	Users      UserRegistrar
	BcryptCost int
	Timeout    time.Duration
}

func NewAuthHandler(tokens TokenService, users UserRegistrar, bcryptCost int) *AuthHandler {
	return &AuthHandler{Tokens: tokens, Users: users, BcryptCost: bcryptCost, Timeout: 5 * time.Second}
}

// ----- DTOs -----

type loginReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshReq struct {
	RefreshToken string `json:"refreshToken"`
}

type registerReq struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResp struct {
	Type         string `json:"tokenType"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type registerResp struct {
	ID       uint64 `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

func bearer(p model.TokenPair) tokenResp {
	return tokenResp{Type: "Bearer", AccessToken: p.AccessToken, RefreshToken: p.RefreshToken}
}

func (h *AuthHandler) ctx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), h.Timeout)
}

// Login: verify credentials and return a fresh pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return middleware.JSONError(c, http.StatusBadRequest, "invalid body")
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		return middleware.JSONError(c, http.StatusBadRequest, "username and password are required")
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	pair, err := h.Tokens.Login(ctx, req.Username, req.Password)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, bearer(pair))
	case errors.Is(err, service.ErrInvalidCredentials):
		return middleware.JSONError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrAccountDisabled):
		return middleware.JSONError(c, http.StatusForbidden, err.Error())
	default:
		return internalError(c, err, "login failed")
	}
}

// Token: exchange a refresh token for a new access token. The refresh
// token is returned unchanged.
func (h *AuthHandler) Token(c echo.Context) error {
	return h.exchange(c, h.Tokens.RefreshAccess)
}

// Refresh: exchange a refresh token for a new pair. The presented refresh
// token stops working.
func (h *AuthHandler) Refresh(c echo.Context) error {
	return h.exchange(c, h.Tokens.Rotate)
}

func (h *AuthHandler) exchange(c echo.Context, op func(context.Context, string) (model.TokenPair, error)) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return middleware.JSONError(c, http.StatusBadRequest, "refreshToken required")
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	pair, err := op(ctx, strings.TrimSpace(req.RefreshToken))
	if err != nil {
		if service.IsAuthFailure(err) {
			zerolog.Ctx(ctx).Info().Str("reason", string(service.Reason(err))).Msg("refresh token rejected")
			return middleware.JSONError(c, http.StatusForbidden, "invalid refresh token")
		}
		return internalError(c, err, "token exchange failed")
	}
	return c.JSON(http.StatusOK, bearer(pair))
}

// Logout: drop both stored tokens of the refresh token's owner.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil {
		return middleware.JSONError(c, http.StatusBadRequest, "invalid body")
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	ok := h.Tokens.Logout(ctx, strings.TrimSpace(req.RefreshToken))
	return c.JSON(http.StatusOK, echo.Map{"success": ok})
}

// Register: create an account. Tokens are obtained with a separate login.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return middleware.JSONError(c, http.StatusBadRequest, "invalid body")
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	switch {
	case req.Username == "" || req.Password == "":
		return middleware.JSONError(c, http.StatusBadRequest, "username and password are required")
	case len(req.Username) > 64:
		return middleware.JSONError(c, http.StatusBadRequest, "username too long")
	case !strings.Contains(req.Email, "@"):
		return middleware.JSONError(c, http.StatusBadRequest, "valid email required")
	case len(req.Password) < 8:
		return middleware.JSONError(c, http.StatusBadRequest, "password must be at least 8 characters")
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	id, err := h.Users.Create(ctx, req.Username, req.Email, req.Password, h.BcryptCost)
	if err != nil {
		if errors.Is(err, repository.ErrUsernameExists) {
			return middleware.JSONError(c, http.StatusConflict, "username already exists")
		}
		return internalError(c, err, "create user failed")
	}
	return c.JSON(http.StatusCreated, registerResp{ID: id, Username: req.Username, Email: req.Email})
}

// Me: the authenticated principal.
func (h *AuthHandler) Me(c echo.Context) error {
	p, ok := middleware.PrincipalFrom(c.Request().Context())
	if !ok {
		return middleware.JSONError(c, http.StatusUnauthorized, "authentication required")
	}
	return c.JSON(http.StatusOK, echo.Map{
		"username":      p.Username,
		"authenticated": p.Authenticated,
	})
}

func internalError(c echo.Context, err error, msg string) error {
	zerolog.Ctx(c.Request().Context()).Error().Err(err).Str("path", c.Request().URL.Path).Msg(msg)
	return middleware.JSONError(c, http.StatusInternalServerError, msg)
}
