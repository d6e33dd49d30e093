package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/social-media-api/internal/middleware"
	"github.com/iliyamo/social-media-api/internal/model"
	"github.com/iliyamo/social-media-api/internal/repository"
	"github.com/iliyamo/social-media-api/internal/service"
	"github.com/iliyamo/social-media-api/internal/token"
)

type stubTokens struct {
	pair      model.TokenPair
	err       error
	logoutOK  bool
	lastToken string
}

func (s *stubTokens) Login(_ context.Context, _, _ string) (model.TokenPair, error) {
	return s.pair, s.err
}

func (s *stubTokens) RefreshAccess(_ context.Context, raw string) (model.TokenPair, error) {
	s.lastToken = raw
	return model.TokenPair{AccessToken: s.pair.AccessToken, RefreshToken: raw}, s.err
}

func (s *stubTokens) Rotate(_ context.Context, raw string) (model.TokenPair, error) {
	s.lastToken = raw
	return s.pair, s.err
}

func (s *stubTokens) Logout(_ context.Context, raw string) bool {
	s.lastToken = raw
	return s.logoutOK
}

type stubUsers struct {
	err  error
	cost int
}

func (s *stubUsers) Create(_ context.Context, _, _, _ string, cost int) (uint64, error) {
	s.cost = cost
	return 42, s.err
}

func call(h echo.HandlerFunc, body string) *httptest.ResponseRecorder {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/social-media-api/auth/x", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	_ = h(e.NewContext(req, rec))
	return rec
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) middleware.ErrorResponse {
	t.Helper()
	var body middleware.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestLoginReturnsBearerPair(t *testing.T) {
	h := NewAuthHandler(&stubTokens{pair: model.TokenPair{AccessToken: "a", RefreshToken: "r"}}, &stubUsers{}, 4)

	rec := call(h.Login, `{"username":"alice","password":"pw"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"tokenType":"Bearer","accessToken":"a","refreshToken":"r"}`, rec.Body.String())
}

func TestLoginErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{"missing fields", `{"username":"alice"}`, nil, http.StatusBadRequest},
		{"bad json", `{`, nil, http.StatusBadRequest},
		{"invalid credentials", `{"username":"alice","password":"x"}`, service.ErrInvalidCredentials, http.StatusBadRequest},
		{"disabled", `{"username":"bob","password":"pw"}`, service.ErrAccountDisabled, http.StatusForbidden},
		{"store down", `{"username":"alice","password":"pw"}`, errors.New("dial tcp"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewAuthHandler(&stubTokens{err: tt.err}, &stubUsers{}, 4)
			rec := call(h.Login, tt.body)
			require.Equal(t, tt.status, rec.Code)
			body := errorBody(t, rec)
			assert.Equal(t, tt.status, body.Status)
			assert.Equal(t, "/social-media-api/auth/x", body.Path)
		})
	}

	h := NewAuthHandler(&stubTokens{err: service.ErrInvalidCredentials}, &stubUsers{}, 4)
	body := errorBody(t, call(h.Login, `{"username":"alice","password":"x"}`))
	assert.Equal(t, "invalid username or password", body.Message)
	assert.Equal(t, "Bad Request", body.Error)
}

func TestTokenKeepsRefreshToken(t *testing.T) {
	tokens := &stubTokens{pair: model.TokenPair{AccessToken: "a2"}}
	h := NewAuthHandler(tokens, &stubUsers{}, 4)

	rec := call(h.Token, `{"refreshToken":" r1 "}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"tokenType":"Bearer","accessToken":"a2","refreshToken":"r1"}`, rec.Body.String())
	assert.Equal(t, "r1", tokens.lastToken)
}

func TestRefreshRotatesPair(t *testing.T) {
	h := NewAuthHandler(&stubTokens{pair: model.TokenPair{AccessToken: "a2", RefreshToken: "r2"}}, &stubUsers{}, 4)

	rec := call(h.Refresh, `{"refreshToken":"r1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"tokenType":"Bearer","accessToken":"a2","refreshToken":"r2"}`, rec.Body.String())
}

func TestExchangeErrors(t *testing.T) {
	for _, err := range []error{service.ErrUnknownToken, token.ErrExpired, token.ErrBadSignature, service.ErrAccountDisabled} {
		h := NewAuthHandler(&stubTokens{err: err}, &stubUsers{}, 4)
		rec := call(h.Refresh, `{"refreshToken":"r1"}`)
		assert.Equal(t, http.StatusForbidden, rec.Code, "err=%v", err)
		assert.Equal(t, "invalid refresh token", errorBody(t, rec).Message)
	}

	h := NewAuthHandler(&stubTokens{err: errors.New("redis down")}, &stubUsers{}, 4)
	assert.Equal(t, http.StatusInternalServerError, call(h.Token, `{"refreshToken":"r1"}`).Code)
	assert.Equal(t, http.StatusBadRequest, call(h.Token, `{}`).Code)
}

func TestLogoutReportsOutcome(t *testing.T) {
	tokens := &stubTokens{logoutOK: true}
	h := NewAuthHandler(tokens, &stubUsers{}, 4)

	rec := call(h.Logout, `{"refreshToken":"r1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())

	tokens.logoutOK = false
	rec = call(h.Logout, `{"refreshToken":"r1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":false}`, rec.Body.String())
}

func TestRegister(t *testing.T) {
	users := &stubUsers{}
	h := NewAuthHandler(&stubTokens{}, users, 4)

	rec := call(h.Register, `{"username":"alice","email":"Alice@Example.com","password":"password1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"id":42,"username":"alice","email":"alice@example.com"}`, rec.Body.String())
	assert.Equal(t, 4, users.cost)

	assert.Equal(t, http.StatusBadRequest, call(h.Register, `{"username":"alice","email":"nope","password":"password1"}`).Code)
	assert.Equal(t, http.StatusBadRequest, call(h.Register, `{"username":"alice","email":"a@b.c","password":"short"}`).Code)

	users.err = repository.ErrUsernameExists
	assert.Equal(t, http.StatusConflict, call(h.Register, `{"username":"alice","email":"a@b.c","password":"password1"}`).Code)
}

func TestMe(t *testing.T) {
	h := NewAuthHandler(&stubTokens{}, &stubUsers{}, 4)
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/social-media-api/auth/me", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, h.Me(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	ctx := middleware.WithPrincipal(req.Context(), model.Principal{Username: "alice", Authenticated: true})
	rec = httptest.NewRecorder()
	require.NoError(t, h.Me(e.NewContext(req.WithContext(ctx), rec)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"username":"alice","authenticated":true}`, rec.Body.String())
}

type stubPinger struct{ err error }

func (s stubPinger) PingContext(context.Context) error { return s.err }

func TestHealthAndReady(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	require.NoError(t, Health(e.NewContext(httptest.NewRequest(http.MethodGet, "/healthz", nil), rec)))
	assert.Equal(t, "ok", rec.Body.String())

	rec = httptest.NewRecorder()
	require.NoError(t, Ready(stubPinger{})(e.NewContext(httptest.NewRequest(http.MethodGet, "/readyz", nil), rec)))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	require.NoError(t, Ready(stubPinger{err: errors.New("down")})(e.NewContext(httptest.NewRequest(http.MethodGet, "/readyz", nil), rec)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
