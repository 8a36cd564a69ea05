package handler

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/survivorsoul/soulsongs/internal/config"
	"github.com/survivorsoul/soulsongs/internal/service"
	"golang.org/x/oauth2"
)

func newAuthHandler(t *testing.T, f *fixture) *AuthHandler {
	t.Helper()

	cfg := &config.Config{
		AppURL:              "http://localhost:8003",
		AppEnv:              "development",
		GoogleClientID:      "google-client",
		GoogleClientSecret:  "google-secret",
		AvatarMaxUploadSize: 1 << 20,
	}
	userService := service.NewUserService(f.users, nil, cfg.AvatarMaxUploadSize)
	return NewAuthHandler(f.authService, userService, cfg)
}

func TestRegister(t *testing.T) {
	f := newFixture(t)
	h := newAuthHandler(t, f)

	rec := httptest.NewRecorder()
	h.Register(rec, jsonRequest(t, http.MethodPost, "/api/auth/register", map[string]string{
		"email":     "New.Listener@Example.com",
		"password":  "river-stone-42",
		"full_name": "New Listener",
	}))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decodeBody[TokenResponse](t, rec)
	assert.Equal(t, "bearer", body.TokenType)
	assert.NotEmpty(t, body.AccessToken)
	require.NotNil(t, body.User)
	assert.Equal(t, "new.listener@example.com", body.User.Email)
	assert.NotContains(t, rec.Body.String(), "hashed_password")

	user, err := f.authService.UserFromToken(context.Background(), body.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, body.User.ID, user.ID)
}

func TestRegister_Rejections(t *testing.T) {
	f := newFixture(t)
	h := newAuthHandler(t, f)
	f.createUser(t, "taken@example.com")

	tests := []struct {
		name   string
		body   map[string]string
		detail string
	}{
		{name: "duplicate email", body: map[string]string{"email": "taken@example.com", "password": "river-stone-42", "full_name": "Someone"}, detail: "email already registered"},
		{name: "weak password", body: map[string]string{"email": "weak@example.com", "password": "short"}, detail: "password must be at least 8 characters"},
		{name: "missing email", body: map[string]string{"password": "river-stone-42"}, detail: "field email is a required field"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Register(rec, jsonRequest(t, http.MethodPost, "/api/auth/register", tt.body))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.detail, decodeBody[ErrorResponse](t, rec).Detail)
		})
	}
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	h := newAuthHandler(t, f)
	f.createUser(t, "login@example.com")

	t.Run("success", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.Login(rec, jsonRequest(t, http.MethodPost, "/api/auth/login", map[string]string{
			"email":    "login@example.com",
			"password": "correct horse battery",
		}))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotEmpty(t, decodeBody[TokenResponse](t, rec).AccessToken)
	})

	t.Run("wrong password", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.Login(rec, jsonRequest(t, http.MethodPost, "/api/auth/login", map[string]string{
			"email":    "login@example.com",
			"password": "wrong horse battery",
		}))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "incorrect email or password", decodeBody[ErrorResponse](t, rec).Detail)
	})
}

func TestMe_AndUpdate(t *testing.T) {
	f := newFixture(t)
	h := newAuthHandler(t, f)
	user := f.createUser(t, "me@example.com")

	rec := httptest.NewRecorder()
	h.Me(rec, asUser(httptest.NewRequest(http.MethodGet, "/api/auth/me", nil), user))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "me@example.com", decodeBody[map[string]any](t, rec)["email"])

	rec = httptest.NewRecorder()
	h.UpdateMe(rec, asUser(jsonRequest(t, http.MethodPatch, "/api/auth/me", map[string]string{
		"full_name": "Renamed",
		"phone":     "+1 (555) 010-0000",
	}), user))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	stored, err := f.users.ByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", stored.FullName)
	require.NotNil(t, stored.Phone)
	assert.True(t, stored.HasPassword())
}

func TestUploadAvatar_StorageDisabled(t *testing.T) {
	f := newFixture(t)
	h := newAuthHandler(t, f)
	user := f.createUser(t, "avatar@example.com")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("avatar", "me.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("\x89PNG\r\n\x1a\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/auth/me/avatar", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()

	h.UploadAvatar(rec, asUser(req, user))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "avatar uploads are not available", decodeBody[ErrorResponse](t, rec).Detail)
}

func TestUploadAvatar_MissingFile(t *testing.T) {
	f := newFixture(t)
	h := newAuthHandler(t, f)
	user := f.createUser(t, "nofile@example.com")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("other", "x"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/auth/me/avatar", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()

	h.UploadAvatar(rec, asUser(req, user))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, msgAvatarMissing, decodeBody[ErrorResponse](t, rec).Detail)
}

func TestGoogleAuth_SetsStateCookie(t *testing.T) {
	f := newFixture(t)
	h := newAuthHandler(t, f)

	rec := httptest.NewRecorder()
	h.GoogleAuth(rec, httptest.NewRequest(http.MethodGet, "/api/auth/google", nil))

	require.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, oauthStateCookie, cookies[0].Name)

	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, cookies[0].Value, location.Query().Get("state"))
	assert.Equal(t, "google-client", location.Query().Get("client_id"))
}

func TestGoogleCallback(t *testing.T) {
	f := newFixture(t)
	h := newAuthHandler(t, f)

	google := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"access_token":"ya29.test","token_type":"Bearer","expires_in":3600}`))
		case "/userinfo":
			if r.Header.Get("Authorization") != "Bearer ya29.test" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"g-123","email":"Songbird@Example.com","verified_email":true,"name":"Song Bird"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(google.Close)

	h.googleOAuthConfig.Endpoint = oauth2.Endpoint{AuthURL: google.URL + "/auth", TokenURL: google.URL + "/token"}
	h.userInfoURL = google.URL + "/userinfo"

	callback := func(state, cookie string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/auth/google/callback?code=abc&state="+state, nil)
		if cookie != "" {
			req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: cookie})
		}
		rec := httptest.NewRecorder()
		h.GoogleCallback(rec, req)
		return rec
	}

	t.Run("state mismatch", func(t *testing.T) {
		rec := callback("one", "two")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, msgOAuthFailed, decodeBody[ErrorResponse](t, rec).Detail)
	})

	t.Run("creates user", func(t *testing.T) {
		rec := callback("state-1", "state-1")

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		body := decodeBody[TokenResponse](t, rec)
		assert.NotEmpty(t, body.AccessToken)
		require.NotNil(t, body.User)
		assert.Equal(t, "songbird@example.com", body.User.Email)
		assert.Equal(t, "Song Bird", body.User.FullName)
	})

	t.Run("signs in existing google user", func(t *testing.T) {
		first, err := f.users.ByGoogleID(context.Background(), "g-123")
		require.NoError(t, err)

		rec := callback("state-2", "state-2")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, first.ID, decodeBody[TokenResponse](t, rec).User.ID)
	})
}
