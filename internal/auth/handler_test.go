package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T) (*Handler, *Service) {
	t.Helper()
	service, _, _, _ := newTestService(t, newTestUser(t, true))
	return NewHandler(service), service
}

func postJSON(t *testing.T, handler http.HandlerFunc, body any) *httptest.ResponseRecorder {
	t.Helper()
	encoded, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(encoded))
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	handler(recorder, req)
	return recorder
}

func TestHandlerLogin(t *testing.T) {
	handler, _ := newTestHandler(t)

	t.Run("success", func(t *testing.T) {
		recorder := postJSON(t, handler.Login, loginRequest{Email: testEmail, Password: testPassword})
		require.Equal(t, http.StatusOK, recorder.Code)

		var response loginResponse
		require.NoError(t, json.NewDecoder(recorder.Body).Decode(&response))
		assert.NotEmpty(t, response.AccessToken)
		assert.NotEmpty(t, response.RefreshToken)
		assert.Equal(t, testEmail, response.Email)
	})

	t.Run("wrong password", func(t *testing.T) {
		recorder := postJSON(t, handler.Login, loginRequest{Email: testEmail, Password: "wrong"})
		assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	})

	t.Run("malformed email", func(t *testing.T) {
		recorder := postJSON(t, handler.Login, loginRequest{Email: "not-an-email", Password: testPassword})
		assert.Equal(t, http.StatusBadRequest, recorder.Code)
	})

	t.Run("invalid json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte("{")))
		recorder := httptest.NewRecorder()
		handler.Login(recorder, req)
		assert.Equal(t, http.StatusBadRequest, recorder.Code)
	})

	t.Run("unknown fields rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte(`{"email":"user@example.com","password":"x","extra":true}`)))
		recorder := httptest.NewRecorder()
		handler.Login(recorder, req)
		assert.Equal(t, http.StatusBadRequest, recorder.Code)
	})
}

func TestHandlerRefresh(t *testing.T) {
	handler, service := newTestHandler(t)

	pair, _, err := service.Login(context.Background(), testEmail, testPassword)
	require.NoError(t, err)

	t.Run("success", func(t *testing.T) {
		recorder := postJSON(t, handler.Refresh, refreshRequest{RefreshToken: pair.RefreshToken})
		require.Equal(t, http.StatusOK, recorder.Code)

		var next TokenPair
		require.NoError(t, json.NewDecoder(recorder.Body).Decode(&next))
		assert.NotEqual(t, pair.RefreshToken, next.RefreshToken)
	})

	t.Run("rotated-away token is unauthorized", func(t *testing.T) {
		recorder := postJSON(t, handler.Refresh, refreshRequest{RefreshToken: pair.RefreshToken})
		assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	})
}

func TestHandlerLogout(t *testing.T) {
	handler, service := newTestHandler(t)

	pair, user, err := service.Login(context.Background(), testEmail, testPassword)
	require.NoError(t, err)

	t.Run("missing token", func(t *testing.T) {
		recorder := postJSON(t, handler.Logout, logoutRequest{RefreshToken: " "})
		assert.Equal(t, http.StatusBadRequest, recorder.Code)
	})

	t.Run("success returns owner", func(t *testing.T) {
		recorder := postJSON(t, handler.Logout, logoutRequest{RefreshToken: pair.RefreshToken})
		require.Equal(t, http.StatusOK, recorder.Code)

		var response logoutResponse
		require.NoError(t, json.NewDecoder(recorder.Body).Decode(&response))
		assert.Equal(t, user.ID, response.UserID)
	})

	t.Run("second logout is unauthorized", func(t *testing.T) {
		recorder := postJSON(t, handler.Logout, logoutRequest{RefreshToken: pair.RefreshToken})
		assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	})
}

func TestHandlerSession(t *testing.T) {
	user := newTestUser(t, true)
	service, _, dir, _ := newTestService(t, user)
	handler := NewHandler(service)
	guarded := Middleware("test-signing-secret", http.HandlerFunc(handler.Session))

	pair, _, err := service.Login(context.Background(), testEmail, testPassword)
	require.NoError(t, err)

	t.Run("returns token owner", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
		recorder := httptest.NewRecorder()
		guarded.ServeHTTP(recorder, req)
		require.Equal(t, http.StatusOK, recorder.Code)

		var response sessionResponse
		require.NoError(t, json.NewDecoder(recorder.Body).Decode(&response))
		assert.Equal(t, user.ID, response.UserID)
		assert.Equal(t, testEmail, response.Email)
	})

	t.Run("deactivated account is unauthorized", func(t *testing.T) {
		dir.setActive(user.ID, false)
		defer dir.setActive(user.ID, true)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
		recorder := httptest.NewRecorder()
		guarded.ServeHTTP(recorder, req)
		assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	})
}

func TestMiddlewareGuardsWithAccessToken(t *testing.T) {
	codec := NewTokenCodec("guard-secret", 15*time.Minute, 30*24*time.Hour)

	var seenUserID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenUserID = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	guarded := Middleware("guard-secret", next)

	t.Run("missing header", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		guarded.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	})

	t.Run("refresh token is rejected as access token", func(t *testing.T) {
		refresh, _, err := codec.IssueRefresh("user-1")
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+refresh)
		recorder := httptest.NewRecorder()
		guarded.ServeHTTP(recorder, req)
		assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	})

	t.Run("valid access token passes and exposes subject", func(t *testing.T) {
		access, _, err := codec.IssueAccess("user-1")
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+access)
		recorder := httptest.NewRecorder()
		guarded.ServeHTTP(recorder, req)
		assert.Equal(t, http.StatusNoContent, recorder.Code)
		assert.Equal(t, "user-1", seenUserID)
	})
}
