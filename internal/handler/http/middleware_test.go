package http_test

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	userHandler "github.com/vasiliy-maslov/account-service/internal/handler/http"
	"github.com/vasiliy-maslov/account-service/internal/user"
)

func TestTokenFromRequest(t *testing.T) {
	tests := []struct {
		name   string
		build  func() *http.Request
		want   string
		bodyIn string
	}{
		{
			name: "query parameter",
			build: func() *http.Request {
				return httptest.NewRequest(http.MethodGet, "/welcome?token=from-query", nil)
			},
			want: "from-query",
		},
		{
			name: "json body",
			build: func() *http.Request {
				return httptest.NewRequest(http.MethodPost, "/logout", strings.NewReader(`{"token":"from-body"}`))
			},
			want:   "from-body",
			bodyIn: `{"token":"from-body"}`,
		},
		{
			name: "access token header",
			build: func() *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/logout", nil)
				req.Header.Set("X-Access-Token", "from-header")
				return req
			},
			want: "from-header",
		},
		{
			name: "bearer authorization",
			build: func() *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/logout", nil)
				req.Header.Set("Authorization", "bearer from-bearer")
				return req
			},
			want: "from-bearer",
		},
		{
			name: "query wins over header",
			build: func() *http.Request {
				req := httptest.NewRequest(http.MethodGet, "/welcome?token=from-query", nil)
				req.Header.Set(userHandler.TokenHeader, "from-header")
				return req
			},
			want: "from-query",
		},
		{
			name: "body wins over header and body is restored",
			build: func() *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"email":"jane@x.com","token":"from-body"}`))
				req.Header.Set(userHandler.TokenHeader, "from-header")
				return req
			},
			want:   "from-body",
			bodyIn: `{"email":"jane@x.com","token":"from-body"}`,
		},
		{
			name: "non json body falls through to header",
			build: func() *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/logout", strings.NewReader(`token=form`))
				req.Header.Set(userHandler.TokenHeader, "from-header")
				return req
			},
			want:   "from-header",
			bodyIn: `token=form`,
		},
		{
			name: "other authorization scheme",
			build: func() *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/logout", nil)
				req.Header.Set("Authorization", "Basic amFuZTpzZWNyZXQ=")
				return req
			},
		},
		{
			name: "empty bearer",
			build: func() *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/logout", nil)
				req.Header.Set("Authorization", "Bearer   ")
				return req
			},
		},
		{
			name: "nothing presented",
			build: func() *http.Request {
				return httptest.NewRequest(http.MethodGet, "/welcome", nil)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.build()
			assert.Equal(t, tt.want, userHandler.TokenFromRequest(req))

			if tt.bodyIn != "" {
				rest, err := io.ReadAll(req.Body)
				require.NoError(t, err)
				assert.Equal(t, tt.bodyIn, string(rest), "body must stay readable")
			}
		})
	}
}

func TestGate_RequireAuth(t *testing.T) {
	resolved := jane()

	tests := []struct {
		name       string
		token      string
		setupMock  func(m *MockUserService)
		wantStatus int
		wantError  string
	}{
		{
			name:       "missing token",
			setupMock:  func(m *MockUserService) {},
			wantStatus: http.StatusUnauthorized,
			wantError:  "A token is required for authentication",
		},
		{
			name:  "invalid token",
			token: "forged",
			setupMock: func(m *MockUserService) {
				m.On("Authenticate", mock.Anything, "forged").Return(nil, user.ErrUnauthorized).Once()
			},
			wantStatus: http.StatusUnauthorized,
			wantError:  "Invalid Token",
		},
		{
			name:  "store failure",
			token: "valid",
			setupMock: func(m *MockUserService) {
				m.On("Authenticate", mock.Anything, "valid").Return(nil, errors.New("connection refused")).Once()
			},
			wantStatus: http.StatusInternalServerError,
			wantError:  "Internal server error",
		},
		{
			name:  "resolved",
			token: "valid",
			setupMock: func(m *MockUserService) {
				m.On("Authenticate", mock.Anything, "valid").Return(resolved, nil).Once()
			},
			wantStatus: http.StatusNoContent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockUserService)
			tt.setupMock(mockService)

			var seen *user.User
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen, _ = userHandler.UserFromContext(r.Context())
				w.WriteHeader(http.StatusNoContent)
			})

			req := httptest.NewRequest(http.MethodPost, "/protected", nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}

			gate := userHandler.NewGate(mockService, nil)
			rr := serve(gate.RequireAuth(next), req)
			require.Equal(t, tt.wantStatus, rr.Code)

			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, decodeError(t, rr)["error"])
				assert.Nil(t, seen)
			} else {
				assert.Same(t, resolved, seen)
			}
			mockService.AssertExpectations(t)
		})
	}
}

func TestGate_OptionalAuth_NeverRejects(t *testing.T) {
	mockService := new(MockUserService)
	mockService.On("Authenticate", mock.Anything, "expired").Return(nil, user.ErrUnauthorized).Once()
	mockService.On("Authenticate", mock.Anything, "flaky").Return(nil, errors.New("timeout")).Once()

	calls := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, ok := userHandler.UserFromContext(r.Context())
		assert.False(t, ok)
		w.WriteHeader(http.StatusOK)
	})
	handler := userHandler.NewGate(mockService, nil).OptionalAuth(next)

	for _, target := range []string{"/welcome", "/welcome?token=expired", "/welcome?token=flaky"} {
		rr := serve(handler, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusOK, rr.Code, target)
	}
	assert.Equal(t, 3, calls)
	mockService.AssertExpectations(t)
}

func TestUserFromContext_Empty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := userHandler.UserFromContext(req.Context())
	assert.False(t, ok)

	_, ok = userHandler.UserFromContext(userHandler.ContextWithUser(req.Context(), nil))
	assert.False(t, ok)
}

func TestTokenFromRequest_LargeBodyStaysIntact(t *testing.T) {
	body := `{"pad":"` + strings.Repeat("x", 2<<20) + `","token":"from-body"}`

	req := httptest.NewRequest(http.MethodPost, "/logout", strings.NewReader(body))
	req.Header.Set(userHandler.TokenHeader, "from-header")

	assert.Equal(t, "from-header", userHandler.TokenFromRequest(req))

	rest, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.Len(t, rest, len(body))
	assert.True(t, body == string(rest), "body must be replayed in full")
	require.NoError(t, req.Body.Close())
}
