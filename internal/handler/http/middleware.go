package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/hlog"
	"github.com/vasiliy-maslov/account-service/internal/metrics"
	"github.com/vasiliy-maslov/account-service/internal/user"
)

// TokenHeader is the canonical header carrying a session token.
const TokenHeader = "x-access-token"

const maxTokenBodyBytes = 1 << 20

// Authenticator resolves a presented token to its user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*user.User, error)
}

type userContextKey struct{}

// UserFromContext returns the user attached by the gate, if any.
func UserFromContext(ctx context.Context) (*user.User, bool) {
	u, ok := ctx.Value(userContextKey{}).(*user.User)
	return u, ok && u != nil
}

func ContextWithUser(ctx context.Context, u *user.User) context.Context {
	return context.WithValue(ctx, userContextKey{}, u)
}

// Gate guards routes with the token lifecycle of the account service.
type Gate struct {
	auth    Authenticator
	metrics *metrics.Metrics
}

func NewGate(auth Authenticator, m *metrics.Metrics) *Gate {
	return &Gate{auth: auth, metrics: m}
}

// RequireAuth rejects the request with 401 unless it carries a token that
// resolves to a user.
func (g *Gate) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := TokenFromRequest(r)
		if token == "" {
			g.metrics.RecordAuth(metrics.OpGate, metrics.OutcomeRejected)
			respondWithError(w, http.StatusUnauthorized, "A token is required for authentication")
			return
		}

		resolved, err := g.auth.Authenticate(r.Context(), token)
		if err != nil {
			g.metrics.RecordAuth(metrics.OpGate, outcomeOf(err))
			if errors.Is(err, user.ErrUnauthorized) {
				hlog.FromRequest(r).Debug().Err(err).Msg("Rejected token")
				respondWithError(w, http.StatusUnauthorized, "Invalid Token")
				return
			}
			hlog.FromRequest(r).Error().Err(err).Msg("Failed to authenticate token")
			respondWithError(w, http.StatusInternalServerError, "Internal server error")
			return
		}

		g.metrics.RecordAuth(metrics.OpGate, metrics.OutcomeSuccess)
		next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), resolved)))
	})
}

// OptionalAuth attaches the user when the token resolves and otherwise lets the
// request through anonymously.
func (g *Gate) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := TokenFromRequest(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		resolved, err := g.auth.Authenticate(r.Context(), token)
		if err != nil {
			g.metrics.RecordAuth(metrics.OpGate, outcomeOf(err))
			hlog.FromRequest(r).Debug().Err(err).Msg("Continuing anonymously")
			next.ServeHTTP(w, r)
			return
		}

		g.metrics.RecordAuth(metrics.OpGate, metrics.OutcomeSuccess)
		next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), resolved)))
	})
}

// TokenFromRequest looks for a token in the query string, the JSON body, the
// x-access-token header and a bearer Authorization header, in that order.
// The body stays readable for the next handler.
func TokenFromRequest(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	if token := tokenFromBody(r); token != "" {
		return token
	}
	if token := strings.TrimSpace(r.Header.Get(TokenHeader)); token != "" {
		return token
	}
	if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
		return token
	}
	return ""
}

func tokenFromBody(r *http.Request) string {
	if r.Body == nil || r.Body == http.NoBody {
		return ""
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxTokenBodyBytes))
	r.Body = peekedBody{
		Reader: io.MultiReader(bytes.NewReader(body), r.Body),
		Closer: r.Body,
	}
	if err != nil || len(body) == 0 || len(body) == maxTokenBodyBytes {
		return ""
	}

	var payload struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return payload.Token
}

// peekedBody replays the bytes already read ahead of the unread remainder.
type peekedBody struct {
	io.Reader
	io.Closer
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
