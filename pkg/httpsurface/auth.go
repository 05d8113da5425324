package httpsurface

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// JWTAuth validates bearer tokens against a remote JWKS, grounded on the
// teacher's pkg/auth.JWTValidator (auto-refreshed JWKS cache, issuer and
// audience pinning).
type JWTAuth struct {
	jwksURL  string
	issuer   string
	audience string
	cache    *jwk.Cache
}

// NewJWTAuth creates a validator that fetches and caches jwksURL, refreshing
// at most every 15 minutes.
func NewJWTAuth(ctx context.Context, jwksURL, issuer, audience string) (*JWTAuth, error) {
	cache := jwk.NewCache(ctx)
	if err := cache.Register(jwksURL, jwk.WithMinRefreshInterval(15*time.Minute)); err != nil {
		return nil, err
	}
	if _, err := cache.Refresh(ctx, jwksURL); err != nil {
		return nil, err
	}
	return &JWTAuth{jwksURL: jwksURL, issuer: issuer, audience: audience, cache: cache}, nil
}

type claimsKey struct{}

// Middleware extracts and validates a bearer token, rejecting the request
// with 401 on any failure and otherwise attaching the parsed token to the
// request context.
func (a *JWTAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		tokenString := strings.TrimPrefix(header, "Bearer ")
		if header == "" || tokenString == header {
			http.Error(w, `{"error":"missing or malformed Authorization header"}`, http.StatusUnauthorized)
			return
		}

		keyset, err := a.cache.Get(r.Context(), a.jwksURL)
		if err != nil {
			http.Error(w, `{"error":"auth provider unavailable"}`, http.StatusServiceUnavailable)
			return
		}

		token, err := jwt.Parse([]byte(tokenString),
			jwt.WithKeySet(keyset),
			jwt.WithValidate(true),
			jwt.WithIssuer(a.issuer),
			jwt.WithAudience(a.audience),
		)
		if err != nil {
			http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, token)))
	})
}

// Subject returns the authenticated caller's subject claim, or "" if the
// request was never authenticated.
func Subject(r *http.Request) string {
	token, ok := r.Context().Value(claimsKey{}).(jwt.Token)
	if !ok {
		return ""
	}
	return token.Subject()
}
