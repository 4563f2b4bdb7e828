package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"

	"settlement/internal/domain/auth"
)

// TokenVerifier authenticates requests by verifying bearer tokens minted by
// the identity layer. Only verification happens here; token issuance,
// refresh, and revocation belong to that layer.
type TokenVerifier struct {
	secret []byte
}

// NewTokenVerifier creates a TokenVerifier with the shared HMAC secret.
func NewTokenVerifier(secret []byte) *TokenVerifier {
	return &TokenVerifier{secret: secret}
}

// identityClaims are the token claims the settlement core consumes.
type identityClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// Verify parses and validates a raw bearer token, returning the identity
// it asserts.
func (v *TokenVerifier) Verify(raw string) (auth.Identity, error) {
	var claims identityClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return v.secret, nil
	})
	if err != nil {
		return auth.Identity{}, errors.Wrap(err, "parse token")
	}

	if claims.Subject == "" {
		return auth.Identity{}, errors.New("token missing subject")
	}
	role, err := auth.ParseRole(claims.Role)
	if err != nil {
		return auth.Identity{}, err
	}

	return auth.Identity{UserID: claims.Subject, Role: role}, nil
}

// Middleware verifies the Authorization bearer token and injects the
// resulting identity into the request context.
func (v *TokenVerifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		id, err := v.Verify(raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
	})
}

// identity extracts the authenticated identity, which the middleware
// guarantees for every routed request.
func identity(r *http.Request) (auth.Identity, bool) {
	return auth.IdentityFromContext(r.Context())
}
