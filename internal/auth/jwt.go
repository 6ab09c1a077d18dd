// Package auth resolves connection identities from signed JWTs.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Tyrowin/roomrelay/internal/chat"
)

// ErrNoSecret is returned when tokens are issued without a signing secret.
var ErrNoSecret = errors.New("jwt secret is not configured")

// Claims is the payload carried by relay tokens.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// JWT authenticates upgrade requests with HS256 tokens. The token is read
// from the "token" query parameter, a Bearer Authorization header or a
// "token" cookie, in that order.
type JWT struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewJWT creates a JWT authenticator. With an empty secret every request is
// treated as anonymous.
func NewJWT(secret, issuer string) *JWT {
	return &JWT{
		secret: []byte(secret),
		issuer: issuer,
		now:    time.Now,
	}
}

// Issue signs a token for username valid for ttl.
func (a *JWT) Issue(username string, ttl time.Duration) (string, error) {
	if len(a.secret) == 0 {
		return "", ErrNoSecret
	}
	if username == "" {
		return "", errors.New("username is required")
	}

	now := a.now()
	claims := &Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// Validate parses raw and checks signature, issuer and expiry.
func (a *JWT) Validate(raw string) (*Claims, error) {
	if len(a.secret) == 0 {
		return nil, ErrNoSecret
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrSignatureInvalid
	}
	if claims.Username == "" {
		claims.Username = claims.Subject
	}
	if claims.Username == "" {
		return nil, errors.New("token has no username")
	}
	return claims, nil
}

// Authenticate implements chat.Authenticator.
func (a *JWT) Authenticate(r *http.Request) (chat.Identity, bool) {
	raw := tokenFromRequest(r)
	if raw == "" {
		return chat.Identity{}, false
	}

	claims, err := a.Validate(raw)
	if err != nil {
		return chat.Identity{}, false
	}

	id := chat.Identity{Name: claims.Username}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	return id, true
}

// IsAuthenticated implements chat.Authenticator. An identity stops being
// valid once its token expires, even mid-session.
func (a *JWT) IsAuthenticated(id chat.Identity) bool {
	if id.Anonymous() {
		return false
	}
	return id.ExpiresAt.IsZero() || a.now().Before(id.ExpiresAt)
}

func tokenFromRequest(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}

	if cookie, err := r.Cookie("token"); err == nil {
		return cookie.Value
	}
	return ""
}
