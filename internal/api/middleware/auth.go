package middleware

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"provinator.io/provinator/internal/config"
	"provinator.io/provinator/internal/pkg/cache"
)

// Claims are the token claims Provinator cares about. Roles come either
// from a top-level "roles" claim or from "realm_access.roles"
// (Keycloak layout).
type Claims struct {
	Roles       []string `json:"roles"`
	RealmAccess struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
	jwt.RegisteredClaims
}

func (c *Claims) roleList() []string {
	if len(c.Roles) > 0 {
		return c.Roles
	}
	return c.RealmAccess.Roles
}

type jwksDocument struct {
	Keys []struct {
		Kty string `json:"kty"`
		Kid string `json:"kid"`
		Use string `json:"use"`
		N   string `json:"n"`
		E   string `json:"e"`
	} `json:"keys"`
}

// Authenticator validates RS256 bearer tokens against a JWKS endpoint.
// The key set is cached and refetched on TTL expiry, so IdP key rotation
// needs no restart.
type Authenticator struct {
	cfg  config.AuthConfig
	keys *cache.Fetcher[map[string]*rsa.PublicKey]
}

// NewAuthenticator builds an Authenticator. Returns nil when no JWKS URL
// is configured; the router then runs unauthenticated (lab mode).
func NewAuthenticator(cfg config.AuthConfig) *Authenticator {
	if cfg.JWKSURL == "" {
		return nil
	}
	a := &Authenticator{cfg: cfg}
	a.keys = cache.NewFetcher("jwks", cfg.JWKSTTL, a.fetchKeys)
	return a
}

func (a *Authenticator) fetchKeys(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.JWKSURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch jwks: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch jwks: HTTP %d", resp.StatusCode)
	}

	var doc jwksDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode jwks: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" || (k.Use != "" && k.Use != "sig") {
			continue
		}
		pub, err := parseRSAKey(k.N, k.E)
		if err != nil {
			return nil, fmt.Errorf("parse jwks key %s: %w", k.Kid, err)
		}
		keys[k.Kid] = pub
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("jwks document contains no RSA signing keys")
	}
	return keys, nil
}

func parseRSAKey(n, e string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, fmt.Errorf("modulus: %w", err)
	}
	eb, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, fmt.Errorf("exponent: %w", err)
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nb),
		E: int(new(big.Int).SetBytes(eb).Int64()),
	}, nil
}

// Validate parses and verifies one bearer token.
func (a *Authenticator) Validate(ctx context.Context, tokenString string) (*Claims, error) {
	keys, err := a.keys.Get(ctx)
	if err != nil {
		return nil, err
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(a.cfg.Issuer),
	}
	if a.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(a.cfg.Audience))
	}

	claims := &Claims{}
	_, err = jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		kid, _ := token.Header["kid"].(string)
		if key, ok := keys[kid]; ok {
			return key, nil
		}
		// Unknown kid: single-key sets still validate after rotation lag.
		if len(keys) == 1 {
			for _, key := range keys {
				return key, nil
			}
		}
		return nil, fmt.Errorf("no key for kid %q", kid)
	}, opts...)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// Middleware returns the gin handler enforcing bearer auth. A nil
// Authenticator yields a pass-through.
func (a *Authenticator) Middleware() gin.HandlerFunc {
	if a == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    "AUTH_FAILED",
				"message": "missing or malformed authorization header",
			})
			return
		}

		claims, err := a.Validate(c.Request.Context(), parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    "TOKEN_INVALID",
				"message": "invalid token",
			})
			return
		}

		roles := claims.roleList()
		c.Set("subject", claims.Subject)
		c.Set("roles", roles)
		c.Request = c.Request.WithContext(
			setAuthContext(c.Request.Context(), claims.Subject, roles),
		)
		c.Next()
	}
}

// RequireRole enforces a role on the request. With auth disabled (nil
// Authenticator) the check is skipped.
func (a *Authenticator) RequireRole(role string) gin.HandlerFunc {
	if a == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		roles := GetRoles(c.Request.Context())
		if !slices.Contains(roles, role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code":    "FORBIDDEN",
				"message": "insufficient role",
			})
			return
		}
		c.Next()
	}
}
