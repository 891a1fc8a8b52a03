package rpc

import (
	"errors"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// AuthConfig controls bearer-token checks on write methods.
type AuthConfig struct {
	Enabled    bool
	HMACSecret string
	Issuer     string
	Audience   string
	ClockSkew  time.Duration
}

// Authenticator validates HS256 JWTs.
type Authenticator struct {
	cfg    AuthConfig
	secret []byte
}

// NewAuthenticator builds an authenticator. A zero ClockSkew defaults to two
// minutes.
func NewAuthenticator(cfg AuthConfig) *Authenticator {
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 2 * time.Minute
	}
	return &Authenticator{cfg: cfg, secret: []byte(strings.TrimSpace(cfg.HMACSecret))}
}

// Authorize returns nil when auth is disabled or the request carries a valid
// token.
func (a *Authenticator) Authorize(r *http.Request) *RPCError {
	if a == nil || !a.cfg.Enabled {
		return nil
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return unauthorized("missing Authorization header")
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return unauthorized("Authorization header must use Bearer scheme")
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return unauthorized("missing bearer token")
	}
	claims, err := a.parseToken(token)
	if err != nil {
		return unauthorized("invalid token")
	}
	if err := validateClaims(claims, a.cfg.Issuer, a.cfg.Audience); err != nil {
		return unauthorized("invalid token")
	}
	return nil
}

func unauthorized(message string) *RPCError {
	return &RPCError{Code: codeUnauthorized, Message: message, status: http.StatusUnauthorized}
}

func (a *Authenticator) parseToken(tokenString string) (jwt.MapClaims, error) {
	if len(a.secret) == 0 {
		return nil, errors.New("auth secret not configured")
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwt.WithLeeway(a.cfg.ClockSkew))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token invalid")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("claims not map")
	}
	return claims, nil
}

func validateClaims(claims jwt.MapClaims, issuer, audience string) error {
	if issuer != "" {
		if value, ok := claims["iss"].(string); !ok || value != issuer {
			return errors.New("issuer mismatch")
		}
	}
	if audience == "" {
		return nil
	}
	switch val := claims["aud"].(type) {
	case string:
		if val == audience {
			return nil
		}
	case []interface{}:
		for _, entry := range val {
			if s, ok := entry.(string); ok && s == audience {
				return nil
			}
		}
	}
	return errors.New("audience mismatch")
}
