package middleware

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/prohmpiriya/event-registration/pkg/response"
)

const (
	// ContextKeyUserID is the gin context key holding the authenticated user id
	ContextKeyUserID = "user_id"
	// ContextKeyEmail is the gin context key holding the token email, if any
	ContextKeyEmail = "email"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Claims are the identity claims this service reads from a token
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// JWTConfig configures token validation and minting
type JWTConfig struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

// TokenValidator parses and validates bearer tokens
type TokenValidator struct {
	config JWTConfig
	parser *jwt.Parser
}

// NewTokenValidator creates a validator accepting HS256 tokens
func NewTokenValidator(cfg JWTConfig) *TokenValidator {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	return &TokenValidator{config: cfg, parser: jwt.NewParser(opts...)}
}

// Validate returns the claims of a valid token
func (v *TokenValidator) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := v.parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(v.config.Secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Issue signs a token for userID. Used by the CLI and tests.
func (v *TokenValidator) Issue(userID, email string) (string, error) {
	now := time.Now()
	ttl := v.config.TTL
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	claims := Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    v.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(v.config.Secret))
}

// Auth rejects requests without a valid bearer token and stores the user id
// in the gin context.
func Auth(v *TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := bearerToken(c.GetHeader("Authorization"))
		if err != nil {
			response.Unauthorized(c, "Not authorized, no token")
			return
		}

		claims, err := v.Validate(raw)
		if err != nil {
			if errors.Is(err, ErrTokenExpired) {
				response.Unauthorized(c, "Not authorized, token expired")
				return
			}
			response.Unauthorized(c, "Not authorized, token failed")
			return
		}

		c.Set(ContextKeyUserID, claims.UserID)
		if claims.Email != "" {
			c.Set(ContextKeyEmail, claims.Email)
		}
		c.Next()
	}
}

// GetUserID returns the authenticated user id
func GetUserID(c *gin.Context) (string, bool) {
	id := c.GetString(ContextKeyUserID)
	return id, id != ""
}

func bearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", ErrMissingToken
	}
	return strings.TrimSpace(token), nil
}
