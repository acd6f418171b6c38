package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"gitdeploy/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

type JWTOptions struct {
	Secret     string
	Algorithm  string
	Issuer     string
	Audience   string
	Expiration time.Duration
	Leeway     time.Duration
}

type JWTAuthenticator struct {
	secret []byte
	method jwt.SigningMethod
	opts   JWTOptions
	now    func() time.Time
}

func NewJWTAuthenticator(opts JWTOptions) (*JWTAuthenticator, error) {
	if opts.Secret == "" {
		return nil, fmt.Errorf("%w: JWT secret is required", domain.ErrConfig)
	}

	method := jwt.GetSigningMethod(opts.Algorithm)
	if _, ok := method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("%w: unsupported JWT algorithm: %s", domain.ErrConfig, opts.Algorithm)
	}

	return &JWTAuthenticator{
		secret: []byte(opts.Secret),
		method: method,
		opts:   opts,
		now:    time.Now,
	}, nil
}

// Validate checks the bearer token in the Authorization header.
func (a *JWTAuthenticator) Validate(header http.Header) (*domain.AuthContext, error) {
	raw, ok := bearerToken(header)
	if !ok {
		return nil, fmt.Errorf("%w: no token provided", domain.ErrUnauthorized)
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{a.method.Alg()}),
		jwt.WithLeeway(a.opts.Leeway),
		jwt.WithIssuer(a.opts.Issuer),
		jwt.WithAudience(a.opts.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}

	return &domain.AuthContext{
		Method: domain.AuthBearer,
		Claims: claims,
	}, nil
}

// GenerateToken issues a token with the standard claims; extra claims
// override them.
func (a *JWTAuthenticator) GenerateToken(extra map[string]any) (string, error) {
	now := a.now()

	claims := jwt.MapClaims{
		"iss": a.opts.Issuer,
		"aud": a.opts.Audience,
		"iat": now.Unix(),
		"exp": now.Add(a.opts.Expiration).Unix(),
	}
	for k, v := range extra {
		claims[k] = v
	}

	token := jwt.NewWithClaims(a.method, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}

func bearerToken(header http.Header) (string, bool) {
	value := strings.TrimSpace(header.Get("Authorization"))
	if value == "" {
		return "", false
	}

	scheme, token, found := strings.Cut(value, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}

	token = strings.TrimSpace(token)
	return token, token != ""
}
