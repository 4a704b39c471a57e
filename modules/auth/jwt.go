package auth

import (
	"fmt"
	"time"

	"github.com/Deepreo/kronos/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// TokenValidator turns a bearer token into an Operator.
type TokenValidator interface {
	ValidateToken(token string) (*Operator, error)
}

// Claims is the JWT payload issued to operators.
type Claims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// JWTTokenProvider issues and validates HS256 operator tokens.
type JWTTokenProvider struct {
	secretKey  []byte
	expiration time.Duration
	issuer     string
	clock      clockwork.Clock
}

var _ TokenValidator = (*JWTTokenProvider)(nil)

func NewJWTTokenProvider(cfg Config, clock clockwork.Clock) (*JWTTokenProvider, error) {
	cfg.Enabled = true
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	expiration, err := cfg.expiration()
	if err != nil {
		return nil, err
	}
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &JWTTokenProvider{
		secretKey:  []byte(cfg.SecretKey),
		expiration: expiration,
		issuer:     cfg.Issuer,
		clock:      clock,
	}, nil
}

// GenerateToken signs a token for subject carrying roles.
func (p *JWTTokenProvider) GenerateToken(subject string, roles ...string) (string, error) {
	if subject == "" {
		return "", errors.ValidationError(errors.New("token subject cannot be empty"))
	}
	now := p.clock.Now()
	claims := Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(p.expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    p.issuer,
			Subject:   subject,
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(p.secretKey)
	if err != nil {
		return "", errors.AppError(fmt.Errorf("sign token: %w", err))
	}
	return signed, nil
}

func (p *JWTTokenProvider) ValidateToken(tokenString string) (*Operator, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return p.secretKey, nil
	},
		jwt.WithIssuer(p.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.clock.Now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	op := &Operator{
		Subject: claims.Subject,
		Roles:   claims.Roles,
		TokenID: claims.ID,
	}
	if claims.IssuedAt != nil {
		op.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		op.ExpiresAt = claims.ExpiresAt.Time
	}
	return op, nil
}
