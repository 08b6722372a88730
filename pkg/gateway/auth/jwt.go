package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid session token")

// Viewer is whoever is asking for a video. The zero value is an anonymous
// visitor.
type Viewer struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	Member bool   `json:"member"`
	Admin  bool   `json:"admin"`
}

func (v Viewer) Authenticated() bool {
	return v.ID != "" || v.Email != ""
}

type Claims struct {
	jwt.RegisteredClaims
	Email  string `json:"email"`
	Member bool   `json:"membership"`
}

// JWTManager issues and validates HS256 session tokens shared with the web
// front end.
type JWTManager struct {
	signingKey []byte
	issuer     string
	ttl        time.Duration
	nowFunc    func() time.Time
}

func NewJWTManager(secret, issuer string, ttl time.Duration) (*JWTManager, error) {
	if len(secret) < 16 {
		return nil, errors.New("jwt secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &JWTManager{
		signingKey: []byte(secret),
		issuer:     issuer,
		ttl:        ttl,
		nowFunc:    time.Now,
	}, nil
}

func (m *JWTManager) IssueToken(v Viewer) (string, error) {
	now := m.nowFunc()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   v.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
		Email:  v.Email,
		Member: v.Member,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.signingKey)
}

// ValidateToken returns the viewer a token was issued for. Admin is never
// taken from the token; callers decide it from the allowlist.
func (m *JWTManager) ValidateToken(ctx context.Context, tokenString string) (Viewer, error) {
	if tokenString == "" {
		return Viewer{}, ErrInvalidToken
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return m.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithTimeFunc(m.nowFunc),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Viewer{}, errors.Join(ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return Viewer{}, ErrInvalidToken
	}

	return Viewer{ID: claims.Subject, Email: claims.Email, Member: claims.Member}, nil
}
