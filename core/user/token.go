package user

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"

	"github.com/trezcool/schoolerp/core"
)

const tokenAudience = "schoolerp"

var NowFunc = time.Now // mockable

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	Email string   `json:"email,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

// User returns the principal the claims were issued for.
func (c Claims) User() User {
	return User{ID: c.Subject, Email: c.Email, Roles: c.Roles}
}

func NewClaims(conf *core.Config, usr User, ttl time.Duration) *Claims {
	now := NowFunc()
	if ttl <= 0 {
		ttl = conf.Server.JWTExpirationDelta
	}
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   usr.ID,
			Audience:  tokenAudience,
			ExpiresAt: now.Add(ttl).Unix(),
			IssuedAt:  now.Unix(),
		},
		Email: usr.Email,
		Roles: usr.Roles,
	}
}

// GenerateToken generates a signed (HS256) JWT token string for usr, valid for ttl
// (zero: the configured JWT expiration delta).
func GenerateToken(conf *core.Config, usr User, ttl time.Duration) (string, error) {
	if usr.ID == "" {
		return "", errors.New("token subject is required")
	}
	if err := ValidateRoles(usr.Roles); err != nil {
		return "", err
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, NewClaims(conf, usr, ttl))
	ss, err := token.SignedString([]byte(conf.SecretKey))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

// ParseToken verifies a token string generated by GenerateToken.
func ParseToken(conf *core.Config, tokenStr string) (*Claims, error) {
	claims := new(Claims)
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(conf.SecretKey), nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "parsing token")
	}
	return claims, nil
}
