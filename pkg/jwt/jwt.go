package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	issuer        = "garage-backend"
	defaultSecret = "default-secret-key-change-this-in-production"
	defaultExpiry = 24 * time.Hour
	refreshWindow = time.Hour
)

var ErrInvalidToken = errors.New("invalid token")

type JWTUtil struct {
	secretKey []byte
	expiry    time.Duration
	now       func() time.Time
}

type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// NewJWTUtil builds a signer from the configured secret and expiry. An empty
// secret or an unparsable expiry falls back to development defaults.
func NewJWTUtil(secret, expiry string) *JWTUtil {
	if secret == "" {
		secret = defaultSecret
	}

	d, err := time.ParseDuration(expiry)
	if err != nil || d <= 0 {
		d = defaultExpiry
	}

	return &JWTUtil{
		secretKey: []byte(secret),
		expiry:    d,
		now:       time.Now,
	}
}

func (j *JWTUtil) Expiry() time.Duration { return j.expiry }

func (j *JWTUtil) GenerateToken(userID, email, role string) (string, error) {
	now := j.now()
	claims := &Claims{
		UserID: userID,
		Email:  email,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   userID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secretKey)
}

func (j *JWTUtil) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return j.secretKey, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(j.now))
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrInvalidToken
}

// RefreshToken reissues a token that expires within the refresh window and
// returns any other valid token unchanged.
func (j *JWTUtil) RefreshToken(tokenString string) (string, error) {
	claims, err := j.ValidateToken(tokenString)
	if err != nil {
		return "", err
	}

	if claims.ExpiresAt.Time.Sub(j.now()) > refreshWindow {
		return tokenString, nil
	}
	return j.GenerateToken(claims.UserID, claims.Email, claims.Role)
}
