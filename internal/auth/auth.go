package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"chatsync/internal/domain"
	chatsync_errors "chatsync/pkg/errors"
)

// Claims carried by an access token. Identity is provisioned by the token
// endpoint; the rest of the API only ever trusts what the token says.
type Claims struct {
	UserID   string `json:"sub"`
	Name     string `json:"name"`
	DeviceID string `json:"did,omitempty"`
	jwt.RegisteredClaims
}

// Service mints and parses the stateless HS256 access tokens the HTTP and
// WebSocket surfaces authenticate with.
type Service struct {
	secret []byte
	ttl    time.Duration
}

func NewService(secret string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{secret: []byte(secret), ttl: ttl}
}

// Mint issues a token for the given user.
func (s *Service) Mint(user domain.User, deviceID string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.ttl)

	claims := Claims{
		UserID:   user.ID,
		Name:     user.Name,
		DeviceID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Parse validates a token and returns its claims.
func (s *Service) Parse(tokenString string) (Claims, error) {
	if tokenString == "" {
		return Claims{}, chatsync_errors.ErrUnauthorized
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, chatsync_errors.ErrUnauthorized
		}
		return s.secret, nil
	})
	if err != nil {
		return Claims{}, chatsync_errors.ErrUnauthorized
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, chatsync_errors.ErrUnauthorized
	}
	return *claims, nil
}

// Session builds the identity object the rest of the request pipeline runs
// with.
func (c Claims) Session() domain.Session {
	return domain.Session{
		User:     domain.User{ID: c.UserID, Name: c.Name, IsCurrentUser: true},
		DeviceID: c.DeviceID,
	}
}
