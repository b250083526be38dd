package session

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"securefiles/server/internal/model"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

var ErrInvalidSignature = errors.New("invalid_signature")

const (
	DefaultSessionTTL = 24 * time.Hour
	EmailVerifyMaxAge = time.Hour

	audienceSession = "session"
	audienceEmail   = "email-verify"
)

type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Signer issues and checks HS256 tokens. Session and email-verification
// tokens use different keys, both derived from one secret.
type Signer struct {
	sessionKey []byte
	emailKey   []byte
	sessionTTL time.Duration
	now        func() time.Time
}

// NewSigner derives signing keys from secret. An empty secret gets a random
// one, so tokens do not survive a restart.
func NewSigner(secret string, sessionTTL time.Duration) (*Signer, error) {
	master := []byte(secret)
	if len(master) == 0 {
		master = make([]byte, 32)
		if _, err := rand.Read(master); err != nil {
			return nil, fmt.Errorf("generate secret: %w", err)
		}
	}
	if sessionTTL <= 0 {
		sessionTTL = DefaultSessionTTL
	}

	sessionKey, err := deriveKey(master, audienceSession)
	if err != nil {
		return nil, err
	}
	emailKey, err := deriveKey(master, audienceEmail)
	if err != nil {
		return nil, err
	}
	return &Signer{
		sessionKey: sessionKey,
		emailKey:   emailKey,
		sessionTTL: sessionTTL,
		now:        time.Now,
	}, nil
}

func deriveKey(master []byte, purpose string) ([]byte, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, nil, []byte("securefiles "+purpose)), key); err != nil {
		return nil, fmt.Errorf("derive %s key: %w", purpose, err)
	}
	return key, nil
}

func (s *Signer) SessionTTL() time.Duration { return s.sessionTTL }

func (s *Signer) sign(key []byte, audience, subject, role string, ttl time.Duration) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(ttl)
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", audience, err)
	}
	return signed, exp, nil
}

func (s *Signer) parse(key []byte, audience, tokenStr string) (*Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		return key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidSignature
	}
	return &claims, nil
}

// IssueSession returns a signed session token for u and its expiry.
func (s *Signer) IssueSession(u model.User) (string, time.Time, error) {
	return s.sign(s.sessionKey, audienceSession, u.ID, string(u.Role), s.sessionTTL)
}

// ParseSession returns the user id and role carried by a session token.
func (s *Signer) ParseSession(tokenStr string) (string, model.Role, error) {
	claims, err := s.parse(s.sessionKey, audienceSession, tokenStr)
	if err != nil {
		return "", "", err
	}
	return claims.Subject, model.ParseRole(claims.Role), nil
}

// SignEmail binds email into a verification token valid for EmailVerifyMaxAge.
func (s *Signer) SignEmail(email string) (string, error) {
	tok, _, err := s.sign(s.emailKey, audienceEmail, email, "", EmailVerifyMaxAge)
	return tok, err
}

// VerifyEmail returns the email bound by SignEmail.
func (s *Signer) VerifyEmail(tokenStr string) (string, error) {
	claims, err := s.parse(s.emailKey, audienceEmail, tokenStr)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}
