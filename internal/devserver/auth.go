package devserver

import (
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"ojclient/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const tokenTypeAccess = "access"

type tokenClaims struct {
	TokenType string `json:"typ"`
	// Epoch lets the server invalidate every access token issued so far.
	Epoch uint64 `json:"epoch"`
	jwt.RegisteredClaims
}

type refreshGrant struct {
	username  string
	expiresAt time.Time
}

// tokenPair mirrors the login and refresh reply.
type tokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// authManager issues HS256 access tokens and opaque rotating refresh tokens.
type authManager struct {
	cfg   JWTConfig
	users map[string][]byte
	now   func() time.Time

	mu      sync.Mutex
	epoch   uint64
	refresh map[string]refreshGrant
}

func newAuthManager(cfg JWTConfig, users []UserConfig) *authManager {
	m := &authManager{
		cfg:     cfg,
		users:   make(map[string][]byte, len(users)),
		now:     time.Now,
		refresh: make(map[string]refreshGrant),
	}
	for _, u := range users {
		m.users[u.Username] = []byte(u.PasswordHash)
	}
	return m
}

// Login checks the password and issues a fresh pair.
func (m *authManager) Login(username, password string) (tokenPair, error) {
	hash, ok := m.users[username]
	if !ok {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return tokenPair{}, errors.New(errors.LoginFailed).WithMessage("No active account found with the given credentials")
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return tokenPair{}, errors.New(errors.LoginFailed).WithMessage("No active account found with the given credentials")
	}
	return m.issue(username)
}

// Refresh consumes a refresh token and issues a new pair.
func (m *authManager) Refresh(raw string) (tokenPair, error) {
	m.mu.Lock()
	grant, ok := m.refresh[raw]
	delete(m.refresh, raw)
	m.mu.Unlock()
	if !ok || m.now().After(grant.expiresAt) {
		return tokenPair{}, errors.New(errors.TokenInvalid).WithMessage("Token is invalid or expired")
	}
	return m.issue(grant.username)
}

// Authenticate validates an access token and returns its subject.
func (m *authManager) Authenticate(raw string) (string, error) {
	claims, err := m.parse(raw)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// ExpireAccessTokens invalidates every access token issued so far.
func (m *authManager) ExpireAccessTokens() {
	m.mu.Lock()
	m.epoch++
	m.mu.Unlock()
}

func (m *authManager) issue(username string) (tokenPair, error) {
	access, err := m.signAccess(username)
	if err != nil {
		return tokenPair{}, err
	}
	refresh := uuid.NewString()
	m.mu.Lock()
	m.refresh[refresh] = refreshGrant{username: username, expiresAt: m.now().Add(m.cfg.RefreshTTL)}
	m.mu.Unlock()
	return tokenPair{Access: access, Refresh: refresh}, nil
}

func (m *authManager) signAccess(username string) (string, error) {
	m.mu.Lock()
	epoch := m.epoch
	m.mu.Unlock()

	now := m.now()
	claims := tokenClaims{
		TokenType: tokenTypeAccess,
		Epoch:     epoch,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			Issuer:    m.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.cfg.AccessTTL)),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	raw, err := token.SignedString([]byte(m.cfg.Secret))
	if err != nil {
		return "", errors.Wrap(fmt.Errorf("sign token failed: %w", err), errors.InternalServerError)
	}
	return raw, nil
}

func (m *authManager) parse(raw string) (*tokenClaims, error) {
	invalid := errors.New(errors.TokenInvalid).WithMessage("Given token not valid for any token type")
	if raw == "" {
		return nil, errors.New(errors.Unauthorized).WithMessage("Authentication credentials were not provided.")
	}

	parsed, err := jwt.ParseWithClaims(raw, &tokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(m.cfg.Secret), nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil {
		if stderrors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.New(errors.TokenInvalid).WithMessage("Token is expired")
		}
		return nil, invalid
	}
	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || !parsed.Valid {
		return nil, invalid
	}
	if claims.Issuer != m.cfg.Issuer || claims.TokenType != tokenTypeAccess || claims.Subject == "" {
		return nil, invalid
	}
	m.mu.Lock()
	epoch := m.epoch
	m.mu.Unlock()
	if claims.Epoch != epoch {
		return nil, errors.New(errors.TokenInvalid).WithMessage("Token is expired")
	}
	return claims, nil
}

// dummyHash is a bcrypt hash of a random string.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("ojclient-devserver"), bcrypt.MinCost)

// HashPassword is a helper for writing config files and tests.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
