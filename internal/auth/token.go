package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"plantstation/internal/models"
)

// Purpose binds a one-shot action token to the endpoint allowed to consume
// it, so a live activation link can not be replayed against the password
// reset flow.
type Purpose string

const (
	PurposeActivate Purpose = "activate"
	PurposeReset    Purpose = "reset"
)

var (
	ErrTokenInvalid = errors.New("token invalid")
	ErrTokenExpired = errors.New("token expired")
)

type TokenService struct {
	secret          []byte
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
}

type Claims struct {
	UserID  int64   `json:"uid"`
	Purpose Purpose `json:"purpose,omitempty"`
	jwt.RegisteredClaims
}

type TokenPair struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

func NewTokenService(secret string, accessTTL, refreshTTL time.Duration) *TokenService {
	return &TokenService{
		secret:          []byte(secret),
		accessTokenTTL:  accessTTL,
		refreshTokenTTL: refreshTTL,
	}
}

func (s *TokenService) GenerateTokenPair(user *models.User) (*TokenPair, string, error) {
	accessExpiry := time.Now().Add(s.accessTokenTTL)
	accessClaims := Claims{
		UserID: user.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(accessExpiry),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   fmt.Sprintf("%d", user.ID),
		},
	}

	accessToken := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims)
	accessTokenString, err := accessToken.SignedString(s.secret)
	if err != nil {
		return nil, "", fmt.Errorf("signing access token: %w", err)
	}

	refreshTokenRaw, err := generateSecureToken(32)
	if err != nil {
		return nil, "", fmt.Errorf("generating refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  accessTokenString,
		RefreshToken: refreshTokenRaw,
		ExpiresAt:    accessExpiry,
	}, hashToken(refreshTokenRaw), nil
}

func (s *TokenService) ValidateAccessToken(tokenString string) (*Claims, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return nil, err
	}

	// An action token must never double as a session credential.
	if claims.Purpose != "" {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

// IssueActionToken mints a signed, self-expiring token carrying a user id and
// a purpose. Pure computation; nothing is stored server-side.
func (s *TokenService) IssueActionToken(userID int64, purpose Purpose, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:  userID,
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   fmt.Sprintf("%d", userID),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing %s token: %w", purpose, err)
	}
	return signed, nil
}

// VerifyActionToken fails closed: any signature mismatch, malformed payload
// or wrong purpose yields ErrTokenInvalid; an elapsed TTL yields
// ErrTokenExpired. A partial identity is never returned.
func (s *TokenService) VerifyActionToken(tokenString string, purpose Purpose) (int64, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return 0, err
	}

	if claims.Purpose != purpose || claims.UserID == 0 {
		return 0, ErrTokenInvalid
	}

	return claims.UserID, nil
}

func (s *TokenService) parse(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

func (s *TokenService) RefreshTokenExpiry() time.Time {
	return time.Now().Add(s.refreshTokenTTL)
}

func HashRefreshToken(token string) string {
	return hashToken(token)
}

func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

func generateSecureToken(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
