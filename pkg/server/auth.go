package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/crystal-mush/mushkit/pkg/gamedb"
	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidCredentials is returned by AuthService.Login for any failure
// that should not reveal whether the account exists.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Claims holds the JWT claims for an authenticated portal session.
type Claims struct {
	PlayerID   int64        `json:"player_id"`
	PlayerName string       `json:"player_name"`
	CharRef    gamedb.DBRef `json:"char_ref"`
	jwt.RegisteredClaims
}

// AuthService issues and checks portal tokens bound to player accounts.
type AuthService struct {
	game   *Game
	jwtKey []byte
	expiry time.Duration
}

// NewAuthService creates an auth service. If jwtSecret is empty, a random
// 32-byte key is generated.
func NewAuthService(game *Game, jwtSecret string, expirySeconds int) *AuthService {
	var key []byte
	if jwtSecret != "" {
		key = []byte(jwtSecret)
	} else {
		key = make([]byte, 32)
		rand.Read(key)
	}
	expiry := 24 * time.Hour
	if expirySeconds > 0 {
		expiry = time.Duration(expirySeconds) * time.Second
	}
	return &AuthService{game: game, jwtKey: key, expiry: expiry}
}

// Login authenticates a player and returns a signed token.
func (a *AuthService) Login(ctx context.Context, name, password string) (string, error) {
	player, err := a.game.Accounts.Authenticate(ctx, name, password)
	if err != nil {
		return "", ErrInvalidCredentials
	}
	return a.issue(player)
}

func (a *AuthService) issue(player *gamedb.Player) (string, error) {
	now := time.Now()
	claims := Claims{
		PlayerID:   player.ID,
		PlayerName: player.Name,
		CharRef:    player.Character,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", player.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.expiry)),
			Issuer:    "mushkit",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.jwtKey)
}

// ValidateToken parses and validates a token string.
func (a *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.jwtKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// RefreshToken issues a token with a fresh expiry for a still-valid one.
func (a *AuthService) RefreshToken(tokenStr string) (string, error) {
	claims, err := a.ValidateToken(tokenStr)
	if err != nil {
		return "", err
	}
	now := time.Now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(a.expiry))
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.jwtKey)
}

// PlayerFor loads the account named by validated claims.
func (a *AuthService) PlayerFor(ctx context.Context, claims *Claims) (*gamedb.Player, error) {
	return a.game.Accounts.PlayerByID(ctx, claims.PlayerID)
}

// GenerateJWTSecret generates a random hex-encoded secret suitable for jwt_secret config.
func GenerateJWTSecret() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}
