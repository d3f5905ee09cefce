// internal/auth/session.go
package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleOrganizer is the only role tokens are issued for today.
const RoleOrganizer = "organizer"

var ErrWrongRoom = errors.New("token was issued for another room")

// OrganizerClaims identify the organizer of one room.
type OrganizerClaims struct {
	RoomCode  string `json:"room"`
	SessionID string `json:"sid"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies organizer tokens with an ed25519 key pair.
// The organizer receives a token on game creation and presents it to take
// the room back after a dropped connection.
type TokenIssuer struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	// ttl of zero means tokens never expire.
	ttl time.Duration
	now func() time.Time
}

// NewTokenIssuer generates a fresh ed25519 key pair at runtime.
func NewTokenIssuer(ttl time.Duration) (*TokenIssuer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ed25519 key pair: %w", err)
	}
	return &TokenIssuer{privateKey: priv, publicKey: pub, ttl: ttl, now: time.Now}, nil
}

// NewTokenIssuerFromPath reads raw ed25519 private/public keys from file.
func NewTokenIssuerFromPath(privatePath, publicPath string, ttl time.Duration) (*TokenIssuer, error) {
	privateKeyData, err := os.ReadFile(privatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key file: %w", err)
	}
	publicKeyData, err := os.ReadFile(publicPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key file: %w", err)
	}
	if len(privateKeyData) != ed25519.PrivateKeySize || len(publicKeyData) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid ed25519 key sizes (%d, %d)", len(privateKeyData), len(publicKeyData))
	}
	return &TokenIssuer{
		privateKey: ed25519.PrivateKey(privateKeyData),
		publicKey:  ed25519.PublicKey(publicKeyData),
		ttl:        ttl,
		now:        time.Now,
	}, nil
}

// CreateOrganizerToken signs a token granting the organizer role of roomCode.
func (ti *TokenIssuer) CreateOrganizerToken(roomCode, sessionID string) (string, error) {
	now := ti.now()
	claims := OrganizerClaims{
		RoomCode:  roomCode,
		SessionID: sessionID,
		Role:      RoleOrganizer,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  sessionID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ti.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ti.ttl))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(ti.privateKey)
}

// AuthenticateOrganizerToken verifies tokenString and checks it grants the organizer role of roomCode.
func (ti *TokenIssuer) AuthenticateOrganizerToken(tokenString, roomCode string) (*OrganizerClaims, error) {
	claims := &OrganizerClaims{}
	t, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ti.publicKey, nil
	}, jwt.WithTimeFunc(ti.now))
	if err != nil {
		return nil, fmt.Errorf("jwt parse error: %w", err)
	}
	if !t.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Role != RoleOrganizer {
		return nil, fmt.Errorf("unexpected role %q", claims.Role)
	}
	if claims.RoomCode != roomCode {
		return nil, ErrWrongRoom
	}
	return claims, nil
}
