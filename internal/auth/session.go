// internal/auth/session.go
package auth

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CookieName is the HTTP cookie carrying the session token.
const CookieName = "auth_token"

// privateKey and publicKey sign and verify session JWTs.
var (
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey

	// TokenExpireSec is the JWT lifetime in seconds (0 => no expiry claim).
	TokenExpireSec int
)

// parseTokenExpireTime reads TOKEN_EXPIRE_TIME ("72h", "never", ...) and sets
// TokenExpireSec accordingly.
func parseTokenExpireTime() {
	duration := os.Getenv("TOKEN_EXPIRE_TIME")
	if duration == "never" || duration == "0" || duration == "" {
		TokenExpireSec = 0
		return
	}
	d, err := time.ParseDuration(duration)
	if err != nil {
		fmt.Printf("failed to parse token expire time: %v\n", err)
		os.Exit(1)
	}
	TokenExpireSec = int(d.Seconds())
}

// Init generates a fresh ed25519 key pair at runtime. Sessions do not survive
// a restart; players simply log in again.
func Init() {
	var err error
	publicKey, privateKey, err = ed25519.GenerateKey(nil)
	if err != nil {
		fmt.Printf("failed to generate ed25519 key pair: %v\n", err)
		os.Exit(1)
	}
	parseTokenExpireTime()
}

// InitFromPath loads a persisted ed25519 key pair so tokens stay valid across
// deploys.
func InitFromPath(privatePath, publicPath string) error {
	privateKeyData, err := os.ReadFile(privatePath)
	if err != nil {
		return fmt.Errorf("failed to read private key file: %w", err)
	}
	publicKeyData, err := os.ReadFile(publicPath)
	if err != nil {
		return fmt.Errorf("failed to read public key file: %w", err)
	}

	privateKey = ed25519.PrivateKey(privateKeyData)
	publicKey = ed25519.PublicKey(publicKeyData)
	parseTokenExpireTime()
	return nil
}

// CreateJWT mints a signed token with "sub" = userID.
func CreateJWT(userID string) (string, error) {
	claims := jwt.MapClaims{
		"sub": userID,
	}
	if TokenExpireSec > 0 {
		claims["exp"] = time.Now().Add(time.Duration(TokenExpireSec) * time.Second).Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(privateKey)
}

// AuthenticateJWT verifies a token string and returns its "sub" (user id).
func AuthenticateJWT(tokenString string) (string, error) {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return publicKey, nil
	})
	if err != nil {
		return "", fmt.Errorf("jwt parse error: %w", err)
	}
	if !t.Valid {
		return "", fmt.Errorf("invalid token")
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid jwt claims")
	}
	userID, ok := claims["sub"].(string)
	if !ok {
		return "", fmt.Errorf("missing sub in jwt")
	}
	return userID, nil
}
