package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DownloadClaims is the payload of a signed, time-limited material download
// link. It carries just enough to re-check ownership at resolve time; it is
// not a session.
type DownloadClaims struct {
	AssetID int64 `json:"asset_id"`
	UserID  int64 `json:"user_id"`
	jwt.RegisteredClaims
}

// GenerateDownloadToken signs a capability token for one asset and one user.
func (k *Keys) GenerateDownloadToken(assetID, userID int64, ttl time.Duration) (string, error) {
	claims := DownloadClaims{
		AssetID: assetID,
		UserID:  userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(k.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign download token: %w", err)
	}
	return signed, nil
}

// ValidateDownloadToken verifies a capability token. Expired or tampered
// tokens return an error; a token with zero ids is malformed, not expired,
// and the caller distinguishes the two.
func (k *Keys) ValidateDownloadToken(tokenStr string) (DownloadClaims, error) {
	var claims DownloadClaims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return k.secret, nil
	})
	if err != nil {
		return DownloadClaims{}, fmt.Errorf("failed to parse download token: %w", err)
	}
	if !token.Valid {
		return DownloadClaims{}, fmt.Errorf("invalid download token")
	}
	return claims, nil
}
