package share

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// DownloadCapability is a verified, time-boxed grant to download exactly one
// item.
type DownloadCapability struct {
	ItemID    string
	ShareID   string
	ExpiresAt time.Time
}

type capabilityClaims struct {
	ItemID  string `json:"item_id"`
	ShareID string `json:"share_id"`
	jwt.RegisteredClaims
}

// CapabilityIssuer signs and verifies download capability tokens. The token
// carries the item id it was issued for, so a capability for one item can
// never be replayed against another.
type CapabilityIssuer struct {
	secret []byte
	ttl    time.Duration
}

func NewCapabilityIssuer(secret []byte, ttl time.Duration) *CapabilityIssuer {
	if ttl == 0 {
		ttl = 5 * time.Minute
	}
	return &CapabilityIssuer{secret: secret, ttl: ttl}
}

// Issue creates a signed capability token for the item.
func (c *CapabilityIssuer) Issue(itemID, shareID string) (string, time.Time, error) {
	expiresAt := time.Now().Add(c.ttl)
	claims := &capabilityClaims{
		ItemID:  itemID,
		ShareID: shareID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign capability token: %w", err)
	}
	return token, expiresAt, nil
}

// Verify parses and validates a capability token.
func (c *CapabilityIssuer) Verify(token string) (*DownloadCapability, error) {
	claims := &capabilityClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: invalid capability token", common.ErrNotAuthorized)
	}
	return &DownloadCapability{
		ItemID:    claims.ItemID,
		ShareID:   claims.ShareID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
